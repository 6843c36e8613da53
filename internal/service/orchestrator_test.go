package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ogcio/payments-api/internal/amount"
	"github.com/ogcio/payments-api/internal/domain"
	"github.com/ogcio/payments-api/internal/provider"
	"github.com/ogcio/payments-api/internal/service"
	"github.com/ogcio/payments-api/internal/store"
)

// fakeAdapter stands in for an automated provider family.
type fakeAdapter struct {
	family        domain.ProviderType
	correlationID string
	initiateErr   error
	initiations   int
	statusMap     map[string]domain.TransactionStatus
}

func (f *fakeAdapter) Family() domain.ProviderType { return f.family }

func (f *fakeAdapter) Initiate(_ context.Context, _ provider.Draft) (*provider.Initiation, error) {
	f.initiations++
	if f.initiateErr != nil {
		return nil, f.initiateErr
	}
	return &provider.Initiation{
		CorrelationID:    f.correlationID,
		ClientSecret:     f.correlationID + "_secret",
		CredentialSource: domain.CredentialOrganisation,
	}, nil
}

func (f *fakeAdapter) MapExternalStatus(raw string) domain.TransactionStatus {
	if s, ok := f.statusMap[raw]; ok {
		return s
	}
	return domain.StatusFailed
}

type fixture struct {
	store        *store.MemoryStore
	orchestrator *service.Orchestrator
	reconciler   *service.Reconciler
	card         *fakeAdapter
}

const tokenSecret = "orchestrator-test-secret"

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mem := store.NewMemoryStore()
	mem.PutProvider(&domain.Provider{
		ID: "prov-card", Type: domain.ProviderTypeStripe, Status: domain.ProviderConnected,
		Data: map[string]string{"secret_key": "sk_test"},
	})
	mem.PutProvider(&domain.Provider{
		ID: "prov-ob", Type: domain.ProviderTypeOpenBanking, Status: domain.ProviderConnected,
		Data: map[string]string{"access_token": "ob_token"},
	})
	mem.PutProvider(&domain.Provider{
		ID: "prov-bank", Type: domain.ProviderTypeBankTransfer, Status: domain.ProviderConnected,
		Data: map[string]string{"iban": "IE29AIBK93115212345678"},
	})
	mem.PutPaymentRequest(&domain.PaymentRequest{
		ID:                "pr-1",
		Amount:            10000,
		AllowCustomAmount: true,
		Status:            domain.PaymentRequestActive,
		Providers: []domain.ProviderLink{
			{ProviderID: "prov-card", Type: domain.ProviderTypeStripe, Enabled: true},
			{ProviderID: "prov-ob", Type: domain.ProviderTypeOpenBanking, Enabled: true},
			{ProviderID: "prov-bank", Type: domain.ProviderTypeBankTransfer, Enabled: true},
		},
	})

	card := &fakeAdapter{
		family:        domain.ProviderTypeStripe,
		correlationID: "pi_123",
		statusMap: map[string]domain.TransactionStatus{
			"succeeded":  domain.StatusSucceeded,
			"processing": domain.StatusPending,
		},
	}
	ob := &fakeAdapter{
		family:        domain.ProviderTypeOpenBanking,
		correlationID: "ob_pay_1",
		statusMap: map[string]domain.TransactionStatus{
			"executed":  domain.StatusSucceeded,
			"cancelled": domain.StatusCancelled,
		},
	}
	adapters := provider.NewRegistry(card, ob, provider.NewBankTransferAdapter())
	resolver := amount.NewResolver(amount.NewHMACVerifier(tokenSecret), 1_000_000)
	logger := zap.NewNop()

	return &fixture{
		store:        mem,
		orchestrator: service.NewOrchestrator(mem, adapters, resolver, logger),
		reconciler:   service.NewReconciler(mem, adapters, logger),
		card:         card,
	}
}

func TestCreateTransaction_HappyPath(t *testing.T) {
	f := newFixture(t)

	tx, init, err := f.orchestrator.CreateTransaction(context.Background(), service.CreateTransactionInput{
		PaymentRequestID:     "pr-1",
		ProviderFamily:       domain.ProviderTypeStripe,
		IntegrationReference: "REF-1",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, tx.Status)
	require.Equal(t, "pi_123", tx.ExtPaymentID)
	require.Equal(t, int64(10000), tx.Amount)
	require.Equal(t, domain.CredentialOrganisation, tx.CredentialSource)
	require.Equal(t, "pi_123_secret", init.ClientSecret)

	stored, err := f.store.GetTransactionByExtID(context.Background(), "pi_123")
	require.NoError(t, err)
	require.Equal(t, tx.ID, stored.ID)
}

func TestCreateTransaction_CustomAmountFrozen(t *testing.T) {
	f := newFixture(t)

	tx, _, err := f.orchestrator.CreateTransaction(context.Background(), service.CreateTransactionInput{
		PaymentRequestID: "pr-1",
		ProviderFamily:   domain.ProviderTypeStripe,
		CustomAmount:     5000,
	})
	require.NoError(t, err)
	require.Equal(t, int64(5000), tx.Amount)
}

func TestCreateTransaction_OverrideToken(t *testing.T) {
	f := newFixture(t)

	pr, err := f.store.GetPaymentRequest(context.Background(), "pr-1")
	require.NoError(t, err)
	pr.AllowAmountOverride = true
	f.store.PutPaymentRequest(pr)

	token := amount.NewHMACVerifier(tokenSecret).Issue(2500, time.Hour)
	tx, _, err := f.orchestrator.CreateTransaction(context.Background(), service.CreateTransactionInput{
		PaymentRequestID: "pr-1",
		ProviderFamily:   domain.ProviderTypeStripe,
		CustomAmount:     5000,
		OverrideToken:    token,
	})
	require.NoError(t, err)
	require.Equal(t, int64(2500), tx.Amount)
}

func TestCreateTransaction_InactiveRequestRefused(t *testing.T) {
	f := newFixture(t)

	pr, err := f.store.GetPaymentRequest(context.Background(), "pr-1")
	require.NoError(t, err)
	pr.Status = domain.PaymentRequestInactive
	f.store.PutPaymentRequest(pr)

	var conflict *domain.ConflictError
	_, _, err = f.orchestrator.CreateTransaction(context.Background(), service.CreateTransactionInput{
		PaymentRequestID: "pr-1",
		ProviderFamily:   domain.ProviderTypeStripe,
	})
	require.ErrorAs(t, err, &conflict)
}

func TestCreateTransaction_DisconnectedProviderRefused(t *testing.T) {
	f := newFixture(t)

	f.store.PutProvider(&domain.Provider{
		ID: "prov-card", Type: domain.ProviderTypeStripe, Status: domain.ProviderDisconnected,
	})

	var conflict *domain.ConflictError
	_, _, err := f.orchestrator.CreateTransaction(context.Background(), service.CreateTransactionInput{
		PaymentRequestID: "pr-1",
		ProviderFamily:   domain.ProviderTypeStripe,
	})
	require.ErrorAs(t, err, &conflict)
}

func TestCreateTransaction_DisabledProviderLinkRefused(t *testing.T) {
	f := newFixture(t)

	pr, err := f.store.GetPaymentRequest(context.Background(), "pr-1")
	require.NoError(t, err)
	for i := range pr.Providers {
		if pr.Providers[i].Type == domain.ProviderTypeStripe {
			pr.Providers[i].Enabled = false
		}
	}
	f.store.PutPaymentRequest(pr)

	// A linked-but-disabled provider is a conflict, not bad input.
	var conflict *domain.ConflictError
	_, _, err = f.orchestrator.CreateTransaction(context.Background(), service.CreateTransactionInput{
		PaymentRequestID: "pr-1",
		ProviderFamily:   domain.ProviderTypeStripe,
	})
	require.ErrorAs(t, err, &conflict)
}

func TestCreateTransaction_NoEnabledProviderForFamily(t *testing.T) {
	f := newFixture(t)

	var validationErr *domain.ValidationError
	_, _, err := f.orchestrator.CreateTransaction(context.Background(), service.CreateTransactionInput{
		PaymentRequestID: "pr-1",
		ProviderFamily:   domain.ProviderTypeWorldnet,
	})
	require.ErrorAs(t, err, &validationErr)
}

func TestCreateTransaction_InitiationFailureLeavesNoRow(t *testing.T) {
	f := newFixture(t)
	f.card.initiateErr = &domain.ProviderError{
		Provider: domain.ProviderTypeStripe, Op: "create payment intent",
		Err: errors.New("provider is down"),
	}

	var provErr *domain.ProviderError
	_, _, err := f.orchestrator.CreateTransaction(context.Background(), service.CreateTransactionInput{
		PaymentRequestID: "pr-1",
		ProviderFamily:   domain.ProviderTypeStripe,
	})
	require.ErrorAs(t, err, &provErr)

	_, err = f.store.GetTransactionByExtID(context.Background(), "pi_123")
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestManualTransfer_DeclareThenConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tx, init, err := f.orchestrator.CreateTransaction(ctx, service.CreateTransactionInput{
		PaymentRequestID: "pr-1",
		ProviderFamily:   domain.ProviderTypeBankTransfer,
	})
	require.NoError(t, err)
	require.NotEmpty(t, init.Reference)
	require.Equal(t, domain.StatusPending, tx.Status)

	declared, err := f.orchestrator.DeclareManualPayment(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, declared.Status)

	confirmed, err := f.orchestrator.ConfirmManualPayment(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSucceeded, confirmed.Status)

	// Declaring again after confirmation is a no-op.
	again, err := f.orchestrator.DeclareManualPayment(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSucceeded, again.Status)
}

func TestManualTransitions_RefusedForAutomatedProviders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tx, _, err := f.orchestrator.CreateTransaction(ctx, service.CreateTransactionInput{
		PaymentRequestID: "pr-1",
		ProviderFamily:   domain.ProviderTypeStripe,
	})
	require.NoError(t, err)

	var conflict *domain.ConflictError
	_, err = f.orchestrator.ConfirmManualPayment(ctx, tx.ID)
	require.ErrorAs(t, err, &conflict)
}
