// Package service holds the transaction orchestrator and the completion
// reconciler, the two entry points request handlers use.
package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ogcio/payments-api/internal/amount"
	"github.com/ogcio/payments-api/internal/domain"
	"github.com/ogcio/payments-api/internal/provider"
)

// TransactionStore is the persistence contract the services depend on.
// Satisfied by store.Store (Postgres) and store.MemoryStore.
type TransactionStore interface {
	GetPaymentRequest(ctx context.Context, id string) (*domain.PaymentRequest, error)
	GetProvider(ctx context.Context, id string) (*domain.Provider, error)
	CreateTransaction(ctx context.Context, t *domain.Transaction) error
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	GetTransactionByExtID(ctx context.Context, extPaymentID string) (*domain.Transaction, error)
	CompleteTransaction(ctx context.Context, extPaymentID string, status domain.TransactionStatus, rawStatus string) (*domain.Transaction, bool, error)
}

// Orchestrator creates transactions against a chosen provider and exposes the
// manual-transfer human transitions.
type Orchestrator struct {
	store    TransactionStore
	adapters *provider.Registry
	resolver *amount.Resolver
	logger   *zap.Logger

	// Currency applied to initiations. Payment requests are single-currency.
	Currency string
}

func NewOrchestrator(store TransactionStore, adapters *provider.Registry, resolver *amount.Resolver, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:    store,
		adapters: adapters,
		resolver: resolver,
		logger:   logger,
		Currency: "EUR",
	}
}

// CreateTransactionInput is the payload from a payer committing to a provider.
type CreateTransactionInput struct {
	PaymentRequestID     string
	ProviderFamily       domain.ProviderType
	CustomAmount         int64 // 0 = not supplied
	OverrideToken        string
	IntegrationReference string
	PayerName            string
	PayerEmail           string
}

// CreateTransaction runs the whole pipeline: resolve amount, select the
// enabled provider for the requested family, initiate with the provider, and
// persist the row as pending under the returned correlation id. A failed
// initiation leaves no row behind; the payer can retry from scratch.
func (o *Orchestrator) CreateTransaction(ctx context.Context, in CreateTransactionInput) (*domain.Transaction, *provider.Initiation, error) {
	req, err := o.store.GetPaymentRequest(ctx, in.PaymentRequestID)
	if err != nil {
		return nil, nil, err
	}
	if req.Status != domain.PaymentRequestActive {
		return nil, nil, &domain.ConflictError{Reason: "payment request is inactive"}
	}

	prov, err := o.selectProvider(ctx, req, in.ProviderFamily)
	if err != nil {
		return nil, nil, err
	}

	resolved, err := o.resolver.Resolve(req, in.CustomAmount, in.OverrideToken)
	if err != nil {
		return nil, nil, err
	}

	adapter, err := o.adapters.Lookup(prov.Type)
	if err != nil {
		return nil, nil, fmt.Errorf("select adapter: %w", err)
	}

	txID := uuid.NewString()
	initiation, err := adapter.Initiate(ctx, provider.Draft{
		TransactionID:  txID,
		PaymentRequest: req,
		Provider:       prov,
		Amount:         resolved,
		Currency:       o.Currency,
		Reference:      in.IntegrationReference,
	})
	if err != nil {
		o.logger.Error("provider initiation failed",
			zap.String("payment_request_id", req.ID),
			zap.String("provider_type", string(prov.Type)),
			zap.Error(err))
		return nil, nil, err
	}

	tx := &domain.Transaction{
		ID:                   txID,
		PaymentRequestID:     req.ID,
		ProviderID:           prov.ID,
		ExtPaymentID:         initiation.CorrelationID,
		IntegrationReference: in.IntegrationReference,
		Amount:               resolved,
		Status:               domain.StatusPending,
		CredentialSource:     initiation.CredentialSource,
		PayerName:            in.PayerName,
		PayerEmail:           in.PayerEmail,
	}
	if err := o.store.CreateTransaction(ctx, tx); err != nil {
		// The provider-side intent is orphaned collateral; it will simply
		// never be completed.
		return nil, nil, err
	}

	o.logger.Info("transaction created",
		zap.String("transaction_id", tx.ID),
		zap.String("ext_payment_id", tx.ExtPaymentID),
		zap.String("provider_type", string(prov.Type)),
		zap.Int64("amount", tx.Amount))

	return tx, initiation, nil
}

// selectProvider finds the enabled provider link for the requested family and
// checks it is still connected. A disconnected provider must not be offered to
// payers even when linked to an active request.
func (o *Orchestrator) selectProvider(ctx context.Context, req *domain.PaymentRequest, family domain.ProviderType) (*domain.Provider, error) {
	linked := false
	for _, link := range req.Providers {
		if link.Type != family {
			continue
		}
		linked = true
		if !link.Enabled {
			continue
		}
		prov, err := o.store.GetProvider(ctx, link.ProviderID)
		if err != nil {
			return nil, err
		}
		if prov.Status != domain.ProviderConnected {
			return nil, &domain.ConflictError{Reason: "provider is disconnected"}
		}
		return prov, nil
	}
	// A link that exists but is disabled is a state conflict; a family that
	// was never linked is bad input.
	if linked {
		return nil, &domain.ConflictError{Reason: "provider for requested family is disabled"}
	}
	return nil, &domain.ValidationError{Field: "provider_family", Reason: "no provider linked for requested family"}
}

// GetTransaction returns the current state of one payment attempt.
func (o *Orchestrator) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return o.store.GetTransaction(ctx, id)
}

// DeclareManualPayment records a citizen's "I have paid" self-report on a
// manual bank transfer. A no-op once the transaction is terminal.
func (o *Orchestrator) DeclareManualPayment(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	return o.manualTransition(ctx, transactionID, provider.ManualStatusDeclared)
}

// ConfirmManualPayment is the operator-side confirmation that the transfer
// arrived. Storage semantics are identical to an automated completion.
func (o *Orchestrator) ConfirmManualPayment(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	return o.manualTransition(ctx, transactionID, provider.ManualStatusConfirmed)
}

func (o *Orchestrator) manualTransition(ctx context.Context, transactionID, rawStatus string) (*domain.Transaction, error) {
	tx, err := o.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	prov, err := o.store.GetProvider(ctx, tx.ProviderID)
	if err != nil {
		return nil, err
	}
	if prov.Type != domain.ProviderTypeBankTransfer {
		return nil, &domain.ConflictError{Reason: "transaction is not a manual bank transfer"}
	}

	adapter, err := o.adapters.Lookup(prov.Type)
	if err != nil {
		return nil, err
	}

	updated, transitioned, err := o.store.CompleteTransaction(ctx, tx.ExtPaymentID, adapter.MapExternalStatus(rawStatus), rawStatus)
	if err != nil {
		return nil, err
	}
	if transitioned {
		o.logger.Info("manual transfer transition applied",
			zap.String("transaction_id", updated.ID),
			zap.String("status", string(updated.Status)))
	}
	return updated, nil
}
