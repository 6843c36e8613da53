package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ogcio/payments-api/internal/domain"
	"github.com/ogcio/payments-api/internal/service"
)

func createCardTransaction(t *testing.T, f *fixture) *domain.Transaction {
	t.Helper()
	tx, _, err := f.orchestrator.CreateTransaction(context.Background(), service.CreateTransactionInput{
		PaymentRequestID: "pr-1",
		ProviderFamily:   domain.ProviderTypeStripe,
	})
	require.NoError(t, err)
	return tx
}

func TestComplete_Succeeds(t *testing.T) {
	f := newFixture(t)
	tx := createCardTransaction(t, f)

	updated, transitioned, err := f.reconciler.Complete(context.Background(), tx.ExtPaymentID, "succeeded")
	require.NoError(t, err)
	require.True(t, transitioned)
	require.Equal(t, domain.StatusSucceeded, updated.Status)
	require.Equal(t, "succeeded", updated.RawStatus)
}

func TestComplete_DuplicateWebhookIsNoOp(t *testing.T) {
	f := newFixture(t)
	tx := createCardTransaction(t, f)
	ctx := context.Background()

	first, transitioned, err := f.reconciler.Complete(ctx, tx.ExtPaymentID, "succeeded")
	require.NoError(t, err)
	require.True(t, transitioned)
	require.Equal(t, domain.StatusSucceeded, first.Status)

	// The provider's belt-and-braces duplicate notification.
	second, transitioned, err := f.reconciler.Complete(ctx, tx.ExtPaymentID, "succeeded")
	require.NoError(t, err)
	require.False(t, transitioned)
	require.Equal(t, domain.StatusSucceeded, second.Status)
	require.Equal(t, first.UpdatedAt, second.UpdatedAt)
}

func TestComplete_UnknownCorrelationID(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.reconciler.Complete(context.Background(), "pi_never_issued", "succeeded")
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestComplete_NonTerminalThenTerminal(t *testing.T) {
	f := newFixture(t)
	tx := createCardTransaction(t, f)
	ctx := context.Background()

	// An intermediate "processing" signal keeps the row pending.
	updated, transitioned, err := f.reconciler.Complete(ctx, tx.ExtPaymentID, "processing")
	require.NoError(t, err)
	require.True(t, transitioned)
	require.Equal(t, domain.StatusPending, updated.Status)

	updated, transitioned, err = f.reconciler.Complete(ctx, tx.ExtPaymentID, "succeeded")
	require.NoError(t, err)
	require.True(t, transitioned)
	require.Equal(t, domain.StatusSucceeded, updated.Status)
}

func TestComplete_UnknownRawStatusFailsWithRawPreserved(t *testing.T) {
	f := newFixture(t)
	tx := createCardTransaction(t, f)

	updated, transitioned, err := f.reconciler.Complete(context.Background(), tx.ExtPaymentID, "brand_new_signal")
	require.NoError(t, err)
	require.True(t, transitioned)
	require.Equal(t, domain.StatusFailed, updated.Status)
	require.Equal(t, "brand_new_signal", updated.RawStatus)
}

func TestComplete_OpenBankingCancelledAtBank(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tx, _, err := f.orchestrator.CreateTransaction(ctx, service.CreateTransactionInput{
		PaymentRequestID: "pr-1",
		ProviderFamily:   domain.ProviderTypeOpenBanking,
	})
	require.NoError(t, err)

	updated, transitioned, err := f.reconciler.Complete(ctx, tx.ExtPaymentID, "cancelled")
	require.NoError(t, err)
	require.True(t, transitioned)
	require.Equal(t, domain.StatusCancelled, updated.Status)

	// Redirect leg arriving after the webhook changes nothing.
	updated, transitioned, err = f.reconciler.Complete(ctx, tx.ExtPaymentID, "cancelled")
	require.NoError(t, err)
	require.False(t, transitioned)
	require.Equal(t, domain.StatusCancelled, updated.Status)
}

func TestComplete_ConcurrentDuplicatesSingleTransition(t *testing.T) {
	f := newFixture(t)
	tx := createCardTransaction(t, f)
	ctx := context.Background()

	const callbacks = 16
	var wg sync.WaitGroup
	var transitions int32
	var mu sync.Mutex

	for i := 0; i < callbacks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, transitioned, err := f.reconciler.Complete(ctx, tx.ExtPaymentID, "succeeded")
			if err != nil {
				t.Error(err)
				return
			}
			if transitioned {
				mu.Lock()
				transitions++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), transitions)

	final, err := f.store.GetTransactionByExtID(ctx, tx.ExtPaymentID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSucceeded, final.Status)
}
