package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/ogcio/payments-api/internal/domain"
	"github.com/ogcio/payments-api/internal/provider"
)

// Reconciler is the single entry point for provider completion signals,
// whether they arrive as redirect query parameters or webhook payloads.
// Duplicate signals for the same payment are expected and resolve to the
// defined idempotent no-op.
type Reconciler struct {
	store    TransactionStore
	adapters *provider.Registry
	logger   *zap.Logger
}

func NewReconciler(store TransactionStore, adapters *provider.Registry, logger *zap.Logger) *Reconciler {
	return &Reconciler{store: store, adapters: adapters, logger: logger}
}

// Complete looks up the transaction by its correlation id, maps the raw
// provider status through the owning provider's adapter and applies the
// terminal-guarded transition. The returned bool reports whether THIS call
// changed the stored status; exactly-once side effects (onward payer redirect,
// success metrics) must key off it, never off the final status alone.
//
// An unknown correlation id yields domain.ErrTransactionNotFound and creates
// nothing.
func (r *Reconciler) Complete(ctx context.Context, correlationID, rawStatus string) (*domain.Transaction, bool, error) {
	tx, err := r.store.GetTransactionByExtID(ctx, correlationID)
	if err != nil {
		r.logger.Warn("completion signal for unknown correlation id",
			zap.String("ext_payment_id", correlationID))
		return nil, false, err
	}

	prov, err := r.store.GetProvider(ctx, tx.ProviderID)
	if err != nil {
		return nil, false, err
	}
	adapter, err := r.adapters.Lookup(prov.Type)
	if err != nil {
		return nil, false, err
	}

	mapped := adapter.MapExternalStatus(rawStatus)

	updated, transitioned, err := r.store.CompleteTransaction(ctx, correlationID, mapped, rawStatus)
	if err != nil {
		return nil, false, err
	}

	if transitioned {
		r.logger.Info("transaction completed",
			zap.String("transaction_id", updated.ID),
			zap.String("ext_payment_id", correlationID),
			zap.String("raw_status", rawStatus),
			zap.String("status", string(updated.Status)))
	} else {
		r.logger.Info("duplicate completion ignored",
			zap.String("transaction_id", updated.ID),
			zap.String("ext_payment_id", correlationID),
			zap.String("status", string(updated.Status)))
	}

	return updated, transitioned, nil
}
