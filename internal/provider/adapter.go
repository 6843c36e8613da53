// Package provider contains one adapter per supported payment rail. An
// adapter knows how to open a payment with its provider and how to translate
// the provider's status vocabulary into the canonical transaction status.
package provider

import (
	"context"
	"fmt"

	"github.com/ogcio/payments-api/internal/domain"
)

// Draft carries everything an adapter needs to initiate a payment. The amount
// is already resolved and frozen.
type Draft struct {
	TransactionID  string
	PaymentRequest *domain.PaymentRequest
	Provider       *domain.Provider
	Amount         int64 // minor units
	Currency       string
	Reference      string
}

// Initiation is the outcome of a successful initiate call. CorrelationID is
// the value a later completion signal will carry; it becomes the
// transaction's ext_payment_id.
type Initiation struct {
	CorrelationID string
	// RedirectURL sends the payer to a provider-hosted page (legacy gateway,
	// open banking). Empty for hosted-card and manual transfer.
	RedirectURL string
	// ClientSecret drives the hosted-card in-page confirmation. Empty for the
	// other variants.
	ClientSecret string
	// Reference and BankDetails are the payer-facing instructions for manual
	// transfer. Empty for the other variants.
	Reference   string
	BankDetails map[string]string
	// CredentialSource records which credentials the call actually used.
	CredentialSource domain.CredentialSource
}

// Adapter is implemented once per provider family.
type Adapter interface {
	Family() domain.ProviderType
	Initiate(ctx context.Context, draft Draft) (*Initiation, error)
	// MapExternalStatus translates a provider-reported status into the
	// canonical enum. Unknown values map to StatusFailed; the reconciler
	// keeps the raw value on the transaction for diagnosis.
	MapExternalStatus(raw string) domain.TransactionStatus
}

// Registry resolves the adapter for a provider family.
type Registry struct {
	adapters map[domain.ProviderType]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[domain.ProviderType]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Family()] = a
	}
	return r
}

func (r *Registry) Lookup(family domain.ProviderType) (Adapter, error) {
	a, ok := r.adapters[family]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider type %q", family)
	}
	return a, nil
}
