package domain

import "time"

// ProviderType identifies a payment rail family. A payment request may link at
// most one enabled provider per family.
type ProviderType string

const (
	ProviderTypeStripe       ProviderType = "stripe"
	ProviderTypeWorldnet     ProviderType = "worldnet"
	ProviderTypeOpenBanking  ProviderType = "openbanking"
	ProviderTypeBankTransfer ProviderType = "banktransfer"
)

// TransactionStatus is the canonical, provider-agnostic transaction state.
type TransactionStatus string

const (
	StatusInitiated TransactionStatus = "initiated"
	StatusPending   TransactionStatus = "pending"
	StatusSucceeded TransactionStatus = "succeeded"
	StatusFailed    TransactionStatus = "failed"
	StatusCancelled TransactionStatus = "cancelled"
)

// IsTerminal reports whether a status admits no further transitions.
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// CredentialSource records which API credentials an initiation actually used.
type CredentialSource string

const (
	CredentialOrganisation CredentialSource = "organisation"
	CredentialPlatform     CredentialSource = "platform"
)

type PaymentRequestStatus string

const (
	PaymentRequestActive   PaymentRequestStatus = "active"
	PaymentRequestInactive PaymentRequestStatus = "inactive"
)

type ProviderStatus string

const (
	ProviderConnected    ProviderStatus = "connected"
	ProviderDisconnected ProviderStatus = "disconnected"
)

// PaymentRequest is the reusable, organisation-defined description of
// something payable. Read-only to payers.
type PaymentRequest struct {
	ID                  string               `json:"id"`
	UserID              string               `json:"user_id"`
	Title               string               `json:"title"`
	Description         string               `json:"description"`
	Reference           string               `json:"reference"`
	Amount              int64                `json:"amount"` // minor currency units
	AllowAmountOverride bool                 `json:"allow_amount_override"`
	AllowCustomAmount   bool                 `json:"allow_custom_amount"`
	RedirectURL         string               `json:"redirect_url"`
	Status              PaymentRequestStatus `json:"status"`
	Providers           []ProviderLink       `json:"providers"`
}

// ProviderLink associates a provider with a payment request.
type ProviderLink struct {
	ProviderID string       `json:"provider_id"`
	Type       ProviderType `json:"type"`
	Enabled    bool         `json:"enabled"`
}

// Provider is a configured integration account with an external payment rail.
// Data holds the per-type credential/config blob; its shape is owned by the
// matching adapter.
type Provider struct {
	ID     string            `json:"id"`
	UserID string            `json:"user_id"`
	Type   ProviderType      `json:"type"`
	Name   string            `json:"name"`
	Data   map[string]string `json:"data"`
	Status ProviderStatus    `json:"status"`
}

// Transaction is one concrete payment attempt against a PaymentRequest.
// ExtPaymentID is the provider correlation id, unique system-wide; it is the
// sole key used to locate a transaction from an inbound completion signal.
// Amount is frozen at creation and never recomputed.
type Transaction struct {
	ID                   string            `json:"id"`
	PaymentRequestID     string            `json:"payment_request_id"`
	ProviderID           string            `json:"provider_id"`
	ExtPaymentID         string            `json:"ext_payment_id"`
	IntegrationReference string            `json:"integration_reference"`
	Amount               int64             `json:"amount"`
	Status               TransactionStatus `json:"status"`
	// RawStatus preserves the last provider-reported status verbatim, most
	// useful when an unmapped value forced the canonical status to failed.
	RawStatus        string           `json:"raw_status,omitempty"`
	CredentialSource CredentialSource `json:"credential_source,omitempty"`
	PayerName        string           `json:"payer_name,omitempty"`
	PayerEmail       string           `json:"payer_email,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}
