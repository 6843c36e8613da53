package provider

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/ogcio/payments-api/internal/domain"
)

// BankTransferAdapter handles manual bank transfers. There is no external
// call: initiation generates a human-readable reference code the payer quotes
// on their transfer, and a human drives both completion transitions — the
// citizen self-declares payment, an operator later confirms it.
type BankTransferAdapter struct{}

func NewBankTransferAdapter() *BankTransferAdapter { return &BankTransferAdapter{} }

func (a *BankTransferAdapter) Family() domain.ProviderType { return domain.ProviderTypeBankTransfer }

// Raw statuses produced by the manual flow itself rather than a provider.
const (
	ManualStatusDeclared  = "declared"
	ManualStatusConfirmed = "confirmed"
)

func (a *BankTransferAdapter) Initiate(_ context.Context, draft Draft) (*Initiation, error) {
	ref := referenceCode()
	return &Initiation{
		CorrelationID: ref,
		Reference:     ref,
		BankDetails: map[string]string{
			"account_holder": draft.Provider.Data["account_holder"],
			"iban":           draft.Provider.Data["iban"],
			"bic":            draft.Provider.Data["bic"],
		},
	}, nil
}

func (a *BankTransferAdapter) MapExternalStatus(raw string) domain.TransactionStatus {
	switch raw {
	case ManualStatusDeclared:
		return domain.StatusPending
	case ManualStatusConfirmed:
		return domain.StatusSucceeded
	default:
		return domain.StatusFailed
	}
}

// referenceCode returns a short code a payer can copy into a bank transfer
// reference field, e.g. "PAY-9F3A2C61B0DE".
func referenceCode() string {
	compact := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "PAY-" + compact[:12]
}
