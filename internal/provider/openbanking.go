package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ogcio/payments-api/internal/domain"
)

// OpenBankingAdapter creates a bank-initiated payment authorisation with the
// bank-connectivity provider and sends the payer to the bank's authorisation
// flow. The payer cancelling at the bank is a valid terminal outcome, not an
// error.
type OpenBankingAdapter struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewOpenBankingAdapter(baseURL string, logger *zap.Logger) *OpenBankingAdapter {
	return &OpenBankingAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

func (a *OpenBankingAdapter) Family() domain.ProviderType { return domain.ProviderTypeOpenBanking }

type obPaymentRequest struct {
	AmountInMinor int64         `json:"amount_in_minor"`
	Currency      string        `json:"currency"`
	Reference     string        `json:"reference"`
	Beneficiary   obBeneficiary `json:"beneficiary"`
	RedirectURI   string        `json:"redirect_uri"`
}

type obBeneficiary struct {
	Name string `json:"name"`
	IBAN string `json:"iban"`
}

type obPaymentResponse struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	AuthorisationURI string `json:"authorisation_uri"`
}

func (a *OpenBankingAdapter) Initiate(ctx context.Context, draft Draft) (*Initiation, error) {
	token := draft.Provider.Data["access_token"]
	if token == "" {
		return nil, &domain.ProviderError{
			Provider: a.Family(), Op: "create payment authorisation",
			Err: fmt.Errorf("provider is missing access_token"),
		}
	}

	payload, err := json.Marshal(obPaymentRequest{
		AmountInMinor: draft.Amount,
		Currency:      strings.ToUpper(draft.Currency),
		Reference:     draft.Reference,
		Beneficiary: obBeneficiary{
			Name: draft.Provider.Data["beneficiary_name"],
			IBAN: draft.Provider.Data["iban"],
		},
		RedirectURI: draft.PaymentRequest.RedirectURL,
	})
	if err != nil {
		return nil, &domain.ProviderError{Provider: a.Family(), Op: "create payment authorisation", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v3/payments", bytes.NewReader(payload))
	if err != nil {
		return nil, &domain.ProviderError{Provider: a.Family(), Op: "create payment authorisation", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	// Provider-side dedupe key for the create call itself.
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &domain.ProviderError{Provider: a.Family(), Op: "create payment authorisation", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.ProviderError{Provider: a.Family(), Op: "create payment authorisation", Err: err}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &domain.ProviderError{
			Provider: a.Family(), Op: "create payment authorisation",
			Err: &apiError{status: resp.StatusCode, message: string(body)},
		}
	}

	var ob obPaymentResponse
	if err := json.Unmarshal(body, &ob); err != nil {
		return nil, &domain.ProviderError{Provider: a.Family(), Op: "decode payment authorisation", Err: err}
	}

	a.logger.Info("open banking payment created",
		zap.String("payment_id", ob.ID),
		zap.String("status", ob.Status))

	return &Initiation{
		CorrelationID: ob.ID,
		RedirectURL:   ob.AuthorisationURI,
	}, nil
}

// MapExternalStatus translates bank execution statuses. The payer abandoning
// or cancelling mid-flow at the bank maps to cancelled.
func (a *OpenBankingAdapter) MapExternalStatus(raw string) domain.TransactionStatus {
	switch raw {
	case "executed", "settled":
		return domain.StatusSucceeded
	case "authorization_required", "authorizing", "authorized":
		return domain.StatusPending
	case "cancelled", "canceled":
		return domain.StatusCancelled
	case "failed", "rejected", "expired":
		return domain.StatusFailed
	default:
		return domain.StatusFailed
	}
}
