package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ogcio/payments-api/internal/domain"
)

// StripeAdapter opens hosted-card payments by creating a payment intent. The
// payer confirms in-page using the returned client secret; Stripe then reports
// the outcome on the redirect back.
type StripeAdapter struct {
	baseURL string
	// platformKey is the platform-owned secret key used as a one-shot
	// fallback when the organisation's configured key is rejected.
	platformKey string
	client      *http.Client
	logger      *zap.Logger
}

func NewStripeAdapter(baseURL, platformKey string, logger *zap.Logger) *StripeAdapter {
	return &StripeAdapter{
		baseURL:     strings.TrimRight(baseURL, "/"),
		platformKey: platformKey,
		client:      &http.Client{Timeout: 15 * time.Second},
		logger:      logger,
	}
}

func (a *StripeAdapter) Family() domain.ProviderType { return domain.ProviderTypeStripe }

type stripeIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *StripeAdapter) Initiate(ctx context.Context, draft Draft) (*Initiation, error) {
	orgKey := draft.Provider.Data["secret_key"]

	intent, err := a.createIntent(ctx, orgKey, draft)
	source := domain.CredentialOrganisation

	// An invalid or missing organisation key gets one retry with the
	// platform's own credentials. Any other failure is surfaced as-is.
	if err != nil && a.platformKey != "" && isCredentialFailure(orgKey, err) {
		a.logger.Warn("organisation stripe key rejected, retrying with platform credentials",
			zap.String("provider_id", draft.Provider.ID),
			zap.Error(err))
		intent, err = a.createIntent(ctx, a.platformKey, draft)
		source = domain.CredentialPlatform
	}
	if err != nil {
		return nil, &domain.ProviderError{Provider: a.Family(), Op: "create payment intent", Err: err}
	}

	return &Initiation{
		CorrelationID:    intent.ID,
		ClientSecret:     intent.ClientSecret,
		CredentialSource: source,
	}, nil
}

func (a *StripeAdapter) createIntent(ctx context.Context, key string, draft Draft) (*stripeIntent, error) {
	if key == "" {
		return nil, errMissingKey
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(draft.Amount, 10))
	form.Set("currency", strings.ToLower(draft.Currency))
	form.Set("description", draft.PaymentRequest.Title)
	form.Set("metadata[payment_request_id]", draft.PaymentRequest.ID)
	form.Set("metadata[reference]", draft.Reference)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		var se stripeError
		if json.Unmarshal(body, &se) == nil && se.Error.Message != "" {
			return nil, &apiError{status: resp.StatusCode, code: se.Error.Code, message: se.Error.Message}
		}
		return nil, &apiError{status: resp.StatusCode, message: string(body)}
	}

	var intent stripeIntent
	if err := json.Unmarshal(body, &intent); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}
	return &intent, nil
}

// MapExternalStatus translates Stripe payment-intent statuses. Anything
// unrecognised is failed, never defaulted to success.
func (a *StripeAdapter) MapExternalStatus(raw string) domain.TransactionStatus {
	switch raw {
	case "succeeded":
		return domain.StatusSucceeded
	case "processing", "requires_action", "requires_confirmation", "requires_payment_method":
		return domain.StatusPending
	case "canceled":
		return domain.StatusCancelled
	case "payment_failed":
		return domain.StatusFailed
	default:
		return domain.StatusFailed
	}
}

var errMissingKey = fmt.Errorf("no secret key configured")

// apiError is a provider HTTP-level rejection.
type apiError struct {
	status  int
	code    string
	message string
}

func (e *apiError) Error() string {
	if e.code != "" {
		return fmt.Sprintf("provider returned %d (%s): %s", e.status, e.code, e.message)
	}
	return fmt.Sprintf("provider returned %d: %s", e.status, e.message)
}

// isCredentialFailure reports whether an initiation failure should trigger the
// platform-key fallback: the organisation key is absent, or the provider
// rejected it outright.
func isCredentialFailure(orgKey string, err error) bool {
	if orgKey == "" {
		return true
	}
	if ae, ok := err.(*apiError); ok {
		return ae.status == http.StatusUnauthorized || ae.code == "api_key_expired" || ae.code == "invalid_api_key"
	}
	return false
}
