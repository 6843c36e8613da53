package provider

import (
	"context"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ogcio/payments-api/internal/domain"
)

// WorldnetAdapter integrates the legacy card gateway. Initiation builds a
// signed hosted-page URL; the gateway redirects back with a response code and
// a response hash that must match before any status is applied.
type WorldnetAdapter struct {
	baseURL string
	logger  *zap.Logger
	now     func() time.Time
}

func NewWorldnetAdapter(baseURL string, logger *zap.Logger) *WorldnetAdapter {
	return &WorldnetAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		now:     time.Now,
	}
}

func (a *WorldnetAdapter) Family() domain.ProviderType { return domain.ProviderTypeWorldnet }

const worldnetTimeFormat = "02-01-2006:15:04:05:000"

func (a *WorldnetAdapter) Initiate(ctx context.Context, draft Draft) (*Initiation, error) {
	terminalID := draft.Provider.Data["terminal_id"]
	secret := draft.Provider.Data["shared_secret"]
	if terminalID == "" || secret == "" {
		return nil, &domain.ProviderError{
			Provider: a.Family(), Op: "build hosted page request",
			Err: fmt.Errorf("provider is missing terminal_id or shared_secret"),
		}
	}

	orderID := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	amount := formatGatewayAmount(draft.Amount)
	dateTime := a.now().UTC().Format(worldnetTimeFormat)
	receiptURL := draft.PaymentRequest.RedirectURL

	hash := chainedHash(terminalID, orderID, amount, dateTime, receiptURL, secret)

	q := url.Values{}
	q.Set("TERMINALID", terminalID)
	q.Set("ORDERID", orderID)
	q.Set("CURRENCY", strings.ToUpper(draft.Currency))
	q.Set("AMOUNT", amount)
	q.Set("DATETIME", dateTime)
	q.Set("RECEIPTPAGEURL", receiptURL)
	q.Set("HASH", hash)

	return &Initiation{
		CorrelationID: orderID,
		RedirectURL:   a.baseURL + "/merchant/paymentpage?" + q.Encode(),
	}, nil
}

// VerifyCallback checks the response hash on an inbound gateway redirect.
// Unsigned or mismatched callbacks are rejected before any status mapping.
func (a *WorldnetAdapter) VerifyCallback(p *domain.Provider, params url.Values) error {
	got := params.Get("HASH")
	if got == "" {
		return &domain.ValidationError{Field: "HASH", Reason: "callback is not signed"}
	}

	want := chainedHash(
		params.Get("ORDERID"),
		params.Get("AMOUNT"),
		params.Get("DATETIME"),
		params.Get("RESPONSECODE"),
		params.Get("RESPONSETEXT"),
		p.Data["shared_secret"],
	)
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		a.logger.Warn("gateway callback hash mismatch", zap.String("order_id", params.Get("ORDERID")))
		return &domain.ValidationError{Field: "HASH", Reason: "callback hash mismatch"}
	}
	return nil
}

// MapExternalStatus translates gateway response codes: A approved, D declined,
// R referral, C cancelled at the hosted page. Unknown codes fail.
func (a *WorldnetAdapter) MapExternalStatus(raw string) domain.TransactionStatus {
	switch raw {
	case "A":
		return domain.StatusSucceeded
	case "D", "R", "E":
		return domain.StatusFailed
	case "C":
		return domain.StatusCancelled
	default:
		return domain.StatusFailed
	}
}

// chainedHash is the gateway's colon-joined SHA-1 signature over the request
// or response fields.
func chainedHash(parts ...string) string {
	sum := sha1.Sum([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}

// formatGatewayAmount renders minor units as the gateway's decimal string,
// e.g. 10050 -> "100.50".
func formatGatewayAmount(minor int64) string {
	return strconv.FormatInt(minor/100, 10) + "." + fmt.Sprintf("%02d", minor%100)
}
