package provider_test

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ogcio/payments-api/internal/domain"
	"github.com/ogcio/payments-api/internal/provider"
)

func worldnetProvider() *domain.Provider {
	return &domain.Provider{
		ID:   "prov-2",
		Type: domain.ProviderTypeWorldnet,
		Data: map[string]string{"terminal_id": "6491002", "shared_secret": "gateway-secret"},
	}
}

func TestWorldnetInitiate_BuildsSignedHostedPageURL(t *testing.T) {
	a := provider.NewWorldnetAdapter("https://gateway.example", zap.NewNop())

	init, err := a.Initiate(context.Background(), provider.Draft{
		PaymentRequest: &domain.PaymentRequest{ID: "pr-1", RedirectURL: "https://service.example/return"},
		Provider:       worldnetProvider(),
		Amount:         10050,
		Currency:       "EUR",
	})
	require.NoError(t, err)
	require.NotEmpty(t, init.CorrelationID)
	require.True(t, strings.HasPrefix(init.RedirectURL, "https://gateway.example/merchant/paymentpage?"))

	u, err := url.Parse(init.RedirectURL)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, init.CorrelationID, q.Get("ORDERID"))
	require.Equal(t, "100.50", q.Get("AMOUNT"))
	require.Equal(t, "6491002", q.Get("TERMINALID"))

	// Outbound hash must be reproducible from the query fields and secret.
	payload := strings.Join([]string{
		q.Get("TERMINALID"), q.Get("ORDERID"), q.Get("AMOUNT"),
		q.Get("DATETIME"), q.Get("RECEIPTPAGEURL"), "gateway-secret",
	}, ":")
	sum := sha1.Sum([]byte(payload))
	require.Equal(t, hex.EncodeToString(sum[:]), q.Get("HASH"))
}

func TestWorldnetInitiate_MissingCredentials(t *testing.T) {
	a := provider.NewWorldnetAdapter("https://gateway.example", zap.NewNop())

	_, err := a.Initiate(context.Background(), provider.Draft{
		PaymentRequest: &domain.PaymentRequest{ID: "pr-1"},
		Provider:       &domain.Provider{ID: "prov-2", Type: domain.ProviderTypeWorldnet, Data: map[string]string{}},
		Amount:         10000,
		Currency:       "EUR",
	})
	var provErr *domain.ProviderError
	require.ErrorAs(t, err, &provErr)
}

func signedCallback(orderID, amount, dateTime, code, text, secret string) url.Values {
	payload := strings.Join([]string{orderID, amount, dateTime, code, text, secret}, ":")
	sum := sha1.Sum([]byte(payload))

	params := url.Values{}
	params.Set("ORDERID", orderID)
	params.Set("AMOUNT", amount)
	params.Set("DATETIME", dateTime)
	params.Set("RESPONSECODE", code)
	params.Set("RESPONSETEXT", text)
	params.Set("HASH", hex.EncodeToString(sum[:]))
	return params
}

func TestWorldnetVerifyCallback(t *testing.T) {
	a := provider.NewWorldnetAdapter("https://gateway.example", zap.NewNop())
	prov := worldnetProvider()

	params := signedCallback("ORDER123", "100.50", "01-02-2026:10:00:00:000", "A", "APPROVED", "gateway-secret")
	require.NoError(t, a.VerifyCallback(prov, params))

	var validationErr *domain.ValidationError

	// Mismatched hash: signed with the wrong secret.
	bad := signedCallback("ORDER123", "100.50", "01-02-2026:10:00:00:000", "A", "APPROVED", "other-secret")
	require.ErrorAs(t, a.VerifyCallback(prov, bad), &validationErr)

	// Tampered response code after signing.
	tampered := signedCallback("ORDER123", "100.50", "01-02-2026:10:00:00:000", "D", "DECLINED", "gateway-secret")
	tampered.Set("RESPONSECODE", "A")
	require.ErrorAs(t, a.VerifyCallback(prov, tampered), &validationErr)

	// Unsigned callback.
	unsigned := signedCallback("ORDER123", "100.50", "01-02-2026:10:00:00:000", "A", "APPROVED", "gateway-secret")
	unsigned.Del("HASH")
	require.ErrorAs(t, a.VerifyCallback(prov, unsigned), &validationErr)
}

func TestWorldnetMapExternalStatus(t *testing.T) {
	a := provider.NewWorldnetAdapter("https://gateway.example", zap.NewNop())

	require.Equal(t, domain.StatusSucceeded, a.MapExternalStatus("A"))
	require.Equal(t, domain.StatusFailed, a.MapExternalStatus("D"))
	require.Equal(t, domain.StatusFailed, a.MapExternalStatus("R"))
	require.Equal(t, domain.StatusCancelled, a.MapExternalStatus("C"))
	require.Equal(t, domain.StatusFailed, a.MapExternalStatus("Z"))
}
