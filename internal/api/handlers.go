package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/ogcio/payments-api/internal/domain"
	"github.com/ogcio/payments-api/internal/service"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payments_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})

	transactionsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_transactions_completed_total",
		Help: "Terminal transitions applied, labeled by provider family and status",
	}, []string{"provider", "status"})
)

// CallbackVerifier is what the legacy gateway adapter contributes beyond the
// Adapter interface: inbound redirect legs must be signature-checked before
// any status is applied.
type CallbackVerifier interface {
	VerifyCallback(p *domain.Provider, params url.Values) error
}

type Handler struct {
	orchestrator *service.Orchestrator
	reconciler   *service.Reconciler
	store        service.TransactionStore
	verifiers    map[domain.ProviderType]CallbackVerifier
	logger       *zap.Logger
}

func NewHandler(o *service.Orchestrator, r *service.Reconciler, s service.TransactionStore, verifiers map[domain.ProviderType]CallbackVerifier, logger *zap.Logger) *Handler {
	return &Handler{orchestrator: o, reconciler: r, store: s, verifiers: verifiers, logger: logger}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createTransactionRequest struct {
	PaymentRequestID     string `json:"payment_request_id"`
	ProviderFamily       string `json:"provider_family"`
	CustomAmount         int64  `json:"custom_amount,omitempty"`
	AmountToken          string `json:"amount_token,omitempty"`
	IntegrationReference string `json:"integration_reference"`
	PayerName            string `json:"payer_name,omitempty"`
	PayerEmail           string `json:"payer_email,omitempty"`
}

type createTransactionResponse struct {
	Transaction *domain.Transaction `json:"transaction"`
	// Exactly one of the following groups is populated, per provider family.
	ClientSecret string            `json:"client_secret,omitempty"`
	RedirectURL  string            `json:"redirect_url,omitempty"`
	Reference    string            `json:"reference,omitempty"`
	BankDetails  map[string]string `json:"bank_details,omitempty"`
}

func (h *Handler) CreateTransactionHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/transactions"))
	defer timer.ObserveDuration()

	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/transactions")
		return
	}
	if req.PaymentRequestID == "" || req.ProviderFamily == "" {
		h.respondError(w, http.StatusBadRequest, "payment_request_id and provider_family are required", "POST", "/transactions")
		return
	}

	tx, initiation, err := h.orchestrator.CreateTransaction(r.Context(), service.CreateTransactionInput{
		PaymentRequestID:     req.PaymentRequestID,
		ProviderFamily:       domain.ProviderType(req.ProviderFamily),
		CustomAmount:         req.CustomAmount,
		OverrideToken:        req.AmountToken,
		IntegrationReference: req.IntegrationReference,
		PayerName:            req.PayerName,
		PayerEmail:           req.PayerEmail,
	})
	if err != nil {
		h.respondDomainError(w, err, "POST", "/transactions")
		return
	}

	httpRequestsTotal.WithLabelValues("POST", "/transactions", "201").Inc()
	respondWithJSON(w, http.StatusCreated, createTransactionResponse{
		Transaction:  tx,
		ClientSecret: initiation.ClientSecret,
		RedirectURL:  initiation.RedirectURL,
		Reference:    initiation.Reference,
		BankDetails:  initiation.BankDetails,
	})
}

func (h *Handler) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	tx, err := h.orchestrator.GetTransaction(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/transactions/{id}")
		return
	}
	httpRequestsTotal.WithLabelValues("GET", "/transactions/{id}", "200").Inc()
	respondWithJSON(w, http.StatusOK, tx)
}

// DeclareManualPaymentHandler is the citizen's "I have paid" self-report.
func (h *Handler) DeclareManualPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	tx, err := h.orchestrator.DeclareManualPayment(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/transactions/{id}/declare")
		return
	}
	httpRequestsTotal.WithLabelValues("POST", "/transactions/{id}/declare", "200").Inc()
	respondWithJSON(w, http.StatusOK, tx)
}

// ConfirmManualPaymentHandler is the operator confirmation that a manual
// transfer arrived.
func (h *Handler) ConfirmManualPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	tx, err := h.orchestrator.ConfirmManualPayment(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/transactions/{id}/confirm")
		return
	}
	httpRequestsTotal.WithLabelValues("POST", "/transactions/{id}/confirm", "200").Inc()
	respondWithJSON(w, http.StatusOK, tx)
}

// RedirectHandler is the provider redirect leg. The correlation id and status
// arrive as query parameters whose names vary per family; legacy gateway
// callbacks carry a response hash that must verify before anything else.
//
// Signature requirements come from the transaction's owning provider, never
// from the {family} route segment: the segment is caller-controlled, and a
// payer must not be able to route around verification by picking another
// family's path.
func (h *Handler) RedirectHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("GET", "/complete/{family}"))
	defer timer.ObserveDuration()

	family := domain.ProviderType(mux.Vars(r)["family"])
	params := r.URL.Query()

	correlationID, rawStatus := redirectSignal(family, params)
	if correlationID == "" {
		h.respondError(w, http.StatusBadRequest, "Missing correlation id", "GET", "/complete/{family}")
		return
	}

	prov, err := h.owningProvider(r.Context(), correlationID)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/complete/{family}")
		return
	}
	if verifier, ok := h.verifiers[prov.Type]; ok {
		if err := verifier.VerifyCallback(prov, params); err != nil {
			h.respondDomainError(w, err, "GET", "/complete/{family}")
			return
		}
	}

	h.complete(w, r, correlationID, rawStatus, "GET", "/complete/{family}", string(prov.Type))
}

type webhookPayload struct {
	// Accepted id keys across providers; the first non-empty one wins.
	PaymentID string `json:"payment_id"`
	ID        string `json:"id"`
	Status    string `json:"status"`
}

// WebhookHandler is the asynchronous completion leg. Retried deliveries and
// belt-and-braces double notifications land here as idempotent no-ops.
func (h *Handler) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/webhooks/{family}"))
	defer timer.ObserveDuration()

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/webhooks/{family}")
		return
	}
	correlationID := payload.PaymentID
	if correlationID == "" {
		correlationID = payload.ID
	}
	if correlationID == "" || payload.Status == "" {
		h.respondError(w, http.StatusBadRequest, "payment id and status are required", "POST", "/webhooks/{family}")
		return
	}

	prov, err := h.owningProvider(r.Context(), correlationID)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/webhooks/{family}")
		return
	}
	// Families that sign their redirect leg have no webhook contract; an
	// unsigned webhook naming one of their transactions is a forgery.
	if _, ok := h.verifiers[prov.Type]; ok {
		h.respondDomainError(w,
			&domain.ValidationError{Field: "payment_id", Reason: "provider family does not accept webhook completions"},
			"POST", "/webhooks/{family}")
		return
	}

	h.complete(w, r, correlationID, payload.Status, "POST", "/webhooks/{family}", string(prov.Type))
}

// owningProvider resolves the provider that issued a correlation id, via the
// transaction it belongs to.
func (h *Handler) owningProvider(ctx context.Context, correlationID string) (*domain.Provider, error) {
	tx, err := h.store.GetTransactionByExtID(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	return h.store.GetProvider(ctx, tx.ProviderID)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request, correlationID, rawStatus, method, endpoint, family string) {
	tx, transitioned, err := h.reconciler.Complete(r.Context(), correlationID, rawStatus)
	if err != nil {
		h.respondDomainError(w, err, method, endpoint)
		return
	}

	// Exactly-once side effects key off the transition, not the final status.
	if transitioned && tx.Status.IsTerminal() {
		transactionsCompleted.WithLabelValues(family, string(tx.Status)).Inc()
	}

	httpRequestsTotal.WithLabelValues(method, endpoint, "200").Inc()
	respondWithJSON(w, http.StatusOK, tx)
}

// redirectSignal extracts (correlation id, raw status) from the per-family
// redirect parameter shapes.
func redirectSignal(family domain.ProviderType, params url.Values) (string, string) {
	switch family {
	case domain.ProviderTypeStripe:
		return params.Get("payment_intent"), params.Get("redirect_status")
	case domain.ProviderTypeWorldnet:
		return params.Get("ORDERID"), params.Get("RESPONSECODE")
	case domain.ProviderTypeOpenBanking:
		return params.Get("payment_id"), params.Get("status")
	default:
		return params.Get("payment_id"), params.Get("status")
	}
}

// respondDomainError maps the core error taxonomy onto HTTP statuses.
func (h *Handler) respondDomainError(w http.ResponseWriter, err error, method, endpoint string) {
	var (
		validationErr *domain.ValidationError
		providerErr   *domain.ProviderError
		conflictErr   *domain.ConflictError
	)
	switch {
	case errors.As(err, &validationErr):
		h.respondError(w, http.StatusUnprocessableEntity, validationErr.Error(), method, endpoint)
	case errors.As(err, &conflictErr):
		h.respondError(w, http.StatusConflict, conflictErr.Error(), method, endpoint)
	case domain.IsNotFound(err):
		h.respondError(w, http.StatusNotFound, err.Error(), method, endpoint)
	case errors.As(err, &providerErr):
		h.logger.Error("provider call failed", zap.Error(err))
		h.respondError(w, http.StatusBadGateway, "Payment provider rejected the request", method, endpoint)
	default:
		h.logger.Error("unhandled error", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", method, endpoint)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, code int, message, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
