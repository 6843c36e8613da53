package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(handler *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", handler.HealthCheckHandler)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/transactions", handler.CreateTransactionHandler).Methods("POST")
	apiV1.HandleFunc("/transactions/{id}", handler.GetTransactionHandler).Methods("GET")
	apiV1.HandleFunc("/transactions/{id}/declare", handler.DeclareManualPaymentHandler).Methods("POST")
	apiV1.HandleFunc("/transactions/{id}/confirm", handler.ConfirmManualPaymentHandler).Methods("POST")
	apiV1.HandleFunc("/complete/{family}", handler.RedirectHandler).Methods("GET")
	apiV1.HandleFunc("/webhooks/{family}", handler.WebhookHandler).Methods("POST")

	return r
}
