package main

import (
	"context"
	"log"
	"net/http"

	"go.uber.org/zap"

	"github.com/ogcio/payments-api/internal/amount"
	"github.com/ogcio/payments-api/internal/api"
	"github.com/ogcio/payments-api/internal/config"
	"github.com/ogcio/payments-api/internal/domain"
	"github.com/ogcio/payments-api/internal/provider"
	"github.com/ogcio/payments-api/internal/service"
	"github.com/ogcio/payments-api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	st, err := store.NewStore(cfg.DBSource)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer st.Close()

	if err := st.RunMigrations(context.Background()); err != nil {
		log.Fatalf("Unable to run migrations: %v", err)
	}

	// Provider adapters, one per supported family.
	worldnet := provider.NewWorldnetAdapter(cfg.WorldnetBaseURL, logger)
	adapters := provider.NewRegistry(
		provider.NewStripeAdapter(cfg.StripeBaseURL, cfg.StripePlatformKey, logger),
		worldnet,
		provider.NewOpenBankingAdapter(cfg.OpenBankingBaseURL, logger),
		provider.NewBankTransferAdapter(),
	)

	resolver := amount.NewResolver(amount.NewHMACVerifier(cfg.AmountTokenSecret), cfg.AmountCeiling)
	orchestrator := service.NewOrchestrator(st, adapters, resolver, logger)
	reconciler := service.NewReconciler(st, adapters, logger)

	// Families whose inbound callbacks carry a signature to check.
	verifiers := map[domain.ProviderType]api.CallbackVerifier{
		domain.ProviderTypeWorldnet: worldnet,
	}

	handler := api.NewHandler(orchestrator, reconciler, st, verifiers, logger)
	r := api.NewRouter(handler)

	log.Printf("Server starting on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal(err)
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
