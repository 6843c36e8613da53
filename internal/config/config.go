package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	DBSource string
	Port     string
	Env      string

	// AmountCeiling bounds payer-chosen custom amounts, in minor units.
	AmountCeiling int64
	// AmountTokenSecret keys verification of signed amount-override tokens.
	AmountTokenSecret string

	// StripePlatformKey is the platform-owned fallback secret key used when an
	// organisation's configured Stripe key is rejected.
	StripePlatformKey string

	// Provider API bases, overridable for sandbox and test environments.
	StripeBaseURL      string
	WorldnetBaseURL    string
	OpenBankingBaseURL string
}

const defaultAmountCeiling = 100_000_000 // 1,000,000.00 in minor units

func Load() (*Config, error) {
	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	tokenSecret := os.Getenv("AMOUNT_TOKEN_SECRET")
	if tokenSecret == "" {
		return nil, fmt.Errorf("AMOUNT_TOKEN_SECRET environment variable is required")
	}

	ceiling := int64(defaultAmountCeiling)
	if v := os.Getenv("AMOUNT_CEILING"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("AMOUNT_CEILING must be a positive integer, got %q", v)
		}
		ceiling = parsed
	}

	return &Config{
		DBSource:           dbSource,
		Port:               getenv("SERVER_PORT", "8080"),
		Env:                getenv("ENVIRONMENT", "development"),
		AmountCeiling:      ceiling,
		AmountTokenSecret:  tokenSecret,
		StripePlatformKey:  os.Getenv("STRIPE_PLATFORM_KEY"),
		StripeBaseURL:      getenv("STRIPE_BASE_URL", "https://api.stripe.com"),
		WorldnetBaseURL:    getenv("WORLDNET_BASE_URL", "https://testpayments.worldnettps.com"),
		OpenBankingBaseURL: getenv("OPENBANKING_BASE_URL", "https://api.truelayer.com"),
	}, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
