package store

import (
	"context"
	"fmt"
)

// RunMigrations creates the schema if it does not exist yet. Statement order
// matters: transactions references the other two tables.
func (s *Store) RunMigrations(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS providers (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			type TEXT NOT NULL,
			name TEXT NOT NULL,
			data JSONB NOT NULL DEFAULT '{}',
			status TEXT NOT NULL DEFAULT 'connected'
		)`,
		`CREATE TABLE IF NOT EXISTS payment_requests (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			reference TEXT NOT NULL DEFAULT '',
			amount BIGINT NOT NULL,
			allow_amount_override BOOLEAN NOT NULL DEFAULT FALSE,
			allow_custom_amount BOOLEAN NOT NULL DEFAULT FALSE,
			redirect_url TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'inactive'
		)`,
		`CREATE TABLE IF NOT EXISTS payment_request_providers (
			payment_request_id TEXT NOT NULL REFERENCES payment_requests(id) ON DELETE CASCADE,
			provider_id TEXT NOT NULL REFERENCES providers(id),
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			PRIMARY KEY (payment_request_id, provider_id)
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			payment_request_id TEXT NOT NULL REFERENCES payment_requests(id),
			provider_id TEXT NOT NULL REFERENCES providers(id),
			ext_payment_id TEXT NOT NULL UNIQUE,
			integration_reference TEXT NOT NULL DEFAULT '',
			amount BIGINT NOT NULL,
			status TEXT NOT NULL,
			raw_status TEXT NOT NULL DEFAULT '',
			credential_source TEXT NOT NULL DEFAULT '',
			payer_name TEXT NOT NULL DEFAULT '',
			payer_email TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_payment_request
			ON transactions(payment_request_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.Db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
