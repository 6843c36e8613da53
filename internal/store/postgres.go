package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ogcio/payments-api/internal/domain"
)

// Store is the pgx-backed persistence layer. All transaction status mutation
// funnels through CompleteTransaction's single conditional update; nothing
// here does a read followed by a separate write.
type Store struct {
	Db *pgxpool.Pool
}

func NewStore(connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{Db: pool}, nil
}

func (s *Store) Close() {
	s.Db.Close()
}

// GetPaymentRequest retrieves a payment request with its provider links.
func (s *Store) GetPaymentRequest(ctx context.Context, id string) (*domain.PaymentRequest, error) {
	var pr domain.PaymentRequest
	err := s.Db.QueryRow(ctx,
		`SELECT id, user_id, title, description, reference, amount,
		        allow_amount_override, allow_custom_amount, redirect_url, status
		 FROM payment_requests WHERE id = $1`, id).
		Scan(&pr.ID, &pr.UserID, &pr.Title, &pr.Description, &pr.Reference, &pr.Amount,
			&pr.AllowAmountOverride, &pr.AllowCustomAmount, &pr.RedirectURL, &pr.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentRequestNotFound
		}
		return nil, fmt.Errorf("query payment request: %w", err)
	}

	rows, err := s.Db.Query(ctx,
		`SELECT prp.provider_id, p.type, prp.enabled
		 FROM payment_request_providers prp
		 JOIN providers p ON p.id = prp.provider_id
		 WHERE prp.payment_request_id = $1
		 ORDER BY p.type`, id)
	if err != nil {
		return nil, fmt.Errorf("query provider links: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var link domain.ProviderLink
		if err := rows.Scan(&link.ProviderID, &link.Type, &link.Enabled); err != nil {
			return nil, fmt.Errorf("scan provider link: %w", err)
		}
		pr.Providers = append(pr.Providers, link)
	}
	return &pr, rows.Err()
}

// DeletePaymentRequest removes an unused payment request. Refused once any
// transaction references it.
func (s *Store) DeletePaymentRequest(ctx context.Context, id string) error {
	var referenced bool
	err := s.Db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM transactions WHERE payment_request_id = $1)", id).
		Scan(&referenced)
	if err != nil {
		return fmt.Errorf("check transactions: %w", err)
	}
	if referenced {
		return &domain.ConflictError{Reason: "payment request has transactions"}
	}

	tag, err := s.Db.Exec(ctx, "DELETE FROM payment_requests WHERE id = $1", id)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23503: a transaction row appeared between the check and the delete.
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return &domain.ConflictError{Reason: "payment request has transactions"}
		}
		return fmt.Errorf("delete payment request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPaymentRequestNotFound
	}
	return nil
}

func (s *Store) GetProvider(ctx context.Context, id string) (*domain.Provider, error) {
	var p domain.Provider
	err := s.Db.QueryRow(ctx,
		"SELECT id, user_id, type, name, data, status FROM providers WHERE id = $1", id).
		Scan(&p.ID, &p.UserID, &p.Type, &p.Name, &p.Data, &p.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProviderNotFound
		}
		return nil, fmt.Errorf("query provider: %w", err)
	}
	return &p, nil
}

// CreateTransaction persists a freshly initiated transaction. The unique
// index on ext_payment_id is what makes the correlation id a safe lookup key.
func (s *Store) CreateTransaction(ctx context.Context, t *domain.Transaction) error {
	err := s.Db.QueryRow(ctx,
		`INSERT INTO transactions
		   (id, payment_request_id, provider_id, ext_payment_id, integration_reference,
		    amount, status, raw_status, credential_source, payer_name, payer_email)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at, updated_at`,
		t.ID, t.PaymentRequestID, t.ProviderID, t.ExtPaymentID, t.IntegrationReference,
		t.Amount, t.Status, t.RawStatus, t.CredentialSource, t.PayerName, t.PayerEmail).
		Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return &domain.ConflictError{Reason: "duplicate correlation id"}
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

const transactionColumns = `id, payment_request_id, provider_id, ext_payment_id,
	integration_reference, amount, status, raw_status, credential_source,
	payer_name, payer_email, created_at, updated_at`

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.queryTransaction(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = $1", id)
}

func (s *Store) GetTransactionByExtID(ctx context.Context, extPaymentID string) (*domain.Transaction, error) {
	return s.queryTransaction(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE ext_payment_id = $1", extPaymentID)
}

func (s *Store) queryTransaction(ctx context.Context, query, arg string) (*domain.Transaction, error) {
	var t domain.Transaction
	err := s.Db.QueryRow(ctx, query, arg).Scan(
		&t.ID, &t.PaymentRequestID, &t.ProviderID, &t.ExtPaymentID,
		&t.IntegrationReference, &t.Amount, &t.Status, &t.RawStatus, &t.CredentialSource,
		&t.PayerName, &t.PayerEmail, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("query transaction: %w", err)
	}
	return &t, nil
}

// CompleteTransaction applies a status transition keyed by correlation id as
// one atomic conditional update: the new status lands only if the stored
// status is not already terminal. Returns the resulting row and whether this
// call caused the transition. A row already terminal is returned unchanged
// with transitioned=false; two concurrent completions cannot both win.
func (s *Store) CompleteTransaction(ctx context.Context, extPaymentID string, status domain.TransactionStatus, rawStatus string) (*domain.Transaction, bool, error) {
	var t domain.Transaction
	err := s.Db.QueryRow(ctx,
		`UPDATE transactions
		 SET status = $2, raw_status = $3, updated_at = now()
		 WHERE ext_payment_id = $1
		   AND status NOT IN ('succeeded', 'failed', 'cancelled')
		 RETURNING `+transactionColumns,
		extPaymentID, status, rawStatus).Scan(
		&t.ID, &t.PaymentRequestID, &t.ProviderID, &t.ExtPaymentID,
		&t.IntegrationReference, &t.Amount, &t.Status, &t.RawStatus, &t.CredentialSource,
		&t.PayerName, &t.PayerEmail, &t.CreatedAt, &t.UpdatedAt)
	if err == nil {
		return &t, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("complete transaction: %w", err)
	}

	// No row updated: either the id is unknown or the row is already
	// terminal. The read-back distinguishes the two; an already-terminal row
	// is the defined idempotent no-op, not an error.
	existing, err := s.GetTransactionByExtID(ctx, extPaymentID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}
