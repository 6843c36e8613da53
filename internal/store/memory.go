package store

import (
	"context"
	"sync"
	"time"

	"github.com/ogcio/payments-api/internal/domain"
)

// MemoryStore mirrors the Postgres store's semantics in process memory,
// including the terminal-state compare-and-swap in CompleteTransaction. Used
// by service tests and local development without a database.
type MemoryStore struct {
	mu              sync.Mutex
	paymentRequests map[string]*domain.PaymentRequest
	providers       map[string]*domain.Provider
	transactions    map[string]*domain.Transaction // keyed by transaction id
	byExtID         map[string]string              // ext_payment_id -> transaction id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		paymentRequests: make(map[string]*domain.PaymentRequest),
		providers:       make(map[string]*domain.Provider),
		transactions:    make(map[string]*domain.Transaction),
		byExtID:         make(map[string]string),
	}
}

func (m *MemoryStore) PutPaymentRequest(pr *domain.PaymentRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *pr
	m.paymentRequests[pr.ID] = &cp
}

func (m *MemoryStore) PutProvider(p *domain.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.providers[p.ID] = &cp
}

func (m *MemoryStore) GetPaymentRequest(_ context.Context, id string) (*domain.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr, ok := m.paymentRequests[id]
	if !ok {
		return nil, domain.ErrPaymentRequestNotFound
	}
	cp := *pr
	return &cp, nil
}

func (m *MemoryStore) DeletePaymentRequest(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.paymentRequests[id]; !ok {
		return domain.ErrPaymentRequestNotFound
	}
	for _, t := range m.transactions {
		if t.PaymentRequestID == id {
			return &domain.ConflictError{Reason: "payment request has transactions"}
		}
	}
	delete(m.paymentRequests, id)
	return nil
}

func (m *MemoryStore) GetProvider(_ context.Context, id string) (*domain.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) CreateTransaction(_ context.Context, t *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byExtID[t.ExtPaymentID]; exists {
		return &domain.ConflictError{Reason: "duplicate correlation id"}
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	cp := *t
	m.transactions[t.ID] = &cp
	m.byExtID[t.ExtPaymentID] = t.ID
	return nil
}

func (m *MemoryStore) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) GetTransactionByExtID(_ context.Context, extPaymentID string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byExtID[extPaymentID]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	cp := *m.transactions[id]
	return &cp, nil
}

// CompleteTransaction performs the same guarded transition as the SQL
// conditional update: the status changes only while not already terminal.
func (m *MemoryStore) CompleteTransaction(_ context.Context, extPaymentID string, status domain.TransactionStatus, rawStatus string) (*domain.Transaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byExtID[extPaymentID]
	if !ok {
		return nil, false, domain.ErrTransactionNotFound
	}
	t := m.transactions[id]
	if t.Status.IsTerminal() {
		cp := *t
		return &cp, false, nil
	}
	t.Status = status
	t.RawStatus = rawStatus
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	return &cp, true, nil
}
