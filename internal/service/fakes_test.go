package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ledger-engine/internal/domain"
	"ledger-engine/internal/errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory domain.Store. Units of work are serialized by
// txMu, writes made inside one are buffered and applied on commit only.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	accounts     map[uuid.UUID]domain.Account
	transactions map[uuid.UUID]domain.Transaction
	events       []domain.OutboxEvent
	clients      map[uuid.UUID]domain.Client

	faults    map[string]error
	lockLog   [][]uuid.UUID
	commits   int
	rollbacks int

	// hooks
	beforeCreateTransaction func()
	beforeLock              func()
}

func newMemStore() *memStore {
	return &memStore{
		accounts:     make(map[uuid.UUID]domain.Account),
		transactions: make(map[uuid.UUID]domain.Transaction),
		clients:      make(map[uuid.UUID]domain.Client),
		faults:       make(map[string]error),
	}
}

type memTx struct {
	accounts     map[uuid.UUID]domain.Account
	transactions map[uuid.UUID]domain.Transaction
	events       []domain.OutboxEvent
	locked       []uuid.UUID
}

type memRepos struct {
	store *memStore
	tx    *memTx
}

var _ domain.Store = (*memStore)(nil)

func (s *memStore) Account() domain.AccountRepository         { return &memRepos{store: s} }
func (s *memStore) Transaction() domain.TransactionRepository { return &memRepos{store: s} }
func (s *memStore) Outbox() domain.OutboxRepository           { return &memRepos{store: s} }
func (s *memStore) Client() domain.ClientRepository           { return &memRepos{store: s} }

func (r *memRepos) Account() domain.AccountRepository         { return r }
func (r *memRepos) Transaction() domain.TransactionRepository { return r }
func (r *memRepos) Outbox() domain.OutboxRepository           { return r }
func (r *memRepos) Client() domain.ClientRepository           { return r }

func (s *memStore) WithTransaction(ctx context.Context, fn func(domain.Repositories) error) error {
	if err := s.fault("Begin"); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTx{
		accounts:     make(map[uuid.UUID]domain.Account),
		transactions: make(map[uuid.UUID]domain.Transaction),
	}

	rollback := func(err error) error {
		s.mu.Lock()
		s.rollbacks++
		if len(tx.locked) > 0 {
			s.lockLog = append(s.lockLog, tx.locked)
		}
		s.mu.Unlock()
		return err
	}

	if err := fn(&memRepos{store: s, tx: tx}); err != nil {
		return rollback(err)
	}
	if err := ctx.Err(); err != nil {
		return rollback(err)
	}
	if err := s.fault("Commit"); err != nil {
		return rollback(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range tx.accounts {
		s.accounts[id] = a
	}
	for id, t := range tx.transactions {
		s.transactions[id] = t
	}
	s.events = append(s.events, tx.events...)
	if len(tx.locked) > 0 {
		s.lockLog = append(s.lockLog, tx.locked)
	}
	s.commits++
	return nil
}

func (s *memStore) fault(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.faults[name]
}

func (s *memStore) setFault(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[name] = err
}

// test helpers

func (s *memStore) addClient(name string) domain.Client {
	client := domain.Client{ID: uuid.New(), Name: name, Email: strings.ToLower(name) + "@example.com", CreatedAt: time.Now().UTC()}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.ID] = client
	return client
}

func (s *memStore) addAccount(account *domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = *account
}

func (s *memStore) account(id uuid.UUID) domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id]
}

func (s *memStore) transactionByReference(ref uuid.UUID) (domain.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.transactions {
		if t.ReferenceID == ref {
			return t, true
		}
	}
	return domain.Transaction{}, false
}

func (s *memStore) transactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transactions)
}

func (s *memStore) outboxEvents() []domain.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.OutboxEvent(nil), s.events...)
}

func (s *memStore) locks() [][]uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]uuid.UUID(nil), s.lockLog...)
}

// AccountRepository

func (r *memRepos) CreateAccount(_ context.Context, account *domain.Account) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.clients[account.ClientID]; !ok {
		return errors.ErrClientNotFound
	}
	r.store.accounts[account.ID] = *account
	return nil
}

func (r *memRepos) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.tx != nil {
		if a, ok := r.tx.accounts[id]; ok {
			return &a, nil
		}
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	a, ok := r.store.accounts[id]
	if !ok {
		return nil, errors.ErrAccountNotFound
	}
	return &a, nil
}

func (r *memRepos) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if r.store.beforeLock != nil {
		r.store.beforeLock()
	}
	if r.tx != nil {
		r.tx.locked = append(r.tx.locked, id)
	}
	return r.GetAccount(ctx, id)
}

func (r *memRepos) UpdateAccount(_ context.Context, account *domain.Account) error {
	if err := r.store.fault("UpdateAccount"); err != nil {
		return err
	}
	if r.tx != nil {
		r.tx.accounts[account.ID] = *account
		return nil
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.accounts[account.ID]; !ok {
		return errors.ErrAccountNotFound
	}
	r.store.accounts[account.ID] = *account
	return nil
}

func (r *memRepos) ListAccountsByClient(_ context.Context, clientID uuid.UUID) ([]*domain.Account, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	accounts := make([]*domain.Account, 0)
	for _, a := range r.store.accounts {
		if a.ClientID == clientID {
			a := a
			accounts = append(accounts, &a)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].CreatedAt.Before(accounts[j].CreatedAt) })
	return accounts, nil
}

// TransactionRepository

func (r *memRepos) CreateTransaction(_ context.Context, tx *domain.Transaction) error {
	if r.store.beforeCreateTransaction != nil {
		r.store.beforeCreateTransaction()
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, t := range r.store.transactions {
		if t.ReferenceID == tx.ReferenceID {
			return errors.ErrDuplicateTransaction
		}
	}
	r.store.transactions[tx.ID] = *tx
	return nil
}

func (r *memRepos) GetTransactionByReferenceID(_ context.Context, referenceID uuid.UUID) (*domain.Transaction, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, t := range r.store.transactions {
		if t.ReferenceID == referenceID {
			t := t
			return &t, nil
		}
	}
	return nil, nil
}

func (r *memRepos) FinalizeTransaction(ctx context.Context, tx *domain.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.store.fault("FinalizeTransaction"); err != nil {
		return err
	}
	if r.tx != nil {
		if current, ok := r.tx.transactions[tx.ID]; ok && current.IsTerminal() {
			return errors.ErrTransactionFinalized
		}
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	current, ok := r.store.transactions[tx.ID]
	if !ok || current.IsTerminal() {
		return errors.ErrTransactionFinalized
	}
	if r.tx != nil {
		r.tx.transactions[tx.ID] = *tx
		return nil
	}
	r.store.transactions[tx.ID] = *tx
	return nil
}

// OutboxRepository

func (r *memRepos) CreateEvent(_ context.Context, event *domain.OutboxEvent) error {
	if err := r.store.fault("CreateEvent"); err != nil {
		return err
	}
	if r.tx != nil {
		r.tx.events = append(r.tx.events, *event)
		return nil
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.events = append(r.store.events, *event)
	return nil
}

func (r *memRepos) ListUnprocessed(_ context.Context, limit int) ([]*domain.OutboxEvent, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	events := make([]*domain.OutboxEvent, 0, limit)
	for i := range r.store.events {
		if len(events) == limit {
			break
		}
		if r.store.events[i].ProcessedAt == nil {
			e := r.store.events[i]
			events = append(events, &e)
		}
	}
	return events, nil
}

func (r *memRepos) MarkProcessed(_ context.Context, id uuid.UUID, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for i := range r.store.events {
		if r.store.events[i].ID == id {
			r.store.events[i].MarkProcessed(at)
		}
	}
	return nil
}

func (r *memRepos) CountUnprocessed(_ context.Context) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for _, e := range r.store.events {
		if e.ProcessedAt == nil {
			n++
		}
	}
	return n, nil
}

// ClientRepository

func (r *memRepos) CreateClient(_ context.Context, client *domain.Client) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, c := range r.store.clients {
		if strings.EqualFold(c.Email, client.Email) {
			return errors.ErrDuplicateClient
		}
	}
	r.store.clients[client.ID] = *client
	return nil
}

func (r *memRepos) GetClient(_ context.Context, id uuid.UUID) (*domain.Client, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.clients[id]
	if !ok {
		return nil, errors.ErrClientNotFound
	}
	return &c, nil
}
