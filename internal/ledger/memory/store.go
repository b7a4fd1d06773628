// Package memory provides an in-process implementation of the ledger store.
// It backs the engine and service tests and doubles as a reference
// implementation of the lock/ordering protocol: one channel-based lock per
// account, acquired in the canonical order, released in reverse when the
// unit of work ends.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Karunakar20/dino-ventures/internal/domain"
	"github.com/Karunakar20/dino-ventures/internal/ledger"
	"github.com/Karunakar20/dino-ventures/internal/models"
	"github.com/google/uuid"
)

const defaultLockTimeout = 5 * time.Second

type Store struct {
	mu           sync.Mutex
	users        map[uuid.UUID]models.User
	accounts     map[uuid.UUID]*models.Account
	accountOrder []uuid.UUID
	txns         map[uuid.UUID]*models.Transaction
	byKey        map[string]uuid.UUID
	postings     []models.Posting
	nextPosting  int64

	locks       map[uuid.UUID]chan struct{}
	lockTimeout time.Duration
}

func NewStore() *Store {
	return &Store{
		users:       make(map[uuid.UUID]models.User),
		accounts:    make(map[uuid.UUID]*models.Account),
		txns:        make(map[uuid.UUID]*models.Transaction),
		byKey:       make(map[string]uuid.UUID),
		locks:       make(map[uuid.UUID]chan struct{}),
		lockTimeout: defaultLockTimeout,
	}
}

// WithLockTimeout overrides how long a unit of work may wait on one
// account lock before aborting.
func (s *Store) WithLockTimeout(d time.Duration) *Store {
	if d > 0 {
		s.lockTimeout = d
	}
	return s
}

// --- provisioning -----------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.ID] = *user
	return nil
}

func (s *Store) CreateAccount(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	clone := *account
	s.accounts[account.ID] = &clone
	s.accountOrder = append(s.accountOrder, account.ID)
	return nil
}

// --- ledger.Store -----------------------------------------------------------

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	clone := *account
	return &clone, nil
}

func (s *Store) GetTransactionByKey(ctx context.Context, key string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[key]
	if !ok {
		return nil, ledger.ErrNoTransaction
	}
	clone := *s.txns[id]
	return &clone, nil
}

func (s *Store) GetTransactionResult(ctx context.Context, txID uuid.UUID) (*ledger.TransactionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.txns[txID]
	if !ok {
		return nil, ledger.ErrNoTransaction
	}
	res := &ledger.TransactionResult{
		TransactionID: txn.ID,
		Status:        txn.Status,
	}
	if txn.CommittedAt != nil {
		res.CommittedAt = *txn.CommittedAt
	}
	for _, p := range s.postings {
		if p.TransactionID == txID {
			res.Postings = append(res.Postings, ledger.PostingResult{
				AccountID: p.AccountID,
				Amount:    p.Amount,
			})
		}
	}
	return res, nil
}

func (s *Store) CreatePendingTransaction(ctx context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byKey[tx.IdempotencyKey]; exists {
		return ledger.ErrDuplicateKey
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	clone := *tx
	s.txns[tx.ID] = &clone
	s.byKey[tx.IdempotencyKey] = tx.ID
	return nil
}

func (s *Store) ResetFailedTransaction(ctx context.Context, txID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.txns[txID]
	if !ok {
		return ledger.ErrNoTransaction
	}
	if txn.Status != domain.TxStatusFailed {
		return ledger.ErrDuplicateInFlight
	}
	txn.Status = domain.TxStatusPending
	return nil
}

func (s *Store) MarkTransactionFailed(ctx context.Context, txID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.txns[txID]
	if !ok {
		return ledger.ErrNoTransaction
	}
	if txn.Status == domain.TxStatusPending {
		txn.Status = domain.TxStatusFailed
	}
	return nil
}

// InTx runs fn with a staged unit of work. Writes are buffered and applied
// atomically under the store mutex on success, discarded on failure. Locks
// taken inside fn are released in reverse order either way.
func (s *Store) InTx(ctx context.Context, fn func(uow ledger.UnitOfWork) error) error {
	uow := &unitOfWork{
		store:    s,
		balances: make(map[uuid.UUID]balanceWrite),
	}
	defer uow.releaseLocks()

	if err := fn(uow); err != nil {
		return err
	}
	return uow.apply()
}

// --- lock table -------------------------------------------------------------

func (s *Store) lockChan(id uuid.UUID) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[id] = ch
	}
	return ch
}

func (s *Store) acquire(ctx context.Context, id uuid.UUID) error {
	ch := s.lockChan(id)
	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ledger.ErrLockTimeout, ctx.Err())
	case <-timer.C:
		return ledger.ErrLockTimeout
	}
}

func (s *Store) release(id uuid.UUID) {
	<-s.lockChan(id)
}

// --- unit of work -----------------------------------------------------------

type balanceWrite struct {
	balance int64
	version int64
}

type commitWrite struct {
	txID uuid.UUID
	at   time.Time
}

type unitOfWork struct {
	store    *Store
	held     []uuid.UUID
	balances map[uuid.UUID]balanceWrite
	postings []models.Posting
	commit   *commitWrite
}

func (u *unitOfWork) LockAccounts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Account, error) {
	for _, id := range ids {
		if err := u.store.acquire(ctx, id); err != nil {
			return nil, err
		}
		u.held = append(u.held, id)
	}

	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	out := make(map[uuid.UUID]*models.Account, len(ids))
	for _, id := range ids {
		if account, ok := u.store.accounts[id]; ok {
			clone := *account
			out[id] = &clone
		}
	}
	return out, nil
}

func (u *unitOfWork) InsertPosting(ctx context.Context, p *models.Posting) error {
	u.postings = append(u.postings, *p)
	return nil
}

func (u *unitOfWork) UpdateAccountBalance(ctx context.Context, accountID uuid.UUID, balance, version int64) error {
	u.balances[accountID] = balanceWrite{balance: balance, version: version}
	return nil
}

func (u *unitOfWork) CommitTransaction(ctx context.Context, txID uuid.UUID) (time.Time, error) {
	now := time.Now().UTC()
	u.commit = &commitWrite{txID: txID, at: now}
	return now, nil
}

func (u *unitOfWork) apply() error {
	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, w := range u.balances {
		account, ok := s.accounts[id]
		if !ok {
			return ledger.ErrAccountNotFound
		}
		if account.Version != w.version {
			return fmt.Errorf("account %s version moved under lock", id)
		}
	}

	for id, w := range u.balances {
		account := s.accounts[id]
		account.Balance = w.balance
		account.Version++
	}

	now := time.Now().UTC()
	for _, p := range u.postings {
		s.nextPosting++
		p.ID = s.nextPosting
		p.CreatedAt = now
		s.postings = append(s.postings, p)
	}

	if u.commit != nil {
		txn, ok := s.txns[u.commit.txID]
		if !ok {
			return ledger.ErrNoTransaction
		}
		at := u.commit.at
		txn.Status = domain.TxStatusCommitted
		txn.CommittedAt = &at
	}
	return nil
}

func (u *unitOfWork) releaseLocks() {
	for i := len(u.held) - 1; i >= 0; i-- {
		u.store.release(u.held[i])
	}
	u.held = nil
}

// --- read side (balance queries, statements, reconciliation) ----------------

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, ledger.ErrUserNotFound
	}
	return &user, nil
}

func (s *Store) GetUserAccounts(ctx context.Context, userID uuid.UUID) ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return nil, ledger.ErrUserNotFound
	}
	var out []models.Account
	for _, id := range s.accountOrder {
		if account := s.accounts[id]; account.UserID == userID {
			out = append(out, *account)
		}
	}
	return out, nil
}

// GetPrimaryAccount returns the user's oldest account.
func (s *Store) GetPrimaryAccount(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	accounts, err := s.GetUserAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, ledger.ErrAccountNotFound
	}
	clone := accounts[0]
	return &clone, nil
}

func (s *Store) GetSystemAccount(ctx context.Context, name string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.accountOrder {
		if account := s.accounts[id]; account.Name == name && account.Unbounded {
			clone := *account
			return &clone, nil
		}
	}
	return nil, ledger.ErrAccountNotFound
}

func (s *Store) GetAccountPostings(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]models.Posting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []models.Posting
	for i := len(s.postings) - 1; i >= 0; i-- {
		if s.postings[i].AccountID == accountID {
			matched = append(matched, s.postings[i])
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *Store) PostingNet(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var net int64
	for _, p := range s.postings {
		net += p.Amount
	}
	return net, nil
}

func (s *Store) AccountImbalances(ctx context.Context) ([]models.AccountImbalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sums := make(map[uuid.UUID]int64)
	for _, p := range s.postings {
		sums[p.AccountID] += p.Amount
	}
	var out []models.AccountImbalance
	for _, id := range s.accountOrder {
		account := s.accounts[id]
		if account.Balance != sums[id] {
			out = append(out, models.AccountImbalance{
				AccountID:  id,
				Balance:    account.Balance,
				PostingSum: sums[id],
			})
		}
	}
	return out, nil
}
