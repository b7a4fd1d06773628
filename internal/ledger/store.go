package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/Karunakar20/dino-ventures/internal/models"
	"github.com/google/uuid"
)

// Store is the durability contract the engine is written against. Two
// implementations exist: the pgx-backed repository and the in-memory store
// used by tests. The engine receives a Store explicitly; it never reaches
// for ambient global state.
type Store interface {
	// GetAccount reads one account without locking it, or returns
	// ErrAccountNotFound. Used for the pre-lock existence check; the
	// authoritative read happens again under lock.
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)

	// GetTransactionByKey returns the transaction holding the idempotency
	// key, or ErrNoTransaction.
	GetTransactionByKey(ctx context.Context, key string) (*models.Transaction, error)

	// GetTransactionResult rebuilds the stored result of a transaction from
	// its header and postings. Pure read.
	GetTransactionResult(ctx context.Context, txID uuid.UUID) (*TransactionResult, error)

	// CreatePendingTransaction inserts a new transaction row in pending
	// status. The idempotency-key uniqueness constraint is enforced here by
	// the store; a violation surfaces as ErrDuplicateKey.
	CreatePendingTransaction(ctx context.Context, tx *models.Transaction) error

	// ResetFailedTransaction moves a failed transaction back to pending so
	// a retry can reuse its identity. Returns ErrDuplicateInFlight when the
	// row is no longer in failed status (a concurrent retry won the race).
	ResetFailedTransaction(ctx context.Context, txID uuid.UUID) error

	// MarkTransactionFailed transitions a pending transaction to failed.
	MarkTransactionFailed(ctx context.Context, txID uuid.UUID) error

	// InTx runs fn inside one atomic unit of work. Every write made through
	// the UnitOfWork becomes visible together on commit or not at all. All
	// locks taken inside are released unconditionally when fn returns.
	InTx(ctx context.Context, fn func(uow UnitOfWork) error) error
}

// UnitOfWork exposes the writes permitted inside an atomic ledger
// transaction. Mutating an account balance outside a UnitOfWork is not
// possible through this package.
type UnitOfWork interface {
	// LockAccounts acquires exclusive holds on the given accounts in the
	// exact order supplied and returns current rows keyed by id. Callers
	// must pass ids through CanonicalLockOrder first. Missing accounts are
	// simply absent from the result.
	LockAccounts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Account, error)

	// InsertPosting appends one immutable posting row.
	InsertPosting(ctx context.Context, p *models.Posting) error

	// UpdateAccountBalance writes a new balance guarded by the version
	// token read under lock.
	UpdateAccountBalance(ctx context.Context, accountID uuid.UUID, balance, version int64) error

	// CommitTransaction transitions the header to committed and returns the
	// commit timestamp.
	CommitTransaction(ctx context.Context, txID uuid.UUID) (time.Time, error)
}

// CanonicalLockOrder returns the account ids sorted ascending by identity.
// Any two transfers sharing accounts acquire locks in the same relative
// order, which rules out lock-order deadlock by construction. This ordering
// must never be bypassed, even for single-account operations.
func CanonicalLockOrder(ids ...uuid.UUID) []uuid.UUID {
	ordered := make([]uuid.UUID, len(ids))
	copy(ordered, ids)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].String() < ordered[j].String()
	})
	return ordered
}
