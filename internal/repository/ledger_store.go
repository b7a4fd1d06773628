package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Karunakar20/dino-ventures/internal/ledger"
	"github.com/Karunakar20/dino-ventures/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the ledger path cares about.
const (
	codeUniqueViolation  = "23505"
	codeLockNotAvailable = "55P03"
)

func (r *Repository) GetTransactionByKey(ctx context.Context, key string) (*models.Transaction, error) {
	query := `
		SELECT id, idempotency_key, type, status, description, created_at, committed_at
		FROM transactions WHERE idempotency_key = $1`
	txn := &models.Transaction{}
	err := r.db.QueryRow(ctx, query, key).Scan(
		&txn.ID, &txn.IdempotencyKey, &txn.Type, &txn.Status,
		&txn.Description, &txn.CreatedAt, &txn.CommittedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrNoTransaction
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction by key: %w", err)
	}
	return txn, nil
}

func (r *Repository) GetTransactionResult(ctx context.Context, txID uuid.UUID) (*ledger.TransactionResult, error) {
	res := &ledger.TransactionResult{TransactionID: txID}
	var committedAt *time.Time
	err := r.db.QueryRow(ctx,
		`SELECT status, committed_at FROM transactions WHERE id = $1`, txID,
	).Scan(&res.Status, &committedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrNoTransaction
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if committedAt != nil {
		res.CommittedAt = *committedAt
	}

	rows, err := r.db.Query(ctx,
		`SELECT account_id, amount FROM postings WHERE transaction_id = $1 ORDER BY id`, txID)
	if err != nil {
		return nil, fmt.Errorf("get transaction postings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p ledger.PostingResult
		if err := rows.Scan(&p.AccountID, &p.Amount); err != nil {
			return nil, fmt.Errorf("scan posting: %w", err)
		}
		res.Postings = append(res.Postings, p)
	}
	return res, rows.Err()
}

func (r *Repository) CreatePendingTransaction(ctx context.Context, tx *models.Transaction) error {
	query := `
		INSERT INTO transactions (id, idempotency_key, type, status, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`
	err := r.db.QueryRow(ctx, query,
		tx.ID, tx.IdempotencyKey, tx.Type, tx.Status, tx.Description,
	).Scan(&tx.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
			return ledger.ErrDuplicateKey
		}
		return fmt.Errorf("create pending transaction: %w", err)
	}
	return nil
}

func (r *Repository) ResetFailedTransaction(ctx context.Context, txID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE transactions SET status = 'pending' WHERE id = $1 AND status = 'failed'`, txID)
	if err != nil {
		return fmt.Errorf("reset failed transaction: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ledger.ErrDuplicateInFlight
	}
	return nil
}

func (r *Repository) MarkTransactionFailed(ctx context.Context, txID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE transactions SET status = 'failed' WHERE id = $1 AND status = 'pending'`, txID)
	if err != nil {
		return fmt.Errorf("mark transaction failed: %w", err)
	}
	return nil
}

// InTx executes fn inside one database transaction with a session-scoped
// row-lock timeout. Rollback on any error; locks are released with the
// transaction either way.
func (r *Repository) InTx(ctx context.Context, fn func(uow ledger.UnitOfWork) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, timeout); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}

	if err := fn(&pgUnitOfWork{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type pgUnitOfWork struct {
	tx pgx.Tx
}

// LockAccounts takes row locks one by one in the order supplied, which the
// engine guarantees is the canonical ascending order. Missing rows are
// omitted from the result rather than treated as errors here.
func (u *pgUnitOfWork) LockAccounts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Account, error) {
	out := make(map[uuid.UUID]*models.Account, len(ids))
	for _, id := range ids {
		query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
		account, err := scanAccount(u.tx.QueryRow(ctx, query, id))
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, translateLockError(fmt.Errorf("lock account %s: %w", id, err))
		}
		out[id] = account
	}
	return out, nil
}

func (u *pgUnitOfWork) InsertPosting(ctx context.Context, p *models.Posting) error {
	query := `
		INSERT INTO postings (transaction_id, account_id, amount, balance_after)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	err := u.tx.QueryRow(ctx, query, p.TransactionID, p.AccountID, p.Amount, p.BalanceAfter).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert posting: %w", err)
	}
	return nil
}

func (u *pgUnitOfWork) UpdateAccountBalance(ctx context.Context, accountID uuid.UUID, balance, version int64) error {
	tag, err := u.tx.Exec(ctx,
		`UPDATE accounts SET balance = $1, version = version + 1 WHERE id = $2 AND version = $3`,
		balance, accountID, version)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return requireExactlyOne(tag.RowsAffected(), "update balance")
}

func (u *pgUnitOfWork) CommitTransaction(ctx context.Context, txID uuid.UUID) (time.Time, error) {
	var committedAt time.Time
	err := u.tx.QueryRow(ctx,
		`UPDATE transactions SET status = 'committed', committed_at = NOW()
		 WHERE id = $1 AND status = 'pending'
		 RETURNING committed_at`, txID).Scan(&committedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, fmt.Errorf("commit transaction: transaction %s not pending", txID)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("commit transaction: %w", err)
	}
	return committedAt, nil
}

func requireExactlyOne(rows int64, operation string) error {
	if rows != 1 {
		return fmt.Errorf("%s affected %d rows", operation, rows)
	}
	return nil
}

func translateLockError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeLockNotAvailable {
		return fmt.Errorf("%w: %w", ledger.ErrLockTimeout, err)
	}
	return err
}
