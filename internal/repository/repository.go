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
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the pgx-backed durable store. It implements both the
// ledger.Store contract and the read side used by the wallet service.
type Repository struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db, lockTimeout: 5 * time.Second}
}

// WithLockTimeout bounds how long a unit of work may wait on a row lock.
func (r *Repository) WithLockTimeout(d time.Duration) *Repository {
	if d > 0 {
		r.lockTimeout = d
	}
	return r
}

// --- provisioning -----------------------------------------------------------

func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (id, username, email, role) VALUES ($1, $2, $3, $4) RETURNING created_at`
	err := r.db.QueryRow(ctx, query, user.ID, user.Username, user.Email, user.Role).Scan(&user.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *Repository) CreateAccount(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (id, user_id, name, currency, balance, active, unbounded)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`
	err := r.db.QueryRow(ctx, query,
		account.ID, account.UserID, account.Name, account.Currency,
		account.Balance, account.Active, account.Unbounded,
	).Scan(&account.CreatedAt)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// --- read side --------------------------------------------------------------

const accountColumns = `id, user_id, name, currency, balance, active, unbounded, version, created_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	account := &models.Account{}
	err := row.Scan(
		&account.ID, &account.UserID, &account.Name, &account.Currency,
		&account.Balance, &account.Active, &account.Unbounded,
		&account.Version, &account.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// GetAccount reads one account without locking it.
func (r *Repository) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	account, err := scanAccount(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	query := `SELECT id, username, COALESCE(email, ''), role, created_at FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, id).Scan(&user.ID, &user.Username, &user.Email, &user.Role, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (r *Repository) GetUserAccounts(ctx context.Context, userID uuid.UUID) ([]models.Account, error) {
	if _, err := r.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 ORDER BY created_at, id`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("get user accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

// GetPrimaryAccount returns the user's oldest account, the destination for
// top-ups and the source for spends.
func (r *Repository) GetPrimaryAccount(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 ORDER BY created_at, id LIMIT 1`
	account, err := scanAccount(r.db.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get primary account: %w", err)
	}
	return account, nil
}

func (r *Repository) GetSystemAccount(ctx context.Context, name string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE name = $1 AND unbounded LIMIT 1`
	account, err := scanAccount(r.db.QueryRow(ctx, query, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get system account %q: %w", name, err)
	}
	return account, nil
}

func (r *Repository) GetAccountPostings(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]models.Posting, error) {
	query := `
		SELECT id, transaction_id, account_id, amount, balance_after, created_at
		FROM postings
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("get postings: %w", err)
	}
	defer rows.Close()

	var postings []models.Posting
	for rows.Next() {
		var p models.Posting
		if err := rows.Scan(&p.ID, &p.TransactionID, &p.AccountID, &p.Amount, &p.BalanceAfter, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan posting: %w", err)
		}
		postings = append(postings, p)
	}
	return postings, rows.Err()
}

// --- reconciliation queries -------------------------------------------------

// PostingNet returns the sum of all posting amounts. Always zero for a
// balanced ledger.
func (r *Repository) PostingNet(ctx context.Context) (int64, error) {
	var net int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM postings`).Scan(&net)
	if err != nil {
		return 0, fmt.Errorf("posting net: %w", err)
	}
	return net, nil
}

// AccountImbalances lists accounts whose materialized balance disagrees
// with the sum of their postings.
func (r *Repository) AccountImbalances(ctx context.Context) ([]models.AccountImbalance, error) {
	query := `
		SELECT a.id, a.balance, COALESCE(SUM(p.amount), 0) AS posting_sum
		FROM accounts a
		LEFT JOIN postings p ON p.account_id = a.id
		GROUP BY a.id, a.balance
		HAVING a.balance <> COALESCE(SUM(p.amount), 0)`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("account imbalances: %w", err)
	}
	defer rows.Close()

	var out []models.AccountImbalance
	for rows.Next() {
		var im models.AccountImbalance
		if err := rows.Scan(&im.AccountID, &im.Balance, &im.PostingSum); err != nil {
			return nil, fmt.Errorf("scan imbalance: %w", err)
		}
		out = append(out, im)
	}
	return out, rows.Err()
}
