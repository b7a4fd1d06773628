package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Account is a wallet within the ledger. System accounts (Treasury, Equity)
// are flagged Unbounded and may carry a negative balance; every other
// account must stay at or above zero. Balance is in minor units and is
// written only by the ledger engine while the account's lock is held.
type Account struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	Currency  string    `json:"currency"`
	Balance   int64     `json:"balance"`
	Active    bool      `json:"active"`
	Unbounded bool      `json:"unbounded"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// Transaction is the header row for one logical transfer. The idempotency
// key is globally unique; the row is created in status "pending" before any
// account lock is taken and becomes terminal before the request returns.
type Transaction struct {
	ID             uuid.UUID  `json:"id"`
	IdempotencyKey string     `json:"idempotency_key"`
	Type           string     `json:"type"`   // e.g. "topup", "purchase"
	Status         string     `json:"status"` // "pending", "committed", "failed"
	Description    string     `json:"description"`
	CreatedAt      time.Time  `json:"created_at"`
	CommittedAt    *time.Time `json:"committed_at,omitempty"`
}

// Posting is one signed entry against one account. Postings belonging to a
// transaction always sum to zero and are never mutated after commit.
type Posting struct {
	ID            int64     `json:"id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	AccountID     uuid.UUID `json:"account_id"`
	Amount        int64     `json:"amount"` // positive = credit, negative = debit
	BalanceAfter  int64     `json:"balance_after"`
	CreatedAt     time.Time `json:"created_at"`
}

// AccountImbalance reports an account whose materialized balance diverged
// from the sum of its postings. Produced by reconciliation, never expected.
type AccountImbalance struct {
	AccountID  uuid.UUID `json:"account_id"`
	Balance    int64     `json:"balance"`
	PostingSum int64     `json:"posting_sum"`
}
