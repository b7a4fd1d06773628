package repository

import (
	"context"
	"fmt"
)

// schema is the persisted layout. Idempotency-key uniqueness lives here, in
// the database, not in application logic. Applied with CREATE TABLE IF NOT
// EXISTS; migration tooling is deliberately out of scope.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT,
	role TEXT NOT NULL DEFAULT 'user',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS accounts (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id),
	name TEXT NOT NULL,
	currency TEXT NOT NULL DEFAULT 'CREDIT',
	balance BIGINT NOT NULL DEFAULT 0,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	unbounded BOOLEAN NOT NULL DEFAULT FALSE,
	version BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS transactions (
	id UUID PRIMARY KEY,
	idempotency_key TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	description TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	committed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS postings (
	id BIGSERIAL PRIMARY KEY,
	transaction_id UUID NOT NULL REFERENCES transactions(id),
	account_id UUID NOT NULL REFERENCES accounts(id),
	amount BIGINT NOT NULL,
	balance_after BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_postings_account ON postings (account_id, id DESC);
CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts (user_id);
`

// EnsureSchema applies the table definitions. Safe to call repeatedly.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
