package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PostingRecord mirrors one ledger posting inside a published event.
type PostingRecord struct {
	AccountID uuid.UUID `json:"account_id"`
	Amount    int64     `json:"amount"`
}

// TransactionCommitted is emitted after a ledger transaction becomes durable.
type TransactionCommitted struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	Type          string          `json:"type"`
	Postings      []PostingRecord `json:"postings"`
	CommittedAt   time.Time       `json:"committed_at"`
}

// Publisher delivers committed-transaction events to downstream consumers.
// Publishing is best effort: the ledger never rolls back a committed
// transaction because an event could not be delivered.
type Publisher interface {
	PublishTransactionCommitted(ctx context.Context, event TransactionCommitted) error
	Close() error
}

// NopPublisher drops all events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishTransactionCommitted(context.Context, TransactionCommitted) error {
	return nil
}

func (NopPublisher) Close() error { return nil }
