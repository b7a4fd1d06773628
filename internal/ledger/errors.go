package ledger

import "errors"

// Terminal errors returned by Execute. None of them is retried by the
// engine itself; callers may retry with the same idempotency key safely.
var (
	ErrInvalidAmount      = errors.New("amount must be a positive integer")
	ErrInvalidAccounts    = errors.New("source and destination accounts must differ")
	ErrInvalidReference   = errors.New("idempotency key is required")
	ErrInvalidType        = errors.New("unknown transaction type")
	ErrAccountNotFound    = errors.New("account not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrDuplicateInFlight  = errors.New("identical request already in flight")
	ErrStorage            = errors.New("storage failure")
	ErrLockTimeout        = errors.New("account lock acquisition timed out")
)

// Store-level sentinels. Stores translate their native errors into these so
// the engine stays storage-agnostic.
var (
	ErrNoTransaction = errors.New("transaction not found")
	ErrDuplicateKey  = errors.New("idempotency key already exists")
)

// IsInputError reports whether err was rejected before any mutation.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidAccounts) ||
		errors.Is(err, ErrInvalidReference) ||
		errors.Is(err, ErrInvalidType) ||
		errors.Is(err, ErrAccountNotFound)
}
