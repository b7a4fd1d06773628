package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Karunakar20/dino-ventures/internal/domain"
	"github.com/Karunakar20/dino-ventures/internal/events"
	"github.com/Karunakar20/dino-ventures/internal/models"
	"github.com/Karunakar20/dino-ventures/internal/observability"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TransferRequest describes one logical transfer between two accounts.
// Amount is in minor units and must be positive.
type TransferRequest struct {
	SourceAccountID      uuid.UUID
	DestinationAccountID uuid.UUID
	Amount               int64
	IdempotencyKey       string
	Type                 string
	Description          string
}

type PostingResult struct {
	AccountID uuid.UUID `json:"account_id"`
	Amount    int64     `json:"amount"`
}

// TransactionResult is the durable outcome of a transfer. Replays of the
// same idempotency key return a byte-identical result.
type TransactionResult struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	Status        string          `json:"status"`
	Postings      []PostingResult `json:"postings"`
	CommittedAt   time.Time       `json:"committed_at"`
}

// ResultCache is an optional read-through cache for committed results.
// Get returns (nil, nil) on a miss; Set failures are swallowed by the
// implementation since the store remains the source of truth.
type ResultCache interface {
	Get(ctx context.Context, key string) (*TransactionResult, error)
	Set(ctx context.Context, key string, res *TransactionResult)
}

// Config tunes engine concurrency behavior.
type Config struct {
	// DuplicatePolicy decides what happens when a second request arrives
	// while the first holder of the idempotency key is still pending:
	// "wait" polls until the first resolves, "fail" returns
	// ErrDuplicateInFlight immediately.
	DuplicatePolicy string

	// WaitPollInterval is the polling cadence for the wait policy.
	WaitPollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.DuplicatePolicy == "" {
		c.DuplicatePolicy = domain.DuplicatePolicyWait
	}
	if c.WaitPollInterval <= 0 {
		c.WaitPollInterval = 50 * time.Millisecond
	}
	return c
}

// Engine orchestrates validation, locking, balance mutation and commit for
// transfers. It is the sole mutator of account balances and is safe for
// concurrent use.
type Engine struct {
	store     Store
	cache     ResultCache
	publisher events.Publisher
	cfg       Config
}

func NewEngine(store Store, cfg Config) *Engine {
	return &Engine{
		store: store,
		cfg:   cfg.withDefaults(),
	}
}

// WithResultCache attaches an optional committed-result cache.
func (e *Engine) WithResultCache(cache ResultCache) *Engine {
	e.cache = cache
	return e
}

// WithPublisher attaches an optional post-commit event publisher.
func (e *Engine) WithPublisher(p events.Publisher) *Engine {
	e.publisher = p
	return e
}

// Execute processes one transfer request to a terminal outcome. Calling it
// again with the same idempotency key yields the original result and causes
// no second balance mutation.
func (e *Engine) Execute(ctx context.Context, req TransferRequest) (*TransactionResult, error) {
	if err := validateRequest(req); err != nil {
		observability.IncrementTransfer(req.Type, "rejected")
		return nil, err
	}

	// Committed-result fast path. Pure read; never holds locks.
	if e.cache != nil {
		if res, err := e.cache.Get(ctx, req.IdempotencyKey); err == nil && res != nil {
			observability.IncrementIdempotencyEvent("replay_cache")
			return res, nil
		}
	}

	// Existence pre-check before any transaction row exists, so unknown
	// accounts are rejected without leaving state behind. Re-verified under
	// lock below.
	if err := e.checkAccounts(ctx, req.SourceAccountID, req.DestinationAccountID); err != nil {
		observability.IncrementTransfer(req.Type, "rejected")
		return nil, err
	}

	txID, replay, err := e.resolveIdempotency(ctx, req)
	if err != nil {
		return nil, err
	}
	if replay != nil {
		return replay, nil
	}

	result, err := e.commitTransfer(ctx, txID, req)
	if err != nil {
		e.failTransaction(ctx, txID)
		observability.IncrementTransfer(req.Type, "failed")
		return nil, classifyUnitOfWorkError(err)
	}

	observability.IncrementTransfer(req.Type, "committed")
	e.cacheResult(ctx, req.IdempotencyKey, result)
	e.publishCommitted(ctx, result, req.Type)
	return result, nil
}

func validateRequest(req TransferRequest) error {
	if req.Amount <= 0 {
		return ErrInvalidAmount
	}
	if req.SourceAccountID == req.DestinationAccountID {
		return ErrInvalidAccounts
	}
	if req.IdempotencyKey == "" {
		return ErrInvalidReference
	}
	if !domain.ValidTxType(req.Type) {
		return ErrInvalidType
	}
	return nil
}

func (e *Engine) checkAccounts(ctx context.Context, ids ...uuid.UUID) error {
	for _, id := range ids {
		account, err := e.store.GetAccount(ctx, id)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return ErrAccountNotFound
			}
			return storageFailure(err)
		}
		if !account.Active {
			return ErrAccountNotFound
		}
	}
	return nil
}

// resolveIdempotency settles ownership of the idempotency key. It returns
// either the transaction id this request may process under, or the stored
// result of an earlier committed attempt.
func (e *Engine) resolveIdempotency(ctx context.Context, req TransferRequest) (uuid.UUID, *TransactionResult, error) {
	for {
		txn, err := e.store.GetTransactionByKey(ctx, req.IdempotencyKey)
		if errors.Is(err, ErrNoTransaction) {
			id := uuid.New()
			createErr := e.store.CreatePendingTransaction(ctx, &models.Transaction{
				ID:             id,
				IdempotencyKey: req.IdempotencyKey,
				Type:           req.Type,
				Status:         domain.TxStatusPending,
				Description:    req.Description,
			})
			if createErr == nil {
				return id, nil, nil
			}
			if errors.Is(createErr, ErrDuplicateKey) {
				// Lost the insert race; observe the winner on the next pass.
				continue
			}
			return uuid.Nil, nil, storageFailure(createErr)
		}
		if err != nil {
			return uuid.Nil, nil, storageFailure(err)
		}

		switch txn.Status {
		case domain.TxStatusCommitted:
			res, err := e.store.GetTransactionResult(ctx, txn.ID)
			if err != nil {
				return uuid.Nil, nil, storageFailure(err)
			}
			observability.IncrementIdempotencyEvent("replay")
			e.cacheResult(ctx, req.IdempotencyKey, res)
			return uuid.Nil, res, nil

		case domain.TxStatusFailed:
			// Earlier attempt failed: retryable. Reuse the transaction
			// identity so the key stays unique.
			resetErr := e.store.ResetFailedTransaction(ctx, txn.ID)
			if resetErr == nil {
				observability.IncrementIdempotencyEvent("retry_reuse")
				return txn.ID, nil, nil
			}
			if errors.Is(resetErr, ErrDuplicateInFlight) {
				// A concurrent retry claimed the row first.
				continue
			}
			return uuid.Nil, nil, storageFailure(resetErr)

		default: // pending
			if e.cfg.DuplicatePolicy == domain.DuplicatePolicyFail {
				observability.IncrementIdempotencyEvent("duplicate_rejected")
				return uuid.Nil, nil, ErrDuplicateInFlight
			}
			if err := e.waitForTerminal(ctx, req.IdempotencyKey); err != nil {
				return uuid.Nil, nil, err
			}
			observability.IncrementIdempotencyEvent("duplicate_waited")
		}
	}
}

// waitForTerminal blocks until the transaction owning the key leaves
// pending status or the context ends.
func (e *Engine) waitForTerminal(ctx context.Context, key string) error {
	ticker := time.NewTicker(e.cfg.WaitPollInterval)
	defer ticker.Stop()
	for {
		txn, err := e.store.GetTransactionByKey(ctx, key)
		if err != nil && !errors.Is(err, ErrNoTransaction) {
			return storageFailure(err)
		}
		if err == nil && txn.Status != domain.TxStatusPending {
			return nil
		}
		if errors.Is(err, ErrNoTransaction) {
			// Row vanished (should not happen; rows are never deleted).
			// Let the resolve loop re-evaluate.
			return nil
		}
		select {
		case <-ctx.Done():
			return storageFailure(ctx.Err())
		case <-ticker.C:
		}
	}
}

// commitTransfer runs the lock-held atomic unit of work: re-read balances,
// enforce policy, write both postings, move both balances, commit the
// header. Everything inside becomes durable together or not at all.
func (e *Engine) commitTransfer(ctx context.Context, txID uuid.UUID, req TransferRequest) (*TransactionResult, error) {
	var result *TransactionResult
	start := time.Now()
	err := e.store.InTx(ctx, func(uow UnitOfWork) error {
		ordered := CanonicalLockOrder(req.SourceAccountID, req.DestinationAccountID)
		accounts, err := uow.LockAccounts(ctx, ordered)
		if err != nil {
			return err
		}

		source, ok := accounts[req.SourceAccountID]
		if !ok || !source.Active {
			return ErrAccountNotFound
		}
		destination, ok := accounts[req.DestinationAccountID]
		if !ok || !destination.Active {
			return ErrAccountNotFound
		}

		if !source.Unbounded && source.Balance < req.Amount {
			return ErrInsufficientFunds
		}

		sourceBalance := source.Balance - req.Amount
		destinationBalance := destination.Balance + req.Amount

		debit := &models.Posting{
			TransactionID: txID,
			AccountID:     source.ID,
			Amount:        -req.Amount,
			BalanceAfter:  sourceBalance,
		}
		credit := &models.Posting{
			TransactionID: txID,
			AccountID:     destination.ID,
			Amount:        req.Amount,
			BalanceAfter:  destinationBalance,
		}
		if err := uow.InsertPosting(ctx, debit); err != nil {
			return err
		}
		if err := uow.InsertPosting(ctx, credit); err != nil {
			return err
		}

		if err := uow.UpdateAccountBalance(ctx, source.ID, sourceBalance, source.Version); err != nil {
			return err
		}
		if err := uow.UpdateAccountBalance(ctx, destination.ID, destinationBalance, destination.Version); err != nil {
			return err
		}

		committedAt, err := uow.CommitTransaction(ctx, txID)
		if err != nil {
			return err
		}

		result = &TransactionResult{
			TransactionID: txID,
			Status:        domain.TxStatusCommitted,
			Postings: []PostingResult{
				{AccountID: source.ID, Amount: -req.Amount},
				{AccountID: destination.ID, Amount: req.Amount},
			},
			CommittedAt: committedAt,
		}
		return nil
	})
	observability.ObserveLockWait(time.Since(start))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// failTransaction records the terminal failed status so idempotent retries
// resolve deterministically. Best effort; runs detached from the caller's
// cancellation.
func (e *Engine) failTransaction(ctx context.Context, txID uuid.UUID) {
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.store.MarkTransactionFailed(failCtx, txID); err != nil {
		zap.L().Error("mark transaction failed", zap.Error(err), zap.String("transaction_id", txID.String()))
	}
}

func (e *Engine) cacheResult(ctx context.Context, key string, res *TransactionResult) {
	if e.cache == nil || res == nil {
		return
	}
	e.cache.Set(ctx, key, res)
}

func (e *Engine) publishCommitted(ctx context.Context, res *TransactionResult, txType string) {
	if e.publisher == nil {
		return
	}
	event := events.TransactionCommitted{
		TransactionID: res.TransactionID,
		Type:          txType,
		CommittedAt:   res.CommittedAt,
	}
	for _, p := range res.Postings {
		event.Postings = append(event.Postings, events.PostingRecord{
			AccountID: p.AccountID,
			Amount:    p.Amount,
		})
	}
	if err := e.publisher.PublishTransactionCommitted(ctx, event); err != nil {
		zap.L().Warn("publish committed transaction", zap.Error(err), zap.String("transaction_id", res.TransactionID.String()))
	}
}

func classifyUnitOfWorkError(err error) error {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return ErrInsufficientFunds
	case errors.Is(err, ErrAccountNotFound):
		return ErrAccountNotFound
	case errors.Is(err, ErrLockTimeout):
		return ErrLockTimeout
	case errors.Is(err, ErrStorage):
		return err
	default:
		return storageFailure(err)
	}
}

func storageFailure(err error) error {
	return fmt.Errorf("%w: %w", ErrStorage, err)
}
