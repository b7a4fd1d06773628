package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Karunakar20/dino-ventures/internal/domain"
	"github.com/Karunakar20/dino-ventures/internal/ledger"
	"github.com/Karunakar20/dino-ventures/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccount(t *testing.T, s *Store) *models.Account {
	t.Helper()
	account := &models.Account{
		ID:       uuid.New(),
		UserID:   uuid.New(),
		Name:     "Wallet",
		Currency: domain.DefaultCurrency,
		Active:   true,
	}
	require.NoError(t, s.CreateAccount(context.Background(), account))
	return account
}

func TestLockTimeoutWhileHeld(t *testing.T) {
	s := NewStore().WithLockTimeout(50 * time.Millisecond)
	ctx := context.Background()
	account := newAccount(t, s)

	holding := make(chan struct{})
	released := make(chan struct{})
	go func() {
		_ = s.InTx(ctx, func(uow ledger.UnitOfWork) error {
			_, err := uow.LockAccounts(ctx, []uuid.UUID{account.ID})
			if err != nil {
				return err
			}
			close(holding)
			<-released
			return nil
		})
	}()
	<-holding

	err := s.InTx(ctx, func(uow ledger.UnitOfWork) error {
		_, err := uow.LockAccounts(ctx, []uuid.UUID{account.ID})
		return err
	})
	assert.ErrorIs(t, err, ledger.ErrLockTimeout)
	close(released)
}

func TestLocksReleasedAfterError(t *testing.T) {
	s := NewStore().WithLockTimeout(100 * time.Millisecond)
	ctx := context.Background()
	account := newAccount(t, s)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(uow ledger.UnitOfWork) error {
		if _, err := uow.LockAccounts(ctx, []uuid.UUID{account.ID}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// The failed unit of work must not leave the lock behind.
	err = s.InTx(ctx, func(uow ledger.UnitOfWork) error {
		_, err := uow.LockAccounts(ctx, []uuid.UUID{account.ID})
		return err
	})
	assert.NoError(t, err)
}

func TestFailedUnitOfWorkDiscardsWrites(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	account := newAccount(t, s)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(uow ledger.UnitOfWork) error {
		if _, err := uow.LockAccounts(ctx, []uuid.UUID{account.ID}); err != nil {
			return err
		}
		if err := uow.UpdateAccountBalance(ctx, account.ID, 500, account.Version); err != nil {
			return err
		}
		if err := uow.InsertPosting(ctx, &models.Posting{
			TransactionID: uuid.New(),
			AccountID:     account.ID,
			Amount:        500,
			BalanceAfter:  500,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Balance)

	postings, err := s.GetAccountPostings(ctx, account.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, postings)
}

func TestVersionConflictRejectsApply(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	account := newAccount(t, s)

	err := s.InTx(ctx, func(uow ledger.UnitOfWork) error {
		if _, err := uow.LockAccounts(ctx, []uuid.UUID{account.ID}); err != nil {
			return err
		}
		// Stale version token.
		return uow.UpdateAccountBalance(ctx, account.ID, 100, account.Version+7)
	})
	assert.Error(t, err)

	got, err := s.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Balance)
}

func TestCreatePendingTransactionEnforcesKeyUniqueness(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	first := &models.Transaction{
		ID:             uuid.New(),
		IdempotencyKey: "dup-key",
		Type:           domain.TxTypeTopUp,
		Status:         domain.TxStatusPending,
	}
	require.NoError(t, s.CreatePendingTransaction(ctx, first))

	second := &models.Transaction{
		ID:             uuid.New(),
		IdempotencyKey: "dup-key",
		Type:           domain.TxTypeTopUp,
		Status:         domain.TxStatusPending,
	}
	err := s.CreatePendingTransaction(ctx, second)
	assert.ErrorIs(t, err, ledger.ErrDuplicateKey)
}

func TestResetFailedTransactionRequiresFailedStatus(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	txn := &models.Transaction{
		ID:             uuid.New(),
		IdempotencyKey: "reset-key",
		Type:           domain.TxTypeTopUp,
		Status:         domain.TxStatusPending,
	}
	require.NoError(t, s.CreatePendingTransaction(ctx, txn))

	// Still pending: a concurrent holder owns it.
	assert.ErrorIs(t, s.ResetFailedTransaction(ctx, txn.ID), ledger.ErrDuplicateInFlight)

	require.NoError(t, s.MarkTransactionFailed(ctx, txn.ID))
	assert.NoError(t, s.ResetFailedTransaction(ctx, txn.ID))

	got, err := s.GetTransactionByKey(ctx, "reset-key")
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusPending, got.Status)
}

func TestGetAccountPostingsPaginatesNewestFirst(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	account := newAccount(t, s)

	for i := int64(1); i <= 5; i++ {
		amount := i
		err := s.InTx(ctx, func(uow ledger.UnitOfWork) error {
			if _, err := uow.LockAccounts(ctx, []uuid.UUID{account.ID}); err != nil {
				return err
			}
			return uow.InsertPosting(ctx, &models.Posting{
				TransactionID: uuid.New(),
				AccountID:     account.ID,
				Amount:        amount,
				BalanceAfter:  amount,
			})
		})
		require.NoError(t, err)
	}

	page, err := s.GetAccountPostings(ctx, account.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(5), page[0].Amount)
	assert.Equal(t, int64(4), page[1].Amount)

	page, err = s.GetAccountPostings(ctx, account.ID, 2, 4)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, int64(1), page[0].Amount)

	page, err = s.GetAccountPostings(ctx, account.ID, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}
