package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/Karunakar20/dino-ventures/internal/domain"
	"github.com/Karunakar20/dino-ventures/internal/events"
	"github.com/Karunakar20/dino-ventures/internal/ledger"
	"github.com/Karunakar20/dino-ventures/internal/ledger/memory"
	"github.com/Karunakar20/dino-ventures/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLedger struct {
	store    *memory.Store
	engine   *ledger.Engine
	treasury *models.Account
	alice    *models.Account
	bob      *models.Account
}

func newTestLedger(t *testing.T, cfg ledger.Config) *testLedger {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	system := &models.User{ID: uuid.New(), Username: "system", Role: "admin"}
	alice := &models.User{ID: uuid.New(), Username: "alice", Role: "user"}
	bob := &models.User{ID: uuid.New(), Username: "bob", Role: "user"}
	for _, u := range []*models.User{system, alice, bob} {
		require.NoError(t, store.CreateUser(ctx, u))
	}

	treasuryAcc := &models.Account{
		ID:        uuid.New(),
		UserID:    system.ID,
		Name:      domain.SystemAccountTreasury,
		Currency:  domain.DefaultCurrency,
		Active:    true,
		Unbounded: true,
	}
	aliceAcc := &models.Account{
		ID:       uuid.New(),
		UserID:   alice.ID,
		Name:     "Alice's Wallet",
		Currency: domain.DefaultCurrency,
		Active:   true,
	}
	bobAcc := &models.Account{
		ID:       uuid.New(),
		UserID:   bob.ID,
		Name:     "Bob's Wallet",
		Currency: domain.DefaultCurrency,
		Active:   true,
	}
	for _, a := range []*models.Account{treasuryAcc, aliceAcc, bobAcc} {
		require.NoError(t, store.CreateAccount(ctx, a))
	}

	return &testLedger{
		store:    store,
		engine:   ledger.NewEngine(store, cfg),
		treasury: treasuryAcc,
		alice:    aliceAcc,
		bob:      bobAcc,
	}
}

func (l *testLedger) balance(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	account, err := l.store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return account.Balance
}

func (l *testLedger) fund(t *testing.T, dest uuid.UUID, amount int64, key string) {
	t.Helper()
	_, err := l.engine.Execute(context.Background(), ledger.TransferRequest{
		SourceAccountID:      l.treasury.ID,
		DestinationAccountID: dest,
		Amount:               amount,
		IdempotencyKey:       key,
		Type:                 domain.TxTypeTopUp,
	})
	require.NoError(t, err)
}

func TestExecuteCommitsDoubleEntry(t *testing.T) {
	l := newTestLedger(t, ledger.Config{})
	ctx := context.Background()

	res, err := l.engine.Execute(ctx, ledger.TransferRequest{
		SourceAccountID:      l.treasury.ID,
		DestinationAccountID: l.alice.ID,
		Amount:               100,
		IdempotencyKey:       "topup-1",
		Type:                 domain.TxTypeTopUp,
		Description:          "Wallet Top-up",
	})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, domain.TxStatusCommitted, res.Status)
	assert.False(t, res.CommittedAt.IsZero())
	require.Len(t, res.Postings, 2)

	var net int64
	for _, p := range res.Postings {
		net += p.Amount
	}
	assert.Zero(t, net, "postings must sum to zero")

	assert.Equal(t, int64(-100), l.balance(t, l.treasury.ID))
	assert.Equal(t, int64(100), l.balance(t, l.alice.ID))

	txn, err := l.store.GetTransactionByKey(ctx, "topup-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusCommitted, txn.Status)
	assert.NotNil(t, txn.CommittedAt)
}

func TestExecuteRejectsInvalidRequests(t *testing.T) {
	l := newTestLedger(t, ledger.Config{})
	ctx := context.Background()

	tests := []struct {
		name    string
		req     ledger.TransferRequest
		wantErr error
	}{
		{
			name: "zero amount",
			req: ledger.TransferRequest{
				SourceAccountID:      l.treasury.ID,
				DestinationAccountID: l.alice.ID,
				Amount:               0,
				IdempotencyKey:       "k1",
			},
			wantErr: ledger.ErrInvalidAmount,
		},
		{
			name: "negative amount",
			req: ledger.TransferRequest{
				SourceAccountID:      l.treasury.ID,
				DestinationAccountID: l.alice.ID,
				Amount:               -5,
				IdempotencyKey:       "k2",
			},
			wantErr: ledger.ErrInvalidAmount,
		},
		{
			name: "same account",
			req: ledger.TransferRequest{
				SourceAccountID:      l.alice.ID,
				DestinationAccountID: l.alice.ID,
				Amount:               10,
				IdempotencyKey:       "k3",
			},
			wantErr: ledger.ErrInvalidAccounts,
		},
		{
			name: "missing idempotency key",
			req: ledger.TransferRequest{
				SourceAccountID:      l.treasury.ID,
				DestinationAccountID: l.alice.ID,
				Amount:               10,
			},
			wantErr: ledger.ErrInvalidReference,
		},
		{
			name: "unknown transaction type",
			req: ledger.TransferRequest{
				SourceAccountID:      l.treasury.ID,
				DestinationAccountID: l.alice.ID,
				Amount:               10,
				IdempotencyKey:       "k4",
				Type:                 "gift",
			},
			wantErr: ledger.ErrInvalidType,
		},
		{
			name: "unknown destination",
			req: ledger.TransferRequest{
				SourceAccountID:      l.treasury.ID,
				DestinationAccountID: uuid.New(),
				Amount:               10,
				IdempotencyKey:       "k5",
				Type:                 domain.TxTypeTopUp,
			},
			wantErr: ledger.ErrAccountNotFound,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.engine.Execute(ctx, tc.req)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	// No mutation happened.
	assert.Zero(t, l.balance(t, l.treasury.ID))
	assert.Zero(t, l.balance(t, l.alice.ID))
}

func TestExecuteInsufficientFunds(t *testing.T) {
	l := newTestLedger(t, ledger.Config{})
	ctx := context.Background()
	l.fund(t, l.alice.ID, 30, "fund-alice")

	_, err := l.engine.Execute(ctx, ledger.TransferRequest{
		SourceAccountID:      l.alice.ID,
		DestinationAccountID: l.bob.ID,
		Amount:               50,
		IdempotencyKey:       "overspend-1",
		Type:                 domain.TxTypePurchase,
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	// Balances untouched, and the attempt left a retryable failed header.
	assert.Equal(t, int64(30), l.balance(t, l.alice.ID))
	assert.Zero(t, l.balance(t, l.bob.ID))

	txn, err := l.store.GetTransactionByKey(ctx, "overspend-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusFailed, txn.Status)
}

func TestExecuteConcurrentOverdrawOneCommits(t *testing.T) {
	l := newTestLedger(t, ledger.Config{})
	ctx := context.Background()
	l.fund(t, l.alice.ID, 100, "fund-alice")

	// Two simultaneous spends that each fit alone but not together. The
	// account lock serializes them: whichever runs second sees the drained
	// balance and must fail.
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		key := fmt.Sprintf("overdraw-race-%d", i)
		go func() {
			_, err := l.engine.Execute(ctx, ledger.TransferRequest{
				SourceAccountID:      l.alice.ID,
				DestinationAccountID: l.bob.ID,
				Amount:               80,
				IdempotencyKey:       key,
				Type:                 domain.TxTypePurchase,
			})
			errs <- err
		}()
	}

	var committed, rejected int
	for i := 0; i < 2; i++ {
		err := <-errs
		switch {
		case err == nil:
			committed++
		case errors.Is(err, ledger.ErrInsufficientFunds):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, committed)
	assert.Equal(t, 1, rejected)

	// Exactly one spend moved money.
	assert.Equal(t, int64(20), l.balance(t, l.alice.ID))
	assert.Equal(t, int64(80), l.balance(t, l.bob.ID))
}

func TestExecuteFailedKeyIsRetryable(t *testing.T) {
	l := newTestLedger(t, ledger.Config{})
	ctx := context.Background()
	l.fund(t, l.alice.ID, 30, "fund-alice")

	req := ledger.TransferRequest{
		SourceAccountID:      l.alice.ID,
		DestinationAccountID: l.bob.ID,
		Amount:               50,
		IdempotencyKey:       "retry-me",
		Type:                 domain.TxTypePurchase,
	}
	_, err := l.engine.Execute(ctx, req)
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	failed, err := l.store.GetTransactionByKey(ctx, "retry-me")
	require.NoError(t, err)

	// Top up and retry the identical request.
	l.fund(t, l.alice.ID, 100, "fund-alice-2")
	res, err := l.engine.Execute(ctx, req)
	require.NoError(t, err)

	// The retry reuses the original transaction identity.
	assert.Equal(t, failed.ID, res.TransactionID)
	assert.Equal(t, int64(80), l.balance(t, l.alice.ID))
	assert.Equal(t, int64(50), l.balance(t, l.bob.ID))
}

func TestExecuteReplaySameKey(t *testing.T) {
	l := newTestLedger(t, ledger.Config{})
	ctx := context.Background()

	req := ledger.TransferRequest{
		SourceAccountID:      l.treasury.ID,
		DestinationAccountID: l.alice.ID,
		Amount:               100,
		IdempotencyKey:       "once-only",
		Type:                 domain.TxTypeTopUp,
	}
	first, err := l.engine.Execute(ctx, req)
	require.NoError(t, err)

	second, err := l.engine.Execute(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.Equal(t, first.Postings, second.Postings)
	assert.Equal(t, int64(100), l.balance(t, l.alice.ID), "replay must not move money twice")
}

func TestExecuteConcurrentSameKeyCommitsOnce(t *testing.T) {
	l := newTestLedger(t, ledger.Config{WaitPollInterval: 5 * time.Millisecond})
	ctx := context.Background()

	req := ledger.TransferRequest{
		SourceAccountID:      l.treasury.ID,
		DestinationAccountID: l.alice.ID,
		Amount:               100,
		IdempotencyKey:       "race-key",
		Type:                 domain.TxTypeTopUp,
	}

	const workers = 16
	results := make([]*ledger.TransactionResult, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = l.engine.Execute(ctx, req)
		}(i)
	}
	wg.Wait()

	winner := results[0]
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		assert.Equal(t, winner.TransactionID, results[i].TransactionID)
	}
	assert.Equal(t, int64(100), l.balance(t, l.alice.ID))
	assert.Equal(t, int64(-100), l.balance(t, l.treasury.ID))
}

func TestExecuteDuplicatePolicyFail(t *testing.T) {
	l := newTestLedger(t, ledger.Config{DuplicatePolicy: domain.DuplicatePolicyFail})
	ctx := context.Background()

	// Simulate an in-flight holder of the key.
	require.NoError(t, l.store.CreatePendingTransaction(ctx, &models.Transaction{
		ID:             uuid.New(),
		IdempotencyKey: "held-key",
		Type:           domain.TxTypeTopUp,
		Status:         domain.TxStatusPending,
	}))

	_, err := l.engine.Execute(ctx, ledger.TransferRequest{
		SourceAccountID:      l.treasury.ID,
		DestinationAccountID: l.alice.ID,
		Amount:               10,
		IdempotencyKey:       "held-key",
		Type:                 domain.TxTypeTopUp,
	})
	assert.ErrorIs(t, err, ledger.ErrDuplicateInFlight)
	assert.Zero(t, l.balance(t, l.alice.ID))
}

func TestExecuteWaitPolicyReplaysWinner(t *testing.T) {
	l := newTestLedger(t, ledger.Config{WaitPollInterval: 5 * time.Millisecond})
	ctx := context.Background()

	req := ledger.TransferRequest{
		SourceAccountID:      l.treasury.ID,
		DestinationAccountID: l.alice.ID,
		Amount:               40,
		IdempotencyKey:       "wait-key",
		Type:                 domain.TxTypeTopUp,
	}

	// First request starts slightly later than the waiter but owns the key.
	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(20 * time.Millisecond)
		_, err := l.engine.Execute(ctx, req)
		assert.NoError(t, err)
	}()

	res, err := l.engine.Execute(ctx, req)
	require.NoError(t, err)
	<-done

	assert.Equal(t, domain.TxStatusCommitted, res.Status)
	assert.Equal(t, int64(40), l.balance(t, l.alice.ID))
}

func TestExecuteUnboundedAccountsMayGoNegative(t *testing.T) {
	l := newTestLedger(t, ledger.Config{})

	l.fund(t, l.alice.ID, 1_000_000, "big-topup")

	assert.Equal(t, int64(-1_000_000), l.balance(t, l.treasury.ID))

	// Conservation: the system as a whole always nets to zero.
	net, err := l.store.PostingNet(context.Background())
	require.NoError(t, err)
	assert.Zero(t, net)
}

type fakeCache struct {
	mu sync.Mutex
	m  map[string]*ledger.TransactionResult
}

func newFakeCache() *fakeCache {
	return &fakeCache{m: make(map[string]*ledger.TransactionResult)}
}

func (c *fakeCache) Get(ctx context.Context, key string) (*ledger.TransactionResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[key], nil
}

func (c *fakeCache) Set(ctx context.Context, key string, res *ledger.TransactionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = res
}

func TestExecuteResultCacheFastPath(t *testing.T) {
	l := newTestLedger(t, ledger.Config{})
	cache := newFakeCache()
	l.engine.WithResultCache(cache)
	ctx := context.Background()

	req := ledger.TransferRequest{
		SourceAccountID:      l.treasury.ID,
		DestinationAccountID: l.alice.ID,
		Amount:               25,
		IdempotencyKey:       "cached-key",
		Type:                 domain.TxTypeTopUp,
	}
	first, err := l.engine.Execute(ctx, req)
	require.NoError(t, err)

	cached, err := cache.Get(ctx, "cached-key")
	require.NoError(t, err)
	require.NotNil(t, cached, "committed result should be written through")

	second, err := l.engine.Execute(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.Equal(t, int64(25), l.balance(t, l.alice.ID))
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.TransactionCommitted
}

func (p *capturePublisher) PublishTransactionCommitted(ctx context.Context, e events.TransactionCommitted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func TestExecutePublishesCommitEventOnce(t *testing.T) {
	l := newTestLedger(t, ledger.Config{})
	pub := &capturePublisher{}
	l.engine.WithPublisher(pub)
	ctx := context.Background()

	req := ledger.TransferRequest{
		SourceAccountID:      l.treasury.ID,
		DestinationAccountID: l.alice.ID,
		Amount:               60,
		IdempotencyKey:       "event-key",
		Type:                 domain.TxTypeTopUp,
	}
	res, err := l.engine.Execute(ctx, req)
	require.NoError(t, err)

	// Replays return the stored result without republishing.
	_, err = l.engine.Execute(ctx, req)
	require.NoError(t, err)

	require.Len(t, pub.events, 1)
	assert.Equal(t, res.TransactionID, pub.events[0].TransactionID)
	assert.Equal(t, domain.TxTypeTopUp, pub.events[0].Type)
	require.Len(t, pub.events[0].Postings, 2)
}

func TestExecuteOpposingTransfersDoNotDeadlock(t *testing.T) {
	l := newTestLedger(t, ledger.Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	l.fund(t, l.alice.ID, 10_000, "fund-alice")
	l.fund(t, l.bob.ID, 10_000, "fund-bob")

	const rounds = 50
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, err := l.engine.Execute(ctx, ledger.TransferRequest{
				SourceAccountID:      l.alice.ID,
				DestinationAccountID: l.bob.ID,
				Amount:               1,
				IdempotencyKey:       uuid.NewString(),
				Type:                 domain.TxTypePurchase,
			})
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, err := l.engine.Execute(ctx, ledger.TransferRequest{
				SourceAccountID:      l.bob.ID,
				DestinationAccountID: l.alice.ID,
				Amount:               1,
				IdempotencyKey:       uuid.NewString(),
				Type:                 domain.TxTypePurchase,
			})
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	require.NoError(t, ctx.Err(), "opposing transfers must finish well inside the deadline")
	assert.Equal(t, int64(10_000), l.balance(t, l.alice.ID))
	assert.Equal(t, int64(10_000), l.balance(t, l.bob.ID))
}

func TestExecuteStressPreservesInvariants(t *testing.T) {
	l := newTestLedger(t, ledger.Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// A pool of bounded wallets with random overlapping transfers between
	// them. Whatever interleaving happens, money is conserved, no bounded
	// wallet goes negative, and every balance matches its posting sum.
	const walletCount = 8
	wallets := make([]uuid.UUID, walletCount)
	for i := range wallets {
		account := &models.Account{
			ID:       uuid.New(),
			UserID:   l.alice.UserID,
			Name:     "Stress Wallet",
			Currency: domain.DefaultCurrency,
			Active:   true,
		}
		require.NoError(t, l.store.CreateAccount(ctx, account))
		wallets[i] = account.ID
		l.fund(t, account.ID, 1_000, uuid.NewString())
	}

	const workers = 20
	const transfersPerWorker = 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < transfersPerWorker; i++ {
				from := wallets[rng.Intn(walletCount)]
				to := wallets[rng.Intn(walletCount)]
				if from == to {
					continue
				}
				_, err := l.engine.Execute(ctx, ledger.TransferRequest{
					SourceAccountID:      from,
					DestinationAccountID: to,
					Amount:               int64(rng.Intn(200) + 1),
					IdempotencyKey:       uuid.NewString(),
					Type:                 domain.TxTypePurchase,
				})
				if err != nil {
					// Overdraw attempts are the only acceptable failure.
					assert.True(t, errors.Is(err, ledger.ErrInsufficientFunds), "unexpected error: %v", err)
				}
			}
		}(int64(w))
	}
	wg.Wait()
	require.NoError(t, ctx.Err(), "stress run must finish inside the deadline")

	var total int64
	for _, id := range wallets {
		balance := l.balance(t, id)
		assert.GreaterOrEqual(t, balance, int64(0), "bounded wallet went negative")
		total += balance
	}
	assert.Equal(t, int64(walletCount*1_000), total, "credits are conserved across wallets")

	net, err := l.store.PostingNet(ctx)
	require.NoError(t, err)
	assert.Zero(t, net)

	imbalances, err := l.store.AccountImbalances(ctx)
	require.NoError(t, err)
	assert.Empty(t, imbalances)
}

func TestCanonicalLockOrderIsStable(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	assert.Equal(t, []uuid.UUID{a, b}, ledger.CanonicalLockOrder(a, b))
	assert.Equal(t, []uuid.UUID{a, b}, ledger.CanonicalLockOrder(b, a))
}
