package seed

import (
	"context"
	"testing"

	"github.com/Karunakar20/dino-ventures/internal/domain"
	"github.com/Karunakar20/dino-ventures/internal/ledger"
	"github.com/Karunakar20/dino-ventures/internal/ledger/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSeedsSystemAccountsAndDemoWallets(t *testing.T) {
	store := memory.NewStore()
	engine := ledger.NewEngine(store, ledger.Config{})
	ctx := context.Background()

	require.NoError(t, Run(ctx, store, engine))

	treasury, err := store.GetSystemAccount(ctx, domain.SystemAccountTreasury)
	require.NoError(t, err)
	assert.True(t, treasury.Unbounded)

	equity, err := store.GetSystemAccount(ctx, domain.SystemAccountEquity)
	require.NoError(t, err)
	assert.True(t, equity.Unbounded)

	// Genesis money flowed Equity -> Treasury -> demo wallets, so the
	// treasury holds the injection minus the two welcome bonuses.
	assert.Equal(t, int64(-genesisAmount), equity.Balance)
	assert.Equal(t, int64(genesisAmount-150), treasury.Balance)

	net, err := store.PostingNet(ctx)
	require.NoError(t, err)
	assert.Zero(t, net, "even genesis funding keeps the posting log at zero")

	imbalances, err := store.AccountImbalances(ctx)
	require.NoError(t, err)
	assert.Empty(t, imbalances)
}

func TestRunIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	engine := ledger.NewEngine(store, ledger.Config{})
	ctx := context.Background()

	require.NoError(t, Run(ctx, store, engine))
	treasuryBefore, err := store.GetSystemAccount(ctx, domain.SystemAccountTreasury)
	require.NoError(t, err)

	require.NoError(t, Run(ctx, store, engine))
	treasuryAfter, err := store.GetSystemAccount(ctx, domain.SystemAccountTreasury)
	require.NoError(t, err)

	assert.Equal(t, treasuryBefore.ID, treasuryAfter.ID)
	assert.Equal(t, treasuryBefore.Balance, treasuryAfter.Balance)
}
