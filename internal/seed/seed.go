// Package seed provisions the system accounts and demo users the wallet
// needs to operate: an Equity account as the source of all funds, the
// Treasury it capitalizes, and two demo wallets. All funding flows through
// the ledger engine so even genesis money has a complete audit trail.
package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/Karunakar20/dino-ventures/internal/domain"
	"github.com/Karunakar20/dino-ventures/internal/ledger"
	"github.com/Karunakar20/dino-ventures/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const genesisAmount = 1_000_000_000

// Store is the provisioning surface the seeder writes through.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	CreateAccount(ctx context.Context, account *models.Account) error
	GetSystemAccount(ctx context.Context, name string) (*models.Account, error)
}

// Run seeds the store. Idempotent: an existing Treasury account means the
// store is already seeded, and the funding transfers carry fixed
// idempotency keys besides.
func Run(ctx context.Context, store Store, engine *ledger.Engine) error {
	if _, err := store.GetSystemAccount(ctx, domain.SystemAccountTreasury); err == nil {
		zap.L().Info("store already seeded")
		return nil
	} else if !errors.Is(err, ledger.ErrAccountNotFound) {
		return fmt.Errorf("check treasury: %w", err)
	}

	zap.L().Info("seeding store")

	system := &models.User{ID: uuid.New(), Username: "system", Email: "system@dinoventures.com", Role: "admin"}
	alice := &models.User{ID: uuid.New(), Username: "alice", Email: "alice@example.com", Role: "user"}
	bob := &models.User{ID: uuid.New(), Username: "bob", Email: "bob@example.com", Role: "user"}
	for _, user := range []*models.User{system, alice, bob} {
		if err := store.CreateUser(ctx, user); err != nil {
			return fmt.Errorf("create user %s: %w", user.Username, err)
		}
	}

	equity := &models.Account{
		ID:        uuid.New(),
		UserID:    system.ID,
		Name:      domain.SystemAccountEquity,
		Currency:  domain.DefaultCurrency,
		Active:    true,
		Unbounded: true,
	}
	treasury := &models.Account{
		ID:        uuid.New(),
		UserID:    system.ID,
		Name:      domain.SystemAccountTreasury,
		Currency:  domain.DefaultCurrency,
		Active:    true,
		Unbounded: true,
	}
	aliceWallet := &models.Account{
		ID:       uuid.New(),
		UserID:   alice.ID,
		Name:     "Alice's Wallet",
		Currency: domain.DefaultCurrency,
		Active:   true,
	}
	bobWallet := &models.Account{
		ID:       uuid.New(),
		UserID:   bob.ID,
		Name:     "Bob's Wallet",
		Currency: domain.DefaultCurrency,
		Active:   true,
	}
	for _, account := range []*models.Account{equity, treasury, aliceWallet, bobWallet} {
		if err := store.CreateAccount(ctx, account); err != nil {
			return fmt.Errorf("create account %s: %w", account.Name, err)
		}
	}

	// Genesis capital: Equity -> Treasury.
	funding := []ledger.TransferRequest{
		{
			SourceAccountID:      equity.ID,
			DestinationAccountID: treasury.ID,
			Amount:               genesisAmount,
			IdempotencyKey:       "genesis_001",
			Type:                 domain.TxTypeTopUp,
			Description:          "Initial Capital Injection",
		},
		{
			SourceAccountID:      treasury.ID,
			DestinationAccountID: aliceWallet.ID,
			Amount:               100,
			IdempotencyKey:       "seed_alice_001",
			Type:                 domain.TxTypeBonus,
			Description:          "Welcome Bonus for Alice",
		},
		{
			SourceAccountID:      treasury.ID,
			DestinationAccountID: bobWallet.ID,
			Amount:               50,
			IdempotencyKey:       "seed_bob_001",
			Type:                 domain.TxTypeBonus,
			Description:          "Welcome Bonus for Bob",
		},
	}
	for _, req := range funding {
		if _, err := engine.Execute(ctx, req); err != nil {
			return fmt.Errorf("seed transfer %s: %w", req.IdempotencyKey, err)
		}
	}

	zap.L().Info("seeding complete",
		zap.String("alice_id", alice.ID.String()),
		zap.String("bob_id", bob.ID.String()),
	)
	return nil
}
