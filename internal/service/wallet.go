package service

import (
	"context"
	"fmt"

	"github.com/Karunakar20/dino-ventures/internal/domain"
	"github.com/Karunakar20/dino-ventures/internal/ledger"
	"github.com/Karunakar20/dino-ventures/internal/models"
	"github.com/google/uuid"
)

// WalletService is the narrow interface the transport layer consumes. It
// resolves user-facing operations (top-up, spend, bonus) into transfers
// between the user's primary account and the Treasury, then delegates every
// correctness concern to the ledger engine.
type WalletService struct {
	engine *ledger.Engine
	dir    Directory
}

func NewWalletService(engine *ledger.Engine, dir Directory) *WalletService {
	return &WalletService{engine: engine, dir: dir}
}

// Balance is the aggregated read model for one user's wallet. Display is
// the decimal rendering of the minor-unit total.
type Balance struct {
	UserID       uuid.UUID        `json:"user_id"`
	TotalBalance int64            `json:"total_balance"`
	Display      string           `json:"display"`
	Accounts     []models.Account `json:"accounts"`
}

// GetBalance returns all accounts and their total for a user. Snapshot
// read; takes no locks and never observes a half-committed transaction.
func (s *WalletService) GetBalance(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	accounts, err := s.dir.GetUserAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}

	balance := &Balance{UserID: userID, Accounts: accounts}
	currency := domain.DefaultCurrency
	for _, account := range accounts {
		balance.TotalBalance += account.Balance
		currency = account.Currency
	}
	balance.Display = domain.NewMoney(balance.TotalBalance, currency).String()
	return balance, nil
}

// TopUp moves amount from the Treasury into the user's primary account.
func (s *WalletService) TopUp(ctx context.Context, userID uuid.UUID, amount int64, referenceID, description string) (*ledger.TransactionResult, error) {
	return s.treasuryCredit(ctx, userID, amount, referenceID, description, domain.TxTypeTopUp, "Wallet Top-up")
}

// Bonus credits the user from the Treasury, recorded with its own
// transaction type so statements distinguish promotions from purchases.
func (s *WalletService) Bonus(ctx context.Context, userID uuid.UUID, amount int64, referenceID, description string) (*ledger.TransactionResult, error) {
	return s.treasuryCredit(ctx, userID, amount, referenceID, description, domain.TxTypeBonus, "Bonus Credit")
}

// Refund returns previously spent credits from the Treasury to the user.
func (s *WalletService) Refund(ctx context.Context, userID uuid.UUID, amount int64, referenceID, description string) (*ledger.TransactionResult, error) {
	return s.treasuryCredit(ctx, userID, amount, referenceID, description, domain.TxTypeRefund, "Purchase Refund")
}

// Spend moves amount from the user's primary account back to the Treasury.
func (s *WalletService) Spend(ctx context.Context, userID uuid.UUID, amount int64, referenceID, description string) (*ledger.TransactionResult, error) {
	wallet, treasury, err := s.resolveAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	if description == "" {
		description = "Purchase Item"
	}
	return s.engine.Execute(ctx, ledger.TransferRequest{
		SourceAccountID:      wallet.ID,
		DestinationAccountID: treasury.ID,
		Amount:               amount,
		IdempotencyKey:       referenceID,
		Type:                 domain.TxTypePurchase,
		Description:          description,
	})
}

// GetAccount resolves one account, for ownership checks at the transport
// layer.
func (s *WalletService) GetAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	return s.dir.GetAccount(ctx, accountID)
}

// GetStatement returns a page of an account's posting history, newest
// first.
func (s *WalletService) GetStatement(ctx context.Context, accountID uuid.UUID, page, pageSize int) ([]models.Posting, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	offset := (page - 1) * pageSize
	return s.dir.GetAccountPostings(ctx, accountID, pageSize, offset)
}

func (s *WalletService) treasuryCredit(ctx context.Context, userID uuid.UUID, amount int64, referenceID, description, txType, defaultDescription string) (*ledger.TransactionResult, error) {
	wallet, treasury, err := s.resolveAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	if description == "" {
		description = defaultDescription
	}
	return s.engine.Execute(ctx, ledger.TransferRequest{
		SourceAccountID:      treasury.ID,
		DestinationAccountID: wallet.ID,
		Amount:               amount,
		IdempotencyKey:       referenceID,
		Type:                 txType,
		Description:          description,
	})
}

func (s *WalletService) resolveAccounts(ctx context.Context, userID uuid.UUID) (wallet, treasury *models.Account, err error) {
	if _, err := s.dir.GetUser(ctx, userID); err != nil {
		return nil, nil, err
	}
	wallet, err = s.dir.GetPrimaryAccount(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	treasury, err = s.dir.GetSystemAccount(ctx, domain.SystemAccountTreasury)
	if err != nil {
		return nil, nil, fmt.Errorf("treasury account unavailable: %w", err)
	}
	return wallet, treasury, nil
}
