package service

import (
	"context"

	"github.com/Karunakar20/dino-ventures/internal/models"
	"github.com/google/uuid"
)

// Directory is the read-only account/user access the wallet service needs.
// Implemented by the pgx repository and the in-memory store.
type Directory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetUserAccounts(ctx context.Context, userID uuid.UUID) ([]models.Account, error)
	GetPrimaryAccount(ctx context.Context, userID uuid.UUID) (*models.Account, error)
	GetSystemAccount(ctx context.Context, name string) (*models.Account, error)
	GetAccountPostings(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]models.Posting, error)
}

// Auditor exposes the integrity queries reconciliation runs against the
// posting log.
type Auditor interface {
	PostingNet(ctx context.Context) (int64, error)
	AccountImbalances(ctx context.Context) ([]models.AccountImbalance, error)
}
