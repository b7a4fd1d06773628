package service

import (
	"context"
	"fmt"

	"github.com/Karunakar20/dino-ventures/internal/models"
	"github.com/Karunakar20/dino-ventures/internal/observability"
	"go.uber.org/zap"
)

// ReconciliationService verifies ledger integrity invariants: the posting
// log nets to zero and every materialized balance equals its posting sum.
type ReconciliationService struct {
	auditor Auditor
}

func NewReconciliationService(auditor Auditor) *ReconciliationService {
	return &ReconciliationService{auditor: auditor}
}

// Report describes one reconciliation pass. Balanced is true only when the
// posting log nets to zero and no account has diverged.
type Report struct {
	Balanced   bool                      `json:"balanced"`
	PostingNet int64                     `json:"posting_net"`
	Imbalances []models.AccountImbalance `json:"imbalances,omitempty"`
}

// Run performs one reconciliation pass. Divergence is reported, never
// repaired: a broken invariant means a bug, not data to paper over.
func (s *ReconciliationService) Run(ctx context.Context) (*Report, error) {
	net, err := s.auditor.PostingNet(ctx)
	if err != nil {
		return nil, fmt.Errorf("posting net query: %w", err)
	}
	if net != 0 {
		observability.IncrementLedgerImbalance()
		zap.L().Error("CRITICAL: posting log does not net to zero", zap.Int64("net_amount", net))
	}

	imbalances, err := s.auditor.AccountImbalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("account imbalance query: %w", err)
	}
	for _, im := range imbalances {
		observability.IncrementLedgerImbalance()
		zap.L().Error("CRITICAL: account balance diverged from posting sum",
			zap.String("account_id", im.AccountID.String()),
			zap.Int64("balance", im.Balance),
			zap.Int64("posting_sum", im.PostingSum),
		)
	}

	balanced := net == 0 && len(imbalances) == 0
	if balanced {
		zap.L().Info("ledger balanced")
	}
	return &Report{Balanced: balanced, PostingNet: net, Imbalances: imbalances}, nil
}
