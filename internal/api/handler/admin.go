package handler

import (
	"net/http"

	"github.com/Karunakar20/dino-ventures/internal/service"
	"go.uber.org/zap"
)

// AdminHandler exposes operator-only endpoints.
type AdminHandler struct {
	recon *service.ReconciliationService
}

func NewAdminHandler(recon *service.ReconciliationService) *AdminHandler {
	return &AdminHandler{recon: recon}
}

// RunReconciliation triggers an on-demand integrity check and returns the
// report. The periodic worker runs the same check in the background.
func (h *AdminHandler) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	report, err := h.recon.Run(r.Context())
	if err != nil {
		zap.L().Error("reconciliation request failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "reconciliation/failed", "Reconciliation run failed")
		return
	}
	RespondJSON(w, http.StatusOK, report)
}
