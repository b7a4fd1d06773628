package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Karunakar20/dino-ventures/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type WalletHandler struct {
	svc *service.WalletService
}

func NewWalletHandler(svc *service.WalletService) *WalletHandler {
	return &WalletHandler{svc: svc}
}

type transferRequest struct {
	UserID      string `json:"user_id"`
	Amount      int64  `json:"amount"`
	ReferenceID string `json:"reference_id"`
	Description string `json:"description"`
}

// decodeTransferRequest validates the shared body shape of topup/spend/bonus.
// Non-admin callers may only move money on their own wallet.
func (h *WalletHandler) decodeTransferRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, *transferRequest, bool) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return uuid.Nil, nil, false
	}

	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return uuid.Nil, nil, false
	}

	userID := actorID
	if req.UserID != "" {
		userID, err = uuid.Parse(req.UserID)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-user-id", "Invalid user_id")
			return uuid.Nil, nil, false
		}
	}
	if userID != actorID && !isAdmin {
		RespondError(w, r, http.StatusForbidden, "auth/forbidden", "cannot operate on another user's wallet")
		return uuid.Nil, nil, false
	}
	if req.ReferenceID == "" {
		RespondError(w, r, http.StatusBadRequest, "request/reference-required", "reference_id is required")
		return uuid.Nil, nil, false
	}

	return userID, &req, true
}

func (h *WalletHandler) respondTransfer(w http.ResponseWriter, r *http.Request, result interface{}, err error) {
	if err != nil {
		if status, pType, msg, ok := mapLedgerError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("transfer failed", zap.Error(err), zap.String("path", r.URL.Path))
		RespondError(w, r, http.StatusInternalServerError, "ledger/transfer-failed", "Transfer failed")
		return
	}
	RespondJSON(w, http.StatusCreated, result)
}

// TopUp credits a user's wallet from the treasury.
func (h *WalletHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	userID, req, ok := h.decodeTransferRequest(w, r)
	if !ok {
		return
	}
	result, err := h.svc.TopUp(r.Context(), userID, req.Amount, req.ReferenceID, req.Description)
	h.respondTransfer(w, r, result, err)
}

// Spend debits a user's wallet into the treasury.
func (h *WalletHandler) Spend(w http.ResponseWriter, r *http.Request) {
	userID, req, ok := h.decodeTransferRequest(w, r)
	if !ok {
		return
	}
	result, err := h.svc.Spend(r.Context(), userID, req.Amount, req.ReferenceID, req.Description)
	h.respondTransfer(w, r, result, err)
}

// Bonus grants promotional credits. Admin only; enforced in the router.
func (h *WalletHandler) Bonus(w http.ResponseWriter, r *http.Request) {
	userID, req, ok := h.decodeTransferRequest(w, r)
	if !ok {
		return
	}
	result, err := h.svc.Bonus(r.Context(), userID, req.Amount, req.ReferenceID, req.Description)
	h.respondTransfer(w, r, result, err)
}

// Refund returns credits to a user's wallet. Admin only; enforced in the
// router.
func (h *WalletHandler) Refund(w http.ResponseWriter, r *http.Request) {
	userID, req, ok := h.decodeTransferRequest(w, r)
	if !ok {
		return
	}
	result, err := h.svc.Refund(r.Context(), userID, req.Amount, req.ReferenceID, req.Description)
	h.respondTransfer(w, r, result, err)
}

// GetBalance returns the user's total balance across their accounts.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-user-id", "Invalid user id")
		return
	}

	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	if userID != actorID && !isAdmin {
		RespondError(w, r, http.StatusForbidden, "auth/forbidden", "cannot read another user's balance")
		return
	}

	balance, err := h.svc.GetBalance(r.Context(), userID)
	if err != nil {
		if status, pType, msg, ok := mapLedgerError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("get balance failed", zap.Error(err), zap.String("user_id", userID.String()))
		RespondError(w, r, http.StatusInternalServerError, "wallet/balance-failed", "Failed to read balance")
		return
	}
	RespondJSON(w, http.StatusOK, balance)
}

// GetStatement returns a page of postings for an account, newest first.
func (h *WalletHandler) GetStatement(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid account id")
		return
	}

	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	account, err := h.svc.GetAccount(r.Context(), accountID)
	if err != nil {
		if status, pType, msg, ok := mapLedgerError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("resolve account failed", zap.Error(err), zap.String("account_id", accountID.String()))
		RespondError(w, r, http.StatusInternalServerError, "wallet/statement-failed", "Failed to read statement")
		return
	}
	if account.UserID != actorID && !isAdmin {
		RespondError(w, r, http.StatusForbidden, "auth/forbidden", "cannot read another user's statement")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	postings, err := h.svc.GetStatement(r.Context(), accountID, page, pageSize)
	if err != nil {
		if status, pType, msg, ok := mapLedgerError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("get statement failed", zap.Error(err), zap.String("account_id", accountID.String()))
		RespondError(w, r, http.StatusInternalServerError, "wallet/statement-failed", "Failed to read statement")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"postings":   postings,
	})
}
