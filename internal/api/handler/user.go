package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Karunakar20/dino-ventures/internal/domain"
	"github.com/Karunakar20/dino-ventures/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Provisioner creates users and their accounts.
type Provisioner interface {
	CreateUser(ctx context.Context, user *models.User) error
	CreateAccount(ctx context.Context, account *models.Account) error
}

type UserHandler struct {
	store Provisioner
}

func NewUserHandler(store Provisioner) *UserHandler {
	return &UserHandler{store: store}
}

// CreateUser registers a user together with an empty wallet account.
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		RespondError(w, r, http.StatusBadRequest, "request/username-required", "username is required")
		return
	}

	user := &models.User{
		ID:       uuid.New(),
		Username: req.Username,
		Email:    req.Email,
		Role:     "user",
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		if status, pType, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("create user failed", zap.Error(err), zap.String("email", req.Email))
		RespondError(w, r, http.StatusInternalServerError, "user/create-failed", "Failed to create user")
		return
	}

	wallet := &models.Account{
		ID:       uuid.New(),
		UserID:   user.ID,
		Name:     user.Username + "'s Wallet",
		Currency: domain.DefaultCurrency,
		Active:   true,
	}
	if err := h.store.CreateAccount(r.Context(), wallet); err != nil {
		zap.L().Error("create wallet failed", zap.Error(err), zap.String("user_id", user.ID.String()))
		RespondError(w, r, http.StatusInternalServerError, "account/create-failed", "Failed to create wallet account")
		return
	}

	RespondJSON(w, http.StatusCreated, map[string]interface{}{
		"user":   user,
		"wallet": wallet,
	})
}
