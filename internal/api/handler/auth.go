package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Karunakar20/dino-ventures/internal/api/middleware"
	"github.com/Karunakar20/dino-ventures/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// UserReader resolves users for token issuance.
type UserReader interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type AuthHandler struct {
	users UserReader
}

func NewAuthHandler(users UserReader) *AuthHandler {
	return &AuthHandler{users: users}
}

// Login issues a signed JWT for a known user. Demo login by user id; a real
// deployment would sit behind an identity provider.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	uid, err := uuid.Parse(req.UserID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-user-id", "Invalid user_id")
		return
	}

	user, err := h.users.GetUser(r.Context(), uid)
	if err != nil {
		RespondError(w, r, http.StatusNotFound, "user/not-found", "User not found")
		return
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": uid.String(),
		"role":    user.Role,
		"sub":     uid.String(),
		"iat":     now.Unix(),
		"exp":     now.Add(24 * time.Hour).Unix(),
	}
	if iss := middleware.JWTIssuer(); iss != "" {
		claims["iss"] = iss
	}
	if aud := middleware.JWTAudience(); aud != "" {
		claims["aud"] = aud
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(middleware.JWTSecret())
	if err != nil {
		RespondError(w, r, http.StatusInternalServerError, "auth/sign-failed", "Failed to sign token")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"token": tokenString})
}
