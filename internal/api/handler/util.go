package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Karunakar20/dino-ventures/internal/api/middleware"
	"github.com/Karunakar20/dino-ventures/internal/api/problem"
	"github.com/Karunakar20/dino-ventures/internal/ledger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

func requestActor(r *http.Request) (uuid.UUID, bool, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return uuid.Nil, false, errors.New("missing user in auth context")
	}

	actorID, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, false, errors.New("invalid user_id in auth context")
	}

	return actorID, middleware.UserRoleFromContext(r.Context()) == "admin", nil
}

// mapLedgerError translates ledger sentinels into problem responses.
func mapLedgerError(err error) (status int, problemType, message string, ok bool) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest, "ledger/invalid-amount", "amount must be a positive integer", true
	case errors.Is(err, ledger.ErrInvalidAccounts):
		return http.StatusBadRequest, "ledger/invalid-accounts", "source and destination must be distinct valid accounts", true
	case errors.Is(err, ledger.ErrInvalidReference):
		return http.StatusBadRequest, "ledger/invalid-reference", "idempotency key is required", true
	case errors.Is(err, ledger.ErrInvalidType):
		return http.StatusBadRequest, "ledger/invalid-type", "unknown transaction type", true
	case errors.Is(err, ledger.ErrUserNotFound):
		return http.StatusNotFound, "user/not-found", "user not found", true
	case errors.Is(err, ledger.ErrAccountNotFound):
		return http.StatusNotFound, "account/not-found", "account not found or inactive", true
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "ledger/insufficient-funds", "insufficient funds", true
	case errors.Is(err, ledger.ErrDuplicateInFlight):
		return http.StatusConflict, "ledger/duplicate-in-flight", "a request with this idempotency key is still processing", true
	case errors.Is(err, ledger.ErrLockTimeout):
		return http.StatusServiceUnavailable, "ledger/lock-timeout", "ledger is busy, retry the request", true
	default:
		return 0, "", "", false
	}
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23503": // foreign_key_violation
		return http.StatusBadRequest, "db/foreign-key-violation", "invalid reference", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	case "23502": // not_null_violation
		return http.StatusBadRequest, "db/not-null-violation", "missing required field", true
	default:
		return 0, "", "", false
	}
}
