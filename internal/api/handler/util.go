package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/ayo6706/wallet-ledger/internal/api/middleware"
	"github.com/ayo6706/wallet-ledger/internal/api/problem"
	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxRequestBody = 64 << 10

var walletNumberPattern = regexp.MustCompile(`^\d{13}$`)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

func respondValidation(w http.ResponseWriter, r *http.Request, field, message string) {
	problem.WriteDetails(w, r, problem.Details{
		Type:   problem.Type("request/validation"),
		Status: http.StatusBadRequest,
		Detail: message,
		Errors: map[string]string{field: message},
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return false
	}
	return true
}

// requestUser returns the caller resolved by the auth middleware.
func requestUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", "Invalid user in auth context")
		return uuid.Nil, false
	}
	return userID, true
}

// parseAmount accepts a JSON number or a decimal string.
func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return decimal.Zero, errors.New("amount is required")
	}
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, errors.New("amount must be a decimal")
		}
	}
	d, err := domain.ParseAmount(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount must be a decimal with at most %d places", domain.AmountScale)
	}
	return d, nil
}

// writeServiceError maps the ledger error taxonomy to problem documents.
// Details are fixed strings so storage internals never reach the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidAmount):
		RespondError(w, r, http.StatusBadRequest, "ledger/invalid-amount", "Amount must be positive")
	case errors.Is(err, models.ErrSelfTransfer):
		RespondError(w, r, http.StatusBadRequest, "ledger/self-transfer", "Cannot transfer to your own wallet")
	case errors.Is(err, models.ErrInsufficientBalance):
		RespondError(w, r, http.StatusUnprocessableEntity, "ledger/insufficient-balance", "Insufficient balance")
	case errors.Is(err, models.ErrWalletNotFound):
		RespondError(w, r, http.StatusNotFound, "ledger/wallet-not-found", "Wallet not found")
	case errors.Is(err, models.ErrUserNotFound):
		RespondError(w, r, http.StatusNotFound, "auth/user-not-found", "User not found")
	case errors.Is(err, models.ErrTransactionNotFound):
		RespondError(w, r, http.StatusNotFound, "ledger/transaction-not-found", "Transaction not found")
	case errors.Is(err, models.ErrWalletInactive):
		RespondError(w, r, http.StatusForbidden, "ledger/wallet-inactive", "Wallet is not active")
	case errors.Is(err, models.ErrDuplicateReference):
		RespondError(w, r, http.StatusConflict, "ledger/duplicate-reference", "Transaction reference already exists")
	case errors.Is(err, models.ErrInvalidTransition):
		RespondError(w, r, http.StatusConflict, "ledger/invalid-transition", "Transaction cannot change to the requested state")
	case errors.Is(err, models.ErrProvider):
		RespondError(w, r, http.StatusBadGateway, "provider/unavailable", "Payment provider request failed")
	case errors.Is(err, models.ErrAPIKeyNotFound):
		RespondError(w, r, http.StatusNotFound, "keys/not-found", "API key not found")
	case errors.Is(err, service.ErrInvalidPermission),
		errors.Is(err, service.ErrInvalidExpiry),
		errors.Is(err, service.ErrInvalidEmail):
		RespondError(w, r, http.StatusBadRequest, "request/validation", err.Error())
	case errors.Is(err, service.ErrAPIKeyLimit):
		RespondError(w, r, http.StatusConflict, "keys/limit-reached", err.Error())
	case errors.Is(err, service.ErrAPIKeyNotExpired):
		RespondError(w, r, http.StatusBadRequest, "keys/not-expired", err.Error())
	case errors.Is(err, models.ErrStorage), errors.Is(err, models.ErrWalletGenerationExhausted):
		zap.L().Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		RespondError(w, r, http.StatusServiceUnavailable, "service-unavailable", "Service temporarily unavailable")
	default:
		if status, problemType, message, ok := mapDBError(err); ok {
			RespondError(w, r, status, problemType, message)
			return
		}
		zap.L().Error("unhandled request error", zap.String("path", r.URL.Path), zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
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
