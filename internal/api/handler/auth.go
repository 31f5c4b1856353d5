package handler

import (
	"net/http"

	"github.com/ayo6706/wallet-ledger/internal/service"
)

// AuthHandler issues tokens for local development. Production sign-in happens
// at an external identity provider that mints the same claims.
type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Login handles POST /v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		respondValidation(w, r, "email", "email is required")
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}
