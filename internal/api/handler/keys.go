package handler

import (
	"net/http"
	"strings"

	"github.com/ayo6706/wallet-ledger/internal/service"
	"github.com/go-chi/chi/v5"
)

// KeyHandler manages the caller's API keys. Routes require a JWT.
type KeyHandler struct {
	keys *service.APIKeyService
}

func NewKeyHandler(keys *service.APIKeyService) *KeyHandler {
	return &KeyHandler{keys: keys}
}

// Create handles POST /v1/keys.
func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Name        string   `json:"name"`
		Permissions []string `json:"permissions"`
		Expiry      string   `json:"expiry"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondValidation(w, r, "name", "name is required")
		return
	}

	issued, err := h.keys.Create(r.Context(), userID, req.Name, req.Permissions, req.Expiry)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, issued)
}

// Rollover handles POST /v1/keys/rollover.
func (h *KeyHandler) Rollover(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}
	var req struct {
		ExpiredKeyID string `json:"expired_key_id"`
		Expiry       string `json:"expiry"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ExpiredKeyID) == "" {
		respondValidation(w, r, "expired_key_id", "expired_key_id is required")
		return
	}

	issued, err := h.keys.Rollover(r.Context(), userID, strings.TrimSpace(req.ExpiredKeyID), req.Expiry)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, issued)
}

// List handles GET /v1/keys. Raw keys are never returned here.
func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}
	keys, err := h.keys.List(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, keys)
}

// Revoke handles DELETE /v1/keys/{id}.
func (h *KeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}
	if err := h.keys.Revoke(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
