package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/service"
	"github.com/go-chi/chi/v5"
)

// WalletHandler serves the balance, history, deposit and transfer endpoints.
type WalletHandler struct {
	ledger   *service.LedgerService
	deposits *service.DepositService
	wallets  *service.WalletService
}

func NewWalletHandler(ledger *service.LedgerService, deposits *service.DepositService, wallets *service.WalletService) *WalletHandler {
	return &WalletHandler{ledger: ledger, deposits: deposits, wallets: wallets}
}

type amountRequest struct {
	Amount json.RawMessage `json:"amount"`
}

// Deposit handles POST /v1/wallet/deposit.
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondValidation(w, r, "amount", err.Error())
		return
	}
	if amount.LessThan(domain.MinDepositAmount) || amount.GreaterThan(domain.MaxDepositAmount) {
		respondValidation(w, r, "amount", "amount must be between "+domain.FormatAmount(domain.MinDepositAmount)+
			" and "+domain.FormatAmount(domain.MaxDepositAmount))
		return
	}

	res, err := h.deposits.DepositForUser(r.Context(), userID, amount)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, res)
}

// Transfer handles POST /v1/wallet/transfer.
func (h *WalletHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}
	var req struct {
		WalletNumber string          `json:"wallet_number"`
		Amount       json.RawMessage `json:"amount"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	recipient := strings.TrimSpace(req.WalletNumber)
	if !walletNumberPattern.MatchString(recipient) {
		respondValidation(w, r, "wallet_number", "wallet_number must be exactly 13 digits")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondValidation(w, r, "amount", err.Error())
		return
	}
	if amount.LessThan(domain.MinTransferAmount) {
		respondValidation(w, r, "amount", "amount must be at least "+domain.FormatAmount(domain.MinTransferAmount))
		return
	}

	res, err := h.ledger.Transfer(r.Context(), userID, service.TransferRequest{WalletNumber: recipient, Amount: amount})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

// Balance handles GET /v1/wallet/balance.
func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}
	view, err := h.ledger.Balance(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, view)
}

// Transactions handles GET /v1/wallet/transactions, newest first.
func (h *WalletHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}
	views, err := h.ledger.History(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, views)
}

// DepositStatus handles GET /v1/wallet/deposit/{reference}/status. Records
// belonging to another wallet are reported as not found.
func (h *WalletHandler) DepositStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}
	reference := chi.URLParam(r, "reference")
	txn, err := h.ledger.GetTransaction(r.Context(), reference)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	wallet, err := h.wallets.GetWalletByUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if txn.WalletNumber != wallet.Number {
		writeServiceError(w, r, models.ErrTransactionNotFound)
		return
	}

	status, err := h.ledger.GetStatus(r.Context(), reference)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, status)
}

// VerifyPayment handles GET /v1/wallet/verify-payment, the provider redirect target.
func (h *WalletHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	reference := strings.TrimSpace(r.URL.Query().Get("reference"))
	if reference == "" {
		reference = strings.TrimSpace(r.URL.Query().Get("trxref"))
	}
	if reference == "" {
		respondValidation(w, r, "reference", "reference is required")
		return
	}
	status, err := h.deposits.VerifyDeposit(r.Context(), reference)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, status)
}
