package ledger_http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ledger/internal/app/ledger"
	"ledger/internal/domain"
)

const credentialHeader = "X-Account-Credential"

type LedgerService interface {
	Login(ctx context.Context, id, cred string) (*ledger.Engine, error)
	Provision(ctx context.Context, id, cred string, openingBalance decimal.Decimal) (*domain.Account, error)
	CurrencyScale() int32
}

type LedgerHandler struct {
	service LedgerService
	logger  *zap.Logger
}

func NewLedgerHandler(s LedgerService, l *zap.Logger) *LedgerHandler {
	return &LedgerHandler{service: s, logger: l}
}

type OpenAccountRequest struct {
	AccountID      string `json:"account_id"`
	Credential     string `json:"credential"`
	OpeningBalance string `json:"opening_balance"`
}

type AmountRequest struct {
	Amount string `json:"amount"`
}

type TransferRequest struct {
	Amount      string `json:"amount"`
	RecipientID string `json:"recipient_id"`
}

type ChangeCredentialRequest struct {
	NewCredential string `json:"new_credential"`
}

type BalanceResponse struct {
	AccountID string `json:"account_id"`
	Balance   string `json:"balance"`
}

type ErrorResponse struct {
	Code    domain.ErrorKind `json:"code"`
	Message string           `json:"message"`
}

func (h *LedgerHandler) OpenAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req OpenAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "Invalid request body")
		return
	}
	opening := decimal.Zero
	if req.OpeningBalance != "" {
		var err error
		if opening, err = decimal.NewFromString(req.OpeningBalance); err != nil {
			h.writeError(w, r, domain.ErrInvalidAmount)
			return
		}
	}

	account, err := h.service.Provision(r.Context(), req.AccountID, req.Credential, opening)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, h.balanceResponse(account.ID, account.Balance))
}

func (h *LedgerHandler) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.login(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, h.balanceResponse(engine.AccountID(), engine.Balance()))
}

func (h *LedgerHandler) DepositHandler(w http.ResponseWriter, r *http.Request) {
	h.amountOperation(w, r, (*ledger.Engine).Deposit)
}

func (h *LedgerHandler) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	h.amountOperation(w, r, (*ledger.Engine).Withdraw)
}

func (h *LedgerHandler) amountOperation(w http.ResponseWriter, r *http.Request,
	op func(*ledger.Engine, context.Context, decimal.Decimal) (decimal.Decimal, error)) {
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "Invalid request body")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.writeError(w, r, domain.ErrInvalidAmount)
		return
	}
	engine, ok := h.login(w, r)
	if !ok {
		return
	}
	balance, err := op(engine, r.Context(), amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.balanceResponse(engine.AccountID(), balance))
}

func (h *LedgerHandler) TransferHandler(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "Invalid request body")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.writeError(w, r, domain.ErrInvalidAmount)
		return
	}
	engine, ok := h.login(w, r)
	if !ok {
		return
	}
	balance, err := engine.Transfer(r.Context(), amount, req.RecipientID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.balanceResponse(engine.AccountID(), balance))
}

func (h *LedgerHandler) ChangeCredentialHandler(w http.ResponseWriter, r *http.Request) {
	var req ChangeCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "Invalid request body")
		return
	}
	engine, ok := h.login(w, r)
	if !ok {
		return
	}
	if err := engine.ChangeCredential(r.Context(), r.Header.Get(credentialHeader), req.NewCredential); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// login opens a session for the account in the path using the credential
// header. On failure the response has already been written.
func (h *LedgerHandler) login(w http.ResponseWriter, r *http.Request) (*ledger.Engine, bool) {
	id := chi.URLParam(r, "id")
	cred := r.Header.Get(credentialHeader)
	if strings.TrimSpace(id) == "" || cred == "" {
		h.writeError(w, r, domain.ErrCredentialMismatch)
		return nil, false
	}
	engine, err := h.service.Login(r.Context(), id, cred)
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return engine, true
}

func (h *LedgerHandler) balanceResponse(id string, balance decimal.Decimal) BalanceResponse {
	return BalanceResponse{AccountID: id, Balance: balance.StringFixed(h.service.CurrencyScale())}
}

func (h *LedgerHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.String("code", string(kind)),
		zap.Error(err),
	}
	var tfe *domain.TransferFailedError
	if errors.As(err, &tfe) {
		fields = append(fields, zap.String("transfer_id", tfe.TransferID))
	}
	switch {
	case kind == domain.KindReconciliationRequired || status >= http.StatusInternalServerError:
		h.logger.Error("Request failed", fields...)
	default:
		h.logger.Debug("Request rejected", fields...)
	}
	h.writeJSON(w, status, ErrorResponse{Code: kind, Message: domain.UserMessage(err)})
}

func (h *LedgerHandler) writeBadRequest(w http.ResponseWriter, message string) {
	h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: domain.KindInvalidOperation, Message: message})
}

func (h *LedgerHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to write JSON response", zap.Error(err))
	}
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidAmount, domain.KindInvalidOperation:
		return http.StatusBadRequest
	case domain.KindCredentialMismatch:
		return http.StatusUnauthorized
	case domain.KindAccountNotFound, domain.KindRecipientNotFound:
		return http.StatusNotFound
	case domain.KindAccountAlreadyExists, domain.KindConcurrentModification:
		return http.StatusConflict
	case domain.KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case domain.KindPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
