package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tunnelkit/support/internal/support"
)

type accountStore interface {
	Account(ctx context.Context) (support.AccountContext, error)
	Save(ctx context.Context, acct support.AccountContext) error
	Clear(ctx context.Context) error
}

// AccountHandler manages the signed-in account. The token is write-only.
type AccountHandler struct {
	BaseHandler
	store accountStore
}

func NewAccountHandler(logger *slog.Logger, store accountStore) *AccountHandler {
	return &AccountHandler{BaseHandler: BaseHandler{Logger: logger}, store: store}
}

// Get reports whether an account token is configured.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	acct, err := h.store.Account(r.Context())
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	if err := h.writeJSON(w, http.StatusOK, envelope{"hasAccountToken": acct.HasToken()}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// Update stores a new account token.
func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	var input struct {
		AccountToken string `json:"accountToken"`
	}
	if err := h.readJSON(w, r, &input); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	token := strings.TrimSpace(input.AccountToken)
	if token == "" {
		h.unprocessableResponse(w, r, "accountToken is required")
		return
	}

	if err := h.store.Save(r.Context(), support.AccountContext{AccountToken: token}); err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	if err := h.writeJSON(w, http.StatusOK, envelope{"hasAccountToken": true}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// Delete signs the account out.
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
