package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/snarg/audiocast/internal/database"
)

// AccountReader is satisfied by *database.DB.
type AccountReader interface {
	Balance(ctx context.Context, userID string) (int64, error)
	LedgerEntries(ctx context.Context, userID string, limit int) ([]database.LedgerEntry, error)
}

type AccountHandler struct {
	accounts AccountReader
}

func NewAccountHandler(accounts AccountReader) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

func (h *AccountHandler) Routes(r chi.Router) {
	r.Get("/account", h.GetAccount)
}

type accountResponse struct {
	UserID  string                 `json:"user_id"`
	Balance int64                  `json:"balance"`
	Entries []database.LedgerEntry `json:"entries"`
}

// GetAccount handles GET /api/v1/account?limit=.
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	p, err := ParsePagination(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID := UserID(r.Context())
	balance, err := h.accounts.Balance(r.Context(), userID)
	if err != nil {
		writeRunError(w, r, err)
		return
	}
	entries, err := h.accounts.LedgerEntries(r.Context(), userID, p.Limit)
	if err != nil {
		writeRunError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, accountResponse{UserID: userID, Balance: balance, Entries: entries})
}
