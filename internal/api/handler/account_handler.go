package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/velora/optionsim/internal/config"
	"github.com/velora/optionsim/internal/ledger"
)

// AccountHandler serves balance, statistics, and reset endpoints for the
// single simulated account.
type AccountHandler struct {
	ledger *ledger.Ledger
	cfg    *config.Config
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(l *ledger.Ledger, cfg *config.Config) *AccountHandler {
	return &AccountHandler{ledger: l, cfg: cfg}
}

// GetAccount godoc
// GET /api/account
func (h *AccountHandler) GetAccount(c *gin.Context) {
	respondSuccess(c, http.StatusOK, gin.H{
		"balance":         h.ledger.Balance(),
		"initial_balance": h.cfg.Trading.InitialBalance,
		"payout_rate":     h.ledger.PayoutRate(),
		"open_positions":  len(h.ledger.OpenPositions()),
		"max_positions":   h.cfg.Trading.MaxPositions,
		"min_stake":       h.cfg.Trading.MinStake,
	})
}

// GetStats godoc
// GET /api/stats
func (h *AccountHandler) GetStats(c *gin.Context) {
	respondSuccess(c, http.StatusOK, h.ledger.Statistics())
}

// Reset godoc
// POST /api/account/reset
// Cancels all open positions, clears history, and restores the starting
// balance.
func (h *AccountHandler) Reset(c *gin.Context) {
	if err := h.ledger.Reset(c.Request.Context()); err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not reset account")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"balance": h.ledger.Balance(),
	})
}
