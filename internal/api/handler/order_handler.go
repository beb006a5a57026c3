package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/velora/optionsim/internal/domain"
	"github.com/velora/optionsim/internal/ledger"
	"github.com/velora/optionsim/internal/ws"
)

// expiryPresets maps the accepted expiry labels to their durations.
var expiryPresets = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"10m": 10 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"1d":  24 * time.Hour,
}

// OrderHandler serves order placement and position listing endpoints.
type OrderHandler struct {
	ledger *ledger.Ledger
	hub    *ws.Hub // may be nil in tests
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(l *ledger.Ledger, hub *ws.Hub) *OrderHandler {
	return &OrderHandler{ledger: l, hub: hub}
}

// PlaceOrder godoc
// POST /api/orders
// Body: {"direction":"UP","amount":"25","expiry":"5m"}
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	var body struct {
		Direction string `json:"direction" binding:"required"`
		Amount    string `json:"amount"    binding:"required"`
		Expiry    string `json:"expiry"    binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	direction := domain.Direction(body.Direction)
	if !direction.IsValid() {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_DIRECTION", "direction must be UP or DOWN")
		return
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || !amount.IsPositive() {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "amount must be a positive decimal string")
		return
	}

	offset, ok := expiryPresets[body.Expiry]
	if !ok {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_EXPIRY", "expiry must be one of 1m, 5m, 10m, 30m, 1h, 1d")
		return
	}

	position, err := h.ledger.PlaceOrder(c.Request.Context(), domain.PlaceOrderRequest{
		Direction:    direction,
		Amount:       amount,
		ExpiryOffset: offset,
	})
	if err != nil {
		// Only admission rejections surface their own message and status;
		// anything else is server fault.
		if !domain.IsAdmissionError(err) {
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not place order")
			return
		}
		switch {
		case errors.Is(err, domain.ErrCapacityExceeded):
			respondError(c, http.StatusConflict, "ERR_CAPACITY_EXCEEDED", err.Error())
		case errors.Is(err, domain.ErrInvalidStake):
			respondError(c, http.StatusBadRequest, "ERR_INVALID_STAKE", err.Error())
		case errors.Is(err, domain.ErrInsufficientBalance):
			respondError(c, http.StatusPaymentRequired, "ERR_INSUFFICIENT_BALANCE", err.Error())
		default:
			respondError(c, http.StatusServiceUnavailable, "ERR_PRICE_UNAVAILABLE", err.Error())
		}
		return
	}

	if h.hub != nil {
		h.hub.BroadcastOrderPlaced(ws.OrderPlacedMessage{
			Type:       ws.MsgTypeOrderPlaced,
			PositionID: position.ID,
			Direction:  position.Direction,
			Amount:     position.Amount,
			EntryPrice: position.EntryPrice,
			ExpiryTime: position.ExpiryTime,
			Balance:    h.ledger.Balance(),
			Timestamp:  time.Now().UTC(),
		})
	}

	respondSuccess(c, http.StatusCreated, position)
}

// ListPositions godoc
// GET /api/positions?status=open|closed|all (default all)
func (h *OrderHandler) ListPositions(c *gin.Context) {
	status := c.DefaultQuery("status", "all")

	switch status {
	case "open":
		respondSuccess(c, http.StatusOK, gin.H{"open": h.ledger.OpenPositions()})
	case "closed":
		respondSuccess(c, http.StatusOK, gin.H{"closed": h.ledger.ClosedPositions()})
	case "all":
		respondSuccess(c, http.StatusOK, gin.H{
			"open":   h.ledger.OpenPositions(),
			"closed": h.ledger.ClosedPositions(),
		})
	default:
		respondError(c, http.StatusBadRequest, "ERR_INVALID_STATUS", "status must be open, closed, or all")
	}
}
