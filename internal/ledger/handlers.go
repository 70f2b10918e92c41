package ledger

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mbd888/ledger/internal/apperr"
	"github.com/mbd888/ledger/internal/money"
)

// Handler provides HTTP endpoints for account and transfer operations.
type Handler struct {
	accounts    AccountStore
	coordinator *TransferCoordinator
	logger      *slog.Logger
}

// NewHandler builds a Handler bound to the given store and coordinator.
func NewHandler(accounts AccountStore, coordinator *TransferCoordinator, logger *slog.Logger) *Handler {
	return &Handler{accounts: accounts, coordinator: coordinator, logger: logger}
}

// RegisterRoutes wires the ledger endpoints onto a router group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/account/", h.CreateAccount)
	r.GET("/account/:id/balance", h.GetBalance)
	r.POST("/transfer/", h.Transfer)
	r.GET("/events/", h.ListEvents)
}

func errStatus(err error) int {
	switch apperr.KindOf(err) {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.InsufficientFunds:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// CreateAccountRequest is the body of POST /ledger/account/.
type CreateAccountRequest struct {
	Currency string   `json:"currency" binding:"required,len=3"`
	Type     string   `json:"type" binding:"required"`
	Metadata Metadata `json:"metadata"`
}

// CreateAccount handles POST /ledger/account/.
func (h *Handler) CreateAccount(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	acct, err := h.accounts.CreateAccount(c.Request.Context(), req.Currency, req.Type, req.Metadata)
	if err != nil {
		h.logger.Error("create account failed", "error", err)
		c.JSON(errStatus(err), gin.H{"error": "account_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, acct)
}

// GetBalance handles GET /ledger/account/:id/balance.
func (h *Handler) GetBalance(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_account_id", "message": "account id must be a UUID"})
		return
	}

	bal, err := h.accounts.GetBalance(c.Request.Context(), id)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": "balance_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account_id":   bal.AccountID,
		"currency":     bal.Currency,
		"available":    money.Format(bal.Available),
		"pending":      money.Format(bal.Pending),
		"version":      bal.Version,
		"last_updated": bal.LastUpdated,
	})
}

// TransferRequestBody is the body of POST /ledger/transfer/.
type TransferRequestBody struct {
	SourceAccountID      uuid.UUID `json:"source_account_id" binding:"required"`
	DestinationAccountID uuid.UUID `json:"destination_account_id" binding:"required"`
	Amount               string    `json:"amount" binding:"required"`
	Currency             string    `json:"currency" binding:"required"`
	Metadata             Metadata  `json:"metadata"`
}

// Transfer handles POST /ledger/transfer/.
func (h *Handler) Transfer(c *gin.Context) {
	var body TransferRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	amount, ok := money.Parse(body.Amount)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount", "message": "amount must be a decimal number"})
		return
	}

	result, err := h.coordinator.Transfer(c.Request.Context(), TransferRequest{
		SourceAccountID:      body.SourceAccountID,
		DestinationAccountID: body.DestinationAccountID,
		Amount:               amount,
		Currency:             body.Currency,
		Metadata:             body.Metadata,
	})
	if err != nil {
		h.logger.Error("transfer failed", "error", err)
		c.JSON(errStatus(err), gin.H{"error": "transfer_error", "message": err.Error()})
		return
	}

	if !result.Success {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "transfer rejected",
			"errors":  result.Errors,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":        "transfer settled",
		"transaction_id": result.TransactionID,
		"events_created": len(result.Events),
	})
}

// ListEvents handles GET /ledger/events/?account_id=&limit=.
func (h *Handler) ListEvents(c *gin.Context) {
	var accountID *uuid.UUID
	if idStr := c.Query("account_id"); idStr != "" {
		id, err := uuid.Parse(idStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_account_id", "message": "account_id must be a UUID"})
			return
		}
		accountID = &id
	}

	limit := 100
	if limitStr := c.Query("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := h.accounts.ListEvents(c.Request.Context(), accountID, limit)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": "events_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}
