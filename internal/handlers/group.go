package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"registration-gateway/internal/gateway"
	"registration-gateway/internal/inventory"
	"registration-gateway/internal/models"
	"registration-gateway/internal/services"
	"registration-gateway/internal/storage"
	"registration-gateway/internal/utils"
)

// GroupHandler exposes the administrative operations to the routing layer.
type GroupHandler struct {
	orchestrator *services.PaymentOrchestrator
	engine       *services.ConfirmationEngine
	reservations *services.ReservationManager
	unitPrice    float64
}

func NewGroupHandler(orchestrator *services.PaymentOrchestrator, engine *services.ConfirmationEngine, reservations *services.ReservationManager, unitPrice float64) *GroupHandler {
	return &GroupHandler{
		orchestrator: orchestrator,
		engine:       engine,
		reservations: reservations,
		unitPrice:    unitPrice,
	}
}

func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req models.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	result, err := h.orchestrator.Process(c.Request.Context(), &req, h.unitPrice)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, utils.SuccessResponse("Group created", result))
}

func (h *GroupHandler) GetGroup(c *gin.Context) {
	group, items, err := h.reservations.GetGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Group retrieved", gin.H{
		"group": group,
		"items": items,
	}))
}

func (h *GroupHandler) ConfirmGroup(c *gin.Context) {
	var req models.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	result, err := h.engine.Confirm(c.Request.Context(), c.Param("id"), req.ConfirmedBy)
	if err != nil {
		h.writeError(c, err)
		return
	}

	message := "Group confirmed"
	if !result.NotificationSent {
		message = "Group confirmed, notification delivery failed"
	}
	c.JSON(http.StatusOK, utils.SuccessResponse(message, result))
}

func (h *GroupHandler) RejectGroup(c *gin.Context) {
	var req models.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	group, err := h.engine.Reject(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Group rejected", group))
}

func (h *GroupHandler) ResendNotification(c *gin.Context) {
	if err := h.engine.ResendNotification(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Notification resent", nil))
}

func (h *GroupHandler) ReconcileGroup(c *gin.Context) {
	result, err := h.orchestrator.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Group reconciled", result))
}

func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	if err := h.engine.DeleteGroup(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Group deleted", nil))
}

func (h *GroupHandler) ListTransactions(c *gin.Context) {
	txs, err := h.orchestrator.ListTransactions(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Transactions retrieved", txs))
}

func (h *GroupHandler) CheckAvailability(c *gin.Context) {
	cat := models.Category{
		Size:   c.Query("size"),
		Gender: c.Query("gender"),
	}
	if cat.Size == "" || cat.Gender == "" {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("size and gender are required", ""))
		return
	}

	unit, err := h.reservations.CheckAvailability(c.Request.Context(), cat)
	if err != nil {
		h.writeError(c, err)
		return
	}

	qty := 1
	if q := c.Query("qty"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			qty = n
		}
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Availability retrieved", gin.H{
		"category":  cat,
		"capacity":  unit.Capacity,
		"reserved":  unit.Reserved,
		"sold":      unit.Sold,
		"available": unit.Available(),
		"can_cover": unit.Available() >= qty,
	}))
}

func (h *GroupHandler) writeError(c *gin.Context, err error) {
	var insufficient *inventory.InsufficientInventoryError
	var decline *gateway.DeclineError

	switch {
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Validation failed", err.Error()))
	case errors.As(err, &insufficient):
		c.JSON(http.StatusConflict, utils.ErrorResponse("Insufficient inventory", err.Error()))
	case errors.Is(err, services.ErrAlreadyProcessed):
		c.JSON(http.StatusConflict, utils.ErrorResponse("Group already processed", err.Error()))
	case errors.Is(err, services.ErrAttemptInFlight):
		c.JSON(http.StatusConflict, utils.ErrorResponse("Payment attempt in flight", err.Error()))
	case errors.As(err, &decline):
		c.JSON(http.StatusPaymentRequired, utils.ErrorResponse("Payment declined", err.Error()))
	case errors.Is(err, gateway.ErrUnavailable):
		c.JSON(http.StatusBadGateway, utils.ErrorResponse("Payment gateway unavailable, outcome pending reconciliation", err.Error()))
	case errors.Is(err, services.ErrNothingToReconcile):
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Nothing to reconcile", err.Error()))
	case errors.Is(err, storage.ErrGroupNotFound), errors.Is(err, storage.ErrInventoryNotFound):
		c.JSON(http.StatusNotFound, utils.ErrorResponse("Not found", err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Internal error", err.Error()))
	}
}
