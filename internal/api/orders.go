package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/atelierhorizon/orderboard/backend/sync-service/internal/models"
	"github.com/atelierhorizon/orderboard/backend/sync-service/internal/notify"
	"github.com/gin-gonic/gin"
)

// ListOrders returns the full current order list, newest first. This is the
// polling fallback and reconciliation endpoint for dashboard clients.
func (h *Handler) ListOrders(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	orders, err := h.store.ListOrders(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Failed to get orders",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Message: "Orders retrieved successfully",
		Data:    orders,
	})
}

// GetOrder retrieves a specific order by ID
func (h *Handler) GetOrder(c *gin.Context) {
	orderID := c.Param("order_id")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	order, err := h.store.GetOrder(ctx, orderID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrOrderNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, models.ErrorResponse{
			Error:   "Order not found",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Message: "Order retrieved successfully",
		Data:    order,
	})
}

// UpdateOrder applies an operator edit from the dashboard. Operator edits
// are unrestricted; the ingestion path's field policy does not apply here.
func (h *Handler) UpdateOrder(c *gin.Context) {
	orderID := c.Param("order_id")

	var req models.OperatorUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
		return
	}

	if req.Status != nil && !req.Status.IsValid() {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid status",
			Message: "Status must be one of: new, in_production, ready, delivered, cancelled",
		})
		return
	}
	if req.PaymentState != nil && !req.PaymentState.IsValid() {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid payment state",
			Message: "Payment state must be PAID or PENDING",
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	order, err := h.store.UpdateOrderOperator(ctx, orderID, req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrOrderNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, models.ErrorResponse{
			Error:   "Failed to update order",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Message: "Order updated successfully",
		Data:    order,
	})
}

// UpdateOrderNote edits the freeform note of an order and broadcasts a
// note-changed event to connected dashboards
func (h *Handler) UpdateOrderNote(c *gin.Context) {
	orderID := c.Param("order_id")

	var req models.UpdateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	order, err := h.store.UpdateOrderNote(ctx, orderID, req.Note)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrOrderNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, models.ErrorResponse{
			Error:   "Failed to update note",
			Message: err.Error(),
		})
		return
	}

	h.hub.Publish(notify.TopicNoteChanged, models.NoteChangedEvent{
		OrderID:           order.ID,
		ExternalReference: order.ExternalReference,
		Note:              order.Note,
		UpdatedAt:         order.UpdatedAt,
	})

	c.JSON(http.StatusOK, models.SuccessResponse{
		Message: "Note updated successfully",
		Data:    order,
	})
}

// DeleteOrder removes an order. Deletion is operator-initiated only; the
// ingestion path never deletes.
func (h *Handler) DeleteOrder(c *gin.Context) {
	orderID := c.Param("order_id")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.store.DeleteOrder(ctx, orderID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrOrderNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, models.ErrorResponse{
			Error:   "Failed to delete order",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Message: "Order deleted successfully",
	})
}
