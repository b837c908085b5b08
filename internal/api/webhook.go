package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/atelierhorizon/orderboard/backend/sync-service/internal/ingest"
	"github.com/atelierhorizon/orderboard/backend/sync-service/internal/logging"
	"github.com/atelierhorizon/orderboard/backend/sync-service/internal/metrics"
	"github.com/atelierhorizon/orderboard/backend/sync-service/internal/models"
	"github.com/atelierhorizon/orderboard/backend/sync-service/internal/notify"
	"github.com/gin-gonic/gin"
)

// IngestOrder receives a storefront webhook, normalizes it and applies the
// idempotent upsert keyed on the external reference. First delivery of a
// reference creates the order atomically and fires order-created; any later
// delivery only touches payment state, note and updated_at.
func (h *Handler) IngestOrder(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Unreadable request body",
			Message: err.Error(),
		})
		return
	}

	canonical, fieldErrs := ingest.Normalize(body)
	if len(fieldErrs) > 0 {
		metrics.IngestRejected.Inc()
		c.JSON(http.StatusUnprocessableEntity, models.ValidationErrorResponse{
			Error:  "Invalid order payload",
			Fields: fieldErrs,
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = h.store.GetOrderByReference(ctx, canonical.ExternalReference)
	switch {
	case err == nil:
		h.ingestUpdate(c, ctx, canonical)
	case errors.Is(err, models.ErrOrderNotFound):
		h.ingestCreate(c, ctx, canonical)
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Failed to look up order",
			Message: err.Error(),
		})
	}
}

// ingestCreate persists a new order and notifies subscribers. Losing the
// create race to a concurrent delivery of the same reference falls through
// to the update path instead of failing.
func (h *Handler) ingestCreate(c *gin.Context, ctx context.Context, canonical *models.CanonicalOrder) {
	order, err := h.store.CreateOrder(ctx, canonical)
	if err != nil {
		if errors.Is(err, models.ErrDuplicateReference) {
			h.ingestUpdate(c, ctx, canonical)
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Failed to create order",
			Message: err.Error(),
		})
		return
	}

	h.hub.Publish(notify.TopicOrderCreated, order)
	metrics.IngestCreated.Inc()
	logging.LogKV("info", "order ingested", map[string]interface{}{
		"reference": order.ExternalReference,
		"order_id":  order.ID,
		"items":     len(order.Items),
	})

	c.JSON(http.StatusCreated, models.SuccessResponse{
		Message: "Order created successfully",
		Data:    order,
	})
}

// ingestUpdate applies the restricted re-delivery mutation. No event is
// emitted on update; dashboards pick the change up on their next poll or
// refetch.
func (h *Handler) ingestUpdate(c *gin.Context, ctx context.Context, canonical *models.CanonicalOrder) {
	order, err := h.store.ApplyIngestUpdate(ctx, canonical.ExternalReference, models.IngestUpdate{
		PaymentState: canonical.PaymentState,
		Note:         canonical.Note,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Failed to update order",
			Message: err.Error(),
		})
		return
	}

	metrics.IngestUpdated.Inc()
	logging.LogKV("info", "order re-ingested", map[string]interface{}{
		"reference": order.ExternalReference,
		"order_id":  order.ID,
	})

	c.JSON(http.StatusOK, models.SuccessResponse{
		Message: "Order updated successfully",
		Data:    order,
	})
}
