package api

import (
	"context"
	"net/http"
	"time"

	"github.com/atelierhorizon/orderboard/backend/sync-service/internal/models"
	"github.com/atelierhorizon/orderboard/backend/sync-service/internal/notify"
	"github.com/gin-gonic/gin"
)

// OrderStore is the persistence surface the handlers depend on. The db
// package provides the Postgres implementation; tests substitute fakes.
type OrderStore interface {
	Health(ctx context.Context) error
	GetOrderByReference(ctx context.Context, reference string) (*models.Order, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	CreateOrder(ctx context.Context, canonical *models.CanonicalOrder) (*models.Order, error)
	ApplyIngestUpdate(ctx context.Context, reference string, update models.IngestUpdate) (*models.Order, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
	UpdateOrderOperator(ctx context.Context, id string, update models.OperatorUpdate) (*models.Order, error)
	UpdateOrderNote(ctx context.Context, id string, note string) (*models.Order, error)
	DeleteOrder(ctx context.Context, id string) error
}

// Handler holds the order store and the change notifier and provides HTTP handlers
type Handler struct {
	store OrderStore
	hub   *notify.Hub

	// keepAliveInterval is overridable in tests; zero means the 25s default
	keepAliveInterval time.Duration
}

// NewHandler creates a new handler instance
func NewHandler(store OrderStore, hub *notify.Hub) *Handler {
	return &Handler{
		store: store,
		hub:   hub,
	}
}

// Health checks the health of the service
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.store.Health(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Error:   "Database connection failed",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "sync-service",
		"timestamp": time.Now().UTC(),
	})
}
