package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/atelierhorizon/orderboard/backend/sync-service/internal/models"
	"github.com/atelierhorizon/orderboard/backend/sync-service/internal/notify"
	"github.com/gin-gonic/gin"
)

// setGinTestMode ensures Gin does not write noisy logs during tests
func setGinTestMode() { gin.SetMode(gin.TestMode) }

// fakeStore is an in-memory OrderStore used as a persistence spy
type fakeStore struct {
	mu     sync.Mutex
	seq    int
	orders []*models.Order

	createCalls int
	updateCalls int

	createErr      error
	pretendMissing bool
}

func newFakeStore() *fakeStore { return &fakeStore{} }

func (f *fakeStore) Health(ctx context.Context) error { return nil }

func (f *fakeStore) findByReference(reference string) *models.Order {
	for _, o := range f.orders {
		if o.ExternalReference == reference {
			return o
		}
	}
	return nil
}

func (f *fakeStore) GetOrderByReference(ctx context.Context, reference string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pretendMissing {
		return nil, models.ErrOrderNotFound
	}
	if o := f.findByReference(reference); o != nil {
		copied := *o
		return &copied, nil
	}
	return nil, models.ErrOrderNotFound
}

func (f *fakeStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.ID == id {
			copied := *o
			return &copied, nil
		}
	}
	return nil, models.ErrOrderNotFound
}

func (f *fakeStore) CreateOrder(ctx context.Context, canonical *models.CanonicalOrder) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}

	f.seq++
	now := time.Now().UTC()
	order := &models.Order{
		ID:                fmt.Sprintf("ord-%d", f.seq),
		ExternalReference: canonical.ExternalReference,
		CustomerName:      canonical.CustomerName,
		CustomerFirstName: canonical.CustomerFirstName,
		CustomerPhone:     canonical.CustomerPhone,
		CustomerAddress:   canonical.CustomerAddress,
		Deadline:          canonical.Deadline,
		PaymentState:      canonical.PaymentState,
		TotalAmount:       canonical.TotalAmount,
		Status:            models.OrderStatusNew,
		Note:              canonical.Note,
		Items:             append([]models.LineItem(nil), canonical.Items...),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	f.orders = append(f.orders, order)
	copied := *order
	return &copied, nil
}

func (f *fakeStore) ApplyIngestUpdate(ctx context.Context, reference string, update models.IngestUpdate) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	o := f.findByReference(reference)
	if o == nil {
		return nil, models.ErrOrderNotFound
	}
	o.PaymentState = update.PaymentState
	o.Note = update.Note
	o.UpdatedAt = time.Now().UTC()
	copied := *o
	return &copied, nil
}

func (f *fakeStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Order, 0, len(f.orders))
	for i := len(f.orders) - 1; i >= 0; i-- {
		out = append(out, *f.orders[i])
	}
	return out, nil
}

func (f *fakeStore) UpdateOrderOperator(ctx context.Context, id string, update models.OperatorUpdate) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.ID == id {
			if update.Status != nil {
				o.Status = *update.Status
			}
			if update.PaymentState != nil {
				o.PaymentState = *update.PaymentState
			}
			if update.CustomerName != nil {
				o.CustomerName = *update.CustomerName
			}
			if update.TotalAmount != nil {
				o.TotalAmount = *update.TotalAmount
			}
			o.UpdatedAt = time.Now().UTC()
			copied := *o
			return &copied, nil
		}
	}
	return nil, models.ErrOrderNotFound
}

func (f *fakeStore) UpdateOrderNote(ctx context.Context, id string, note string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.ID == id {
			o.Note = note
			o.UpdatedAt = time.Now().UTC()
			copied := *o
			return &copied, nil
		}
	}
	return nil, models.ErrOrderNotFound
}

func (f *fakeStore) DeleteOrder(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, o := range f.orders {
		if o.ID == id {
			f.orders = append(f.orders[:i], f.orders[i+1:]...)
			return nil
		}
	}
	return models.ErrOrderNotFound
}

// newTestRouter mounts the handler's routes the way cmd/server does
func newTestRouter(h *Handler) *gin.Engine {
	setGinTestMode()
	r := gin.New()
	webhook := r.Group("/api/webhook")
	webhook.Use(WebhookAuthMiddleware())
	webhook.POST("/orders", h.IngestOrder)

	r.GET("/api/orders", h.ListOrders)
	r.PATCH("/api/orders/:order_id", h.UpdateOrder)
	r.PUT("/api/orders/:order_id/note", h.UpdateOrderNote)
	r.DELETE("/api/orders/:order_id", h.DeleteOrder)
	r.GET("/api/events/orders", h.StreamOrders)
	r.GET("/api/events/notes", h.StreamNotes)
	return r
}

func postWebhook(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/orders", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeOrder(t *testing.T, w *httptest.ResponseRecorder) models.Order {
	t.Helper()
	var resp struct {
		Data models.Order `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return resp.Data
}

func TestIngestCreatesOrderAndFiresEvent(t *testing.T) {
	store := newFakeStore()
	hub := notify.NewHub()
	h := NewHandler(store, hub)
	r := newTestRouter(h)

	events := 0
	hub.Subscribe(notify.TopicOrderCreated, func(interface{}) { events++ })

	w := postWebhook(r, `{"commande": "H-099", "nom": "Client Test", "prix": {"total": 50}}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 on first ingestion, got %d: %s", w.Code, w.Body.String())
	}
	order := decodeOrder(t, w)
	if order.ExternalReference != "H-099" {
		t.Errorf("expected reference H-099, got %q", order.ExternalReference)
	}
	if order.TotalAmount != 50 {
		t.Errorf("expected total 50, got %v", order.TotalAmount)
	}
	if len(order.Items) != 1 {
		t.Errorf("expected exactly one synthesized item, got %d", len(order.Items))
	}
	if store.createCalls != 1 {
		t.Errorf("expected one create call, got %d", store.createCalls)
	}
	if events != 1 {
		t.Errorf("expected one order-created event, got %d", events)
	}
}

func TestIngestRepeatIsRestrictedUpdate(t *testing.T) {
	store := newFakeStore()
	hub := notify.NewHub()
	h := NewHandler(store, hub)
	r := newTestRouter(h)

	events := 0
	hub.Subscribe(notify.TopicOrderCreated, func(interface{}) { events++ })

	first := postWebhook(r, `{"commande": "H-099", "nom": "Client Test", "prix": {"total": 50}}`)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", first.Code)
	}
	created := decodeOrder(t, first)

	second := postWebhook(r, `{"commande": "H-099", "nom": "Client Test", "prix": {"total": 50}, "paiement": {"statut": "OUI"}}`)
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200 on re-ingestion, got %d: %s", second.Code, second.Body.String())
	}
	updated := decodeOrder(t, second)

	if updated.ID != created.ID {
		t.Errorf("re-ingestion must update the same order, got %q vs %q", updated.ID, created.ID)
	}
	if updated.PaymentState != models.PaymentStatePaid {
		t.Errorf("expected PAID after re-ingestion, got %v", updated.PaymentState)
	}
	if updated.TotalAmount != created.TotalAmount {
		t.Errorf("update path must not touch total: %v vs %v", updated.TotalAmount, created.TotalAmount)
	}
	if store.createCalls != 1 {
		t.Errorf("expected exactly one create across both deliveries, got %d", store.createCalls)
	}
	if events != 1 {
		t.Errorf("updates must not emit order-created, got %d events", events)
	}
}

func TestIngestValidationGating(t *testing.T) {
	store := newFakeStore()
	hub := notify.NewHub()
	h := NewHandler(store, hub)
	r := newTestRouter(h)

	events := 0
	hub.Subscribe(notify.TopicOrderCreated, func(interface{}) { events++ })

	w := postWebhook(r, `{"commande": "H-100", "nom": "Client Test"}`)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for missing total, got %d", w.Code)
	}
	var resp models.ValidationErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode validation response: %v", err)
	}
	if len(resp.Fields) != 1 || resp.Fields[0].Field != "prix.total" {
		t.Errorf("expected prix.total field error, got %+v", resp.Fields)
	}
	if store.createCalls != 0 || store.updateCalls != 0 {
		t.Errorf("validation failure must cause zero writes, got create=%d update=%d", store.createCalls, store.updateCalls)
	}
	if events != 0 {
		t.Errorf("validation failure must emit zero events, got %d", events)
	}
}

func TestIngestPersistenceFailure(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("connection refused")
	hub := notify.NewHub()
	h := NewHandler(store, hub)
	r := newTestRouter(h)

	events := 0
	hub.Subscribe(notify.TopicOrderCreated, func(interface{}) { events++ })

	w := postWebhook(r, `{"commande": "H-101", "nom": "Client", "prix": {"total": 20}}`)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on persistence failure, got %d", w.Code)
	}
	if events != 0 {
		t.Errorf("persistence failure must emit zero events, got %d", events)
	}
}

func TestIngestLostCreateRaceFallsBackToUpdate(t *testing.T) {
	store := newFakeStore()
	hub := notify.NewHub()
	h := NewHandler(store, hub)
	r := newTestRouter(h)

	// Seed the order as if a concurrent delivery inserted it between our
	// existence check and our insert
	seed := postWebhook(r, `{"commande": "H-102", "nom": "Client", "prix": {"total": 30}}`)
	if seed.Code != http.StatusCreated {
		t.Fatalf("seed failed: %d", seed.Code)
	}
	store.pretendMissing = true
	store.createErr = models.ErrDuplicateReference

	w := postWebhook(r, `{"commande": "H-102", "nom": "Client", "prix": {"total": 30}, "paiement": {"statut": "OUI"}}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after losing the create race, got %d: %s", w.Code, w.Body.String())
	}
	order := decodeOrder(t, w)
	if order.PaymentState != models.PaymentStatePaid {
		t.Errorf("expected the update path to apply, got %v", order.PaymentState)
	}
}

func TestWebhookSharedSecret(t *testing.T) {
	os.Setenv("WEBHOOK_SECRET", "atelier-secret")
	defer os.Unsetenv("WEBHOOK_SECRET")

	store := newFakeStore()
	h := NewHandler(store, notify.NewHub())
	r := newTestRouter(h)

	body := `{"commande": "H-103", "nom": "Client", "prix": {"total": 10}}`

	// Missing secret
	w := postWebhook(r, body)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without secret, got %d", w.Code)
	}

	// Wrong secret
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/orders", bytes.NewBufferString(body))
	req.Header.Set("X-Webhook-Secret", "wrong")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong secret, got %d", w.Code)
	}

	// Dedicated header
	req = httptest.NewRequest(http.MethodPost, "/api/webhook/orders", bytes.NewBufferString(body))
	req.Header.Set("X-Webhook-Secret", "atelier-secret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 with dedicated header, got %d", w.Code)
	}

	// Bearer scheme
	req = httptest.NewRequest(http.MethodPost, "/api/webhook/orders", bytes.NewBufferString(body))
	req.Header.Set("Authorization", "Bearer atelier-secret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 re-ingestion with bearer secret, got %d", w.Code)
	}
}

func TestWebhookDevModeBypass(t *testing.T) {
	os.Unsetenv("WEBHOOK_SECRET")

	store := newFakeStore()
	h := NewHandler(store, notify.NewHub())
	r := newTestRouter(h)

	w := postWebhook(r, `{"commande": "H-104", "nom": "Client", "prix": {"total": 10}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 with no secret configured, got %d", w.Code)
	}
}
