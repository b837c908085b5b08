package api

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atelierhorizon/orderboard/backend/sync-service/internal/models"
	"github.com/atelierhorizon/orderboard/backend/sync-service/internal/notify"
)

// waitFor polls a condition until it holds or the deadline passes
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStreamAcknowledgesForwardsAndCleansUp(t *testing.T) {
	store := newFakeStore()
	hub := notify.NewHub()
	h := NewHandler(store, hub)
	h.keepAliveInterval = 20 * time.Millisecond
	r := newTestRouter(h)

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/events/orders")
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("expected text/event-stream content type, got %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readLine := func() string {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("stream read failed: %v", err)
		}
		return strings.TrimRight(line, "\n")
	}

	// First event must be the connected acknowledgement
	sawConnected := false
	for i := 0; i < 5; i++ {
		line := readLine()
		if strings.HasPrefix(line, "event:") && strings.TrimSpace(strings.TrimPrefix(line, "event:")) == "connected" {
			sawConnected = true
			break
		}
	}
	if !sawConnected {
		t.Fatal("expected connected acknowledgement as the first event")
	}

	// The stream registers exactly one subscriber on the orders topic
	waitFor(t, time.Second, func() bool { return hub.SubscriberCount(notify.TopicOrderCreated) == 1 },
		"expected one subscriber after stream establishment")

	hub.Publish(notify.TopicOrderCreated, &models.Order{ID: "ord-42", ExternalReference: "H-042"})

	sawEvent, sawPayload, sawKeepAlive := false, false, false
	deadline := time.After(2 * time.Second)
	for !(sawEvent && sawPayload && sawKeepAlive) {
		select {
		case <-deadline:
			t.Fatalf("timed out: event=%v payload=%v keepalive=%v", sawEvent, sawPayload, sawKeepAlive)
		default:
		}
		line := readLine()
		switch {
		case strings.HasPrefix(line, "event:") && strings.Contains(line, "order-created"):
			sawEvent = true
		case strings.HasPrefix(line, "data:") && strings.Contains(line, "H-042"):
			sawPayload = true
		case strings.HasPrefix(line, ":"):
			// keep-alive comment; must not carry an event name
			sawKeepAlive = true
		}
	}

	// Disconnect must remove the subscriber registration
	resp.Body.Close()
	waitFor(t, time.Second, func() bool { return hub.SubscriberCount(notify.TopicOrderCreated) == 0 },
		"expected subscriber cleanup after disconnect")
}

func TestNotesStreamIgnoresOrderTopic(t *testing.T) {
	store := newFakeStore()
	hub := notify.NewHub()
	h := NewHandler(store, hub)
	h.keepAliveInterval = 20 * time.Millisecond
	r := newTestRouter(h)

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/events/notes")
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	defer resp.Body.Close()

	waitFor(t, time.Second, func() bool { return hub.SubscriberCount(notify.TopicNoteChanged) == 1 },
		"expected a notes subscriber")
	if hub.SubscriberCount(notify.TopicOrderCreated) != 0 {
		t.Fatal("notes stream must not subscribe to the orders topic")
	}
}
