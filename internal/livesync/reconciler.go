package livesync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/atelierhorizon/orderboard/backend/sync-service/internal/models"
)

// State is the connection state of a reconciler
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateLive         State = "live"
	StateDegraded     State = "degraded"
)

// Default timing contract; all overridable through Config
const (
	defaultPollInterval     = 5 * time.Second
	defaultReconnectBackoff = 10 * time.Second
	defaultRefetchDelay     = 2 * time.Second
	defaultNewFlagTTL       = 6 * time.Second
)

// Config configures a Reconciler
type Config struct {
	// StreamURL is the live sync channel endpoint (text/event-stream)
	StreamURL string
	// OrdersURL is the polling fallback endpoint returning the full order list
	OrdersURL string
	// Client defaults to http.DefaultClient
	Client *http.Client

	// PollInterval is the degraded-mode polling cadence (default 5s)
	PollInterval time.Duration
	// ReconnectBackoff delays the single reconnect attempt after a stream
	// failure (default 10s)
	ReconnectBackoff time.Duration
	// RefetchDelay is the consistency safety net after an optimistic push
	// apply (default 2s)
	RefetchDelay time.Duration
	// NewFlagTTL is how long freshly seen orders stay flagged (default 6s)
	NewFlagTTL time.Duration

	// OnChange is invoked after every state or order-list change
	OnChange func(Snapshot)
}

// Snapshot is a point-in-time copy of the reconciler's view
type Snapshot struct {
	State  State
	Orders []models.Order
	NewIDs map[string]bool
}

// Reconciler maintains an eventually consistent client-side view of the
// order list: push-primary over the live sync channel, poll-fallback when
// the stream is down, full-replace reconciliation in both modes.
type Reconciler struct {
	cfg    Config
	client *http.Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	state        State
	orders       []models.Order
	known        map[string]bool
	newIDs       map[string]bool
	primed       bool
	pollStop     chan struct{}
	refetchTimer *time.Timer
	flagTimers   map[string]*time.Timer
}

// New creates a reconciler; Start begins synchronization
func New(cfg Config) *Reconciler {
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = defaultReconnectBackoff
	}
	if cfg.RefetchDelay <= 0 {
		cfg.RefetchDelay = defaultRefetchDelay
	}
	if cfg.NewFlagTTL <= 0 {
		cfg.NewFlagTTL = defaultNewFlagTTL
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		cfg:        cfg,
		client:     cfg.Client,
		ctx:        ctx,
		cancel:     cancel,
		state:      StateDisconnected,
		known:      make(map[string]bool),
		newIDs:     make(map[string]bool),
		flagTimers: make(map[string]*time.Timer),
	}
}

// Start opens the live sync channel and keeps the view synchronized until Stop
func (r *Reconciler) Start() {
	r.wg.Add(1)
	go r.runStream()
}

// Stop tears everything down: the stream, the polling loop and every pending
// timer. Safe to call once; unconditional cleanup on all paths.
func (r *Reconciler) Stop() {
	r.cancel()

	r.mu.Lock()
	if r.pollStop != nil {
		close(r.pollStop)
		r.pollStop = nil
	}
	if r.refetchTimer != nil {
		r.refetchTimer.Stop()
		r.refetchTimer = nil
	}
	for id, t := range r.flagTimers {
		t.Stop()
		delete(r.flagTimers, id)
	}
	r.mu.Unlock()

	r.wg.Wait()
}

// State returns the current connection state
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Snapshot returns a copy of the current view
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// NotifyVisible triggers an immediate reconciliation, covering events missed
// while the tab was backgrounded or suspended. Valid in any state.
func (r *Reconciler) NotifyVisible() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.refetch()
	}()
}

// runStream is the connect/consume/degrade/reconnect loop
func (r *Reconciler) runStream() {
	defer r.wg.Done()

	for {
		if r.ctx.Err() != nil {
			return
		}
		r.setState(StateConnecting)

		err := r.consumeStream()
		if r.ctx.Err() != nil {
			return
		}
		_ = err

		// Stream failed: degrade, poll, and schedule one reconnect attempt
		r.setState(StateDegraded)
		r.startPolling()

		select {
		case <-r.ctx.Done():
			return
		case <-time.After(r.cfg.ReconnectBackoff):
		}
	}
}

// consumeStream opens the event stream and dispatches events until it ends
func (r *Reconciler) consumeStream() error {
	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, r.cfg.StreamURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream endpoint returned status %d", resp.StatusCode)
	}

	return readEvents(resp.Body, r.handleEvent)
}

// handleEvent reacts to one named stream event
func (r *Reconciler) handleEvent(name string, data []byte) {
	switch name {
	case "connected":
		r.setState(StateLive)
		r.stopPolling()
		// Close the gap between page load and stream establishment
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.refetch()
		}()

	case "order-created":
		var order models.Order
		if err := json.Unmarshal(data, &order); err != nil || order.ID == "" {
			return
		}
		r.applyOrderCreated(order)
	}
}

// applyOrderCreated optimistically prepends a pushed order (dedup by id) and
// schedules the short-delay safety refetch, since the push payload may be
// missing fields populated asynchronously elsewhere
func (r *Reconciler) applyOrderCreated(order models.Order) {
	r.mu.Lock()
	if r.known[order.ID] {
		r.mu.Unlock()
		return
	}
	r.orders = append([]models.Order{order}, r.orders...)
	r.known[order.ID] = true
	r.flagNewLocked(order.ID)
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	r.notify(snapshot)
	r.scheduleRefetch()
}

// refetch is the reconciliation step: fetch the full list and replace local
// state entirely. Never merges partial state.
func (r *Reconciler) refetch() {
	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, r.cfg.OrdersURL, nil)
	if err != nil {
		return
	}
	resp, err := r.client.Do(req)
	if err != nil {
		// Drift correction failed this round; the next poll or visibility
		// refetch will retry
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return
	}

	var payload struct {
		Data []models.Order `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return
	}

	r.mu.Lock()
	fresh := make(map[string]bool, len(payload.Data))
	for _, o := range payload.Data {
		fresh[o.ID] = true
		// Flag ids never seen before, but not on the very first load
		if r.primed && !r.known[o.ID] {
			r.flagNewLocked(o.ID)
		}
	}
	r.orders = payload.Data
	r.known = fresh
	r.primed = true
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	r.notify(snapshot)
}

// scheduleRefetch arms (or re-arms) the delayed safety refetch
func (r *Reconciler) scheduleRefetch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refetchTimer != nil {
		r.refetchTimer.Stop()
	}
	r.refetchTimer = time.AfterFunc(r.cfg.RefetchDelay, func() {
		if r.ctx.Err() != nil {
			return
		}
		r.refetch()
	})
}

// startPolling begins degraded-mode polling; the first poll fires immediately
func (r *Reconciler) startPolling() {
	r.mu.Lock()
	if r.pollStop != nil {
		r.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	r.pollStop = stop
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.refetch()
		ticker := time.NewTicker(r.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				r.refetch()
			}
		}
	}()
}

// stopPolling disables the fallback when the stream is live again
func (r *Reconciler) stopPolling() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pollStop != nil {
		close(r.pollStop)
		r.pollStop = nil
	}
}

// flagNewLocked marks an id as new for the configured TTL. Caller holds r.mu.
func (r *Reconciler) flagNewLocked(id string) {
	r.newIDs[id] = true
	if t, ok := r.flagTimers[id]; ok {
		t.Stop()
	}
	r.flagTimers[id] = time.AfterFunc(r.cfg.NewFlagTTL, func() {
		r.mu.Lock()
		delete(r.newIDs, id)
		delete(r.flagTimers, id)
		snapshot := r.snapshotLocked()
		r.mu.Unlock()
		r.notify(snapshot)
	})
}

func (r *Reconciler) setState(s State) {
	r.mu.Lock()
	if r.state == s {
		r.mu.Unlock()
		return
	}
	r.state = s
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	r.notify(snapshot)
}

// snapshotLocked copies the view. Caller holds r.mu.
func (r *Reconciler) snapshotLocked() Snapshot {
	orders := make([]models.Order, len(r.orders))
	copy(orders, r.orders)
	newIDs := make(map[string]bool, len(r.newIDs))
	for id := range r.newIDs {
		newIDs[id] = true
	}
	return Snapshot{State: r.state, Orders: orders, NewIDs: newIDs}
}

func (r *Reconciler) notify(s Snapshot) {
	if r.cfg.OnChange != nil {
		r.cfg.OnChange(s)
	}
}
