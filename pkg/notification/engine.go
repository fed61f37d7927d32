package notification

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/storefront-dev/storefront/pkg/eventbus"
	"github.com/storefront-dev/storefront/pkg/metrics"
	"github.com/storefront-dev/storefront/pkg/realtime"
)

// Broadcast causes carried on eventbus.NotificationCounts.
const (
	CauseFetch       = "fetch"
	CausePush        = "push"
	CauseMarkRead    = "mark_read"
	CauseMarkAllRead = "mark_all_read"
	CauseReset       = "reset"
)

// Engine owns the notification set and is the only place it is merged.
//
// Every change ends in exactly one notificationsChanged broadcast carrying
// the post-change counts, so observers never reconcile on their own.
//
// Merge rules when a fetch lands:
//   - a fetch older than the last applied one is dropped
//   - IsRead never goes from true back to false
//   - a local copy with a higher Version wins
//   - an item pushed after the fetch started and missing from it is kept
type Engine struct {
	api         API
	bus         *eventbus.Bus
	metrics     *metrics.Collector
	logger      *slog.Logger
	pushTimeout time.Duration

	mu         sync.Mutex
	items      map[string]Notification
	pushedAt   map[string]uint64 // fetch sequence current when the item was pushed
	fetchSeq   uint64
	appliedSeq uint64
	generation uint64 // bumped on reset; older responses are dropped

	unsubAuth func()
}

// Option configures an Engine.
type Option func(*Engine)

// WithBus sets the bus used for broadcasts. Default is a private bus.
func WithBus(b *eventbus.Bus) Option {
	return func(e *Engine) {
		e.bus = b
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithPushTimeout bounds the refetch triggered by a push (default 15s).
func WithPushTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pushTimeout = d
		}
	}
}

// NewEngine creates an engine over api. The engine clears itself when the
// bus reports that the session ended.
func NewEngine(api API, opts ...Option) *Engine {
	e := &Engine{
		api:         api,
		logger:      slog.Default().With("component", "notification"),
		pushTimeout: 15 * time.Second,
		items:       make(map[string]Notification),
		pushedAt:    make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.bus == nil {
		e.bus = eventbus.New(eventbus.WithLogger(e.logger))
	}

	e.unsubAuth = eventbus.Subscribe(e.bus, eventbus.AuthStateChanged, func(s eventbus.AuthState) {
		if !s.Authenticated {
			e.Reset()
		}
	})
	return e
}

// Bus returns the bus broadcasts are published on.
func (e *Engine) Bus() *eventbus.Bus {
	return e.bus
}

// FetchAll replaces the local set with the backend's, subject to the merge
// rules. A response that lost the race to a newer fetch is dropped silently.
func (e *Engine) FetchAll(ctx context.Context) error {
	applied, err := e.fetch(ctx, CauseFetch)
	if err != nil {
		return err
	}
	if !applied {
		e.logger.Debug("discarded stale notification fetch")
	}
	return nil
}

func (e *Engine) fetch(ctx context.Context, cause string) (bool, error) {
	e.mu.Lock()
	e.fetchSeq++
	seq := e.fetchSeq
	gen := e.generation
	e.mu.Unlock()

	list, err := e.api.ListNotifications(ctx)

	e.mu.Lock()
	if gen != e.generation || seq < e.appliedSeq {
		e.mu.Unlock()
		return false, nil
	}
	if err != nil {
		e.mu.Unlock()
		return false, err
	}
	e.mergeLocked(list, seq)
	e.appliedSeq = seq
	counts := e.countsLocked()
	e.mu.Unlock()

	e.broadcast(counts, cause)
	return true, nil
}

func (e *Engine) mergeLocked(list []Notification, seq uint64) {
	next := make(map[string]Notification, len(list))
	for _, n := range list {
		if n.ID == "" {
			continue
		}
		if local, ok := e.items[n.ID]; ok {
			if local.Version > n.Version {
				n = local
			} else if local.IsRead {
				n.IsRead = true
			}
		}
		next[n.ID] = n
	}

	for id, local := range e.items {
		if _, ok := next[id]; ok {
			continue
		}
		if at, pushed := e.pushedAt[id]; pushed && at >= seq {
			next[id] = local
		}
	}

	// Only pushes newer than this fetch still need protecting.
	for id, at := range e.pushedAt {
		if at < seq {
			delete(e.pushedAt, id)
		}
	}
	e.items = next
}

// MarkAsRead marks one notification read. Marking an already-read
// notification succeeds without a network call. On failure the local state
// is unchanged.
func (e *Engine) MarkAsRead(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyID
	}

	e.mu.Lock()
	n, ok := e.items[id]
	gen := e.generation
	e.mu.Unlock()
	if ok && n.IsRead {
		return nil
	}

	if err := e.api.MarkNotificationRead(ctx, id); err != nil {
		return err
	}

	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		return nil
	}
	if n, ok := e.items[id]; ok {
		n.IsRead = true
		e.items[id] = n
	}
	counts := e.countsLocked()
	e.mu.Unlock()

	e.broadcast(counts, CauseMarkRead)
	return nil
}

// MarkAllAsRead marks read the notifications held when the request was
// sent. Items that arrive while it is in flight keep their own state. On
// failure the local state is unchanged.
func (e *Engine) MarkAllAsRead(ctx context.Context) error {
	e.mu.Lock()
	gen := e.generation
	ids := make([]string, 0, len(e.items))
	for id := range e.items {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	if err := e.api.MarkAllNotificationsRead(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		return nil
	}
	for _, id := range ids {
		if n, ok := e.items[id]; ok {
			n.IsRead = true
			e.items[id] = n
		}
	}
	counts := e.countsLocked()
	e.mu.Unlock()

	e.broadcast(counts, CauseMarkAllRead)
	return nil
}

// OnPush applies a push event. A payload carrying a full notification is
// upserted; anything else triggers a refetch. Either way exactly one
// broadcast follows.
func (e *Engine) OnPush(ctx context.Context, p Push) error {
	if n, ok := decodePush(p); ok {
		e.mu.Lock()
		if local, exists := e.items[n.ID]; exists {
			if local.Version > n.Version {
				n = local
			} else if local.IsRead {
				n.IsRead = true
			}
		}
		e.items[n.ID] = n
		e.pushedAt[n.ID] = e.fetchSeq
		counts := e.countsLocked()
		e.mu.Unlock()

		e.broadcast(counts, CausePush)
		return nil
	}

	applied, err := e.fetch(ctx, CausePush)
	if !applied {
		e.broadcast(e.Counts(), CausePush)
	}
	return err
}

// Counts derives unread, read and total from the current set.
func (e *Engine) Counts() Counts {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.countsLocked()
}

func (e *Engine) countsLocked() Counts {
	var c Counts
	for _, n := range e.items {
		if n.IsRead {
			c.Read++
		} else {
			c.Unread++
		}
	}
	c.Total = len(e.items)
	return c
}

// List returns the notifications, newest first.
func (e *Engine) List() []Notification {
	e.mu.Lock()
	out := make([]Notification, 0, len(e.items))
	for _, n := range e.items {
		out = append(out, n)
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Reset drops every notification and invalidates in-flight requests.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.generation++
	e.items = make(map[string]Notification)
	e.pushedAt = make(map[string]uint64)
	e.appliedSeq = e.fetchSeq
	e.mu.Unlock()

	e.broadcast(Counts{}, CauseReset)
}

// Attach routes push events from every connection rt creates: notification
// events go to OnPush and orderUpdate events are republished on the bus.
// The returned function detaches the engine from future connections.
func (e *Engine) Attach(rt *realtime.Manager) func() {
	return rt.OnConnect(func(c *realtime.Connection) {
		c.On(realtime.EventNotification, func(ev realtime.Event) {
			ctx, cancel := context.WithTimeout(context.Background(), e.pushTimeout)
			defer cancel()
			if err := e.OnPush(ctx, Push{Type: ev.Type, Data: ev.Data}); err != nil {
				e.logger.Warn("refetch after push failed", "error", err)
			}
		})
		c.On(realtime.EventOrderUpdate, func(ev realtime.Event) {
			eventbus.Publish(e.bus, eventbus.OrderUpdate, orderEvent(ev))
		})
	})
}

// Close stops listening for session changes.
func (e *Engine) Close() {
	if e.unsubAuth != nil {
		e.unsubAuth()
	}
}

func (e *Engine) broadcast(c Counts, cause string) {
	e.metrics.SetUnread(c.Unread)
	eventbus.Publish(e.bus, eventbus.NotificationsChanged, eventbus.NotificationCounts{
		Unread: c.Unread,
		Read:   c.Read,
		Total:  c.Total,
		Cause:  cause,
	})
}

func orderEvent(ev realtime.Event) eventbus.OrderEvent {
	var body struct {
		ID            string `json:"id"`
		LegacyID      string `json:"_id"`
		OrderID       string `json:"orderId"`
		Status        string `json:"status"`
		PaymentStatus string `json:"paymentStatus"`
	}
	_ = json.Unmarshal(ev.Data, &body)

	id := body.OrderID
	if id == "" {
		id = body.ID
	}
	if id == "" {
		id = body.LegacyID
	}
	return eventbus.OrderEvent{
		OrderID:       id,
		Status:        body.Status,
		PaymentStatus: body.PaymentStatus,
		Source:        "push",
		Data:          ev.Data,
	}
}
