package order

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/storefront-dev/storefront/pkg/eventbus"
	"github.com/storefront-dev/storefront/pkg/session"
)

// Board is the order list behind a dashboard.
//
// Status changes are applied optimistically and rolled back if the request
// fails; the backend's answer always replaces the optimistic value. Fetches
// carry a generation number and only the latest one is applied.
type Board struct {
	svc    *Service
	role   session.Role
	logger *slog.Logger

	mu       sync.Mutex
	orders   []Order
	fetchID  uint64 // For ignoring outdated fetches
	closed   bool
	onChange func([]Order)

	unsubscribe func()
	wg          sync.WaitGroup
}

// BoardOption configures a Board.
type BoardOption func(*Board)

// OnChange sets a callback invoked with a copy of the orders after every change.
func OnChange(fn func([]Order)) BoardOption {
	return func(b *Board) {
		b.onChange = fn
	}
}

// WatchBus refetches the board whenever an orderUpdate arrives on bus.
func WatchBus(bus *eventbus.Bus) BoardOption {
	return func(b *Board) {
		b.unsubscribe = eventbus.Subscribe(bus, eventbus.OrderUpdate, func(ev eventbus.OrderEvent) {
			b.mu.Lock()
			if b.closed {
				b.mu.Unlock()
				return
			}
			b.wg.Add(1)
			b.mu.Unlock()

			go func() {
				defer b.wg.Done()
				if err := b.HandlePush(context.Background(), ev); err != nil {
					b.logger.Warn("order refetch after push failed", "order", ev.OrderID, "error", err)
				}
			}()
		})
	}
}

// BoardLogger sets the board logger.
func BoardLogger(l *slog.Logger) BoardOption {
	return func(b *Board) {
		b.logger = l
	}
}

// NewBoard creates a board acting as role.
func NewBoard(svc *Service, role session.Role, opts ...BoardOption) *Board {
	b := &Board{
		svc:    svc,
		role:   role,
		logger: slog.Default().With("component", "order.board"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Load fetches the orders. A response that arrives after a newer fetch
// started, or after Close, is dropped.
func (b *Board) Load(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.fetchID++
	currentID := b.fetchID
	b.mu.Unlock()

	orders, err := b.svc.List(ctx)

	b.mu.Lock()
	if b.closed || b.fetchID != currentID {
		b.mu.Unlock()
		b.logger.Debug("discarding stale order fetch", "fetch", currentID)
		return nil
	}
	if err != nil {
		b.mu.Unlock()
		return err
	}
	b.orders = append([]Order(nil), orders...)
	snapshot := b.snapshotLocked()
	b.mu.Unlock()

	b.notify(snapshot)
	return nil
}

// Orders returns a copy of the current orders.
func (b *Board) Orders() []Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// Get returns the order with id.
func (b *Board) Get(id string) (Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := b.indexLocked(id); i >= 0 {
		return b.orders[i], true
	}
	return Order{}, false
}

// Available returns the targets this board's role may move order id to.
func (b *Board) Available(id string) []Status {
	o, ok := b.Get(id)
	if !ok {
		return nil
	}
	return AvailableTransitions(b.role, o)
}

// UpdateStatus moves order id to target. The change is visible immediately;
// on failure it is rolled back and the board refetched.
func (b *Board) UpdateStatus(ctx context.Context, id string, target Status) error {
	b.mu.Lock()
	i := b.indexLocked(id)
	if i < 0 {
		b.mu.Unlock()
		return fmt.Errorf("order: %s not on board", id)
	}
	prev := b.orders[i]
	if err := Validate(b.role, prev, target); err != nil {
		b.mu.Unlock()
		return err
	}
	b.orders[i].Status = target
	snapshot := b.snapshotLocked()
	b.mu.Unlock()
	b.notify(snapshot)

	updated, err := b.svc.RequestTransition(ctx, b.role, prev, target)
	if err != nil {
		b.rollback(prev, target)
		if loadErr := b.Load(ctx); loadErr != nil {
			b.logger.Warn("refetch after failed transition", "order", id, "error", loadErr)
		}
		return err
	}

	b.apply(*updated)
	return nil
}

// HandlePush applies the order carried by a push event if it is newer than
// the local copy, then refetches.
func (b *Board) HandlePush(ctx context.Context, ev eventbus.OrderEvent) error {
	if delta, ok := decodeDelta(ev); ok {
		b.applyIfNewer(delta)
	}
	return b.Load(ctx)
}

// Close detaches the board. Responses that arrive afterwards are ignored.
func (b *Board) Close() {
	b.mu.Lock()
	b.closed = true
	unsub := b.unsubscribe
	b.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	b.wg.Wait()
}

// rollback restores prev unless something newer replaced the optimistic value.
func (b *Board) rollback(prev Order, optimistic Status) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	i := b.indexLocked(prev.ID)
	if i < 0 || b.orders[i].Status != optimistic || !b.orders[i].UpdatedAt.Equal(prev.UpdatedAt) {
		b.mu.Unlock()
		return
	}
	b.orders[i] = prev
	snapshot := b.snapshotLocked()
	b.mu.Unlock()
	b.notify(snapshot)
}

// apply replaces the local copy with the backend's. Fetches already in
// flight started before o was read, so they are invalidated.
func (b *Board) apply(o Order) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.fetchID++
	if i := b.indexLocked(o.ID); i >= 0 {
		b.orders[i] = o
	} else {
		b.orders = append(b.orders, o)
	}
	snapshot := b.snapshotLocked()
	b.mu.Unlock()
	b.notify(snapshot)
}

type orderDelta struct {
	ID            string        `json:"id"`
	LegacyID      string        `json:"_id"`
	OrderID       string        `json:"orderId"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

func decodeDelta(ev eventbus.OrderEvent) (orderDelta, bool) {
	var d orderDelta
	if len(ev.Data) > 0 {
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			return orderDelta{}, false
		}
	}
	if d.ID == "" {
		d.ID = d.OrderID
	}
	if d.ID == "" {
		d.ID = d.LegacyID
	}
	if d.ID == "" {
		d.ID = ev.OrderID
	}
	if d.Status == "" {
		d.Status = Status(ev.Status)
	}
	if d.PaymentStatus == "" {
		d.PaymentStatus = PaymentStatus(ev.PaymentStatus)
	}
	if d.ID == "" || d.UpdatedAt.IsZero() || !d.Status.Valid() {
		return orderDelta{}, false
	}
	return d, true
}

func (b *Board) applyIfNewer(d orderDelta) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	i := b.indexLocked(d.ID)
	if i < 0 || !d.UpdatedAt.After(b.orders[i].UpdatedAt) {
		b.mu.Unlock()
		return
	}
	b.orders[i].Status = d.Status
	if d.PaymentStatus != "" {
		b.orders[i].PaymentStatus = d.PaymentStatus
	}
	b.orders[i].UpdatedAt = d.UpdatedAt
	snapshot := b.snapshotLocked()
	b.mu.Unlock()
	b.notify(snapshot)
}

func (b *Board) indexLocked(id string) int {
	for i := range b.orders {
		if b.orders[i].ID == id {
			return i
		}
	}
	return -1
}

func (b *Board) snapshotLocked() []Order {
	return append([]Order(nil), b.orders...)
}

func (b *Board) notify(orders []Order) {
	if b.onChange != nil {
		b.onChange(orders)
	}
}
