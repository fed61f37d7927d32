package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/storefront-dev/storefront/pkg/eventbus"
	"github.com/storefront-dev/storefront/pkg/metrics"
)

var (
	// ErrNotConnected is returned by Emit when no transport is live.
	ErrNotConnected = errors.New("realtime: not connected")

	// ErrRetriesExhausted is returned when every dial attempt failed.
	// The handle stays in StateDisconnected.
	ErrRetriesExhausted = errors.New("realtime: reconnect attempts exhausted")

	// ErrNoToken is returned when a connection is requested without a token.
	ErrNoToken = errors.New("realtime: token is required")

	// ErrConnectionClosed is returned when a handle is destroyed while dialing.
	ErrConnectionClosed = errors.New("realtime: connection closed")
)

// Default reconnect policy.
const (
	DefaultMaxRetries = 5
	DefaultRetryDelay = time.Second
)

// Manager owns the single live push connection.
//
// Only the Manager creates and destroys connections. A token change destroys
// the current connection (listeners removed, transport closed) before the
// replacement is created, so two connections are never live at once.
//
// Bus subscribers to ConnectionStateChanged run on the dialing goroutine and
// must not call back into InitializeConnection or Reconnect.
type Manager struct {
	dialer     Dialer
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
	metrics    *metrics.Collector
	bus        *eventbus.Bus

	// opMu serializes InitializeConnection and Reconnect.
	opMu sync.Mutex

	mu       sync.RWMutex
	conn     *Connection
	hooks    []hook
	nextHook uint64
}

type hook struct {
	id uint64
	fn func(*Connection)
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxRetries sets how many times a failed dial is retried.
func WithMaxRetries(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.maxRetries = n
		}
	}
}

// WithRetryDelay sets the fixed delay between dial attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.retryDelay = d
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) {
		m.metrics = c
	}
}

// WithBus publishes connection state changes on bus.
func WithBus(b *eventbus.Bus) Option {
	return func(m *Manager) {
		m.bus = b
	}
}

// NewManager creates a Manager that opens transports with dialer.
func NewManager(dialer Dialer, opts ...Option) *Manager {
	m := &Manager{
		dialer:     dialer,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		logger:     slog.Default().With("component", "realtime"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InitializeConnection returns the connection for token, creating it if needed.
//
// If the current connection was created with the same token it is returned
// as is; a handle whose retries were exhausted is redialed in place. A
// different token tears the current connection down first. When every dial
// attempt fails the handle is still returned, in StateDisconnected, together
// with ErrRetriesExhausted.
func (m *Manager) InitializeConnection(ctx context.Context, token string) (*Connection, error) {
	if token == "" {
		return nil, ErrNoToken
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	cur := m.Connection()
	if cur != nil && cur.token == token {
		if cur.State() == StateDisconnected {
			return cur, m.connect(ctx, cur, true)
		}
		return cur, nil
	}

	if cur != nil {
		m.logger.Info("token changed, replacing connection", "connection", cur.id)
		m.release(cur)
	}
	return m.open(ctx, token)
}

// Reconnect discards the current connection and opens a fresh one. An empty
// token reuses the current connection's token.
func (m *Manager) Reconnect(ctx context.Context, token string) (*Connection, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	cur := m.Connection()
	if token == "" && cur != nil {
		token = cur.token
	}
	if token == "" {
		return nil, ErrNoToken
	}
	if cur != nil {
		m.release(cur)
	}
	return m.open(ctx, token)
}

// Connection returns the current connection, or nil.
func (m *Manager) Connection() *Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn
}

// Disconnect destroys the current connection, if any. It does not wait for
// an in-flight dial; the dial is cancelled.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	cur := m.conn
	m.conn = nil
	m.mu.Unlock()

	if cur != nil {
		m.teardown(cur)
		m.logger.Info("disconnected", "connection", cur.id)
	}
}

// Subscribe registers handler on the current connection. Without a
// connection it is a no-op; use OnConnect to bind across connections.
func (m *Manager) Subscribe(channel string, handler Handler) func() {
	c := m.Connection()
	if c == nil {
		return func() {}
	}
	return c.On(channel, handler)
}

// OnConnect registers fn to run for every connection the manager creates,
// before it is dialed. fn also runs immediately for the current connection.
// The returned function removes the hook.
func (m *Manager) OnConnect(fn func(*Connection)) func() {
	m.mu.Lock()
	m.nextHook++
	id := m.nextHook
	m.hooks = append(m.hooks, hook{id: id, fn: fn})
	cur := m.conn
	m.mu.Unlock()

	if cur != nil && !cur.closed() {
		fn(cur)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, h := range m.hooks {
				if h.id == id {
					m.hooks = append(m.hooks[:i:i], m.hooks[i+1:]...)
					return
				}
			}
		})
	}
}

// Emit sends an application event over the live transport.
func (m *Manager) Emit(event string, data any) error {
	c := m.Connection()
	if c == nil {
		return ErrNotConnected
	}
	t := c.currentTransport()
	if t == nil {
		return ErrNotConnected
	}

	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("realtime: encode %s: %w", event, err)
		}
		raw = b
	}
	return t.Write(Event{Name: event, Data: raw})
}

// open creates, binds and dials a new connection. Caller holds opMu.
func (m *Manager) open(ctx context.Context, token string) (*Connection, error) {
	c := newConnection(token)

	m.mu.Lock()
	m.conn = c
	hooks := append([]hook(nil), m.hooks...)
	m.mu.Unlock()

	// Listeners are in place before the first event can arrive.
	for _, h := range hooks {
		h.fn(c)
	}

	m.logger.Info("connection created", "connection", c.id)
	return c, m.connect(ctx, c, false)
}

// release clears c as the current connection and tears it down.
func (m *Manager) release(c *Connection) {
	m.mu.Lock()
	if m.conn == c {
		m.conn = nil
	}
	m.mu.Unlock()
	m.teardown(c)
}

// teardown removes listeners before closing the transport.
func (m *Manager) teardown(c *Connection) {
	c.removeAllListeners()
	if c.destroy() {
		m.metrics.ConnectionClosed()
	}
	m.publishState(c, 0)
}

// connect dials c with the bounded retry policy.
func (m *Manager) connect(ctx context.Context, c *Connection, reconnect bool) error {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	if c.closed() {
		return ErrConnectionClosed
	}
	if c.Connected() {
		return nil
	}

	ctx, cancel := boundTo(ctx, c.done)
	defer cancel()

	attempts := m.maxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return m.abandon(c, ctx.Err())
			case <-time.After(m.retryDelay):
			}
		}
		if attempt > 1 || reconnect {
			m.metrics.ReconnectAttempt()
		}

		c.setState(StateConnecting)
		m.publishState(c, attempt)

		t, err := m.dialer.Dial(ctx, c.token)
		m.metrics.Dial(err)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return m.abandon(c, ctx.Err())
			}
			m.logger.Warn("dial failed", "connection", c.id, "attempt", attempt, "error", err)
			continue
		}

		if !c.attach(t) {
			_ = t.Close()
			return ErrConnectionClosed
		}
		m.metrics.ConnectionOpened()
		m.publishState(c, attempt)
		m.logger.Info("connected", "connection", c.id, "attempt", attempt)

		go m.readLoop(c, t)
		return nil
	}

	c.setState(StateDisconnected)
	m.metrics.RetriesExhausted()
	m.publishState(c, attempts)
	m.logger.Error("reconnect attempts exhausted", "connection", c.id, "attempts", attempts, "error", lastErr)
	return fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
}

func (m *Manager) abandon(c *Connection, err error) error {
	if c.closed() {
		return ErrConnectionClosed
	}
	c.setState(StateDisconnected)
	m.publishState(c, 0)
	return err
}

// readLoop delivers events from t until it fails, then redials the same
// handle unless it was destroyed.
func (m *Manager) readLoop(c *Connection, t Transport) {
	for {
		ev, err := t.Read()
		if err != nil {
			if !c.closed() {
				m.logger.Warn("transport read failed", "connection", c.id, "error", err)
			}
			break
		}

		m.metrics.PushEvent(ev.Name)
		n := c.dispatch(ev, func(r any) {
			m.logger.Error("listener panic", "connection", c.id, "event", ev.Name, "panic", fmt.Sprint(r))
		})
		m.logger.Debug("push event", "connection", c.id, "event", ev.Name, "listeners", n)
	}

	// A destroyed or replaced transport is not ours to recover.
	if !c.detach(t) {
		return
	}
	m.metrics.ConnectionClosed()
	_ = t.Close()
	if c.closed() {
		return
	}

	m.publishState(c, 0)
	if err := m.connect(context.Background(), c, true); err != nil && !errors.Is(err, ErrConnectionClosed) {
		m.logger.Error("reconnect failed", "connection", c.id, "error", err)
	}
}

func (m *Manager) publishState(c *Connection, attempt int) {
	if m.bus == nil {
		return
	}
	eventbus.Publish(m.bus, eventbus.ConnectionStateChanged, eventbus.ConnectionState{
		ConnectionID: c.id,
		State:        c.State().String(),
		Attempt:      attempt,
	})
}

// boundTo derives a context that is also cancelled when done closes.
func boundTo(ctx context.Context, done <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
