package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// Connection is the handle for one authenticated push connection.
//
// A Connection is bound to the token it was created with for its whole life.
// Listeners are registered on the Connection, so replacing it drops them;
// consumers that need to survive a rotation register through Manager.OnConnect.
type Connection struct {
	id    string
	token string

	// dialMu serializes dial attempts on this handle.
	dialMu sync.Mutex

	mu        sync.RWMutex
	state     State
	transport Transport
	listeners map[string][]listener
	nextID    uint64

	done      chan struct{}
	closeOnce sync.Once
}

type listener struct {
	id      uint64
	handler Handler
}

func newConnection(token string) *Connection {
	return &Connection{
		id:        uuid.NewString(),
		token:     token,
		state:     StateDisconnected,
		listeners: make(map[string][]listener),
		done:      make(chan struct{}),
	}
}

// ID returns the connection id.
func (c *Connection) ID() string {
	return c.id
}

// Token returns the bearer token the connection was created with.
func (c *Connection) Token() string {
	return c.token
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Connected reports whether a transport is live.
func (c *Connection) Connected() bool {
	return c.State() == StateConnected
}

// Done is closed when the connection is destroyed.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// On registers handler for a channel and returns an unsubscribe function.
// Calling the returned function more than once is a no-op.
func (c *Connection) On(channel string, handler Handler) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[channel] = append(c.listeners[channel], listener{id: id, handler: handler})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.off(channel, id)
		})
	}
}

// ListenerCount returns the number of listeners on channel.
func (c *Connection) ListenerCount(channel string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.listeners[channel])
}

func (c *Connection) off(channel string, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ls := c.listeners[channel]
	for i, l := range ls {
		if l.id == id {
			next := make([]listener, 0, len(ls)-1)
			next = append(next, ls[:i]...)
			next = append(next, ls[i+1:]...)
			if len(next) == 0 {
				delete(c.listeners, channel)
			} else {
				c.listeners[channel] = next
			}
			return
		}
	}
}

func (c *Connection) removeAllListeners() {
	c.mu.Lock()
	c.listeners = make(map[string][]listener)
	c.mu.Unlock()
}

// dispatch delivers ev to the channel's listeners over a snapshot.
// A panicking listener is reported to onPanic and does not stop delivery.
func (c *Connection) dispatch(ev Event, onPanic func(any)) int {
	c.mu.RLock()
	snapshot := append([]listener(nil), c.listeners[ev.Name]...)
	c.mu.RUnlock()

	for _, l := range snapshot {
		func() {
			defer func() {
				if r := recover(); r != nil && onPanic != nil {
					onPanic(r)
				}
			}()
			l.handler(ev)
		}()
	}
	return len(snapshot)
}

// setState moves to s unless the connection is already closed.
func (c *Connection) setState(s State) {
	c.mu.Lock()
	if c.state != StateClosed {
		c.state = s
	}
	c.mu.Unlock()
}

// attach installs t as the live transport unless the connection was
// destroyed in the meantime.
func (c *Connection) attach(t Transport) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return false
	}
	c.transport = t
	c.state = StateConnected
	return true
}

// detach clears t if it is still the live transport.
func (c *Connection) detach(t Transport) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport != t {
		return false
	}
	c.transport = nil
	if c.state != StateClosed {
		c.state = StateDisconnected
	}
	return true
}

func (c *Connection) currentTransport() Transport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.transport
}

func (c *Connection) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// destroy closes the transport and marks the handle closed. It returns
// whether a live transport was closed.
func (c *Connection) destroy() bool {
	var t Transport
	c.closeOnce.Do(func() {
		c.mu.Lock()
		t = c.transport
		c.transport = nil
		c.state = StateClosed
		c.mu.Unlock()
		close(c.done)
	})
	if t != nil {
		_ = t.Close()
		return true
	}
	return false
}
