package notification

import (
	"context"
	"sync"

	"github.com/storefront-dev/storefront/pkg/eventbus"
)

// Observer is a mounted view of the notification counts, such as a header
// badge or a dashboard panel. Observers hold no merge logic; they only copy
// what the engine broadcasts.
type Observer struct {
	name     string
	engine   *Engine
	onChange func(Counts)

	mu          sync.Mutex
	counts      Counts
	mounted     bool
	unsubscribe func()
}

// Observe mounts an observer. onChange may be nil.
func (e *Engine) Observe(name string, onChange func(Counts)) *Observer {
	o := &Observer{
		name:     name,
		engine:   e,
		onChange: onChange,
		counts:   e.Counts(),
		mounted:  true,
	}
	o.unsubscribe = eventbus.Subscribe(e.bus, eventbus.NotificationsChanged, o.receive)
	return o
}

func (o *Observer) receive(c eventbus.NotificationCounts) {
	next := Counts{Unread: c.Unread, Read: c.Read, Total: c.Total}

	o.mu.Lock()
	if !o.mounted {
		o.mu.Unlock()
		return
	}
	o.counts = next
	fn := o.onChange
	o.mu.Unlock()

	if fn != nil {
		fn(next)
	}
}

// Name returns the observer name.
func (o *Observer) Name() string {
	return o.name
}

// Counts returns the last counts the observer received.
func (o *Observer) Counts() Counts {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counts
}

// Mounted reports whether the observer is still mounted.
func (o *Observer) Mounted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mounted
}

// Refresh asks the engine to refetch. Errors that arrive after Unmount are
// dropped.
func (o *Observer) Refresh(ctx context.Context) error {
	err := o.engine.FetchAll(ctx)
	if !o.Mounted() {
		return nil
	}
	return err
}

// Unmount stops the observer. Broadcasts after Unmount are ignored.
func (o *Observer) Unmount() {
	o.mu.Lock()
	o.mounted = false
	o.mu.Unlock()
	o.unsubscribe()
}
