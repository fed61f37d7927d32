package eventbus

import "encoding/json"

// AuthState is published whenever the session gains or loses authentication.
type AuthState struct {
	Authenticated bool
	UserID        string
	Role          string

	// Reason is one of "login", "register", "refresh", "restore", "logout",
	// "refresh_failed" or "user_updated".
	Reason string

	// Forced is set when the session was torn down without the user asking.
	Forced bool
}

// CartUpdate is published when the cart contents change. The cart itself
// lives in the embedding application; nothing in this module publishes it.
// The topic is declared here so cart badges and checkout screens share one
// typed signal with the rest of the core.
type CartUpdate struct {
	ItemCount int
	Total     float64
}

// NotificationCounts is the derived notification state every observer
// converges on after a reconciliation cycle.
type NotificationCounts struct {
	Unread int
	Read   int
	Total  int

	// Cause is "fetch", "push", "mark_read", "mark_all_read" or "reset".
	Cause string
}

// OrderEvent is published when an order changed, either through a push
// event or after a locally requested transition was reconciled.
type OrderEvent struct {
	OrderID       string
	Status        string
	PaymentStatus string
	Source        string
	Data          json.RawMessage
}

// ConnectionState is published when the push connection changes state.
type ConnectionState struct {
	ConnectionID string
	State        string
	Attempt      int
}

// Topics shared across the storefront core.
var (
	AuthStateChanged       = NewTopic[AuthState]("authStateChanged")
	CartUpdated            = NewTopic[CartUpdate]("cartUpdated")
	NotificationsChanged   = NewTopic[NotificationCounts]("notificationsChanged")
	OrderUpdate            = NewTopic[OrderEvent]("orderUpdate")
	ConnectionStateChanged = NewTopic[ConnectionState]("connectionStateChanged")
)
