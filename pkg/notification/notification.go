package notification

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Notification is one user notification.
type Notification struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Title     string          `json:"title,omitempty"`
	Message   string          `json:"message,omitempty"`
	IsRead    bool            `json:"isRead"`
	CreatedAt time.Time       `json:"createdAt"`
	Data      json.RawMessage `json:"data,omitempty"`

	// Version increases with every server-side change when the backend
	// provides it; zero means unknown.
	Version int64 `json:"version,omitempty"`
}

// UnmarshalJSON accepts the id as either "id" or "_id".
func (n *Notification) UnmarshalJSON(data []byte) error {
	type plain Notification
	var w struct {
		plain
		LegacyID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*n = Notification(w.plain)
	if n.ID == "" {
		n.ID = w.LegacyID
	}
	return nil
}

// API is the backend surface the engine needs.
type API interface {
	ListNotifications(ctx context.Context) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
}

// Counts is derived from the current notification set.
type Counts struct {
	Unread int
	Read   int
	Total  int
}

// Push is a notification push event.
type Push struct {
	Type string
	Data json.RawMessage
}

// ErrEmptyID is returned by MarkAsRead for an empty id.
var ErrEmptyID = errors.New("notification: id is required")

// decodePush extracts a full notification from a push payload. ok is false
// when the payload does not carry an id.
func decodePush(p Push) (Notification, bool) {
	if len(p.Data) == 0 {
		return Notification{}, false
	}
	var n Notification
	if err := json.Unmarshal(p.Data, &n); err != nil || n.ID == "" {
		return Notification{}, false
	}
	if n.Type == "" {
		n.Type = p.Type
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	return n, true
}
