package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/storefront-dev/storefront/pkg/notification"
	"github.com/storefront-dev/storefront/pkg/order"
)

var (
	_ notification.API = (*Client)(nil)
	_ order.API        = (*Client)(nil)
)

// listOf decodes either a bare array or an object holding the array under
// key, which is how the backend paginates some collections.
type listOf[T any] struct {
	key   string
	items []T
}

func (l *listOf[T]) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &l.items); err == nil {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	raw, ok := obj[l.key]
	if !ok {
		return nil
	}
	return json.Unmarshal(raw, &l.items)
}

// ListNotifications calls GET /notifications.
func (c *Client) ListNotifications(ctx context.Context) ([]notification.Notification, error) {
	list := listOf[notification.Notification]{key: "notifications"}
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/notifications",
		endpoint: "notifications.list",
		out:      &list,
	})
	if err != nil {
		return nil, err
	}
	return list.items, nil
}

// UnreadCount calls GET /notifications/unread-count.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var data struct {
		Count       *int `json:"count"`
		UnreadCount *int `json:"unreadCount"`
	}
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/notifications/unread-count",
		endpoint: "notifications.unread_count",
		out:      &data,
	})
	if err != nil {
		return 0, err
	}
	switch {
	case data.UnreadCount != nil:
		return *data.UnreadCount, nil
	case data.Count != nil:
		return *data.Count, nil
	}
	return 0, nil
}

// MarkNotificationRead calls PUT /notifications/:id/read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, request{
		method:   http.MethodPut,
		path:     "/notifications/" + url.PathEscape(id) + "/read",
		endpoint: "notifications.read",
	})
}

// MarkAllNotificationsRead calls PUT /notifications/read-all.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, request{
		method:   http.MethodPut,
		path:     "/notifications/read-all",
		endpoint: "notifications.read_all",
	})
}

// ListOrders calls GET /orders.
func (c *Client) ListOrders(ctx context.Context) ([]order.Order, error) {
	list := listOf[order.Order]{key: "orders"}
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/orders",
		endpoint: "orders.list",
		out:      &list,
	})
	if err != nil {
		return nil, err
	}
	return list.items, nil
}

// SetOrderStatus calls PUT /orders/:id/status. The returned order is nil
// when the backend answers without a body.
func (c *Client) SetOrderStatus(ctx context.Context, id string, status order.Status) (*order.Order, error) {
	var data json.RawMessage
	err := c.do(ctx, request{
		method:   http.MethodPut,
		path:     "/orders/" + url.PathEscape(id) + "/status",
		endpoint: "orders.set_status",
		body:     map[string]string{"status": string(status)},
		out:      &data,
	})
	if err != nil || len(data) == 0 {
		return nil, err
	}

	var wrapped struct {
		Order *order.Order `json:"order"`
	}
	if json.Unmarshal(data, &wrapped) == nil && wrapped.Order != nil && wrapped.Order.ID != "" {
		return wrapped.Order, nil
	}
	var o order.Order
	if err := json.Unmarshal(data, &o); err != nil || o.ID == "" {
		return nil, nil
	}
	return &o, nil
}
