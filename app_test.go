package storefront

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-dev/storefront/internal/mockapi"
	"github.com/storefront-dev/storefront/pkg/auth"
	"github.com/storefront-dev/storefront/pkg/notification"
	"github.com/storefront-dev/storefront/pkg/order"
	"github.com/storefront-dev/storefront/pkg/realtime"
	"github.com/storefront-dev/storefront/pkg/session"
)

const waitFor = 3 * time.Second

type backend struct {
	api  *mockapi.Server
	http *httptest.Server
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	api := mockapi.New(mockapi.WithLogger(quietLogger()))
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		api.Close()
		srv.Close()
	})
	return &backend{api: api, http: srv}
}

func (b *backend) config() Config {
	return Config{
		APIBaseURL: b.http.URL + "/api",
		PushURL:    "ws" + strings.TrimPrefix(b.http.URL, "http") + "/ws",
		MaxRetries: -1,
		RetryDelay: -1,
		Registerer: prometheus.NewRegistry(),
		Logger:     quietLogger(),
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewAppliesDefaults(t *testing.T) {
	c := newClient(t, Config{Registerer: prometheus.NewRegistry(), Logger: quietLogger()})

	cfg := c.Config()
	assert.Equal(t, DefaultConfig().APIBaseURL, cfg.APIBaseURL)
	assert.Equal(t, realtime.DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, realtime.DefaultRetryDelay, cfg.RetryDelay)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.NotNil(t, cfg.Backend)
	assert.NotNil(t, cfg.Dialer)
	assert.False(t, c.Auth.IsAuthenticated())
	assert.Nil(t, c.Realtime.Connection())
}

func TestLoginBindsConnection(t *testing.T) {
	b := newBackend(t)
	u := b.api.AddUser(session.User{Name: "Asha", Email: "a@b.com", Role: session.RoleCustomer}, "secret1")
	c := newClient(t, b.config())

	res, err := c.Auth.Login(context.Background(), auth.Credentials{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	require.NotNil(t, res.User)
	assert.Equal(t, u.ID, res.User.ID)

	assert.True(t, c.Auth.IsAuthenticated())
	user, ok := c.Session.User()
	require.True(t, ok)
	assert.Equal(t, session.RoleCustomer, user.Role)

	conn := c.Realtime.Connection()
	require.NotNil(t, conn)
	token, _ := c.Session.AccessToken()
	assert.Equal(t, token, conn.Token())
	require.Eventually(t, func() bool {
		return b.api.Hub().ClientCount(u.ID) == 1
	}, waitFor, 10*time.Millisecond)
}

func TestPushConvergesObservers(t *testing.T) {
	b := newBackend(t)
	u := b.api.AddUser(session.User{Name: "Asha", Email: "a@b.com", Role: session.RoleCustomer}, "secret1")
	c := newClient(t, b.config())

	_, err := c.Auth.Login(context.Background(), auth.Credentials{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return b.api.Hub().ClientCount(u.ID) == 1
	}, waitFor, 10*time.Millisecond)

	header := c.Notifications.Observe("header", nil)
	panel := c.Notifications.Observe("dashboard", nil)
	defer header.Unmount()
	defer panel.Unmount()

	b.api.Notify(u.ID, notification.Notification{Type: "promo", Title: "Free delivery"})

	require.Eventually(t, func() bool {
		return header.Counts().Unread == 1 && panel.Counts().Unread == 1
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, c.Notifications.Counts(), header.Counts())
	assert.Equal(t, header.Counts(), panel.Counts())
}

func TestVendorApplicationStaysSignedOut(t *testing.T) {
	b := newBackend(t)
	c := newClient(t, b.config())

	res, err := c.Auth.Register(context.Background(), auth.Registration{
		Name:         "Kiran",
		Email:        "kiran@momo.example",
		Password:     "secret1",
		Role:         session.RoleVendor,
		BusinessName: "Momo House",
	})
	require.NoError(t, err)
	assert.True(t, res.RequiresApproval)

	assert.False(t, c.Auth.IsAuthenticated())
	assert.Nil(t, c.Realtime.Connection())
	_, ok := c.Session.User()
	assert.False(t, ok)
}

func TestBoardFollowsStatusPush(t *testing.T) {
	b := newBackend(t)
	customer := b.api.AddUser(session.User{Name: "Asha", Email: "a@b.com", Role: session.RoleCustomer}, "secret1")
	vendor := b.api.AddUser(session.User{Name: "Kiran", Email: "k@b.com", Role: session.RoleVendor}, "secret1")
	o := b.api.AddOrder(order.Order{
		Status:        order.StatusPending,
		PaymentMethod: order.PaymentCashOnDelivery,
		PaymentStatus: order.PaymentPending,
		Customer:      order.Party{ID: customer.ID, Name: customer.Name},
		Vendor:        order.Party{ID: vendor.ID, Name: vendor.Name},
		Items:         []order.Item{{Name: "Momo", Quantity: 2, Price: 180}},
		TotalAmount:   360,
	})

	ctx := context.Background()
	shopper := newClient(t, b.config())
	_, err := shopper.Auth.Login(ctx, auth.Credentials{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	kitchen := newClient(t, b.config())
	_, err = kitchen.Auth.Login(ctx, auth.Credentials{Email: "k@b.com", Password: "secret1"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return b.api.Hub().ClientCount(customer.ID) == 1
	}, waitFor, 10*time.Millisecond)

	var mu sync.Mutex
	var seen []order.Status
	board := shopper.Board(session.RoleCustomer, func(list []order.Order) {
		mu.Lock()
		defer mu.Unlock()
		if len(list) == 1 {
			seen = append(seen, list[0].Status)
		}
	})
	defer board.Close()
	require.NoError(t, board.Load(ctx))

	vendorBoard := kitchen.Board(session.RoleVendor, nil)
	defer vendorBoard.Close()
	require.NoError(t, vendorBoard.Load(ctx))
	require.NoError(t, vendorBoard.UpdateStatus(ctx, o.ID, order.StatusPreparing))

	got, ok := vendorBoard.Get(o.ID)
	require.True(t, ok)
	assert.Equal(t, order.StatusPreparing, got.Status)

	require.Eventually(t, func() bool {
		cur, ok := board.Get(o.ID)
		return ok && cur.Status == order.StatusPreparing
	}, waitFor, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return shopper.Notifications.Counts().Unread == 1
	}, waitFor, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, order.StatusPreparing, seen[len(seen)-1])
}

func TestLogoutClearsState(t *testing.T) {
	b := newBackend(t)
	u := b.api.AddUser(session.User{Name: "Asha", Email: "a@b.com", Role: session.RoleCustomer}, "secret1")
	b.api.AddNotification(u.ID, notification.Notification{Type: "promo"})
	c := newClient(t, b.config())
	ctx := context.Background()

	_, err := c.Auth.Login(ctx, auth.Credentials{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	require.NoError(t, c.Notifications.FetchAll(ctx))
	require.Equal(t, 1, c.Notifications.Counts().Unread)

	require.NoError(t, c.Auth.Logout(ctx))

	assert.False(t, c.Auth.IsAuthenticated())
	assert.Nil(t, c.Realtime.Connection())
	assert.Equal(t, notification.Counts{}, c.Notifications.Counts())
	assert.Empty(t, c.Notifications.List())
}

func TestRestoreFromFileBackend(t *testing.T) {
	b := newBackend(t)
	u := b.api.AddUser(session.User{Name: "Asha", Email: "a@b.com", Role: session.RoleCustomer}, "secret1")
	b.api.AddNotification(u.ID, notification.Notification{Type: "promo"})
	path := filepath.Join(t.TempDir(), "session.json")
	ctx := context.Background()

	cfg := b.config()
	cfg.Backend = session.NewFileBackend(path)
	first, err := New(ctx, cfg)
	require.NoError(t, err)
	_, err = first.Auth.Login(ctx, auth.Credentials{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	cfg = b.config()
	cfg.Backend = session.NewFileBackend(path)
	second := newClient(t, cfg)
	require.True(t, second.Auth.IsAuthenticated())

	ok, err := second.Restore(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotNil(t, second.Realtime.Connection())
	assert.Equal(t, 1, second.Notifications.Counts().Unread)

	user, ok := second.Auth.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, u.ID, user.ID)
}

func TestRestoreWithoutSession(t *testing.T) {
	c := newClient(t, newBackend(t).config())

	ok, err := c.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, c.Realtime.Connection())
}
