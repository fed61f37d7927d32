package storefront

import (
	"context"
	"errors"
	"log/slog"

	"github.com/storefront-dev/storefront/pkg/apiclient"
	"github.com/storefront-dev/storefront/pkg/auth"
	"github.com/storefront-dev/storefront/pkg/eventbus"
	"github.com/storefront-dev/storefront/pkg/metrics"
	"github.com/storefront-dev/storefront/pkg/notification"
	"github.com/storefront-dev/storefront/pkg/order"
	"github.com/storefront-dev/storefront/pkg/realtime"
	"github.com/storefront-dev/storefront/pkg/session"
)

// =============================================================================
// Client Type
// =============================================================================

// Client is the storefront sync core. It owns one of each component and
// wires them to a shared event bus:
//
//	client, err := storefront.New(ctx, storefront.Config{
//	    APIBaseURL: "https://api.example.com/api",
//	    PushURL:    "wss://api.example.com/ws",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if _, err := client.Auth.Login(ctx, auth.Credentials{Email: email, Password: pw}); err != nil {
//	    log.Fatal(err)
//	}
//
// Components are exported so callers can use them directly. The Auth manager
// is the only writer of Session.
type Client struct {
	Bus           *eventbus.Bus
	Session       *session.Store
	API           *apiclient.Client
	Realtime      *realtime.Manager
	Auth          *auth.Manager
	Notifications *notification.Engine
	Orders        *order.Service
	Metrics       *metrics.Collector

	detach func()
	logger *slog.Logger
	config Config
}

// New builds a Client. A corrupt persisted session is discarded and logged;
// the client starts signed out.
func New(ctx context.Context, cfg Config) (*Client, error) {
	cfg.applyDefaults()
	logger := cfg.Logger

	store, err := session.Open(ctx, cfg.Backend, session.WithLogger(logger.With("component", "session")))
	if err != nil {
		if !errors.Is(err, session.ErrCorruptSession) || store == nil {
			return nil, err
		}
		logger.Warn("starting signed out", "error", err)
	}

	metricOpts := []metrics.Option{metrics.WithNamespace(cfg.MetricsNamespace)}
	if cfg.Registerer != nil {
		metricOpts = append(metricOpts, metrics.WithRegistry(cfg.Registerer))
	}
	collector := metrics.New(metricOpts...)

	bus := eventbus.New(eventbus.WithLogger(logger.With("component", "eventbus")))

	apiOpts := []apiclient.Option{
		apiclient.WithTokenSource(store),
		apiclient.WithTimeout(cfg.RequestTimeout),
		apiclient.WithMetrics(collector),
		apiclient.WithLogger(logger.With("component", "apiclient")),
	}
	if cfg.HTTPClient != nil {
		apiOpts = append(apiOpts, apiclient.WithHTTPClient(cfg.HTTPClient))
	}
	api := apiclient.New(cfg.APIBaseURL, apiOpts...)

	rt := realtime.NewManager(cfg.Dialer,
		realtime.WithMaxRetries(cfg.MaxRetries),
		realtime.WithRetryDelay(cfg.RetryDelay),
		realtime.WithBus(bus),
		realtime.WithMetrics(collector),
		realtime.WithLogger(logger.With("component", "realtime")),
	)

	authMgr := auth.NewManager(store, api, rt,
		auth.WithBus(bus),
		auth.WithMetrics(collector),
		auth.WithLogger(logger.With("component", "auth")),
	)
	api.SetRefresher(authMgr)

	engine := notification.NewEngine(api,
		notification.WithBus(bus),
		notification.WithMetrics(collector),
		notification.WithLogger(logger.With("component", "notification")),
	)

	orders := order.NewService(api,
		order.WithBus(bus),
		order.WithMetrics(collector),
		order.WithLogger(logger.With("component", "order")),
	)

	return &Client{
		Bus:           bus,
		Session:       store,
		API:           api,
		Realtime:      rt,
		Auth:          authMgr,
		Notifications: engine,
		Orders:        orders,
		Metrics:       collector,
		detach:        engine.Attach(rt),
		logger:        logger,
		config:        cfg,
	}, nil
}

// =============================================================================
// Accessors
// =============================================================================

// Config returns the configuration the client was built with, defaults applied.
func (c *Client) Config() Config {
	return c.config
}

// Board returns an order board for role that refetches on order pushes.
// Callers must Close the board when done.
func (c *Client) Board(role session.Role, onChange func([]order.Order)) *order.Board {
	opts := []order.BoardOption{
		order.WatchBus(c.Bus),
		order.BoardLogger(c.logger.With("component", "order")),
	}
	if onChange != nil {
		opts = append(opts, order.OnChange(onChange))
	}
	return order.NewBoard(c.Orders, role, opts...)
}

// =============================================================================
// Lifecycle
// =============================================================================

// Restore resumes a persisted session: the access token is refreshed if it
// has expired and the push connection is opened. It reports whether the
// client is signed in afterwards. When signed in, notifications are fetched.
func (c *Client) Restore(ctx context.Context) (bool, error) {
	ok, err := c.Auth.Restore(ctx)
	if err != nil || !ok {
		return ok, err
	}
	if err := c.Notifications.FetchAll(ctx); err != nil {
		c.logger.Warn("initial notification fetch failed", "error", err)
	}
	return true, nil
}

// Close detaches listeners, closes the push connection and releases the
// session backend. The persisted session is kept.
func (c *Client) Close() error {
	if c.detach != nil {
		c.detach()
	}
	c.Notifications.Close()
	c.Realtime.Disconnect()
	return c.Session.Close()
}
