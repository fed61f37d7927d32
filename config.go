package storefront

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/storefront-dev/storefront/internal/config"
	"github.com/storefront-dev/storefront/pkg/realtime"
	"github.com/storefront-dev/storefront/pkg/session"
)

// =============================================================================
// Configuration Types
// =============================================================================

// Config is the main client configuration.
type Config struct {
	// APIBaseURL is the REST root, e.g. "https://api.example.com/api".
	APIBaseURL string

	// PushURL is the push socket URL. Ignored when Dialer is set.
	PushURL string

	// RequestTimeout bounds a REST call whose context has no deadline.
	// Default: 15s.
	RequestTimeout time.Duration

	// MaxRetries is how many times a failed push dial is retried.
	// Zero uses realtime.DefaultMaxRetries; use -1 for no retries.
	MaxRetries int

	// RetryDelay is the fixed delay between push dials. Default: 1s; a
	// negative value means no delay.
	RetryDelay time.Duration

	// Backend persists the session. If nil, the session lives in memory.
	Backend session.Backend

	// Dialer opens push transports. If nil, a WebSocket dialer for PushURL
	// is used.
	Dialer realtime.Dialer

	// HTTPClient is used for REST calls. If nil, http.DefaultClient is used.
	HTTPClient *http.Client

	// Registerer receives the Prometheus collectors. If nil, the default
	// registerer is used.
	Registerer prometheus.Registerer

	// MetricsNamespace prefixes metric names. Default: "storefront".
	MetricsNamespace string

	// Logger is the structured logger for the client.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// DefaultConfig returns a Config for a backend on localhost.
func DefaultConfig() Config {
	return Config{
		APIBaseURL:       config.DefaultAPIBaseURL,
		PushURL:          config.DefaultPushURL,
		RequestTimeout:   15 * time.Second,
		RetryDelay:       realtime.DefaultRetryDelay,
		MetricsNamespace: config.DefaultNamespace,
	}
}

// ConfigFrom maps a loaded storefront.json onto a Config. The session
// backend is opened separately with OpenBackend.
func ConfigFrom(c *config.Config) Config {
	return Config{
		APIBaseURL:       c.APIBaseURL,
		PushURL:          c.PushURL,
		RequestTimeout:   c.Timeout(),
		MaxRetries:       c.Realtime.MaxRetries,
		RetryDelay:       c.RetryDelay(),
		MetricsNamespace: c.Metrics.Namespace,
	}
}

// OpenBackend opens the session backend named by c.Session.Backend.
func OpenBackend(c *config.Config) (session.Backend, error) {
	switch c.Session.Backend {
	case config.BackendMemory:
		return session.NewMemoryBackend(), nil
	case config.BackendValkey:
		client, err := session.DialValkey(c.Session.ValkeyURL)
		if err != nil {
			return nil, err
		}
		return session.NewValkeyBackend(client,
			session.WithPrefix(c.Session.Prefix),
			session.WithOwnedClient(),
		), nil
	default:
		return session.NewFileBackend(c.SessionPath()), nil
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.APIBaseURL == "" {
		c.APIBaseURL = d.APIBaseURL
	}
	if c.PushURL == "" {
		c.PushURL = d.PushURL
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = realtime.DefaultMaxRetries
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}
	switch {
	case c.RetryDelay == 0:
		c.RetryDelay = d.RetryDelay
	case c.RetryDelay < 0:
		c.RetryDelay = 0
	}
	if c.MetricsNamespace == "" {
		c.MetricsNamespace = d.MetricsNamespace
	}
	if c.Backend == nil {
		c.Backend = session.NewMemoryBackend()
	}
	if c.Dialer == nil {
		c.Dialer = realtime.NewWebsocketDialer(c.PushURL)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
