package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/storefront-dev/storefront/pkg/apperr"
	"github.com/storefront-dev/storefront/pkg/metrics"
)

// DefaultTimeout bounds a request whose context has no deadline.
const DefaultTimeout = 15 * time.Second

// maxBodySize caps how much of a response body is read.
const maxBodySize = 4 << 20

// TokenSource supplies the bearer token. *session.Store satisfies it.
type TokenSource interface {
	AccessToken() (string, bool)
}

// Refresher rotates the session tokens after a 401. *auth.Manager
// satisfies it.
type Refresher interface {
	RefreshToken(ctx context.Context) error
}

// Client speaks the marketplace REST contract. Every response is wrapped in
// an envelope {success, data, message, errors}; failures come back as
// *apperr.Error.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	timeout    time.Duration
	metrics    *metrics.Collector
	logger     *slog.Logger
	tracer     trace.Tracer

	mu        sync.RWMutex
	refresher Refresher
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpClient = h
	}
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithTimeout sets the per-request timeout used when ctx has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a Client rooted at baseURL (for example "https://api.example.com/api").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		timeout:    DefaultTimeout,
		logger:     slog.Default().With("component", "apiclient"),
		tracer:     otel.Tracer("storefront/apiclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetRefresher installs the token refresher. Set after construction because
// the refresher itself usually depends on the client.
func (c *Client) SetRefresher(r Refresher) {
	c.mu.Lock()
	c.refresher = r
	c.mu.Unlock()
}

func (c *Client) currentRefresher() Refresher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refresher
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
}

type request struct {
	method    string
	path      string
	endpoint  string // metrics and span label
	body      any
	out       any
	anonymous bool // sent without a bearer token
	noRefresh bool // a 401 is returned as is
}

// do executes req. A 401 on a non-auth endpoint triggers one refresh
// through the Refresher followed by one retry.
func (c *Client) do(ctx context.Context, req request) error {
	return c.doWithRetry(ctx, req, false)
}

func (c *Client) doWithRetry(ctx context.Context, req request, isRetry bool) error {
	err := c.roundTrip(ctx, req)
	if err == nil || isRetry || req.noRefresh || req.anonymous {
		return err
	}
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Status != http.StatusUnauthorized {
		return err
	}
	r := c.currentRefresher()
	if r == nil {
		return err
	}

	c.logger.Debug("refreshing token after 401", "endpoint", req.endpoint)
	if rerr := r.RefreshToken(ctx); rerr != nil {
		return rerr
	}
	return c.doWithRetry(ctx, req, true)
}

func (c *Client) roundTrip(ctx context.Context, req request) (err error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	ctx, span := c.tracer.Start(ctx, "api "+req.endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.method),
			attribute.String("http.route", req.endpoint),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()
	status, env, err := c.send(ctx, req)
	c.metrics.APIRequest(req.endpoint, status, time.Since(start))
	span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		return err
	}

	if status < 200 || status >= 300 || !env.Success {
		if status >= 200 && status < 300 {
			// success:false on a 2xx is a validation style rejection.
			status = http.StatusBadRequest
		}
		return apperr.FromStatus(status, env.Message, parseDetails(env.Errors)).
			WithOp(req.endpoint)
	}

	if req.out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, req.out); err != nil {
			return apperr.Newf(apperr.KindUnknown, "malformed %s response", req.endpoint).
				WithOp(req.endpoint).
				Wrap(errors.Wrap(err, "decode data"))
		}
	}
	return nil
}

// send performs the HTTP exchange. A transport failure returns status 0 and
// an apperr Network error.
func (c *Client) send(ctx context.Context, req request) (int, envelope, error) {
	var env envelope

	var body io.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			return 0, env, apperr.Newf(apperr.KindValidation, "cannot encode %s request", req.endpoint).
				WithOp(req.endpoint).
				Wrap(err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return 0, env, apperr.Network(errors.Wrap(err, "build request")).WithOp(req.endpoint)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if !req.anonymous && c.tokens != nil {
		if token, ok := c.tokens.AccessToken(); ok {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, env, apperr.Network(errors.Wrapf(err, "%s %s", req.method, req.path)).WithOp(req.endpoint)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, env, apperr.Network(errors.Wrap(err, "read response")).WithOp(req.endpoint)
	}

	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			c.logger.Debug("response is not an envelope", "endpoint", req.endpoint, "status", resp.StatusCode)
			env = envelope{}
		}
	} else {
		env.Success = resp.StatusCode >= 200 && resp.StatusCode < 300
	}
	return resp.StatusCode, env, nil
}

// parseDetails reads field errors given either as {"field": "msg"},
// {"field": ["msg", ...]} or [{"field": "...", "message": "..."}].
func parseDetails(raw json.RawMessage) map[string][]string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var byField map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byField); err == nil {
		out := make(map[string][]string, len(byField))
		for field, v := range byField {
			var one string
			if json.Unmarshal(v, &one) == nil {
				out[field] = append(out[field], one)
				continue
			}
			var many []string
			if json.Unmarshal(v, &many) == nil {
				out[field] = append(out[field], many...)
			}
		}
		return nilIfEmpty(out)
	}

	var list []struct {
		Field   string `json:"field"`
		Path    string `json:"path"`
		Message string `json:"message"`
		Msg     string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make(map[string][]string, len(list))
		for _, item := range list {
			field := item.Field
			if field == "" {
				field = item.Path
			}
			msg := item.Message
			if msg == "" {
				msg = item.Msg
			}
			out[field] = append(out[field], msg)
		}
		return nilIfEmpty(out)
	}
	return nil
}

func nilIfEmpty(m map[string][]string) map[string][]string {
	if len(m) == 0 {
		return nil
	}
	return m
}
