package auth

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/storefront-dev/storefront/pkg/apperr"
	"github.com/storefront-dev/storefront/pkg/eventbus"
	"github.com/storefront-dev/storefront/pkg/metrics"
	"github.com/storefront-dev/storefront/pkg/session"
)

const (
	// DefaultExpirySkew is how early Restore treats an access token as expired.
	DefaultExpirySkew = 30 * time.Second

	// DefaultRefreshTimeout bounds a shared token refresh.
	DefaultRefreshTimeout = 15 * time.Second
)

// Manager owns the signed-in lifecycle: it writes the session store, drives
// the push connection and announces every change on the bus.
//
// The session is only ever written here. A failed login or registration
// leaves it untouched.
//
// Every sign-in and sign-out starts a new session generation. A login,
// registration or refresh response that arrives after the generation it was
// requested in has ended is dropped: nothing is saved, connected or
// published. AuthStateChanged handlers run while the generation is held and
// must not call back into Login, Register, Logout or RefreshToken.
type Manager struct {
	store          *session.Store
	api            API
	conn           Connector
	bus            *eventbus.Bus
	metrics        *metrics.Collector
	logger         *slog.Logger
	now            func() time.Time
	skew           time.Duration
	refreshTimeout time.Duration

	mu         sync.Mutex
	generation uint64

	refreshes singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithBus publishes auth state changes on bus. Default is a private bus.
func WithBus(b *eventbus.Bus) Option {
	return func(m *Manager) {
		m.bus = b
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) {
		m.metrics = c
	}
}

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithClock sets the time source used for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithExpirySkew sets how early a token counts as expired.
func WithExpirySkew(d time.Duration) Option {
	return func(m *Manager) {
		m.skew = d
	}
}

// WithRefreshTimeout bounds the shared refresh call. It runs detached from
// the callers' contexts, so one caller giving up does not cancel it.
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.refreshTimeout = d
		}
	}
}

// NewManager creates a Manager.
func NewManager(store *session.Store, api API, conn Connector, opts ...Option) *Manager {
	m := &Manager{
		store:          store,
		api:            api,
		conn:           conn,
		logger:         slog.Default().With("component", "auth"),
		now:            time.Now,
		skew:           DefaultExpirySkew,
		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.bus == nil {
		m.bus = eventbus.New(eventbus.WithLogger(m.logger))
	}
	return m
}

// Login signs in. On success the session is persisted, the push connection
// is bound to the new token and AuthStateChanged is published.
func (m *Manager) Login(ctx context.Context, c Credentials) (*Result, error) {
	const op = "auth.login"

	details := map[string][]string{}
	if strings.TrimSpace(c.Email) == "" {
		details["email"] = []string{"Email is required"}
	}
	if c.Password == "" {
		details["password"] = []string{"Password is required"}
	}
	if len(details) > 0 {
		return nil, apperr.New(apperr.KindValidation).WithOp(op).WithDetails(details)
	}

	gen := m.epoch()
	res, err := m.api.Login(ctx, c)
	if err != nil {
		return nil, normalize(err, op)
	}
	if res == nil || res.User == nil || res.Tokens.AccessToken == "" {
		return nil, apperr.Newf(apperr.KindUnknown, "login response carried no session").WithOp(op)
	}
	if err := m.establish(ctx, gen, res, ReasonLogin); err != nil {
		return nil, normalize(err, op)
	}
	return res, nil
}

// Register creates an account. Ordinary signups are signed in like Login.
// A vendor application, or any response flagged requiresApproval, returns
// RequiresApproval and leaves the session and connection untouched.
func (m *Manager) Register(ctx context.Context, r Registration) (*Result, error) {
	const op = "auth.register"

	details := map[string][]string{}
	if strings.TrimSpace(r.Email) == "" {
		details["email"] = []string{"Email is required"}
	}
	if r.Password == "" {
		details["password"] = []string{"Password is required"}
	}
	if len(details) > 0 {
		return nil, apperr.New(apperr.KindValidation).WithOp(op).WithDetails(details)
	}

	gen := m.epoch()
	res, err := m.api.Register(ctx, r)
	if err != nil {
		return nil, normalize(err, op)
	}
	if res == nil {
		return nil, apperr.Newf(apperr.KindUnknown, "empty registration response").WithOp(op)
	}

	if r.Role == session.RoleVendor || res.RequiresApproval {
		m.logger.Info("vendor application submitted", "email", r.Email)
		return &Result{User: res.User, RequiresApproval: true, Message: res.Message}, nil
	}
	if res.User == nil || res.Tokens.AccessToken == "" {
		// Accounts that must verify their email before the first login.
		return res, nil
	}
	if err := m.establish(ctx, gen, res, ReasonRegister); err != nil {
		return nil, normalize(err, op)
	}
	return res, nil
}

// establish installs a new session if generation gen is still current.
func (m *Manager) establish(ctx context.Context, gen uint64, res *Result, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		m.logger.Info("dropping sign-in response, session changed while it was in flight", "reason", reason)
		return apperr.Newf(apperr.KindUnknown, "Sign-in was superseded").Wrap(ErrSuperseded)
	}
	m.generation++

	err := m.store.Save(ctx, session.Session{
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		User:         res.User,
	})
	if err != nil {
		return err
	}

	m.connect(ctx, res.Tokens.AccessToken)
	m.publish(eventbus.AuthState{
		Authenticated: true,
		UserID:        res.User.ID,
		Role:          res.User.Role.String(),
		Reason:        reason,
	})
	return nil
}

// connect binds the push connection to token. A dial failure does not fail
// the caller; the connection stays redialable.
func (m *Manager) connect(ctx context.Context, token string) {
	if m.conn == nil {
		return
	}
	if _, err := m.conn.InitializeConnection(ctx, token); err != nil {
		m.logger.Warn("push connection unavailable", "error", err)
	}
}

// Logout ends the session. The connection is closed first, then the backend
// is asked to revoke the refresh token. The session is cleared and
// AuthStateChanged published on every path; a backend failure is only
// logged.
func (m *Manager) Logout(ctx context.Context) (err error) {
	refresh, _ := m.store.RefreshToken()
	m.invalidate()

	defer func() {
		err = m.clear(ctx)
		m.publish(eventbus.AuthState{Reason: ReasonLogout})
	}()

	if refresh != "" {
		if lerr := m.api.Logout(ctx, refresh); lerr != nil {
			m.logger.Warn("backend logout failed", "error", lerr)
		}
	}
	return nil
}

// RefreshToken rotates the token pair. Concurrent callers share one backend
// call. Any failure, including a missing refresh token, is a forced logout
// and returns an Authentication error.
//
// The shared call runs detached from ctx and bounded by the refresh timeout.
// A caller whose ctx ends first gets ctx.Err() and the refresh carries on
// for the others.
func (m *Manager) RefreshToken(ctx context.Context) error {
	ch := m.refreshes.DoChan("refresh", func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
		defer cancel()
		return nil, m.refresh(rctx)
	})

	select {
	case res := <-ch:
		if res.Shared {
			m.logger.Debug("joined in-flight token refresh")
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) refresh(ctx context.Context) error {
	const op = "auth.refresh"

	gen := m.epoch()
	token, ok := m.store.RefreshToken()
	if !ok {
		m.forceLogout(ctx, gen, ErrNoRefreshToken)
		return apperr.New(apperr.KindAuthentication).WithOp(op).Wrap(ErrNoRefreshToken)
	}

	pair, err := m.api.RefreshToken(ctx, token)
	if err == nil && (pair == nil || pair.AccessToken == "") {
		err = apperr.Newf(apperr.KindAuthentication, "refresh returned no access token")
	}
	if err != nil {
		m.forceLogout(ctx, gen, err)
		return apperr.New(apperr.KindAuthentication).WithOp(op).Wrap(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		m.logger.Info("dropping refresh response, session changed while it was in flight")
		return apperr.New(apperr.KindAuthentication).WithOp(op).Wrap(ErrSuperseded)
	}

	u, _ := m.store.User()
	if pair.RefreshToken == "" {
		pair.RefreshToken = token
	}
	if err := m.store.Save(ctx, session.Session{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         u,
	}); err != nil {
		return apperr.From(err).WithOp(op)
	}

	m.connect(ctx, pair.AccessToken)
	state := eventbus.AuthState{Authenticated: true, Reason: ReasonRefresh}
	if u != nil {
		state.UserID, state.Role = u.ID, u.Role.String()
	}
	m.publish(state)
	return nil
}

// forceLogout ends generation gen after a failed refresh. A later sign-in
// or sign-out already replaced gen is left alone.
func (m *Manager) forceLogout(ctx context.Context, gen uint64, cause error) {
	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		m.logger.Info("ignoring refresh failure for an ended session", "error", cause)
		return
	}
	m.generation++
	m.mu.Unlock()

	m.logger.Warn("token refresh failed, signing out", "error", cause)
	m.disconnect()
	_ = m.clear(ctx)
	m.metrics.ForcedLogout()
	m.publish(eventbus.AuthState{Reason: ReasonRefreshFailed, Forced: true})
}

// invalidate ends the current generation. The connection is closed before
// and after the switch, so a dial made for the ended generation is
// cancelled and none survives.
func (m *Manager) invalidate() {
	m.disconnect()
	m.mu.Lock()
	m.generation++
	m.mu.Unlock()
	m.disconnect()
}

func (m *Manager) disconnect() {
	if m.conn != nil {
		m.conn.Disconnect()
	}
}

// epoch returns the current session generation.
func (m *Manager) epoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

func (m *Manager) clear(ctx context.Context) error {
	if err := m.store.ClearAuthData(ctx); err != nil {
		m.logger.Error("clearing session failed", "error", err)
		return err
	}
	return nil
}

// UpdateUser changes profile fields of the stored user. Tokens and the
// connection are not touched.
func (m *Manager) UpdateUser(ctx context.Context, upd UserUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.store.User()
	if !ok {
		return ErrNoSession
	}
	if upd.Name != "" {
		u.Name = upd.Name
	}
	if upd.Email != "" {
		u.Email = upd.Email
	}
	if upd.Phone != "" {
		u.Phone = upd.Phone
	}
	if err := m.store.SetUser(ctx, *u); err != nil {
		return err
	}
	m.publish(eventbus.AuthState{
		Authenticated: m.store.IsAuthenticated(),
		UserID:        u.ID,
		Role:          u.Role.String(),
		Reason:        ReasonUserUpdated,
	})
	return nil
}

// ForgotPassword asks the backend to send a reset link.
func (m *Manager) ForgotPassword(ctx context.Context, email string) error {
	const op = "auth.forgot_password"
	if strings.TrimSpace(email) == "" {
		return apperr.New(apperr.KindValidation).WithOp(op).
			WithDetails(map[string][]string{"email": {"Email is required"}})
	}
	return normalize(m.api.ForgotPassword(ctx, email), op)
}

// ResetPassword sets a new password using a reset token.
func (m *Manager) ResetPassword(ctx context.Context, token, password string) error {
	const op = "auth.reset_password"
	if token == "" || password == "" {
		return apperr.Newf(apperr.KindValidation, "Reset token and new password are required").WithOp(op)
	}
	return normalize(m.api.ResetPassword(ctx, token, password), op)
}

// VerifyEmail confirms an email address.
func (m *Manager) VerifyEmail(ctx context.Context, token string) error {
	const op = "auth.verify_email"
	if token == "" {
		return apperr.Newf(apperr.KindValidation, "Verification token is required").WithOp(op)
	}
	return normalize(m.api.VerifyEmail(ctx, token), op)
}

// VerifyPhone confirms a phone number with the code sent to it.
func (m *Manager) VerifyPhone(ctx context.Context, phone, code string) error {
	const op = "auth.verify_phone"
	if phone == "" || code == "" {
		return apperr.Newf(apperr.KindValidation, "Phone and code are required").WithOp(op)
	}
	return normalize(m.api.VerifyPhone(ctx, phone, code), op)
}

// Restore resumes a persisted session at startup. An expired access token
// is refreshed first; otherwise the connection is opened with the stored
// token. It reports whether a session is active afterwards.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	token, ok := m.store.AccessToken()
	if !ok {
		return false, nil
	}

	if session.TokenExpired(token, m.now(), m.skew) {
		m.logger.Info("stored access token expired, refreshing")
		if err := m.RefreshToken(ctx); err != nil {
			return false, err
		}
		return true, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if current, _ := m.store.AccessToken(); current != token {
		return m.store.IsAuthenticated(), nil
	}

	m.connect(ctx, token)
	state := eventbus.AuthState{Authenticated: true, Reason: ReasonRestore}
	if u, ok := m.store.User(); ok {
		state.UserID, state.Role = u.ID, u.Role.String()
	}
	m.publish(state)
	return true, nil
}

// IsAuthenticated reports whether an access token is stored.
func (m *Manager) IsAuthenticated() bool {
	return m.store.IsAuthenticated()
}

// CurrentUser returns a copy of the signed-in user.
func (m *Manager) CurrentUser() (*session.User, bool) {
	return m.store.User()
}

// Bus returns the bus auth state is published on.
func (m *Manager) Bus() *eventbus.Bus {
	return m.bus
}

func (m *Manager) publish(s eventbus.AuthState) {
	eventbus.Publish(m.bus, eventbus.AuthStateChanged, s)
}

// normalize converts err into an *apperr.Error tagged with op.
func normalize(err error, op string) error {
	if err == nil {
		return nil
	}
	ae := apperr.From(err)
	if ae.Op == "" {
		ae.Op = op
	}
	return ae
}
