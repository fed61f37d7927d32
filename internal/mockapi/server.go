// Package mockapi is an in-memory marketplace backend speaking the same REST
// and push contract as the real one. It backs the package tests and the
// `storefront mock-backend` command.
package mockapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/storefront-dev/storefront/pkg/notification"
	"github.com/storefront-dev/storefront/pkg/order"
	"github.com/storefront-dev/storefront/pkg/realtime"
	"github.com/storefront-dev/storefront/pkg/session"
)

// PhoneCode is the only verification code VerifyPhone accepts.
const PhoneCode = "123456"

type account struct {
	user     session.User
	password string
	approved bool
}

// Server is the fake backend. All state lives in memory.
type Server struct {
	router chi.Router
	hub    *Hub
	secret []byte
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu            sync.Mutex
	accounts      map[string]*account // by email
	refresh       map[string]string   // refresh token to user id
	notifications map[string][]notification.Notification
	orders        map[string]*order.Order
	failures      map[string][]int
	hits          map[string]int
}

// Option configures a Server.
type Option func(*Server)

// WithTokenTTL sets the access token lifetime (default 15m).
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) {
		s.ttl = d
	}
}

// WithSecret sets the HMAC key used to sign access tokens.
func WithSecret(secret []byte) Option {
	return func(s *Server) {
		s.secret = secret
	}
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// New creates an empty backend.
func New(opts ...Option) *Server {
	s := &Server{
		hub:           NewHub(),
		secret:        []byte("storefront-mock-secret"),
		ttl:           15 * time.Minute,
		logger:        slog.Default().With("component", "mockapi"),
		now:           time.Now,
		accounts:      make(map[string]*account),
		refresh:       make(map[string]string),
		notifications: make(map[string][]notification.Notification),
		orders:        make(map[string]*order.Order),
		failures:      make(map[string][]int),
		hits:          make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.inject)

	r.Get("/ws", s.handlePush)
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/logout", s.handleLogout)
		r.Post("/auth/refresh-token", s.handleRefresh)
		r.Post("/auth/forgot-password", s.handleForgotPassword)
		r.Post("/auth/reset-password", s.handleResetPassword)
		r.Post("/auth/verify-email", s.handleVerifyEmail)
		r.Post("/auth/verify-phone", s.handleVerifyPhone)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Get("/notifications", s.handleListNotifications)
			r.Get("/notifications/unread-count", s.handleUnreadCount)
			r.Put("/notifications/read-all", s.handleReadAll)
			r.Put("/notifications/{id}/read", s.handleRead)
			r.Get("/orders", s.handleListOrders)
			r.Put("/orders/{id}/status", s.handleSetStatus)
		})
	})
	return r
}

// Handler returns the HTTP handler. REST routes live under /api and the push
// socket at /ws.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the push hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close drops every push socket.
func (s *Server) Close() {
	s.hub.Close()
}

// AddUser registers an approved account and returns the stored user.
// A missing id is generated.
func (s *Server) AddUser(u session.User, password string) session.User {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[strings.ToLower(u.Email)] = &account{user: u, password: password, approved: true}
	return u
}

// Approve marks a pending vendor account approved.
func (s *Server) Approve(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[strings.ToLower(email)]
	if ok {
		acct.approved = true
	}
	return ok
}

// AddOrder stores o. A missing id is generated.
func (s *Server) AddOrder(o order.Order) order.Order {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = s.now()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = o.UpdatedAt
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := o
	s.orders[o.ID] = &cp
	return o
}

// Order returns the stored order.
func (s *Server) Order(id string) (order.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, false
	}
	return *o, true
}

// AddNotification stores n for userID without pushing it.
func (s *Server) AddNotification(userID string, n notification.Notification) notification.Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[userID] = append(s.notifications[userID], n)
	return n
}

// Notify stores n for userID and pushes it as a notification event.
func (s *Server) Notify(userID string, n notification.Notification) notification.Notification {
	n = s.AddNotification(userID, n)
	data, _ := json.Marshal(n)
	s.Push(userID, realtime.EventNotification, n.Type, data)
	return n
}

// Push sends a raw event to userID's sockets and returns how many received it.
func (s *Server) Push(userID, event, typ string, data json.RawMessage) int {
	return s.hub.Send(userID, realtime.Event{Name: event, Type: typ, Data: data})
}

// FailNext makes the next request to method and path (for example
// "GET /api/orders") answer with status instead of being handled.
func (s *Server) FailNext(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], status)
}

// Hits returns how many requests reached route.
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// IssueAccessToken signs an access token for userID valid for ttl.
func (s *Server) IssueAccessToken(userID string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) parseAccessToken(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

func (s *Server) issuePair(userID string) (map[string]any, error) {
	access, err := s.IssueAccessToken(userID, s.ttl)
	if err != nil {
		return nil, err
	}
	refresh := uuid.NewString()
	s.mu.Lock()
	s.refresh[refresh] = userID
	s.mu.Unlock()
	return map[string]any{"accessToken": access, "refreshToken": refresh}, nil
}

func (s *Server) userByID(id string) (session.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.accounts {
		if acct.user.ID == id {
			return acct.user, true
		}
	}
	return session.User{}, false
}

type userKey struct{}

func userFrom(ctx context.Context) session.User {
	u, _ := ctx.Value(userKey{}).(session.User)
	return u
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return token
	}
	return ""
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, err := s.parseAccessToken(bearer(r))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token", nil)
			return
		}
		u, ok := s.userByID(uid)
		if !ok {
			writeError(w, http.StatusUnauthorized, "User no longer exists", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, u)))
	})
}

func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path

		s.mu.Lock()
		s.hits[route]++
		var status int
		if queued := s.failures[route]; len(queued) > 0 {
			status = queued[0]
			s.failures[route] = queued[1:]
		}
		s.mu.Unlock()

		if status != 0 {
			writeError(w, status, http.StatusText(status), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearer(r)
	}
	uid, err := s.parseAccessToken(token)
	if err != nil {
		s.logger.Debug("push handshake rejected", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.hub.serve(w, r, uid)
}

type envelope struct {
	Success bool                `json:"success"`
	Data    any                 `json:"data,omitempty"`
	Message string              `json:"message,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data, Message: message})
}

func writeError(w http.ResponseWriter, status int, message string, details map[string][]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Message: message, Errors: details})
}

func decode(r *http.Request, v any) bool {
	return json.NewDecoder(r.Body).Decode(v) == nil
}

func sortNotifications(list []notification.Notification) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

func sortOrders(list []order.Order) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}
