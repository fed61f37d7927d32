package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Store is the durable holder of {accessToken, refreshToken, user}.
//
// All reads come from an in-memory mirror guarded by mu, so readers never see
// a half-written session. Writes update the backend first and the mirror only
// on success, except ClearAuthData which always clears the mirror.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	current Session
	logger  *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore creates an empty Store over backend without loading persisted state.
func NewStore(backend Backend, opts ...StoreOption) *Store {
	s := &Store{
		backend: backend,
		logger:  slog.Default().With("component", "session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewMemoryStore creates a Store backed by process memory.
func NewMemoryStore(opts ...StoreOption) *Store {
	return NewStore(NewMemoryBackend(), opts...)
}

// Open creates a Store and restores any session persisted in backend.
// Persisted data that cannot be decoded, or a user whose role is outside
// the closed set, clears the persisted keys and returns ErrCorruptSession
// along with an empty, usable Store.
func Open(ctx context.Context, backend Backend, opts ...StoreOption) (*Store, error) {
	s := NewStore(backend, opts...)

	values, err := backend.Load(ctx, Keys...)
	if errors.Is(err, ErrCorruptSession) {
		return s, s.discard(ctx, err)
	}
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}

	restored := Session{
		AccessToken:  values[KeyAccessToken],
		RefreshToken: values[KeyRefreshToken],
	}
	if raw, ok := values[KeyUser]; ok && raw != "" {
		u, err := decodeUser(raw)
		if err == nil && !u.Role.Valid() {
			err = ErrUnknownRole{Value: u.Role.String()}
		}
		if err != nil {
			return s, s.discard(ctx, fmt.Errorf("%w: %v", ErrCorruptSession, err))
		}
		restored.User = u
	}

	s.current = restored
	return s, nil
}

// discard clears the persisted keys after a corrupt load and returns cause.
func (s *Store) discard(ctx context.Context, cause error) error {
	s.logger.Warn("discarding corrupt persisted session", "error", cause)
	if err := s.backend.Delete(ctx, Keys...); err != nil {
		s.logger.Error("failed to clear corrupt session", "error", err)
	}
	return cause
}

// Save persists a whole session. Used when a login or registration succeeds.
func (s *Store) Save(ctx context.Context, sess Session) error {
	if sess.AccessToken == "" {
		return ErrNoAccessToken
	}

	values := map[string]string{KeyAccessToken: sess.AccessToken}
	if sess.RefreshToken != "" {
		values[KeyRefreshToken] = sess.RefreshToken
	}
	if sess.User != nil {
		encoded, err := encodeUser(*sess.User)
		if err != nil {
			return fmt.Errorf("session: encode user: %w", err)
		}
		values[KeyUser] = encoded
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Set(ctx, values); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}

	var stale []string
	if sess.RefreshToken == "" {
		stale = append(stale, KeyRefreshToken)
	}
	if sess.User == nil {
		stale = append(stale, KeyUser)
	}
	if len(stale) > 0 {
		if err := s.backend.Delete(ctx, stale...); err != nil {
			return fmt.Errorf("session: save: %w", err)
		}
	}

	s.current = Session{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		User:         cloneUser(sess.User),
	}
	return nil
}

// SetAccessToken replaces the access token.
func (s *Store) SetAccessToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.setOrDelete(ctx, KeyAccessToken, token); err != nil {
		return err
	}
	s.current.AccessToken = token
	return nil
}

// AccessToken returns the access token and whether one is set.
func (s *Store) AccessToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.AccessToken, s.current.AccessToken != ""
}

// SetRefreshToken replaces the refresh token.
func (s *Store) SetRefreshToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.setOrDelete(ctx, KeyRefreshToken, token); err != nil {
		return err
	}
	s.current.RefreshToken = token
	return nil
}

// RefreshToken returns the refresh token and whether one is set.
func (s *Store) RefreshToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.RefreshToken, s.current.RefreshToken != ""
}

// SetUser replaces the stored user. Tokens are untouched.
func (s *Store) SetUser(ctx context.Context, u User) error {
	if !u.Role.Valid() {
		return ErrUnknownRole{Value: u.Role.String()}
	}
	encoded, err := encodeUser(u)
	if err != nil {
		return fmt.Errorf("session: encode user: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Set(ctx, map[string]string{KeyUser: encoded}); err != nil {
		return fmt.Errorf("session: set user: %w", err)
	}
	s.current.User = &u
	return nil
}

// User returns a copy of the stored user.
func (s *Store) User() (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneUser(s.current.User), s.current.User != nil
}

// ClearAuthData removes the access token, refresh token and user together.
// The in-memory session is cleared even if the backend delete fails, so no
// token survives the call; the backend error is still returned.
func (s *Store) ClearAuthData(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = Session{}
	if err := s.backend.Delete(ctx, Keys...); err != nil {
		s.logger.Error("backend clear failed", "error", err)
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}

// IsAuthenticated reports whether an access token exists. It does not
// inspect expiry; see TokenExpiry.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.AccessToken != ""
}

// Snapshot returns a copy of the whole session.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Session{
		AccessToken:  s.current.AccessToken,
		RefreshToken: s.current.RefreshToken,
		User:         cloneUser(s.current.User),
	}
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) setOrDelete(ctx context.Context, key, value string) error {
	var err error
	if value == "" {
		err = s.backend.Delete(ctx, key)
	} else {
		err = s.backend.Set(ctx, map[string]string{key: value})
	}
	if err != nil {
		return fmt.Errorf("session: write %s: %w", key, err)
	}
	return nil
}
