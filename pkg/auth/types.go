package auth

import (
	"context"
	"errors"

	"github.com/storefront-dev/storefront/pkg/realtime"
	"github.com/storefront-dev/storefront/pkg/session"
)

// Reasons carried on eventbus.AuthState.
const (
	ReasonLogin         = "login"
	ReasonRegister      = "register"
	ReasonLogout        = "logout"
	ReasonRefresh       = "refresh"
	ReasonRefreshFailed = "refresh_failed"
	ReasonRestore       = "restore"
	ReasonUserUpdated   = "user_updated"
)

var (
	// ErrNoRefreshToken is wrapped into the Authentication error returned when
	// a refresh is attempted without a stored refresh token.
	ErrNoRefreshToken = errors.New("auth: no refresh token")

	// ErrNoSession is returned by operations that need a signed-in user.
	ErrNoSession = errors.New("auth: not signed in")

	// ErrSuperseded is wrapped into the error returned when a response
	// arrives after a later sign-in or sign-out replaced the session it was
	// requested for. The response is dropped.
	ErrSuperseded = errors.New("auth: session changed while the request was in flight")
)

// Credentials are the login form fields.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the signup form. Role defaults to customer; a vendor
// registration is an application that needs approval before sign-in.
type Registration struct {
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	Password     string       `json:"password"`
	Phone        string       `json:"phone,omitempty"`
	Role         session.Role `json:"role"`
	BusinessName string       `json:"businessName,omitempty"`
}

// TokenPair is an access token and its refresh token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Result is the outcome of a login or registration.
type Result struct {
	User   *session.User
	Tokens TokenPair

	// RequiresApproval is set for vendor applications. Nothing is persisted
	// and no connection is opened.
	RequiresApproval bool

	// Message is the backend's human readable message, if any.
	Message string
}

// UserUpdate holds the profile fields to change. Empty fields are kept.
type UserUpdate struct {
	Name  string
	Email string
	Phone string
}

// API is the backend surface the manager needs.
type API interface {
	Login(ctx context.Context, c Credentials) (*Result, error)
	Register(ctx context.Context, r Registration) (*Result, error)
	Logout(ctx context.Context, refreshToken string) error
	RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	VerifyEmail(ctx context.Context, token string) error
	VerifyPhone(ctx context.Context, phone, code string) error
}

// Connector is the push connection lifecycle the manager drives.
// *realtime.Manager satisfies it.
type Connector interface {
	InitializeConnection(ctx context.Context, token string) (*realtime.Connection, error)
	Reconnect(ctx context.Context, token string) (*realtime.Connection, error)
	Disconnect()
}
