package apiclient

import (
	"context"
	"net/http"

	"github.com/storefront-dev/storefront/pkg/apperr"
	"github.com/storefront-dev/storefront/pkg/auth"
	"github.com/storefront-dev/storefront/pkg/session"
)

var _ auth.API = (*Client)(nil)

type wireUser struct {
	ID       string `json:"id"`
	LegacyID string `json:"_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Phone    string `json:"phone"`
}

// user converts the wire form. An unrecognized role is an error rather than
// a silent downgrade.
func (w *wireUser) user(op string) (*session.User, error) {
	if w == nil {
		return nil, nil
	}
	role, err := session.ParseRole(w.Role)
	if err != nil {
		return nil, apperr.Newf(apperr.KindUnknown, "unrecognized role %q", w.Role).WithOp(op).Wrap(err)
	}
	id := w.ID
	if id == "" {
		id = w.LegacyID
	}
	return &session.User{
		ID:    id,
		Name:  w.Name,
		Email: w.Email,
		Role:  role,
		Phone: w.Phone,
	}, nil
}

type wireAuth struct {
	User             *wireUser       `json:"user"`
	AccessToken      string          `json:"accessToken"`
	Token            string          `json:"token"`
	RefreshToken     string          `json:"refreshToken"`
	Tokens           *auth.TokenPair `json:"tokens"`
	RequiresApproval bool            `json:"requiresApproval"`
}

func (w wireAuth) tokens() auth.TokenPair {
	if w.Tokens != nil && w.Tokens.AccessToken != "" {
		return *w.Tokens
	}
	access := w.AccessToken
	if access == "" {
		access = w.Token
	}
	return auth.TokenPair{AccessToken: access, RefreshToken: w.RefreshToken}
}

func (w wireAuth) result(op string) (*auth.Result, error) {
	u, err := w.User.user(op)
	if err != nil {
		return nil, err
	}
	return &auth.Result{
		User:             u,
		Tokens:           w.tokens(),
		RequiresApproval: w.RequiresApproval,
	}, nil
}

// Login calls POST /auth/login.
func (c *Client) Login(ctx context.Context, cred auth.Credentials) (*auth.Result, error) {
	var data wireAuth
	err := c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/auth/login",
		endpoint:  "auth.login",
		body:      cred,
		out:       &data,
		anonymous: true,
	})
	if err != nil {
		return nil, err
	}
	return data.result("auth.login")
}

// Register calls POST /auth/register. A zero role registers a customer.
func (c *Client) Register(ctx context.Context, r auth.Registration) (*auth.Result, error) {
	role := r.Role
	if role == session.RoleUnknown {
		role = session.RoleCustomer
	}
	body := map[string]string{
		"name":     r.Name,
		"email":    r.Email,
		"password": r.Password,
		"role":     role.String(),
	}
	if r.Phone != "" {
		body["phone"] = r.Phone
	}
	if r.BusinessName != "" {
		body["businessName"] = r.BusinessName
	}

	var data wireAuth
	err := c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/auth/register",
		endpoint:  "auth.register",
		body:      body,
		out:       &data,
		anonymous: true,
	})
	if err != nil {
		return nil, err
	}
	return data.result("auth.register")
}

// Logout calls POST /auth/logout with the refresh token to revoke.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/auth/logout",
		endpoint:  "auth.logout",
		body:      map[string]string{"refreshToken": refreshToken},
		noRefresh: true,
	})
}

// RefreshToken calls POST /auth/refresh-token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	var data wireAuth
	err := c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/auth/refresh-token",
		endpoint:  "auth.refresh",
		body:      map[string]string{"refreshToken": refreshToken},
		out:       &data,
		anonymous: true,
	})
	if err != nil {
		return nil, err
	}
	pair := data.tokens()
	if pair.AccessToken == "" {
		return nil, apperr.Newf(apperr.KindAuthentication, "refresh returned no access token").WithOp("auth.refresh")
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	return &pair, nil
}

// ForgotPassword calls POST /auth/forgot-password.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/auth/forgot-password",
		endpoint:  "auth.forgot_password",
		body:      map[string]string{"email": email},
		anonymous: true,
	})
}

// ResetPassword calls POST /auth/reset-password.
func (c *Client) ResetPassword(ctx context.Context, token, password string) error {
	return c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/auth/reset-password",
		endpoint:  "auth.reset_password",
		body:      map[string]string{"token": token, "password": password},
		anonymous: true,
	})
}

// VerifyEmail calls POST /auth/verify-email.
func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	return c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/auth/verify-email",
		endpoint:  "auth.verify_email",
		body:      map[string]string{"token": token},
		anonymous: true,
	})
}

// VerifyPhone calls POST /auth/verify-phone.
func (c *Client) VerifyPhone(ctx context.Context, phone, code string) error {
	return c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/auth/verify-phone",
		endpoint:  "auth.verify_phone",
		body:      map[string]string{"phone": phone, "code": code},
		anonymous: true,
	})
}
