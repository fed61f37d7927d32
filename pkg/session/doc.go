// Package session holds the client-side authentication session: the access
// token, the refresh token and the signed-in user.
//
// # Session Store
//
// The Store is the durable key/value holder for the three session fields.
// Reads are served from an in-process mirror and never block on I/O; writes go
// through to a pluggable Backend:
//
//	store := session.NewMemoryStore()
//	// or, to survive process restarts
//	store, err := session.Open(ctx, session.NewFileBackend(path))
//	// or, shared between processes
//	store, err := session.Open(ctx, session.NewValkeyBackend(client))
//
// ClearAuthData removes all three fields as a single operation; a partially
// cleared session is never observable.
//
// # Roles
//
// Roles are parsed exactly once, at ParseRole, into the closed set
// RoleCustomer, RoleVendor and RoleAdmin. Unrecognized input is an error.
//
// # Token Expiry
//
// IsAuthenticated only checks that an access token exists. TokenExpiry reads
// the JWT exp claim without verifying the signature so callers can decide to
// refresh early; the server stays the authority.
package session
