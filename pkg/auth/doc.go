// Package auth manages the signed-in lifecycle of a storefront client.
//
// A Manager is the only writer of the session store. Every operation that
// changes whether the user is signed in follows the same order:
//
//   - persist (or clear) the session
//   - bind (or close) the push connection
//   - publish eventbus.AuthStateChanged
//
// # Token refresh
//
// RefreshToken is safe to call from many goroutines at once; callers that
// arrive while a refresh is in flight wait for it and share its result.
// A failed refresh is a forced logout: the connection is closed, the session
// cleared and AuthStateChanged published with Forced set and reason
// "refresh_failed". The shared call is not tied to any one caller's context;
// a caller that stops waiting gets its context error and the refresh
// continues for the rest.
//
// A refresh or sign-in that completes after Logout, or after a newer
// sign-in, is discarded and returns an error wrapping ErrSuperseded.
//
// The API client calls RefreshToken once when a non-auth endpoint answers
// 401, then retries the request:
//
//	client := apiclient.New(baseURL, apiclient.WithTokenSource(store))
//	mgr := auth.NewManager(store, client, realtimeManager, auth.WithBus(bus))
//	client.SetRefresher(mgr)
//
// # Vendor applications
//
// Registering with the vendor role submits an application. Register returns
// a Result with RequiresApproval set; nothing is persisted and no connection
// is opened until an admin approves the account and the vendor logs in.
package auth
