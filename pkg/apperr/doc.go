// Package apperr defines the normalized error taxonomy shared by the storefront
// client core.
//
// Every failure that crosses a component boundary is an *Error carrying a
// Kind, the HTTP status (0 when no response arrived), a message and optional
// field-level details:
//
//	KindAuthentication          401, ends the session (forced logout)
//	KindForbidden               403, non-fatal
//	KindValidation              400/422, field messages in Details
//	KindNotFound                404, feature unavailable
//	KindServer                  5xx, retryable
//	KindNetwork                 no response, retryable
//	KindTransitionPrecondition  client-side order gate, raised before any request
//
// Errors compare by kind with errors.Is:
//
//	if errors.Is(err, apperr.ErrAuthentication) {
//	    // redirect to login
//	}
package apperr
