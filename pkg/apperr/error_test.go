package apperr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		message  string
		wantKind Kind
		wantMsg  string
	}{
		{"unauthorized", 401, "", KindAuthentication, "Your session has expired"},
		{"forbidden", 403, "nope", KindForbidden, "nope"},
		{"bad request", 400, "Email is required", KindValidation, "Email is required"},
		{"unprocessable", 422, "", KindValidation, "The request contains invalid data"},
		{"not found", 404, "", KindNotFound, "The requested resource was not found"},
		{"server", 500, "boom", KindServer, "boom"},
		{"bad gateway", 502, "", KindServer, "The server encountered an error"},
		{"teapot", 418, "", KindUnknown, "Something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromStatus(tt.status, tt.message, nil)
			if err.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", err.Kind, tt.wantKind)
			}
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Status != tt.status {
				t.Errorf("Status = %d, want %d", err.Status, tt.status)
			}
		})
	}
}

func TestErrorsIsByKind(t *testing.T) {
	err := fmt.Errorf("login: %w", FromStatus(401, "", nil))

	if !errors.Is(err, ErrAuthentication) {
		t.Error("expected errors.Is(err, ErrAuthentication)")
	}
	if errors.Is(err, ErrServer) {
		t.Error("did not expect errors.Is(err, ErrServer)")
	}
	if !Is(err, KindAuthentication) {
		t.Error("expected Is(err, KindAuthentication)")
	}
}

func TestRetryableAndFatal(t *testing.T) {
	if !New(KindNetwork).Retryable() {
		t.Error("network errors should be retryable")
	}
	if !FromStatus(503, "", nil).Retryable() {
		t.Error("server errors should be retryable")
	}
	if FromStatus(400, "", nil).Retryable() {
		t.Error("validation errors should not be retryable")
	}
	if !FromStatus(401, "", nil).Fatal() {
		t.Error("authentication errors should be fatal")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("foreign errors should not be retryable")
	}
}

func TestNetworkUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Network(cause)

	if !errors.Is(err, cause) {
		t.Error("expected Network error to unwrap to its cause")
	}
	if err.Status != 0 {
		t.Errorf("Status = %d, want 0", err.Status)
	}
}

func TestPreconditionFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	err := Precondition("payment is not confirmed").WithOp("order.transition")
	if err.Kind != KindTransitionPrecondition {
		t.Fatalf("Kind = %q", err.Kind)
	}
	if !strings.Contains(err.Error(), "payment is not confirmed") {
		t.Errorf("Error() = %q, missing reason", err.Error())
	}

	out := err.Format()
	if !strings.Contains(out, "- payment is not confirmed") {
		t.Errorf("Format() missing reason line:\n%s", out)
	}
	if !strings.Contains(out, "Hint:") {
		t.Errorf("Format() missing hint:\n%s", out)
	}
}

func TestFormatDetailsSorted(t *testing.T) {
	DisableColors()
	defer EnableColors()

	err := FromStatus(422, "", map[string][]string{
		"password": {"too short"},
		"email":    {"required", "invalid"},
	})
	out := err.Format()
	emailAt := strings.Index(out, "email: required, invalid")
	passwordAt := strings.Index(out, "password: too short")
	if emailAt < 0 || passwordAt < 0 {
		t.Fatalf("Format() missing details:\n%s", out)
	}
	if emailAt > passwordAt {
		t.Errorf("details not sorted:\n%s", out)
	}
}

func TestFrom(t *testing.T) {
	if From(nil) != nil {
		t.Error("From(nil) should be nil")
	}
	orig := New(KindNotFound)
	if From(fmt.Errorf("x: %w", orig)) != orig {
		t.Error("From should return the wrapped *Error")
	}
	if got := From(errors.New("x")); got.Kind != KindUnknown {
		t.Errorf("Kind = %q, want unknown", got.Kind)
	}
}
