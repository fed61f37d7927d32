package session

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

// Set STOREFRONT_TEST_VALKEY_URL (for example valkey://localhost:6379) to run
// these against a live server.
func newTestValkey(t *testing.T) *ValkeyBackend {
	t.Helper()
	uri := os.Getenv("STOREFRONT_TEST_VALKEY_URL")
	if uri == "" {
		t.Skip("STOREFRONT_TEST_VALKEY_URL not set")
	}
	client, err := DialValkey(uri)
	if err != nil {
		t.Fatalf("DialValkey: %v", err)
	}
	prefix := fmt.Sprintf("storefront:test:%d:", time.Now().UnixNano())
	b := NewValkeyBackend(client, WithPrefix(prefix), WithOwnedClient())
	t.Cleanup(func() {
		_ = b.Delete(context.Background(), Keys...)
		_ = b.Close()
	})
	return b
}

func TestValkeyBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := newTestValkey(t)

	values, err := b.Load(ctx, Keys...)
	if err != nil {
		t.Fatalf("Load() empty: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("Load() = %v, want empty", values)
	}

	if err := b.Set(ctx, map[string]string{KeyAccessToken: "A", KeyRefreshToken: "R"}); err != nil {
		t.Fatalf("Set(): %v", err)
	}
	values, err = b.Load(ctx, Keys...)
	if err != nil {
		t.Fatalf("Load(): %v", err)
	}
	if values[KeyAccessToken] != "A" || values[KeyRefreshToken] != "R" {
		t.Errorf("Load() = %v", values)
	}
	if _, ok := values[KeyUser]; ok {
		t.Errorf("Load() returned %s that was never set", KeyUser)
	}

	if err := b.Delete(ctx, KeyAccessToken); err != nil {
		t.Fatalf("Delete(): %v", err)
	}
	values, _ = b.Load(ctx, Keys...)
	if len(values) != 1 || values[KeyRefreshToken] != "R" {
		t.Errorf("Load() after Delete = %v", values)
	}
}

func TestValkeyBackendOpen(t *testing.T) {
	ctx := context.Background()
	b := newTestValkey(t)

	s, err := Open(ctx, b)
	if err != nil {
		t.Fatalf("Open(): %v", err)
	}
	if err := s.Save(ctx, Session{AccessToken: "A", RefreshToken: "R"}); err != nil {
		t.Fatalf("Save(): %v", err)
	}

	reopened, err := Open(ctx, b)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if tok, _ := reopened.AccessToken(); tok != "A" {
		t.Errorf("AccessToken() = %q, want A", tok)
	}
}
