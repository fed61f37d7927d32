package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	b := NewFileBackend(path)

	if err := b.Set(ctx, map[string]string{KeyAccessToken: "A", KeyRefreshToken: "R"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}

	other := NewFileBackend(path)
	values, err := other.Load(ctx, Keys...)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if values[KeyAccessToken] != "A" || values[KeyRefreshToken] != "R" {
		t.Errorf("Load() = %v", values)
	}
	if _, ok := values[KeyUser]; ok {
		t.Error("Load() returned user key that was never set")
	}
}

func TestFileBackendDeleteAllRemovesFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")
	b := NewFileBackend(path)

	_ = b.Set(ctx, map[string]string{KeyAccessToken: "A"})
	if err := b.Delete(ctx, Keys...); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Stat() error = %v, want not exist", err)
	}
}

func TestFileBackendMissingFile(t *testing.T) {
	b := NewFileBackend(filepath.Join(t.TempDir(), "none.json"))
	values, err := b.Load(context.Background(), Keys...)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(values) != 0 {
		t.Errorf("Load() = %v, want empty", values)
	}
}

func TestFileBackendCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := NewFileBackend(path).Load(context.Background(), Keys...)
	if !errors.Is(err, ErrCorruptSession) {
		t.Errorf("Load() error = %v, want ErrCorruptSession", err)
	}
}

func TestOpenCorruptFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := Open(ctx, NewFileBackend(path))
	if !errors.Is(err, ErrCorruptSession) {
		t.Fatalf("Open() error = %v, want ErrCorruptSession", err)
	}
	if s == nil {
		t.Fatal("Open() store = nil, want usable store")
	}
	if s.IsAuthenticated() {
		t.Error("IsAuthenticated() = true for corrupt file")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("corrupt file still present: %v", err)
	}

	if err := s.Save(ctx, Session{AccessToken: "A", RefreshToken: "R"}); err != nil {
		t.Fatalf("Save() after corrupt open: %v", err)
	}
	reopened, err := Open(ctx, NewFileBackend(path))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if tok, _ := reopened.AccessToken(); tok != "A" {
		t.Errorf("AccessToken() = %q, want A", tok)
	}
}

func TestFileBackendClosed(t *testing.T) {
	b := NewFileBackend(filepath.Join(t.TempDir(), "session.json"))
	_ = b.Close()

	err := b.Set(context.Background(), map[string]string{KeyAccessToken: "A"})
	if _, ok := err.(ErrBackendClosed); !ok {
		t.Errorf("Set() after Close error = %v, want ErrBackendClosed", err)
	}
}
