package session

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// failingBackend wraps a MemoryBackend and fails selected operations.
type failingBackend struct {
	*MemoryBackend
	failSet    bool
	failDelete bool
	deletes    [][]string
}

func (f *failingBackend) Set(ctx context.Context, values map[string]string) error {
	if f.failSet {
		return errors.New("set failed")
	}
	return f.MemoryBackend.Set(ctx, values)
}

func (f *failingBackend) Delete(ctx context.Context, keys ...string) error {
	f.deletes = append(f.deletes, keys)
	if f.failDelete {
		return errors.New("delete failed")
	}
	return f.MemoryBackend.Delete(ctx, keys...)
}

func testUser() User {
	return User{ID: "u1", Name: "Asha", Email: "asha@example.com", Role: RoleCustomer}
}

func TestStoreSaveAndRestore(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s := NewStore(backend)

	u := testUser()
	if err := s.Save(ctx, Session{AccessToken: "A", RefreshToken: "R", User: &u}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	restored, err := Open(ctx, backend)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if tok, ok := restored.AccessToken(); !ok || tok != "A" {
		t.Errorf("AccessToken() = %q, %v, want %q, true", tok, ok, "A")
	}
	if tok, ok := restored.RefreshToken(); !ok || tok != "R" {
		t.Errorf("RefreshToken() = %q, %v, want %q, true", tok, ok, "R")
	}
	got, ok := restored.User()
	if !ok {
		t.Fatal("User() ok = false, want true")
	}
	if *got != u {
		t.Errorf("User() = %+v, want %+v", *got, u)
	}
	if !restored.IsAuthenticated() {
		t.Error("IsAuthenticated() = false, want true")
	}
}

func TestStoreSaveRequiresAccessToken(t *testing.T) {
	s := NewMemoryStore()
	err := s.Save(context.Background(), Session{RefreshToken: "R"})
	if !errors.Is(err, ErrNoAccessToken) {
		t.Errorf("Save() error = %v, want ErrNoAccessToken", err)
	}
	if s.IsAuthenticated() {
		t.Error("IsAuthenticated() = true after failed Save")
	}
}

func TestStoreSaveDropsStaleKeys(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s := NewStore(backend)
	u := testUser()

	if err := s.Save(ctx, Session{AccessToken: "A", RefreshToken: "R", User: &u}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, Session{AccessToken: "B"}); err != nil {
		t.Fatal(err)
	}

	values, _ := backend.Load(ctx, Keys...)
	if len(values) != 1 || values[KeyAccessToken] != "B" {
		t.Errorf("backend values = %v, want only accessToken=B", values)
	}
	if _, ok := s.User(); ok {
		t.Error("User() ok = true, want false")
	}
}

func TestStoreClearAuthData(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{MemoryBackend: NewMemoryBackend()}
	s := NewStore(backend)
	u := testUser()

	if err := s.Save(ctx, Session{AccessToken: "A", RefreshToken: "R", User: &u}); err != nil {
		t.Fatal(err)
	}
	backend.deletes = nil

	if err := s.ClearAuthData(ctx); err != nil {
		t.Fatalf("ClearAuthData() error = %v", err)
	}

	if len(backend.deletes) != 1 {
		t.Fatalf("backend deletes = %d, want 1", len(backend.deletes))
	}
	if len(backend.deletes[0]) != 3 {
		t.Errorf("deleted keys = %v, want all three", backend.deletes[0])
	}
	if backend.Len() != 0 {
		t.Errorf("backend Len() = %d, want 0", backend.Len())
	}
	if s.IsAuthenticated() {
		t.Error("IsAuthenticated() = true after clear")
	}
}

func TestStoreClearAuthDataBackendFailure(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{MemoryBackend: NewMemoryBackend()}
	s := NewStore(backend)

	if err := s.Save(ctx, Session{AccessToken: "A", RefreshToken: "R"}); err != nil {
		t.Fatal(err)
	}
	backend.failDelete = true

	if err := s.ClearAuthData(ctx); err == nil {
		t.Error("ClearAuthData() error = nil, want backend error")
	}

	snap := s.Snapshot()
	if snap.AccessToken != "" || snap.RefreshToken != "" || snap.User != nil {
		t.Errorf("Snapshot() = %+v, want empty session", snap)
	}
}

func TestStoreSetFailureLeavesMirror(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{MemoryBackend: NewMemoryBackend()}
	s := NewStore(backend)

	if err := s.SetAccessToken(ctx, "A"); err != nil {
		t.Fatal(err)
	}
	backend.failSet = true
	if err := s.SetAccessToken(ctx, "B"); err == nil {
		t.Fatal("SetAccessToken() error = nil, want error")
	}
	if tok, _ := s.AccessToken(); tok != "A" {
		t.Errorf("AccessToken() = %q, want %q", tok, "A")
	}
}

func TestStoreSetUserRejectsUnknownRole(t *testing.T) {
	s := NewMemoryStore()
	u := testUser()
	u.Role = RoleUnknown

	err := s.SetUser(context.Background(), u)
	var roleErr ErrUnknownRole
	if !errors.As(err, &roleErr) {
		t.Errorf("SetUser() error = %v, want ErrUnknownRole", err)
	}
}

func TestStoreUserReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	if err := s.SetUser(context.Background(), testUser()); err != nil {
		t.Fatal(err)
	}

	u, _ := s.User()
	u.Name = "changed"

	again, _ := s.User()
	if again.Name != "Asha" {
		t.Errorf("User().Name = %q, want %q", again.Name, "Asha")
	}
}

func TestOpenCorruptUser(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid json", "{not json"},
		{"unknown role", `{"id":"u1","name":"A","email":"a@b.c","role":"superuser"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			backend := NewMemoryBackend()
			_ = backend.Set(ctx, map[string]string{
				KeyAccessToken:  "A",
				KeyRefreshToken: "R",
				KeyUser:         tt.raw,
			})

			s, err := Open(ctx, backend)
			if !errors.Is(err, ErrCorruptSession) {
				t.Fatalf("Open() error = %v, want ErrCorruptSession", err)
			}
			if s == nil {
				t.Fatal("Open() store = nil, want usable store")
			}
			if s.IsAuthenticated() {
				t.Error("IsAuthenticated() = true for corrupt session")
			}
			if backend.Len() != 0 {
				t.Errorf("backend Len() = %d, want 0", backend.Len())
			}
		})
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Save(ctx, Session{AccessToken: "A", RefreshToken: "R"})
		}()
		go func() {
			defer wg.Done()
			snap := s.Snapshot()
			if snap.AccessToken != "" && snap.RefreshToken != "R" {
				t.Errorf("torn read: %+v", snap)
			}
		}()
	}
	wg.Wait()
}
