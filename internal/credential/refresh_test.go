package credential

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nextlevelbuilder/papersync/internal/api"
	"github.com/nextlevelbuilder/papersync/internal/bus"
)

type fakeRefreshAPI struct {
	calls atomic.Int32
	gate  chan struct{} // when non-nil, Refresh blocks until closed
	err   error
	resp  api.RefreshResponse
}

func (f *fakeRefreshAPI) Refresh(ctx context.Context, refreshToken, deviceID string) (*api.RefreshResponse, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	resp := f.resp
	return &resp, nil
}

func expiredStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "credential.json"), "", nil)
	s.Write(DeviceCredential{
		DeviceID:     "dev-1",
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute).UnixMilli(),
	})
	return s
}

func TestGuard_CachedTokenNoNetwork(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "credential.json"), "", nil)
	s.Write(DeviceCredential{
		DeviceID:     "dev-1",
		AccessToken:  "fresh",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour).UnixMilli(),
	})
	fake := &fakeRefreshAPI{}
	g := NewGuard(s, fake, nil)

	tok, err := g.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok != "fresh" {
		t.Errorf("token = %q, want cached", tok)
	}
	if n := fake.calls.Load(); n != 0 {
		t.Errorf("refresh calls = %d, want 0 for valid cached token", n)
	}
}

func TestGuard_SingleFlight(t *testing.T) {
	s := expiredStore(t)
	fake := &fakeRefreshAPI{
		gate: make(chan struct{}),
		resp: api.RefreshResponse{
			AccessToken: "renewed",
			ExpiresAt:   time.Now().Add(time.Hour).UnixMilli(),
		},
	}
	g := NewGuard(s, fake, nil)

	const waiters = 10
	results := make([]string, waiters)
	errs := make([]error, waiters)

	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = g.Token(context.Background())
		}(i)
	}

	// Let the callers pile onto the in-flight refresh, then release it.
	time.Sleep(50 * time.Millisecond)
	close(fake.gate)
	wg.Wait()

	for i := 0; i < waiters; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i] != "renewed" {
			t.Errorf("caller %d token = %q, want renewed", i, results[i])
		}
	}
	if n := fake.calls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want exactly 1", n)
	}
}

func TestGuard_RejectedRefreshClearsCredential(t *testing.T) {
	s := expiredStore(t)
	fake := &fakeRefreshAPI{
		err: &api.Error{Code: api.ErrRefreshFailed, Message: "revoked", HTTPStatus: 401},
	}
	b := bus.New()
	var authChanged atomic.Int32
	b.Subscribe(bus.TopicAuthChanged, func(bus.Event) { authChanged.Add(1) })

	g := NewGuard(s, fake, b)

	if _, err := g.Token(context.Background()); !errors.Is(err, ErrNotPaired) {
		t.Fatalf("err = %v, want ErrNotPaired", err)
	}
	if s.Read() != nil {
		t.Error("credential survived rejected refresh")
	}
	if authChanged.Load() == 0 {
		t.Error("no auth.changed notification after credential clear")
	}

	// Subsequent calls fall straight through without another network call.
	if _, err := g.Token(context.Background()); !errors.Is(err, ErrNotPaired) {
		t.Fatalf("second call err = %v, want ErrNotPaired", err)
	}
	if n := fake.calls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1 (no retry of a rejected token)", n)
	}
}

func TestGuard_TransientErrorKeepsCredential(t *testing.T) {
	s := expiredStore(t)
	fake := &fakeRefreshAPI{err: errors.New("connection refused")}
	g := NewGuard(s, fake, nil)

	_, err := g.Token(context.Background())
	if err == nil || errors.Is(err, ErrNotPaired) {
		t.Fatalf("err = %v, want transient error, not ErrNotPaired", err)
	}
	if s.Read() == nil {
		t.Error("credential cleared on transient error")
	}
}
