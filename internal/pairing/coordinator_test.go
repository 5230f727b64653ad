package pairing

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nextlevelbuilder/papersync/internal/api"
	"github.com/nextlevelbuilder/papersync/internal/bus"
	"github.com/nextlevelbuilder/papersync/internal/credential"
)

type fakeExchange struct {
	pairCalls   atomic.Int32
	revokeCalls atomic.Int32
	pairErr     error
	revokeErr   error
	lastReq     api.PairRequest
}

func (f *fakeExchange) PairDevice(ctx context.Context, req api.PairRequest) (*api.PairResponse, error) {
	f.pairCalls.Add(1)
	f.lastReq = req
	if f.pairErr != nil {
		return nil, f.pairErr
	}
	return &api.PairResponse{
		DeviceID:     "dev-1",
		DeviceToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour).UnixMilli(),
	}, nil
}

func (f *fakeExchange) RevokeDevice(ctx context.Context, deviceID string, permanent bool) error {
	f.revokeCalls.Add(1)
	return f.revokeErr
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeExchange, *credential.Store, *bus.Bus) {
	t.Helper()
	store := credential.NewStore(filepath.Join(t.TempDir(), "credential.json"), "", nil)
	fake := &fakeExchange{}
	b := bus.New()
	return NewCoordinator(fake, store, b, "test-device"), fake, store, b
}

func TestCoordinator_PairSuccess(t *testing.T) {
	c, fake, store, b := newTestCoordinator(t)

	var pairingChanged atomic.Int32
	b.Subscribe(bus.TopicPairingChanged, func(bus.Event) { pairingChanged.Add(1) })

	if got := c.State(); got != StateUnpaired {
		t.Fatalf("initial state = %q, want unpaired", got)
	}

	if err := c.Pair(context.Background(), "token-1"); err != nil {
		t.Fatalf("pair: %v", err)
	}

	if got := c.State(); got != StatePaired {
		t.Errorf("state = %q, want paired", got)
	}
	cred := store.Read()
	if cred == nil || cred.DeviceID != "dev-1" {
		t.Errorf("stored credential = %+v, want dev-1", cred)
	}
	if pairingChanged.Load() == 0 {
		t.Error("no pairing.changed notification")
	}
	if fake.lastReq.DeviceFingerprint == "" || fake.lastReq.DeviceName != "test-device" {
		t.Errorf("exchange request missing fingerprint or name: %+v", fake.lastReq)
	}
}

func TestCoordinator_PairFailureStaysUnpaired(t *testing.T) {
	c, fake, store, _ := newTestCoordinator(t)
	fake.pairErr = &api.Error{Code: api.ErrPairingInvalid, Message: "token used", HTTPStatus: 400}

	err := c.Pair(context.Background(), "used-token")
	if err == nil {
		t.Fatal("expected pairing error")
	}
	if got := c.State(); got != StateUnpaired {
		t.Errorf("state = %q, want unpaired after failure", got)
	}
	if store.Read() != nil {
		t.Error("credential written despite failed exchange")
	}
	// No silent retry: exactly one exchange attempt.
	if n := fake.pairCalls.Load(); n != 1 {
		t.Errorf("exchange calls = %d, want 1", n)
	}
}

func TestCoordinator_PairWhilePaired(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)

	if err := c.Pair(context.Background(), "token-1"); err != nil {
		t.Fatalf("pair: %v", err)
	}
	if err := c.Pair(context.Background(), "token-1"); !errors.Is(err, ErrAlreadyPaired) {
		t.Errorf("second pair err = %v, want ErrAlreadyPaired", err)
	}
}

func TestCoordinator_FingerprintStableAcrossAttempts(t *testing.T) {
	c, fake, _, _ := newTestCoordinator(t)
	fake.pairErr = errors.New("network down")

	c.Pair(context.Background(), "token-1")
	first := fake.lastReq.DeviceFingerprint

	c.Pair(context.Background(), "token-1")
	if fake.lastReq.DeviceFingerprint != first {
		t.Error("fingerprint regenerated between attempts; pairing would not be idempotent")
	}
}

func TestCoordinator_UnpairBestEffortRevoke(t *testing.T) {
	c, fake, store, _ := newTestCoordinator(t)

	if err := c.Pair(context.Background(), "token-1"); err != nil {
		t.Fatalf("pair: %v", err)
	}
	fake.revokeErr = errors.New("server unreachable")

	if err := c.Unpair(context.Background(), false); err != nil {
		t.Fatalf("unpair: %v", err)
	}
	if fake.revokeCalls.Load() != 1 {
		t.Error("revoke not attempted")
	}
	if store.Read() != nil {
		t.Error("credential survived unpair with failed revoke")
	}
	if got := c.State(); got != StateUnpaired {
		t.Errorf("state = %q, want unpaired", got)
	}
}

func TestCoordinator_StateReflectsExternalClear(t *testing.T) {
	c, _, store, _ := newTestCoordinator(t)

	if err := c.Pair(context.Background(), "token-1"); err != nil {
		t.Fatalf("pair: %v", err)
	}

	// Irrecoverable refresh failure clears the store from outside.
	store.Clear(false)

	if got := c.State(); got != StateUnpaired {
		t.Errorf("state = %q, want unpaired after external clear", got)
	}
}

func TestCoordinator_WaitPaired(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)

	go func() {
		time.Sleep(20 * time.Millisecond)
		c.Pair(context.Background(), "token-1")
	}()

	if !c.WaitPaired(context.Background(), time.Second) {
		t.Error("WaitPaired = false, want true after pairing completes")
	}
}

func TestCoordinator_WaitPairedTimeout(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)

	start := time.Now()
	if c.WaitPaired(context.Background(), 30*time.Millisecond) {
		t.Error("WaitPaired = true with no pairing")
	}
	if time.Since(start) > time.Second {
		t.Error("WaitPaired did not respect the bounded wait")
	}
}
