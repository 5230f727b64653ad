// Package pairing implements the device pairing lifecycle for the
// companion client.
//
// Pairing exchanges a short-lived, single-use pairing token (scanned from a
// QR code shown by the main app) for a long-lived device credential:
//
//	Unpaired → Pairing → Paired          (successful exchange)
//	Paired   → Unpaired                  (unpair, or irrecoverable refresh failure)
//
// The exchange request carries a fingerprint that is a deterministic
// function of the device, so repeated pairing attempts from the same
// hardware are idempotent server-side and can never mint two device
// identities for one physical device.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/papersync/internal/api"
	"github.com/nextlevelbuilder/papersync/internal/bus"
	"github.com/nextlevelbuilder/papersync/internal/credential"
)

// State is the coordinator's position in the pairing lifecycle.
type State string

const (
	StateUnpaired State = "unpaired"
	StatePairing  State = "pairing"
	StatePaired   State = "paired"
)

var (
	// ErrAlreadyPaired means a credential already exists; unpair first.
	ErrAlreadyPaired = errors.New("device already paired")
	// ErrPairingInProgress means another Pair call is mid-exchange.
	ErrPairingInProgress = errors.New("pairing already in progress")
)

// ExchangeAPI is the slice of the service API the coordinator needs.
// Implemented by *api.Client.
type ExchangeAPI interface {
	PairDevice(ctx context.Context, req api.PairRequest) (*api.PairResponse, error)
	RevokeDevice(ctx context.Context, deviceID string, permanent bool) error
}

// Coordinator drives pairing and unpairing. Paired/Unpaired is derived from
// the credential store rather than mirrored, so an external credential
// clear (irrecoverable refresh failure) is observed without extra wiring.
type Coordinator struct {
	api        ExchangeAPI
	store      *credential.Store
	notifier   *bus.Bus
	deviceName string

	mu      sync.Mutex
	pairing bool
}

// NewCoordinator creates a pairing coordinator. deviceName is shown in the
// main app's device list; it is normalized once and reused verbatim so
// repeated exchanges stay idempotent.
func NewCoordinator(exchangeAPI ExchangeAPI, store *credential.Store, notifier *bus.Bus, deviceName string) *Coordinator {
	return &Coordinator{
		api:        exchangeAPI,
		store:      store,
		notifier:   notifier,
		deviceName: deviceName,
	}
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pairing {
		return StatePairing
	}
	if c.store.Read() != nil {
		return StatePaired
	}
	return StateUnpaired
}

// Pair exchanges the pairing token for a device credential.
//
// On any failure the state remains Unpaired and the error is surfaced to
// the caller; pairing is a deliberate user action and is never silently
// retried (the token is single-use server-side anyway).
func (c *Coordinator) Pair(ctx context.Context, pairingToken string) error {
	c.mu.Lock()
	if c.pairing {
		c.mu.Unlock()
		return ErrPairingInProgress
	}
	if c.store.Read() != nil {
		c.mu.Unlock()
		return ErrAlreadyPaired
	}
	c.pairing = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.pairing = false
		c.mu.Unlock()
	}()

	salt, err := c.store.DeviceSalt()
	if err != nil {
		return fmt.Errorf("device salt: %w", err)
	}

	req := api.PairRequest{
		PairingToken:      pairingToken,
		DeviceName:        c.deviceName,
		DeviceFingerprint: Fingerprint(salt),
	}

	resp, err := c.api.PairDevice(ctx, req)
	if err != nil {
		slog.Warn("pairing exchange failed", "error", err)
		return fmt.Errorf("pair device: %w", err)
	}

	cred := credential.DeviceCredential{
		DeviceID:     resp.DeviceID,
		AccessToken:  resp.DeviceToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    resp.ExpiresAt,
	}
	if err := c.store.Write(cred); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}

	slog.Info("device paired", "device", resp.DeviceID, "name", c.deviceName)
	c.publishChanged()
	return nil
}

// Unpair revokes the device server-side (best-effort) and clears the local
// credential. Local state never stays paired when the user believes they
// logged out, so a failed revoke is logged and cleanup proceeds anyway.
//
// permanent=true also resets the device fingerprint: the next pairing is
// treated as a brand-new device. permanent=false keeps it so re-pairing the
// same hardware is recognized server-side.
func (c *Coordinator) Unpair(ctx context.Context, permanent bool) error {
	if cred := c.store.Read(); cred != nil {
		if err := c.api.RevokeDevice(ctx, cred.DeviceID, permanent); err != nil {
			slog.Warn("remote revoke failed, proceeding with local unpair", "device", cred.DeviceID, "error", err)
		}
	}

	if err := c.store.Clear(permanent); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}

	slog.Info("device unpaired", "permanent", permanent)
	c.publishChanged()
	return nil
}

// WaitPaired blocks until the device becomes paired, the timeout elapses,
// or ctx is cancelled. After the timeout it re-checks the store exactly
// once as a fallback, so a missed notification (e.g. the pairing surface
// was closed) cannot leave the caller waiting forever.
func (c *Coordinator) WaitPaired(ctx context.Context, timeout time.Duration) bool {
	done := make(chan struct{}, 1)
	id := c.notifier.Subscribe(bus.TopicPairingChanged, func(bus.Event) {
		select {
		case done <- struct{}{}:
		default:
		}
	})
	defer c.notifier.Unsubscribe(bus.TopicPairingChanged, id)

	if c.State() == StatePaired {
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return c.State() == StatePaired
		case <-done:
			if c.State() == StatePaired {
				return true
			}
		}
	}
}

func (c *Coordinator) publishChanged() {
	if c.notifier == nil {
		return
	}
	c.notifier.Publish(bus.TopicPairingChanged, nil)
	c.notifier.Publish(bus.TopicAuthChanged, nil)
}
