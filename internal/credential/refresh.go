package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nextlevelbuilder/papersync/internal/api"
	"github.com/nextlevelbuilder/papersync/internal/bus"
)

// ErrNotPaired means no usable credential exists: either the device was
// never paired, or its refresh token was rejected and the credential was
// cleared. Callers degrade to the pairing flow; this is not a crash path.
var ErrNotPaired = errors.New("device not paired")

// RefreshAPI is the refresh endpoint the guard calls. Implemented by
// *api.Client.
type RefreshAPI interface {
	Refresh(ctx context.Context, refreshToken, deviceID string) (*api.RefreshResponse, error)
}

// Guard turns concurrent "give me a valid token" requests into at most one
// network refresh, broadcasting the result to all waiters. The singleflight
// slot is released on every exit path, so a failed refresh never wedges
// future callers.
type Guard struct {
	store    *Store
	api      RefreshAPI
	notifier *bus.Bus
	group    singleflight.Group

	now func() time.Time // test hook
}

// NewGuard creates a refresh guard over the given store.
func NewGuard(store *Store, refreshAPI RefreshAPI, notifier *bus.Bus) *Guard {
	return &Guard{
		store:    store,
		api:      refreshAPI,
		notifier: notifier,
		now:      time.Now,
	}
}

// Token returns a valid access token, refreshing it if needed.
//
// A non-expired cached token is returned immediately with no network call.
// When a refresh is already in flight, the caller is attached to it and
// observes the same result. A rejected refresh token is fatal for the
// session: the credential is cleared and ErrNotPaired is returned, here and
// on every subsequent call until the device is paired again.
func (g *Guard) Token(ctx context.Context) (string, error) {
	cred := g.store.Read()
	if cred == nil {
		return "", ErrNotPaired
	}
	if !cred.Expired(g.now()) {
		return cred.AccessToken, nil
	}

	v, err, _ := g.group.Do("refresh", func() (any, error) {
		return g.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (g *Guard) refresh(ctx context.Context) (string, error) {
	// Re-read under the flight: a waiter queued behind a finished refresh
	// must not trigger a second one.
	cred := g.store.Read()
	if cred == nil {
		return "", ErrNotPaired
	}
	if !cred.Expired(g.now()) {
		return cred.AccessToken, nil
	}

	resp, err := g.api.Refresh(ctx, cred.RefreshToken, cred.DeviceID)
	if err != nil {
		if api.IsAuthError(err) {
			// Retrying a rejected refresh token cannot succeed. Fall back
			// to Unpaired rather than surfacing a raw auth error.
			slog.Warn("refresh token rejected, clearing credential", "device", cred.DeviceID, "error", err)
			if clearErr := g.store.Clear(false); clearErr != nil {
				slog.Error("credential clear failed", "error", clearErr)
			}
			if g.notifier != nil {
				g.notifier.Publish(bus.TopicAuthChanged, nil)
				g.notifier.Publish(bus.TopicPairingChanged, nil)
			}
			return "", ErrNotPaired
		}
		return "", fmt.Errorf("refresh: %w", err)
	}

	cred.AccessToken = resp.AccessToken
	cred.ExpiresAt = resp.ExpiresAt
	if err := g.store.Write(*cred); err != nil {
		return "", fmt.Errorf("persist refreshed credential: %w", err)
	}

	if g.notifier != nil {
		g.notifier.Publish(bus.TopicAuthChanged, nil)
	}

	slog.Debug("access token refreshed", "device", cred.DeviceID)
	return resp.AccessToken, nil
}
