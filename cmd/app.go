package cmd

import (
	"fmt"
	"os"

	"github.com/nextlevelbuilder/papersync/internal/api"
	"github.com/nextlevelbuilder/papersync/internal/bus"
	"github.com/nextlevelbuilder/papersync/internal/config"
	"github.com/nextlevelbuilder/papersync/internal/credential"
	"github.com/nextlevelbuilder/papersync/internal/pairing"
	"github.com/nextlevelbuilder/papersync/internal/store"
	"github.com/nextlevelbuilder/papersync/internal/tracker"
)

// app wires the client components together for one CLI invocation.
type app struct {
	cfg         *config.Config
	bus         *bus.Bus
	store       *credential.Store
	guard       *credential.Guard
	client      *api.Client
	coordinator *pairing.Coordinator
	history     *store.History
}

// newApp builds the component graph. serverURL may be empty when the call
// only touches local state (e.g. status of an unpaired device).
func newApp(cfg *config.Config) *app {
	b := bus.New()

	var ring credential.Secrets
	if cfg.UseKeyring {
		ring = credential.SystemKeyring()
	}
	credStore := credential.NewStore(cfg.CredentialPath(), cfg.SealKey, ring)

	client := api.New(cfg.ServerURL, cfg.HTTPTimeout())
	guard := credential.NewGuard(credStore, client, b)
	client.SetTokenSource(guard)

	coordinator := pairing.NewCoordinator(client, credStore, b, cfg.DeviceName)

	return &app{
		cfg:         cfg,
		bus:         b,
		store:       credStore,
		guard:       guard,
		client:      client,
		coordinator: coordinator,
	}
}

// openHistory lazily opens the job history database.
func (a *app) openHistory() *store.History {
	if a.history != nil {
		return a.history
	}
	if err := os.MkdirAll(a.cfg.DataDir, 0700); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating data dir: %v\n", err)
		os.Exit(1)
	}
	h, err := store.OpenHistory(a.cfg.HistoryPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening job history: %v\n", err)
		os.Exit(1)
	}
	a.history = h
	return h
}

// newTracker builds a tracker for the given job kind, backed by history.
func (a *app) newTracker(kind tracker.Kind) *tracker.Tracker {
	return tracker.New(kind, a.client, a.bus, tracker.Options{
		Interval:     a.cfg.PollInterval(),
		MaxWallClock: a.cfg.MaxWallClock(),
		History:      a.openHistory(),
	})
}

// requireServer exits when no server URL is configured.
func (a *app) requireServer() {
	if a.cfg.ServerURL == "" {
		fmt.Fprintln(os.Stderr, "No server_url configured. Set it in ~/.papersync/config.yaml.")
		os.Exit(1)
	}
}
