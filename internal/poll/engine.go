// Package poll implements the generic status-polling engine: it repeatedly
// checks a set of remote job ids until each reaches a terminal state,
// without duplicate in-flight fetches, without notifying observers when
// nothing changed, and with a hard wall-clock cap on how long it watches.
package poll

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const (
	defaultInterval     = 3 * time.Second
	defaultMaxWallClock = 15 * time.Minute
)

// FetchFunc fetches current statuses for all given ids in one batched call.
// Ids absent from the result are treated as still in flight.
type FetchFunc func(ctx context.Context, ids []string) (map[string]string, error)

// Config configures one engine instance.
type Config struct {
	Interval     time.Duration
	MaxWallClock time.Duration
	IsTerminal   func(status string) bool
	Fetch        FetchFunc
}

// Update is delivered to observers once per poll cycle that changed state.
type Update struct {
	StillInFlight []string          // sorted tracked ids after the cycle
	JustCompleted map[string]string // id → terminal status reached this cycle
	TimedOut      []string          // ids abandoned at the wall-clock cap
}

// UpdateFunc observes engine updates. Called outside the engine lock.
type UpdateFunc func(Update)

// Engine polls a tracked set of job ids on a fixed interval.
//
// Invariants it maintains:
//   - at most one status fetch outstanding at any time (a tick that fires
//     while the previous fetch is unresolved is skipped entirely)
//   - an id that reached a terminal state never re-enters the tracked set
//   - observers are not notified when a cycle changes nothing
//   - after Stop, a late-arriving fetch response mutates no state
type Engine struct {
	cfg Config

	mu           sync.Mutex
	tracked      map[string]struct{}
	terminal     map[string]struct{}
	handlers     []UpdateFunc
	running      bool
	pollInFlight bool
	cancel       context.CancelFunc
	startedAt    time.Time
	gen          uint64 // bumped on Stop; responses from an older generation are dropped
}

// New creates an engine. Zero Interval/MaxWallClock get defaults;
// IsTerminal and Fetch are required.
func New(cfg Config) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.MaxWallClock <= 0 {
		cfg.MaxWallClock = defaultMaxWallClock
	}
	return &Engine{
		cfg:      cfg,
		tracked:  make(map[string]struct{}),
		terminal: make(map[string]struct{}),
	}
}

// OnUpdate registers an observer for poll-cycle updates.
func (e *Engine) OnUpdate(fn UpdateFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, fn)
}

// Track adds an id to the tracked set and starts the timer if it is not
// running. Ids already known to be terminal are ignored.
func (e *Engine) Track(id string) {
	e.mu.Lock()
	if _, done := e.terminal[id]; done {
		e.mu.Unlock()
		return
	}
	e.tracked[id] = struct{}{}
	start := !e.running
	e.mu.Unlock()

	if start {
		e.Start()
	}
}

// Tracked returns the current tracked ids, sorted.
func (e *Engine) Tracked() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return sortedIDs(e.tracked)
}

// Running reports whether the poll timer is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Start begins the repeating poll timer. Idempotent.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.running = true
	e.startedAt = time.Now()

	go e.loop(ctx)
}

// Retune applies new timing to subsequent poll cycles. A running timer
// picks the interval up after its next tick; zero values leave the
// current setting in place.
func (e *Engine) Retune(interval, maxWallClock time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if interval > 0 {
		e.cfg.Interval = interval
	}
	if maxWallClock > 0 {
		e.cfg.MaxWallClock = maxWallClock
	}
}

func (e *Engine) interval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Interval
}

// Stop cancels the timer and drops the in-flight lock, so a response
// arriving after Stop cannot mutate state. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

// stopLocked must be called with e.mu held.
func (e *Engine) stopLocked() {
	if !e.running {
		return
	}
	e.cancel()
	e.running = false
	e.pollInFlight = false
	e.gen++
}

func (e *Engine) loop(ctx context.Context) {
	interval := e.interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if cur := e.interval(); cur != interval {
				interval = cur
				ticker.Reset(interval)
			}
			// The tick runs off the loop goroutine so a slow fetch never
			// delays cancellation; the in-flight lock prevents overlap.
			go e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	e.mu.Lock()
	if !e.running || e.pollInFlight || len(e.tracked) == 0 {
		e.mu.Unlock()
		return
	}

	if time.Since(e.startedAt) > e.cfg.MaxWallClock {
		e.timeoutLocked()
		return
	}

	e.pollInFlight = true
	gen := e.gen
	ids := sortedIDs(e.tracked)
	e.mu.Unlock()

	statuses, err := e.cfg.Fetch(ctx, ids)

	e.mu.Lock()
	if gen != e.gen {
		// Engine was stopped (or restarted) while this fetch was in the
		// air. Discard the response entirely.
		e.mu.Unlock()
		return
	}
	e.pollInFlight = false

	if err != nil {
		// Transient: keep the tracked set and retry on the next tick,
		// bounded by the wall-clock cap above.
		e.mu.Unlock()
		slog.Warn("status fetch failed, retrying next tick", "jobs", len(ids), "error", err)
		return
	}

	// Only ids that went terminal this cycle leave the set. Ids tracked
	// while the fetch was in the air are already in e.tracked and must
	// survive untouched, so the set is mutated in place, never replaced
	// from the pre-fetch snapshot.
	justCompleted := make(map[string]string)
	for _, id := range ids {
		status, ok := statuses[id]
		if ok && e.cfg.IsTerminal(status) {
			justCompleted[id] = status
			e.terminal[id] = struct{}{}
			delete(e.tracked, id)
		}
	}

	// A cycle that completes nothing changes nothing; observers see no
	// churn from no-op cycles.
	changed := len(justCompleted) > 0
	if len(e.tracked) == 0 {
		e.stopLocked()
	}
	handlers := e.handlersLocked()
	still := sortedIDs(e.tracked)
	e.mu.Unlock()

	if changed {
		notify(handlers, Update{StillInFlight: still, JustCompleted: justCompleted})
	}
}

// timeoutLocked abandons all tracked ids at the wall-clock cap. They are
// reported as timed out: the jobs may still finish server-side, the client
// just stops watching. Abandoned ids are not marked terminal, so a caller
// may track them again and start a fresh watch window. Must be called with
// e.mu held; releases it.
func (e *Engine) timeoutLocked() {
	timedOut := sortedIDs(e.tracked)
	e.tracked = make(map[string]struct{})
	e.stopLocked()
	handlers := e.handlersLocked()
	e.mu.Unlock()

	slog.Warn("polling wall clock exceeded, stopped watching", "jobs", len(timedOut))
	notify(handlers, Update{TimedOut: timedOut})
}

// handlersLocked snapshots observers. Must be called with e.mu held.
func (e *Engine) handlersLocked() []UpdateFunc {
	out := make([]UpdateFunc, len(e.handlers))
	copy(out, e.handlers)
	return out
}

func notify(handlers []UpdateFunc, u Update) {
	for _, h := range handlers {
		h(u)
	}
}

func sortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

