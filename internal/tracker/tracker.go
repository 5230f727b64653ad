// Package tracker specializes the polling engine for the two job families
// the client watches: document processing and AI clustering. It merges
// partial results into client state, aggregates completions into one
// summary notification per cycle, and invalidates cluster-view caches when
// a reclustering run completes (cluster identities are not stable across
// runs).
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nextlevelbuilder/papersync/internal/api"
	"github.com/nextlevelbuilder/papersync/internal/bus"
	"github.com/nextlevelbuilder/papersync/internal/poll"
	"github.com/nextlevelbuilder/papersync/internal/store"
)

const (
	clusterViewCacheSize = 64
	announceTTL          = time.Hour
)

// JobAPI is the slice of the service API the tracker needs. Implemented by
// *api.Client.
type JobAPI interface {
	BatchStatus(ctx context.Context, kind string, ids []string) (map[string]api.JobStatus, error)
	TriggerJob(ctx context.Context, kind string, params map[string]any) (*api.JobAck, error)
}

// Options configures a tracker.
type Options struct {
	Interval     time.Duration
	MaxWallClock time.Duration
	History      *store.History // optional: terminal outcomes recorded when set
}

// Tracker owns one polling engine for one job kind.
type Tracker struct {
	kind      Kind
	api       JobAPI
	notifier  *bus.Bus
	history   *store.History
	engine    *poll.Engine
	announced *bus.DedupeCache

	mu      sync.Mutex
	handles map[string]*JobHandle
	docs    []api.Document
	views   *lru.Cache[string, api.Cluster]
}

// New creates a tracker for the given job kind.
func New(kind Kind, jobAPI JobAPI, notifier *bus.Bus, opts Options) *Tracker {
	views, _ := lru.New[string, api.Cluster](clusterViewCacheSize)

	t := &Tracker{
		kind:      kind,
		api:       jobAPI,
		notifier:  notifier,
		history:   opts.History,
		announced: bus.NewDedupeCache(announceTTL, 4096),
		handles:   make(map[string]*JobHandle),
		views:     views,
	}
	t.engine = poll.New(poll.Config{
		Interval:     opts.Interval,
		MaxWallClock: opts.MaxWallClock,
		IsTerminal:   IsTerminal,
		Fetch:        t.fetch,
	})
	t.engine.OnUpdate(t.onUpdate)
	return t
}

// Trigger asks the server to start a job of this tracker's kind and begins
// watching it. The returned handle reflects the acknowledgement only;
// completion arrives via polling.
func (t *Tracker) Trigger(ctx context.Context, params map[string]any) (*JobHandle, error) {
	ack, err := t.api.TriggerJob(ctx, string(t.kind), params)
	if err != nil {
		return nil, fmt.Errorf("trigger %s job: %w", t.kind, err)
	}

	handle := JobHandle{
		ID:        ack.JobID,
		Kind:      t.kind,
		Status:    ack.Status,
		StartedAt: time.Now().UnixMilli(),
	}
	if handle.Status == "" {
		handle.Status = StatusQueued
	}
	t.Watch(handle)
	return &handle, nil
}

// Watch registers an acknowledged job and adds it to the polling set.
// Already-terminal handles are recorded but not polled.
func (t *Tracker) Watch(handle JobHandle) {
	t.mu.Lock()
	if existing, ok := t.handles[handle.ID]; ok && IsTerminal(existing.Status) {
		t.mu.Unlock()
		return
	}
	h := handle
	t.handles[handle.ID] = &h
	t.mu.Unlock()

	if !IsTerminal(handle.Status) {
		t.engine.Track(handle.ID)
	}
}

// Handles returns a snapshot of all known job handles.
func (t *Tracker) Handles() []JobHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]JobHandle, 0, len(t.handles))
	for _, h := range t.handles {
		out = append(out, *h)
	}
	return out
}

// Documents returns the tracker's current merged document list.
func (t *Tracker) Documents() []api.Document {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]api.Document, len(t.docs))
	copy(out, t.docs)
	return out
}

// SeedDocuments replaces the baseline document list (e.g. from an initial
// ListDocuments call) that poll results are merged into.
func (t *Tracker) SeedDocuments(docs []api.Document) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.docs = make([]api.Document, len(docs))
	copy(t.docs, docs)
}

// ClusterView returns the cached view for a cluster id, if still valid.
func (t *Tracker) ClusterView(id string) (api.Cluster, bool) {
	return t.views.Get(id)
}

// CacheClusterView stores a cluster view keyed by its cluster id.
func (t *Tracker) CacheClusterView(c api.Cluster) {
	t.views.Add(c.ID, c)
}

// Retune applies new polling settings to subsequent cycles, e.g. after a
// config reload.
func (t *Tracker) Retune(interval, maxWallClock time.Duration) {
	t.engine.Retune(interval, maxWallClock)
}

// Watching reports whether the underlying engine is actively polling.
func (t *Tracker) Watching() bool {
	return t.engine.Running()
}

// Stop tears down the polling engine. Safe to call at any time; a poll
// response in flight at teardown mutates nothing.
func (t *Tracker) Stop() {
	t.engine.Stop()
}

// fetch is the engine's batched status call. Entity payloads riding along
// with statuses are merged into client state here; the engine only sees
// the status strings.
func (t *Tracker) fetch(ctx context.Context, ids []string) (map[string]string, error) {
	statuses, err := t.api.BatchStatus(ctx, string(t.kind), ids)
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	var docUpdates []api.Document

	t.mu.Lock()
	for id, js := range statuses {
		if h, ok := t.handles[id]; ok {
			h.Status = js.Status
			h.LastPolledAt = now
		}
		if js.Document != nil {
			docUpdates = append(docUpdates, *js.Document)
		}
		if js.Cluster != nil {
			t.views.Add(js.Cluster.ID, *js.Cluster)
		}
	}
	if len(docUpdates) > 0 {
		t.docs = MergeDocuments(t.docs, docUpdates)
	}
	t.mu.Unlock()

	out := make(map[string]string, len(statuses))
	for id, js := range statuses {
		out[id] = js.Status
	}
	return out, nil
}

// onUpdate aggregates a poll cycle's outcome into a single summary
// notification and records terminal outcomes into history.
func (t *Tracker) onUpdate(u poll.Update) {
	now := time.Now().UnixMilli()
	summary := Summary{Kind: t.kind, InFlight: len(u.StillInFlight)}
	reclustered := false

	t.mu.Lock()
	for id, status := range u.JustCompleted {
		// Keyed by id+status so a job re-watched after a timeout can still
		// announce its real outcome.
		if t.announced.Seen(id + ":" + status) {
			continue
		}
		switch status {
		case StatusCompleted:
			summary.Completed++
		case StatusFailed:
			summary.Failed++
		case StatusCancelled:
			summary.Cancelled++
		}
		if t.kind == KindClustering && status == StatusCompleted {
			reclustered = true
		}
		t.recordLocked(id, status, now)
	}
	for _, id := range u.TimedOut {
		if t.announced.Seen(id + ":" + StatusTimeout) {
			continue
		}
		summary.TimedOut++
		if h, ok := t.handles[id]; ok {
			h.Status = StatusTimeout
		}
		t.recordLocked(id, StatusTimeout, now)
	}

	if reclustered {
		// A completed reclustering run invalidates every cached view:
		// cluster ids from before the run no longer name anything.
		t.views.Purge()
	}
	t.mu.Unlock()

	if summary.Completed+summary.Failed+summary.Cancelled+summary.TimedOut == 0 {
		return
	}

	slog.Info("job batch settled",
		"kind", t.kind,
		"completed", summary.Completed,
		"failed", summary.Failed,
		"cancelled", summary.Cancelled,
		"timed_out", summary.TimedOut,
		"in_flight", summary.InFlight,
	)

	if t.notifier != nil {
		t.notifier.Publish(bus.TopicJobsUpdated, summary)
	}
}

// recordLocked persists a terminal outcome. Must be called with t.mu held.
func (t *Tracker) recordLocked(id, status string, finishedAt int64) {
	if h, ok := t.handles[id]; ok {
		h.Status = status
	}
	if t.history == nil {
		return
	}
	startedAt := int64(0)
	if h, ok := t.handles[id]; ok {
		startedAt = h.StartedAt
	}
	if err := t.history.Record(store.Entry{
		JobID:      id,
		Kind:       string(t.kind),
		Status:     status,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}); err != nil {
		slog.Warn("job history write failed", "job", id, "error", err)
	}
}
