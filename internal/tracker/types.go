package tracker

// Kind selects which job family a tracker watches.
type Kind string

const (
	KindDocumentProcessing Kind = "document_processing"
	KindClustering         Kind = "clustering"
)

// Job statuses reported by the server. In-flight statuses keep the job in
// the polling set; terminal ones remove it permanently.
const (
	StatusQueued     = "queued"
	StatusExtracting = "extracting"
	StatusAnalyzing  = "analyzing"
	StatusRunning    = "running"

	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"

	// StatusTimeout is client-side only: the engine stopped watching at its
	// wall-clock cap. The job may still finish server-side. Distinct from
	// StatusFailed on purpose.
	StatusTimeout = "timeout"
)

// IsTerminal reports whether status ends a job's polling lifecycle.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// JobHandle is the client's view of one tracked remote job.
type JobHandle struct {
	ID           string `json:"id"`
	Kind         Kind   `json:"kind"`
	Status       string `json:"status"`
	StartedAt    int64  `json:"started_at"`     // unix millis
	LastPolledAt int64  `json:"last_polled_at"` // unix millis
}

// Summary aggregates one poll cycle's completions into a single
// notification instead of one per job.
type Summary struct {
	Kind      Kind `json:"kind"`
	Completed int  `json:"completed"`
	Failed    int  `json:"failed"`
	Cancelled int  `json:"cancelled"`
	TimedOut  int  `json:"timed_out"`
	InFlight  int  `json:"in_flight"`
}
