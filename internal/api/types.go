package api

// PairRequest is the body of the pairing-token exchange call. The
// fingerprint and device name are deterministic for a given device so
// repeated exchange attempts are idempotent server-side.
type PairRequest struct {
	PairingToken      string `json:"pairing_token"`
	DeviceName        string `json:"device_name"`
	DeviceFingerprint string `json:"device_fingerprint"`
}

// PairResponse is the long-lived device credential minted for a successful
// exchange.
type PairResponse struct {
	DeviceID     string `json:"device_id"`
	DeviceToken  string `json:"device_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"` // unix millis
}

// RefreshResponse carries a fresh access token for an existing device.
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"` // unix millis
}

// JobAck acknowledges that the server accepted a job trigger. Completion is
// observed via polling, never in this response.
type JobAck struct {
	JobID  string `json:"job_id"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
}

// Document is the client's view of one managed document.
type Document struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ClusterID string `json:"cluster_id,omitempty"`
	Status    string `json:"status"`
	UpdatedAt int64  `json:"updated_at"` // unix millis
}

// Cluster is one AI-derived document grouping. Cluster identities are not
// stable across reclustering runs.
type Cluster struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	DocumentIDs []string `json:"document_ids"`
}

// JobStatus is one entry of a batch status response. The entity payloads
// are partial results the tracker merges into client state.
type JobStatus struct {
	Status   string    `json:"status"`
	Error    string    `json:"error,omitempty"`
	Document *Document `json:"document,omitempty"`
	Cluster  *Cluster  `json:"cluster,omitempty"`
}
