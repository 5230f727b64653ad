// Package credential owns the device credential lifecycle: durable storage
// of the access/refresh token pair and the single-flight refresh guard that
// keeps the access token valid. All credential mutations in the client go
// through this package or the pairing coordinator, never through callers.
package credential

import "time"

// expirySkew treats tokens expiring within this window as already expired,
// so a request started now cannot land server-side with a stale token.
const expirySkew = 30 * time.Second

// DeviceCredential is the long-lived credential identifying a paired
// companion device. Exactly one active credential exists per installation.
type DeviceCredential struct {
	DeviceID     string `json:"device_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"` // unix millis, access token expiry
}

// Expired reports whether the access token is expired (or about to be) at
// the given time. A nil credential is always expired.
func (c *DeviceCredential) Expired(now time.Time) bool {
	if c == nil {
		return true
	}
	return now.Add(expirySkew).UnixMilli() >= c.ExpiresAt
}
