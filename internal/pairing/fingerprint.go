package pairing

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"runtime"
	"strings"
)

// Fingerprint derives the device fingerprint from stable device facts plus
// the per-installation salt held by the credential store. Same salt, same
// machine → same fingerprint, which is what makes repeated pairing
// exchanges idempotent. Resetting the salt (permanent unpair) yields a new
// identity.
func Fingerprint(salt string) string {
	hostname, _ := os.Hostname()
	facts := strings.Join([]string{hostname, runtime.GOOS, runtime.GOARCH, salt}, "|")
	sum := sha256.Sum256([]byte(facts))
	return hex.EncodeToString(sum[:16])
}
