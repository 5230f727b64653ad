package credential

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nextlevelbuilder/papersync/internal/crypto"
)

// refreshAccount is the keyring account name for the refresh token.
const refreshAccount = "refresh-token"

// storedCredential is the on-disk shape. The refresh token is either held
// in the OS keyring (InKeyring) or sealed into the file.
type storedCredential struct {
	DeviceID     string `json:"device_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	InKeyring    bool   `json:"refresh_in_keyring,omitempty"`
	ExpiresAt    int64  `json:"expires_at"`
}

// fileState is everything the store persists. DeviceSalt survives normal
// unpair so a re-pair of the same hardware presents the same fingerprint.
type fileState struct {
	Credential *storedCredential `json:"credential,omitempty"`
	DeviceSalt string            `json:"device_salt,omitempty"`
}

// Store is the single source of truth for the device credential. All
// operations are local and synchronous; no network calls. Reads of a
// missing or corrupt record return nil so "am I authenticated" is always
// a total check.
type Store struct {
	path    string
	sealKey string
	ring    Secrets // nil disables the keyring backend

	mu sync.Mutex
}

// NewStore creates a credential store backed by the JSON file at path.
// sealKey, when non-empty, seals the refresh token at rest; ring, when
// non-nil, prefers the OS keyring over the file for the refresh token.
func NewStore(path, sealKey string, ring Secrets) *Store {
	return &Store{path: path, sealKey: sealKey, ring: ring}
}

// Read returns the stored credential, or nil when none exists or the
// record cannot be decoded.
func (s *Store) Read() *DeviceCredential {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.load()
	sc := state.Credential
	if sc == nil {
		return nil
	}

	refresh := sc.RefreshToken
	if sc.InKeyring {
		if s.ring == nil {
			slog.Warn("credential references keyring but no keyring backend configured")
			return nil
		}
		var err error
		refresh, err = s.ring.Get(refreshAccount)
		if err != nil {
			slog.Warn("refresh token missing from keyring", "error", err)
			return nil
		}
	} else {
		var err error
		refresh, err = crypto.Open(refresh, s.sealKey)
		if err != nil {
			slog.Warn("refresh token unreadable, treating credential as missing", "error", err)
			return nil
		}
	}

	return &DeviceCredential{
		DeviceID:     sc.DeviceID,
		AccessToken:  sc.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    sc.ExpiresAt,
	}
}

// Write persists the credential, replacing any previous one.
func (s *Store) Write(cred DeviceCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.load()
	sc := &storedCredential{
		DeviceID:    cred.DeviceID,
		AccessToken: cred.AccessToken,
		ExpiresAt:   cred.ExpiresAt,
	}

	stored := false
	if s.ring != nil {
		if err := s.ring.Set(refreshAccount, cred.RefreshToken); err != nil {
			slog.Warn("keyring unavailable, falling back to file store", "error", err)
		} else {
			sc.InKeyring = true
			stored = true
		}
	}
	if !stored {
		sealed, err := crypto.Seal(cred.RefreshToken, s.sealKey)
		if err != nil {
			return err
		}
		sc.RefreshToken = sealed
	}

	state.Credential = sc
	return s.save(state)
}

// Clear removes the credential. resetDevice additionally discards the
// device salt, so the next pairing presents a brand-new fingerprint.
func (s *Store) Clear(resetDevice bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.load()
	if state.Credential != nil && state.Credential.InKeyring && s.ring != nil {
		if err := s.ring.Delete(refreshAccount); err != nil {
			slog.Warn("keyring delete failed", "error", err)
		}
	}
	state.Credential = nil
	if resetDevice {
		state.DeviceSalt = ""
	}
	return s.save(state)
}

// IsExpired reports whether the stored access token is expired at now.
// True when no credential is stored.
func (s *Store) IsExpired(now time.Time) bool {
	return s.Read().Expired(now)
}

// DeviceSalt returns the stable per-installation salt used to derive the
// device fingerprint, creating and persisting one on first use.
func (s *Store) DeviceSalt() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.load()
	if state.DeviceSalt != "" {
		return state.DeviceSalt, nil
	}

	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	state.DeviceSalt = hex.EncodeToString(raw)
	if err := s.save(state); err != nil {
		return "", err
	}
	return state.DeviceSalt, nil
}

// load reads the file state. Must be called with s.mu held.
func (s *Store) load() fileState {
	var state fileState
	data, err := os.ReadFile(s.path)
	if err != nil {
		return state // file doesn't exist yet
	}
	if err := json.Unmarshal(data, &state); err != nil {
		slog.Warn("credential store corrupt, starting fresh", "path", s.path, "error", err)
		return fileState{}
	}
	return state
}

// save writes the file state. Must be called with s.mu held.
func (s *Store) save(state fileState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0600)
}
