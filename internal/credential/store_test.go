package credential

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testStore(t *testing.T, sealKey string, ring Secrets) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "credential.json"), sealKey, ring)
}

func TestStore_ReadMissingReturnsNil(t *testing.T) {
	s := testStore(t, "", nil)
	if cred := s.Read(); cred != nil {
		t.Errorf("read of missing store = %+v, want nil", cred)
	}
	if !s.IsExpired(time.Now()) {
		t.Error("IsExpired = false with no credential")
	}
}

func TestStore_WriteReadRoundTrip(t *testing.T) {
	s := testStore(t, "seal-key", nil)

	want := DeviceCredential{
		DeviceID:     "dev-1",
		AccessToken:  "access",
		RefreshToken: "refresh-secret",
		ExpiresAt:    time.Now().Add(time.Hour).UnixMilli(),
	}
	if err := s.Write(want); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := s.Read()
	if got == nil {
		t.Fatal("read returned nil after write")
	}
	if *got != want {
		t.Errorf("read = %+v, want %+v", *got, want)
	}

	// The refresh token must not appear in the file in the clear.
	raw, err := os.ReadFile(s.path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if strings.Contains(string(raw), "refresh-secret") {
		t.Error("refresh token stored unsealed on disk")
	}
}

func TestStore_CorruptFileReadsAsMissing(t *testing.T) {
	s := testStore(t, "", nil)
	os.MkdirAll(filepath.Dir(s.path), 0700)
	os.WriteFile(s.path, []byte("{not json"), 0600)

	if cred := s.Read(); cred != nil {
		t.Errorf("read of corrupt store = %+v, want nil", cred)
	}
}

func TestStore_ClearPreservesSaltUnlessReset(t *testing.T) {
	s := testStore(t, "", nil)

	salt, err := s.DeviceSalt()
	if err != nil {
		t.Fatalf("device salt: %v", err)
	}
	s.Write(DeviceCredential{DeviceID: "dev-1", RefreshToken: "r"})

	if err := s.Clear(false); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if s.Read() != nil {
		t.Error("credential survived clear")
	}
	salt2, _ := s.DeviceSalt()
	if salt2 != salt {
		t.Error("clear(resetDevice=false) changed the device salt")
	}

	if err := s.Clear(true); err != nil {
		t.Fatalf("clear reset: %v", err)
	}
	salt3, _ := s.DeviceSalt()
	if salt3 == salt {
		t.Error("clear(resetDevice=true) kept the old device salt")
	}
}

type fakeRing struct {
	values map[string]string
	setErr error
}

func newFakeRing() *fakeRing { return &fakeRing{values: map[string]string{}} }

func (r *fakeRing) Set(account, value string) error {
	if r.setErr != nil {
		return r.setErr
	}
	r.values[account] = value
	return nil
}

func (r *fakeRing) Get(account string) (string, error) {
	v, ok := r.values[account]
	if !ok {
		return "", errors.New("secret not found")
	}
	return v, nil
}

func (r *fakeRing) Delete(account string) error {
	delete(r.values, account)
	return nil
}

func TestStore_KeyringBackend(t *testing.T) {
	ring := newFakeRing()
	s := testStore(t, "", ring)

	s.Write(DeviceCredential{DeviceID: "dev-1", RefreshToken: "ring-secret", ExpiresAt: 1})

	if ring.values[refreshAccount] != "ring-secret" {
		t.Error("refresh token not written to keyring")
	}
	raw, _ := os.ReadFile(s.path)
	if strings.Contains(string(raw), "ring-secret") {
		t.Error("refresh token also written to file despite keyring")
	}

	got := s.Read()
	if got == nil || got.RefreshToken != "ring-secret" {
		t.Errorf("read = %+v, want refresh token from keyring", got)
	}

	s.Clear(false)
	if _, err := ring.Get(refreshAccount); err == nil {
		t.Error("keyring secret survived clear")
	}
}

func TestStore_KeyringFailureFallsBackToFile(t *testing.T) {
	ring := newFakeRing()
	ring.setErr = errors.New("no keyring daemon")
	s := testStore(t, "seal-key", ring)

	s.Write(DeviceCredential{DeviceID: "dev-1", RefreshToken: "fallback-secret", ExpiresAt: 1})

	got := s.Read()
	if got == nil || got.RefreshToken != "fallback-secret" {
		t.Errorf("read = %+v, want file-backed refresh token", got)
	}
}
