package pairing

import (
	"encoding/json"
	"errors"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// qrVersion is the payload version this client understands.
const qrVersion = 1

// QRPayload is the JSON carried in a pairing QR code: the single-use token
// plus the server it belongs to.
type QRPayload struct {
	Version      int    `json:"v"`
	PairingToken string `json:"t"`
	ServerURL    string `json:"u,omitempty"`
}

var errEmptyPayload = errors.New("empty pairing payload")

// ParseQRPayload decodes a scanned QR payload. Bare tokens (manual entry,
// older QR codes) are accepted as-is with no server URL.
func ParseQRPayload(raw string) (*QRPayload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errEmptyPayload
	}

	if strings.HasPrefix(raw, "{") {
		var p QRPayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, errors.New("malformed pairing payload")
		}
		if p.PairingToken == "" {
			return nil, errors.New("pairing payload has no token")
		}
		if p.Version > qrVersion {
			return nil, errors.New("pairing payload from a newer client version")
		}
		return &p, nil
	}

	return &QRPayload{Version: qrVersion, PairingToken: raw}, nil
}

// RenderQR encodes the payload as a terminal-printable QR code, for showing
// a pairing token to another device when no camera flow is available.
func RenderQR(p QRPayload) (string, error) {
	p.Version = qrVersion
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	code, err := qrcode.New(string(data), qrcode.Medium)
	if err != nil {
		return "", err
	}
	return code.ToSmallString(false), nil
}
