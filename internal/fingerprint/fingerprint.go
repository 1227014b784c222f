// Package fingerprint derives and validates anonymous device fingerprints.
//
// A fingerprint is the first Length characters of the lowercase hex SHA-256
// digest of a stable installation identifier concatenated with a build-time
// salt. Client and server both validate against the same format.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// Length is the canonical fingerprint length in hex characters.
const Length = 16

var (
	ErrMalformed     = errors.New("malformed device fingerprint")
	ErrUnknownDevice = errors.New("stable installation id is empty")
)

var pattern = regexp.MustCompile(`^[a-f0-9]{16}$`)

// DeriveFull returns the full 64-character digest.
func DeriveFull(stableInstallID, salt string) string {
	sum := sha256.Sum256([]byte(stableInstallID + salt))
	return hex.EncodeToString(sum[:])
}

// Derive returns the network fingerprint for an installation.
func Derive(stableInstallID, salt string) string {
	return DeriveFull(stableInstallID, salt)[:Length]
}

// ForInstall is Derive for callers: an empty installation id is refused
// instead of being fingerprinted.
func ForInstall(stableInstallID, salt string) (string, error) {
	if strings.TrimSpace(stableInstallID) == "" {
		return "", ErrUnknownDevice
	}
	return Derive(stableInstallID, salt), nil
}

func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Validate checks fp against the canonical format. No normalization is done.
func Validate(fp string) error {
	if !pattern.MatchString(fp) {
		return ErrMalformed
	}
	return nil
}

// ActivationURL is the purchase link shown to the user, usually as a QR code.
func ActivationURL(base, fp string) string {
	return strings.TrimRight(base, "/") + "/activate?d=" + url.QueryEscape(fp)
}
