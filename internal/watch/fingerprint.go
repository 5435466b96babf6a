package watch

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns a deterministic content fingerprint used for cheap
// equality checks without storing raw text.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// FingerprintPtr fingerprints optional content: nil for empty text, so
// bodyless issues store a null fingerprint.
func FingerprintPtr(text string) *string {
	if text == "" {
		return nil
	}
	fp := Fingerprint(text)
	return &fp
}
