package usecase

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/Buringskul/cv-feedback-bot/pkg/textx"
)

const (
	// FingerprintNamespace prefixes every result key.
	FingerprintNamespace = "analysis"
	// FingerprintVersion is bumped whenever the scoring heuristics change
	// so entries produced by older logic are never served.
	FingerprintVersion = "v2"
)

// Fingerprint derives the cache key for (text, role) under the current version.
func Fingerprint(text, role string) string {
	return VersionedFingerprint(FingerprintVersion, text, role)
}

// VersionedFingerprint derives analysis:<version>:<sha256 hex> from the
// whitespace-normalized text and the role. Roles must not contain "|".
func VersionedFingerprint(version, text, role string) string {
	if version == "" {
		version = FingerprintVersion
	}
	h := sha256.Sum256([]byte(textx.CollapseWhitespace(text) + "|" + role))
	return FingerprintNamespace + ":" + version + ":" + hex.EncodeToString(h[:])
}
