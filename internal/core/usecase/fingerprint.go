package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/google/uuid"
)

// vectorIDNamespace scopes deterministic point IDs for indexed chunks.
var vectorIDNamespace = uuid.MustParse("6f0c2a51-5d4e-4b0b-9b5e-2f1d2c9a7e10")

// Fingerprint returns the SHA-256 hex digest of raw item content.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// VectorID derives a stable point ID, so re-indexing identical content
// overwrites instead of duplicating.
func VectorID(sourceID, path, fingerprint string, chunkIndex int) string {
	name := sourceID + "\x00" + path + "\x00" + fingerprint + "\x00" + strconv.Itoa(chunkIndex)
	return uuid.NewSHA1(vectorIDNamespace, []byte(name)).String()
}
