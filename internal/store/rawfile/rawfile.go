// Package rawfile offloads large raw connector payloads to disk under
// data/raw/<source>/<YYYYMMDD>/<sha256>.json instead of inlining them into
// the raw_ingestions row, for connectors whose responses exceed the
// configured inline-storage threshold.
package rawfile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store writes payload under baseDir/<source>/<YYYYMMDD>/<sha256>.json and
// returns the sha256 hex digest and the path written, so the caller can
// record both in raw_ingestions.
func Store(baseDir, source string, fetchedAt time.Time, payload []byte) (sha256hex, path string, err error) {
	sum := sha256.Sum256(payload)
	sha256hex = hex.EncodeToString(sum[:])

	dir := filepath.Join(baseDir, source, fetchedAt.Format("20060102"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create raw payload directory %s: %w", dir, err)
	}

	path = filepath.Join(dir, sha256hex+".json")
	if _, err := os.Stat(path); err == nil {
		// Same content hash already offloaded; skip the write rather than
		// treating the collision as an error.
		return sha256hex, path, nil
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", "", fmt.Errorf("write raw payload %s: %w", path, err)
	}
	return sha256hex, path, nil
}

// Threshold is the default inline-storage cutoff in bytes; payloads larger
// than this are offloaded rather than stored directly in the database row.
const Threshold = 32 * 1024

// ShouldOffload reports whether a payload of the given size should be
// written to disk instead of stored inline.
func ShouldOffload(size int) bool {
	return size > Threshold
}
