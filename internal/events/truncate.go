package events

import (
	"crypto/sha256"
	"encoding/hex"
)

// maxURLBytes bounds URLs carried in events; data: and blob-heavy URLs can
// be megabytes long.
const maxURLBytes = 2048

// truncateString cuts in to maxBytes. A cut value reports its original
// length and the SHA-256 of the full value so journal readers can still
// correlate it.
func truncateString(in string, maxBytes int) (string, bool, int, string) {
	if maxBytes <= 0 || len(in) <= maxBytes {
		return in, false, len(in), ""
	}
	sum := sha256.Sum256([]byte(in))
	return in[:maxBytes], true, len(in), hex.EncodeToString(sum[:])
}
