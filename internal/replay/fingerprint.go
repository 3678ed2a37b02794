package replay

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"time"
)

// Fingerprint derives the dedup key of a game from its intrinsic match
// data. Two captures of the same match, regardless of which client
// recorded them or when they were uploaded, share a start time and final
// frame count and therefore collapse to the same key. MD5 is used purely
// as a collision-avoidance digest, not as a security boundary.
func Fingerprint(startTime time.Time, lastFrame int) string {
	payload := startTime.UTC().Format(time.RFC3339) + "|" + strconv.Itoa(lastFrame)
	sum := md5.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}
