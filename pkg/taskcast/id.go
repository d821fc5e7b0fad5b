package taskcast

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// newTaskID generates a creation-time-sortable task id when the caller omits one. uuid's stable
// API in the pinned version predates UUIDv7, so sortability comes from an explicit millisecond
// timestamp prefix instead.
func newTaskID(now time.Time) string {
	return fmt.Sprintf("task_%x_%s", now.UnixMilli(), randomHex(4))
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read on the standard reader does not fail in practice; fall back to a
		// time-derived suffix rather than panicking.
		return hex.EncodeToString([]byte(fmt.Sprintf("%d", time.Now().UnixNano())))[:n*2]
	}
	return hex.EncodeToString(buf)
}
