// Package xid generates prefixed identifiers for stored entities, e.g.
// "prd" for products or "inv" for invoices.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns an id shaped prefix-nanos-randomhex. The nanosecond stamp
// keeps ids roughly ordered by creation time; the random suffix avoids
// collisions within the same nanosecond.
func New(prefix string) string {
	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(suffix))
}
