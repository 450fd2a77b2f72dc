// Package idempotency derives deterministic keys for prescription requests so
// the consumer can recognize a broker redelivery of a message it already
// applied.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// RequestKey builds a deterministic key from the request fields and the time
// the doctor submitted it. The timestamp is truncated to the minute so a
// retried publish of the same action keys identically, while a deliberate
// repeat order later still gets a fresh key.
func RequestKey(apptID, medicineID int64, quantity int, submitted time.Time) string {
	minute := submitted.UTC().Truncate(time.Minute).Format(time.RFC3339)
	data := fmt.Sprintf("%d|%d|%d|%s", apptID, medicineID, quantity, minute)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
