package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// ComputeRecordID computes the deterministic id of a completed-order
// record using SHA256.
// Formula: SHA256(symbol|entry_price|created_at_unix_ms)
// Returns hex-encoded hash (64 characters). The persistence layer keys
// on this so the same completion is never appended twice.
func ComputeRecordID(symbol string, entryPrice float64, createdAt time.Time) string {
	data := fmt.Sprintf("%s|%s|%d",
		symbol,
		strconv.FormatFloat(entryPrice, 'f', -1, 64),
		createdAt.UnixMilli(),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
