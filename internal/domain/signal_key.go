package domain

import (
	"strconv"
	"strings"
	"time"
)

// SignalKey is the canonical dedup identity of a signal. Full carries the
// minute bucket of the arrival time; Base drops it and is used for fuzzy
// matching against recent history.
type SignalKey struct {
	Full string
	Base string
}

// KeyBucketGranularity is the time bucket width used in the full key.
const KeyBucketGranularity = time.Minute

// NewSignalKey derives the canonical key for a signal. Prices are
// formatted without trailing zeros so numerically equal levels collide
// regardless of how the producer rendered them.
func NewSignalKey(s *Signal) SignalKey {
	parts := []string{
		strings.ToUpper(s.Symbol),
		string(s.Side),
		formatPrice(s.EntryPrice),
		formatPrice(s.StopLoss),
		formatPrice(s.TargetPrice),
		s.SourceChannel,
	}
	base := strings.Join(parts, "|")

	bucket := s.ReceivedAt.Unix() / int64(KeyBucketGranularity/time.Second)
	full := base + "|" + strconv.FormatInt(bucket, 10)

	return SignalKey{Full: full, Base: base}
}

// formatPrice renders a price with minimal digits ("100", "0.25").
func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
