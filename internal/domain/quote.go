package domain

import "time"

// Quote is a single price reading for an instrument.
type Quote struct {
	Symbol string
	Bid    float64
	Ask    float64
	Mid    float64   // (bid+ask)/2, or last price when one side is missing
	At     time.Time // when the reading was taken
}

// NewQuote builds a quote, deriving Mid from bid/ask when both are
// present and falling back to last otherwise.
func NewQuote(symbol string, bid, ask, last float64, at time.Time) Quote {
	mid := last
	if bid > 0 && ask > 0 {
		mid = (bid + ask) / 2
	}
	return Quote{Symbol: symbol, Bid: bid, Ask: ask, Mid: mid, At: at}
}
