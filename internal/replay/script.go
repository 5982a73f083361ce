// Package replay drives the whole engine from a scripted event file:
// price ticks and inbound signals with explicit timestamps, applied
// against a virtual clock. The same script always produces the same
// orders, transitions and statistics.
package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"signal-engine/internal/domain"
)

// EventType represents the type of scripted event.
type EventType string

// Event type constants.
const (
	EventTypeTick   EventType = "tick"
	EventTypeSignal EventType = "signal"
)

// Event represents one scripted occurrence. Only one of Tick or Signal
// is set based on Type. Seq is the line number in the script file; it
// breaks ties between events sharing a timestamp, so script order wins
// within an instant.
type Event struct {
	Type   EventType
	At     time.Time
	Seq    int
	Tick   *Tick
	Signal *domain.Signal
}

// Tick is one scripted quote sample.
type Tick struct {
	Symbol string
	Bid    float64
	Ask    float64
	Last   float64
}

// scriptLine is the JSONL wire shape of one script line.
type scriptLine struct {
	Type   string      `json:"type"`
	At     time.Time   `json:"at"`
	Symbol string      `json:"symbol,omitempty"`
	Bid    float64     `json:"bid,omitempty"`
	Ask    float64     `json:"ask,omitempty"`
	Last   float64     `json:"last,omitempty"`
	Signal *signalLine `json:"signal,omitempty"`
}

type signalLine struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	EntryPrice    float64 `json:"entry_price"`
	StopLoss      float64 `json:"stop_loss"`
	TargetPrice   float64 `json:"target_price,omitempty"`
	SourceChannel string  `json:"source_channel"`
	Confidence    float64 `json:"confidence,omitempty"`
	Leverage      float64 `json:"leverage,omitempty"`
}

// LoadScript parses a JSONL script. One JSON object per line; blank
// lines and lines starting with # are skipped. Events are returned
// sorted by (at, line), ready for the runner.
//
// Tick lines:
//
//	{"type":"tick","at":"2026-03-01T12:00:00Z","symbol":"BTCUSDT","bid":99.9,"ask":100.1,"last":100}
//
// Signal lines:
//
//	{"type":"signal","at":"2026-03-01T12:00:30Z","signal":{"symbol":"BTCUSDT","side":"LONG","entry_price":99.5,"stop_loss":95,"target_price":110,"source_channel":"alpha","confidence":0.9}}
func LoadScript(r io.Reader) ([]*Event, error) {
	var events []*Event

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var raw scriptLine
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return nil, fmt.Errorf("script line %d: %w", lineNo, err)
		}

		event, err := eventFromLine(&raw, lineNo)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}

	SortEvents(events)
	return events, nil
}

// eventFromLine validates one parsed line and builds its Event.
func eventFromLine(raw *scriptLine, lineNo int) (*Event, error) {
	if raw.At.IsZero() {
		return nil, fmt.Errorf("script line %d: missing at timestamp", lineNo)
	}

	switch EventType(raw.Type) {
	case EventTypeTick:
		if raw.Symbol == "" {
			return nil, fmt.Errorf("script line %d: tick missing symbol", lineNo)
		}
		if raw.Bid <= 0 && raw.Ask <= 0 && raw.Last <= 0 {
			return nil, fmt.Errorf("script line %d: tick carries no price", lineNo)
		}
		return &Event{
			Type: EventTypeTick,
			At:   raw.At.UTC(),
			Seq:  lineNo,
			Tick: &Tick{
				Symbol: strings.ToUpper(raw.Symbol),
				Bid:    raw.Bid,
				Ask:    raw.Ask,
				Last:   raw.Last,
			},
		}, nil

	case EventTypeSignal:
		if raw.Signal == nil {
			return nil, fmt.Errorf("script line %d: signal body missing", lineNo)
		}
		sig := &domain.Signal{
			Symbol:        strings.ToUpper(strings.TrimSpace(raw.Signal.Symbol)),
			Side:          domain.Side(strings.ToUpper(strings.TrimSpace(raw.Signal.Side))),
			EntryPrice:    raw.Signal.EntryPrice,
			StopLoss:      raw.Signal.StopLoss,
			TargetPrice:   raw.Signal.TargetPrice,
			SourceChannel: raw.Signal.SourceChannel,
			Confidence:    raw.Signal.Confidence,
			Leverage:      raw.Signal.Leverage,
			ReceivedAt:    raw.At.UTC(),
		}
		return &Event{
			Type:   EventTypeSignal,
			At:     raw.At.UTC(),
			Seq:    lineNo,
			Signal: sig,
		}, nil

	default:
		return nil, fmt.Errorf("script line %d: %w: %q", lineNo, ErrUnknownEventType, raw.Type)
	}
}
