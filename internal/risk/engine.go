// Package risk gates admissions against per-channel limits. The limits
// live in a YAML file and reload on change, so tightening a misbehaving
// channel never needs a restart.
package risk

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Input is everything the gate looks at for one admission.
type Input struct {
	Channel    string
	Leverage   float64
	Confidence float64
	OpenOrders int // open orders already attributed to this channel
}

// Decision is the gate's verdict. MaxRiskPct carries the channel's risk
// cap forward so the pipeline can bound the sized position; zero means
// no cap.
type Decision struct {
	Allowed    bool
	DenyReason string
	MaxRiskPct float64
}

// Engine evaluates admissions against the loaded limits.
type Engine struct {
	path   string
	logger *log.Logger

	mu       sync.RWMutex
	defaults Limits
	channels map[string]Limits
}

// NewEngine loads the limits file once. An empty path builds a
// wide-open engine that allows everything, for replay and tests.
func NewEngine(path string, logger *log.Logger) (*Engine, error) {
	if logger == nil {
		logger = log.Default()
	}

	e := &Engine{
		path:     path,
		logger:   logger,
		channels: make(map[string]Limits),
	}
	if path == "" {
		return e, nil
	}

	if err := e.Reload(); err != nil {
		return nil, err
	}
	return e, nil
}

// Reload re-reads the limits file. On parse failure the previous limits
// stay in effect.
func (e *Engine) Reload() error {
	file, err := loadLimits(e.path)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.defaults = file.Default
	e.channels = file.Channels
	if e.channels == nil {
		e.channels = make(map[string]Limits)
	}
	e.mu.Unlock()

	e.logger.Printf("risk: loaded limits for %d channels from %s", len(file.Channels), e.path)
	return nil
}

// Watch reloads the limits whenever the file changes. Blocks until the
// context is canceled; run it in a goroutine. Editors replace files by
// rename, so the watch is on the directory, filtered to our file.
func (e *Engine) Watch(ctx context.Context) error {
	if e.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("risk: create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(e.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("risk: watch %s: %w", dir, err)
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(e.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := e.Reload(); err != nil {
				e.logger.Printf("risk: reload failed, keeping previous limits: %v", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.logger.Printf("risk: watcher error: %v", err)

		case <-ctx.Done():
			return nil
		}
	}
}

// LimitsFor returns the effective limits for a channel.
func (e *Engine) LimitsFor(channel string) Limits {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if ch, ok := e.channels[channel]; ok {
		return merged(e.defaults, ch)
	}
	return e.defaults
}

// Evaluate runs the ordered guards. The first violated limit decides;
// later guards are not consulted.
func (e *Engine) Evaluate(in Input) Decision {
	if in.Channel == "" {
		return Decision{Allowed: false, DenyReason: "channel_missing"}
	}

	limits := e.LimitsFor(in.Channel)

	if limits.MaxLeverage > 0 && in.Leverage > limits.MaxLeverage {
		return Decision{Allowed: false, DenyReason: "leverage_above_limit"}
	}
	if in.Confidence < limits.MinConfidence {
		return Decision{Allowed: false, DenyReason: "confidence_too_low"}
	}
	if limits.MaxOpenOrders > 0 && in.OpenOrders >= limits.MaxOpenOrders {
		return Decision{Allowed: false, DenyReason: "max_open_orders_reached"}
	}

	return Decision{Allowed: true, MaxRiskPct: limits.MaxRiskPct}
}
