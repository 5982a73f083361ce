// Package health tracks consecutive failures per external dependency and
// condenses them into a verdict for the supervisor endpoint. Single
// failures are normal operation; only sustained streaks change the verdict.
package health

import (
	"sort"
	"sync"
	"time"
)

// Status is a dependency or process verdict.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const (
	// DefaultDegradedAfter is the consecutive-failure count at which a
	// dependency is reported degraded.
	DefaultDegradedAfter = 3

	// DefaultUnhealthyAfter is the consecutive-failure count at which a
	// dependency is reported unhealthy.
	DefaultUnhealthyAfter = 10
)

// DependencyHealth is the reported state of one tracked dependency.
type DependencyHealth struct {
	Name                string    `json:"name"`
	Status              Status    `json:"status"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalFailures       uint64    `json:"total_failures"`
	LastError           string    `json:"last_error,omitempty"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
}

// Report is the full health view served on /health.
type Report struct {
	Status       Status             `json:"status"`
	Dependencies []DependencyHealth `json:"dependencies"`
}

type depState struct {
	consecutive int
	total       uint64
	lastError   string
	lastSuccess time.Time
	lastFailure time.Time
}

// Tracker aggregates per-dependency failure streaks.
type Tracker struct {
	degradedAfter  int
	unhealthyAfter int

	mu   sync.Mutex
	deps map[string]*depState
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithThresholds overrides the streak lengths for the degraded and
// unhealthy verdicts.
func WithThresholds(degradedAfter, unhealthyAfter int) Option {
	return func(t *Tracker) {
		if degradedAfter > 0 {
			t.degradedAfter = degradedAfter
		}
		if unhealthyAfter > degradedAfter {
			t.unhealthyAfter = unhealthyAfter
		}
	}
}

// NewTracker creates a Tracker with default thresholds.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		degradedAfter:  DefaultDegradedAfter,
		unhealthyAfter: DefaultUnhealthyAfter,
		deps:           make(map[string]*depState),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ReportSuccess resets the dependency's failure streak.
func (t *Tracker) ReportSuccess(dep string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state(dep)
	s.consecutive = 0
	s.lastError = ""
	s.lastSuccess = at.UTC()
}

// ReportFailure extends the dependency's failure streak.
func (t *Tracker) ReportFailure(dep string, err error, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state(dep)
	s.consecutive++
	s.total++
	if err != nil {
		s.lastError = err.Error()
	}
	s.lastFailure = at.UTC()
}

// Streak returns the dependency's current consecutive-failure count.
func (t *Tracker) Streak(dep string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.deps[dep]; ok {
		return s.consecutive
	}
	return 0
}

// Overall returns the worst verdict across all tracked dependencies. A
// tracker with no dependencies reported yet is healthy.
func (t *Tracker) Overall() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	worst := StatusHealthy
	for _, s := range t.deps {
		switch t.verdict(s.consecutive) {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			worst = StatusDegraded
		}
	}
	return worst
}

// Snapshot renders the full report, dependencies sorted by name.
func (t *Tracker) Snapshot() Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	report := Report{Status: StatusHealthy}
	for name, s := range t.deps {
		v := t.verdict(s.consecutive)
		report.Dependencies = append(report.Dependencies, DependencyHealth{
			Name:                name,
			Status:              v,
			ConsecutiveFailures: s.consecutive,
			TotalFailures:       s.total,
			LastError:           s.lastError,
			LastSuccess:         s.lastSuccess,
			LastFailure:         s.lastFailure,
		})
		switch v {
		case StatusUnhealthy:
			report.Status = StatusUnhealthy
		case StatusDegraded:
			if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		}
	}
	sort.Slice(report.Dependencies, func(i, j int) bool {
		return report.Dependencies[i].Name < report.Dependencies[j].Name
	})
	return report
}

// state returns the tracked entry, creating it on first sight. Caller
// holds the lock.
func (t *Tracker) state(dep string) *depState {
	s, ok := t.deps[dep]
	if !ok {
		s = &depState{}
		t.deps[dep] = s
	}
	return s
}

func (t *Tracker) verdict(consecutive int) Status {
	switch {
	case consecutive >= t.unhealthyAfter:
		return StatusUnhealthy
	case consecutive >= t.degradedAfter:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}
