package health

import (
	"errors"
	"testing"
	"time"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestTrackerStartsHealthy(t *testing.T) {
	tr := NewTracker()

	if got := tr.Overall(); got != StatusHealthy {
		t.Errorf("Expected healthy with no reports, got %s", got)
	}
	if r := tr.Snapshot(); r.Status != StatusHealthy || len(r.Dependencies) != 0 {
		t.Errorf("Expected empty healthy report, got %+v", r)
	}
}

func TestTrackerDegradesOnStreak(t *testing.T) {
	tr := NewTracker()
	err := errors.New("connection refused")

	for i := 0; i < DefaultDegradedAfter-1; i++ {
		tr.ReportFailure("price_source", err, baseTime.Add(time.Duration(i)*time.Second))
	}
	if got := tr.Overall(); got != StatusHealthy {
		t.Errorf("Expected healthy below the threshold, got %s", got)
	}

	tr.ReportFailure("price_source", err, baseTime.Add(time.Minute))
	if got := tr.Overall(); got != StatusDegraded {
		t.Errorf("Expected degraded at %d consecutive failures, got %s", DefaultDegradedAfter, got)
	}
}

func TestTrackerUnhealthyOnLongStreak(t *testing.T) {
	tr := NewTracker()

	for i := 0; i < DefaultUnhealthyAfter; i++ {
		tr.ReportFailure("venue", errors.New("timeout"), baseTime)
	}
	if got := tr.Overall(); got != StatusUnhealthy {
		t.Errorf("Expected unhealthy at %d failures, got %s", DefaultUnhealthyAfter, got)
	}
}

func TestTrackerSuccessResetsStreak(t *testing.T) {
	tr := NewTracker()

	for i := 0; i < DefaultDegradedAfter; i++ {
		tr.ReportFailure("price_source", errors.New("timeout"), baseTime)
	}
	if tr.Overall() != StatusDegraded {
		t.Fatal("test sanity: expected degraded")
	}

	tr.ReportSuccess("price_source", baseTime.Add(time.Minute))
	if got := tr.Overall(); got != StatusHealthy {
		t.Errorf("Expected success to restore healthy, got %s", got)
	}
	if got := tr.Streak("price_source"); got != 0 {
		t.Errorf("Expected streak reset to 0, got %d", got)
	}

	// Total failure count survives the reset.
	r := tr.Snapshot()
	if len(r.Dependencies) != 1 || r.Dependencies[0].TotalFailures != uint64(DefaultDegradedAfter) {
		t.Errorf("Expected total failures preserved, got %+v", r.Dependencies)
	}
}

func TestTrackerWorstDependencyWins(t *testing.T) {
	tr := NewTracker()

	tr.ReportSuccess("postgres", baseTime)
	for i := 0; i < DefaultDegradedAfter; i++ {
		tr.ReportFailure("price_source", errors.New("timeout"), baseTime)
	}

	if got := tr.Overall(); got != StatusDegraded {
		t.Errorf("Expected degraded overall, got %s", got)
	}

	r := tr.Snapshot()
	if r.Status != StatusDegraded {
		t.Errorf("Expected degraded report status, got %s", r.Status)
	}

	// Sorted by name: postgres before price_source.
	if len(r.Dependencies) != 2 || r.Dependencies[0].Name != "postgres" || r.Dependencies[1].Name != "price_source" {
		t.Errorf("Expected sorted [postgres price_source], got %+v", r.Dependencies)
	}
	if r.Dependencies[0].Status != StatusHealthy || r.Dependencies[1].Status != StatusDegraded {
		t.Errorf("Per-dependency verdicts wrong: %+v", r.Dependencies)
	}
}

func TestTrackerRecordsLastError(t *testing.T) {
	tr := NewTracker()
	tr.ReportFailure("venue", errors.New("status 502"), baseTime)

	r := tr.Snapshot()
	if r.Dependencies[0].LastError != "status 502" {
		t.Errorf("Expected last error recorded, got %q", r.Dependencies[0].LastError)
	}
	if !r.Dependencies[0].LastFailure.Equal(baseTime) {
		t.Errorf("Expected failure time %v, got %v", baseTime, r.Dependencies[0].LastFailure)
	}
}

func TestWithThresholds(t *testing.T) {
	tr := NewTracker(WithThresholds(1, 2))

	tr.ReportFailure("feed", errors.New("eof"), baseTime)
	if got := tr.Overall(); got != StatusDegraded {
		t.Errorf("Expected degraded after one failure, got %s", got)
	}
	tr.ReportFailure("feed", errors.New("eof"), baseTime)
	if got := tr.Overall(); got != StatusUnhealthy {
		t.Errorf("Expected unhealthy after two failures, got %s", got)
	}
}
