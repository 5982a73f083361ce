package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"signal-engine/internal/dedup"
	"signal-engine/internal/domain"
	"signal-engine/internal/exchange"
	"signal-engine/internal/health"
	"signal-engine/internal/ingest"
	"signal-engine/internal/orders"
	"signal-engine/internal/publish"
	"signal-engine/internal/sizing"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	server  *Server
	machine *orders.Machine
	tracker *health.Tracker
	ts      *httptest.Server
}

func newFixture(t *testing.T, jwtSecret string, venue exchange.OrderPlacer) *fixture {
	t.Helper()

	machine := orders.New()
	tracker := health.NewTracker()
	if venue == nil {
		venue = exchange.NewPaperVenue(nil)
	}

	intake, err := ingest.New(ingest.Options{
		Dedup:   dedup.New(),
		Machine: machine,
		Sizer: sizing.New(nil, func(string) (float64, bool) {
			return 100, true
		}),
		Venue:   venue,
		Balance: 10000,
	})
	if err != nil {
		t.Fatalf("ingest.New failed: %v", err)
	}

	server, err := New(Options{
		Machine:   machine,
		Intake:    intake,
		Health:    tracker,
		JWTSecret: jwtSecret,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	return &fixture{server: server, machine: machine, tracker: tracker, ts: ts}
}

func getJSON(t *testing.T, url string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode response from %s: %v", url, err)
	}
	return resp.StatusCode, body
}

func postSignal(t *testing.T, f *fixture, token, payload string) (int, map[string]interface{}) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, f.ts.URL+"/signals", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /signals failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode response: %v", err)
	}
	return resp.StatusCode, body
}

func signalPayload(symbol string) string {
	return fmt.Sprintf(`{"symbol":%q,"side":"LONG","entry_price":100,"stop_loss":90,"target_price":120,"source_channel":"alpha","confidence":0.9}`, symbol)
}

func completedOrder(id uint64, pnl float64, exitOffset time.Duration) domain.Order {
	exitAt := baseTime.Add(exitOffset)
	reason := domain.ExitReasonTakeProfit
	if pnl < 0 {
		reason = domain.ExitReasonStopLoss
	}
	return domain.Order{
		ID:             id,
		Symbol:         "BTCUSDT",
		Side:           domain.SideLong,
		EntryPrice:     100,
		StopLoss:       90,
		TargetPrice:    120,
		Quantity:       1,
		Status:         domain.StatusCompleted,
		ExitPrice:      100 + pnl,
		ExitReason:     reason,
		ExitAt:         &exitAt,
		RealizedPnlPct: pnl,
		SourceChannel:  "alpha",
		CreatedAt:      baseTime,
	}
}

func TestHealthReflectsTrackerVerdict(t *testing.T) {
	f := newFixture(t, "", nil)
	f.tracker.ReportSuccess("price_source", time.Now())

	status, body := getJSON(t, f.ts.URL+"/health")
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if body["status"] != "healthy" {
		t.Errorf("Expected healthy, got %v", body["status"])
	}

	for i := 0; i < health.DefaultUnhealthyAfter; i++ {
		f.tracker.ReportFailure("price_source", errors.New("connection refused"), time.Now())
	}

	status, body = getJSON(t, f.ts.URL+"/health")
	if status != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 when unhealthy, got %d", status)
	}
	if body["status"] != "unhealthy" {
		t.Errorf("Expected unhealthy, got %v", body["status"])
	}
}

func TestStatusReportsCountsAndLastSnapshot(t *testing.T) {
	f := newFixture(t, "", nil)

	if status, body := postSignal(t, f, "", signalPayload("BTCUSDT")); status != http.StatusOK || body["accepted"] != true {
		t.Fatalf("Signal not accepted: status %d body %v", status, body)
	}

	snapID := uuid.New()
	f.server.Publish(publish.Snapshot{ID: snapID, At: baseTime})

	status, body := getJSON(t, f.ts.URL+"/status")
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if got := body["active_orders"]; got != float64(1) {
		t.Errorf("Expected 1 active order, got %v", got)
	}
	if got := body["last_snapshot_id"]; got != snapID.String() {
		t.Errorf("Expected snapshot id %s, got %v", snapID, got)
	}
	if _, ok := body["last_snapshot_at"]; !ok {
		t.Error("Expected last_snapshot_at in status body")
	}
}

func TestOrdersListsActiveAndLimitsCompleted(t *testing.T) {
	f := newFixture(t, "", nil)

	if status, body := postSignal(t, f, "", signalPayload("ETHUSDT")); status != http.StatusOK || body["accepted"] != true {
		t.Fatalf("Signal not accepted: status %d body %v", status, body)
	}
	f.machine.SeedCompleted([]domain.Order{
		completedOrder(100, 20, time.Hour),
		completedOrder(101, -10, 2*time.Hour),
		completedOrder(102, 5, 3*time.Hour),
	})

	resp, err := http.Get(f.ts.URL + "/orders?limit=2")
	if err != nil {
		t.Fatalf("GET /orders failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Active    []publish.OrderView `json:"active"`
		Completed []publish.OrderView `json:"completed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode orders: %v", err)
	}

	if len(body.Active) != 1 {
		t.Fatalf("Expected 1 active order, got %d", len(body.Active))
	}
	if body.Active[0].Symbol != "ETHUSDT" || body.Active[0].Status != string(domain.StatusPending) {
		t.Errorf("Unexpected active order: %+v", body.Active[0])
	}
	if len(body.Completed) != 2 {
		t.Fatalf("Expected completed truncated to 2, got %d", len(body.Completed))
	}
	if body.Completed[0].ID != 101 || body.Completed[1].ID != 102 {
		t.Errorf("Expected newest completed (101, 102), got (%d, %d)",
			body.Completed[0].ID, body.Completed[1].ID)
	}
}

func TestStatsComputedFromCompletedOrders(t *testing.T) {
	f := newFixture(t, "", nil)
	f.machine.SeedCompleted([]domain.Order{
		completedOrder(1, 20, time.Hour),
		completedOrder(2, 10, 2*time.Hour),
		completedOrder(3, -10, 3*time.Hour),
	})

	status, body := getJSON(t, f.ts.URL+"/stats")
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if got := body["total_trades"]; got != float64(3) {
		t.Errorf("Expected 3 total trades, got %v", got)
	}
	if got := body["winning_trades"]; got != float64(2) {
		t.Errorf("Expected 2 winning trades, got %v", got)
	}
	if got := body["profit_factor"]; got != float64(3) {
		t.Errorf("Expected profit factor 3, got %v", got)
	}
}

func TestMetricsServed(t *testing.T) {
	f := newFixture(t, "", nil)

	resp, err := http.Get(f.ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Read metrics body: %v", err)
	}
	if !strings.Contains(string(raw), "signal_engine_") {
		t.Error("Expected signal_engine_ metrics in exposition")
	}
}

func TestSubmitSignalAcceptsThenDeduplicates(t *testing.T) {
	f := newFixture(t, "", nil)

	status, body := postSignal(t, f, "", signalPayload("BTCUSDT"))
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if body["accepted"] != true {
		t.Fatalf("Expected accepted, got %v", body)
	}
	if got := body["order_id"]; got != float64(1) {
		t.Errorf("Expected order id 1, got %v", got)
	}
	if got, ok := body["venue_order_id"].(string); !ok || got == "" {
		t.Errorf("Expected a venue order id, got %v", body["venue_order_id"])
	}

	status, body = postSignal(t, f, "", signalPayload("BTCUSDT"))
	if status != http.StatusOK {
		t.Fatalf("Expected 200 on rejection, got %d", status)
	}
	if body["accepted"] != false {
		t.Fatalf("Expected duplicate rejected, got %v", body)
	}
	if body["reason"] != ingest.ReasonDuplicate {
		t.Errorf("Expected reason %q, got %v", ingest.ReasonDuplicate, body["reason"])
	}

	if active, _ := f.machine.Counts(); active != 1 {
		t.Errorf("Expected 1 active order after duplicate, got %d", active)
	}
}

func TestSubmitSignalRejectsMalformedBody(t *testing.T) {
	f := newFixture(t, "", nil)

	status, body := postSignal(t, f, "", `{"sym":"BTCUSDT"}`)
	if status != http.StatusBadRequest {
		t.Fatalf("Expected 400 for unknown field, got %d", status)
	}
	if _, ok := body["error"]; !ok {
		t.Error("Expected error message in body")
	}
}

type downVenue struct{}

func (downVenue) PlaceOrder(context.Context, exchange.OrderRequest) (exchange.OrderReceipt, error) {
	return exchange.OrderReceipt{}, errors.New("venue down")
}

func TestSubmitSignalVenueFailure(t *testing.T) {
	f := newFixture(t, "", downVenue{})

	status, body := postSignal(t, f, "", signalPayload("BTCUSDT"))
	if status != http.StatusBadGateway {
		t.Fatalf("Expected 502, got %d", status)
	}
	if body["error"] != "order placement failed" {
		t.Errorf("Unexpected error body: %v", body)
	}
	if active, _ := f.machine.Counts(); active != 0 {
		t.Errorf("Expected no active orders after venue failure, got %d", active)
	}
}

func TestSubmitSignalRequiresValidToken(t *testing.T) {
	const secret = "test-secret"
	f := newFixture(t, secret, nil)

	if status, _ := postSignal(t, f, "", signalPayload("BTCUSDT")); status != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without token, got %d", status)
	}

	forged, err := SignIntakeToken("other-secret", "forwarder", time.Hour)
	if err != nil {
		t.Fatalf("SignIntakeToken failed: %v", err)
	}
	if status, _ := postSignal(t, f, forged, signalPayload("BTCUSDT")); status != http.StatusUnauthorized {
		t.Fatalf("Expected 401 for forged token, got %d", status)
	}

	token, err := SignIntakeToken(secret, "forwarder", time.Hour)
	if err != nil {
		t.Fatalf("SignIntakeToken failed: %v", err)
	}
	status, body := postSignal(t, f, token, signalPayload("BTCUSDT"))
	if status != http.StatusOK {
		t.Fatalf("Expected 200 with valid token, got %d", status)
	}
	if body["accepted"] != true {
		t.Errorf("Expected accepted with valid token, got %v", body)
	}

	if status, _ := getJSON(t, f.ts.URL+"/health"); status != http.StatusOK {
		t.Errorf("Expected /health open without token, got %d", status)
	}
}

func TestSubmitSignalWithoutIntake(t *testing.T) {
	server, err := New(Options{Machine: orders.New(), Health: health.NewTracker()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/signals", "application/json", strings.NewReader(signalPayload("BTCUSDT")))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 without intake, got %d", resp.StatusCode)
	}
}

func TestNewRequiresComponents(t *testing.T) {
	if _, err := New(Options{Health: health.NewTracker()}); err == nil {
		t.Error("Expected error without machine")
	}
	if _, err := New(Options{Machine: orders.New()}); err == nil {
		t.Error("Expected error without health tracker")
	}
}
