// Package httpapi serves the engine over HTTP: health and status for
// operators, order and statistics views for dashboards, and an
// authenticated intake endpoint for submitting signals. The server holds
// no state of its own beyond the latest published snapshot; every read
// endpoint answers from the live components it was wired with.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"signal-engine/internal/domain"
	"signal-engine/internal/health"
	"signal-engine/internal/ingest"
	"signal-engine/internal/observability"
	"signal-engine/internal/orders"
	"signal-engine/internal/publish"
	"signal-engine/internal/stats"
)

// defaultCompletedLimit caps the completed orders returned by /orders
// when the caller does not pass ?limit=.
const defaultCompletedLimit = 50

type contextKey string

const contextKeySubject contextKey = "intakeSubject"

// Server is the HTTP front of the engine.
type Server struct {
	machine   *orders.Machine
	intake    *ingest.Service
	tracker   *health.Tracker
	jwtSecret string
	logger    *log.Logger
	startedAt time.Time

	mu       sync.RWMutex
	lastSnap publish.Snapshot
	hasSnap  bool
}

// Options configures the server.
type Options struct {
	// Machine is the order state machine backing the read endpoints.
	// Required.
	Machine *orders.Machine

	// Intake is the signal admission pipeline behind POST /signals.
	// Optional: when nil the endpoint answers 503.
	Intake *ingest.Service

	// Health is the dependency tracker served on /health. Required.
	Health *health.Tracker

	// JWTSecret signs and verifies intake bearer tokens. Empty leaves
	// POST /signals unauthenticated.
	JWTSecret string

	// Logger defaults to log.Default().
	Logger *log.Logger
}

// New builds a server from its collaborators.
func New(opts Options) (*Server, error) {
	if opts.Machine == nil {
		return nil, fmt.Errorf("httpapi: order machine is required")
	}
	if opts.Health == nil {
		return nil, fmt.Errorf("httpapi: health tracker is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		machine:   opts.Machine,
		intake:    opts.Intake,
		tracker:   opts.Health,
		jwtSecret: opts.JWTSecret,
		logger:    logger,
		startedAt: time.Now(),
	}, nil
}

// Publish retains the latest emitted snapshot so /status can report when
// downstream subscribers last heard from the engine. It implements
// publish.Sink and is safe to call from the monitor tick.
func (s *Server) Publish(snap publish.Snapshot) {
	s.mu.Lock()
	s.lastSnap = snap
	s.hasSnap = true
	s.mu.Unlock()
}

// Router assembles the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/orders", s.handleOrders)
	r.Get("/stats", s.handleStats)
	r.Handle("/metrics", observability.Handler())

	r.Group(func(protected chi.Router) {
		if s.jwtSecret != "" {
			protected.Use(s.requireToken)
		}
		protected.Post("/signals", s.handleSubmitSignal)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.tracker.Snapshot()
	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	active, completed := s.machine.Counts()
	body := map[string]interface{}{
		"status":           string(s.tracker.Overall()),
		"uptime_seconds":   int64(time.Since(s.startedAt).Seconds()),
		"active_orders":    active,
		"completed_orders": completed,
		"time":             time.Now().UTC().Format(time.RFC3339),
	}

	s.mu.RLock()
	if s.hasSnap {
		body["last_snapshot_id"] = s.lastSnap.ID.String()
		body["last_snapshot_at"] = s.lastSnap.At.UTC().Format(time.RFC3339)
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), defaultCompletedLimit)

	completed := s.machine.ListCompleted()
	if len(completed) > limit {
		completed = completed[len(completed)-limit:]
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active":    orderViews(s.machine.ListActive()),
		"completed": orderViews(completed),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st := stats.Compute(s.machine.ListCompleted())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_trades":           st.TotalTrades,
		"winning_trades":         st.WinningTrades,
		"losing_trades":          st.LosingTrades,
		"average_profit_pct":     st.AverageProfit,
		"average_loss_pct":       st.AverageLoss,
		"profit_factor":          st.ProfitFactor,
		"max_consecutive_wins":   st.MaxConsecutiveWins,
		"max_consecutive_losses": st.MaxConsecutiveLosses,
		"recent_win_rate":        st.RecentWinRate,
		"overall_win_rate":       st.OverallWinRate,
	})
}

// signalRequest is the wire form of an inbound signal.
type signalRequest struct {
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	EntryPrice    float64   `json:"entry_price"`
	StopLoss      float64   `json:"stop_loss"`
	TargetPrice   float64   `json:"target_price"`
	SourceChannel string    `json:"source_channel"`
	Confidence    float64   `json:"confidence"`
	Leverage      float64   `json:"leverage"`
	ReceivedAt    time.Time `json:"received_at"`
}

func (req signalRequest) toSignal(now time.Time) *domain.Signal {
	receivedAt := req.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = now
	}
	return &domain.Signal{
		Symbol:        strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Side:          domain.Side(strings.ToUpper(strings.TrimSpace(req.Side))),
		EntryPrice:    req.EntryPrice,
		StopLoss:      req.StopLoss,
		TargetPrice:   req.TargetPrice,
		SourceChannel: req.SourceChannel,
		Confidence:    req.Confidence,
		Leverage:      req.Leverage,
		ReceivedAt:    receivedAt,
	}
}

func (s *Server) handleSubmitSignal(w http.ResponseWriter, r *http.Request) {
	if s.intake == nil {
		writeError(w, http.StatusServiceUnavailable, "signal intake disabled")
		return
	}

	var req signalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now()
	res, err := s.intake.Submit(r.Context(), req.toSignal(now), now)
	if err != nil {
		s.logger.Printf("httpapi: signal placement failed: %v", err)
		writeError(w, http.StatusBadGateway, "order placement failed")
		return
	}

	if !res.Accepted {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"accepted": false,
			"reason":   res.Reason,
		})
		return
	}

	if sub := subjectFromContext(r.Context()); sub != "" {
		s.logger.Printf("httpapi: signal %s %s accepted from %q as order %d",
			res.Order.Symbol, res.Order.Side, sub, res.Order.ID)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accepted":       true,
		"order_id":       res.Order.ID,
		"symbol":         res.Order.Symbol,
		"side":           string(res.Order.Side),
		"quantity":       res.Order.Quantity,
		"risk_pct":       res.RiskPct,
		"venue_order_id": res.Receipt.VenueOrderID,
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
			return []byte(s.jwtSecret), nil
		})
		if err != nil || !parsed.Valid {
			writeError(w, http.StatusUnauthorized, "invalid intake token")
			return
		}
		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid intake claims")
			return
		}
		sub, _ := claims["sub"].(string)
		ctx := context.WithValue(r.Context(), contextKeySubject, sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SignIntakeToken mints a bearer token for POST /signals. Operators use
// it to issue credentials to upstream signal forwarders.
func SignIntakeToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("httpapi: empty jwt secret")
	}
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": subject,
		"exp": now.Add(ttl).Unix(),
		"iat": now.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func subjectFromContext(ctx context.Context) string {
	sub, _ := ctx.Value(contextKeySubject).(string)
	return sub
}

func orderViews(list []domain.Order) []publish.OrderView {
	out := make([]publish.OrderView, 0, len(list))
	for _, o := range list {
		out = append(out, publish.ViewOf(o))
	}
	return out
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func parseInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func decodeJSON(r *http.Request, target interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

var _ publish.Sink = (*Server)(nil)
