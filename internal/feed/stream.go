// Package feed streams live ticker quotes over websocket and pushes
// them into a quote sink.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"signal-engine/internal/domain"
)

const tickerTopicPrefix = "tickers."

// QuoteSink receives quotes as they arrive from the stream.
type QuoteSink interface {
	Put(q domain.Quote)
}

// Config configures stream behavior.
type Config struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending keepalive pings.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultConfig returns default stream configuration. The venue drops
// connections that stay silent longer than 30s, so pings go every 20s.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      20 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Stream maintains a websocket subscription to per-symbol ticker topics
// and pushes every quote it receives into the sink.
type Stream struct {
	endpoint string
	config   Config
	sink     QuoteSink
	logger   *log.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	// topics holds the currently wanted symbols for resubscription
	// after reconnect
	topics   map[string]struct{}
	topicsMu sync.RWMutex

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup

	// reconnecting indicates reconnection in progress
	reconnecting atomic.Bool
}

// NewStream connects to the endpoint and starts the read and ping
// loops. Symbols are added later via SetSymbols.
func NewStream(ctx context.Context, endpoint string, sink QuoteSink, config *Config, logger *log.Logger) (*Stream, error) {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}

	s := &Stream{
		endpoint: endpoint,
		config:   cfg,
		sink:     sink,
		logger:   logger,
		topics:   make(map[string]struct{}),
		done:     make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.readLoop()

	s.wg.Add(1)
	go s.pingLoop()

	return s, nil
}

// connect establishes the websocket connection.
func (s *Stream) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.conn = conn
	return nil
}

// SetSymbols reconciles the subscription set with the given symbols,
// subscribing to new ones and unsubscribing from dropped ones.
func (s *Stream) SetSymbols(symbols []string) {
	if s.closed.Load() {
		return
	}

	want := make(map[string]struct{}, len(symbols))
	for _, symbol := range symbols {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol != "" {
			want[symbol] = struct{}{}
		}
	}

	var subscribe, unsubscribe []string

	s.topicsMu.Lock()
	for symbol := range want {
		if _, ok := s.topics[symbol]; !ok {
			subscribe = append(subscribe, tickerTopicPrefix+symbol)
		}
	}
	for symbol := range s.topics {
		if _, ok := want[symbol]; !ok {
			unsubscribe = append(unsubscribe, tickerTopicPrefix+symbol)
		}
	}
	s.topics = want
	s.topicsMu.Unlock()

	sort.Strings(subscribe)
	sort.Strings(unsubscribe)

	if len(subscribe) > 0 {
		if err := s.send(wsCommand{Op: "subscribe", Args: subscribe}); err != nil {
			s.logger.Printf("[WARN] feed: subscribe: %v", err)
		}
	}
	if len(unsubscribe) > 0 {
		if err := s.send(wsCommand{Op: "unsubscribe", Args: unsubscribe}); err != nil {
			s.logger.Printf("[WARN] feed: unsubscribe: %v", err)
		}
	}
}

// Close closes the websocket connection and waits for the loops.
func (s *Stream) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	return nil
}

// send writes a command under the connection mutex.
func (s *Stream) send(cmd wsCommand) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("not connected")
	}

	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("write %s: %w", cmd.Op, err)
	}
	return nil
}

// readLoop reads messages and dispatches quotes to the sink.
func (s *Stream) readLoop() {
	defer s.wg.Done()

	reconnectDelay := s.config.ReconnectDelay

	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}

			// Connection error - reconnect with exponential backoff
			if !s.reconnecting.Swap(true) {
				go s.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > s.config.MaxReconnectDelay {
				reconnectDelay = s.config.MaxReconnectDelay
			}

			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = s.config.ReconnectDelay

		s.handleMessage(message)
	}
}

// reconnect attempts to reconnect and resubscribe.
func (s *Stream) reconnect(delay time.Duration) {
	defer s.reconnecting.Store(false)

	if s.closed.Load() {
		return
	}

	select {
	case <-s.done:
		return
	case <-time.After(delay):
	}

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		// Reconnect failed, will retry on next read error
		return
	}

	s.resubscribeAll()
}

// resubscribeAll restores the ticker subscriptions after reconnect.
func (s *Stream) resubscribeAll() {
	s.topicsMu.RLock()
	topics := make([]string, 0, len(s.topics))
	for symbol := range s.topics {
		topics = append(topics, tickerTopicPrefix+symbol)
	}
	s.topicsMu.RUnlock()

	if len(topics) == 0 {
		return
	}
	sort.Strings(topics)

	if err := s.send(wsCommand{Op: "subscribe", Args: topics}); err != nil {
		s.logger.Printf("[WARN] feed: resubscribe: %v", err)
	}
}

// handleMessage processes one incoming websocket message.
func (s *Stream) handleMessage(message []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		return
	}

	// Operation acknowledgements and pongs carry no quote data.
	if env.Op != "" {
		if env.Success != nil && !*env.Success {
			s.logger.Printf("[WARN] feed: %s rejected: %s", env.Op, env.RetMsg)
		}
		return
	}

	if !strings.HasPrefix(env.Topic, tickerTopicPrefix) || env.Data == nil {
		return
	}

	s.handleTicker(env.Topic, env.Data, env.TS)
}

// handleTicker converts a ticker frame into a quote. Delta frames omit
// unchanged fields; a frame with no usable price is dropped.
func (s *Stream) handleTicker(topic string, data *tickerData, ts int64) {
	symbol := data.Symbol
	if symbol == "" {
		symbol = strings.TrimPrefix(topic, tickerTopicPrefix)
	}

	bid := parsePrice(data.Bid1Price)
	ask := parsePrice(data.Ask1Price)
	last := parsePrice(data.LastPrice)
	if bid <= 0 && ask <= 0 && last <= 0 {
		return
	}

	at := time.Now().UTC()
	if ts > 0 {
		at = time.UnixMilli(ts).UTC()
	}

	s.sink.Put(domain.NewQuote(symbol, bid, ask, last, at))
}

// parsePrice returns 0 for the empty strings delta frames carry.
func parsePrice(raw string) float64 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}

// pingLoop sends periodic keepalive pings expected by the venue.
func (s *Stream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.send(wsCommand{Op: "ping"}); err != nil {
				// Connection might be dead, reader will handle reconnect
				continue
			}
		}
	}
}

// Websocket message types

type wsCommand struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
}

type wsEnvelope struct {
	Op      string      `json:"op,omitempty"`
	Success *bool       `json:"success,omitempty"`
	RetMsg  string      `json:"ret_msg,omitempty"`
	Topic   string      `json:"topic,omitempty"`
	TS      int64       `json:"ts,omitempty"`
	Data    *tickerData `json:"data,omitempty"`
}

type tickerData struct {
	Symbol    string `json:"symbol"`
	Bid1Price string `json:"bid1Price"`
	Ask1Price string `json:"ask1Price"`
	LastPrice string `json:"lastPrice"`
}
