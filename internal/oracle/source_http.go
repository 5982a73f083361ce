package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"signal-engine/internal/domain"
	"signal-engine/internal/retry"
)

const (
	// DefaultBaseURL is the public Bybit REST endpoint.
	DefaultBaseURL = "https://api.bybit.com"

	// DefaultCategory is the instrument category queried for tickers.
	// Leveraged signals trade on the derivatives books.
	DefaultCategory = "linear"

	defaultRateLimit = 10 // requests per second
	defaultRateBurst = 5
)

// HTTPSource fetches quotes from a Bybit-shaped v5 tickers endpoint.
type HTTPSource struct {
	baseURL    string
	category   string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      retry.Policy
	logger     *log.Logger
}

// SourceOption configures an HTTPSource.
type SourceOption func(*HTTPSource)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) SourceOption {
	return func(s *HTTPSource) {
		s.httpClient = client
	}
}

// WithCategory sets the instrument category (spot, linear, inverse).
func WithCategory(category string) SourceOption {
	return func(s *HTTPSource) {
		if category != "" {
			s.category = category
		}
	}
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(rps float64, burst int) SourceOption {
	return func(s *HTTPSource) {
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetryPolicy overrides the retry behavior for ticker fetches.
func WithRetryPolicy(p retry.Policy) SourceOption {
	return func(s *HTTPSource) {
		s.retry = p
	}
}

// WithSourceLogger sets a custom logger.
func WithSourceLogger(logger *log.Logger) SourceOption {
	return func(s *HTTPSource) {
		s.logger = logger
	}
}

// NewHTTPSource creates an HTTP quote source for the given base URL.
// An empty base URL falls back to the public endpoint.
func NewHTTPSource(baseURL string, opts ...SourceOption) *HTTPSource {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	s := &HTTPSource{
		baseURL:  baseURL,
		category: DefaultCategory,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultRateBurst),
		retry:   retry.Default(),
		logger:  log.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type tickerResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []tickerEntry `json:"list"`
	} `json:"result"`
}

type tickerEntry struct {
	Symbol    string `json:"symbol"`
	Bid1Price string `json:"bid1Price"`
	Ask1Price string `json:"ask1Price"`
	LastPrice string `json:"lastPrice"`
}

// Quote fetches the current ticker for symbol. Transport failures are
// retried; venue rejections and malformed payloads are not.
func (s *HTTPSource) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	var q domain.Quote

	err := s.retry.Do(ctx, fmt.Sprintf("ticker %s", symbol), func(ctx context.Context) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}

		got, err := s.fetch(ctx, symbol)
		if err != nil {
			return err
		}
		q = got
		return nil
	})
	if err != nil {
		return domain.Quote{}, err
	}

	return q, nil
}

func (s *HTTPSource) fetch(ctx context.Context, symbol string) (domain.Quote, error) {
	params := url.Values{}
	params.Set("category", s.category)
	params.Set("symbol", symbol)

	endpoint := fmt.Sprintf("%s/v5/market/tickers?%s", s.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Quote{}, retry.Permanent(fmt.Errorf("build ticker request: %w", err))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("ticker request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, fmt.Errorf("ticker request: unexpected status %d", resp.StatusCode)
	}

	var body tickerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Quote{}, fmt.Errorf("decode ticker response: %w", err)
	}

	// Venue-level rejections are not transient.
	if body.RetCode != 0 {
		return domain.Quote{}, retry.Permanent(fmt.Errorf("ticker rejected: code %d: %s", body.RetCode, body.RetMsg))
	}
	if len(body.Result.List) == 0 {
		return domain.Quote{}, retry.Permanent(fmt.Errorf("no ticker data for %s", symbol))
	}

	entry := body.Result.List[0]

	bid, err := parsePrice(entry.Bid1Price)
	if err != nil {
		return domain.Quote{}, retry.Permanent(fmt.Errorf("parse bid price %q: %w", entry.Bid1Price, err))
	}
	ask, err := parsePrice(entry.Ask1Price)
	if err != nil {
		return domain.Quote{}, retry.Permanent(fmt.Errorf("parse ask price %q: %w", entry.Ask1Price, err))
	}
	last, err := parsePrice(entry.LastPrice)
	if err != nil {
		return domain.Quote{}, retry.Permanent(fmt.Errorf("parse last price %q: %w", entry.LastPrice, err))
	}

	name := entry.Symbol
	if name == "" {
		name = symbol
	}

	return domain.NewQuote(name, bid, ask, last, time.Now().UTC()), nil
}

// parsePrice tolerates the empty strings Bybit returns for halted books.
func parsePrice(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseFloat(raw, 64)
}
