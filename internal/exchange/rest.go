package exchange

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"signal-engine/internal/observability"
	"signal-engine/internal/retry"
)

const (
	// defaultRecvWindow is how long the venue accepts a signed request
	// after its timestamp, in milliseconds.
	defaultRecvWindow = "5000"

	orderEndpoint = "/api/v1/order"
)

// RESTVenue places orders against an ed25519-signed REST API. The API
// key is the base58 public key; each request carries a detached
// signature over timestamp, receive window and body.
type RESTVenue struct {
	baseURL    string
	publicKey  string // base58, sent as the API key header
	privateKey ed25519.PrivateKey
	recvWindow string
	httpClient *http.Client
	retry      retry.Policy
	logger     *log.Logger
}

// VenueOption configures a RESTVenue.
type VenueOption func(*RESTVenue)

// WithVenueHTTPClient sets a custom HTTP client.
func WithVenueHTTPClient(client *http.Client) VenueOption {
	return func(v *RESTVenue) {
		if client != nil {
			v.httpClient = client
		}
	}
}

// WithVenueRetryPolicy overrides the retry behavior for placements.
func WithVenueRetryPolicy(p retry.Policy) VenueOption {
	return func(v *RESTVenue) {
		v.retry = p
	}
}

// WithVenueLogger sets a custom logger.
func WithVenueLogger(logger *log.Logger) VenueOption {
	return func(v *RESTVenue) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewRESTVenue builds a venue client from base58-encoded key material.
// The secret is the 32-byte ed25519 seed; the public key must match the
// one derived from it and must be a valid curve point, so a mispasted
// credential fails here instead of on the first live order.
func NewRESTVenue(baseURL, apiKey, apiSecret string, opts ...VenueOption) (*RESTVenue, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("venue: missing base url")
	}

	pub, err := base58.Decode(apiKey)
	if err != nil {
		return nil, fmt.Errorf("venue: decode api key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("venue: api key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	if _, err := new(edwards25519.Point).SetBytes(pub); err != nil {
		return nil, fmt.Errorf("venue: api key is not a valid curve point: %w", err)
	}

	seed, err := base58.Decode(apiSecret)
	if err != nil {
		return nil, fmt.Errorf("venue: decode api secret: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("venue: api secret must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	if !bytes.Equal(priv.Public().(ed25519.PublicKey), pub) {
		return nil, fmt.Errorf("venue: api key does not match the secret's public key")
	}

	v := &RESTVenue{
		baseURL:    baseURL,
		publicKey:  apiKey,
		privateKey: priv,
		recvWindow: defaultRecvWindow,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		retry:  retry.Default(),
		logger: log.Default(),
	}

	for _, opt := range opts {
		opt(v)
	}

	return v, nil
}

var _ OrderPlacer = (*RESTVenue)(nil)

type orderPayload struct {
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	OrderType string `json:"orderType"`
	Quantity  string `json:"qty"`
	Price     string `json:"price,omitempty"`
}

type orderResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		OrderID string `json:"orderId"`
		Symbol  string `json:"symbol"`
	} `json:"data"`
}

// PlaceOrder submits the order, retrying transport faults under the
// policy. Venue rejections come back wrapped in ErrVenueRejected and are
// never retried: a rejected order resubmitted blind is how positions get
// doubled.
func (v *RESTVenue) PlaceOrder(ctx context.Context, req OrderRequest) (OrderReceipt, error) {
	if err := req.Validate(); err != nil {
		return OrderReceipt{}, err
	}

	payload := orderPayload{
		Symbol:    req.Symbol,
		Side:      venueSide(req.Side),
		OrderType: string(req.Type),
		Quantity:  strconv.FormatFloat(req.Quantity, 'f', -1, 64),
	}
	if req.Type == OrderTypeLimit {
		payload.Price = strconv.FormatFloat(req.Price, 'f', -1, 64)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return OrderReceipt{}, fmt.Errorf("venue: marshal order: %w", err)
	}

	var receipt OrderReceipt
	err = v.retry.Do(ctx, fmt.Sprintf("place order %s", req.Symbol), func(ctx context.Context) error {
		start := time.Now()
		got, err := v.submit(ctx, body)
		observability.RecordVenueCall("place_order", time.Since(start).Seconds(), err)
		if err != nil {
			return err
		}
		receipt = got
		return nil
	})
	if err != nil {
		return OrderReceipt{}, err
	}

	receipt.Symbol = req.Symbol
	receipt.Side = req.Side
	receipt.Quantity = req.Quantity
	receipt.Price = req.Price

	return receipt, nil
}

func (v *RESTVenue) submit(ctx context.Context, body []byte) (OrderReceipt, error) {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+orderEndpoint, bytes.NewReader(body))
	if err != nil {
		return OrderReceipt{}, retry.Permanent(fmt.Errorf("venue: build request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-KEY", v.publicKey)
	httpReq.Header.Set("X-TIMESTAMP", timestamp)
	httpReq.Header.Set("X-RECV-WINDOW", v.recvWindow)
	httpReq.Header.Set("X-SIGNATURE", v.sign(timestamp, body))

	resp, err := v.httpClient.Do(httpReq)
	if err != nil {
		return OrderReceipt{}, fmt.Errorf("venue: order request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return OrderReceipt{}, fmt.Errorf("venue: read response: %w", err)
	}

	// 5xx is the venue's problem and worth retrying; 4xx is ours and is not.
	if resp.StatusCode >= 500 {
		return OrderReceipt{}, fmt.Errorf("venue: status %d: %s", resp.StatusCode, raw)
	}
	if resp.StatusCode != http.StatusOK {
		return OrderReceipt{}, retry.Permanent(fmt.Errorf("%w: status %d: %s", ErrVenueRejected, resp.StatusCode, raw))
	}

	var parsed orderResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return OrderReceipt{}, retry.Permanent(fmt.Errorf("venue: decode response: %w", err))
	}
	if parsed.Code != 0 {
		return OrderReceipt{}, retry.Permanent(fmt.Errorf("%w: code %d: %s", ErrVenueRejected, parsed.Code, parsed.Message))
	}
	if parsed.Data.OrderID == "" {
		return OrderReceipt{}, retry.Permanent(fmt.Errorf("venue: response missing order id"))
	}

	return OrderReceipt{
		VenueOrderID: parsed.Data.OrderID,
		PlacedAt:     time.Now().UTC(),
	}, nil
}

// sign produces the detached request signature: ed25519 over
// timestamp, receive window and body, base64-encoded.
func (v *RESTVenue) sign(timestamp string, body []byte) string {
	msg := make([]byte, 0, len(timestamp)+len(v.recvWindow)+len(body))
	msg = append(msg, timestamp...)
	msg = append(msg, v.recvWindow...)
	msg = append(msg, body...)
	return base64.StdEncoding.EncodeToString(ed25519.Sign(v.privateKey, msg))
}
