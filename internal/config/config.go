// Package config loads engine settings from the environment, with an
// optional .env file for local runs. Every knob has a default; only
// inconsistent combinations fail validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries all engine settings.
type Config struct {
	Server         ServerConfig
	Postgres       PostgresConfig
	ClickHouse     ClickHouseConfig
	Oracle         OracleConfig
	Feed           FeedConfig
	Venue          VenueConfig
	Engine         EngineConfig
	Telegram       TelegramConfig
	RiskLimitsPath string
}

// ServerConfig is the HTTP API surface.
type ServerConfig struct {
	ListenAddr string
	JWTSecret  string // empty leaves POST /signals unauthenticated
}

type PostgresConfig struct {
	DSN string
}

type ClickHouseConfig struct {
	DSN string
}

// OracleConfig drives the price cache and its HTTP ticker source.
type OracleConfig struct {
	BaseURL   string
	Category  string
	CacheTTL  time.Duration
	RateLimit float64
	RateBurst int
}

// FeedConfig drives the websocket ticker stream. An empty endpoint
// disables the stream; the oracle then refreshes over HTTP only.
type FeedConfig struct {
	WSEndpoint string
}

// VenueConfig selects the execution venue. An empty base URL selects
// the paper venue.
type VenueConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
}

// EngineConfig tunes the core lifecycle components.
type EngineConfig struct {
	TickInterval    time.Duration
	DedupCooldown   time.Duration
	OrderExpiry     time.Duration
	MinPushInterval time.Duration
	AccountBalance  float64
	BaseRiskPct     float64
}

// TelegramConfig drives completion notifications. An empty token
// disables them.
type TelegramConfig struct {
	BotToken string
	ChatID   int64
}

// Load reads the optional .env file, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using environment variables")
	}

	chatID, err := getEnvInt64("TELEGRAM_CHAT_ID", "0")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := getEnvDuration("PRICE_CACHE_TTL", "5s")
	if err != nil {
		return nil, err
	}
	rateLimit, err := getEnvFloat("PRICE_RATE_LIMIT", "10")
	if err != nil {
		return nil, err
	}
	rateBurst, err := getEnvInt("PRICE_RATE_BURST", "5")
	if err != nil {
		return nil, err
	}
	tickInterval, err := getEnvDuration("TICK_INTERVAL", "20s")
	if err != nil {
		return nil, err
	}
	dedupCooldown, err := getEnvDuration("DEDUP_COOLDOWN", "4h")
	if err != nil {
		return nil, err
	}
	orderExpiry, err := getEnvDuration("ORDER_EXPIRY", "12h")
	if err != nil {
		return nil, err
	}
	minPushInterval, err := getEnvDuration("MIN_PUSH_INTERVAL", "15s")
	if err != nil {
		return nil, err
	}
	accountBalance, err := getEnvFloat("ACCOUNT_BALANCE", "10000")
	if err != nil {
		return nil, err
	}
	baseRiskPct, err := getEnvFloat("BASE_RISK_PCT", "2.0")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			ListenAddr: getEnv("HTTP_ADDR", ":8080"),
			JWTSecret:  getEnv("JWT_SECRET", ""),
		},
		Postgres: PostgresConfig{
			DSN: getEnv("POSTGRES_DSN", ""),
		},
		ClickHouse: ClickHouseConfig{
			DSN: getEnv("CLICKHOUSE_DSN", ""),
		},
		Oracle: OracleConfig{
			BaseURL:   getEnv("PRICE_BASE_URL", "https://api.bybit.com"),
			Category:  getEnv("PRICE_CATEGORY", "linear"),
			CacheTTL:  cacheTTL,
			RateLimit: rateLimit,
			RateBurst: rateBurst,
		},
		Feed: FeedConfig{
			WSEndpoint: getEnv("PRICE_WS_ENDPOINT", ""),
		},
		Venue: VenueConfig{
			BaseURL:   getEnv("VENUE_BASE_URL", ""),
			APIKey:    getEnv("VENUE_API_KEY", ""),
			APISecret: getEnv("VENUE_API_SECRET", ""),
		},
		Engine: EngineConfig{
			TickInterval:    tickInterval,
			DedupCooldown:   dedupCooldown,
			OrderExpiry:     orderExpiry,
			MinPushInterval: minPushInterval,
			AccountBalance:  accountBalance,
			BaseRiskPct:     baseRiskPct,
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   chatID,
		},
		RiskLimitsPath: getEnv("RISK_LIMITS_PATH", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects inconsistent combinations. Absent optional features
// (live venue, telegram, databases) are fine; half-configured ones are
// not.
func (c *Config) Validate() error {
	if c.Venue.BaseURL != "" {
		if c.Venue.APIKey == "" {
			return fmt.Errorf("VENUE_API_KEY is required when VENUE_BASE_URL is set")
		}
		if c.Venue.APISecret == "" {
			return fmt.Errorf("VENUE_API_SECRET is required when VENUE_BASE_URL is set")
		}
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	if c.Engine.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive")
	}
	if c.Engine.DedupCooldown <= 0 {
		return fmt.Errorf("DEDUP_COOLDOWN must be positive")
	}
	if c.Engine.OrderExpiry <= 0 {
		return fmt.Errorf("ORDER_EXPIRY must be positive")
	}
	return nil
}

// UsePaperVenue reports whether orders go to the built-in paper venue.
func (c *Config) UsePaperVenue() bool {
	return c.Venue.BaseURL == ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key, defaultValue string) (int, error) {
	v, err := strconv.Atoi(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvInt64(key, defaultValue string) (int64, error) {
	v, err := strconv.ParseInt(getEnv(key, defaultValue), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvFloat(key, defaultValue string) (float64, error) {
	v, err := strconv.ParseFloat(getEnv(key, defaultValue), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key, defaultValue string) (time.Duration, error) {
	v, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
