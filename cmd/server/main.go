// Package main runs the live signal engine: the monitor loop, the price
// feed, and the HTTP API for intake and operators, wired to PostgreSQL
// and ClickHouse (or in-memory stores for local runs).
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"signal-engine/internal/config"
	"signal-engine/internal/dedup"
	"signal-engine/internal/domain"
	"signal-engine/internal/exchange"
	"signal-engine/internal/feed"
	"signal-engine/internal/health"
	"signal-engine/internal/httpapi"
	"signal-engine/internal/ingest"
	"signal-engine/internal/monitor"
	"signal-engine/internal/notify"
	"signal-engine/internal/oracle"
	"signal-engine/internal/orders"
	"signal-engine/internal/publish"
	"signal-engine/internal/risk"
	"signal-engine/internal/sizing"
	"signal-engine/internal/stats"
	"signal-engine/internal/storage"
	chstore "signal-engine/internal/storage/clickhouse"
	"signal-engine/internal/storage/memory"
	"signal-engine/internal/storage/migrations"
	pgstore "signal-engine/internal/storage/postgres"
)

// seedLimit caps how many archived completions are loaded back into the
// state machine on startup. The sizer's recent-window statistics need
// far fewer; the rest is history the report command serves better.
const seedLimit = 200

// priceLookupTimeout bounds the per-call oracle fetch during sizing.
const priceLookupTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stores
	stores, cleanup, err := createStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Price oracle over the HTTP ticker source
	source := oracle.NewHTTPSource(cfg.Oracle.BaseURL,
		oracle.WithCategory(cfg.Oracle.Category),
		oracle.WithRateLimit(cfg.Oracle.RateLimit, cfg.Oracle.RateBurst),
		oracle.WithSourceLogger(logger),
	)
	orc := oracle.New(source,
		oracle.WithTTL(cfg.Oracle.CacheTTL),
		oracle.WithLogger(logger),
	)

	// Order state machine, seeded with archived completions so the
	// sizer's statistics survive restarts
	machine := orders.New(
		orders.WithExpiry(cfg.Engine.OrderExpiry),
		orders.WithLogger(logger),
	)
	if err := seedMachine(ctx, machine, stores.orderStore); err != nil {
		logger.Printf("Warning: could not seed completed orders: %v", err)
	}

	// Dedup ledger, reloaded from storage so the cooldown window
	// survives restarts too
	dd := dedup.New(
		dedup.WithCooldown(cfg.Engine.DedupCooldown),
		dedup.WithStore(stores.signalStore),
		dedup.WithLogger(logger),
	)
	if err := dd.Load(ctx, time.Now()); err != nil {
		logger.Printf("Warning: could not load dedup ledger: %v", err)
	}

	// Channel risk limits, hot-reloaded when the file changes
	gate, err := risk.NewEngine(cfg.RiskLimitsPath, logger)
	if err != nil {
		logger.Fatalf("Failed to load risk limits: %v", err)
	}

	// Position sizer fed by live statistics and oracle prices
	sizer := sizing.New(
		sizing.StatsFunc(func() domain.OutcomeStatistics {
			return stats.Compute(machine.ListCompleted())
		}),
		func(symbol string) (float64, bool) {
			callCtx, callCancel := context.WithTimeout(ctx, priceLookupTimeout)
			defer callCancel()
			q, err := orc.Price(callCtx, symbol)
			if err != nil {
				return 0, false
			}
			return q.Mid, true
		},
		sizing.WithBaseRiskPct(cfg.Engine.BaseRiskPct),
		sizing.WithLogger(logger),
	)

	// Execution venue
	venue, err := createVenue(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to create venue: %v", err)
	}

	intake, err := ingest.New(ingest.Options{
		Dedup:   dd,
		Machine: machine,
		Gate:    gate,
		Sizer:   sizer,
		Venue:   venue,
		Balance: cfg.Engine.AccountBalance,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create intake pipeline: %v", err)
	}

	tracker := health.NewTracker()
	publisher := publish.New(
		publish.WithMinInterval(cfg.Engine.MinPushInterval),
		publish.WithLogger(logger),
	)

	api, err := httpapi.New(httpapi.Options{
		Machine:   machine,
		Intake:    intake,
		Health:    tracker,
		JWTSecret: cfg.Server.JWTSecret,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create HTTP API: %v", err)
	}

	sinks := []publish.Sink{api}
	if cfg.Telegram.BotToken != "" {
		notifier, err := notify.New(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
		if err != nil {
			logger.Fatalf("Failed to create telegram notifier: %v", err)
		}
		sinks = append(sinks, notifier)
	}

	loop, err := monitor.New(monitor.Options{
		Oracle:       orc,
		Machine:      machine,
		Dedup:        dd,
		Publisher:    publisher,
		Sinks:        sinks,
		OrderStore:   stores.orderStore,
		QuoteArchive: stores.quoteArchive,
		Health:       tracker,
		TickInterval: cfg.Engine.TickInterval,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create monitor loop: %v", err)
	}

	// Optional websocket feed keeps the oracle cache warm between ticks
	var stream *feed.Stream
	if cfg.Feed.WSEndpoint != "" {
		stream, err = feed.NewStream(ctx, cfg.Feed.WSEndpoint, orc, nil, logger)
		if err != nil {
			logger.Fatalf("Failed to connect price feed: %v", err)
		}
		defer stream.Close()
	}

	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: api.Router(),
	}

	done := make(chan struct{})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := loop.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("monitor loop: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Printf("HTTP API listening on %s", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if cfg.RiskLimitsPath != "" {
		g.Go(func() error {
			if err := gate.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("risk limits watcher: %w", err)
			}
			return nil
		})
	}

	if stream != nil {
		g.Go(func() error {
			syncFeedSymbols(gctx, stream, machine, cfg.Engine.TickInterval)
			return nil
		})
	}

	err = g.Wait()
	close(done)

	if err != nil {
		logger.Fatalf("Server error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// engineStores holds the persistence behind the monitor loop.
type engineStores struct {
	orderStore   storage.CompletedOrderStore
	signalStore  storage.ExecutedSignalStore
	quoteArchive storage.QuoteArchive
}

// createStores builds the configured stores and runs migrations. An
// empty DSN selects the in-memory implementation for that store, so a
// bare environment still runs end to end.
func createStores(ctx context.Context, cfg *config.Config, logger *log.Logger) (*engineStores, func(), error) {
	stores := &engineStores{
		orderStore:   memory.NewCompletedOrderStore(),
		signalStore:  memory.NewExecutedSignalStore(),
		quoteArchive: memory.NewQuoteArchive(),
	}
	cleanups := []func(){}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if cfg.Postgres.DSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		cleanups = append(cleanups, pool.Close)

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}

		stores.orderStore = pgstore.NewCompletedOrderStore(pool)
		stores.signalStore = pgstore.NewExecutedSignalStore(pool)
		logger.Println("Using PostgreSQL for orders and the dedup ledger")
	} else {
		logger.Println("POSTGRES_DSN not set, orders and the dedup ledger are in-memory")
	}

	if cfg.ClickHouse.DSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		cleanups = append(cleanups, func() { conn.Close() })

		stores.quoteArchive = chstore.NewQuoteArchive(conn)
		logger.Println("Using ClickHouse for the quote archive")
	} else {
		logger.Println("CLICKHOUSE_DSN not set, quote archive is in-memory")
	}

	return stores, cleanup, nil
}

// createVenue selects the paper venue unless a live venue is configured.
func createVenue(cfg *config.Config, logger *log.Logger) (exchange.OrderPlacer, error) {
	if cfg.UsePaperVenue() {
		logger.Println("VENUE_BASE_URL not set, placements go to the paper venue")
		return exchange.NewPaperVenue(logger), nil
	}
	return exchange.NewRESTVenue(cfg.Venue.BaseURL, cfg.Venue.APIKey, cfg.Venue.APISecret,
		exchange.WithVenueLogger(logger))
}

// seedMachine loads recent archived completions back into the state
// machine so outcome statistics pick up where the last run stopped.
func seedMachine(ctx context.Context, machine *orders.Machine, store storage.CompletedOrderStore) error {
	records, err := store.GetRecent(ctx, seedLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	seeded := make([]domain.Order, len(records))
	for i, r := range records {
		seeded[i] = r.Order()
	}
	machine.SeedCompleted(seeded)
	return nil
}

// syncFeedSymbols keeps the websocket subscriptions aligned with the
// set of symbols that still have non-completed orders.
func syncFeedSymbols(ctx context.Context, stream *feed.Stream, machine *orders.Machine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stream.SetSymbols(machine.ActiveSymbols())
		}
	}
}
