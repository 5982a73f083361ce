// Package main replays a scripted event file through a fresh engine
// instance. The same script always produces the same orders,
// transitions and statistics, which makes it the tool of choice for
// reproducing lifecycle bugs from the field.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signal-engine/internal/replay"
)

func main() {
	scriptPath := flag.String("script", "", "Path to the JSONL event script (required, \"-\" for stdin)")
	cooldown := flag.Duration("cooldown", 0, "Dedup cooldown window (0 = engine default)")
	orderExpiry := flag.Duration("order-expiry", 0, "No-entry order expiry (0 = engine default)")
	minPushInterval := flag.Duration("min-push-interval", 0, "Publisher min push interval (0 = engine default)")
	balance := flag.Float64("balance", 0, "Account balance sized against (0 = default)")
	baseRiskPct := flag.Float64("base-risk-pct", 0, "Base risk percentage (0 = engine default)")
	outputJSON := flag.Bool("json", false, "Output the summary as JSON")
	verbose := flag.Bool("verbose", false, "Log every engine pass to stderr")

	flag.Parse()

	logger := log.New(os.Stderr, "[replay] ", log.LstdFlags)

	if *scriptPath == "" {
		logger.Fatal("--script is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	events, err := loadEvents(*scriptPath)
	if err != nil {
		logger.Fatalf("load script: %v", err)
	}
	if len(events) == 0 {
		logger.Fatal("script contains no events")
	}

	runnerLogger := logger
	if !*verbose {
		runnerLogger = log.New(io.Discard, "", 0)
	}

	runner, err := replay.NewRunner(replay.Options{
		Events:          events,
		Cooldown:        *cooldown,
		OrderExpiry:     *orderExpiry,
		MinPushInterval: *minPushInterval,
		Balance:         *balance,
		BaseRiskPct:     *baseRiskPct,
		Logger:          runnerLogger,
	})
	if err != nil {
		logger.Fatalf("create runner: %v", err)
	}

	started := time.Now()
	summary, err := runner.Run(ctx)
	if err != nil {
		logger.Fatalf("replay failed: %v", err)
	}
	logger.Printf("replayed %d events in %v", summary.Events, time.Since(started).Round(time.Millisecond))

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			logger.Fatalf("encode summary: %v", err)
		}
		return
	}

	printSummary(summary)
}

// loadEvents reads the script from a file or stdin.
func loadEvents(path string) ([]*replay.Event, error) {
	if path == "-" {
		return replay.LoadScript(os.Stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return replay.LoadScript(f)
}

func printSummary(s *replay.Summary) {
	fmt.Printf("Replay: %s .. %s\n", s.Start.Format(time.RFC3339), s.End.Format(time.RFC3339))
	fmt.Printf("  events:             %d (%d ticks, %d signals)\n", s.Events, s.TickEvents, s.SignalEvents)
	fmt.Printf("  signals accepted:   %d\n", s.SignalsAccepted)
	fmt.Printf("  signals rejected:   %d\n", s.SignalsRejected)
	fmt.Printf("  placement failures: %d\n", s.PlacementFailures)
	fmt.Printf("  engine passes:      %d\n", s.EnginePasses)
	fmt.Printf("  snapshots emitted:  %d\n", s.Snapshots)
	fmt.Printf("  orders:             %d active, %d completed\n", s.ActiveOrders, s.CompletedOrders)

	st := s.Stats
	fmt.Printf("Outcomes: %d trades, %d wins, %d losses\n", st.TotalTrades, st.WinningTrades, st.LosingTrades)
	if st.TotalTrades > 0 {
		fmt.Printf("  overall win rate:  %.1f%%\n", st.OverallWinRate*100)
		fmt.Printf("  recent win rate:   %.1f%%\n", st.RecentWinRate*100)
		fmt.Printf("  profit factor:     %.2f\n", st.ProfitFactor)
		fmt.Printf("  avg profit/loss:   %.2f%% / %.2f%%\n", st.AverageProfit, st.AverageLoss)
		fmt.Printf("  max streaks:       %d wins, %d losses\n", st.MaxConsecutiveWins, st.MaxConsecutiveLosses)
	}
}
