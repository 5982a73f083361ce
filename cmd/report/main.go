// Package main generates an outcome report over the persisted
// completed-order archive: summary statistics, a per-channel breakdown,
// and the individual completions as CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"signal-engine/internal/reporting"
	pgstore "signal-engine/internal/storage/postgres"
)

func main() {
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	outputDir := flag.String("output-dir", "output", "Output directory for generated files")
	toStdout := flag.Bool("stdout", false, "Print the Markdown report to stdout instead of writing files")
	flag.Parse()

	if *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn (or POSTGRES_DSN) is required")
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to postgres: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	generator := reporting.NewGenerator(pgstore.NewCompletedOrderStore(pool))
	report, err := generator.Generate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	markdown := reporting.RenderMarkdown(report)

	if *toStdout {
		fmt.Print(markdown)
		return
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	reportPath := filepath.Join(*outputDir, "REPORT.md")
	if err := os.WriteFile(reportPath, []byte(markdown), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", reportPath, err)
		os.Exit(1)
	}

	csvPath := filepath.Join(*outputDir, "completions.csv")
	if err := os.WriteFile(csvPath, []byte(reporting.RenderCSV(report.Completions)), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", csvPath, err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %s and %s (%d completions across %d channels)\n",
		reportPath, csvPath, len(report.Completions), len(report.ChannelMetrics))
}
