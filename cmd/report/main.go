package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"orb-strategy-lab/internal/domain"
	"orb-strategy-lab/internal/metrics"
	"orb-strategy-lab/internal/reporting"
	pgstore "orb-strategy-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	symbol := flag.String("symbol", "", "Symbol to report on (required)")
	tradesFile := flag.String("trades-file", "", "JSON file with trade records (instead of PostgreSQL)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	outPath := flag.String("out", "", "Write the Markdown report to this path (default: stdout)")
	csvPath := flag.String("trades-csv", "", "Also write the trades as CSV to this path")
	outputJSON := flag.Bool("json", false, "Output the aggregate as JSON instead of Markdown")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stderr, "[report] ", log.LstdFlags)

	// Validate required flags
	if *symbol == "" {
		logger.Fatal("--symbol is required")
	}
	if *tradesFile == "" && *postgresDSN == "" {
		logger.Fatal("--trades-file or --postgres-dsn is required")
	}

	ctx := context.Background()

	// Load trades
	var trades []*domain.TradeRecord
	if *tradesFile != "" {
		data, err := os.ReadFile(*tradesFile)
		if err != nil {
			logger.Fatalf("read trades file: %v", err)
		}
		if err := json.Unmarshal(data, &trades); err != nil {
			logger.Fatalf("parse trades file: %v", err)
		}
	} else {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("connect to postgres: %v", err)
		}
		defer pool.Close()

		trades, err = pgstore.NewTradeRecordStore(pool).GetBySymbol(ctx, *symbol)
		if err != nil {
			logger.Fatalf("load trades: %v", err)
		}
	}

	logger.Printf("reporting on %d trades for %s", len(trades), *symbol)

	agg := metrics.ComputeRunAggregate(*symbol, trades)

	if *csvPath != "" {
		if err := os.WriteFile(*csvPath, []byte(reporting.RenderTradesCSV(trades)), 0o644); err != nil {
			logger.Fatalf("write trades csv: %v", err)
		}
		logger.Printf("trades csv written to %s", *csvPath)
	}

	if *outputJSON {
		output, _ := json.MarshalIndent(agg, "", "  ")
		fmt.Println(string(output))
		return
	}

	// Debug counters live in run snapshots, not trade records; the
	// report from stored trades carries zeros there.
	report := reporting.NewReport(agg, domain.DebugCounters{}, 0)
	md := reporting.RenderMarkdown(report)

	if *outPath != "" {
		if err := os.WriteFile(*outPath, []byte(md), 0o644); err != nil {
			logger.Fatalf("write report: %v", err)
		}
		logger.Printf("report written to %s", *outPath)
		return
	}
	fmt.Print(md)
}
