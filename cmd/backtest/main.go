package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"orb-strategy-lab/internal/domain"
	"orb-strategy-lab/internal/metrics"
	"orb-strategy-lab/internal/reporting"
	"orb-strategy-lab/internal/runner"
	"orb-strategy-lab/internal/state"
	"orb-strategy-lab/internal/storage"
	chstore "orb-strategy-lab/internal/storage/clickhouse"
	"orb-strategy-lab/internal/storage/memory"
	"orb-strategy-lab/internal/storage/migrations"
	pgstore "orb-strategy-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	symbol := flag.String("symbol", "", "Symbol to backtest (required)")
	tf := flag.String("tf", "5m", "Bar timeframe")
	configPath := flag.String("config", "", "JSON config file overlaying the defaults")
	barsFile := flag.String("bars-file", "", "JSON file with the bar array (instead of ClickHouse)")
	runID := flag.String("run-id", "", "Run ID for snapshots (required with --resume or --persist)")

	// Storage
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage")

	// Behavior
	resume := flag.Bool("resume", false, "Resume from the latest stored snapshot")
	persist := flag.Bool("persist", false, "Persist trades and the final snapshot")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	reportPath := flag.String("report", "", "Write a Markdown report to this path")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stderr, "[backtest] ", log.LstdFlags)

	// Validate required flags
	if *symbol == "" {
		logger.Fatal("--symbol is required")
	}
	if (*resume || *persist) && *runID == "" {
		logger.Fatal("--run-id is required with --resume or --persist")
	}

	ctx := context.Background()

	// Build config
	cfg := domain.DefaultRunnerConfig(*symbol, *tf)
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			logger.Fatalf("read config: %v", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			logger.Fatalf("parse config: %v", err)
		}
		cfg.Symbol = *symbol
		cfg.TF = *tf
	}

	// Create stores
	var barStore storage.BarStore = memory.NewBarStore()
	var tradeStore storage.TradeRecordStore = memory.NewTradeRecordStore()
	var snapStore storage.SnapshotStore = memory.NewSnapshotStore()

	if !*useMemory {
		if *postgresDSN != "" {
			pool, err := pgstore.NewPool(ctx, *postgresDSN)
			if err != nil {
				logger.Fatalf("connect to postgres: %v", err)
			}
			defer pool.Close()
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				logger.Fatalf("postgres migrations: %v", err)
			}
			tradeStore = pgstore.NewTradeRecordStore(pool)
			snapStore = pgstore.NewSnapshotStore(pool)
		}
		if *clickhouseDSN != "" {
			conn, err := migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
			if err != nil {
				logger.Fatalf("clickhouse migrations: %v", err)
			}
			defer conn.Close()
			barStore = chstore.NewBarStore(conn)
		}
	}

	// Load bars
	var bars []domain.Bar
	if *barsFile != "" {
		var err error
		bars, err = loadBarsFile(*barsFile)
		if err != nil {
			logger.Fatalf("load bars: %v", err)
		}
	} else {
		stored, err := barStore.GetBySymbolTF(ctx, *symbol, *tf)
		if err != nil {
			logger.Fatalf("load bars from store: %v", err)
		}
		for _, b := range stored {
			bars = append(bars, *b)
		}
	}
	if len(bars) == 0 {
		logger.Fatal("no bars to process")
	}

	// Create runner
	r, err := runner.New(runner.Options{Config: cfg})
	if err != nil {
		logger.Fatalf("create runner: %v", err)
	}

	// Resume from the latest snapshot, skipping bars it already covers
	if *resume {
		data, err := snapStore.GetLatest(ctx, *runID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			logger.Printf("no snapshot for run %s, starting fresh", *runID)
		case err != nil:
			logger.Fatalf("load snapshot: %v", err)
		default:
			snap, err := state.Decode(data)
			if err != nil {
				logger.Fatalf("decode snapshot: %v", err)
			}
			if err := r.LoadState(snap); err != nil {
				logger.Fatalf("restore state: %v", err)
			}
			trimmed := bars[:0]
			for _, b := range bars {
				if b.TimestampMs > snap.Meta.LastTimestamp {
					trimmed = append(trimmed, b)
				}
			}
			bars = trimmed
			logger.Printf("resumed at %d, %d bars remaining", snap.Meta.LastTimestamp, len(bars))
		}
	}

	logger.Printf("running backtest: symbol=%s tf=%s bars=%d", *symbol, *tf, len(bars))
	m := r.Run(bars)

	// Persist trades and the final snapshot
	closed := r.Trades()
	recs := make([]*domain.TradeRecord, 0, len(closed))
	for i := range closed {
		recs = append(recs, &closed[i])
	}

	if *persist {
		if err := tradeStore.InsertBulk(ctx, recs); err != nil {
			logger.Fatalf("persist trades: %v", err)
		}

		snap := r.ExportState()
		data, err := state.Encode(snap)
		if err != nil {
			logger.Fatalf("encode snapshot: %v", err)
		}
		if err := snapStore.Put(ctx, *runID, snap.Meta.LastTimestamp, data); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			logger.Fatalf("persist snapshot: %v", err)
		}
	}

	// Aggregate and report
	agg := metrics.ComputeRunAggregate(*symbol, recs)
	report := reporting.NewReport(agg, m.Debug, r.TLowerBound())

	if *reportPath != "" {
		if err := os.WriteFile(*reportPath, []byte(reporting.RenderMarkdown(report)), 0o644); err != nil {
			logger.Fatalf("write report: %v", err)
		}
		logger.Printf("report written to %s", *reportPath)
	}

	if *outputJSON {
		output, _ := json.MarshalIndent(struct {
			Aggregate *domain.RunAggregate `json:"aggregate"`
			Metrics   *domain.RunMetrics   `json:"metrics"`
		}{agg, m}, "", "  ")
		fmt.Println(string(output))
		return
	}

	printSummary(agg, m)
}

// loadBarsFile reads a JSON array of bars.
func loadBarsFile(path string) ([]domain.Bar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bars file: %w", err)
	}
	var bars []domain.Bar
	if err := json.Unmarshal(data, &bars); err != nil {
		return nil, fmt.Errorf("parse bars file: %w", err)
	}
	return bars, nil
}

// printSummary outputs a human-readable run summary.
func printSummary(agg *domain.RunAggregate, m *domain.RunMetrics) {
	fmt.Println()
	fmt.Println("=== Backtest Result ===")
	fmt.Printf("Symbol:             %s\n", agg.Symbol)
	fmt.Printf("Trades:             %d\n", agg.TotalTrades)
	fmt.Printf("Win Rate:           %.4f\n", agg.WinRate)
	fmt.Printf("Total Pips:         %.4f\n", agg.PnlTotal)
	fmt.Printf("Mean Pips:          %.4f\n", agg.PnlMean)
	fmt.Printf("Max Drawdown:       %.4f\n", agg.MaxDrawdownPips)
	fmt.Printf("Max Consec Losses:  %d\n", agg.MaxConsecutiveLosses)
	fmt.Printf("No Breakout:        %d\n", m.Debug.NoBreakout)
	fmt.Printf("Gate Block:         %d\n", m.Debug.GateBlock)
	fmt.Printf("EV Reject:          %d\n", m.Debug.EVReject)
	fmt.Printf("EV Bypass:          %d\n", m.Debug.EVBypass)
	fmt.Printf("Bad Bars:           %d\n", m.Debug.BadBars)
}
