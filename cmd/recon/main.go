// Command recon is a one-shot CLI for triggering a reconciliation run
// against a configured ledger database, without going through the HTTP
// API. Mirrors the "run-recon" subcommand of the original Python tool.
//
// Usage:
//
//	recon run-recon --source bank_csv --date 2026-03-01 --file_path ./data/bank.csv
//	recon run-recon --source api --date 2026-03-01 --base_url https://api.example.com --auth_token abc123
//	recon run-recon --source payment_processor --auth_token xyz789
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/mbd888/ledger/internal/config"
	"github.com/mbd888/ledger/internal/logging"
	"github.com/mbd888/ledger/internal/reconciliation"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 || args[0] != "run-recon" {
		fmt.Fprintln(os.Stderr, "Usage: recon run-recon --source {bank_csv|csv|api|payment_processor} [--date YYYY-MM-DD] [--file_path PATH] [--base_url URL] [--auth_token TOKEN]")
		return 1
	}

	fs := flag.NewFlagSet("run-recon", flag.ContinueOnError)
	source := fs.String("source", "", "source type for reconciliation (required)")
	dateStr := fs.String("date", time.Now().UTC().Format("2006-01-02"), "date for reconciliation (YYYY-MM-DD), defaults to today")
	filePath := fs.String("file_path", "", "path to CSV file (required for bank_csv and csv sources)")
	baseURL := fs.String("base_url", "", "base URL for API source")
	authToken := fs.String("auth_token", "", "authentication token for API or payment processor sources")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}

	if *source == "" {
		fmt.Fprintln(os.Stderr, "Validation error: --source is required")
		return 1
	}

	tag := reconciliation.SourceTag(*source)
	date, err := time.Parse("2006-01-02", *dateStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: invalid date %q, use YYYY-MM-DD\n", *dateStr)
		return 1
	}

	params := reconciliation.LoadParams{FilePath: *filePath, BaseURL: *baseURL, AuthToken: *authToken}
	if err := reconciliation.ValidateParams(tag, params); err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	fmt.Printf("Starting reconciliation for source: %s\n", tag)
	fmt.Printf("Date: %s\n", date.Format("2006-01-02"))
	if *filePath != "" {
		fmt.Printf("File: %s\n", *filePath)
	}
	if *baseURL != "" {
		fmt.Printf("Base URL: %s\n", *baseURL)
	}

	journal := reconciliation.NewJournal(db)
	ledgerReader := reconciliation.NewLedgerReader(db)
	exact := reconciliation.NewExactMatcher(float64(cfg.TimestampToleranceSeconds))
	fuzzy := reconciliation.NewFuzzyMatcher(
		reconciliation.FuzzyWeights{
			Amount:    cfg.FuzzyWeights.Amount,
			Timestamp: cfg.FuzzyWeights.Timestamp,
			Metadata:  cfg.FuzzyWeights.Metadata,
		},
		cfg.AmountTolerancePercent, float64(cfg.TimestampToleranceSeconds), cfg.MinMatchScore,
	)
	orchestrator := reconciliation.NewOrchestrator(journal, ledgerReader, exact, fuzzy, nil)

	ctx := logging.WithLogger(context.Background(), logger)
	jobID, err := orchestrator.Run(ctx, date, tag, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running reconciliation: %v\n", err)
		return 1
	}

	status, err := journal.JobStatusByID(ctx, jobID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Reconciliation job %s ran but status lookup failed: %v\n", jobID, err)
		return 1
	}

	fmt.Printf("\nReconciliation job started\n")
	fmt.Printf("Job ID: %s\n", jobID)
	fmt.Printf("Status: %s\n", status)

	summary, err := journal.GetSummary(ctx, date, string(tag))
	if err == nil {
		fmt.Printf("Matched: %d\n", summary.Matched)
		fmt.Printf("Unmatched: %d\n", summary.Unmatched)
	}

	if status == reconciliation.JobFailed {
		return 1
	}
	return 0
}
