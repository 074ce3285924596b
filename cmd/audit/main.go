// Command audit runs the offline ledger consistency audit and exits
// non-zero when any finding is reported. It is meant to be run out of
// band, for example from a nightly cron entry, against the same database
// the service uses.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"lending-ledger/internal/config"
	"lending-ledger/internal/domain/audit"
	"lending-ledger/internal/infrastructure/database/postgres"
	"lending-ledger/internal/infrastructure/logging"
	"lending-ledger/internal/pkg/money"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		toleranceFlag = flag.String("tolerance", "", "reconciliation tolerance as a decimal amount (default from config, 0.01)")
		jsonOutput    = flag.Bool("json", false, "emit the report as JSON instead of text")
		configPath    = flag.String("config", ".", "directory containing config.yaml")
	)
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: failed to load configuration: %v\n", err)
		return 2
	}

	logger := logging.NewLogger(cfg.Logger)

	toleranceStr := *toleranceFlag
	if toleranceStr == "" {
		toleranceStr = cfg.Ledger.AuditTolerance
	}
	if toleranceStr == "" {
		toleranceStr = "0.01"
	}
	tolerance, err := money.FromString(toleranceStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: invalid tolerance %q: %v\n", toleranceStr, err)
		return 2
	}

	ctx := context.Background()
	dbPool, err := postgres.NewConnectionPool(ctx, cfg.Database, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: failed to connect to database: %v\n", err)
		return 2
	}
	defer dbPool.Close()

	loanRepo := postgres.NewLoanRepository(dbPool, logger)
	source := postgres.NewAuditSource(dbPool, loanRepo, logger)
	auditor := audit.NewAuditor(source, logger)

	report, err := auditor.Run(ctx, tolerance)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: run failed: %v\n", err)
		return 2
	}

	if *jsonOutput {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "audit: failed to encode report: %v\n", err)
			return 2
		}
		fmt.Println(string(out))
	} else {
		report.Render(os.Stdout)
	}

	if !report.Clean() {
		return 1
	}
	return 0
}
