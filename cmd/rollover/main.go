// Command rollover runs the month-end rollover for every user, or for one
// user with -user, and prints the report as JSON. It exits with status 2
// when any user failed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"smartwallet/pkg/app"
	"smartwallet/pkg/config"
	"smartwallet/pkg/ledger"
	"smartwallet/pkg/logging"

	"go.uber.org/zap"
)

func main() {
	configFile := flag.String("config", "", "path to a config file (yaml, json or toml)")
	userID := flag.String("user", "", "roll over a single user")
	flag.Parse()

	failed, err := run(*configFile, *userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rollover: %v\n", err)
		os.Exit(1)
	}
	if failed > 0 {
		os.Exit(2)
	}
}

func run(configFile, userID string) (int, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return 0, err
	}
	// The HTTP-only pieces are not needed for a batch run.
	cfg.Idempotency.Enabled = false
	cfg.Metrics.Enabled = false

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return 0, fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	if cfg.Storage.Backend == config.BackendMemory {
		logger.Warn("memory storage holds no users; configure storage.backend=sql")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return 0, err
	}
	defer a.Close()

	logger.Info("rollover starting",
		zap.String("user", userID),
		zap.Int("concurrency", a.Ledger.Config().RolloverConcurrency),
	)
	report, err := rollover(ctx, a.Ledger, userID)
	if err != nil {
		return 0, err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return 0, err
	}

	logger.Info("rollover done",
		zap.Int("users", report.Users),
		zap.Int("failed", report.Failed),
	)
	return report.Failed, nil
}

func rollover(ctx context.Context, svc *ledger.Service, userID string) (*ledger.RolloverReport, error) {
	if userID == "" {
		return svc.RolloverAll(ctx)
	}

	result, err := svc.PerformMonthEndRollover(ctx, userID)
	entry := ledger.UserRollover{UserID: userID, Result: result, Err: err}
	report := &ledger.RolloverReport{Users: 1, Results: []ledger.UserRollover{entry}}
	if err != nil {
		report.Results[0].Error = err.Error()
		report.Failed = 1
	} else {
		report.Succeeded = 1
	}
	return report, nil
}
