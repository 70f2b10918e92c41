// Command server runs the ledger HTTP API: account and transfer endpoints,
// reconciliation endpoints, a realtime websocket feed, and the daily
// reconciliation scheduler.
package main

import (
	"context"
	"os"

	"github.com/mbd888/ledger/internal/config"
	"github.com/mbd888/ledger/internal/logging"
	"github.com/mbd888/ledger/internal/server"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	logger := logging.New("info", "text")
	logger.Info("starting ledger", "version", Version, "commit", Commit, "build_time", BuildTime)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded", "env", cfg.Env, "allow_overdraft", cfg.AllowOverdraft)

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
