// Command migrate applies pending schema migrations to the configured store
// and exits. With -reset it also wipes every data table, which is meant for
// staging environments only.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/rewards-backend/internal/config"
	"github.com/tbourn/rewards-backend/internal/repo"
	"github.com/tbourn/rewards-backend/internal/sysutil"
)

func main() {
	reset := flag.Bool("reset", false, "delete all rows after migrating")
	yes := flag.Bool("yes", false, "confirm -reset")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logger := sysutil.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty)

	db, err := repo.Open(cfg.DB)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("db")
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	applied, err := repo.Migrate(ctx, db)
	if err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
	if len(applied) == 0 {
		logger.Info().Msg("schema already up to date")
	} else {
		logger.Info().Ints("applied", applied).Msg("migrations applied")
	}

	if *reset {
		if !*yes {
			logger.Fatal().Msg("-reset requires -yes")
		}
		if err := repo.ResetAll(ctx, db); err != nil {
			logger.Fatal().Err(err).Msg("reset failed")
		}
		logger.Warn().Msg("all data deleted")
	}
}
