package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/david/launchpad/internal/db"
	"github.com/david/launchpad/internal/ingest"
	"github.com/david/launchpad/internal/logger"
	"github.com/david/launchpad/internal/report"
	"github.com/david/launchpad/internal/snapshot"
	"github.com/spf13/cobra"
)

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, err := ingest.LoadRegistry(cfg.SourcesFile)
	if err != nil {
		return err
	}
	if len(onlySources) > 0 {
		if reg, err = reg.Select(onlySources); err != nil {
			return err
		}
	}

	adapters, err := ingest.NewDefaultFactory().Build(reg, log)
	if err != nil {
		return err
	}

	p := ingest.NewPipeline(adapters, snapshot.NewFileStore(cfg.OutputFile), log)
	p.Workers = cfg.Workers
	p.AdapterTimeout = cfg.AdapterTimeout
	p.MergeOrder = cfg.MergeOrder

	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Warn("database unavailable, mirror disabled", logger.Error(err))
		} else {
			defer pool.Close()
			if err := db.ApplyMigrations(ctx, pool, log); err != nil {
				log.Warn("migrations failed, mirror disabled", logger.Error(err))
			} else {
				p.Mirror = db.NewMirror(db.NewStore(pool))
			}
		}
	}

	res, err := p.Run(ctx)
	if res != nil {
		report.Run(cmd.OutOrStdout(), res)
	}
	return err
}

func listSources(cmd *cobra.Command, _ []string) error {
	reg, err := ingest.LoadRegistry(cfg.SourcesFile)
	if err != nil {
		return err
	}
	report.Sources(cmd.OutOrStdout(), reg.Sources)
	return nil
}

func listRuns(cmd *cobra.Command, _ []string) error {
	if cfg.DatabaseURL == "" {
		return errors.New("no database configured: set DATABASE_URL or --database-url")
	}
	ctx := cmdContext(cmd)

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	runs, err := db.NewStore(pool).ListRuns(ctx, cfg.RunsLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
		return nil
	}
	report.Runs(cmd.OutOrStdout(), runs)
	return nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
