// sentinel-engine is the detection-and-decision service: it ingests
// operational signals over HTTP, runs periodic detection cycles, and gates
// every remediation behind human approval.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sentinelstack/migration-sentinel/internal/actor"
	"github.com/sentinelstack/migration-sentinel/internal/adapters"
	"github.com/sentinelstack/migration-sentinel/internal/api"
	"github.com/sentinelstack/migration-sentinel/internal/config"
	"github.com/sentinelstack/migration-sentinel/internal/decider"
	"github.com/sentinelstack/migration-sentinel/internal/engine"
	"github.com/sentinelstack/migration-sentinel/internal/history"
	"github.com/sentinelstack/migration-sentinel/internal/metrics"
	"github.com/sentinelstack/migration-sentinel/internal/observer"
	"github.com/sentinelstack/migration-sentinel/internal/reasoner"
	"github.com/sentinelstack/migration-sentinel/internal/scheduler"
	"github.com/sentinelstack/migration-sentinel/internal/store"
	"github.com/sentinelstack/migration-sentinel/internal/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "sentinel-engine:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config (falls back to SENTINEL_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return utils.NewAppError("boot", "load configuration", err)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return utils.NewAppError("boot", "open store", err)
	}
	defer st.Close()

	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		return utils.NewAppError("boot", "register metrics", err)
	}

	templates, err := decider.LoadTemplates(cfg.Decider.TemplatesPath)
	if err != nil {
		return utils.NewAppError("boot", "load remediation templates", err)
	}

	var oracle *reasoner.Oracle
	if cfg.Oracle.Enabled {
		oracle, err = reasoner.NewOracle(reasoner.OracleOptions{
			BaseURL:     cfg.Oracle.BaseURL,
			APIKey:      cfg.Oracle.APIKey,
			Model:       cfg.Oracle.Model,
			Temperature: cfg.Oracle.Temperature,
			MaxTokens:   cfg.Oracle.MaxTokens,
			Timeout:     cfg.Oracle.Timeout,
		})
		if err != nil {
			return utils.NewAppError("boot", "create oracle client", err)
		}
		logger.Info("oracle reasoning enabled", "model", cfg.Oracle.Model)
	}
	grounding, err := reasoner.LoadGroundingIndex(cfg.Oracle.DocsDir)
	if err != nil {
		return utils.NewAppError("boot", "load grounding docs", err)
	}

	obs := observer.New(cfg.Observer.SpikeThreshold, cfg.Observer.VolumeThreshold)
	rsn := reasoner.New(oracle, grounding, logger)
	dec := decider.New(cfg.Decider.ConfidenceHigh, cfg.Decider.ConfidenceMedium,
		cfg.Decider.SignificantSubjects, cfg.Decider.UrgentSubjects, templates)
	pipeline := engine.New(st, obs, rsn, dec, cfg.Scheduler.BatchSize, logger)
	act := actor.New(st, adapters.NewTools(logger), logger)
	analyzer := history.NewAnalyzer(st, 500)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(pipeline, cfg.Scheduler.Interval, logger)
		go sched.Run(ctx)
	}

	server := api.NewServer(api.Options{
		Address:         cfg.Server.Address,
		GracefulTimeout: cfg.Server.GracefulTimeout,
		Store:           st,
		Pipeline:        pipeline,
		Actor:           act,
		History:         analyzer,
		Registry:        registry,
		Logger:          logger,
	})

	logger.Info("sentinel engine starting",
		"address", cfg.Server.Address,
		"store", cfg.Store.Path,
		"scheduler", cfg.Scheduler.Enabled,
		"oracle", cfg.Oracle.Enabled)
	return server.Run(ctx)
}
