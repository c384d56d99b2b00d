// Command warehouse runs the e-commerce ETL: it extracts a delimited
// transactions file, cleans it, loads the star-schema dimensions and
// fact table, refreshes the derived aggregates, and validates the load.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"warehouse/internal/config"
	"warehouse/internal/metrics"
	"warehouse/internal/metrics/prompush"
	"warehouse/internal/pipeline"
	"warehouse/internal/warehouse"
)

func main() {
	var (
		cfgPath    string
		sourcePath string
		initSchema bool
	)
	flag.StringVar(&cfgPath, "config", "configs/warehouse.yaml", "configuration YAML path")
	flag.StringVar(&sourcePath, "file", "", "source file path (overrides config)")
	flag.BoolVar(&initSchema, "init-schema", false, "apply the warehouse DDL before running")
	verbose := flag.Bool("v", false, "enable debug logs")
	flag.Parse()

	// .env is local-dev convenience; absence is normal elsewhere.
	_ = godotenv.Load()

	log := newLogger(*verbose)
	defer log.Sync()

	cfg, err := config.Read(cfgPath)
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}
	if sourcePath != "" {
		cfg.Source.Path = sourcePath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	if cfg.Metrics.PushgatewayURL != "" {
		backend, err := prompush.NewBackend(cfg.Metrics.Job, cfg.Metrics.PushgatewayURL)
		if err != nil {
			log.Fatal("metrics backend", zap.Error(err))
		}
		metrics.SetBackend(backend)
	}

	ctx := context.Background()
	store, err := warehouse.Open(ctx, cfg.DSN(), log)
	if err != nil {
		log.Fatal("open warehouse", zap.Error(err))
	}

	if initSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			log.Fatal("init schema", zap.Error(err))
		}
		log.Info("warehouse schema ensured")
	}

	// The pipeline owns the store from here and closes it on exit.
	ok, stats := pipeline.New(cfg, store, log).Run(ctx)

	if err := metrics.Flush(); err != nil {
		log.Warn("push metrics", zap.Error(err))
	}

	if !ok {
		for stage, msg := range stats.Errors {
			log.Error("stage failed", zap.String("stage", stage), zap.String("error", msg))
		}
		os.Exit(1)
	}
}

func newLogger(verbose bool) *zap.Logger {
	if verbose {
		log, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		return log
	}
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return log
}
