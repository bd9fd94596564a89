// Command medwatch answers natural-language questions about medical device
// safety data by fanning out searches across the public device record
// endpoints and synthesizing the results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/medwatch-ai/medwatch/internal/budget"
	"github.com/medwatch-ai/medwatch/internal/config"
	"github.com/medwatch-ai/medwatch/internal/engine"
	"github.com/medwatch-ai/medwatch/internal/llm"
	"github.com/medwatch-ai/medwatch/internal/metrics"
	"github.com/medwatch-ai/medwatch/internal/openfda"
	"github.com/medwatch-ai/medwatch/internal/scheduler"
	"github.com/medwatch-ai/medwatch/internal/tracing"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file (optional)")
		callerID   = flag.String("caller", "cli", "caller id for usage accounting")
		quiet      = flag.Bool("quiet", false, "suppress progress output")
	)
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: medwatch [flags] \"<question>\"")
		flag.PrintDefaults()
		os.Exit(2)
	}
	query := flag.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Initialize(cfg.Tracing, logger)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background()) //nolint:errcheck

	if cfg.Metrics.Enabled {
		metrics.Serve(cfg.Metrics.Port, logger)
	}

	if stopWatch, err := config.WatchSynonyms(logger); err != nil {
		logger.Debug("Synonym watcher not started", zap.Error(err))
	} else {
		defer stopWatch()
	}

	var sourceOpts []openfda.ClientOption
	if cfg.Source.APIKey != "" {
		sourceOpts = append(sourceOpts, openfda.WithAPIKey(cfg.Source.APIKey))
	}
	source := openfda.NewClient(cfg.Source.BaseURL, cfg.Source.Timeout, logger, sourceOpts...)

	var completer llm.Completer
	if cfg.LLM.Enabled {
		completer = llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.Timeout, logger)
	}

	var ledger budget.Ledger
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal("Redis unreachable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		defer client.Close()
		ledger = budget.NewRedisLedger(client, cfg.Budget.DefaultLimitUSD, logger)
	} else {
		ledger = budget.NewMemoryLedger(cfg.Budget.DefaultLimitUSD)
	}

	eng := engine.New(source, completer, ledger, logger,
		engine.WithFetcherConfig(openfda.FetcherConfig{
			PageSize:    cfg.Fetcher.PageSize,
			MaxRecords:  cfg.Fetcher.MaxRecords,
			MaxAttempts: cfg.Fetcher.MaxAttempts,
			BackoffBase: cfg.Fetcher.BackoffBase,
			BackoffMax:  cfg.Fetcher.BackoffMax,
		}),
		engine.WithSchedulerConfig(scheduler.Config{
			MaxConcurrent:     cfg.Scheduler.MaxConcurrentPerCapability,
			RequestsPerSecond: cfg.Scheduler.RequestsPerSecond,
			CostPerTask:       cfg.Budget.CostPerTaskUSD,
			TaskTimeout:       cfg.Scheduler.TaskTimeout,
		}),
	)

	var sink scheduler.ProgressSink
	if !*quiet {
		sink = func(pct int, msg string) {
			fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", pct, msg)
		}
	}

	result, err := eng.Resolve(ctx, query, *callerID, sink)
	if err != nil {
		logger.Fatal("Resolve failed", zap.Error(err))
	}

	fmt.Println(result.Synthesis.Narrative)
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
		}
		zc.Level = level
	}
	return zc.Build()
}
