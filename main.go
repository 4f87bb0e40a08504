package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/status-im/dict-cache/config"
	"github.com/status-im/dict-cache/dictionary"
	"github.com/status-im/dict-cache/source"
)

func main() {
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal("Error loading config: ", err)
	}

	logger, err := cfg.Logging.BuildLogger()
	if err != nil {
		log.Fatal("Error building logger: ", err)
	}
	defer logger.Sync()

	sch, err := cfg.Schema.BuildSchema()
	if err != nil {
		logger.Fatal("Invalid schema", zap.Error(err))
	}

	httpCfg := source.HTTPConfig{
		URL:               cfg.Source.URL,
		MaxRetries:        cfg.Source.MaxRetries,
		RequestTimeout:    time.Duration(cfg.Source.RequestTimeoutSec) * time.Second,
		RequestsPerSecond: cfg.Source.RequestsPerSecond,
		Burst:             cfg.Source.Burst,
	}
	provider := source.NewRefreshingProvider(func() (source.Source, error) {
		return source.NewHTTPSource(sch, httpCfg, logger)
	}, time.Duration(cfg.Source.RefreshSeconds)*time.Second, logger)

	dict, err := dictionary.NewFromConfig(cfg.Dictionary, sch, provider, dictionary.WithLogger(logger))
	if err != nil {
		logger.Fatal("Failed to build dictionary", zap.Error(err))
	}
	defer dict.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Publish size and load-factor gauges periodically
	reporter := dictionary.NewStatsReporter(dict, 15*time.Second, logger)
	reporter.Start(ctx)
	defer reporter.Stop()

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
		server := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			logger.Info("Metrics listener started",
				zap.Int("port", cfg.Metrics.Port),
				zap.String("path", cfg.Metrics.Path))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics listener failed", zap.Error(err))
			}
		}()
		defer server.Shutdown(context.Background())
	}

	logger.Info("Dictionary ready",
		zap.String("name", dict.Name()),
		zap.String("layout", cfg.Dictionary.Layout))

	<-sigChan
	logger.Info("Received shutdown signal, stopping services...")
}
