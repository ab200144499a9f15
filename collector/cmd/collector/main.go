package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/qualtrack/qualtrack/collector/internal/config"
	"github.com/qualtrack/qualtrack/collector/internal/shipper"
	"github.com/qualtrack/qualtrack/collector/internal/source"
	"github.com/qualtrack/qualtrack/pkg/model"
)

// pipeline holds the built collectors for one metric.
type pipeline struct {
	metricUUID string
	collectors []source.Collector
}

// buildPipelines constructs a collector per configured source, skipping
// sources that cannot be built.
func buildPipelines(metrics []config.Metric) []pipeline {
	var pipelines []pipeline
	for _, m := range metrics {
		p := pipeline{metricUUID: m.MetricUUID}
		for _, src := range m.Sources {
			c, err := source.New(src)
			if err != nil {
				slog.Error("skipping source — could not build collector",
					"metric", m.MetricUUID, "source", src.SourceUUID, "err", err)
				continue
			}
			p.collectors = append(p.collectors, c)
			slog.Info("registered source",
				"metric", m.MetricUUID, "source", src.SourceUUID,
				"type", src.Type, "endpoint", src.Endpoint)
		}
		if len(p.collectors) > 0 {
			pipelines = append(pipelines, p)
		}
	}
	return pipelines
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("qualtrack-collector starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"server_endpoint", cfg.Collector.ServerEndpoint,
		"metrics", len(cfg.Collector.Metrics),
		"collect_interval", cfg.Collector.CollectInterval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var mu sync.Mutex
	pipelines := buildPipelines(cfg.Collector.Metrics)
	if len(pipelines) == 0 {
		slog.Warn("no metrics configured — collector will idle")
	}

	// Watch the config file; hot-reload rebuilds the collector pipelines.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			rebuilt := buildPipelines(updated.Collector.Metrics)
			mu.Lock()
			pipelines = rebuilt
			mu.Unlock()
			slog.Info("config hot-reloaded", "metrics", len(rebuilt))
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// Start the shipper — runs until ctx is cancelled.
	ship := shipper.New(cfg.Collector)
	go ship.Run(ctx)

	// Collect loop: measure every CollectInterval, one payload per metric.
	go func() {
		ticker := time.NewTicker(cfg.Collector.CollectInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mu.Lock()
				current := pipelines
				mu.Unlock()

				for _, p := range current {
					sources := make([]*model.SourceResult, 0, len(p.collectors))
					for _, c := range p.collectors {
						sources = append(sources, c.Collect(ctx))
					}
					ship.Ship(&shipper.Payload{MetricUUID: p.metricUUID, Sources: sources})
					slog.Debug("shipped measurement",
						"metric", p.metricUUID, "sources", len(sources))
				}
			}
		}
	}()

	<-ctx.Done()
	slog.Info("qualtrack-collector shutting down")
}
