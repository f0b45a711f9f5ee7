package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/dataroom/ingestion"
	"github.com/poiesic/dataroom/metrics"
)

func watchCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	collector := metrics.NewCollector()
	listen := c.String("metrics-listen")
	if listen == "" {
		listen = cfg.Metrics.Listen
	}
	if listen != "" {
		server := serveMetrics(listen, collector)
		defer shutdown(server)
	}

	pipeline, err := db.NewIngestionPipeline(append(cfg.IngestionOptions(), ingestion.WithObserver(collector))...)
	if err != nil {
		return fmt.Errorf("failed to create ingestion pipeline: %w", err)
	}
	defer pipeline.Release()

	watcher, err := ingestion.NewWatcher(pipeline, c.String("task"), c.String("dir"),
		ingestion.WithDebounce(c.Duration("debounce")),
		ingestion.WithIngestHook(func(path string, result *ingestion.Result, err error) {
			if err != nil {
				fmt.Fprintf(c.App.ErrWriter, "failed %s: %v\n", path, err)
				return
			}
			fmt.Fprintf(c.App.Writer, "ingested %s (%d chunks)\n", path, result.Chunks())
		}),
	)
	if err != nil {
		return err
	}

	slog.Info("watching directory", "task", c.String("task"), "dir", c.String("dir"), "metrics", listen)
	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func serveMetrics(listen string, collector *metrics.Collector) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	server := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "listen", listen, "err", err)
		}
	}()
	return server
}

func shutdown(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("error shutting down metrics server", "err", err)
	}
}
