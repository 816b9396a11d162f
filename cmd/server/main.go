package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/docredact/internal/api"
	"github.com/dgallion1/docredact/internal/config"
	"github.com/dgallion1/docredact/internal/pathstore"
	"github.com/dgallion1/docredact/internal/pipeline"
	"github.com/dgallion1/docredact/internal/sink"
)

func main() {
	cfg := config.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Every copy lands in the output directory; pathstore is optional.
	sinks := []sink.Sink{&sink.DirSink{Dir: cfg.OutputDir}}
	var (
		ps      *pathstore.Client
		records *sink.PathstoreSink
	)
	if cfg.PathstoreEnabled() {
		ps = pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey)
		records = sink.NewPathstoreSink(ps)
		sinks = append(sinks, records)
	}

	orch := pipeline.NewOrchestrator(cfg, sinks, log)
	orch.Start(ctx)

	srv := api.NewServer(orch, records, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
		if ps != nil {
			ps.Close()
		}
	}()

	log.Info("starting docredact",
		"port", cfg.Port,
		"output_dir", cfg.OutputDir,
		"pathstore", cfg.PathstoreEnabled(),
		"workers", cfg.WorkerCount,
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
