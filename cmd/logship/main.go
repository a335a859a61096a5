package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/szibis/logship/internal/config"
	"github.com/szibis/logship/internal/exporter"
	"github.com/szibis/logship/internal/health"
	"github.com/szibis/logship/internal/logging"
	"github.com/szibis/logship/internal/queue"
	"github.com/szibis/logship/internal/receiver"
	"github.com/szibis/logship/internal/shipper"
	"github.com/szibis/logship/internal/spool"
	"github.com/szibis/logship/internal/stats"
	"github.com/szibis/logship/internal/telemetry"
)

func main() {
	cfg := config.ParseFlags()

	if cfg.ShowHelp {
		config.PrintUsage(os.Stdout)
		os.Exit(0)
	}

	if cfg.ShowVersion {
		fmt.Printf("logship %s\n", config.Version())
		os.Exit(0)
	}

	if cfg.ValidateOnly {
		if cfg.ConfigFile == "" {
			fmt.Fprintln(os.Stderr, "logship: -validate requires -config")
			os.Exit(2)
		}
		result := config.ValidateFile(cfg.ConfigFile)
		fmt.Println(result.JSON())
		if !result.Valid {
			os.Exit(1)
		}
		os.Exit(0)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		logging.Fatal("invalid log level", logging.F("error", err.Error()))
	}
	logging.SetLevel(level)
	logging.SetResource(map[string]string{
		"service.name":    "logship",
		"service.version": config.Version(),
	})

	if err := cfg.Validate(); err != nil {
		logging.Fatal("invalid configuration", logging.F("error", err.Error()))
	}
	for _, issue := range cfg.Issues() {
		if issue.Severity == config.SeverityWarning {
			logging.Warn("configuration warning", logging.F("field", issue.Field, "message", issue.Message))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Init(ctx, cfg.TelemetryConfig())
	if err != nil {
		logging.Fatal("failed to initialize telemetry", logging.F("error", err.Error()))
	}
	tel.Attach()

	if cfg.MemoryLimitRatio > 0 {
		limit, err := memlimit.SetGoMemLimitWithOpts(
			memlimit.WithRatio(cfg.MemoryLimitRatio),
			memlimit.WithProvider(memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem)),
		)
		if err != nil {
			logging.Warn("failed to set memory limit", logging.F("error", err.Error()))
		} else {
			logging.Info("memory limit set", logging.F("gomemlimit_bytes", limit, "ratio", cfg.MemoryLimitRatio))
		}
	}

	if err := run(ctx, cfg); err != nil {
		logging.Error("logship stopped with error", logging.F("error", err.Error()))
		shutdownTelemetry(tel)
		os.Exit(1)
	}
	shutdownTelemetry(tel)
}

// run wires the pipeline and blocks until ctx is cancelled or a server fails.
func run(ctx context.Context, cfg *config.Config) error {
	exp, err := exporter.New(cfg.ExporterConfig())
	if err != nil {
		return fmt.Errorf("failed to create exporter: %w", err)
	}

	checker := health.New()
	statsCollector := stats.NewCollector()

	var (
		ship    *shipper.Shipper
		emitter receiver.Emitter
		writer  *spool.Writer
	)
	opts := []shipper.Option{shipper.WithFormatter(cfg.Formatter())}
	switch cfg.BufferMode {
	case config.ModeDisk:
		writer, err = spool.New(cfg.SpoolConfig())
		if err != nil {
			exp.Close()
			return fmt.Errorf("failed to create buffer writer: %w", err)
		}
		ship = shipper.NewDurable(cfg.ShipperConfig(), writer.FileSet(), exp, opts...)
		emitter = writer
		checker.RegisterReadiness("spool", health.ProbeCheck(writer))

		backlog := stats.NewBacklogCollector(ship.Name(), writer.FileSet())
		prometheus.MustRegister(backlog)
		statsCollector.Add("buffer", backlog.Source())
	default:
		q := queue.NewBoundedQueue(cfg.QueueMaxRecords, cfg.QueueMaxBytes)
		ship = shipper.NewInMemory(cfg.ShipperConfig(), q, exp, opts...)
		emitter = ship
		statsCollector.Add("queue", func() map[string]interface{} {
			return map[string]interface{}{"records": q.Len(), "bytes": q.Bytes(), "dropped": q.Dropped()}
		})
	}
	checker.RegisterReadiness("shipper", health.ShipperCheck(ship, cfg.UnhealthyAfterFailures))
	statsCollector.Add("shipper", func() map[string]interface{} {
		out := map[string]interface{}{"consecutive_failures": ship.Failures()}
		if last := ship.LastSuccess(); !last.IsZero() {
			out["last_success"] = last.UTC().Format(time.RFC3339)
		}
		return out
	})

	recv, err := receiver.New(cfg.ReceiverConfig(), emitter)
	if err != nil {
		ship.Close()
		closeWriter(writer)
		return fmt.Errorf("failed to create receiver: %w", err)
	}
	checker.RegisterReadiness("receiver", health.ProbeCheck(recv))

	statsMux := http.NewServeMux()
	statsMux.Handle("/metrics", promhttp.Handler())
	checker.Register(statsMux)
	statsServer := &http.Server{
		Addr:              cfg.StatsAddr,
		Handler:           statsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ship.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := recv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("receiver: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logging.Info("stats endpoint started", logging.F("addr", cfg.StatsAddr, "path", "/metrics"))
		if err := statsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("stats server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		statsCollector.StartPeriodicLogging(gctx, 30*time.Second)
		return nil
	})

	logging.Info("logship started", logging.F(
		"version", config.Version(),
		"receiver_addr", cfg.ReceiverAddr,
		"receiver_path", cfg.ReceiverPath,
		"exporter_endpoint", exp.Endpoint(),
		"buffer_mode", cfg.BufferMode,
		"stats_addr", cfg.StatsAddr,
	))

	g.Go(func() error {
		<-gctx.Done()
		logging.Info("shutting down")
		checker.SetShuttingDown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		// Stop ingest first so the final tick sees every accepted record.
		if err := recv.Stop(shutdownCtx); err != nil {
			logging.Warn("receiver shutdown incomplete", logging.F("error", err.Error()))
		}
		if err := ship.Close(); err != nil {
			logging.Warn("failed to close exporter", logging.F("error", err.Error()))
		}
		closeWriter(writer)
		if err := statsServer.Shutdown(shutdownCtx); err != nil {
			logging.Warn("stats server shutdown incomplete", logging.F("error", err.Error()))
		}
		logging.Info("shutdown complete")
		return nil
	})

	return g.Wait()
}

func closeWriter(w *spool.Writer) {
	if w == nil {
		return
	}
	if err := w.Close(); err != nil {
		logging.Warn("failed to close buffer writer", logging.F("error", err.Error()))
	}
}

func shutdownTelemetry(tel *telemetry.Telemetry) {
	ctx, cancel := context.WithTimeout(context.Background(), tel.ShutdownTimeout())
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		logging.Warn("telemetry shutdown failed", logging.F("error", err.Error()))
	}
}
