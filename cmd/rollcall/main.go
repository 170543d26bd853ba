package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/crimson-sun/rollcall/internal/collector"
	"github.com/crimson-sun/rollcall/internal/config"
	"github.com/crimson-sun/rollcall/internal/httpapi"
	"github.com/crimson-sun/rollcall/internal/identity"
	"github.com/crimson-sun/rollcall/internal/logging"
	"github.com/crimson-sun/rollcall/internal/metrics"
	"github.com/crimson-sun/rollcall/internal/monitor"
	"github.com/crimson-sun/rollcall/internal/presence"
	"github.com/crimson-sun/rollcall/internal/provider"
	"github.com/crimson-sun/rollcall/internal/sink/memory"
	sinkpg "github.com/crimson-sun/rollcall/internal/sink/postgres"

	// Register provider implementations.
	_ "github.com/crimson-sun/rollcall/internal/provider/agent"
	_ "github.com/crimson-sun/rollcall/internal/provider/cdp"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "rollcall: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.Init(cfg.Log.Format == "json" || cfg.HasSink("stdout"), logging.ParseLevel(cfg.Log.Level))

	if cfg.SettingsDSN != "" {
		if err := applyDatabaseSettings(ctx, &cfg); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ctor, err := provider.Get(cfg.Provider.Name)
	if err != nil {
		return err
	}
	p, err := ctor(provider.Config{
		Name:     cfg.Provider.Name,
		Endpoint: cfg.Provider.Endpoint,
		Token:    cfg.Provider.Token,
		Extra:    cfg.Provider.Extra,
	})
	if err != nil {
		return fmt.Errorf("provider %s: %w", cfg.Provider.Name, err)
	}
	defer p.Close()

	recent := memory.New(cfg.Sink.MemoryCapacity)
	out, err := buildSinks(ctx, cfg, m, recent)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			logger.Warn("closing sinks", "error", err)
		}
	}()

	col, err := collector.New(p, collector.Config{
		StepSize:         cfg.Scan.StepSize,
		SettleDelay:      cfg.Scan.SettleDelay,
		MaxCycleDuration: cfg.Scan.MaxCycle,
		MaxSteps:         cfg.Scan.MaxSteps,
	}, collector.WithLogger(logger.With("component", "collector")))
	if err != nil {
		return err
	}
	rec, err := presence.New(presence.Config{
		EventID:          cfg.Session.EventID,
		AbsenceThreshold: cfg.Session.AbsenceThreshold,
	})
	if err != nil {
		return err
	}
	mon, err := monitor.New(col,
		identity.New(identity.WithStableIDPreference(cfg.Session.PreferStableID)),
		rec, out, cfg.Session.PollInterval,
		monitor.WithLogger(logger.With("component", "monitor")),
		monitor.WithMetrics(m),
		monitor.WithLeaveOnShutdown(cfg.Session.LeaveOnShutdown),
	)
	if err != nil {
		return err
	}

	logger.Info("rollcall starting",
		"event_id", cfg.Session.EventID,
		"session", cfg.Session.Name,
		"provider", cfg.Provider.Name,
		"sinks", cfg.Sink.Names,
		"poll_interval", cfg.Session.PollInterval,
		"absence_threshold", cfg.Session.AbsenceThreshold,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mon.Run(gctx) })

	if cfg.HTTPAddr != "" {
		srv := httpapi.NewServer(cfg.HTTPAddr, httpapi.New(mon, recent, reg, logger.With("component", "http")).Router())
		g.Go(func() error {
			logger.Info("http api listening", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http api: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("rollcall stopped")
	return nil
}

// applyDatabaseSettings overlays the app_settings table onto cfg.
func applyDatabaseSettings(ctx context.Context, cfg *config.Config) error {
	lctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := sinkpg.Open(lctx, cfg.SettingsDSN)
	if err != nil {
		return fmt.Errorf("settings database: %w", err)
	}
	defer db.Close()

	settings, err := config.LoadSettings(lctx, db)
	if err != nil {
		return err
	}
	if err := cfg.ApplySettings(settings); err != nil {
		return fmt.Errorf("settings database: %w", err)
	}
	slog.Info("applied database settings", "keys", len(settings))
	return nil
}
