package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/railyard/railyard/server/internal/api"
	"github.com/railyard/railyard/server/internal/auth"
	"github.com/railyard/railyard/server/internal/config"
	"github.com/railyard/railyard/server/internal/credentials"
	"github.com/railyard/railyard/server/internal/device"
	"github.com/railyard/railyard/server/internal/eventlog"
	"github.com/railyard/railyard/server/internal/gpio"
	"github.com/railyard/railyard/server/internal/lifecycle"
	"github.com/railyard/railyard/server/internal/metrics"
	"github.com/railyard/railyard/server/internal/netinfo"
	"github.com/railyard/railyard/server/internal/notify"
	"github.com/railyard/railyard/server/internal/ota"
	"github.com/railyard/railyard/server/internal/profile"
	"github.com/railyard/railyard/server/internal/schedule"
	"github.com/railyard/railyard/server/internal/ws"
	"github.com/railyard/railyard/server/internal/yard"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "/etc/railyard/config.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return 0
	}

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("railyard-server starting", "config", *configPath, "version", version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		return 1
	}
	if lvl, err := cfg.Server.Log.SlogLevel(); err == nil {
		level.Set(lvl)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"data_dir", cfg.Server.DataDir,
		"auth_mode", cfg.Server.Auth.Mode,
		"backend", cfg.Hardware.Backend,
		"pins", len(cfg.Hardware.Pins),
	)

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()
	life := lifecycle.New(cancel)

	backend, err := gpio.New(cfg.Hardware.Backend)
	if err != nil {
		slog.Error("failed to open gpio backend", "backend", cfg.Hardware.Backend, "err", err)
		return 1
	}
	defer backend.Close() //nolint:errcheck

	profiles, err := profile.NewStore(cfg.ProfileDir())
	if err != nil {
		slog.Error("failed to open profile store", "dir", cfg.ProfileDir(), "err", err)
		return 1
	}

	// Background action queue for light beams; disconnects pause it.
	queue := schedule.New(cfg.Hardware.Timing.ActionPeriod)

	t := cfg.Hardware.Timing
	env := device.Env{
		Backend: backend,
		Queue:   queue,
		Timing: device.Timing{
			Blink:        t.Blink,
			SafeShutdown: t.SafeShutdown,
			StepDelay:    t.StepDelay,
			MotorRun:     t.MotorRun,
		},
	}
	y := yard.New(yard.Config{Pins: cfg.Hardware.Pins, Defaults: placements(cfg.Hardware.DefaultDevices)}, env, profiles)

	reg := metrics.New(metrics.Gauges{
		Devices:       y.Len,
		PinsAvailable: func() int { return len(y.PinPool()) },
		SchedulerJobs: queue.Len,
	})
	notifier := notify.New(cfg.Notify)
	hub := ws.New(y, cfg.Server.Stream.Interval)

	y.Observe(reg.ObserveYard)
	y.Observe(notifier.Observe)
	y.Observe(hub.Observe)

	// Opened before Boot so a failed favorite shows up in GET /log.
	elog, err := eventlog.Open(cfg.EventLogPath(), cfg.Server.Log.MaxRecords)
	if err != nil {
		// The yard is still usable without its request log.
		slog.Error("failed to open event log, continuing without it", "path", cfg.EventLogPath(), "err", err)
		elog = nil
	} else {
		defer elog.Close() //nolint:errcheck
		y.Observe(elog.ObserveYard)
	}

	booted := y.Boot()
	slog.Info("yard ready", "devices", len(booted.Devices), "free_pins", len(y.PinPool()))

	scans := netinfo.NewCache(netinfo.NewNMCLI(cfg.Network.Interface), cfg.Network.ScanTTL)
	guard := auth.NewGuard(authSettings(cfg.Server.Auth))

	var led gpio.Pin
	if cfg.Hardware.StatusLEDPin >= 0 {
		if led, err = backend.Pin(cfg.Hardware.StatusLEDPin); err != nil {
			slog.Warn("status led unavailable", "pin", cfg.Hardware.StatusLEDPin, "err", err)
			led = nil
		}
	}

	deps := api.Deps{
		Yard:        y,
		Scanner:     scans,
		Network:     netinfo.NewReporter(cfg.Network.Interface, version),
		Credentials: credentials.NewStore(cfg.Server.DataDir),
		Lifecycle:   life,
		Auth:        guard,
		Metrics:     reg,
		Stream:      hub,
		Log:         elog,
		StatusLED:   led,
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           api.New(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { queue.Run(gctx); return nil })
	g.Go(func() error { scans.Run(gctx); return nil })
	g.Go(func() error { hub.Run(gctx); return nil })
	g.Go(func() error { notifier.Run(gctx); return nil })
	g.Go(func() error {
		err := config.Watch(gctx, *configPath, func(c *config.Config) {
			if lvl, err := c.Server.Log.SlogLevel(); err == nil {
				level.Set(lvl)
			}
			guard.Set(authSettings(c.Server.Auth))
		})
		if err != nil {
			// Hot reload is a convenience; keep serving without it.
			slog.Warn("config watch disabled", "err", err)
		}
		return nil
	})
	g.Go(func() error {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()
	if runErr != nil {
		slog.Error("railyard-server stopped with error", "err", runErr)
	}

	reason := life.Reason()
	slog.Info("railyard-server shutting down", "reason", string(reason))
	if err := y.Shutdown(); err != nil {
		slog.Error("failed to release devices", "err", err)
	}

	if reason == lifecycle.Update && cfg.OTA.Enabled {
		otaCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		ota.New(cfg.OTA).Run(otaCtx)
		cancel()
	}
	if reason.Restarts() {
		time.Sleep(cfg.Server.ResetWait)
		return reason.ExitCode()
	}
	if runErr != nil {
		return 1
	}
	return 0
}

func placements(in []config.DevicePlacement) []yard.Placement {
	if in == nil {
		return nil
	}
	out := make([]yard.Placement, 0, len(in))
	for _, p := range in {
		out = append(out, yard.Placement{Pins: p.Pins, Type: p.Type})
	}
	return out
}

func authSettings(a config.AuthConfig) auth.Settings {
	return auth.Settings{Mode: a.Mode, Header: a.EffectiveHeader(), Key: a.Key()}
}
