package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"vacances/internal/capture"
	"vacances/internal/catalog"
	"vacances/internal/config"
	appLog "vacances/internal/log"
	"vacances/internal/metrics"
	"vacances/internal/model"
	"vacances/internal/settings"
	"vacances/internal/tracker"
	"vacances/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	capture    bool
	debug      bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		if conf == nil {
			os.Exit(1)
		}
	}

	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.capture {
		conf.Capture.Enabled = true
	}
	if flags.debug {
		conf.LogLevel = "debug"
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	appLog.SetJSON(!flags.debug && !flags.once)

	loc, err := conf.Location()
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "timezone", conf.Timezone)
	}

	appLog.Info("vacances starting",
		"listen", conf.Listen,
		"timezone", loc.String(),
		"refresh", conf.RefreshCron,
		"tick_interval", conf.Tick().String(),
		"settings_path", conf.SettingsPath,
		"capture", conf.Capture.Enabled,
		"once", flags.once,
	)

	store := settings.NewStore(conf.SettingsPath)
	fetcher := catalog.NewFetcher(conf.APIBaseURL, conf.ResultLimit, loc)

	if flags.once {
		os.Exit(runOnce(store, fetcher, conf, loc))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	registry := prometheus.NewRegistry()
	recorder, err := metrics.NewPromRecorder(registry)
	if err != nil {
		appLog.Error("failed to register metrics", err)
		os.Exit(1)
	}

	shooter := &previewCapturer{conf: conf, ctx: ctx}
	tr := tracker.New(fetcher, store, tracker.Options{
		Location:     loc,
		TickInterval: conf.Tick(),
		LabelStyle:   model.LabelStyle(conf.LabelStyle),
		Metrics:      recorder,
		OnCommit:     shooter.onCommit,
	})
	defer tr.Close()

	srv := web.NewServer(conf, web.Deps{
		State:    tr,
		Settings: store,
		Metrics:  recorder.Handler(),
	})

	scheduler := cron.New(cron.WithLocation(loc))
	if _, err := scheduler.AddFunc(conf.RefreshCron, func() {
		appLog.Info("scheduled refresh triggered")
		if err := tr.Refresh(ctx); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	}); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	scheduler.Start()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- web.StartServer(ctx, conf, srv)
	}()

	go func() {
		if err := tr.Refresh(ctx); err != nil {
			appLog.Error("initial refresh failed", err)
		}
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			appLog.Error("HTTP server stopped", err)
		}
		cancel()
	case <-ctx.Done():
		<-serverErr
	}

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	appLog.Info("vacances exiting")
}

// runOnce performs a single refresh, prints the resulting state as JSON on
// stdout and returns the process exit code.
func runOnce(store *settings.Store, fetcher *catalog.Fetcher, conf *config.Config, loc *time.Location) int {
	tr := tracker.New(fetcher, store, tracker.Options{
		Location:     loc,
		TickInterval: conf.Tick(),
		LabelStyle:   model.LabelStyle(conf.LabelStyle),
	})
	defer tr.Close()

	refreshErr := tr.Refresh(context.Background())

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tr.Snapshot()); err != nil {
		appLog.Error("failed to encode state", err)
		return 1
	}
	if refreshErr != nil {
		return 1
	}
	return 0
}

// previewCapturer screenshots the countdown page after each published
// refresh. Captures never overlap; a refresh landing during a capture is
// skipped.
type previewCapturer struct {
	conf *config.Config
	ctx  context.Context
	mu   sync.Mutex
}

func (p *previewCapturer) onCommit(snap tracker.Snapshot) {
	if !p.conf.Capture.Enabled {
		return
	}
	go func() {
		if !p.mu.TryLock() {
			appLog.Debug("capture already running; skipped", "generation", snap.Generation)
			return
		}
		defer p.mu.Unlock()

		opts := capture.Options{
			URL:        "http://" + p.conf.Listen + "/",
			OutputPath: p.conf.Capture.OutputPath,
			Width:      p.conf.Capture.Width,
			Height:     p.conf.Capture.Height,
			Timeout:    p.conf.CaptureTimeout(),
		}
		if err := capture.CapturePagePNG(p.ctx, opts); err != nil {
			appLog.Error("page capture failed", err, "generation", snap.Generation)
			return
		}
		appLog.Info("page captured", "output", opts.OutputPath, "phase", snap.Phase)
	}()
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/vacances/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one refresh, print the state as JSON and exit")
	flag.BoolVar(&cfg.capture, "capture", false, "Capture a PNG of the countdown page after each refresh")
	flag.BoolVar(&cfg.debug, "debug", false, "Debug logging with human-readable output")

	flag.Parse()

	return cfg
}
