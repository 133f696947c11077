package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	rootpkg "tools.zach/dev/editorcord"
	"tools.zach/dev/editorcord/internal/config"
	"tools.zach/dev/editorcord/internal/editor"
	"tools.zach/dev/editorcord/internal/git"
	"tools.zach/dev/editorcord/internal/icons"
	"tools.zach/dev/editorcord/internal/logger"
	"tools.zach/dev/editorcord/internal/metrics"
	"tools.zach/dev/editorcord/internal/presence"
	"tools.zach/dev/editorcord/internal/update"
)

// ///////////////////////////////////////////////
// Startup
// ///////////////////////////////////////////////

// loadConfig writes the default config on first run and loads it.
func loadConfig(dp DataPaths) (*config.Config, error) {
	if err := os.MkdirAll(dp.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if _, err := os.Stat(dp.Config()); errors.Is(err, os.ErrNotExist) {
		if writeErr := os.WriteFile(dp.Config(), rootpkg.DefaultConfigTOML, 0o644); writeErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to write default config: %v\n", writeErr)
		}
	}
	cfg, err := config.Load(dp.Root)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// iconSource maps the icons config section onto an [icons.Source].
func iconSource(cfg *config.Config) icons.Source {
	return icons.Source{Kind: cfg.Icons.Source, URL: cfg.Icons.URL, File: cfg.Icons.File}
}

// loadIcons fetches the configured icon table, falling back to the cache and
// then the embedded table.
func loadIcons(ctx context.Context, cfg *config.Config, dp DataPaths) *icons.Store {
	table, err := icons.Fetch(ctx, iconSource(cfg), dp.IconsCache())
	if err != nil {
		slog.Warn("icon table fetch used fallback", "error", err)
	}
	return icons.NewStore(table)
}

// newBuilder returns the payload builder used by the daemon and preview.
func newBuilder(cfg *config.Config, store *icons.Store, m *metrics.Metrics) *presence.Builder {
	b := presence.NewBuilder(cfg, store, git.Local{})
	if m != nil {
		b.OnRenderError = func(error) { m.RenderFailures.Inc() }
	}
	return b
}

// initialAppID returns the application ID of the most recently active
// editor, or the global one when no editor has reported yet.
func initialAppID(cfg *config.Config, dp DataPaths) string {
	if s, _ := editor.FindLatest(dp.Root); s != nil {
		return cfg.Editor(s.Editor).AppID
	}
	return cfg.Discord.AppID
}

// runDaemon starts the daemon and blocks until it exits. When console is
// non-nil every log line is mirrored to it.
func runDaemon(ctx context.Context, dp DataPaths, console io.Writer) error {
	cfg, err := loadConfig(dp)
	if err != nil {
		return err
	}

	lock, err := acquirePIDLock(dp.PID())
	if err != nil {
		return err
	}
	defer lock.Release()

	log, logCloser, err := logger.NewLogger(logger.Options{
		Path:      dp.Log(),
		Level:     logger.ParseLevel(cfg.Log.Level),
		MaxSizeMB: cfg.Log.MaxSizeMB,
		Console:   console,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(log)

	ver := resolveVersion()
	slog.Info("editorcord starting", "version", ver, "data_dir", dp.Root)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("update check panic", "error", r)
			}
		}()
		update.Check(ctx, ver)
	}()

	m := metrics.New()
	if cfg.Metrics.Listen != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Listen); err != nil {
				slog.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	store := loadIcons(ctx, cfg, dp)

	appID := initialAppID(cfg, dp)
	client := newDiscordClient(appID)
	reconnectInterval := time.Duration(cfg.Behavior.ReconnectIntervalSeconds) * time.Second
	if err := connectWithRetry(client, reconnectInterval); err != nil {
		logger.Fail(log, "failed to connect to Discord", "error", err)
		return err
	}
	m.SetConnected(true)
	slog.Info("connected to Discord", "app_id", appID)

	d := &daemon{
		cfg:               cfg,
		paths:             dp,
		builder:           newBuilder(cfg, store, m),
		metrics:           m,
		client:            client,
		newClient:         newDiscordClient,
		reconnectInterval: reconnectInterval,
		ls:                loopState{activeAppID: appID},
	}
	defer func() { d.client.Close() }()

	watcher, err := editor.NewWatcher(dp.Root)
	if err != nil {
		logger.Fail(log, "failed to create watcher", "error", err)
		return err
	}
	defer watcher.Close()
	if watcher.Polling() {
		slog.Info("using polling mode for file watching")
	}

	refreshed := make(chan struct{}, 1)
	refresh := func(ctx context.Context) {
		refreshIcons(ctx, store, cfg, dp, m)
		update.Check(ctx, ver)
		select {
		case refreshed <- struct{}{}:
		default:
		}
	}
	stopSchedule, err := scheduleRefresh(ctx, cfg.Behavior.RefreshSchedule, refresh)
	if err != nil {
		return err
	}
	defer stopSchedule()

	d.run(ctx, watcher.Events(), refreshed, signalChannel())
	slog.Info("editorcord stopped")
	return nil
}

// ///////////////////////////////////////////////
// Scheduled Refresh
// ///////////////////////////////////////////////

// refreshIcons refetches the icon table and records the outcome.
func refreshIcons(ctx context.Context, store *icons.Store, cfg *config.Config, dp DataPaths, m *metrics.Metrics) {
	if err := store.Refresh(ctx, iconSource(cfg), dp.IconsCache()); err != nil {
		slog.Warn("icon table refresh used fallback", "error", err)
		m.IconRefreshes.WithLabelValues("fallback").Inc()
		return
	}
	slog.Debug("icon table refreshed")
	m.IconRefreshes.WithLabelValues("ok").Inc()
}

// scheduleRefresh runs fn on the cron spec until the returned stop function
// is called. fn receives ctx. An empty spec schedules nothing.
func scheduleRefresh(ctx context.Context, spec string, fn func(context.Context)) (stop func(), err error) {
	if spec == "" {
		return func() {}, nil
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { fn(ctx) }); err != nil {
		return nil, fmt.Errorf("refresh schedule %q: %w", spec, err)
	}
	c.Start()
	slog.Debug("refresh scheduled", "spec", spec)
	return func() { <-c.Stop().Done() }, nil
}
