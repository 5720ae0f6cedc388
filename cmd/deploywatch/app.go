package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aleister1102/deploywatch/internal/common"
	"github.com/aleister1102/deploywatch/internal/config"
	"github.com/aleister1102/deploywatch/internal/detector"
	"github.com/aleister1102/deploywatch/internal/history"
	"github.com/aleister1102/deploywatch/internal/host"
	"github.com/aleister1102/deploywatch/internal/httpclient"
	"github.com/aleister1102/deploywatch/internal/notifier"
	"github.com/aleister1102/deploywatch/internal/statusserver"
	"github.com/rs/zerolog"
)

const sinkTimeout = 15 * time.Second

// app wires the detector to the terminal, the reload command and the sinks.
type app struct {
	logger   zerolog.Logger
	client   *httpclient.HTTPClient
	history  *history.DB
	terminal *host.Terminal
	// watchVisibility feeds host visibility changes; host.WatchVisibility outside tests.
	watchVisibility func(context.Context, func(bool), zerolog.Logger)

	mu       sync.RWMutex
	cfg      *config.GlobalConfig
	notifier *notifier.DiscordNotifier
}

func newApp(cfg *config.GlobalConfig, logger zerolog.Logger, in io.Reader, out io.Writer) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger.With().Str("component", "App").Logger(),
		terminal: host.NewTerminal(in, out),

		watchVisibility: host.WatchVisibility,
	}

	client, err := httpclient.NewHTTPClientBuilder(logger).
		WithConfig(cfg.HTTPClientConfig.ToClientConfig()).
		Build()
	if err != nil {
		return nil, common.WrapError(err, "failed to create HTTP client")
	}
	a.client = client

	a.notifier, err = notifier.NewDiscordNotifier(cfg.NotificationConfig, cfg.DetectorConfig.BaseURL, client, logger)
	if err != nil {
		return nil, err
	}

	if cfg.HistoryConfig.Enabled {
		a.history, err = history.NewDB(cfg.HistoryConfig.SQLiteDBPath, cfg.HistoryConfig.MaxEvents, logger)
		if err != nil {
			return nil, common.WrapError(err, "failed to open history database")
		}
	}
	return a, nil
}

func (a *app) close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close history database")
		}
	}
}

// buildDetector creates a detector from cfg. Auto mode with immediate set starts polling.
func (a *app) buildDetector(cfg *config.GlobalConfig) (*detector.Detector, error) {
	opts, err := cfg.DetectorConfig.ToOptions()
	if err != nil {
		return nil, err
	}
	opts.OnDetected = a.onDetected
	opts.OnError = a.onError
	if opts.NotifyType == detector.NotifyCustom {
		autoReload := cfg.HostConfig.AutoReload
		opts.OnUpdate = func(context.Context) (bool, error) {
			a.terminal.Printf("New deployment detected, auto_reload=%t\n", autoReload)
			return autoReload, nil
		}
	}

	fetcher, err := detector.NewHTTPFetcher(opts.BaseURL, opts.CacheControl, a.client, a.logger)
	if err != nil {
		return nil, err
	}
	h := host.New(a.terminal, host.NewCommandReloader(cfg.HostConfig.ReloadCommand, cfg.HostConfig.ReloadTimeout(), a.logger))
	return detector.New(opts, fetcher, h, a.logger)
}

func (a *app) sinks() (string, *notifier.DiscordNotifier) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg.DetectorConfig.BaseURL, a.notifier
}

func (a *app) config() *config.GlobalConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// applyConfig swaps in a reloaded configuration for the sinks.
func (a *app) applyConfig(cfg *config.GlobalConfig) error {
	n, err := notifier.NewDiscordNotifier(cfg.NotificationConfig, cfg.DetectorConfig.BaseURL, a.client, a.logger)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.cfg = cfg
	a.notifier = n
	a.mu.Unlock()
	return nil
}

func (a *app) onDetected(update detector.Update) {
	a.terminal.Printf("Deployment detected at %s: %d added, %d removed\n",
		update.DetectedAt.Format(time.RFC3339), len(update.Added), len(update.Removed))
	for _, r := range update.Added {
		a.terminal.Printf("  + %s\n", r)
	}
	for _, r := range update.Removed {
		a.terminal.Printf("  - %s\n", r)
	}

	baseURL, n := a.sinks()
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if a.history != nil {
		if _, err := a.history.RecordUpdate(ctx, baseURL, update); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to record deployment")
		}
	}
	if err := n.NotifyUpdate(ctx, update); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to notify deployment")
	}
}

func (a *app) onError(err error) {
	a.logger.Error().Err(err).Msg("Detector error")

	baseURL, n := a.sinks()
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if a.history != nil {
		if _, herr := a.history.RecordError(ctx, baseURL, err, time.Now()); herr != nil {
			a.logger.Warn().Err(herr).Msg("Failed to record error")
		}
	}
	if nerr := n.NotifyError(ctx, err); nerr != nil {
		a.logger.Warn().Err(nerr).Msg("Failed to notify error")
	}
}

// runCheck seeds, waits, then checks once. It reports whether a deployment was seen.
func (a *app) runCheck(ctx context.Context, wait time.Duration) (bool, error) {
	cfg := *a.config()
	cfg.DetectorConfig.PollingIntervalMs = nil
	d, err := a.buildDetector(&cfg)
	if err != nil {
		return false, err
	}

	if _, err := d.CheckNow(ctx); err != nil {
		return false, common.WrapError(err, "initial check failed")
	}
	a.logger.Info().Dur("wait", wait).Msg("Baseline recorded, waiting")

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(wait):
	}

	updated, err := d.CheckUpdate(ctx)
	a.logger.Info().Str("stats", d.Stats().String()).Bool("updated", updated).Msg("Check finished")
	return updated, err
}

// runWatch runs until ctx ends. In auto mode polling starts at once; in manual
// mode every input line triggers a check. cfgChanges delivers reloaded
// configurations that replace the detector.
func (a *app) runWatch(ctx context.Context, cfgChanges <-chan *config.GlobalConfig) error {
	d, err := a.buildDetector(a.config())
	if err != nil {
		return err
	}
	var active atomic.Pointer[detector.Detector]
	active.Store(d)
	var visible atomic.Bool
	visible.Store(true)
	a.watchVisibility(ctx, func(v bool) {
		visible.Store(v)
		active.Load().SetVisible(v)
	}, a.logger)
	if err := a.startStatusServer(ctx, &active); err != nil {
		d.Stop()
		return err
	}
	a.begin(ctx, d)

	inputClosed := false
	for {
		// Auto mode leaves the input to Confirm.
		var lines <-chan string
		if d.Mode() == detector.ModeManual && !inputClosed {
			lines = a.terminal.Lines()
		}

		select {
		case <-ctx.Done():
			d.Stop()
			a.logger.Info().Str("stats", d.Stats().String()).Msg("Detector stopped")
			return nil

		case cfg, ok := <-cfgChanges:
			if !ok {
				cfgChanges = nil
				continue
			}
			next, err := a.buildDetector(cfg)
			if err != nil {
				a.logger.Error().Err(err).Msg("Reloaded configuration rejected, keeping the running detector")
				continue
			}
			if err := a.applyConfig(cfg); err != nil {
				next.Stop()
				a.logger.Error().Err(err).Msg("Reloaded configuration rejected, keeping the running detector")
				continue
			}
			d.Stop()
			d = next
			active.Store(d)
			d.SetVisible(visible.Load())
			a.logger.Info().Str("mode", d.Mode().String()).Msg("Detector rebuilt from reloaded configuration")
			a.begin(ctx, d)

		case _, ok := <-lines:
			if !ok {
				inputClosed = true
				continue
			}
			updated, err := d.CheckUpdate(ctx)
			if err != nil {
				a.onError(err)
				continue
			}
			if !updated {
				a.terminal.Printf("No new deployment\n")
			}
		}
	}
}

func (a *app) startStatusServer(ctx context.Context, active *atomic.Pointer[detector.Detector]) error {
	sc := a.config().StatusConfig
	if !sc.Enabled {
		return nil
	}
	var events statusserver.EventLister
	if a.history != nil {
		events = a.history
	}
	srv := statusserver.New(func() statusserver.DetectorView { return active.Load() }, events, a.logger)
	return srv.Start(ctx, sc.ListenAddr)
}

func (a *app) begin(ctx context.Context, d *detector.Detector) {
	a.logger.Info().Str("mode", d.Mode().String()).Str("base_url", a.config().DetectorConfig.BaseURL).Msg("Watching for deployments")
	if d.Mode() == detector.ModeManual {
		a.terminal.Printf("Manual mode: press Enter to check for a new deployment\n")
		if _, err := d.CheckNow(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Initial check failed")
		}
		return
	}
	d.Start()
}

// printHistory writes the last n events.
func printHistory(ctx context.Context, db *history.DB, n int, out io.Writer) error {
	events, err := db.Recent(ctx, n)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(out, "No recorded events")
		return nil
	}
	for _, ev := range events {
		switch ev.Kind {
		case history.KindUpdate:
			fmt.Fprintf(out, "%s  update  %s  +%d -%d  (%d scripts)\n",
				ev.OccurredAt.Format(time.RFC3339), ev.BaseURL, len(ev.Added), len(ev.Removed), ev.Scripts)
		default:
			fmt.Fprintf(out, "%s  %s  %s  %s\n", ev.OccurredAt.Format(time.RFC3339), ev.Kind, ev.BaseURL, ev.Message)
		}
	}
	return nil
}
