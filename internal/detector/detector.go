package detector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aleister1102/deploywatch/internal/common"
	"github.com/rs/zerolog"
)

// Host is the environment the watched application runs in.
type Host interface {
	// Confirm asks the user with message and returns the answer.
	Confirm(ctx context.Context, message string) bool
	// Reload reloads the application.
	Reload(ctx context.Context) error
}

// Stats are cumulative counters since construction.
type Stats struct {
	Checks         int64
	Updates        int64
	FetchFailures  int64
	CallbackErrors int64
	Reloads        int64
	LastCheck      time.Time
	LastUpdate     time.Time
}

// Detector polls entry points and reports when their script references change.
type Detector struct {
	opts      Options
	fetcher   Fetcher
	host      Host
	extractor Extractor
	matcher   Matcher
	differ    *Differ
	logger    zerolog.Logger

	mu         sync.Mutex
	state      State
	visible    bool
	timer      *time.Timer
	generation uint64

	// checkMu serializes whole detection rounds, auto and manual alike.
	checkMu sync.Mutex

	checks         atomic.Int64
	updates        atomic.Int64
	fetchFailures  atomic.Int64
	callbackErrors atomic.Int64
	reloads        atomic.Int64
	lastCheck      atomic.Int64
	lastUpdate     atomic.Int64
}

// New validates opts and builds a Detector. A nil fetcher is replaced by an
// HTTPFetcher on opts.BaseURL. In auto mode with Immediate set, polling starts
// right away.
func New(opts Options, fetcher Fetcher, host Host, logger zerolog.Logger) (*Detector, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if host == nil {
		return nil, common.NewValidationError("host", nil, "a host is required")
	}

	detectorLogger := logger.With().Str("component", "Detector").Logger()
	if opts.Debug {
		detectorLogger = detectorLogger.Level(zerolog.DebugLevel)
	} else if detectorLogger.GetLevel() < zerolog.InfoLevel {
		detectorLogger = detectorLogger.Level(zerolog.InfoLevel)
	}

	extractor, err := newExtractor(opts)
	if err != nil {
		return nil, err
	}
	matcher, err := NewMatcher(opts.Exclude)
	if err != nil {
		return nil, err
	}
	if fetcher == nil {
		fetcher, err = NewHTTPFetcher(opts.BaseURL, opts.CacheControl, nil, logger)
		if err != nil {
			return nil, err
		}
	}

	d := &Detector{
		opts:      opts,
		fetcher:   fetcher,
		host:      host,
		extractor: extractor,
		matcher:   matcher,
		differ:    NewDiffer(),
		logger:    detectorLogger,
		visible:   true,
	}

	d.logger.Debug().
		Str("mode", opts.mode().String()).
		Dur("interval", opts.PollingInterval).
		Strs("index_paths", opts.IndexPaths).
		Str("notify_type", string(opts.NotifyType)).
		Msg("Detector created")

	if opts.mode() == ModeAuto && opts.Immediate {
		d.Start()
	}
	return d, nil
}

func (d *Detector) Mode() Mode {
	return d.opts.mode()
}

func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Detector) Stats() Stats {
	s := Stats{
		Checks:         d.checks.Load(),
		Updates:        d.updates.Load(),
		FetchFailures:  d.fetchFailures.Load(),
		CallbackErrors: d.callbackErrors.Load(),
		Reloads:        d.reloads.Load(),
	}
	if ns := d.lastCheck.Load(); ns != 0 {
		s.LastCheck = time.Unix(0, ns)
	}
	if ns := d.lastUpdate.Load(); ns != 0 {
		s.LastUpdate = time.Unix(0, ns)
	}
	return s
}

// Snapshot returns the last observed references.
func (d *Detector) Snapshot() ([]Reference, bool) {
	return d.differ.Snapshot()
}

// Start schedules the next check. It is a no-op in manual mode and while a
// check is already scheduled or running.
func (d *Detector) Start() {
	if d.opts.mode() == ModeManual {
		d.logger.Debug().Msg("Start ignored in manual mode")
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	next, act := transition(d.state, eventStart)
	d.state = next
	if act == actionSchedule {
		d.scheduleLocked()
		d.logger.Debug().Dur("interval", d.opts.PollingInterval).Msg("Polling started")
	}
}

// Stop cancels the pending timer. A round already running finishes and keeps
// its Snapshot but does not reschedule.
func (d *Detector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev := d.state
	next, _ := transition(d.state, eventStop)
	d.state = next
	d.cancelTimerLocked()
	if prev != StateIdle {
		d.logger.Debug().Str("from", prev.String()).Msg("Polling stopped")
	}
}

// Reset stops polling and discards the Snapshot.
func (d *Detector) Reset() {
	d.Stop()
	d.differ.Reset()
	d.logger.Debug().Msg("Snapshot discarded")
}

// SetVisible feeds the host's visibility. Becoming visible while paused runs a
// check at once.
func (d *Detector) SetVisible(visible bool) {
	d.mu.Lock()
	d.visible = visible
	if !visible {
		d.mu.Unlock()
		return
	}
	next, act := transition(d.state, eventVisible)
	d.state = next
	d.mu.Unlock()

	if act == actionCheck {
		d.logger.Debug().Msg("Visible again, resuming")
		go d.runRound()
	}
}

// CheckNow runs one detection without notifying or reloading.
func (d *Detector) CheckNow(ctx context.Context) (bool, error) {
	updated, _, err := d.detect(ctx)
	return updated, err
}

// CheckUpdate runs one detection and, on a change, notifies and resolves the
// reload decision. Decision and reload failures are returned.
func (d *Detector) CheckUpdate(ctx context.Context) (bool, error) {
	updated, upd, err := d.detect(ctx)
	if err != nil || !updated {
		return updated, err
	}
	_, err = d.notify(ctx, upd)
	return true, err
}

func (d *Detector) scheduleLocked() {
	d.cancelTimerLocked()
	gen := d.generation
	d.timer = time.AfterFunc(d.opts.PollingInterval, func() {
		d.onTimer(gen)
	})
}

func (d *Detector) cancelTimerLocked() {
	d.generation++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Detector) onTimer(gen uint64) {
	d.mu.Lock()
	if gen != d.generation {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	ev := eventFire
	if d.opts.PauseOnHidden && !d.visible {
		ev = eventFireHidden
	}
	next, act := transition(d.state, ev)
	d.state = next
	d.mu.Unlock()

	if next == StatePaused {
		d.logger.Debug().Msg("Hidden, polling paused")
	}
	if act == actionCheck {
		d.runRound()
	}
}

// runRound is one auto-mode check. Failures go to OnError and never stop the loop.
func (d *Detector) runRound() {
	ctx := context.Background()
	reloaded := false
	defer func() {
		if r := recover(); r != nil {
			err := common.NewError("panic in detection round: %v", r)
			d.logger.Error().Err(err).Msg("Detection round panicked")
			d.reportError(err)
		}
		d.finishRound(reloaded)
	}()

	updated, upd, err := d.detect(ctx)
	if err != nil {
		d.logger.Error().Err(err).Msg("Detection round failed")
		d.reportError(err)
		return
	}
	if !updated {
		return
	}
	reloaded, err = d.notify(ctx, upd)
	if err != nil {
		d.logger.Error().Err(err).Msg("Update handling failed, polling continues")
		d.reportError(err)
	}
}

func (d *Detector) finishRound(reloaded bool) {
	ev := eventRoundDone
	if reloaded {
		ev = eventReloaded
	}

	d.mu.Lock()
	prev := d.state
	next, act := transition(prev, ev)
	d.state = next
	if act == actionSchedule {
		d.scheduleLocked()
	}
	d.mu.Unlock()

	if reloaded && prev == StateChecking && d.opts.ResumeAfterReload {
		d.Start()
	}
}

// detect runs fetch, extract, filter and diff as one serialized round.
func (d *Detector) detect(ctx context.Context) (bool, *Update, error) {
	d.checkMu.Lock()
	defer d.checkMu.Unlock()

	if err := ctx.Err(); err != nil {
		return false, nil, err
	}

	var refs []Reference
	for _, res := range FetchAll(ctx, d.fetcher, d.opts.IndexPaths) {
		if res.Err == nil {
			var sources []string
			sources, res.Err = d.extractor.Extract(res.Body)
			if res.Err == nil {
				refs = append(refs, filterSources(res.Path, sources, d.matcher)...)
				continue
			}
		}
		d.fetchFailures.Add(1)
		d.logger.Warn().Err(res.Err).Str("entry_point", res.Path).Msg("Entry point skipped this round")
		d.reportError(common.WrapErrorf(res.Err, "entry point '%s'", res.Path))
	}

	// A caller that gave up does not get to overwrite the Snapshot with a partial view.
	if err := ctx.Err(); err != nil {
		return false, nil, err
	}

	prev, _ := d.differ.Snapshot()
	updated := d.differ.NeedsUpdate(refs)
	now := time.Now()
	d.checks.Add(1)
	d.lastCheck.Store(now.UnixNano())

	d.logger.Debug().Int("references", len(refs)).Bool("updated", updated).Msg("Check completed")
	if !updated {
		return false, nil, nil
	}

	added, removed := Changes(prev, refs)
	d.updates.Add(1)
	d.lastUpdate.Store(now.UnixNano())
	d.logger.Info().Int("added", len(added)).Int("removed", len(removed)).Msg("Deployment change detected")

	return true, &Update{
		Previous:   prev,
		Current:    append([]Reference(nil), refs...),
		Added:      added,
		Removed:    removed,
		DetectedAt: now,
	}, nil
}

// notify fires OnDetected, resolves the reload decision and reloads when approved.
func (d *Detector) notify(ctx context.Context, upd *Update) (bool, error) {
	if d.opts.OnDetected != nil {
		d.opts.OnDetected(*upd)
	}

	reload, err := d.decide(ctx)
	if err != nil {
		d.callbackErrors.Add(1)
		return false, common.NewCallbackError("onUpdate", err)
	}
	if !reload {
		d.logger.Info().Msg("Reload declined")
		return false, nil
	}

	if err := d.host.Reload(ctx); err != nil {
		return false, common.WrapError(err, "reload failed")
	}
	d.reloads.Add(1)
	d.logger.Info().Msg("Reload performed")
	return true, nil
}

func (d *Detector) decide(ctx context.Context) (bool, error) {
	if d.opts.NotifyType == NotifyCustom && d.opts.OnUpdate != nil {
		return d.opts.OnUpdate(ctx)
	}
	return d.host.Confirm(ctx, d.opts.PromptMessage), nil
}

func (d *Detector) reportError(err error) {
	if d.opts.OnError != nil {
		d.opts.OnError(err)
	}
}

func (s Stats) String() string {
	return fmt.Sprintf("checks=%d updates=%d fetch_failures=%d callback_errors=%d reloads=%d",
		s.Checks, s.Updates, s.FetchFailures, s.CallbackErrors, s.Reloads)
}
