// Package tracker drives the countdown: it refreshes the vacation catalog,
// resolves the active window and keeps exactly one progress ticker alive
// for it.
package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"vacances/internal/clock"
	appLog "vacances/internal/log"
	"vacances/internal/metrics"
	"vacances/internal/model"
	"vacances/internal/settings"
	"vacances/internal/vacation"
)

// Phase is the display state of the countdown.
type Phase string

const (
	PhaseNoData            Phase = "no_data"
	PhaseNoVacationPlanned Phase = "no_vacation_planned"
	PhaseCountingDown      Phase = "counting_down"
	PhaseOnVacation        Phase = "on_vacation"
	PhaseError             Phase = "error"
)

// User-facing messages.
const (
	MessageFetchFailed  = "Une erreur est survenue."
	MessageEmptyCatalog = "Aucune donnée de vacances trouvée pour cette zone/année."
	MessageNoVacation   = "Plus de vacances prévues pour cette année scolaire."
)

// CatalogSource fetches the raw vacation catalog for a zone and year.
type CatalogSource interface {
	Fetch(ctx context.Context, zone model.Zone, year vacation.SchoolYear) ([]model.VacationRecord, error)
}

// SettingsSource provides the settings snapshot for a refresh.
type SettingsSource interface {
	Load() (settings.Settings, error)
}

// Snapshot is an immutable view of the tracker state.
type Snapshot struct {
	Phase      Phase                  `json:"phase"`
	Window     *model.ActiveWindow    `json:"window,omitempty"`
	Progress   model.ProgressState    `json:"progress"`
	Zone       model.Zone             `json:"zone"`
	SchoolYear string                 `json:"school_year"`
	Rounding   model.RoundingMethod   `json:"rounding_method"`
	LabelStyle model.LabelStyle       `json:"label_style"`
	Catalog    []model.VacationRecord `json:"catalog"`
	Message    string                 `json:"message,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Generation uint64                 `json:"generation"`
	// RefreshedAt is zero until the first refresh completes.
	RefreshedAt time.Time `json:"refreshed_at,omitzero"`
}

// Options configures a Tracker. Zero values get sensible defaults.
type Options struct {
	Location     *time.Location
	TickInterval time.Duration
	LabelStyle   model.LabelStyle
	Clock        clock.Clock
	Metrics      metrics.Recorder
	// OnCommit, if set, is called after each refresh result is published.
	OnCommit func(Snapshot)
}

// Tracker owns the refresh pipeline and the progress ticker.
type Tracker struct {
	catalog  CatalogSource
	settings SettingsSource
	loc      *time.Location
	tick     time.Duration
	style    model.LabelStyle
	clock    clock.Clock
	metrics  metrics.Recorder
	onCommit func(Snapshot)

	mu sync.RWMutex
	// latest is the generation of the most recently started refresh.
	latest   uint64
	state    Snapshot
	stopTick context.CancelFunc
	tickDone chan struct{}
	closed   bool
}

// New builds a Tracker in the NoData phase. Call Refresh to load data.
func New(catalog CatalogSource, store SettingsSource, opts Options) *Tracker {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.LabelStyle == "" {
		opts.LabelStyle = model.LabelCompact
	}
	if opts.Clock == nil {
		opts.Clock = clock.SystemClock{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NopRecorder{}
	}
	return &Tracker{
		catalog:  catalog,
		settings: store,
		loc:      opts.Location,
		tick:     opts.TickInterval,
		style:    opts.LabelStyle,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		onCommit: opts.OnCommit,
		state:    Snapshot{Phase: PhaseNoData, Catalog: []model.VacationRecord{}},
	}
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Refresh runs one fetch + select cycle and publishes the result, unless a
// newer refresh started in the meantime, in which case the result is
// dropped. The returned error is the cycle's own failure, if any.
func (t *Tracker) Refresh(ctx context.Context) error {
	started := time.Now()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.New("tracker: closed")
	}
	t.latest++
	gen := t.latest
	t.mu.Unlock()

	st, err := t.settings.Load()
	if err != nil {
		appLog.Error("settings load failed; using defaults", err)
		st = settings.Defaults()
	}

	now := t.clock.Now()
	year := vacation.SchoolYearAt(now, t.loc)

	next := Snapshot{
		Zone:       st.Zone,
		SchoolYear: year.Label(),
		Rounding:   st.RoundingMethod,
		LabelStyle: t.style,
		Catalog:    []model.VacationRecord{},
		Generation: gen,
	}

	records, cycleErr := t.catalog.Fetch(ctx, st.Zone, year)
	var outcome string
	switch {
	case cycleErr != nil:
		outcome = "fetch_error"
		next.Phase = PhaseError
		next.Message = MessageFetchFailed
		next.Error = cycleErr.Error()
	default:
		next.Catalog = vacation.Resolve(records, st.VacationOverrides)
		window, selErr := vacation.SelectActiveWindow(records, now, st.VacationOverrides, year.Start(t.loc))
		switch {
		case errors.Is(selErr, vacation.ErrEmptyCatalog):
			cycleErr = selErr
			outcome = "empty"
			next.Phase = PhaseError
			next.Message = MessageEmptyCatalog
			next.Error = selErr.Error()
		case window == nil:
			outcome = "no_vacation"
			next.Phase = PhaseNoVacationPlanned
			next.Message = MessageNoVacation
		default:
			outcome = "ok"
			next.Window = window
			next.Progress = vacation.Tick(*window, now, next.Rounding, t.style)
			next.Phase = phaseFor(*window, now)
			if next.Progress.Malformed {
				appLog.Warn("malformed countdown interval",
					"vacation", window.Name,
					"last", window.Last.Format(time.RFC3339),
					"start", window.Start.Format(time.RFC3339),
				)
			}
		}
	}
	next.RefreshedAt = t.clock.Now()

	t.metrics.RecordRefresh(outcome, time.Since(started).Seconds())

	if !t.commit(next) {
		appLog.Info("stale refresh discarded", "generation", gen, "outcome", outcome)
		return cycleErr
	}

	appLog.Info("refresh committed",
		"generation", gen,
		"phase", next.Phase,
		"zone", next.Zone,
		"school_year", next.SchoolYear,
		"records", len(next.Catalog),
	)

	return cycleErr
}

// commit publishes next if it belongs to the latest refresh and swaps the
// progress ticker. It reports whether next was published.
func (t *Tracker) commit(next Snapshot) bool {
	t.mu.Lock()
	if t.closed || next.Generation != t.latest {
		t.mu.Unlock()
		return false
	}
	t.state = next
	t.stopTickerLocked()
	if next.Phase == PhaseCountingDown {
		t.startTickerLocked(next.Generation)
	}
	t.mu.Unlock()

	t.recordProgress(next)
	if t.onCommit != nil {
		t.onCommit(next)
	}
	return true
}

// Recompute advances the progress of the current window to the clock's
// now, like a ticker firing would. It reports whether the countdown is
// still running afterwards.
func (t *Tracker) Recompute() bool {
	t.mu.RLock()
	gen := t.state.Generation
	t.mu.RUnlock()
	return t.tickOnce(gen)
}

func (t *Tracker) tickOnce(gen uint64) bool {
	now := t.clock.Now()

	t.mu.Lock()
	if t.closed || t.state.Generation != gen || t.state.Window == nil || t.state.Phase != PhaseCountingDown {
		t.mu.Unlock()
		return false
	}
	w := *t.state.Window
	t.state.Progress = vacation.Tick(w, now, t.state.Rounding, t.state.LabelStyle)
	t.state.Phase = phaseFor(w, now)
	if t.state.Phase == PhaseOnVacation {
		t.stopTickerLocked()
	}
	snap := t.state
	t.mu.Unlock()

	t.recordProgress(snap)
	if snap.Phase == PhaseOnVacation {
		appLog.Info("countdown reached vacation start", "vacation", w.Name)
		return false
	}
	return true
}

func (t *Tracker) startTickerLocked(gen uint64) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.stopTick = cancel
	t.tickDone = done

	interval := t.tick
	go func() {
		defer close(done)
		tk := time.NewTicker(interval)
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				if !t.tickOnce(gen) {
					return
				}
			}
		}
	}()
}

// stopTickerLocked cancels the running ticker without waiting for it; the
// generation check in tickOnce keeps a late tick from writing.
func (t *Tracker) stopTickerLocked() {
	if t.stopTick != nil {
		t.stopTick()
		t.stopTick = nil
	}
}

// Close stops the ticker and waits for it to exit. Later refreshes fail.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.stopTickerLocked()
	done := t.tickDone
	t.tickDone = nil
	t.mu.Unlock()

	if done != nil {
		<-done
	}
}

// ticking reports whether a ticker goroutine is currently registered.
func (t *Tracker) ticking() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stopTick != nil
}

func (t *Tracker) recordProgress(s Snapshot) {
	if s.Window == nil {
		t.metrics.RecordProgress("", 0)
		return
	}
	t.metrics.RecordProgress(s.Window.Name, s.Progress.Percentage)
}

func phaseFor(w model.ActiveWindow, now time.Time) Phase {
	if w.Current || !now.Before(w.Start) {
		return PhaseOnVacation
	}
	return PhaseCountingDown
}
