// Package tracker keeps a continuous, always-usable position stream on top of the
// location providers, falling back to a fixed simulated coordinate when they fail.
package tracker

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benmeehan/sos-agent/pkg/location"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

// FallbackCoordinate is used whenever no real fix is available (Jamshedpur, India).
var FallbackCoordinate = location.Coordinate{Lat: 22.8046, Lng: 86.2029}

// ErrAlreadyStarted is returned by Start on a tracker that has been started before.
var ErrAlreadyStarted = errors.New("location tracker is already started")

// Phase is the tracker's position in its acquisition state machine.
type Phase string

const (
	PhaseUnstarted    Phase = "unstarted"
	PhaseAcquiringFix Phase = "acquiring_fix"
	PhaseTracking     Phase = "tracking"
	PhaseSimulated    Phase = "simulated"
	PhaseStopped      Phase = "stopped"
)

// LocationState is the tracker's published view.
type LocationState struct {
	Current     location.Coordinate  `json:"current"`
	Initial     *location.Coordinate `json:"initial,omitempty"`
	IsSimulated bool                 `json:"is_simulated"`
	Error       string               `json:"error,omitempty"` // advisory, for display only
	Phase       Phase                `json:"phase"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// Config holds the two request profiles and the fallback position.
type Config struct {
	QuickFix location.Options
	Watch    location.Options
	Fallback location.Coordinate
}

// DefaultConfig returns a low accuracy 5s quick fix accepting a minute old cache, followed
// by a high accuracy watch with 10s per-update bounds.
func DefaultConfig() Config {
	return Config{
		QuickFix: location.Options{EnableHighAccuracy: false, Timeout: 5 * time.Second, MaximumAge: 60 * time.Second},
		Watch:    location.Options{EnableHighAccuracy: true, Timeout: 10 * time.Second, MaximumAge: 10 * time.Second},
		Fallback: FallbackCoordinate,
	}
}

// Tracker runs the quick-fix-then-watch sequence for one session.
type Tracker struct {
	provider location.Provider
	watcher  location.Watcher
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time

	// notifyMu orders state changes together with their notifications so listeners
	// see updates in the order they were applied. It is taken before mu.
	notifyMu sync.Mutex

	mu      sync.Mutex
	state   LocationState
	hasFix  bool // a real fix has been seen
	started bool
	stopped bool
	handle  location.WatchHandle
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	listeners cmap.ConcurrentMap[string, func(LocationState)]
	nextID    atomic.Uint64
}

// NewTracker creates an unstarted tracker. A nil provider means the platform has no
// geolocation; a nil watcher skips the continuous phase.
func NewTracker(provider location.Provider, watcher location.Watcher, cfg Config, logger zerolog.Logger) *Tracker {
	if !cfg.Fallback.Valid() {
		cfg.Fallback = FallbackCoordinate
	}
	return &Tracker{
		provider:  provider,
		watcher:   watcher,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		state:     LocationState{Current: cfg.Fallback, Phase: PhaseUnstarted},
		listeners: cmap.New[func(LocationState)](),
	}
}

// Start kicks off the quick fix and the watch without waiting for either.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	ctx, t.cancel = context.WithCancel(ctx)
	t.state.Phase = PhaseAcquiringFix
	t.mu.Unlock()

	if t.provider == nil {
		t.logger.Warn().Msg("Geolocation unavailable, using simulated location")
		t.simulate(location.ErrUnsupported)
		return nil
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.acquireQuickFix(ctx)
	}()

	t.startWatch(ctx)

	t.logger.Info().
		Dur("quick_fix_timeout", t.cfg.QuickFix.Timeout).
		Dur("watch_timeout", t.cfg.Watch.Timeout).
		Msg("Location tracker started")
	return nil
}

func (t *Tracker) acquireQuickFix(ctx context.Context) {
	fixCtx := ctx
	if t.cfg.QuickFix.Timeout > 0 {
		var cancel context.CancelFunc
		fixCtx, cancel = context.WithTimeout(ctx, t.cfg.QuickFix.Timeout)
		defer cancel()
	}

	loc, err := t.provider.GetLocation(fixCtx, t.cfg.QuickFix)
	if ctx.Err() != nil {
		return
	}
	if err == nil {
		err = location.Validate(loc)
	}
	if err != nil {
		t.logger.Error().Err(err).Msg("Error getting initial location")
		t.onFailure(err)
		return
	}
	t.onFix(loc)
}

func (t *Tracker) startWatch(ctx context.Context) {
	if t.watcher == nil {
		return
	}
	handle, err := t.watcher.Watch(ctx, t.cfg.Watch, t.onFix, func(err error) {
		t.logger.Error().Err(err).Msg("Error watching location")
		t.onFailure(err)
	})
	if err != nil {
		t.logger.Error().Err(err).Msg("Error setting up location watch")
		t.simulate(err)
		return
	}

	t.mu.Lock()
	if t.stopped {
		// Stop won the race; release the watch we just opened.
		t.mu.Unlock()
		t.clearWatch(handle)
		return
	}
	t.handle = handle
	t.mu.Unlock()
}

// onFix records a successful fix from either phase; the latest one wins.
func (t *Tracker) onFix(loc location.Location) {
	if err := location.Validate(loc); err != nil {
		t.onFailure(err)
		return
	}
	coord := loc.Coordinate()

	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.hasFix = true
	t.state.Current = coord
	if t.state.Initial == nil {
		initial := coord
		t.state.Initial = &initial
	}
	t.state.IsSimulated = false
	t.state.Error = ""
	t.state.Phase = PhaseTracking
	snapshot := t.touch()
	t.mu.Unlock()

	t.logger.Debug().Float64("lat", coord.Lat).Float64("lng", coord.Lng).Msg("Location updated")
	t.notify(snapshot)
}

// onFailure falls back to the simulated coordinate unless a real fix was seen before,
// in which case the last good position is kept.
func (t *Tracker) onFailure(err error) {
	t.mu.Lock()
	hasFix := t.hasFix
	t.mu.Unlock()
	if hasFix {
		return
	}
	t.simulate(err)
}

func (t *Tracker) simulate(cause error) {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	if t.stopped || t.hasFix {
		t.mu.Unlock()
		return
	}
	fallback := t.cfg.Fallback
	t.state.Current = fallback
	if t.state.Initial == nil {
		t.state.Initial = &fallback
	}
	t.state.IsSimulated = true
	if cause != nil {
		t.state.Error = cause.Error()
	}
	t.state.Phase = PhaseSimulated
	snapshot := t.touch()
	t.mu.Unlock()

	t.logger.Warn().
		Float64("lat", fallback.Lat).
		Float64("lng", fallback.Lng).
		Msg("Using simulated location")
	t.notify(snapshot)
}

// touch stamps the state and returns a copy safe to hand out. mu must be held.
func (t *Tracker) touch() LocationState {
	t.state.UpdatedAt = t.now()
	return t.copyState()
}

func (t *Tracker) copyState() LocationState {
	s := t.state
	if s.Initial != nil {
		initial := *s.Initial
		s.Initial = &initial
	}
	return s
}

func (t *Tracker) notify(s LocationState) {
	for _, fn := range t.listeners.Items() {
		fn(s)
	}
}

// Stop cancels the quick fix and clears the watch. Clearing failures are logged only.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.started || t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	handle := t.handle
	t.handle = nil
	cancel := t.cancel
	t.state.Phase = PhaseStopped
	t.mu.Unlock()

	if handle != nil {
		t.clearWatch(handle)
	}
	cancel()
	t.wg.Wait()
	t.logger.Info().Msg("Location tracker stopped")
}

func (t *Tracker) clearWatch(h location.WatchHandle) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error().Interface("panic", r).Msg("Error clearing location watch")
		}
	}()
	if err := h.Clear(); err != nil {
		t.logger.Error().Err(err).Msg("Error clearing location watch")
	}
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() LocationState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.copyState()
}

// Subscribe registers fn for every subsequent state change. fn runs on the goroutine
// that produced the change and must not block. The returned func unregisters it.
func (t *Tracker) Subscribe(fn func(LocationState)) func() {
	id := strconv.FormatUint(t.nextID.Add(1), 10)
	t.listeners.Set(id, fn)
	return func() { t.listeners.Remove(id) }
}
