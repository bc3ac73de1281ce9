// Package shake turns an acceleration stream into a one-shot trigger after a burst of
// deliberate shakes.
package shake

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/benmeehan/sos-agent/pkg/motion"
	"github.com/rs/zerolog"
)

const (
	DefaultThreshold      = 15.0
	DefaultDebounce       = 1000 * time.Millisecond
	DefaultCountThreshold = 3
)

var (
	// ErrPermissionDenied is returned when the user refused motion access.
	ErrPermissionDenied = errors.New("motion permission denied")
	// ErrUnsupported is returned when the platform has no motion sensing.
	ErrUnsupported = errors.New("motion detection is not supported on this device")
	// ErrAlreadyRunning is returned by Start on a subscribed detector.
	ErrAlreadyRunning = errors.New("shake detector is already running")
)

// Config tunes the detector.
type Config struct {
	Threshold      float64       `yaml:"threshold" validate:"gt=0"`        // Minimum L1 delta between frames
	Debounce       time.Duration `yaml:"debounce" validate:"gte=0"`        // Minimum gap between counted shakes
	CountThreshold int           `yaml:"count_threshold" validate:"gte=1"` // Shakes needed to trigger
	ResetWindow    time.Duration `yaml:"reset_window" validate:"gte=0"`    // Restart the count when shakes are further apart; 0 disables
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Threshold:      DefaultThreshold,
		Debounce:       DefaultDebounce,
		CountThreshold: DefaultCountThreshold,
	}
}

// State is the detector's private bookkeeping, exposed read-only for diagnostics.
type State struct {
	Last        motion.Sample
	HasBaseline bool
	ShakeCount  int
	LastShakeAt time.Time
}

// Event is emitted once per completed burst.
type Event struct {
	At     time.Time
	Shakes int
}

// Option customises a Detector.
type Option func(*Detector)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// Detector is a debounced multi-shake state machine bound to one sampler.
// One instance belongs to one session; it is not meant to be shared.
type Detector struct {
	cfg       Config
	sampler   motion.Sampler
	onTrigger func(Event)
	logger    zerolog.Logger
	now       func() time.Time

	mu    sync.Mutex
	state State
	armed bool
	sub   motion.Subscription
	fatal error
}

// NewDetector creates an armed detector. onTrigger is called synchronously from the
// sample path and must not block.
func NewDetector(sampler motion.Sampler, cfg Config, onTrigger func(Event), logger zerolog.Logger, opts ...Option) *Detector {
	d := &Detector{
		cfg:       cfg,
		sampler:   sampler,
		onTrigger: onTrigger,
		logger:    logger,
		now:       time.Now,
		armed:     true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start probes support and consent, then subscribes to the sampler. ErrUnsupported and
// ErrPermissionDenied are terminal: later calls return the same error without probing.
func (d *Detector) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.fatal != nil {
		err := d.fatal
		d.mu.Unlock()
		return err
	}
	if d.sub != nil {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}
	d.mu.Unlock()

	if d.sampler == nil || !d.sampler.Supported() {
		return d.fail(ErrUnsupported)
	}

	perm, err := d.sampler.RequestPermission(ctx)
	if err != nil {
		// A broken prompt is not a refusal.
		d.logger.Error().Err(err).Msg("Motion permission request failed")
	} else if perm == motion.PermissionDenied {
		return d.fail(ErrPermissionDenied)
	}

	sub, err := d.sampler.Subscribe(d.onSample)
	if err != nil {
		return fmt.Errorf("subscribe to motion stream: %w", err)
	}

	d.mu.Lock()
	d.sub = sub
	d.state.HasBaseline = false
	d.mu.Unlock()

	d.logger.Info().
		Float64("threshold", d.cfg.Threshold).
		Dur("debounce", d.cfg.Debounce).
		Int("count_threshold", d.cfg.CountThreshold).
		Str("permission", perm.String()).
		Msg("Shake detector started")
	return nil
}

func (d *Detector) fail(err error) error {
	d.mu.Lock()
	d.fatal = err
	d.mu.Unlock()
	d.logger.Warn().Err(err).Msg("Shake detection disabled")
	return err
}

// Stop releases the subscription. It is safe to call on any path, including after a
// failed Start, and never returns the sampler's unsubscribe error.
func (d *Detector) Stop() {
	d.mu.Lock()
	sub := d.sub
	d.sub = nil
	d.mu.Unlock()

	if sub == nil {
		return
	}
	if err := sub.Unsubscribe(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to unsubscribe from motion stream")
		return
	}
	d.logger.Info().Msg("Shake detector stopped")
}

func (d *Detector) onSample(s motion.Sample) {
	d.HandleSample(s, d.now())
}

// HandleSample advances the state machine with one sample observed at now and reports
// whether it completed a burst.
func (d *Detector) HandleSample(s motion.Sample, now time.Time) bool {
	d.mu.Lock()
	triggered, event := d.step(s, now)
	d.mu.Unlock()

	if triggered {
		d.logger.Info().Int("shakes", event.Shakes).Msg("Shake burst detected")
		if d.onTrigger != nil {
			d.onTrigger(event)
		}
	}
	return triggered
}

// step must be called with mu held.
func (d *Detector) step(s motion.Sample, now time.Time) (bool, Event) {
	if !finite(s) {
		return false, Event{}
	}
	st := &d.state
	// the baseline moves on every frame so deltas are always frame to frame
	defer func() {
		st.Last = s
		st.HasBaseline = true
	}()

	if !st.HasBaseline || !d.armed {
		return false, Event{}
	}

	delta := math.Abs(s.X-st.Last.X) + math.Abs(s.Y-st.Last.Y) + math.Abs(s.Z-st.Last.Z)
	if delta <= d.cfg.Threshold {
		return false, Event{}
	}
	sinceLast := now.Sub(st.LastShakeAt)
	// a shake exactly one debounce after the previous one still counts
	if sinceLast < d.cfg.Debounce {
		return false, Event{}
	}

	if d.cfg.ResetWindow > 0 && st.ShakeCount > 0 && sinceLast > d.cfg.ResetWindow {
		st.ShakeCount = 0
	}
	st.LastShakeAt = now
	st.ShakeCount++

	if st.ShakeCount < d.cfg.CountThreshold {
		return false, Event{}
	}
	shakes := st.ShakeCount
	st.ShakeCount = 0
	d.armed = false
	return true, Event{At: now, Shakes: shakes}
}

// finite reports whether every axis carries a usable reading.
func finite(s motion.Sample) bool {
	for _, v := range [...]float64{s.X, s.Y, s.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Rearm allows the next burst to trigger again.
func (d *Detector) Rearm() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.armed = true
	d.state.ShakeCount = 0
}

// Armed reports whether a burst would currently trigger.
func (d *Detector) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

// Running reports whether the detector holds a live subscription.
func (d *Detector) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sub != nil
}

// State returns a copy of the current bookkeeping.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}
