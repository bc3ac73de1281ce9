package tracker

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benmeehan/sos-agent/pkg/location"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	get func(ctx context.Context, opts location.Options) (location.Location, error)
}

func (s *stubProvider) GetLocation(ctx context.Context, opts location.Options) (location.Location, error) {
	return s.get(ctx, opts)
}

func (s *stubProvider) Close() error { return nil }

func failing(err error) *stubProvider {
	return &stubProvider{get: func(context.Context, location.Options) (location.Location, error) {
		return location.Location{}, err
	}}
}

func fixed(lat, lng float64) *stubProvider {
	return &stubProvider{get: func(context.Context, location.Options) (location.Location, error) {
		return location.Location{Latitude: lat, Longitude: lng}, nil
	}}
}

// manualWatcher hands its callbacks to the test.
type manualWatcher struct {
	mu       sync.Mutex
	opts     location.Options
	onFix    func(location.Location)
	onError  func(error)
	setupErr error
	clearErr error
	cleared  int
}

func (w *manualWatcher) Watch(_ context.Context, opts location.Options, onFix func(location.Location), onError func(error)) (location.WatchHandle, error) {
	if w.setupErr != nil {
		return nil, w.setupErr
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.opts, w.onFix, w.onError = opts, onFix, onError
	return w, nil
}

func (w *manualWatcher) Clear() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cleared++
	return w.clearErr
}

func (w *manualWatcher) fix(lat, lng float64) {
	w.onFix(location.Location{Latitude: lat, Longitude: lng})
}

func (w *manualWatcher) fail(err error) {
	w.onError(err)
}

func startTracker(t *testing.T, p location.Provider, w location.Watcher) *Tracker {
	t.Helper()
	tr := NewTracker(p, w, DefaultConfig(), zerolog.Nop())
	require.NoError(t, tr.Start(context.Background()))
	t.Cleanup(tr.Stop)
	return tr
}

func waitFor(t *testing.T, tr *Tracker, cond func(LocationState) bool) LocationState {
	t.Helper()
	require.Eventually(t, func() bool { return cond(tr.Snapshot()) }, time.Second, 5*time.Millisecond)
	return tr.Snapshot()
}

func TestTracker_QuickFixSetsCurrentAndInitial(t *testing.T) {
	w := &manualWatcher{}
	tr := startTracker(t, fixed(22.77, 86.24), w)

	st := waitFor(t, tr, func(s LocationState) bool { return s.Phase == PhaseTracking })
	assert.Equal(t, location.Coordinate{Lat: 22.77, Lng: 86.24}, st.Current)
	require.NotNil(t, st.Initial)
	assert.Equal(t, st.Current, *st.Initial)
	assert.False(t, st.IsSimulated)
	assert.Empty(t, st.Error)

	// the watch always runs with the high accuracy profile
	assert.True(t, w.opts.EnableHighAccuracy)
	assert.Equal(t, 10*time.Second, w.opts.Timeout)
}

func TestTracker_InitialNeverMoves(t *testing.T) {
	w := &manualWatcher{}
	tr := startTracker(t, fixed(22.77, 86.24), w)
	first := waitFor(t, tr, func(s LocationState) bool { return s.Initial != nil })

	for i := 1; i <= 20; i++ {
		w.fix(22.77+float64(i)*0.0001, 86.24-float64(i)*0.0001)
	}

	st := tr.Snapshot()
	assert.Equal(t, *first.Initial, *st.Initial)
	assert.Equal(t, math.Float64bits(first.Initial.Lat), math.Float64bits(st.Initial.Lat))
	assert.Equal(t, math.Float64bits(first.Initial.Lng), math.Float64bits(st.Initial.Lng))
	assert.InDelta(t, 22.772, st.Current.Lat, 1e-9)
}

func TestTracker_ProviderNeverSucceeds(t *testing.T) {
	w := &manualWatcher{}
	tr := startTracker(t, failing(errors.New("timeout expired")), w)

	st := waitFor(t, tr, func(s LocationState) bool { return s.IsSimulated })
	assert.Equal(t, FallbackCoordinate, st.Current)
	assert.Equal(t, PhaseSimulated, st.Phase)
	assert.Equal(t, "timeout expired", st.Error)

	for i := 0; i < 5; i++ {
		w.fail(errors.New("position unavailable"))
	}
	st = tr.Snapshot()
	assert.True(t, st.IsSimulated)
	assert.Equal(t, FallbackCoordinate, st.Current)
	require.NotNil(t, st.Initial)
	assert.Equal(t, FallbackCoordinate, *st.Initial)
}

func TestTracker_WatchUpgradesSimulatedLocation(t *testing.T) {
	w := &manualWatcher{}
	tr := startTracker(t, failing(errors.New("denied")), w)
	waitFor(t, tr, func(s LocationState) bool { return s.IsSimulated })

	w.fix(28.61, 77.20)

	st := tr.Snapshot()
	assert.False(t, st.IsSimulated)
	assert.Empty(t, st.Error)
	assert.Equal(t, PhaseTracking, st.Phase)
	assert.Equal(t, location.Coordinate{Lat: 28.61, Lng: 77.20}, st.Current)
	// the simulated fix came first and anchors the stable markers
	assert.Equal(t, FallbackCoordinate, *st.Initial)
}

func TestTracker_WatchFailureKeepsLastGoodFix(t *testing.T) {
	w := &manualWatcher{}
	tr := startTracker(t, fixed(22.77, 86.24), w)
	waitFor(t, tr, func(s LocationState) bool { return s.Phase == PhaseTracking })

	w.fix(22.78, 86.25)
	w.fail(errors.New("timeout expired"))

	st := tr.Snapshot()
	assert.False(t, st.IsSimulated)
	assert.Equal(t, location.Coordinate{Lat: 22.78, Lng: 86.25}, st.Current)
}

func TestTracker_NoProviderIsSimulated(t *testing.T) {
	tr := startTracker(t, nil, nil)

	st := tr.Snapshot()
	assert.True(t, st.IsSimulated)
	assert.Equal(t, FallbackCoordinate, st.Current)
	assert.Equal(t, location.ErrUnsupported.Error(), st.Error)
}

func TestTracker_WatchSetupFailureFallsBack(t *testing.T) {
	w := &manualWatcher{setupErr: errors.New("watch unavailable")}
	block := make(chan struct{})
	p := &stubProvider{get: func(ctx context.Context, _ location.Options) (location.Location, error) {
		<-block
		return location.Location{}, ctx.Err()
	}}
	tr := startTracker(t, p, w)
	defer close(block)

	st := tr.Snapshot()
	assert.True(t, st.IsSimulated)
	assert.Equal(t, "watch unavailable", st.Error)
}

func TestTracker_QuickFixTimeoutFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QuickFix.Timeout = 20 * time.Millisecond
	p := &stubProvider{get: func(ctx context.Context, _ location.Options) (location.Location, error) {
		<-ctx.Done()
		return location.Location{}, ctx.Err()
	}}
	tr := NewTracker(p, nil, cfg, zerolog.Nop())
	require.NoError(t, tr.Start(context.Background()))
	defer tr.Stop()

	st := waitFor(t, tr, func(s LocationState) bool { return s.IsSimulated })
	assert.Equal(t, context.DeadlineExceeded.Error(), st.Error)
}

func TestTracker_NonFiniteFixIsRejected(t *testing.T) {
	w := &manualWatcher{}
	tr := startTracker(t, fixed(math.NaN(), 86.24), w)

	st := waitFor(t, tr, func(s LocationState) bool { return s.IsSimulated })
	assert.Equal(t, FallbackCoordinate, st.Current)

	w.onFix(location.Location{Latitude: 10, Longitude: math.Inf(1)})
	assert.Equal(t, FallbackCoordinate, tr.Snapshot().Current)
}

func TestTracker_SubscribeReceivesUpdates(t *testing.T) {
	w := &manualWatcher{}
	tr := NewTracker(failing(errors.New("nope")), w, DefaultConfig(), zerolog.Nop())

	var mu sync.Mutex
	var seen []LocationState
	cancel := tr.Subscribe(func(s LocationState) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	})

	require.NoError(t, tr.Start(context.Background()))
	defer tr.Stop()
	waitFor(t, tr, func(s LocationState) bool { return s.IsSimulated })

	w.fix(1, 2)
	cancel()
	w.fix(3, 4)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.True(t, seen[0].IsSimulated)
	assert.Equal(t, location.Coordinate{Lat: 1, Lng: 2}, seen[1].Current)
}

func TestTracker_ConcurrentFixesNotifyInOrder(t *testing.T) {
	w := &manualWatcher{}
	// the quick fix never resolves, so only the watch produces updates
	pending := &stubProvider{get: func(ctx context.Context, _ location.Options) (location.Location, error) {
		<-ctx.Done()
		return location.Location{}, ctx.Err()
	}}
	cfg := DefaultConfig()
	cfg.QuickFix.Timeout = 0
	tr := NewTracker(pending, w, cfg, zerolog.Nop())

	var mu sync.Mutex
	var last LocationState
	tr.Subscribe(func(s LocationState) {
		mu.Lock()
		defer mu.Unlock()
		last = s
	})
	require.NoError(t, tr.Start(context.Background()))
	defer tr.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w.fix(float64(i%90), float64(i))
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, tr.Snapshot().Current, last.Current)
}

func TestTracker_StopClearsWatchAndSwallowsErrors(t *testing.T) {
	w := &manualWatcher{clearErr: errors.New("clearWatch threw")}
	tr := NewTracker(fixed(1, 1), w, DefaultConfig(), zerolog.Nop())
	require.NoError(t, tr.Start(context.Background()))

	assert.NotPanics(t, tr.Stop)
	assert.NotPanics(t, tr.Stop)
	assert.Equal(t, 1, w.cleared)
	assert.Equal(t, PhaseStopped, tr.Snapshot().Phase)

	// late callbacks after teardown are ignored
	w.fix(5, 5)
	assert.NotEqual(t, location.Coordinate{Lat: 5, Lng: 5}, tr.Snapshot().Current)

	assert.ErrorIs(t, tr.Start(context.Background()), ErrAlreadyStarted)
}
