package location

import (
	"context"
	"sync"
	"time"
)

// PollingWatcher turns a single-shot Provider into a continuous watch by polling it.
type PollingWatcher struct {
	provider Provider
	interval time.Duration
}

// NewPollingWatcher polls provider every interval.
func NewPollingWatcher(provider Provider, interval time.Duration) *PollingWatcher {
	return &PollingWatcher{provider: provider, interval: interval}
}

// Watch polls immediately and then on every tick. Each poll is bounded by opts.Timeout.
func (w *PollingWatcher) Watch(ctx context.Context, opts Options, onFix func(Location), onError func(error)) (WatchHandle, error) {
	if w.provider == nil {
		return nil, ErrUnsupported
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &pollHandle{cancel: cancel}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			w.poll(ctx, opts, onFix, onError)
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return h, nil
}

func (w *PollingWatcher) poll(ctx context.Context, opts Options, onFix func(Location), onError func(error)) {
	pollCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	loc, err := w.provider.GetLocation(pollCtx, opts)
	if ctx.Err() != nil {
		// cleared while polling
		return
	}
	if err != nil {
		onError(err)
		return
	}
	onFix(loc)
}

type pollHandle struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Clear stops polling and waits for an in-flight poll to return.
func (h *pollHandle) Clear() error {
	err := ErrWatchCleared
	h.once.Do(func() {
		h.cancel()
		h.wg.Wait()
		err = nil
	})
	return err
}
