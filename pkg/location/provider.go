package location

import (
	"context"
	"errors"
)

var (
	// ErrUnsupported is returned when the host has no way of producing a fix.
	ErrUnsupported = errors.New("geolocation is not supported")
	// ErrNoFix is returned when a provider ran out of input without a usable fix.
	ErrNoFix = errors.New("no valid location fix found")
	// ErrInvalidFix is returned for fixes with non-finite or out of range coordinates.
	ErrInvalidFix = errors.New("invalid location fix")
	// ErrWatchCleared is returned when clearing a watch that was already cleared.
	ErrWatchCleared = errors.New("watch already cleared")
)

// Provider interface defines the methods for location providers
type Provider interface {
	GetLocation(ctx context.Context, opts Options) (Location, error)
	Close() error
}

// Watcher delivers a continuous stream of fixes until the returned handle is cleared.
// Callbacks are invoked sequentially from a single goroutine.
type Watcher interface {
	Watch(ctx context.Context, opts Options, onFix func(Location), onError func(error)) (WatchHandle, error)
}

// WatchHandle cancels a running watch.
type WatchHandle interface {
	Clear() error
}

// Validate returns ErrInvalidFix when the fix cannot be used downstream.
func Validate(l Location) error {
	if !l.Coordinate().Valid() {
		return ErrInvalidFix
	}
	return nil
}
