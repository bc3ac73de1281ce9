// Package motion exposes acceleration-with-gravity sample streams.
package motion

import "context"

// Sample is an instantaneous acceleration including gravity, sign-matched to the device axes.
type Sample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Permission is the outcome of a consent probe.
type Permission int

const (
	// PermissionNotRequired means the platform delivers samples without asking.
	PermissionNotRequired Permission = iota
	PermissionGranted
	PermissionDenied
)

func (p Permission) String() string {
	switch p {
	case PermissionNotRequired:
		return "not_required"
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	}
	return "unknown"
}

// Handler receives samples in arrival order.
type Handler func(Sample)

// Sampler wraps a platform motion stream.
type Sampler interface {
	// Supported reports whether the platform can deliver motion samples at all.
	Supported() bool
	// RequestPermission asks for consent where the platform requires it.
	RequestPermission(ctx context.Context) (Permission, error)
	// Subscribe starts delivering samples to h until the subscription is cancelled.
	Subscribe(h Handler) (Subscription, error)
}

// Subscription is an active sample stream.
type Subscription interface {
	Unsubscribe() error
}
