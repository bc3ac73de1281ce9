package motion

import (
	"context"
	"errors"
	"sync"
)

// ErrAlreadySubscribed is returned when a FeedSampler already has a listener.
var ErrAlreadySubscribed = errors.New("sampler already has a subscriber")

// FeedSampler is an in-process Sampler whose samples are pushed by the caller.
// Push delivers synchronously, so samples reach the handler in push order.
type FeedSampler struct {
	supported  bool
	permission Permission
	permErr    error

	mu      sync.Mutex
	handler Handler
}

// NewFeedSampler returns a supported sampler that needs no consent.
func NewFeedSampler() *FeedSampler {
	return &FeedSampler{supported: true, permission: PermissionNotRequired}
}

// WithSupport overrides the Supported answer.
func (f *FeedSampler) WithSupport(supported bool) *FeedSampler {
	f.supported = supported
	return f
}

// WithPermission overrides the permission probe outcome.
func (f *FeedSampler) WithPermission(p Permission, err error) *FeedSampler {
	f.permission = p
	f.permErr = err
	return f
}

func (f *FeedSampler) Supported() bool {
	return f.supported
}

func (f *FeedSampler) RequestPermission(_ context.Context) (Permission, error) {
	return f.permission, f.permErr
}

func (f *FeedSampler) Subscribe(h Handler) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handler != nil {
		return nil, ErrAlreadySubscribed
	}
	f.handler = h
	return &feedSubscription{feed: f}, nil
}

// Subscribed reports whether a handler is attached.
func (f *FeedSampler) Subscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler != nil
}

// Push delivers a sample to the current subscriber, if any.
func (f *FeedSampler) Push(s Sample) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(s)
	}
}

type feedSubscription struct {
	feed *FeedSampler
}

func (s *feedSubscription) Unsubscribe() error {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	s.feed.handler = nil
	return nil
}
