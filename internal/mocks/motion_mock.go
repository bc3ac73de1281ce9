package mocks

import (
	"context"

	"github.com/benmeehan/sos-agent/pkg/motion"
	"github.com/stretchr/testify/mock"
)

// MockSampler is a mock implementation of motion.Sampler
type MockSampler struct {
	mock.Mock
}

func (m *MockSampler) Supported() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockSampler) RequestPermission(ctx context.Context) (motion.Permission, error) {
	args := m.Called(ctx)
	return args.Get(0).(motion.Permission), args.Error(1)
}

func (m *MockSampler) Subscribe(h motion.Handler) (motion.Subscription, error) {
	args := m.Called(h)
	sub, _ := args.Get(0).(motion.Subscription)
	return sub, args.Error(1)
}

// MockSubscription is a mock implementation of motion.Subscription
type MockSubscription struct {
	mock.Mock
}

func (m *MockSubscription) Unsubscribe() error {
	args := m.Called()
	return args.Error(0)
}
