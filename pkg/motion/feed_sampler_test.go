package motion

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedSampler(t *testing.T) {
	f := NewFeedSampler()
	assert.True(t, f.Supported())
	p, err := f.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PermissionNotRequired, p)

	// no subscriber: dropped
	f.Push(Sample{X: 1})

	var got []Sample
	sub, err := f.Subscribe(func(s Sample) { got = append(got, s) })
	require.NoError(t, err)
	assert.True(t, f.Subscribed())

	_, err = f.Subscribe(func(Sample) {})
	assert.ErrorIs(t, err, ErrAlreadySubscribed)

	f.Push(Sample{X: 2})
	f.Push(Sample{X: 3})
	require.NoError(t, sub.Unsubscribe())
	f.Push(Sample{X: 4})

	assert.Equal(t, []Sample{{X: 2}, {X: 3}}, got)
	assert.False(t, f.Subscribed())
}

func TestFeedSampler_Overrides(t *testing.T) {
	probeErr := errors.New("prompt dismissed")
	f := NewFeedSampler().WithSupport(false).WithPermission(PermissionDenied, probeErr)

	assert.False(t, f.Supported())
	p, err := f.RequestPermission(context.Background())
	assert.Equal(t, PermissionDenied, p)
	assert.ErrorIs(t, err, probeErr)
}

func TestPermission_String(t *testing.T) {
	assert.Equal(t, "granted", PermissionGranted.String())
	assert.Equal(t, "denied", PermissionDenied.String())
	assert.Equal(t, "not_required", PermissionNotRequired.String())
}
