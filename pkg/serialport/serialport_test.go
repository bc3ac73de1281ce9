package serialport

import (
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quietPort reports a read timeout for the first idle reads, then serves data.
type quietPort struct {
	mu     sync.Mutex
	idle   int
	data   string
	closes int
}

func (q *quietPort) Read(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.idle > 0 {
		q.idle--
		return 0, io.EOF
	}
	if q.data == "" {
		return 0, io.EOF
	}
	n := copy(p, q.data)
	q.data = q.data[n:]
	return n, nil
}

func (q *quietPort) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closes++
	return nil
}

func TestIdleReader_WaitsAcrossReadTimeouts(t *testing.T) {
	r := newIdleReader(&quietPort{idle: 3, data: "$GPGGA"})

	buf := make([]byte, 16)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "$GPGGA", string(buf[:n]))
}

func TestIdleReader_CloseEndsSilentRead(t *testing.T) {
	port := &quietPort{}
	r := newIdleReader(port)

	done := make(chan error, 1)
	go func() {
		_, err := r.Read(make([]byte, 16))
		done <- err
	}()

	require.NoError(t, r.Close())
	select {
	case err := <-done:
		assert.ErrorIs(t, err, os.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("read did not return after close")
	}

	require.NoError(t, r.Close())
	assert.Equal(t, 1, port.closes)
}

func TestIdleReader_PassesThroughErrors(t *testing.T) {
	pr, pw := io.Pipe()
	require.NoError(t, pw.CloseWithError(io.ErrUnexpectedEOF))

	_, err := newIdleReader(pr).Read(make([]byte, 4))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
