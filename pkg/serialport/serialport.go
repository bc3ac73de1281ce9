// Package serialport opens serial devices so that readers never park forever on a
// silent line.
package serialport

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/tarm/serial"
)

// ReadTimeout bounds a single read on the device. A reader blocked on a quiet port
// re-checks whether the port was closed at least this often.
const ReadTimeout = 200 * time.Millisecond

// Open opens name at baudRate. Reads on the returned port wait for data across read
// timeouts and fail with os.ErrClosed once Close has been called.
func Open(name string, baudRate int) (io.ReadCloser, error) {
	p, err := serial.OpenPort(&serial.Config{Name: name, Baud: baudRate, ReadTimeout: ReadTimeout})
	if err != nil {
		return nil, err
	}
	return newIdleReader(p), nil
}

type idleReader struct {
	rc     io.ReadCloser
	closed atomic.Bool
}

func newIdleReader(rc io.ReadCloser) *idleReader {
	return &idleReader{rc: rc}
}

// Read retries timed out reads. tarm/serial reports an expired read timeout as an
// empty read, which os.File surfaces as io.EOF.
func (r *idleReader) Read(p []byte) (int, error) {
	for {
		if r.closed.Load() {
			return 0, os.ErrClosed
		}
		n, err := r.rc.Read(p)
		if n > 0 || (err != nil && err != io.EOF) {
			return n, err
		}
	}
}

func (r *idleReader) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.rc.Close()
}
