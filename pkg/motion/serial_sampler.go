package motion

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/sos-agent/pkg/serialport"
)

// drainTimeout bounds how long Unsubscribe waits for the reader goroutine.
const drainTimeout = 2 * serialport.ReadTimeout

// SerialSampler reads an accelerometer bridge (e.g. a microcontroller forwarding an IMU)
// that prints one "x,y,z" line per sample over a serial port.
type SerialSampler struct {
	port     string
	baudRate int
	logger   zerolog.Logger

	openPort func(port string, baudRate int) (io.ReadCloser, error)
}

// NewSerialSampler creates a sampler for the given device node.
func NewSerialSampler(port string, baudRate int, logger zerolog.Logger) *SerialSampler {
	return &SerialSampler{
		port:     port,
		baudRate: baudRate,
		logger:   logger,
		openPort: serialport.Open,
	}
}

// Supported reports whether the device node exists.
func (s *SerialSampler) Supported() bool {
	if s.port == "" {
		return false
	}
	_, err := os.Stat(s.port)
	return err == nil
}

// RequestPermission opens and closes the port once; a permission error means the
// agent user was not granted access to the device.
func (s *SerialSampler) RequestPermission(_ context.Context) (Permission, error) {
	p, err := s.openPort(s.port, s.baudRate)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return PermissionDenied, nil
		}
		return PermissionNotRequired, err
	}
	if err := p.Close(); err != nil {
		s.logger.Warn().Err(err).Str("port", s.port).Msg("Failed to close probe port")
	}
	return PermissionGranted, nil
}

// Subscribe opens the port and forwards parsed samples from a single reader goroutine.
func (s *SerialSampler) Subscribe(h Handler) (Subscription, error) {
	p, err := s.openPort(s.port, s.baudRate)
	if err != nil {
		return nil, fmt.Errorf("open accelerometer port %s: %w", s.port, err)
	}

	sub := &serialSubscription{port: p, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		scanner := bufio.NewScanner(p)
		for scanner.Scan() {
			if sub.closing() {
				return
			}
			sample, err := ParseSample(scanner.Text())
			if err != nil {
				s.logger.Debug().Err(err).Msg("Skipping malformed accelerometer line")
				continue
			}
			h(sample)
		}
		if err := scanner.Err(); err != nil && !sub.closing() {
			s.logger.Error().Err(err).Str("port", s.port).Msg("Accelerometer stream failed")
		}
	}()

	s.logger.Info().Str("port", s.port).Int("baud_rate", s.baudRate).Msg("Accelerometer stream opened")
	return sub, nil
}

type serialSubscription struct {
	port io.ReadCloser
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func (s *serialSubscription) closing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Unsubscribe closes the port and waits briefly for the reader to drain. A reader
// stuck in a blocking read is left behind; it stops delivering samples either way.
func (s *serialSubscription) Unsubscribe() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.port.Close()
	select {
	case <-s.done:
	case <-time.After(drainTimeout):
	}
	return err
}

// ParseSample parses a "x,y,z" line. Surrounding whitespace and an optional
// trailing field separator are tolerated.
func ParseSample(line string) (Sample, error) {
	fields := strings.Split(strings.TrimRight(strings.TrimSpace(line), ","), ",")
	if len(fields) != 3 {
		return Sample{}, fmt.Errorf("expected 3 fields, got %d", len(fields))
	}

	var v [3]float64
	for i, f := range fields {
		n, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Sample{}, fmt.Errorf("field %d: %w", i, err)
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return Sample{}, fmt.Errorf("field %d: non-finite value %q", i, f)
		}
		v[i] = n
	}
	return Sample{X: v[0], Y: v[1], Z: v[2]}, nil
}
