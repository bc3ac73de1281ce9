package location

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/adrianmo/go-nmea"

	"github.com/benmeehan/sos-agent/pkg/serialport"
)

// DeviceSensorProvider is responsible for retrieving location data from a GPS device connected via serial port.
type DeviceSensorProvider struct {
	port     string // Serial port to which the GPS device is connected
	baudRate int    // Baud rate for the serial communication

	openPort func(port string, baudRate int) (io.ReadCloser, error)
	now      func() time.Time

	// portSlot holds a token while a reader owns the tty. Two readers on one tty
	// would split its input queue between them.
	portSlot chan struct{}
}

// NewDeviceSensorProvider creates a new instance of DeviceSensorProvider with the specified port and baud rate.
func NewDeviceSensorProvider(port string, baudRate int) *DeviceSensorProvider {
	return &DeviceSensorProvider{
		port:     port,
		baudRate: baudRate,
		openPort: serialport.Open,
		now:      time.Now,
		portSlot: make(chan struct{}, 1),
	}
}

// GetLocation reads NMEA sentences until one satisfies the requested accuracy.
// It returns as soon as ctx expires; the reader goroutine keeps the port until its
// read returns and frees it for the next caller afterwards.
func (d *DeviceSensorProvider) GetLocation(ctx context.Context, opts Options) (Location, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	select {
	case d.portSlot <- struct{}{}:
	case <-ctx.Done():
		return Location{}, ctx.Err()
	}

	s, err := d.openPort(d.port, d.baudRate)
	if err != nil {
		<-d.portSlot
		return Location{}, err
	}

	type result struct {
		loc Location
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() { <-d.portSlot }()
		defer s.Close()
		loc, err := d.scan(s, opts.EnableHighAccuracy)
		done <- result{loc, err}
	}()

	select {
	case r := <-done:
		return r.loc, r.err
	case <-ctx.Done():
		s.Close()
		return Location{}, ctx.Err()
	}
}

// scan consumes lines until a usable sentence shows up.
func (d *DeviceSensorProvider) scan(r io.Reader, highAccuracy bool) (Location, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		loc, ok := parseSentence(scanner.Text(), highAccuracy)
		if !ok {
			continue
		}
		loc.Timestamp = d.now()
		if err := Validate(loc); err != nil {
			continue
		}
		return loc, nil
	}

	if err := scanner.Err(); err != nil {
		return Location{}, err
	}
	return Location{}, ErrNoFix
}

// Close is a no-op; the port is opened per request.
func (d *DeviceSensorProvider) Close() error {
	return nil
}

// parseSentence extracts a fix from a single NMEA line. GGA carries HDOP and is the
// only sentence accepted for high accuracy requests; RMC and GLL are good enough for a
// quick low accuracy fix.
func parseSentence(line string, highAccuracy bool) (Location, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return Location{}, false
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		return Location{}, false
	}

	switch s := sentence.(type) {
	case nmea.GGA:
		if s.FixQuality == nmea.Invalid {
			return Location{}, false
		}
		return Location{
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
			Accuracy:  s.HDOP, // Use HDOP as a proxy for accuracy
		}, true
	case nmea.RMC:
		if highAccuracy || s.Validity != nmea.ValidRMC {
			return Location{}, false
		}
		return Location{Latitude: s.Latitude, Longitude: s.Longitude}, true
	case nmea.GLL:
		if highAccuracy || s.Validity != nmea.ValidGLL {
			return Location{}, false
		}
		return Location{Latitude: s.Latitude, Longitude: s.Longitude}, true
	}
	return Location{}, false
}
