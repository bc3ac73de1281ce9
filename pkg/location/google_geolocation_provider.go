package location

import (
	"context"
	"time"

	"googlemaps.github.io/maps"
)

const defaultGeolocationTimeout = 10 * time.Second

// GoogleGeolocationProvider uses the Google Maps API to get location data.
type GoogleGeolocationProvider struct {
	client     *maps.Client // Maps API client for making geolocation requests
	modemIndex int
	now        func() time.Time
}

// NewGoogleGeolocationProvider creates a new GoogleGeolocationProvider instance.
func NewGoogleGeolocationProvider(apiKey string, modemIndex int) (*GoogleGeolocationProvider, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return &GoogleGeolocationProvider{
		client:     c,
		modemIndex: modemIndex,
		now:        time.Now,
	}, nil
}

// GetLocation retrieves the device's location using Google Maps Geolocation API.
// Low accuracy requests rely on the IP address alone; high accuracy requests add
// nearby WiFi access points and the serving cell tower when they can be scanned.
func (g *GoogleGeolocationProvider) GetLocation(ctx context.Context, opts Options) (Location, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultGeolocationTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := &maps.GeolocationRequest{ConsiderIP: true}
	if opts.EnableHighAccuracy {
		// Scans are best effort; the request still has the IP to go on.
		if wifiAPs, err := getWiFiAccessPoints(ctx); err == nil {
			req.WiFiAccessPoints = wifiAPs
		}
		if cellTowers, err := getCellTowers(ctx, g.modemIndex); err == nil {
			req.CellTowers = cellTowers
		}
	}

	resp, err := g.client.Geolocate(ctx, req) // Send the geolocation request
	if err != nil {
		return Location{}, err
	}

	loc := Location{
		Latitude:  resp.Location.Lat,
		Longitude: resp.Location.Lng,
		Accuracy:  resp.Accuracy,
		Timestamp: g.now(),
	}
	if err := Validate(loc); err != nil {
		return Location{}, err
	}
	return loc, nil
}

// Close releases nothing; the maps client holds no persistent connection of its own.
func (g *GoogleGeolocationProvider) Close() error {
	return nil
}
