package service_registry

import (
	"context"
	"fmt"
	"time"

	"github.com/benmeehan/sos-agent/internal/services"
	"github.com/benmeehan/sos-agent/internal/tracker"
	"github.com/benmeehan/sos-agent/internal/utils"
	"github.com/benmeehan/sos-agent/pkg/location"
	"github.com/benmeehan/sos-agent/pkg/motion"
	"github.com/redis/go-redis/v9"
)

// redisPingTimeout bounds the startup reachability check of the fix cache.
const redisPingTimeout = 3 * time.Second

// buildSampler returns the accelerometer configured for this device.
func (sr *ServiceRegistry) buildSampler(config *utils.Config) motion.Sampler {
	if config.Motion.Source == "serial" {
		sr.Logger.Info().Str("port", config.Motion.DevicePort).Msg("Using serial accelerometer")
		return motion.NewSerialSampler(config.Motion.DevicePort, config.Motion.BaudRate,
			sr.Logger.With().Str("component", "motion").Logger())
	}
	sr.Logger.Info().Msg("Using in-process motion feed")
	feed := motion.NewFeedSampler()
	sr.Feed = feed
	return feed
}

// buildProvider returns the raw fix source, or nil when the device has none.
func (sr *ServiceRegistry) buildProvider(config *utils.Config) (location.Provider, error) {
	switch config.Location.Provider {
	case "gps":
		return location.NewDeviceSensorProvider(config.Location.GPSDevice, config.Location.GPSBaudRate), nil
	case "google":
		provider, err := location.NewGoogleGeolocationProvider(config.Location.MapsAPIKey, config.Location.ModemIndex)
		if err != nil {
			sr.Logger.Error().Err(err).Msg("failed to create Google Geolocation provider")
			return nil, err
		}
		return provider, nil
	default:
		return nil, nil
	}
}

// buildFixCache returns the cache honouring MaximumAge across quick fixes and restarts.
func (sr *ServiceRegistry) buildFixCache(config *utils.Config) (location.FixCache, error) {
	cacheConfig := config.Location.Cache
	if cacheConfig.Backend != "redis" {
		return location.NewMemoryFixCache(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cacheConfig.RedisAddr,
		Password: cacheConfig.RedisPassword,
		DB:       cacheConfig.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis fix cache at %s: %w", cacheConfig.RedisAddr, err)
	}
	sr.closers = append(sr.closers, client)
	sr.Logger.Info().Str("addr", cacheConfig.RedisAddr).Msg("Using redis fix cache")
	return location.NewRedisFixCache(client, cacheConfig.Key, cacheConfig.TTL), nil
}

// buildTrackerFactory returns a constructor producing one fresh tracker per session.
func (sr *ServiceRegistry) buildTrackerFactory(config *utils.Config) (func() services.LocationSource, error) {
	raw, err := sr.buildProvider(config)
	if err != nil {
		return nil, err
	}

	var provider location.Provider
	var watcher location.Watcher
	if raw != nil {
		cache, err := sr.buildFixCache(config)
		if err != nil {
			return nil, err
		}
		cached := location.NewCachedProvider(raw, cache, sr.Logger.With().Str("component", "location").Logger())
		sr.closers = append(sr.closers, cached)
		provider = cached
		watcher = location.NewPollingWatcher(cached, config.Location.PollInterval)
	} else {
		sr.Logger.Warn().Msg("No location provider configured, sessions will use the simulated location")
	}

	trackerConfig := config.TrackerConfig()
	logger := sr.Logger.With().Str("component", "tracker").Logger()
	return func() services.LocationSource {
		return tracker.NewTracker(provider, watcher, trackerConfig, logger)
	}, nil
}
