// Package cache keeps reverse geocoding results in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bwise1/safestreet/internal/metrics"
	"github.com/bwise1/safestreet/internal/model"
)

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) ([]model.Address, error)
}

// CachedGeocoder serves repeated lookups for the same point from the cache.
// Only non-empty results are stored; errors always fall through.
type CachedGeocoder struct {
	next  Geocoder
	store Store
	ttl   time.Duration
}

func NewCachedGeocoder(next Geocoder, store Store, ttl time.Duration) *CachedGeocoder {
	return &CachedGeocoder{next: next, store: store, ttl: ttl}
}

// GeocodeKey rounds to five decimals (about a metre).
func GeocodeKey(lat, lon float64) string {
	return fmt.Sprintf("geo:%.5f,%.5f", lat, lon)
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) ([]model.Address, error) {
	key := GeocodeKey(lat, lon)

	cached, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		var addresses []model.Address
		if jsonErr := json.Unmarshal(cached, &addresses); jsonErr == nil {
			metrics.RecordGeocodeCache(true)
			return addresses, nil
		}
	case !errors.Is(err, ErrMiss):
		log.Printf("[Cache] geocode lookup for %s failed: %v", key, err)
	}
	metrics.RecordGeocodeCache(false)

	addresses, err := c.next.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		return nil, err
	}
	if len(addresses) == 0 {
		return addresses, nil
	}

	if payload, err := json.Marshal(addresses); err == nil {
		if err := c.store.Set(ctx, key, payload, c.ttl); err != nil {
			log.Printf("[Cache] geocode store for %s failed: %v", key, err)
		}
	}
	return addresses, nil
}
