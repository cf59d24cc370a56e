package report

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	ttlcache "github.com/jellydator/ttlcache/v2"

	"github.com/victorjacobs/hass-poller/sensor"
)

// Cache keeps the latest result per registry position. Entries expire when
// polling stalls for longer than the TTL.
type Cache struct {
	cache *ttlcache.Cache
}

func NewCache(ttl time.Duration) (*Cache, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("invalid cache TTL %v", ttl)
	}

	cache := ttlcache.NewCache()
	if err := cache.SetTTL(ttl); err != nil {
		cache.Close()
		return nil, fmt.Errorf("unable to set cache TTL: %w", err)
	}
	return &Cache{cache: cache}, nil
}

func (c *Cache) Report(cycle *sensor.Cycle) error {
	var errs []error
	for _, r := range cycle.Results {
		if err := c.cache.Set(strconv.Itoa(r.Position), r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Results returns the cached results ordered by registry position.
func (c *Cache) Results() []sensor.Result {
	out := []sensor.Result{}
	for _, v := range c.cache.GetItems() {
		if r, ok := v.(sensor.Result); ok {
			out = append(out, r)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Position < out[j].Position
	})

	return out
}

// ByEntityID returns the cached results for one entity. More than one is
// returned when the entity is configured twice.
func (c *Cache) ByEntityID(entityID string) []sensor.Result {
	var out []sensor.Result
	for _, r := range c.Results() {
		if r.Entry.EntityID == entityID {
			out = append(out, r)
		}
	}
	return out
}

func (c *Cache) Close() error {
	return c.cache.Close()
}
