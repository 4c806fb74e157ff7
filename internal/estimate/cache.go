// Package estimate answers "what would shipping cost from here" per vendor,
// origin and slab, and caches the answer for a day.
package estimate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"shiporch/internal/metrics"
	"shiporch/internal/slab"
	"shiporch/internal/zone"
)

// TTL is measured from an entry's CreatedAt.
const TTL = 24 * time.Hour

var ErrNotFound = errors.New("estimate not cached")

type ZoneQuote struct {
	Zone          zone.Zone       `json:"zone"`
	Label         string          `json:"label"`
	Destination   string          `json:"destination_pincode"`
	Available     bool            `json:"available"`
	Carrier       string          `json:"carrier,omitempty"`
	Courier       string          `json:"courier,omitempty"`
	BaseCost      decimal.Decimal `json:"base_cost"`
	Price         decimal.Decimal `json:"price"`
	EstimatedDays int             `json:"estimated_days,omitempty"`
}

type Entry struct {
	VendorID      string                  `json:"vendor_id"`
	OriginPincode string                  `json:"origin_pincode"`
	SlabKey       string                  `json:"slab_key"`
	MinPrice      decimal.Decimal         `json:"min_price"`
	MaxPrice      decimal.Decimal         `json:"max_price"`
	Zones         map[zone.Zone]ZoneQuote `json:"zones"`
	CreatedAt     time.Time               `json:"created_at"`
}

type Store interface {
	// Get returns ErrNotFound when no row exists, expired or not.
	Get(ctx context.Context, vendorID, origin, slabKey string) (Entry, error)
	// Upsert replaces the row with the same natural key.
	Upsert(ctx context.Context, e Entry) error
	// Delete removes one vendor's rows, or every row when vendorID is empty.
	Delete(ctx context.Context, vendorID string) (int64, error)
}

// Cache expires entries lazily: a stale row is reported as a miss and left
// in place until the next Set overwrites it.
type Cache struct {
	store Store
	now   func() time.Time
}

func NewCache(store Store, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{store: store, now: now}
}

func (c *Cache) Get(ctx context.Context, vendorID, origin string, slabValue float64) (Entry, bool, error) {
	e, err := c.store.Get(ctx, vendorID, origin, slab.Key(slabValue))
	if errors.Is(err, ErrNotFound) {
		metrics.EstimateCacheLookups.WithLabelValues("miss").Inc()
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("estimate cache get: %w", err)
	}
	if c.now().Sub(e.CreatedAt) >= TTL {
		metrics.EstimateCacheLookups.WithLabelValues("expired").Inc()
		return Entry{}, false, nil
	}
	metrics.EstimateCacheLookups.WithLabelValues("hit").Inc()
	return e, true, nil
}

func (c *Cache) Set(ctx context.Context, vendorID, origin string, slabValue float64, minPrice, maxPrice decimal.Decimal, zones map[zone.Zone]ZoneQuote) (Entry, error) {
	e := Entry{
		VendorID:      vendorID,
		OriginPincode: origin,
		SlabKey:       slab.Key(slabValue),
		MinPrice:      minPrice,
		MaxPrice:      maxPrice,
		Zones:         zones,
		CreatedAt:     c.now().UTC(),
	}
	if err := c.store.Upsert(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("estimate cache set: %w", err)
	}
	return e, nil
}

// Clear drops one vendor's entries, or all entries when vendorID is empty.
func (c *Cache) Clear(ctx context.Context, vendorID string) (int64, error) {
	n, err := c.store.Delete(ctx, vendorID)
	if err != nil {
		return 0, fmt.Errorf("estimate cache clear: %w", err)
	}
	return n, nil
}
