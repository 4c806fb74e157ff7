package estimate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shiporch/internal/carrier"
	"shiporch/internal/pricing"
	"shiporch/internal/rate"
	"shiporch/internal/shipment"
	"shiporch/internal/slab"
	"shiporch/internal/zone"
)

var ErrNoQuotes = errors.New("no carrier quoted any zone")

type PricingSource interface {
	Options() pricing.Options
}

// Service quotes one representative destination per zone and prices the
// cheapest base cost of each with the vendor's share and cap.
type Service struct {
	Cache      *Cache
	Registry   *carrier.Registry
	Enabled    []string
	Aggregator *rate.Aggregator
	Pricing    PricingSource
	// Parallel bounds concurrent zone lookups; zero means one per zone.
	Parallel int
	Log      *zap.Logger
}

type Result struct {
	Entry  Entry       `json:"estimate"`
	Slab   slab.Result `json:"weight"`
	Cached bool        `json:"cached"`
}

func (s *Service) Estimate(ctx context.Context, vendorID, origin string, pkg shipment.Package) (Result, error) {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	cls := slab.Classify(pkg.WeightKg, pkg.LengthCm, pkg.WidthCm, pkg.HeightCm)

	if e, ok, err := s.Cache.Get(ctx, vendorID, origin, cls.Slab); err != nil {
		log.Warn("estimate cache unavailable, quoting live", zap.Error(err))
	} else if ok {
		return Result{Entry: e, Slab: cls, Cached: true}, nil
	}

	opts := s.Pricing.Options()
	adapters := s.Registry.Enabled(s.Enabled)
	labels := zone.Labels()

	var (
		mu    sync.Mutex
		zones = make(map[zone.Zone]ZoneQuote)
	)
	g, gctx := errgroup.WithContext(ctx)
	if s.Parallel > 0 {
		g.SetLimit(s.Parallel)
	}
	for z, dest := range zone.Table(origin) {
		g.Go(func() error {
			sh := shipment.Shipment{
				OrderID:     fmt.Sprintf("estimate-%s-%s", vendorID, z),
				VendorID:    vendorID,
				Package:     pkg,
				Origin:      shipment.Address{Pincode: origin},
				Destination: shipment.Address{Pincode: dest},
				PaymentMode: shipment.Prepaid,
			}
			all := rate.Flatten(s.Aggregator.Collect(gctx, sh, adapters), s.Registry.Priority)
			zq := ZoneQuote{Zone: z, Label: labels[z], Destination: dest, BaseCost: decimal.Zero, Price: decimal.Zero}
			if len(all) > 0 {
				best := all[0]
				zq.Available = true
				zq.Carrier, zq.Courier, zq.EstimatedDays = best.Carrier, best.Courier, best.EstimatedDays
				zq.BaseCost = best.Cost
				zq.Price = pricing.ShareAndCap(opts, best.Cost, pricing.Vendor, vendorID)
			}
			mu.Lock()
			zones[z] = zq
			mu.Unlock()
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var lo, hi decimal.Decimal
	found := false
	for _, zq := range zones {
		if !zq.Available {
			continue
		}
		if !found || zq.Price.LessThan(lo) {
			lo = zq.Price
		}
		if !found || zq.Price.GreaterThan(hi) {
			hi = zq.Price
		}
		found = true
	}
	if !found {
		return Result{}, ErrNoQuotes
	}

	e, err := s.Cache.Set(ctx, vendorID, origin, cls.Slab, lo, hi, zones)
	if err != nil {
		log.Warn("estimate not cached", zap.Error(err))
		e = Entry{VendorID: vendorID, OriginPincode: origin, SlabKey: slab.Key(cls.Slab), MinPrice: lo, MaxPrice: hi, Zones: zones}
	}
	return Result{Entry: e, Slab: cls}, nil
}
