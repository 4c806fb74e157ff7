package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"shiporch/internal/estimate"
	"shiporch/internal/zone"
)

type Estimates struct {
	base
}

func NewEstimates(pool DB) *Estimates {
	return &Estimates{base: newBase(pool)}
}

var _ estimate.Store = (*Estimates)(nil)

func (r *Estimates) Get(ctx context.Context, vendorID, origin, slabKey string) (estimate.Entry, error) {
	ctx, cancel := r.withQ(ctx)
	defer cancel()

	var (
		e          estimate.Entry
		minP, maxP string
		zones      string
	)
	err := r.Pool.QueryRow(ctx, qEstimate, vendorID, origin, slabKey).Scan(
		&e.VendorID, &e.OriginPincode, &e.SlabKey, &minP, &maxP, &zones, &e.CreatedAt,
	)
	if errorsIsNoRows(err) {
		return estimate.Entry{}, estimate.ErrNotFound
	}
	if err != nil {
		return estimate.Entry{}, fmt.Errorf("select estimate: %w", err)
	}
	if e.MinPrice, err = decimal.NewFromString(minP); err != nil {
		return estimate.Entry{}, fmt.Errorf("estimate min_price %q: %w", minP, err)
	}
	if e.MaxPrice, err = decimal.NewFromString(maxP); err != nil {
		return estimate.Entry{}, fmt.Errorf("estimate max_price %q: %w", maxP, err)
	}
	e.Zones = map[zone.Zone]estimate.ZoneQuote{}
	if err := json.Unmarshal([]byte(zones), &e.Zones); err != nil {
		return estimate.Entry{}, fmt.Errorf("estimate zone_data: %w", err)
	}
	return e, nil
}

func (r *Estimates) Upsert(ctx context.Context, e estimate.Entry) error {
	zones, err := json.Marshal(e.Zones)
	if err != nil {
		return fmt.Errorf("encode zone_data: %w", err)
	}
	ctx, cancel := r.withQ(ctx)
	defer cancel()

	_, err = r.Pool.Exec(ctx, qUpsertEstimate,
		e.VendorID, e.OriginPincode, e.SlabKey,
		e.MinPrice.StringFixed(2), e.MaxPrice.StringFixed(2), string(zones), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert estimate: %w", err)
	}
	return nil
}

func (r *Estimates) Delete(ctx context.Context, vendorID string) (int64, error) {
	ctx, cancel := r.withQ(ctx)
	defer cancel()

	var (
		sql  = qDeleteAllEstimates
		args []any
	)
	if vendorID != "" {
		sql, args = qDeleteVendorEstimates, []any{vendorID}
	}
	tag, err := r.Pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete estimates: %w", err)
	}
	return tag.RowsAffected(), nil
}
