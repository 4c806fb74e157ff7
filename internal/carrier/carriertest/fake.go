// Package carriertest provides a scriptable carrier.Adapter for tests.
package carriertest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"shiporch/internal/carrier"
	"shiporch/internal/shipment"
)

// ErrNoBalance is recognised by Fake.IsBalanceError. Set it as AWBErr to
// simulate a drained wallet.
var ErrNoBalance = fmt.Errorf("fake: %w", carrier.ErrBalanceInsufficient)

// Fake records every call. Zero-value funcs fall back to simple successes.
type Fake struct {
	Name    string
	Quotes  []carrier.Quote
	Balance decimal.Decimal

	QuoteErr    error
	BalanceErr  error
	BookErr     error
	ManifestErr error
	AWBErr      error
	LabelURL    string
	TrackFn     func(awb string) (carrier.TrackingSnapshot, error)

	mu    sync.Mutex
	calls map[string]int
}

func New(name string, costs ...string) *Fake {
	f := &Fake{Name: name, Balance: decimal.NewFromInt(1_000_000), LabelURL: "https://labels/" + name + ".pdf"}
	for i, c := range costs {
		f.Quotes = append(f.Quotes, carrier.Quote{
			Carrier:   name,
			Courier:   fmt.Sprintf("%s-courier-%d", name, i),
			CourierID: fmt.Sprintf("%d", i),
			Cost:      decimal.RequireFromString(c),
			Zone:      "national",
		})
	}
	return f
}

func (f *Fake) hit(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
}

// Calls returns how many times op was invoked; an empty op sums everything.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if op != "" {
		return f.calls[op]
	}
	n := 0
	for _, v := range f.calls {
		n += v
	}
	return n
}

func (f *Fake) ID() string { return f.Name }

func (f *Fake) Quote(context.Context, shipment.Shipment) ([]carrier.Quote, error) {
	f.hit("quote")
	if f.QuoteErr != nil {
		return nil, f.QuoteErr
	}
	return append([]carrier.Quote(nil), f.Quotes...), nil
}

func (f *Fake) Book(_ context.Context, s shipment.Shipment) (carrier.Handle, error) {
	f.hit("book")
	if f.BookErr != nil {
		return carrier.Handle{}, f.BookErr
	}
	return carrier.Handle{Carrier: f.Name, OrderID: s.OrderID, ShipmentID: f.Name + "-" + s.OrderID, CourierID: s.CourierID}, nil
}

func (f *Fake) Manifest(context.Context, carrier.Handle, string) error {
	f.hit("manifest")
	return f.ManifestErr
}

func (f *Fake) GenerateAWB(_ context.Context, h carrier.Handle) (carrier.AWB, error) {
	f.hit("awb")
	if f.AWBErr != nil {
		return carrier.AWB{}, f.AWBErr
	}
	return carrier.AWB{Code: "AWB-" + h.ShipmentID, Courier: f.Name + " courier", CourierID: h.CourierID}, nil
}

func (f *Fake) Label(context.Context, carrier.Handle) (carrier.Label, error) {
	f.hit("label")
	return carrier.Label{URL: f.LabelURL}, nil
}

func (f *Fake) Track(_ context.Context, awb string) (carrier.TrackingSnapshot, error) {
	f.hit("track")
	if f.TrackFn != nil {
		return f.TrackFn(awb)
	}
	return carrier.TrackingSnapshot{AWB: awb, Status: "In Transit"}, nil
}

func (f *Fake) WalletBalance(context.Context) (decimal.Decimal, error) {
	f.hit("balance")
	return f.Balance, f.BalanceErr
}

func (f *Fake) IsBalanceError(err error) bool {
	return errors.Is(err, carrier.ErrBalanceInsufficient)
}

// Batch wraps a Fake with carrier.BatchTracker.
type Batch struct {
	*Fake
	Chunks [][]string
}

func (b *Batch) TrackBatch(ctx context.Context, awbs []string) (map[string]carrier.TrackingSnapshot, error) {
	b.hit("track_batch")
	b.mu.Lock()
	b.Chunks = append(b.Chunks, append([]string(nil), awbs...))
	b.mu.Unlock()
	out := make(map[string]carrier.TrackingSnapshot, len(awbs))
	for _, awb := range awbs {
		var snap carrier.TrackingSnapshot
		if b.TrackFn != nil {
			snap, _ = b.TrackFn(awb)
		} else {
			snap = carrier.TrackingSnapshot{AWB: awb, Status: "In Transit"}
		}
		out[awb] = snap
	}
	return out, nil
}

// PostBook wraps a Fake with carrier.PostBooker.
type PostBook struct {
	*Fake
	Err error
}

func (p *PostBook) AfterBooking(context.Context, carrier.Handle, carrier.AWB) error {
	p.hit("after_booking")
	return p.Err
}
