// Package dummy is an in-process carrier with a deterministic rate heuristic
// and an in-memory wallet. It backs local development and tests.
package dummy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"shiporch/internal/carrier"
	"shiporch/internal/carrier/trackparse"
	"shiporch/internal/shipment"
	"shiporch/internal/slab"
	"shiporch/internal/zone"
)

const ID = "dummy"

// Rules parses the payloads pushed to /webhooks/dummy.
var Rules = trackparse.Rules{
	Carrier:      ID,
	AWBKeys:      []string{"code", "tracking_number", "awb"},
	StatusKeys:   []string{"status", "event.status", "tracking_status"},
	CodeKeys:     []string{"status_code", "event.status_code"},
	ActivityKeys: []string{"description", "event.description", "message", "event.message"},
	RTOCodes:     []string{"rto"},
	RTOPhrases:   []string{"rto", "return to origin", "returned to shipper"},
}

type courier struct {
	id      string
	name    string
	premium int64
	days    int
}

var couriers = []courier{
	{id: "surface", name: "Dummy Surface", premium: 0, days: 5},
	{id: "air", name: "Dummy Air", premium: 20, days: 2},
}

type booking struct {
	shipment shipment.Shipment
	cost     decimal.Decimal
	awb      string
}

// Carrier implements carrier.Adapter entirely in memory.
type Carrier struct {
	mu       sync.Mutex
	balance  decimal.Decimal
	seq      int
	awbSeq   int
	bookings map[string]*booking
	tracking map[string]carrier.TrackingSnapshot
}

func New(balance decimal.Decimal) *Carrier {
	return &Carrier{
		balance:  balance,
		bookings: make(map[string]*booking),
		tracking: make(map[string]carrier.TrackingSnapshot),
	}
}

func (c *Carrier) ID() string { return ID }

// Estimate is the rate heuristic: a flat base, a per-slab charge and a
// surcharge outside the local zone.
func Estimate(s shipment.Shipment, courierPremium int64) (decimal.Decimal, zone.Zone) {
	res := slab.Classify(s.Package.WeightKg, s.Package.LengthCm, s.Package.WidthCm, s.Package.HeightCm)
	z := zone.Resolve(s.Origin.Pincode, s.Destination.Pincode)
	amount := decimal.NewFromInt(30).Add(decimal.NewFromFloat(res.Slab).Mul(decimal.NewFromInt(15)))
	if z != zone.Local {
		amount = amount.Add(decimal.NewFromInt(10))
	}
	return amount.Add(decimal.NewFromInt(courierPremium)), z
}

func (c *Carrier) Quote(_ context.Context, s shipment.Shipment) ([]carrier.Quote, error) {
	if strings.TrimSpace(s.Destination.Pincode) == "" {
		return []carrier.Quote{}, nil
	}
	out := make([]carrier.Quote, 0, len(couriers))
	for _, cr := range couriers {
		cost, z := Estimate(s, cr.premium)
		out = append(out, carrier.Quote{
			Carrier:       ID,
			Courier:       cr.name,
			CourierID:     cr.id,
			Cost:          cost,
			Zone:          string(z),
			EstimatedDays: cr.days,
		})
	}
	return out, nil
}

func (c *Carrier) Book(_ context.Context, s shipment.Shipment) (carrier.Handle, error) {
	cr, ok := findCourier(s.CourierID)
	if !ok {
		return carrier.Handle{}, fmt.Errorf("dummy book: unknown courier %q", s.CourierID)
	}
	cost, _ := Estimate(s, cr.premium)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	id := fmt.Sprintf("DMY-SHP-%06d", c.seq)
	c.bookings[id] = &booking{shipment: s, cost: cost}
	return carrier.Handle{Carrier: ID, OrderID: s.OrderID, ShipmentID: id, CourierID: cr.id}, nil
}

func (c *Carrier) Manifest(context.Context, carrier.Handle, string) error { return nil }

// GenerateAWB charges the wallet; this is where a drained balance surfaces.
func (c *Carrier) GenerateAWB(_ context.Context, h carrier.Handle) (carrier.AWB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.bookings[h.ShipmentID]
	if !ok {
		return carrier.AWB{}, fmt.Errorf("dummy awb: unknown shipment %q", h.ShipmentID)
	}
	if b.awb == "" {
		if c.balance.LessThan(b.cost) {
			return carrier.AWB{}, fmt.Errorf("dummy awb: %w: balance %s < %s", carrier.ErrBalanceInsufficient, c.balance, b.cost)
		}
		c.balance = c.balance.Sub(b.cost)
		c.awbSeq++
		b.awb = fmt.Sprintf("DMY%010d", c.awbSeq)
		c.tracking[b.awb] = carrier.TrackingSnapshot{AWB: b.awb, Status: "Pickup Scheduled", StatusCode: "pickup_scheduled"}
	}
	cr, _ := findCourier(h.CourierID)
	return carrier.AWB{Code: b.awb, Courier: cr.name, CourierID: cr.id}, nil
}

func (c *Carrier) Label(_ context.Context, h carrier.Handle) (carrier.Label, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.bookings[h.ShipmentID]
	if !ok || b.awb == "" {
		return carrier.Label{}, fmt.Errorf("dummy label: no awb for %q", h.ShipmentID)
	}
	return carrier.Label{URL: "https://example.com/label/" + b.awb + ".pdf"}, nil
}

func (c *Carrier) Track(_ context.Context, awb string) (carrier.TrackingSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.tracking[awb]
	if !ok {
		return carrier.TrackingSnapshot{AWB: awb}, fmt.Errorf("%w: dummy awb=%q", carrier.ErrTrackingParseAmbiguous, awb)
	}
	snap.FetchedAt = time.Now().UTC()
	return snap, nil
}

// SetStatus moves a parcel along; used by tests and the dev webhook.
func (c *Carrier) SetStatus(awb, status, code, activity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracking[awb] = carrier.TrackingSnapshot{
		AWB:        awb,
		Status:     status,
		StatusCode: code,
		Activity:   activity,
		RTO:        Rules.IsRTO(status, code),
	}
}

func (c *Carrier) WalletBalance(context.Context) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance, nil
}

// SetBalance replaces the wallet balance.
func (c *Carrier) SetBalance(v decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balance = v
}

func (c *Carrier) IsBalanceError(err error) bool {
	return errors.Is(err, carrier.ErrBalanceInsufficient)
}

func (c *Carrier) ParseTracking(body []byte) (carrier.TrackingSnapshot, error) {
	return Rules.Parse(body)
}

func findCourier(id string) (courier, bool) {
	for _, cr := range couriers {
		if cr.id == id {
			return cr, true
		}
	}
	return courier{}, false
}
