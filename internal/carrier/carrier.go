// Package carrier defines the capability contract every carrier integration
// implements and the values that cross it.
package carrier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"shiporch/internal/shipment"
)

// Quote is one courier offer from one carrier platform.
type Quote struct {
	Carrier       string          `json:"carrier"`
	Courier       string          `json:"courier"`
	CourierID     string          `json:"courier_id,omitempty"`
	Cost          decimal.Decimal `json:"cost"`
	Zone          string          `json:"zone"`
	EstimatedDays int             `json:"estimated_days"`
}

// Handle identifies a booked shipment on the carrier side.
type Handle struct {
	Carrier    string `json:"carrier"`
	OrderID    string `json:"order_id"`
	ShipmentID string `json:"shipment_id"`
	CourierID  string `json:"courier_id,omitempty"`
}

type AWB struct {
	Code      string `json:"awb_code"`
	Courier   string `json:"courier_name"`
	CourierID string `json:"courier_id,omitempty"`
}

type Label struct {
	URL string `json:"label_url"`
}

// TrackingSnapshot is a parsed tracking response. Status is blank when the
// payload shape was not recognised.
type TrackingSnapshot struct {
	AWB        string          `json:"awb"`
	Status     string          `json:"status"`
	StatusCode string          `json:"status_code,omitempty"`
	Activity   string          `json:"activity,omitempty"`
	RTO        bool            `json:"rto"`
	FetchedAt  time.Time       `json:"fetched_at"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// Adapter is the fixed capability set of a carrier integration. Adding a
// carrier means adding one implementation; dispatch never switches on IDs.
type Adapter interface {
	ID() string
	// Quote returns an empty slice, not an error, when the carrier does not
	// service the lane.
	Quote(ctx context.Context, s shipment.Shipment) ([]Quote, error)
	Book(ctx context.Context, s shipment.Shipment) (Handle, error)
	// Manifest is a no-op for carriers that do not require pre-AWB manifesting.
	Manifest(ctx context.Context, h Handle, courierID string) error
	GenerateAWB(ctx context.Context, h Handle) (AWB, error)
	Label(ctx context.Context, h Handle) (Label, error)
	Track(ctx context.Context, awb string) (TrackingSnapshot, error)
	WalletBalance(ctx context.Context) (decimal.Decimal, error)
	IsBalanceError(err error) bool
}

// BatchTracker is implemented by carriers that accept several AWBs per call.
type BatchTracker interface {
	TrackBatch(ctx context.Context, awbs []string) (map[string]TrackingSnapshot, error)
}

// PostBooker runs carrier-specific best-effort steps such as pickup scheduling.
type PostBooker interface {
	AfterBooking(ctx context.Context, h Handle, awb AWB) error
}

// PayloadParser parses tracking payloads pushed by the carrier's webhooks.
type PayloadParser interface {
	ParseTracking(body []byte) (TrackingSnapshot, error)
}
