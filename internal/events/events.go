// Package events carries booking facts to the tracking display service and
// order-state changes into the booking pipeline.
package events

import (
	"context"
	"time"
)

const TypeShipmentBooked = "shipment.booked"

// Booking is published once per successful booking.
type Booking struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	OrderID    string    `json:"order_id"`
	VendorID   string    `json:"vendor_id"`
	Carrier    string    `json:"carrier"`
	Courier    string    `json:"courier"`
	ShipmentID string    `json:"shipment_id"`
	AWB        string    `json:"awb"`
	LabelURL   string    `json:"label_url"`
	BookedAt   time.Time `json:"booked_at"`
}

type Publisher interface {
	PublishBooking(ctx context.Context, b Booking) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) PublishBooking(context.Context, Booking) error { return nil }
func (Nop) Close() error                                  { return nil }
