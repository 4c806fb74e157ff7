package booking

import (
	"context"
	"errors"
	"time"
)

var ErrRecordNotFound = errors.New("booking record not found")

// Record is the persisted proof that an order has a label. At most one
// exists per order.
type Record struct {
	OrderID    string    `json:"order_id"`
	Carrier    string    `json:"carrier"`
	ShipmentID string    `json:"shipment_id"`
	AWB        string    `json:"awb"`
	Courier    string    `json:"courier"`
	LabelURL   string    `json:"label_url"`
	BookedAt   time.Time `json:"booked_at"`
}

type RecordStore interface {
	// Get returns ErrRecordNotFound when the order has no record.
	Get(ctx context.Context, orderID string) (Record, error)
	// Insert stores r unless a record for r.OrderID exists, in one atomic
	// statement. It reports whether r was stored.
	Insert(ctx context.Context, r Record) (bool, error)
}
