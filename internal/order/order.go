// Package order is the contract to the order/workflow collaborator.
package order

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Workflow states the engine reads or writes.
const (
	StateReadyToShip    = "ready_to_ship"
	StateLabelGenerated = "label_generated"
	StateInTransit      = "in_transit"
	StateOutForDelivery = "out_for_delivery"
	StateShipped        = "shipped"
	StateDelivered      = "delivered"
	StateRTO            = "rto"
)

// ActiveStates are the states the tracking sync polls.
var ActiveStates = []string{StateLabelGenerated, StateInTransit, StateOutForDelivery, StateShipped}

// Metadata keys.
const (
	MetaCarrier           = "_shipping_carrier"
	MetaAWB               = "_shipping_awb"
	MetaCourier           = "_shipping_courier"
	MetaLabelURL          = "_shipping_label_url"
	MetaBaseCost          = "_shipping_base_cost"
	MetaVendorCharge      = "_vendor_shipping_charge"
	MetaRetailerHiddenCap = "_retailer_hidden_cap"
	MetaVendorChargeTxn   = "_vendor_shipping_txn"
	MetaPostBookingError  = "_post_booking_error"

	MetaTrackingStatus   = "_tracking_status"
	MetaTrackingActivity = "_tracking_activity"
	MetaTrackingSyncedAt = "_tracking_synced_at"

	MetaRTOProcessed        = "_rto_processed"
	MetaRTOVendorRefund     = "_rto_vendor_refund"
	MetaRTOVendorRefundedAt = "_rto_vendor_refunded_at"
	MetaRTOVendorTxn        = "_rto_vendor_txn"
	MetaRTOBuyerRefund      = "_rto_buyer_refund"
	MetaRTOBuyerRefundedAt  = "_rto_buyer_refunded_at"
	MetaRTOBuyerTxn         = "_rto_buyer_txn"
	MetaRTOError            = "_rto_settlement_error"
)

var ErrNotFound = errors.New("order not found")

type Order struct {
	ID         string            `json:"id"`
	VendorID   string            `json:"vendor_id"`
	CustomerID string            `json:"customer_id"`
	State      string            `json:"state"`
	Total      decimal.Decimal   `json:"total"`
	CreatedAt  time.Time         `json:"created_at"`
	Meta       map[string]string `json:"meta"`
}

// SyncQuery selects orders for the tracking batch.
type SyncQuery struct {
	States       []string
	CreatedAfter time.Time
	SyncedBefore time.Time
	RequireMeta  []string
	Limit        int
}

type Store interface {
	Get(ctx context.Context, id string) (Order, error)
	FindByAWB(ctx context.Context, carrierID, awb string) (Order, error)
	// SetMeta merges kv into the order's metadata.
	SetMeta(ctx context.Context, id string, kv map[string]string) error
	// ClaimFlag sets key to value only if key is absent and reports whether
	// this call set it.
	ClaimFlag(ctx context.Context, id, key, value string) (bool, error)
	// Transition moves the order to state unless it is already there and
	// reports whether a row changed.
	Transition(ctx context.Context, id, to, note string) (bool, error)
	ListForSync(ctx context.Context, q SyncQuery) ([]Order, error)
}

// MetaDecimal reads a decimal metadata value; missing or invalid values are zero.
func (o Order) MetaDecimal(key string) decimal.Decimal {
	v, err := decimal.NewFromString(o.Meta[key])
	if err != nil {
		return decimal.Zero
	}
	return v
}

// MetaTime reads an RFC 3339 metadata value.
func (o Order) MetaTime(key string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, o.Meta[key])
	return t, err == nil
}
