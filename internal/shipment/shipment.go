package shipment

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

type PaymentMode string

const (
	Prepaid PaymentMode = "prepaid"
	COD     PaymentMode = "cod"
)

type Address struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Line1   string `json:"line1"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Country string `json:"country"`
}

// Package holds physical dimensions in kilograms and centimetres.
type Package struct {
	WeightKg float64 `json:"weight_kg"`
	LengthCm float64 `json:"length_cm"`
	WidthCm  float64 `json:"width_cm"`
	HeightCm float64 `json:"height_cm"`
}

type LineItem struct {
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Shipment is built fresh per order or estimate request. Courier, CourierID and
// Platform are only set once a carrier has been chosen.
type Shipment struct {
	OrderID       string          `json:"order_id"`
	VendorID      string          `json:"vendor_id"`
	CustomerID    string          `json:"customer_id"`
	Package       Package         `json:"package"`
	Origin        Address         `json:"origin"`
	Destination   Address         `json:"destination"`
	DeclaredValue decimal.Decimal `json:"declared_value"`
	PaymentMode   PaymentMode     `json:"payment_mode"`
	Items         []LineItem      `json:"items"`

	Courier   string `json:"courier,omitempty"`
	CourierID string `json:"courier_id,omitempty"`
	Platform  string `json:"platform,omitempty"`
}

var ErrInvalid = errors.New("invalid shipment")

// Validate checks the fields every carrier needs to quote and book.
func (s Shipment) Validate() error {
	switch {
	case strings.TrimSpace(s.OrderID) == "":
		return errors.Join(ErrInvalid, errors.New("order_id required"))
	case strings.TrimSpace(s.VendorID) == "":
		return errors.Join(ErrInvalid, errors.New("vendor_id required"))
	case strings.TrimSpace(s.Origin.Pincode) == "" || strings.TrimSpace(s.Destination.Pincode) == "":
		return errors.Join(ErrInvalid, errors.New("origin and destination pincode required"))
	case s.Package.WeightKg < 0 || s.Package.LengthCm < 0 || s.Package.WidthCm < 0 || s.Package.HeightCm < 0:
		return errors.Join(ErrInvalid, errors.New("package dimensions must not be negative"))
	}
	if s.PaymentMode != "" && s.PaymentMode != Prepaid && s.PaymentMode != COD {
		return errors.Join(ErrInvalid, errors.New("unknown payment_mode"))
	}
	return nil
}

// WithCourier returns a copy with the chosen carrier facts filled in.
func (s Shipment) WithCourier(platform, courier, courierID string) Shipment {
	s.Platform = platform
	s.Courier = courier
	s.CourierID = courierID
	return s
}
