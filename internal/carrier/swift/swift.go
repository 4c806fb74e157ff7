// Package swift integrates the Swift aggregator platform: no manifest step,
// multi-AWB tracking and a pickup request after labelling.
package swift

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"shiporch/internal/carrier"
	"shiporch/internal/carrier/httpjson"
	"shiporch/internal/carrier/trackparse"
	"shiporch/internal/shipment"
	"shiporch/internal/slab"
)

const ID = "swift"

// Rules is Swift's tracking payload layout and RTO table. Status ids 9, 10
// and 14–17 are the platform's RTO lifecycle.
var Rules = trackparse.Rules{
	Carrier:          ID,
	AWBKeys:          []string{"tracking_data.awb_code", "awb_code"},
	StatusKeys:       []string{"tracking_data.current_status", "current_status"},
	CodeKeys:         []string{"tracking_data.shipment_status", "shipment_status"},
	ActivityListKeys: []string{"tracking_data.shipment_track_activities", "shipment_track_activities"},
	ActivityFields:   []string{"activity", "sr-status-label"},
	RTOCodes:         []string{"9", "10", "14", "15", "16", "17"},
	RTOPhrases:       []string{"rto"},
}

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type Carrier struct {
	api *httpjson.Client
}

func New(cfg Config) *Carrier {
	return &Carrier{api: httpjson.New(ID, cfg.BaseURL, cfg.Timeout, map[string]string{
		"Authorization": "Bearer " + cfg.Token,
	})}
}

func (c *Carrier) ID() string { return ID }

type rateRequest struct {
	PickupPincode   string          `json:"pickup_postcode"`
	DeliveryPincode string          `json:"delivery_postcode"`
	Weight          float64         `json:"weight"`
	Length          float64         `json:"length"`
	Breadth         float64         `json:"breadth"`
	Height          float64         `json:"height"`
	COD             int             `json:"cod"`
	DeclaredValue   decimal.Decimal `json:"declared_value"`
}

type rateResponse struct {
	Data *struct {
		Couriers []struct {
			ID      json.Number     `json:"courier_company_id"`
			Name    string          `json:"courier_name"`
			Rate    decimal.Decimal `json:"rate"`
			Zone    string          `json:"zone"`
			ETDDays int             `json:"estimated_delivery_days"`
		} `json:"available_courier_companies"`
	} `json:"data"`
}

func (c *Carrier) Quote(ctx context.Context, s shipment.Shipment) ([]carrier.Quote, error) {
	res := slab.Classify(s.Package.WeightKg, s.Package.LengthCm, s.Package.WidthCm, s.Package.HeightCm)
	req := rateRequest{
		PickupPincode:   s.Origin.Pincode,
		DeliveryPincode: s.Destination.Pincode,
		Weight:          res.Slab,
		Length:          s.Package.LengthCm,
		Breadth:         s.Package.WidthCm,
		Height:          s.Package.HeightCm,
		DeclaredValue:   s.DeclaredValue,
	}
	if s.PaymentMode == shipment.COD {
		req.COD = 1
	}
	var resp rateResponse
	if err := c.api.DoJSON(ctx, http.MethodPost, "/v1/courier/serviceability", req, &resp, decodeError); err != nil {
		var apiErr *carrier.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return []carrier.Quote{}, nil
		}
		return nil, err
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("%w: swift serviceability: missing data", carrier.ErrAdapterData)
	}
	out := make([]carrier.Quote, 0, len(resp.Data.Couriers))
	for _, cc := range resp.Data.Couriers {
		out = append(out, carrier.Quote{
			Carrier:       ID,
			Courier:       cc.Name,
			CourierID:     cc.ID.String(),
			Cost:          cc.Rate,
			Zone:          cc.Zone,
			EstimatedDays: cc.ETDDays,
		})
	}
	return out, nil
}

type orderItem struct {
	Name  string          `json:"name"`
	SKU   string          `json:"sku"`
	Units int             `json:"units"`
	Price decimal.Decimal `json:"selling_price"`
}

type orderRequest struct {
	OrderID        string          `json:"order_id"`
	PickupPincode  string          `json:"pickup_postcode"`
	BillingName    string          `json:"billing_customer_name"`
	BillingAddress string          `json:"billing_address"`
	BillingCity    string          `json:"billing_city"`
	BillingState   string          `json:"billing_state"`
	BillingPincode string          `json:"billing_pincode"`
	BillingPhone   string          `json:"billing_phone"`
	PaymentMethod  string          `json:"payment_method"`
	SubTotal       decimal.Decimal `json:"sub_total"`
	Items          []orderItem     `json:"order_items"`
	Length         float64         `json:"length"`
	Breadth        float64         `json:"breadth"`
	Height         float64         `json:"height"`
	Weight         float64         `json:"weight"`
}

type orderResponse struct {
	OrderID    json.Number `json:"order_id"`
	ShipmentID json.Number `json:"shipment_id"`
	Status     string      `json:"status"`
}

func (c *Carrier) Book(ctx context.Context, s shipment.Shipment) (carrier.Handle, error) {
	req := orderRequest{
		OrderID:        s.OrderID,
		PickupPincode:  s.Origin.Pincode,
		BillingName:    s.Destination.Name,
		BillingAddress: s.Destination.Line1,
		BillingCity:    s.Destination.City,
		BillingState:   s.Destination.State,
		BillingPincode: s.Destination.Pincode,
		BillingPhone:   s.Destination.Phone,
		PaymentMethod:  "Prepaid",
		SubTotal:       s.DeclaredValue,
		Length:         s.Package.LengthCm,
		Breadth:        s.Package.WidthCm,
		Height:         s.Package.HeightCm,
		Weight:         s.Package.WeightKg,
	}
	if s.PaymentMode == shipment.COD {
		req.PaymentMethod = "COD"
	}
	for _, it := range s.Items {
		req.Items = append(req.Items, orderItem{Name: it.Name, SKU: it.SKU, Units: it.Quantity, Price: it.UnitPrice})
	}
	var resp orderResponse
	if err := c.api.DoJSON(ctx, http.MethodPost, "/v1/orders/create/adhoc", req, &resp, decodeError); err != nil {
		return carrier.Handle{}, err
	}
	if resp.ShipmentID.String() == "" {
		return carrier.Handle{}, fmt.Errorf("%w: swift create order: missing shipment_id", carrier.ErrAdapterData)
	}
	return carrier.Handle{Carrier: ID, OrderID: s.OrderID, ShipmentID: resp.ShipmentID.String(), CourierID: s.CourierID}, nil
}

func (c *Carrier) Manifest(context.Context, carrier.Handle, string) error { return nil }

type awbResponse struct {
	AssignStatus int `json:"awb_assign_status"`
	Response     struct {
		Data struct {
			AWBCode     string      `json:"awb_code"`
			CourierName string      `json:"courier_name"`
			CourierID   json.Number `json:"courier_company_id"`
		} `json:"data"`
	} `json:"response"`
	Message string `json:"message"`
}

// GenerateAWB succeeds only when awb_assign_status is 1 and a code came back.
func (c *Carrier) GenerateAWB(ctx context.Context, h carrier.Handle) (carrier.AWB, error) {
	req := map[string]string{"shipment_id": h.ShipmentID, "courier_id": h.CourierID}
	var resp awbResponse
	if err := c.api.DoJSON(ctx, http.MethodPost, "/v1/courier/assign/awb", req, &resp, decodeError); err != nil {
		return carrier.AWB{}, err
	}
	if resp.AssignStatus != 1 || resp.Response.Data.AWBCode == "" {
		return carrier.AWB{}, &carrier.APIError{Carrier: ID, Op: "assign awb", Status: http.StatusOK, Message: resp.Message}
	}
	return carrier.AWB{
		Code:      resp.Response.Data.AWBCode,
		Courier:   resp.Response.Data.CourierName,
		CourierID: resp.Response.Data.CourierID.String(),
	}, nil
}

func (c *Carrier) Label(ctx context.Context, h carrier.Handle) (carrier.Label, error) {
	var resp struct {
		Created  int    `json:"label_created"`
		LabelURL string `json:"label_url"`
	}
	req := map[string][]string{"shipment_id": {h.ShipmentID}}
	if err := c.api.DoJSON(ctx, http.MethodPost, "/v1/courier/generate/label", req, &resp, decodeError); err != nil {
		return carrier.Label{}, err
	}
	if resp.Created != 1 {
		return carrier.Label{}, &carrier.APIError{Carrier: ID, Op: "generate label", Status: http.StatusOK, Message: "label not created"}
	}
	return carrier.Label{URL: resp.LabelURL}, nil
}

// AfterBooking requests a pickup for the shipment.
func (c *Carrier) AfterBooking(ctx context.Context, h carrier.Handle, _ carrier.AWB) error {
	var resp struct {
		PickupStatus int `json:"pickup_status"`
	}
	req := map[string][]string{"shipment_id": {h.ShipmentID}}
	if err := c.api.DoJSON(ctx, http.MethodPost, "/v1/courier/generate/pickup", req, &resp, decodeError); err != nil {
		return err
	}
	if resp.PickupStatus != 1 {
		return &carrier.APIError{Carrier: ID, Op: "generate pickup", Status: http.StatusOK, Message: "pickup not scheduled"}
	}
	return nil
}

func (c *Carrier) Track(ctx context.Context, awb string) (carrier.TrackingSnapshot, error) {
	raw, err := c.api.Do(ctx, http.MethodGet, "/v1/courier/track/awb/"+url.PathEscape(awb), nil, decodeError)
	if err != nil {
		return carrier.TrackingSnapshot{AWB: awb}, err
	}
	snap, err := Rules.Parse(raw)
	if snap.AWB == "" {
		snap.AWB = awb
	}
	return snap, err
}

// TrackBatch accepts up to 50 AWBs; the response is keyed by AWB. Entries
// that fail to parse keep a blank status.
func (c *Carrier) TrackBatch(ctx context.Context, awbs []string) (map[string]carrier.TrackingSnapshot, error) {
	raw, err := c.api.Do(ctx, http.MethodPost, "/v1/courier/track/awbs", map[string][]string{"awbs": awbs}, decodeError)
	if err != nil {
		return nil, err
	}
	var byAWB map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byAWB); err != nil {
		return nil, fmt.Errorf("%w: swift track batch: %v", carrier.ErrAdapterData, err)
	}
	out := make(map[string]carrier.TrackingSnapshot, len(byAWB))
	for awb, body := range byAWB {
		snap, _ := Rules.Parse(body)
		snap.AWB = awb
		out[awb] = snap
	}
	return out, nil
}

func (c *Carrier) WalletBalance(ctx context.Context) (decimal.Decimal, error) {
	var resp struct {
		Data *struct {
			Balance decimal.Decimal `json:"balance_amount"`
		} `json:"data"`
	}
	if err := c.api.DoJSON(ctx, http.MethodGet, "/v1/account/details/wallet-balance", nil, &resp, decodeError); err != nil {
		return decimal.Zero, err
	}
	if resp.Data == nil {
		return decimal.Zero, fmt.Errorf("%w: swift wallet: missing data", carrier.ErrAdapterData)
	}
	return resp.Data.Balance, nil
}

// IsBalanceError matches 402 responses and the recharge messages Swift
// returns with 400 when the wallet is short.
func (c *Carrier) IsBalanceError(err error) bool {
	if errors.Is(err, carrier.ErrBalanceInsufficient) {
		return true
	}
	var apiErr *carrier.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Status == http.StatusPaymentRequired {
		return true
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "insufficient balance") || strings.Contains(msg, "recharge your wallet")
}

func (c *Carrier) ParseTracking(body []byte) (carrier.TrackingSnapshot, error) {
	return Rules.Parse(body)
}

func decodeError(body []byte) (string, string) {
	var e struct {
		StatusCode json.Number `json:"status_code"`
		Message    string      `json:"message"`
	}
	if json.Unmarshal(body, &e) != nil {
		return "", ""
	}
	return e.StatusCode.String(), e.Message
}
