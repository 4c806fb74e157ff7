// Package parcelhub integrates the ParcelHub platform. ParcelHub requires a
// manifest before it will issue an AWB and tracks one AWB per call.
package parcelhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"shiporch/internal/carrier"
	"shiporch/internal/carrier/httpjson"
	"shiporch/internal/carrier/trackparse"
	"shiporch/internal/shipment"
	"shiporch/internal/slab"
)

const ID = "parcelhub"

const (
	codeLowWallet      = "LOW_WALLET"
	codeNotServiceable = "NOT_SERVICEABLE"
)

// Rules covers both the tracking API envelope and webhook pushes. Scans are
// listed oldest first.
var Rules = trackparse.Rules{
	Carrier:          ID,
	AWBKeys:          []string{"data.awb", "awb"},
	StatusKeys:       []string{"data.status", "status"},
	CodeKeys:         []string{"data.status_code", "status_code"},
	ActivityListKeys: []string{"data.scans", "scans"},
	ActivityFields:   []string{"remark", "location"},
	NewestLast:       true,
	RTOCodes:         []string{"RTO", "RTO-IT", "RTO-OFD", "RTO-DL"},
	RTOPhrases:       []string{"rto", "returned to origin"},
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Carrier struct {
	api *httpjson.Client
}

func New(cfg Config) *Carrier {
	return &Carrier{api: httpjson.New(ID, cfg.BaseURL, cfg.Timeout, map[string]string{
		"X-Api-Key": cfg.APIKey,
	})}
}

func (c *Carrier) ID() string { return ID }

// envelope is ParcelHub's response wrapper. result is "success" or "error".
type envelope struct {
	Result    string          `json:"result"`
	ErrorCode string          `json:"error_code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
}

// call unwraps the envelope into data. A 2xx with result "error" still
// becomes an *carrier.APIError.
func (c *Carrier) call(ctx context.Context, method, path string, in, data any) error {
	var env envelope
	if err := c.api.DoJSON(ctx, method, path, in, &env, decodeError); err != nil {
		return err
	}
	if env.Result != "success" {
		return &carrier.APIError{Carrier: ID, Op: path, Status: http.StatusOK, Code: env.ErrorCode, Message: env.Message}
	}
	if data == nil {
		return nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("%w: parcelhub %s: missing data", carrier.ErrAdapterData, path)
	}
	if err := json.Unmarshal(env.Data, data); err != nil {
		return fmt.Errorf("%w: parcelhub %s: %v", carrier.ErrAdapterData, path, err)
	}
	return nil
}

type rateRequest struct {
	From     string  `json:"from_pincode"`
	To       string  `json:"to_pincode"`
	WeightKg float64 `json:"weight_kg"`
	COD      bool    `json:"cod"`
}

type rate struct {
	ServiceCode string          `json:"service_code"`
	ServiceName string          `json:"service_name"`
	Charge      decimal.Decimal `json:"total_charge"`
	Zone        string          `json:"zone"`
	TATDays     int             `json:"tat_days"`
}

func (c *Carrier) Quote(ctx context.Context, s shipment.Shipment) ([]carrier.Quote, error) {
	res := slab.Classify(s.Package.WeightKg, s.Package.LengthCm, s.Package.WidthCm, s.Package.HeightCm)
	req := rateRequest{
		From:     s.Origin.Pincode,
		To:       s.Destination.Pincode,
		WeightKg: res.Slab,
		COD:      s.PaymentMode == shipment.COD,
	}
	var rates []rate
	if err := c.call(ctx, http.MethodPost, "/api/v2/rates", req, &rates); err != nil {
		var apiErr *carrier.APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeNotServiceable {
			return []carrier.Quote{}, nil
		}
		return nil, err
	}
	out := make([]carrier.Quote, 0, len(rates))
	for _, r := range rates {
		out = append(out, carrier.Quote{
			Carrier:       ID,
			Courier:       r.ServiceName,
			CourierID:     r.ServiceCode,
			Cost:          r.Charge,
			Zone:          r.Zone,
			EstimatedDays: r.TATDays,
		})
	}
	return out, nil
}

type party struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
}

func toParty(a shipment.Address) party {
	return party{Name: a.Name, Phone: a.Phone, Address: a.Line1, City: a.City, State: a.State, Pincode: a.Pincode}
}

type shipmentRequest struct {
	Reference    string          `json:"reference"`
	ServiceCode  string          `json:"service_code"`
	Pickup       party           `json:"pickup"`
	Consignee    party           `json:"consignee"`
	WeightKg     float64         `json:"weight_kg"`
	LengthCm     float64         `json:"length_cm"`
	WidthCm      float64         `json:"width_cm"`
	HeightCm     float64         `json:"height_cm"`
	InvoiceValue decimal.Decimal `json:"invoice_value"`
	CODAmount    decimal.Decimal `json:"cod_amount"`
	ItemsSummary string          `json:"items_summary,omitempty"`
}

func (c *Carrier) Book(ctx context.Context, s shipment.Shipment) (carrier.Handle, error) {
	req := shipmentRequest{
		Reference:    s.OrderID,
		ServiceCode:  s.CourierID,
		Pickup:       toParty(s.Origin),
		Consignee:    toParty(s.Destination),
		WeightKg:     s.Package.WeightKg,
		LengthCm:     s.Package.LengthCm,
		WidthCm:      s.Package.WidthCm,
		HeightCm:     s.Package.HeightCm,
		InvoiceValue: s.DeclaredValue,
		CODAmount:    decimal.Zero,
	}
	if s.PaymentMode == shipment.COD {
		req.CODAmount = s.DeclaredValue
	}
	if len(s.Items) > 0 {
		req.ItemsSummary = fmt.Sprintf("%s x%d", s.Items[0].Name, s.Items[0].Quantity)
		if len(s.Items) > 1 {
			req.ItemsSummary += fmt.Sprintf(" +%d more", len(s.Items)-1)
		}
	}
	var data struct {
		Ref string `json:"shipment_ref"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v2/shipments", req, &data); err != nil {
		return carrier.Handle{}, err
	}
	if data.Ref == "" {
		return carrier.Handle{}, fmt.Errorf("%w: parcelhub create shipment: missing shipment_ref", carrier.ErrAdapterData)
	}
	return carrier.Handle{Carrier: ID, OrderID: s.OrderID, ShipmentID: data.Ref, CourierID: s.CourierID}, nil
}

// Manifest must succeed before GenerateAWB; ParcelHub rejects AWB requests
// for unmanifested shipments.
func (c *Carrier) Manifest(ctx context.Context, h carrier.Handle, courierID string) error {
	req := map[string]any{"shipment_refs": []string{h.ShipmentID}, "service_code": courierID}
	var data struct {
		ManifestID string `json:"manifest_id"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v2/manifests", req, &data); err != nil {
		return err
	}
	if data.ManifestID == "" {
		return fmt.Errorf("%w: parcelhub manifest: missing manifest_id", carrier.ErrAdapterData)
	}
	return nil
}

func (c *Carrier) GenerateAWB(ctx context.Context, h carrier.Handle) (carrier.AWB, error) {
	var data struct {
		AWB         string `json:"awb"`
		CarrierName string `json:"carrier_name"`
		ServiceCode string `json:"service_code"`
	}
	path := "/api/v2/shipments/" + url.PathEscape(h.ShipmentID) + "/awb"
	if err := c.call(ctx, http.MethodPost, path, nil, &data); err != nil {
		return carrier.AWB{}, err
	}
	if data.AWB == "" {
		return carrier.AWB{}, &carrier.APIError{Carrier: ID, Op: path, Status: http.StatusOK, Message: "awb not issued"}
	}
	if data.ServiceCode == "" {
		data.ServiceCode = h.CourierID
	}
	return carrier.AWB{Code: data.AWB, Courier: data.CarrierName, CourierID: data.ServiceCode}, nil
}

func (c *Carrier) Label(ctx context.Context, h carrier.Handle) (carrier.Label, error) {
	var data struct {
		URL string `json:"label_url"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v2/shipments/"+url.PathEscape(h.ShipmentID)+"/label", nil, &data); err != nil {
		return carrier.Label{}, err
	}
	return carrier.Label{URL: data.URL}, nil
}

func (c *Carrier) Track(ctx context.Context, awb string) (carrier.TrackingSnapshot, error) {
	raw, err := c.api.Do(ctx, http.MethodGet, "/api/v2/tracking/"+url.PathEscape(awb), nil, decodeError)
	if err != nil {
		return carrier.TrackingSnapshot{AWB: awb}, err
	}
	snap, err := Rules.Parse(raw)
	if snap.AWB == "" {
		snap.AWB = awb
	}
	return snap, err
}

func (c *Carrier) WalletBalance(ctx context.Context) (decimal.Decimal, error) {
	var data struct {
		Available decimal.Decimal `json:"available"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v2/wallet", nil, &data); err != nil {
		return decimal.Zero, err
	}
	return data.Available, nil
}

func (c *Carrier) IsBalanceError(err error) bool {
	if errors.Is(err, carrier.ErrBalanceInsufficient) {
		return true
	}
	var apiErr *carrier.APIError
	return errors.As(err, &apiErr) && apiErr.Code == codeLowWallet
}

func (c *Carrier) ParseTracking(body []byte) (carrier.TrackingSnapshot, error) {
	return Rules.Parse(body)
}

func decodeError(body []byte) (string, string) {
	var env envelope
	if json.Unmarshal(body, &env) != nil {
		return "", ""
	}
	return env.ErrorCode, env.Message
}
