package parcelhub

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"shiporch/internal/carrier"
	"shiporch/internal/shipment"
)

func newTestCarrier(t *testing.T, routes map[string]string) (*Carrier, *[]string) {
	t.Helper()
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "key", r.Header.Get("X-Api-Key"))
		key := r.Method + " " + r.URL.Path
		seen = append(seen, key)
		body, ok := routes[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"result":"error","error_code":"NOT_FOUND","message":"no route"}`)
			return
		}
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, APIKey: "key"}), &seen
}

func sample() shipment.Shipment {
	return shipment.Shipment{
		OrderID:       "o-1",
		Package:       shipment.Package{WeightKg: 1.1},
		Origin:        shipment.Address{Pincode: "560001"},
		Destination:   shipment.Address{Pincode: "700001"},
		DeclaredValue: decimal.NewFromInt(900),
		Items:         []shipment.LineItem{{Name: "Mug", Quantity: 2}, {Name: "Tray", Quantity: 1}},
	}
}

func TestQuote(t *testing.T) {
	c, _ := newTestCarrier(t, map[string]string{
		"POST /api/v2/rates": `{"result":"success","data":[{"service_code":"EXP","service_name":"Express","total_charge":"70.00","zone":"C","tat_days":3}]}`,
	})
	qs, err := c.Quote(context.Background(), sample())
	require.NoError(t, err)
	require.Len(t, qs, 1)
	require.Equal(t, "EXP", qs[0].CourierID)
	require.True(t, qs[0].Cost.Equal(decimal.NewFromInt(70)))
}

func TestQuote_NotServiceable(t *testing.T) {
	c, _ := newTestCarrier(t, map[string]string{
		"POST /api/v2/rates": `{"result":"error","error_code":"NOT_SERVICEABLE","message":"lane closed"}`,
	})
	qs, err := c.Quote(context.Background(), sample())
	require.NoError(t, err)
	require.Empty(t, qs)
}

func TestQuote_NullData(t *testing.T) {
	c, _ := newTestCarrier(t, map[string]string{
		"POST /api/v2/rates": `{"result":"success","data":null}`,
	})
	_, err := c.Quote(context.Background(), sample())
	require.ErrorIs(t, err, carrier.ErrAdapterData)
}

func TestFullBookingSequence(t *testing.T) {
	c, seen := newTestCarrier(t, map[string]string{
		"POST /api/v2/shipments":           `{"result":"success","data":{"shipment_ref":"PH-1"}}`,
		"POST /api/v2/manifests":           `{"result":"success","data":{"manifest_id":"M-1"}}`,
		"POST /api/v2/shipments/PH-1/awb":  `{"result":"success","data":{"awb":"PH0001","carrier_name":"Express"}}`,
		"GET /api/v2/shipments/PH-1/label": `{"result":"success","data":{"label_url":"https://labels/PH0001.pdf"}}`,
	})
	ctx := context.Background()
	h, err := c.Book(ctx, sample().WithCourier(ID, "Express", "EXP"))
	require.NoError(t, err)
	require.Equal(t, "PH-1", h.ShipmentID)
	require.NoError(t, c.Manifest(ctx, h, "EXP"))
	awb, err := c.GenerateAWB(ctx, h)
	require.NoError(t, err)
	require.Equal(t, "PH0001", awb.Code)
	require.Equal(t, "EXP", awb.CourierID)
	lbl, err := c.Label(ctx, h)
	require.NoError(t, err)
	require.Equal(t, "https://labels/PH0001.pdf", lbl.URL)
	require.Equal(t, []string{
		"POST /api/v2/shipments",
		"POST /api/v2/manifests",
		"POST /api/v2/shipments/PH-1/awb",
		"GET /api/v2/shipments/PH-1/label",
	}, *seen)
}

func TestGenerateAWB_LowWallet(t *testing.T) {
	c, _ := newTestCarrier(t, map[string]string{
		"POST /api/v2/shipments/PH-1/awb": `{"result":"error","error_code":"LOW_WALLET","message":"recharge"}`,
	})
	_, err := c.GenerateAWB(context.Background(), carrier.Handle{ShipmentID: "PH-1"})
	require.Error(t, err)
	require.True(t, c.IsBalanceError(err))
}

func TestIsBalanceError_OtherCodes(t *testing.T) {
	c := New(Config{})
	require.False(t, c.IsBalanceError(&carrier.APIError{Code: "NOT_FOUND"}))
	require.True(t, c.IsBalanceError(&carrier.APIError{Status: http.StatusPaymentRequired, Code: "LOW_WALLET"}))
}

func TestTrack_NewestScanIsLast(t *testing.T) {
	c, _ := newTestCarrier(t, map[string]string{
		"GET /api/v2/tracking/PH0001": `{"result":"success","data":{"awb":"PH0001","status":"RTO In Transit","status_code":"RTO-IT",
			"scans":[{"remark":"Picked"},{"remark":"Returned to hub"}]}}`,
	})
	snap, err := c.Track(context.Background(), "PH0001")
	require.NoError(t, err)
	require.True(t, snap.RTO)
	require.Equal(t, "Returned to hub", snap.Activity)
}

func TestWalletBalance(t *testing.T) {
	c, _ := newTestCarrier(t, map[string]string{
		"GET /api/v2/wallet": `{"result":"success","data":{"available":1200.5}}`,
	})
	bal, err := c.WalletBalance(context.Background())
	require.NoError(t, err)
	require.True(t, bal.Equal(decimal.RequireFromString("1200.5")))
}
