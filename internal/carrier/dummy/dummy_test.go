package dummy

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"shiporch/internal/carrier"
	"shiporch/internal/shipment"
)

func sample() shipment.Shipment {
	return shipment.Shipment{
		OrderID:     "o-1",
		VendorID:    "v-1",
		Package:     shipment.Package{WeightKg: 1.2},
		Origin:      shipment.Address{Pincode: "560001"},
		Destination: shipment.Address{Pincode: "110001"},
	}
}

func TestEstimate_LocalAndNational(t *testing.T) {
	s := sample()
	// 30 + 1.5*15 + 10 national
	cost, z := Estimate(s, 0)
	require.Equal(t, "national", string(z))
	require.True(t, cost.Equal(decimal.RequireFromString("62.5")), cost.String())

	s.Destination.Pincode = s.Origin.Pincode
	cost, z = Estimate(s, 20)
	require.Equal(t, "local", string(z))
	require.True(t, cost.Equal(decimal.RequireFromString("72.5")), cost.String())
}

func TestQuote_ReturnsEveryCourier(t *testing.T) {
	c := New(decimal.NewFromInt(100))
	qs, err := c.Quote(context.Background(), sample())
	require.NoError(t, err)
	require.Len(t, qs, 2)
	require.Equal(t, ID, qs[0].Carrier)
	require.Equal(t, "surface", qs[0].CourierID)
	require.True(t, qs[1].Cost.GreaterThan(qs[0].Cost))

	s := sample()
	s.Destination.Pincode = ""
	qs, err = c.Quote(context.Background(), s)
	require.NoError(t, err)
	require.Empty(t, qs)
}

func TestBookingFlow_ChargesWalletAtAWB(t *testing.T) {
	ctx := context.Background()
	c := New(decimal.NewFromInt(100))
	s := sample().WithCourier(ID, "Dummy Surface", "surface")

	h, err := c.Book(ctx, s)
	require.NoError(t, err)
	require.NoError(t, c.Manifest(ctx, h, h.CourierID))

	awb, err := c.GenerateAWB(ctx, h)
	require.NoError(t, err)
	require.NotEmpty(t, awb.Code)
	require.Equal(t, "Dummy Surface", awb.Courier)

	bal, err := c.WalletBalance(ctx)
	require.NoError(t, err)
	require.True(t, bal.Equal(decimal.RequireFromString("37.5")), bal.String())

	// idempotent per shipment
	again, err := c.GenerateAWB(ctx, h)
	require.NoError(t, err)
	require.Equal(t, awb.Code, again.Code)

	lbl, err := c.Label(ctx, h)
	require.NoError(t, err)
	require.Contains(t, lbl.URL, awb.Code)
}

func TestGenerateAWB_InsufficientBalance(t *testing.T) {
	ctx := context.Background()
	c := New(decimal.NewFromInt(10))
	h, err := c.Book(ctx, sample().WithCourier(ID, "Dummy Air", "air"))
	require.NoError(t, err)

	_, err = c.GenerateAWB(ctx, h)
	require.ErrorIs(t, err, carrier.ErrBalanceInsufficient)
	require.True(t, c.IsBalanceError(err))
	require.False(t, c.IsBalanceError(context.DeadlineExceeded))
}

func TestTrack_StatusAndRTO(t *testing.T) {
	ctx := context.Background()
	c := New(decimal.NewFromInt(1000))

	_, err := c.Track(ctx, "missing")
	require.ErrorIs(t, err, carrier.ErrTrackingParseAmbiguous)

	c.SetStatus("A1", "RTO Initiated", "rto", "Customer refused")
	snap, err := c.Track(ctx, "A1")
	require.NoError(t, err)
	require.True(t, snap.RTO)
	require.Equal(t, "Customer refused", snap.Activity)
}

func TestParseTracking(t *testing.T) {
	c := New(decimal.Zero)
	snap, err := c.ParseTracking([]byte(`{"code":"WH1","status":"in_transit","description":"Arrived at facility"}`))
	require.NoError(t, err)
	require.Equal(t, "WH1", snap.AWB)
	require.Equal(t, "in_transit", snap.Status)
	require.Equal(t, "Arrived at facility", snap.Activity)
	require.False(t, snap.RTO)
}
