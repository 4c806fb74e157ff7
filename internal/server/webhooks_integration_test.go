package server

import (
	"encoding/hex"
	"net/http"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"shiporch/internal/carrier"
	"shiporch/internal/carrier/dummy"
	"shiporch/internal/db"
	"shiporch/internal/order"
	"shiporch/internal/orderlock"
	"shiporch/internal/repo"
	"shiporch/internal/settlement"
	"shiporch/internal/tracking"
)

func TestWebhookDummy_RTOSettlesOnce(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
		return
	}
	ctx := t.Context()
	pool, err := db.NewPool(ctx, dbURL)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, repo.Migrate(ctx, pool))

	orderID := "it-" + uuid.NewString()
	awb := "DMY" + orderID[len(orderID)-8:]
	_, err = pool.Exec(ctx, `
        INSERT INTO orders (id, vendor_id, customer_id, state, total, meta)
        VALUES ($1, 'it-vendor', 'it-buyer', $2, 500, jsonb_build_object(
            '_shipping_carrier', 'dummy', '_shipping_awb', $3::text,
            '_shipping_base_cost', '60.00', '_vendor_shipping_charge', '33.00',
            '_vendor_shipping_txn', 'it-debit', '_retailer_hidden_cap', '20.00'))`,
		orderID, order.StateInTransit, awb)
	require.NoError(t, err)

	orders := repo.NewOrders(pool)
	locks := orderlock.New()
	reg, err := carrier.NewRegistry(dummy.New(decimal.NewFromInt(1000)))
	require.NoError(t, err)
	settle := settlement.New(orders, repo.NewWallets(pool), locks, nil)
	syncer := tracking.NewSynchronizer(tracking.Deps{Orders: orders, Registry: reg, Locks: locks, OnRTO: settle.Hook})

	secret := "testsecret"
	h := New(Deps{Registry: reg, Tracker: syncer, Settler: settle, WebhookSecret: func(string) string { return secret }})
	body := []byte(`{"code":"` + awb + `","status":"RTO Initiated","description":"Returned to seller"}`)
	sig := hex.EncodeToString(sign(secret, body))

	rr := postWebhook(h, "dummy", sig, body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	got, err := orders.Get(ctx, orderID)
	require.NoError(t, err)
	require.Equal(t, order.StateRTO, got.State)
	require.NotEmpty(t, got.Meta[order.MetaRTOProcessed])
	require.Equal(t, "33.00", got.Meta[order.MetaRTOVendorRefund])

	// Replayed push: no second transition, no second settlement.
	rr = postWebhook(h, "dummy", sig, body)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"moved_to_rto":false`)

	rr = do(t, h, http.MethodPost, "/orders/"+orderID+"/rto", nil)
	require.Equal(t, http.StatusConflict, rr.Code)
}
