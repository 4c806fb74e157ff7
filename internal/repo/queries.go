package repo

const (
	qOrder = `SELECT id, vendor_id, customer_id, state, total::text, created_at, meta::text
              FROM orders WHERE id = $1`

	qOrderByAWB = `SELECT id, vendor_id, customer_id, state, total::text, created_at, meta::text
                   FROM orders
                   WHERE meta->>'_shipping_awb' = $2 AND ($1 = '' OR meta->>'_shipping_carrier' = $1)
                   ORDER BY created_at DESC
                   LIMIT 1`

	qOrdersForSync = `SELECT id, vendor_id, customer_id, state, total::text, created_at, meta::text
                      FROM orders
                      WHERE state = ANY($1)
                        AND created_at >= $2
                        AND meta ?& $3
                        AND (NOT meta ? '_tracking_synced_at'
                             OR (meta->>'_tracking_synced_at')::timestamptz < $4)
                      ORDER BY created_at
                      LIMIT $5`

	qOrderExists = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	qMergeMeta = `UPDATE orders SET meta = meta || $2::jsonb, updated_at = now() WHERE id = $1`

	qClaimFlag = `UPDATE orders
                  SET meta = meta || jsonb_build_object($2::text, $3::text), updated_at = now()
                  WHERE id = $1 AND NOT (meta ? $2::text)`

	qTransition = `
WITH prev AS (
  SELECT id, state FROM orders WHERE id = $1 FOR UPDATE
), upd AS (
  UPDATE orders o SET state = $2, updated_at = now()
  FROM prev
  WHERE o.id = prev.id AND prev.state <> $2
  RETURNING prev.state AS from_state
)
INSERT INTO order_notes (order_id, from_state, to_state, note)
SELECT $1, from_state, $2, $3 FROM upd
`
)

const (
	qBooking = `SELECT order_id, carrier, shipment_id, awb, courier, label_url, booked_at
                FROM booking_records WHERE order_id = $1`

	qInsertBooking = `
INSERT INTO booking_records (order_id, carrier, shipment_id, awb, courier, label_url, booked_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (order_id) DO NOTHING
`
)

const (
	qEstimate = `SELECT vendor_id, origin_pincode, slab_key, min_price::text, max_price::text, zone_data::text, created_at
                 FROM shipping_estimates
                 WHERE vendor_id = $1 AND origin_pincode = $2 AND slab_key = $3`

	qUpsertEstimate = `
INSERT INTO shipping_estimates (vendor_id, origin_pincode, slab_key, min_price, max_price, zone_data, created_at)
VALUES ($1,$2,$3,$4::numeric,$5::numeric,$6::jsonb,$7)
ON CONFLICT (vendor_id, origin_pincode, slab_key) DO UPDATE SET
  min_price=EXCLUDED.min_price,
  max_price=EXCLUDED.max_price,
  zone_data=EXCLUDED.zone_data,
  created_at=EXCLUDED.created_at
`

	qDeleteVendorEstimates = `DELETE FROM shipping_estimates WHERE vendor_id = $1`
	qDeleteAllEstimates    = `DELETE FROM shipping_estimates`
)

const (
	qInsertWalletTxn = `
INSERT INTO wallet_transactions (id, user_id, kind, amount, memo)
VALUES ($1,$2,$3,$4::numeric,$5)
`

	qCreditWallet = `
INSERT INTO wallets (user_id, balance) VALUES ($1, $2::numeric)
ON CONFLICT (user_id) DO UPDATE SET balance = wallets.balance + EXCLUDED.balance, updated_at = now()
`

	qDebitWallet = `UPDATE wallets SET balance = balance - $2::numeric, updated_at = now()
                    WHERE user_id = $1 AND balance >= $2::numeric`
)
