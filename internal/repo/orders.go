package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"shiporch/internal/order"
)

// Orders stores order state and metadata. Metadata lives in a jsonb column
// so merges and flag claims are single statements.
type Orders struct {
	base
}

func NewOrders(pool DB) *Orders {
	return &Orders{base: newBase(pool)}
}

var _ order.Store = (*Orders)(nil)

func (r *Orders) Get(ctx context.Context, id string) (order.Order, error) {
	if !validID(id) {
		return order.Order{}, fmt.Errorf("%w: %q", ErrBadID, id)
	}
	ctx, cancel := r.withQ(ctx)
	defer cancel()

	o, err := scanOrder(r.Pool.QueryRow(ctx, qOrder, id))
	if errorsIsNoRows(err) {
		return order.Order{}, order.ErrNotFound
	}
	if err != nil {
		return order.Order{}, fmt.Errorf("select order %s: %w", id, err)
	}
	return o, nil
}

// FindByAWB matches on the stored AWB. An empty carrierID matches any carrier.
func (r *Orders) FindByAWB(ctx context.Context, carrierID, awb string) (order.Order, error) {
	if strings.TrimSpace(awb) == "" {
		return order.Order{}, order.ErrNotFound
	}
	ctx, cancel := r.withQ(ctx)
	defer cancel()

	o, err := scanOrder(r.Pool.QueryRow(ctx, qOrderByAWB, carrierID, awb))
	if errorsIsNoRows(err) {
		return order.Order{}, order.ErrNotFound
	}
	if err != nil {
		return order.Order{}, fmt.Errorf("select order by awb %s: %w", awb, err)
	}
	return o, nil
}

func (r *Orders) SetMeta(ctx context.Context, id string, kv map[string]string) error {
	if len(kv) == 0 {
		return nil
	}
	patch, err := json.Marshal(kv)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	ctx, cancel := r.withQ(ctx)
	defer cancel()

	tag, err := r.Pool.Exec(ctx, qMergeMeta, id, string(patch))
	if err != nil {
		return fmt.Errorf("merge meta %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r *Orders) ClaimFlag(ctx context.Context, id, key, value string) (bool, error) {
	ctx, cancel := r.withQ(ctx)
	defer cancel()

	tag, err := r.Pool.Exec(ctx, qClaimFlag, id, key, value)
	if err != nil {
		return false, fmt.Errorf("claim %s on %s: %w", key, id, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, r.mustExist(ctx, id)
}

// Transition updates the state and appends an order note in one statement.
func (r *Orders) Transition(ctx context.Context, id, to, note string) (bool, error) {
	ctx, cancel := r.withTx(ctx)
	defer cancel()

	tag, err := r.Pool.Exec(ctx, qTransition, id, to, note)
	if err != nil {
		return false, fmt.Errorf("transition %s to %s: %w", id, to, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, r.mustExist(ctx, id)
}

func (r *Orders) ListForSync(ctx context.Context, q order.SyncQuery) ([]order.Order, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultSyncLimit
	}
	required := q.RequireMeta
	if required == nil {
		required = []string{}
	}
	ctx, cancel := r.withQ(ctx)
	defer cancel()

	rows, err := r.Pool.Query(ctx, qOrdersForSync, q.States, q.CreatedAfter, required, q.SyncedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("select orders for sync: %w", err)
	}
	defer rows.Close()

	var out []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return out, nil
}

func (r *Orders) mustExist(ctx context.Context, id string) error {
	var ok bool
	if err := r.Pool.QueryRow(ctx, qOrderExists, id).Scan(&ok); err != nil {
		return fmt.Errorf("check order %s: %w", id, err)
	}
	if !ok {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.Row) (order.Order, error) {
	var (
		o     order.Order
		total string
		meta  string
	)
	if err := row.Scan(&o.ID, &o.VendorID, &o.CustomerID, &o.State, &total, &o.CreatedAt, &meta); err != nil {
		return order.Order{}, err
	}
	t, err := decimal.NewFromString(total)
	if err != nil {
		return order.Order{}, fmt.Errorf("order %s total %q: %w", o.ID, total, err)
	}
	o.Total = t
	o.Meta = map[string]string{}
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &o.Meta); err != nil {
			return order.Order{}, fmt.Errorf("order %s meta: %w", o.ID, err)
		}
	}
	return o, nil
}
