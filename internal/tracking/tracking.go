// Package tracking polls carriers for the status of booked shipments and
// moves orders that are returning to origin into the rto state.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"shiporch/internal/carrier"
	"shiporch/internal/metrics"
	"shiporch/internal/order"
	"shiporch/internal/orderlock"
)

var (
	// ErrThrottled rejects a manual refresh inside the throttle window.
	ErrThrottled = errors.New("tracking refreshed too recently")
	// ErrNotBooked means the order has no carrier or AWB yet.
	ErrNotBooked = errors.New("order has no shipment to track")
	// ErrPushUnsupported means the carrier cannot parse pushed payloads.
	ErrPushUnsupported = errors.New("carrier does not accept tracking pushes")
)

const (
	DefaultWindow          = 30 * 24 * time.Hour
	DefaultStaleAfter      = 12 * time.Hour
	DefaultRefreshThrottle = 5 * time.Minute
	DefaultBatchSize       = 50
	DefaultSpacing         = 500 * time.Millisecond
)

// RTOHook runs after an order has been moved to rto, outside the order lock.
type RTOHook func(ctx context.Context, orderID string) error

type Deps struct {
	Orders   order.Store
	Registry *carrier.Registry
	Locks    *orderlock.Keyed
	OnRTO    RTOHook
	Log      *zap.Logger
	Now      func() time.Time

	Window          time.Duration
	StaleAfter      time.Duration
	RefreshThrottle time.Duration
	BatchSize       int
	// Spacing is the minimum gap between single-AWB calls to one carrier.
	Spacing time.Duration
}

type Synchronizer struct {
	d Deps

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewSynchronizer(d Deps) *Synchronizer {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Locks == nil {
		d.Locks = orderlock.New()
	}
	if d.Window <= 0 {
		d.Window = DefaultWindow
	}
	if d.StaleAfter <= 0 {
		d.StaleAfter = DefaultStaleAfter
	}
	if d.RefreshThrottle <= 0 {
		d.RefreshThrottle = DefaultRefreshThrottle
	}
	if d.BatchSize <= 0 {
		d.BatchSize = DefaultBatchSize
	}
	if d.Spacing < 0 {
		d.Spacing = 0
	}
	return &Synchronizer{d: d, limiters: make(map[string]*rate.Limiter)}
}

type Stats struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
	RTO     int `json:"rto"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Outcome is what applying one snapshot did to an order.
type Outcome struct {
	OrderID  string                   `json:"order_id"`
	Snapshot carrier.TrackingSnapshot `json:"tracking"`
	MovedRTO bool                     `json:"moved_to_rto"`
}

// RunBatch polls every active order that has not been synced recently.
// Per-order failures are logged and counted; only the initial listing can
// fail the run.
func (s *Synchronizer) RunBatch(ctx context.Context) (Stats, error) {
	now := s.d.Now()
	staleBefore := now.Add(-s.d.StaleAfter)
	orders, err := s.d.Orders.ListForSync(ctx, order.SyncQuery{
		States:       order.ActiveStates,
		CreatedAfter: now.Add(-s.d.Window),
		SyncedBefore: staleBefore,
		RequireMeta:  []string{order.MetaCarrier, order.MetaAWB},
	})
	if err != nil {
		return Stats{}, fmt.Errorf("list orders for sync: %w", err)
	}

	var st Stats
	groups := make(map[string][]order.Order)
	for _, o := range orders {
		if synced, ok := o.MetaTime(order.MetaTrackingSyncedAt); ok && synced.After(staleBefore) {
			st.Skipped++
			continue
		}
		id := carrier.NormalizeID(o.Meta[order.MetaCarrier])
		groups[id] = append(groups[id], o)
	}

	for _, a := range s.d.Registry.All() {
		group := groups[a.ID()]
		delete(groups, a.ID())
		if len(group) == 0 {
			continue
		}
		if bt, ok := a.(carrier.BatchTracker); ok {
			s.syncBatched(ctx, a.ID(), bt, group, &st)
		} else {
			s.syncSingly(ctx, a, group, &st)
		}
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
	}
	for id, group := range groups {
		s.d.Log.Warn("orders booked with unregistered carrier", zap.String("carrier", id), zap.Int("orders", len(group)))
		st.Skipped += len(group)
	}
	s.d.Log.Info("tracking batch finished",
		zap.Int("checked", st.Checked), zap.Int("updated", st.Updated),
		zap.Int("rto", st.RTO), zap.Int("failed", st.Failed), zap.Int("skipped", st.Skipped))
	return st, nil
}

func (s *Synchronizer) syncBatched(ctx context.Context, carrierID string, bt carrier.BatchTracker, group []order.Order, st *Stats) {
	for start := 0; start < len(group); start += s.d.BatchSize {
		chunk := group[start:min(start+s.d.BatchSize, len(group))]
		awbs := make([]string, len(chunk))
		for i, o := range chunk {
			awbs[i] = o.Meta[order.MetaAWB]
		}
		snaps, err := bt.TrackBatch(ctx, awbs)
		if err != nil {
			s.d.Log.Warn("batch tracking failed", zap.String("carrier", carrierID), zap.Int("awbs", len(awbs)), zap.Error(err))
			metrics.TrackingPollsTotal.WithLabelValues(carrierID, "error").Add(float64(len(chunk)))
			st.Failed += len(chunk)
			continue
		}
		for _, o := range chunk {
			st.Checked++
			snap, ok := snaps[o.Meta[order.MetaAWB]]
			if !ok {
				s.d.Log.Warn("awb missing from batch response", zap.String("carrier", carrierID), zap.String("order_id", o.ID))
				st.Failed++
				continue
			}
			s.record(ctx, carrierID, o.ID, snap, st)
		}
	}
}

func (s *Synchronizer) syncSingly(ctx context.Context, a carrier.Adapter, group []order.Order, st *Stats) {
	lim := s.limiter(a.ID())
	for _, o := range group {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		st.Checked++
		snap, err := a.Track(ctx, o.Meta[order.MetaAWB])
		if err != nil && !errors.Is(err, carrier.ErrTrackingParseAmbiguous) {
			s.d.Log.Warn("tracking failed", zap.String("carrier", a.ID()), zap.String("order_id", o.ID), zap.Error(err))
			metrics.TrackingPollsTotal.WithLabelValues(a.ID(), "error").Inc()
			st.Failed++
			continue
		}
		s.record(ctx, a.ID(), o.ID, snap, st)
	}
}

func (s *Synchronizer) record(ctx context.Context, carrierID, orderID string, snap carrier.TrackingSnapshot, st *Stats) {
	out, err := s.apply(ctx, orderID, snap)
	if err != nil {
		s.d.Log.Warn("apply tracking", zap.String("order_id", orderID), zap.Error(err))
		st.Failed++
		return
	}
	metrics.TrackingPollsTotal.WithLabelValues(carrierID, "ok").Inc()
	st.Updated++
	if out.MovedRTO {
		st.RTO++
	}
}

func (s *Synchronizer) limiter(carrierID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.limiters[carrierID]
	if !ok {
		if s.d.Spacing == 0 {
			lim = rate.NewLimiter(rate.Inf, 1)
		} else {
			lim = rate.NewLimiter(rate.Every(s.d.Spacing), 1)
		}
		s.limiters[carrierID] = lim
	}
	return lim
}

// Refresh tracks one order on demand. Calls within RefreshThrottle of the
// last sync return ErrThrottled.
func (s *Synchronizer) Refresh(ctx context.Context, orderID string) (Outcome, error) {
	o, err := s.d.Orders.Get(ctx, orderID)
	if err != nil {
		return Outcome{}, err
	}
	carrierID, awb := o.Meta[order.MetaCarrier], o.Meta[order.MetaAWB]
	if carrierID == "" || awb == "" {
		return Outcome{}, ErrNotBooked
	}
	if synced, ok := o.MetaTime(order.MetaTrackingSyncedAt); ok && s.d.Now().Sub(synced) < s.d.RefreshThrottle {
		return Outcome{}, ErrThrottled
	}
	a, err := s.d.Registry.Get(carrierID)
	if err != nil {
		return Outcome{}, err
	}
	snap, err := a.Track(ctx, awb)
	if err != nil {
		if !errors.Is(err, carrier.ErrTrackingParseAmbiguous) {
			metrics.TrackingPollsTotal.WithLabelValues(a.ID(), "error").Inc()
			return Outcome{}, fmt.Errorf("track %s: %w", awb, err)
		}
		s.d.Log.Warn("tracking payload not recognised", zap.String("order_id", orderID), zap.Error(err))
	}
	metrics.TrackingPollsTotal.WithLabelValues(a.ID(), "ok").Inc()
	return s.apply(ctx, orderID, snap)
}

// ApplyPush handles a tracking payload pushed by a carrier webhook.
func (s *Synchronizer) ApplyPush(ctx context.Context, carrierID string, body []byte) (Outcome, error) {
	a, err := s.d.Registry.Get(carrierID)
	if err != nil {
		return Outcome{}, err
	}
	pp, ok := a.(carrier.PayloadParser)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrPushUnsupported, a.ID())
	}
	snap, err := pp.ParseTracking(body)
	if err != nil {
		if !errors.Is(err, carrier.ErrTrackingParseAmbiguous) {
			return Outcome{}, err
		}
		s.d.Log.Warn("pushed tracking payload not recognised", zap.String("carrier", a.ID()), zap.String("awb", snap.AWB))
	}
	if snap.AWB == "" {
		return Outcome{}, fmt.Errorf("%w: %s push without awb", carrier.ErrAdapterData, a.ID())
	}
	o, err := s.d.Orders.FindByAWB(ctx, a.ID(), snap.AWB)
	if err != nil {
		return Outcome{}, err
	}
	return s.apply(ctx, o.ID, snap)
}

// apply writes the snapshot to the order under its lock and, on a fresh
// RTO, moves it to rto. The RTO hook runs after the lock is released.
func (s *Synchronizer) apply(ctx context.Context, orderID string, snap carrier.TrackingSnapshot) (Outcome, error) {
	out, err := s.applyLocked(ctx, orderID, snap)
	if err != nil || !out.MovedRTO || s.d.OnRTO == nil {
		return out, err
	}
	if herr := s.d.OnRTO(ctx, orderID); herr != nil {
		s.d.Log.Error("rto hook failed", zap.String("order_id", orderID), zap.Error(herr))
	}
	return out, nil
}

func (s *Synchronizer) applyLocked(ctx context.Context, orderID string, snap carrier.TrackingSnapshot) (Outcome, error) {
	unlock := s.d.Locks.Lock(orderID)
	defer unlock()

	out := Outcome{OrderID: orderID, Snapshot: snap}
	o, err := s.d.Orders.Get(ctx, orderID)
	if err != nil {
		return out, err
	}
	meta := map[string]string{order.MetaTrackingSyncedAt: s.d.Now().UTC().Format(time.RFC3339)}
	if snap.Status != "" {
		meta[order.MetaTrackingStatus] = snap.Status
	}
	if snap.Activity != "" {
		meta[order.MetaTrackingActivity] = snap.Activity
	}
	if err := s.d.Orders.SetMeta(ctx, orderID, meta); err != nil {
		return out, fmt.Errorf("store tracking metadata: %w", err)
	}

	if !snap.RTO || o.State == order.StateRTO {
		return out, nil
	}
	note := snap.Activity
	if note == "" {
		note = snap.Status
	}
	changed, err := s.d.Orders.Transition(ctx, orderID, order.StateRTO, "RTO: "+note)
	if err != nil {
		return out, fmt.Errorf("transition to rto: %w", err)
	}
	if changed {
		metrics.RTOTransitionsTotal.Inc()
		s.d.Log.Info("order moved to rto", zap.String("order_id", orderID), zap.String("awb", snap.AWB), zap.String("note", note))
	}
	out.MovedRTO = changed
	return out, nil
}

// Start runs RunBatch every interval until ctx is cancelled.
func (s *Synchronizer) Start(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.RunBatch(ctx); err != nil && ctx.Err() == nil {
				s.d.Log.Error("tracking batch failed", zap.Error(err))
				metrics.OperationErrorsTotal.WithLabelValues("tracking_batch").Inc()
			}
		}
	}
}
