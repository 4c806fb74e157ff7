// Package settlement refunds the parties of an order that came back to
// origin.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"shiporch/internal/metrics"
	"shiporch/internal/order"
	"shiporch/internal/orderlock"
	"shiporch/internal/wallet"
)

var (
	// ErrAlreadyProcessed is returned by every ProcessRTO call after the first.
	ErrAlreadyProcessed = errors.New("rto already settled")

	// ErrNotRTO means the order has not been marked returned to origin.
	ErrNotRTO = errors.New("order is not in rto state")

	// ErrNotBooked means the order carries no booking pricing to settle against.
	ErrNotBooked = errors.New("order has no booked shipment")
)

type Engine struct {
	orders order.Store
	wallet wallet.Wallet
	locks  *orderlock.Keyed
	log    *zap.Logger
	now    func() time.Time
}

func New(orders order.Store, w wallet.Wallet, locks *orderlock.Keyed, log *zap.Logger) *Engine {
	if locks == nil {
		locks = orderlock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{orders: orders, wallet: w, locks: locks, log: log, now: time.Now}
}

type Result struct {
	OrderID      string          `json:"order_id"`
	VendorRefund decimal.Decimal `json:"vendor_refund"`
	BuyerRefund  decimal.Decimal `json:"buyer_refund"`
	Penalty      decimal.Decimal `json:"penalty"`
}

// ProcessRTO claims the order's settlement flag and then credits both legs.
// Only booked orders in the rto state are settled. The vendor gets back
// what its wallet was actually debited at booking. The buyer gets the
// order total minus the undiscounted base cost and the retailer hidden cap;
// nothing when that is not positive.
func (e *Engine) ProcessRTO(ctx context.Context, orderID string) (Result, error) {
	unlock := e.locks.Lock(orderID)
	defer unlock()

	log := e.log.With(zap.String("order_id", orderID))
	o, err := e.orders.Get(ctx, orderID)
	if err != nil {
		return Result{}, fmt.Errorf("load order: %w", err)
	}
	if o.Meta[order.MetaRTOProcessed] != "" {
		return Result{OrderID: orderID}, ErrAlreadyProcessed
	}
	if o.State != order.StateRTO {
		return Result{OrderID: orderID}, fmt.Errorf("%w: state %s", ErrNotRTO, o.State)
	}
	if o.Meta[order.MetaAWB] == "" || o.Meta[order.MetaBaseCost] == "" {
		return Result{OrderID: orderID}, ErrNotBooked
	}

	claimedAt := e.now().UTC().Format(time.RFC3339)
	claimed, err := e.orders.ClaimFlag(ctx, orderID, order.MetaRTOProcessed, claimedAt)
	if err != nil {
		return Result{}, fmt.Errorf("claim rto settlement: %w", err)
	}
	if !claimed {
		return Result{OrderID: orderID}, ErrAlreadyProcessed
	}

	res := Result{
		OrderID:      orderID,
		VendorRefund: decimal.Zero,
		Penalty:      o.MetaDecimal(order.MetaBaseCost).Add(o.MetaDecimal(order.MetaRetailerHiddenCap)),
		BuyerRefund:  decimal.Zero,
	}
	// A vendor whose booking debit failed was never charged.
	if o.Meta[order.MetaVendorChargeTxn] != "" {
		res.VendorRefund = o.MetaDecimal(order.MetaVendorCharge)
	} else if o.Meta[order.MetaVendorCharge] != "" {
		log.Warn("vendor charge has no debit transaction, skipping vendor refund",
			zap.String("charge", o.Meta[order.MetaVendorCharge]))
	}
	meta := map[string]string{}
	var errs []error

	if res.VendorRefund.IsPositive() {
		txn, err := e.wallet.Credit(ctx, o.VendorID, res.VendorRefund, "RTO shipping refund for order "+orderID)
		if err != nil {
			errs = append(errs, fmt.Errorf("vendor credit: %w", err))
		} else {
			metrics.SettlementCreditsTotal.WithLabelValues("vendor").Inc()
			meta[order.MetaRTOVendorRefund] = res.VendorRefund.StringFixed(2)
			meta[order.MetaRTOVendorRefundedAt] = e.now().UTC().Format(time.RFC3339)
			meta[order.MetaRTOVendorTxn] = txn
		}
	}

	refund := o.Total.Sub(res.Penalty)
	if refund.IsPositive() {
		txn, err := e.wallet.Credit(ctx, o.CustomerID, refund, "RTO refund for order "+orderID)
		if err != nil {
			errs = append(errs, fmt.Errorf("buyer credit: %w", err))
		} else {
			res.BuyerRefund = refund
			metrics.SettlementCreditsTotal.WithLabelValues("buyer").Inc()
			meta[order.MetaRTOBuyerRefund] = refund.StringFixed(2)
			meta[order.MetaRTOBuyerRefundedAt] = e.now().UTC().Format(time.RFC3339)
			meta[order.MetaRTOBuyerTxn] = txn
		}
	} else {
		log.Info("no buyer refund, penalty covers order total",
			zap.String("total", o.Total.String()), zap.String("penalty", res.Penalty.String()))
		meta[order.MetaRTOBuyerRefund] = "0.00"
	}

	if err := errors.Join(errs...); err != nil {
		meta[order.MetaRTOError] = err.Error()
		metrics.OperationErrorsTotal.WithLabelValues("rto_settlement").Inc()
	}
	if merr := e.orders.SetMeta(ctx, orderID, meta); merr != nil {
		errs = append(errs, fmt.Errorf("store settlement metadata: %w", merr))
	}
	if err := errors.Join(errs...); err != nil {
		log.Error("rto settlement incomplete", zap.Error(err))
		return res, err
	}
	log.Info("rto settled",
		zap.String("vendor_refund", res.VendorRefund.String()),
		zap.String("buyer_refund", res.BuyerRefund.String()))
	return res, nil
}

// Hook adapts the engine to the tracking RTO hook. A repeated settlement
// is not an error there.
func (e *Engine) Hook(ctx context.Context, orderID string) error {
	_, err := e.ProcessRTO(ctx, orderID)
	if errors.Is(err, ErrAlreadyProcessed) {
		return nil
	}
	return err
}
