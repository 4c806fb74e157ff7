package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"shiporch/internal/carrier"
	"shiporch/internal/events"
	"shiporch/internal/metrics"
	"shiporch/internal/order"
	"shiporch/internal/orderlock"
	"shiporch/internal/pricing"
	"shiporch/internal/rate"
	"shiporch/internal/shipment"
	"shiporch/internal/slab"
	"shiporch/internal/wallet"
	"shiporch/internal/zone"
)

// PricingSource hands out the current pricing snapshot.
type PricingSource interface {
	Options() pricing.Options
}

// Deps are the pipeline's collaborators. Publisher, Log and Now are
// optional.
type Deps struct {
	Registry   *carrier.Registry
	Enabled    []string
	Aggregator *rate.Aggregator
	Selector   *Selector
	Records    RecordStore
	Orders     order.Store
	Wallet     wallet.Wallet
	Pricing    PricingSource
	Publisher  events.Publisher
	Locks      *orderlock.Keyed
	Log        *zap.Logger
	Now        func() time.Time
}

type Pipeline struct {
	d Deps
}

func NewPipeline(d Deps) *Pipeline {
	if d.Publisher == nil {
		d.Publisher = events.Nop{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Locks == nil {
		d.Locks = orderlock.New()
	}
	if d.Aggregator == nil {
		d.Aggregator = rate.NewAggregator(d.Log)
	}
	if d.Selector == nil {
		d.Selector = NewSelector(d.Log)
	}
	return &Pipeline{d: d}
}

type Result struct {
	OrderID   string          `json:"order_id"`
	Duplicate bool            `json:"duplicate"`
	Record    Record          `json:"record"`
	Slab      float64         `json:"slab,omitempty"`
	Zone      zone.Zone       `json:"zone,omitempty"`
	Quote     *carrier.Quote  `json:"quote,omitempty"`
	Charge    decimal.Decimal `json:"vendor_charge"`
	Excluded  []string        `json:"excluded_carriers,omitempty"`
	Warnings  []string        `json:"warnings,omitempty"`
}

// booked is what a successful attempt leaves behind.
type booked struct {
	handle carrier.Handle
	awb    carrier.AWB
	label  carrier.Label
}

// Book runs the whole booking for one order. Nothing is persisted unless
// every carrier step succeeded; once the record is stored, later steps only
// add warnings to the result.
func (p *Pipeline) Book(ctx context.Context, s shipment.Shipment) (Result, error) {
	if err := s.Validate(); err != nil {
		return Result{}, err
	}
	unlock := p.d.Locks.Lock(s.OrderID)
	defer unlock()

	log := p.d.Log.With(zap.String("order_id", s.OrderID))

	if rec, err := p.d.Records.Get(ctx, s.OrderID); err == nil {
		log.Info("booking skipped, record exists", zap.String("awb", rec.AWB))
		metrics.BookingsTotal.WithLabelValues(rec.Carrier, "duplicate").Inc()
		return Result{OrderID: s.OrderID, Duplicate: true, Record: rec}, nil
	} else if !errors.Is(err, ErrRecordNotFound) {
		return Result{}, fmt.Errorf("lookup booking record: %w", err)
	}

	o, err := p.d.Orders.Get(ctx, s.OrderID)
	if err != nil {
		return Result{}, fmt.Errorf("load order: %w", err)
	}
	s.VendorID, s.CustomerID = o.VendorID, o.CustomerID

	cls := slab.Classify(s.Package.WeightKg, s.Package.LengthCm, s.Package.WidthCm, s.Package.HeightCm)
	z := zone.Resolve(s.Origin.Pincode, s.Destination.Pincode)
	res := Result{OrderID: s.OrderID, Slab: cls.Slab, Zone: z}

	adapters := p.d.Registry.Enabled(p.d.Enabled)
	quotes := p.d.Aggregator.Collect(ctx, s, adapters)
	cands := make([]Candidate, 0, len(adapters))
	for _, a := range adapters {
		cands = append(cands, Candidate{Adapter: a, Quotes: quotes[a.ID()], Priority: p.d.Registry.Priority(a.ID())})
	}

	var out booked
	sel, err := p.d.Selector.Run(ctx, cands, func(ctx context.Context, a carrier.Adapter, q carrier.Quote) error {
		b, err := attempt(ctx, log, a, s.WithCourier(a.ID(), q.Courier, q.CourierID), q)
		if err == nil {
			out = b
		}
		return err
	})
	res.Excluded = sel.Excluded
	if err != nil {
		metrics.BookingsTotal.WithLabelValues(sel.Carrier, "failed").Inc()
		log.Warn("booking failed", zap.String("carrier", sel.Carrier), zap.Error(err))
		return res, err
	}
	res.Quote = &sel.Quote

	rec := Record{
		OrderID:    s.OrderID,
		Carrier:    sel.Carrier,
		ShipmentID: out.handle.ShipmentID,
		AWB:        out.awb.Code,
		Courier:    firstNonEmpty(out.awb.Courier, sel.Quote.Courier),
		LabelURL:   out.label.URL,
		BookedAt:   p.d.Now().UTC(),
	}
	inserted, err := p.d.Records.Insert(ctx, rec)
	if err != nil {
		metrics.BookingsTotal.WithLabelValues(sel.Carrier, "failed").Inc()
		return res, fmt.Errorf("store booking record: %w", err)
	}
	if !inserted {
		existing, gerr := p.d.Records.Get(ctx, s.OrderID)
		if gerr != nil {
			existing = rec
		}
		log.Warn("booking record written concurrently; carrier booking left unused",
			zap.String("carrier", sel.Carrier), zap.String("awb", rec.AWB))
		metrics.BookingsTotal.WithLabelValues(sel.Carrier, "duplicate").Inc()
		res.Duplicate, res.Record = true, existing
		return res, nil
	}
	res.Record = rec
	metrics.BookingsTotal.WithLabelValues(sel.Carrier, "booked").Inc()
	log = log.With(zap.String("carrier", rec.Carrier), zap.String("awb", rec.AWB))
	log.Info("shipment booked", zap.String("cost", sel.Quote.Cost.String()))

	res.Charge, res.Warnings = p.settleBooking(ctx, log, s, rec, sel.Quote)

	if pb, ok := p.adapter(rec.Carrier).(carrier.PostBooker); ok {
		if err := pb.AfterBooking(ctx, out.handle, out.awb); err != nil {
			log.Warn("post-booking step failed", zap.Error(err))
			res.Warnings = append(res.Warnings, "post-booking: "+err.Error())
			if merr := p.d.Orders.SetMeta(ctx, s.OrderID, map[string]string{order.MetaPostBookingError: err.Error()}); merr != nil {
				log.Warn("record post-booking error", zap.Error(merr))
			}
		}
	}

	ev := events.Booking{
		EventID:    uuid.NewString(),
		Type:       events.TypeShipmentBooked,
		OrderID:    rec.OrderID,
		VendorID:   s.VendorID,
		Carrier:    rec.Carrier,
		Courier:    rec.Courier,
		ShipmentID: rec.ShipmentID,
		AWB:        rec.AWB,
		LabelURL:   rec.LabelURL,
		BookedAt:   rec.BookedAt,
	}
	if err := p.d.Publisher.PublishBooking(ctx, ev); err != nil {
		log.Warn("publish booking event", zap.Error(err))
	}
	return res, nil
}

// settleBooking stores pricing metadata, debits the vendor and moves the
// order to label_generated. Failures become warnings.
func (p *Pipeline) settleBooking(ctx context.Context, log *zap.Logger, s shipment.Shipment, rec Record, q carrier.Quote) (decimal.Decimal, []string) {
	var warnings []string
	opts := p.d.Pricing.Options()
	vendorCharge := pricing.ShareAndCap(opts, q.Cost, pricing.Vendor, s.VendorID)
	retailerCap := pricing.Calculate(opts, q.Cost, pricing.Retailer, s.CustomerID).Cap

	meta := map[string]string{
		order.MetaCarrier:           rec.Carrier,
		order.MetaAWB:               rec.AWB,
		order.MetaCourier:           rec.Courier,
		order.MetaLabelURL:          rec.LabelURL,
		order.MetaBaseCost:          q.Cost.StringFixed(2),
		order.MetaRetailerHiddenCap: retailerCap.StringFixed(2),
	}
	// The vendor charge is only recorded once the wallet has been debited.
	if vendorCharge.IsPositive() && s.VendorID != "" {
		txn, err := p.d.Wallet.Debit(ctx, s.VendorID, vendorCharge, "Shipping charge for order "+s.OrderID)
		if err != nil {
			log.Warn("vendor shipping debit failed", zap.String("vendor_id", s.VendorID), zap.Error(err))
			warnings = append(warnings, "vendor debit: "+err.Error())
		} else {
			meta[order.MetaVendorCharge] = vendorCharge.StringFixed(2)
			meta[order.MetaVendorChargeTxn] = txn
		}
	}
	if err := p.d.Orders.SetMeta(ctx, s.OrderID, meta); err != nil {
		log.Error("store booking metadata", zap.Error(err))
		metrics.OperationErrorsTotal.WithLabelValues("booking_metadata").Inc()
		warnings = append(warnings, "metadata: "+err.Error())
	}
	note := fmt.Sprintf("Label generated: %s AWB %s", rec.Courier, rec.AWB)
	if _, err := p.d.Orders.Transition(ctx, s.OrderID, order.StateLabelGenerated, note); err != nil {
		log.Error("transition to label_generated", zap.Error(err))
		warnings = append(warnings, "transition: "+err.Error())
	}
	return vendorCharge, warnings
}

func (p *Pipeline) adapter(id string) carrier.Adapter {
	a, err := p.d.Registry.Get(id)
	if err != nil {
		return nil
	}
	return a
}

// attempt runs book, manifest, AWB and label in order. Balance errors are
// returned untouched so the selector can exclude the carrier; anything else
// becomes a *StepError.
func attempt(ctx context.Context, log *zap.Logger, a carrier.Adapter, s shipment.Shipment, q carrier.Quote) (booked, error) {
	var h carrier.Handle
	fail := func(step string, err error) (booked, error) {
		if a.IsBalanceError(err) {
			if h.ShipmentID != "" {
				log.Warn("carrier shipment orphaned by balance failure",
					zap.String("carrier", a.ID()), zap.String("step", step),
					zap.String("shipment_id", h.ShipmentID), zap.Error(err))
				metrics.OperationErrorsTotal.WithLabelValues("orphaned_shipment").Inc()
			}
			return booked{}, err
		}
		return booked{}, &StepError{Step: step, Carrier: a.ID(), Err: err}
	}

	h, err := a.Book(ctx, s)
	if err != nil {
		return fail("book", err)
	}
	if err := a.Manifest(ctx, h, q.CourierID); err != nil {
		return fail("manifest", err)
	}
	awb, err := a.GenerateAWB(ctx, h)
	if err != nil {
		return fail("awb", err)
	}
	if awb.Code == "" {
		return fail("awb", errors.New("empty awb"))
	}
	lbl, err := a.Label(ctx, h)
	if err != nil {
		return fail("label", err)
	}
	if lbl.URL == "" {
		return fail("label", errors.New("empty label url"))
	}
	return booked{handle: h, awb: awb, label: lbl}, nil
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
