// Package rate collects quotes from every enabled carrier for one shipment.
package rate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"shiporch/internal/carrier"
	"shiporch/internal/metrics"
	"shiporch/internal/shipment"
)

// Aggregator queries carriers one after another. A carrier that errors,
// panics or returns a malformed quote contributes an empty list; collection
// itself never fails.
type Aggregator struct {
	log *zap.Logger
}

func NewAggregator(log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{log: log}
}

// Collect returns quotes keyed by carrier ID. Every adapter gets a key, even
// when its list is empty.
func (a *Aggregator) Collect(ctx context.Context, s shipment.Shipment, adapters []carrier.Adapter) map[string][]carrier.Quote {
	out := make(map[string][]carrier.Quote, len(adapters))
	for _, ad := range adapters {
		id := ad.ID()
		quotes, err := a.quoteOne(ctx, ad, s)
		if err == nil {
			err = validate(quotes)
		}
		if err != nil {
			a.log.Warn("carrier quote dropped",
				zap.String("carrier", id),
				zap.String("order_id", s.OrderID),
				zap.Error(err))
			metrics.QuoteFailuresTotal.WithLabelValues(id, reason(err)).Inc()
			out[id] = []carrier.Quote{}
			continue
		}
		out[id] = quotes
	}
	return out
}

func (a *Aggregator) quoteOne(ctx context.Context, ad carrier.Adapter, s shipment.Shipment) (qs []carrier.Quote, err error) {
	defer func() {
		if r := recover(); r != nil {
			qs, err = nil, fmt.Errorf("%w: panic: %v", errPanic, r)
		}
	}()
	qs, err = ad.Quote(ctx, s)
	if qs == nil && err == nil {
		qs = []carrier.Quote{}
	}
	return qs, err
}

var errPanic = errors.New("carrier panicked")

func validate(qs []carrier.Quote) error {
	for i, q := range qs {
		if strings.TrimSpace(q.Courier) == "" {
			return fmt.Errorf("%w: quote %d has no courier", carrier.ErrAdapterData, i)
		}
		if !q.Cost.IsPositive() {
			return fmt.Errorf("%w: quote %d (%s) cost %s", carrier.ErrAdapterData, i, q.Courier, q.Cost)
		}
	}
	return nil
}

func reason(err error) string {
	switch {
	case errors.Is(err, errPanic):
		return "panic"
	case errors.Is(err, carrier.ErrAdapterData):
		return "malformed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

// Flatten lists every quote sorted by cost, keeping carrier priority and
// quote order among equal costs.
func Flatten(byCarrier map[string][]carrier.Quote, priority func(string) int) []carrier.Quote {
	ids := make([]string, 0, len(byCarrier))
	for id := range byCarrier {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return priority(ids[i]) < priority(ids[j]) })

	var all []carrier.Quote
	for _, id := range ids {
		all = append(all, byCarrier[id]...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Cost.LessThan(all[j].Cost) })
	return all
}

// Lister quotes a shipment across a fixed set of enabled carriers.
type Lister struct {
	Registry   *carrier.Registry
	Enabled    []string
	Aggregator *Aggregator
}

// List returns every valid quote, cheapest first.
func (l *Lister) List(ctx context.Context, s shipment.Shipment) []carrier.Quote {
	byCarrier := l.Aggregator.Collect(ctx, s, l.Registry.Enabled(l.Enabled))
	return Flatten(byCarrier, l.Registry.Priority)
}
