package booking

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"shiporch/internal/carrier"
	"shiporch/internal/metrics"
)

// Candidate is one carrier with the quotes it returned.
type Candidate struct {
	Adapter carrier.Adapter
	Quotes  []carrier.Quote
	// Priority is the registry position; lower wins cost ties.
	Priority int
}

// AttemptFunc tries to book through the chosen carrier and quote.
type AttemptFunc func(ctx context.Context, a carrier.Adapter, q carrier.Quote) error

type Selection struct {
	Carrier  string
	Quote    carrier.Quote
	Rounds   int
	Excluded []string
}

// Selector picks the cheapest carrier that can pay for its own quote.
type Selector struct {
	log *zap.Logger
}

func NewSelector(log *zap.Logger) *Selector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Selector{log: log}
}

// excludedSet is never mutated; with returns a copy.
type excludedSet map[string]struct{}

func (e excludedSet) with(id string) excludedSet {
	out := make(excludedSet, len(e)+1)
	for k := range e {
		out[k] = struct{}{}
	}
	out[id] = struct{}{}
	return out
}

func (e excludedSet) has(id string) bool {
	_, ok := e[id]
	return ok
}

func (e excludedSet) list() []string {
	out := make([]string, 0, len(e))
	for k := range e {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Run excludes carriers whose balance is below their cheapest quote, then
// attempts the cheapest remaining quote. A balance failure from the attempt
// excludes that carrier and starts a new round; any other failure ends the
// run. At most len(candidates)+1 rounds run.
func (s *Selector) Run(ctx context.Context, candidates []Candidate, attempt AttemptFunc) (Selection, error) {
	ordered := append([]Candidate(nil), candidates...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	excluded := s.proactive(ctx, ordered)

	var lastErr error
	for round := 1; round <= len(ordered)+1; round++ {
		remaining := filter(ordered, excluded)
		best, q, ok := cheapest(remaining)
		if !ok {
			sel := Selection{Rounds: round, Excluded: excluded.list()}
			if lastErr != nil {
				return sel, fmt.Errorf("%w: last failure: %v", ErrNoViableCarrier, lastErr)
			}
			return sel, ErrNoViableCarrier
		}
		id := best.Adapter.ID()
		err := attempt(ctx, best.Adapter, q)
		if err == nil {
			return Selection{Carrier: id, Quote: q, Rounds: round, Excluded: excluded.list()}, nil
		}
		if !best.Adapter.IsBalanceError(err) {
			return Selection{Carrier: id, Quote: q, Rounds: round, Excluded: excluded.list()}, err
		}
		s.log.Warn("carrier balance insufficient at booking, excluding",
			zap.String("carrier", id), zap.Int("round", round), zap.Error(err))
		metrics.CarrierExclusionsTotal.WithLabelValues(id, "reactive").Inc()
		lastErr = err
		excluded = excluded.with(id)
	}
	return Selection{Rounds: len(ordered) + 1, Excluded: excluded.list()}, ErrNoViableCarrier
}

func (s *Selector) proactive(ctx context.Context, cands []Candidate) excludedSet {
	excluded := excludedSet{}
	for _, c := range cands {
		q, ok := cheapestOf(c.Quotes)
		if !ok {
			continue
		}
		id := c.Adapter.ID()
		bal, err := c.Adapter.WalletBalance(ctx)
		if err != nil {
			s.log.Warn("carrier balance unavailable, keeping eligible", zap.String("carrier", id), zap.Error(err))
			continue
		}
		if bal.LessThan(q.Cost) {
			s.log.Info("carrier balance below cheapest quote, excluding",
				zap.String("carrier", id),
				zap.String("balance", bal.String()),
				zap.String("cheapest", q.Cost.String()))
			metrics.CarrierExclusionsTotal.WithLabelValues(id, "proactive").Inc()
			excluded = excluded.with(id)
		}
	}
	return excluded
}

func filter(cands []Candidate, excluded excludedSet) []Candidate {
	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if !excluded.has(c.Adapter.ID()) && len(c.Quotes) > 0 {
			out = append(out, c)
		}
	}
	return out
}

// cheapest scans in priority then quote order and only replaces the
// current best on a strictly lower cost.
func cheapest(cands []Candidate) (Candidate, carrier.Quote, bool) {
	var (
		best  Candidate
		bestQ carrier.Quote
		found bool
	)
	for _, c := range cands {
		for _, q := range c.Quotes {
			if !found || q.Cost.LessThan(bestQ.Cost) {
				best, bestQ, found = c, q, true
			}
		}
	}
	return best, bestQ, found
}

func cheapestOf(qs []carrier.Quote) (carrier.Quote, bool) {
	if len(qs) == 0 {
		return carrier.Quote{}, false
	}
	best := qs[0]
	for _, q := range qs[1:] {
		if q.Cost.LessThan(best.Cost) {
			best = q
		}
	}
	return best, true
}
