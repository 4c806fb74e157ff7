package booking

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"shiporch/internal/carrier"
	"shiporch/internal/carrier/carriertest"
)

func cands(fakes ...*carriertest.Fake) []Candidate {
	out := make([]Candidate, 0, len(fakes))
	for i, f := range fakes {
		out = append(out, Candidate{Adapter: f, Quotes: f.Quotes, Priority: i})
	}
	return out
}

func okAttempt(context.Context, carrier.Adapter, carrier.Quote) error { return nil }

func TestSelector_PicksCheapestAcrossCarriers(t *testing.T) {
	a := carriertest.New("a", "80", "70")
	b := carriertest.New("b", "60", "90")
	sel, err := NewSelector(nil).Run(context.Background(), cands(a, b), okAttempt)
	require.NoError(t, err)
	require.Equal(t, "b", sel.Carrier)
	require.True(t, sel.Quote.Cost.Equal(decimal.NewFromInt(60)))
	require.Equal(t, 1, sel.Rounds)
}

func TestSelector_TieGoesToRegistryOrderThenQuoteOrder(t *testing.T) {
	a := carriertest.New("a", "50", "50")
	b := carriertest.New("b", "50")
	cs := []Candidate{
		{Adapter: b, Quotes: b.Quotes, Priority: 1},
		{Adapter: a, Quotes: a.Quotes, Priority: 0},
	}
	sel, err := NewSelector(nil).Run(context.Background(), cs, okAttempt)
	require.NoError(t, err)
	require.Equal(t, "a", sel.Carrier)
	require.Equal(t, "a-courier-0", sel.Quote.Courier)
}

func TestSelector_ProactiveExclusion(t *testing.T) {
	cheap := carriertest.New("cheap", "40")
	cheap.Balance = decimal.NewFromInt(39)
	pricey := carriertest.New("pricey", "45")

	var tried []string
	sel, err := NewSelector(nil).Run(context.Background(), cands(cheap, pricey), func(_ context.Context, a carrier.Adapter, _ carrier.Quote) error {
		tried = append(tried, a.ID())
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "pricey", sel.Carrier)
	require.Equal(t, []string{"pricey"}, tried)
	require.Equal(t, []string{"cheap"}, sel.Excluded)
}

func TestSelector_OnlyCarrierBelowBalanceIsNotViable(t *testing.T) {
	only := carriertest.New("only", "40")
	only.Balance = decimal.NewFromInt(10)
	_, err := NewSelector(nil).Run(context.Background(), cands(only), okAttempt)
	require.ErrorIs(t, err, ErrNoViableCarrier)
}

func TestSelector_BalanceFetchErrorKeepsCarrier(t *testing.T) {
	a := carriertest.New("a", "40")
	a.BalanceErr = errors.New("timeout")
	sel, err := NewSelector(nil).Run(context.Background(), cands(a), okAttempt)
	require.NoError(t, err)
	require.Equal(t, "a", sel.Carrier)
}

func TestSelector_ReactiveExclusionIsMonotonicAndBounded(t *testing.T) {
	fakes := []*carriertest.Fake{
		carriertest.New("a", "10"),
		carriertest.New("b", "20"),
		carriertest.New("c", "30"),
	}
	var seenExcluded [][]string
	excluded := map[string]bool{}
	attempts := 0
	sel, err := NewSelector(nil).Run(context.Background(), cands(fakes...), func(_ context.Context, a carrier.Adapter, _ carrier.Quote) error {
		attempts++
		require.False(t, excluded[a.ID()], "excluded carrier retried")
		excluded[a.ID()] = true
		var snap []string
		for k := range excluded {
			snap = append(snap, k)
		}
		seenExcluded = append(seenExcluded, snap)
		return carriertest.ErrNoBalance
	})
	require.ErrorIs(t, err, ErrNoViableCarrier)
	require.Equal(t, 3, attempts)
	require.LessOrEqual(t, sel.Rounds, len(fakes)+1)
	require.ElementsMatch(t, []string{"a", "b", "c"}, sel.Excluded)
	for i := 1; i < len(seenExcluded); i++ {
		require.Greater(t, len(seenExcluded[i]), len(seenExcluded[i-1]))
	}
}

func TestSelector_BalanceFailureFallsThroughToNext(t *testing.T) {
	a := carriertest.New("a", "10")
	b := carriertest.New("b", "20")
	sel, err := NewSelector(nil).Run(context.Background(), cands(a, b), func(_ context.Context, ad carrier.Adapter, _ carrier.Quote) error {
		if ad.ID() == "a" {
			return carriertest.ErrNoBalance
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "b", sel.Carrier)
	require.Equal(t, 2, sel.Rounds)
	require.Equal(t, []string{"a"}, sel.Excluded)
}

func TestSelector_NonBalanceFailureStops(t *testing.T) {
	a := carriertest.New("a", "10")
	b := carriertest.New("b", "20")
	boom := &StepError{Step: "awb", Carrier: "a", Err: errors.New("courier unavailable")}
	attempts := 0
	_, err := NewSelector(nil).Run(context.Background(), cands(a, b), func(context.Context, carrier.Adapter, carrier.Quote) error {
		attempts++
		return boom
	})
	require.ErrorIs(t, err, ErrBookingFatal)
	require.Equal(t, 1, attempts)
}

func TestSelector_NoQuotes(t *testing.T) {
	a := carriertest.New("a")
	_, err := NewSelector(nil).Run(context.Background(), cands(a), okAttempt)
	require.ErrorIs(t, err, ErrNoViableCarrier)
	require.Zero(t, a.Calls("balance"))
}
