package slab

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify_DeadWeightDominates(t *testing.T) {
	r := Classify(0.2, 10, 10, 10)
	require.InDelta(t, 0.02, r.VolumetricWeight, 1e-9)
	require.InDelta(t, 0.2, r.ChargeableWeight, 1e-9)
	require.Equal(t, 0.5, r.Slab)
}

func TestClassify_CappedAtMax(t *testing.T) {
	r := Classify(0, 100, 100, 100)
	require.InDelta(t, 200.0, r.VolumetricWeight, 1e-9)
	require.InDelta(t, 200.0, r.ChargeableWeight, 1e-9)
	require.Equal(t, Max, r.Slab)
}

func TestClassify_VolumetricDominates(t *testing.T) {
	// 30*20*10/5000 = 1.2 -> 1.5
	r := Classify(0.8, 30, 20, 10)
	require.InDelta(t, 1.2, r.ChargeableWeight, 1e-9)
	require.Equal(t, 1.5, r.Slab)
}

func TestClassify_ExactStepIsNotRoundedUp(t *testing.T) {
	require.Equal(t, 2.0, Classify(2.0, 0, 0, 0).Slab)
	require.Equal(t, 0.0, Classify(0, 0, 0, 0).Slab)
}

func TestClassify_AlwaysHalfKgMultiple(t *testing.T) {
	weights := []float64{0.01, 0.49, 0.51, 1.0, 3.3, 7.77, 9.9, 10.01, 55}
	dims := []float64{0, 5, 12.5, 33, 71}
	for _, w := range weights {
		for _, d := range dims {
			r := Classify(w, d, d, d)
			want := math.Min(Max, math.Ceil(math.Max(w, d*d*d/VolumetricDivisor)*2)/2)
			require.Equal(t, want, r.Slab, "w=%v d=%v", w, d)
			require.Zero(t, math.Mod(r.Slab, 0.5), "w=%v d=%v", w, d)
			require.LessOrEqual(t, r.Slab, Max)
		}
	}
}

func TestKey(t *testing.T) {
	require.Equal(t, "0.50", Key(0.5))
	require.Equal(t, "10.00", Key(10))
}
