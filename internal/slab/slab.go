package slab

import (
	"math"
	"strconv"
)

const (
	// VolumetricDivisor is the carrier-standard cm³ per kg divisor.
	VolumetricDivisor = 5000.0
	// Max is the packaging-category ceiling; heavier parcels are billed as this slab.
	Max = 10.0
)

const step = 0.5

type Result struct {
	DeadWeight       float64 `json:"dead_weight"`
	VolumetricWeight float64 `json:"volumetric_weight"`
	ChargeableWeight float64 `json:"chargeable_weight"`
	Slab             float64 `json:"slab"`
}

// Classify turns dimensions (cm) and dead weight (kg) into a chargeable slab,
// rounded up to the next 0.5 kg and capped at Max.
func Classify(deadWeight, length, width, height float64) Result {
	volumetric := length * width * height / VolumetricDivisor
	chargeable := math.Max(deadWeight, volumetric)
	s := math.Ceil(chargeable/step) * step
	if s > Max {
		s = Max
	}
	return Result{
		DeadWeight:       deadWeight,
		VolumetricWeight: volumetric,
		ChargeableWeight: chargeable,
		Slab:             s,
	}
}

// Key formats a slab value the way cache rows are keyed.
func Key(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
