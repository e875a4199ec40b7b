package exposure

import (
	"math"
	"sort"

	"github.com/verte-zerg/evmeter/internal/model"
)

// MaxDeltaEV is the largest deviation still reported as an equivalent exposure.
const MaxDeltaEV = 1.0

// EquivalentExposures finds, for each aperture, the closest shutter that
// reproduces targetEV100 at iso. Results more than MaxDeltaEV stops away are
// dropped. Output is sorted by aperture, then by |DeltaEV|.
//
// Unusable input (no options, non-finite target, iso <= 0) yields nil.
func EquivalentExposures(targetEV100, iso float64, apertures []float64, shutters []Shutter) []model.ExposureSuggestion {
	if len(apertures) == 0 || len(shutters) == 0 {
		return nil
	}
	if math.IsNaN(targetEV100) || math.IsInf(targetEV100, 0) || !(iso > 0) || math.IsInf(iso, 1) {
		return nil
	}

	isoLabel := ISOLabel(iso)
	isoFactor := iso / 100.0
	scale := math.Exp2(targetEV100) * isoFactor

	var out []model.ExposureSuggestion
	for _, n := range apertures {
		if !(n > 0) || math.IsInf(n, 1) {
			continue
		}
		ideal := n * n / scale
		sh, ok := nearestShutter(shutters, ideal)
		if !ok {
			continue
		}
		actual := math.Log2(n*n/sh.Seconds) - math.Log2(isoFactor)
		delta := actual - targetEV100
		if math.Abs(delta) > MaxDeltaEV {
			continue
		}
		out = append(out, model.ExposureSuggestion{
			Aperture:       n,
			ShutterSeconds: sh.Seconds,
			ShutterLabel:   sh.Label,
			ISOLabel:       isoLabel,
			DeltaEV:        delta,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Aperture == out[j].Aperture {
			return math.Abs(out[i].DeltaEV) < math.Abs(out[j].DeltaEV)
		}
		return out[i].Aperture < out[j].Aperture
	})
	return out
}

// nearestShutter returns the first shutter with the smallest |Seconds-ideal|.
func nearestShutter(shutters []Shutter, ideal float64) (Shutter, bool) {
	best := Shutter{}
	bestDiff := math.Inf(1)
	found := false
	for _, sh := range shutters {
		if !(sh.Seconds > 0) {
			continue
		}
		if d := math.Abs(sh.Seconds - ideal); d < bestDiff {
			best, bestDiff, found = sh, d, true
		}
	}
	return best, found
}
