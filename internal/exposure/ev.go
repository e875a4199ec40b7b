// Package exposure converts camera exposure and zone luminance into EV100 and
// searches for equivalent aperture/shutter combinations.
package exposure

import (
	"math"

	"github.com/verte-zerg/evmeter/internal/model"
)

const (
	// DefaultAperture is used when neither a detected nor an override f-number exists.
	DefaultAperture = 1.8

	minDuration = 1e-6
	minISO      = 1.0
	minLuma     = 1e-6
)

// BaseEV100 returns the EV100 implied by the camera's own exposure:
// log2(N²/t) - log2(S/100). Duration and ISO are clamped so the result is always defined.
func BaseEV100(e model.CameraExposure) float64 {
	t := clampMin(e.DurationSeconds, minDuration)
	iso := clampMin(e.ISO, minISO)
	n := e.Aperture
	if !(n > 0) || math.IsInf(n, 0) {
		n = DefaultAperture
	}
	return math.Log2(n*n/t) - math.Log2(iso/100.0)
}

// SettingsEV100 returns the EV100 of a manual combination, or 0 if any value is not positive.
func SettingsEV100(aperture, shutterSeconds, iso float64) float64 {
	if !(aperture > 0) || !(shutterSeconds > 0) || !(iso > 0) {
		return 0
	}
	return math.Log2(aperture*aperture/shutterSeconds) - math.Log2(iso/100.0)
}

// ZoneLuma selects the luma that feeds the given metering mode.
func ZoneLuma(s model.MeteringSample, mode model.MeteringMode) float64 {
	switch mode {
	case model.CenterWeighted:
		return s.CenterWeighted
	case model.Spot:
		return s.Spot
	default:
		return s.MatrixMedian
	}
}

// SceneEV100 applies the metered zone to the base EV.
//
// With a calibration constant K the result is the absolute log2(L*K) and
// baseEV is ignored. Without one, the zone's deviation from the frame
// average shifts baseEV by log2(L/avg). The relative form is an
// approximation and is kept as such.
func SceneEV100(baseEV float64, s model.MeteringSample, mode model.MeteringMode, cal Calibration) float64 {
	l := math.Max(ZoneLuma(s, mode), minLuma)
	if k, ok := cal.Get(); ok {
		return math.Log2(l * k)
	}
	return baseEV + math.Log2(l/math.Max(s.Average, minLuma))
}

// Calibrate returns the constant K that makes SceneEV100 reproduce baseEV
// for the given sample: K = 2^baseEV / L.
func Calibrate(s model.MeteringSample, mode model.MeteringMode, baseEV float64) float64 {
	return math.Exp2(baseEV) / math.Max(ZoneLuma(s, mode), minLuma)
}

// clampMin also maps NaN and ±Inf to lo.
func clampMin(v, lo float64) float64 {
	if !(v >= lo) || math.IsInf(v, 1) {
		return lo
	}
	return v
}
