package exposure

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEquivalentExposuresExactMatch(t *testing.T) {
	target := math.Log2(64 * 125) // f/8 at 1/125, ISO 100
	out := EquivalentExposures(target, 100, StandardApertures, StandardShutters())
	require.NotEmpty(t, out)

	var found bool
	for _, s := range out {
		if s.Aperture == 8 {
			found = true
			assert.Equal(t, "1/125", s.ShutterLabel)
			assert.InDelta(t, 0.0, s.DeltaEV, 1e-9)
			assert.Equal(t, "ISO 100", s.ISOLabel)
		}
	}
	assert.True(t, found, "f/8 must be suggested")
}

func TestEquivalentExposuresExactPowersOfTwo(t *testing.T) {
	shutters := []Shutter{{Label: "1/4", Seconds: 0.25}, {Label: "1", Seconds: 1}, {Label: "4", Seconds: 4}}
	// EV 4 at ISO 100: f/4 -> 1s, f/2 -> 1/4s, f/8 -> 4s.
	out := EquivalentExposures(4, 100, []float64{8, 2, 4}, shutters)
	require.Len(t, out, 3)
	assert.Equal(t, []float64{2, 4, 8}, []float64{out[0].Aperture, out[1].Aperture, out[2].Aperture})
	for _, s := range out {
		assert.Equal(t, 0.0, s.DeltaEV)
	}
	assert.Equal(t, "1/4", out[0].ShutterLabel)
	assert.Equal(t, "1", out[1].ShutterLabel)
	assert.Equal(t, "4", out[2].ShutterLabel)
}

func TestEquivalentExposuresFilteringAndOrder(t *testing.T) {
	shutters := StandardShutters()
	for _, target := range []float64{-6, -2, 0, 3.3, 7.7, 10.97, 13, 15.5, 18, 21} {
		for _, iso := range StandardISOs {
			out := EquivalentExposures(target, iso, StandardApertures, shutters)
			for i, s := range out {
				assert.LessOrEqual(t, math.Abs(s.DeltaEV), MaxDeltaEV)
				if i == 0 {
					continue
				}
				prev := out[i-1]
				assert.LessOrEqual(t, prev.Aperture, s.Aperture)
				if prev.Aperture == s.Aperture {
					assert.LessOrEqual(t, math.Abs(prev.DeltaEV), math.Abs(s.DeltaEV))
				}
			}
		}
	}
}

func TestEquivalentExposuresDuplicateApertures(t *testing.T) {
	shutters := []Shutter{{Label: "1", Seconds: 1}}
	// Both entries map to the same shutter and delta; ties keep input order.
	out := EquivalentExposures(0, 100, []float64{1, 1}, shutters)
	require.Len(t, out, 2)
	assert.Equal(t, out[0], out[1])
}

func TestEquivalentExposuresDropsFarOff(t *testing.T) {
	shutters := []Shutter{{Label: "1", Seconds: 1}}
	// f/1 at 1s is EV 0; f/4 at 1s is EV 4, three stops past the limit.
	out := EquivalentExposures(0, 100, []float64{1, 4}, shutters)
	require.Len(t, out, 1)
	assert.Equal(t, 1.0, out[0].Aperture)
}

func TestEquivalentExposuresTieBreaksFirst(t *testing.T) {
	// Ideal shutter is 1s; 0.5 and 1.5 are equally close.
	shutters := []Shutter{{Label: "a", Seconds: 0.5}, {Label: "b", Seconds: 1.5}}
	out := EquivalentExposures(0, 100, []float64{1}, shutters)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ShutterLabel)
}

func TestEquivalentExposuresUnusableInput(t *testing.T) {
	shutters := StandardShutters()
	assert.Empty(t, EquivalentExposures(10, 100, nil, shutters))
	assert.Empty(t, EquivalentExposures(10, 100, StandardApertures, nil))
	assert.Empty(t, EquivalentExposures(math.NaN(), 100, StandardApertures, shutters))
	assert.Empty(t, EquivalentExposures(math.Inf(1), 100, StandardApertures, shutters))
	assert.Empty(t, EquivalentExposures(10, 0, StandardApertures, shutters))
	assert.Empty(t, EquivalentExposures(10, -400, StandardApertures, shutters))
}

func TestParseShutter(t *testing.T) {
	cases := map[string]float64{
		"1/125": 1.0 / 125,
		"1/2":   0.5,
		"2":     2,
		"15s":   15,
		" 0.5 ": 0.5,
	}
	for label, want := range cases {
		got, err := ParseShutter(label)
		require.NoError(t, err, label)
		assert.InDelta(t, want, got, 1e-12, label)
	}
	for _, bad := range []string{"", "fast", "1/0", "0", "-1", "1/x"} {
		_, err := ParseShutter(bad)
		assert.Error(t, err, bad)
	}
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "1/125", ShutterLabel(0.008))
	assert.Equal(t, "1/3", ShutterLabel(0.3))
	assert.Equal(t, "2s", ShutterLabel(2))
	assert.Equal(t, "ƒ2.8", ApertureLabel(2.8))
	assert.Equal(t, "ISO 400", ISOLabel(400))
}

func TestPresetsAndISOSteps(t *testing.T) {
	p, ok := PresetForISO(400)
	require.True(t, ok)
	assert.Equal(t, "Kodak Portra 400", p.Name)

	p, ok = PresetByName("ilford delta 100")
	require.True(t, ok)
	assert.Equal(t, 100.0, p.ISO)

	assert.Equal(t, 800.0, StepISO(400, 1))
	assert.Equal(t, 25.0, StepISO(25, -1))
	assert.Equal(t, 3200.0, StepISO(3200, 5))
	assert.Equal(t, 400.0, StepISO(320, 0))
}
