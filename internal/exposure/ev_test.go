package exposure

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/evmeter/internal/model"
)

func uniformSample(v float64) model.MeteringSample {
	s := model.MeteringSample{Average: v, MatrixMedian: v, CenterWeighted: v, Spot: v}
	for r := range s.Grid {
		for c := range s.Grid[r] {
			s.Grid[r][c] = v
		}
	}
	return s
}

func TestBaseEV100EndToEnd(t *testing.T) {
	ev := BaseEV100(model.CameraExposure{DurationSeconds: 1.0 / 125, ISO: 400, Aperture: 8})
	assert.InDelta(t, math.Log2(8000)-2, ev, 1e-9)
	assert.InDelta(t, 10.97, ev, 0.01)

	scene := SceneEV100(ev, uniformSample(128.0/255.0), model.Matrix, Calibration{})
	assert.InDelta(t, ev, scene, 1e-12)
}

func TestBaseEV100Monotonic(t *testing.T) {
	base := model.CameraExposure{DurationSeconds: 1.0 / 60, ISO: 200, Aperture: 4}
	ref := BaseEV100(base)

	wider := base
	wider.Aperture = 5.6
	assert.Greater(t, BaseEV100(wider), ref)

	longer := base
	longer.DurationSeconds = 1.0 / 30
	assert.Less(t, BaseEV100(longer), ref)

	faster := base
	faster.ISO = 400
	assert.Less(t, BaseEV100(faster), ref)
}

func TestBaseEV100Clamps(t *testing.T) {
	for _, e := range []model.CameraExposure{
		{DurationSeconds: 0, ISO: 0, Aperture: 0},
		{DurationSeconds: -1, ISO: -100, Aperture: -2},
		{DurationSeconds: math.NaN(), ISO: math.NaN(), Aperture: math.NaN()},
		{DurationSeconds: math.Inf(1), ISO: math.Inf(1), Aperture: math.Inf(1)},
	} {
		ev := BaseEV100(e)
		assert.False(t, math.IsNaN(ev) || math.IsInf(ev, 0), "exposure %+v gave %v", e, ev)
	}
	clamped := BaseEV100(model.CameraExposure{DurationSeconds: 0, ISO: 0, Aperture: 2})
	assert.InDelta(t, math.Log2(4/1e-6)-math.Log2(0.01), clamped, 1e-9)

	fallback := BaseEV100(model.CameraExposure{DurationSeconds: 1, ISO: 100})
	assert.InDelta(t, math.Log2(DefaultAperture*DefaultAperture), fallback, 1e-12)
}

func TestSettingsEV100(t *testing.T) {
	assert.InDelta(t, math.Log2(8000)-2, SettingsEV100(8, 1.0/125, 400), 1e-9)
	assert.Equal(t, 0.0, SettingsEV100(0, 1, 100))
	assert.Equal(t, 0.0, SettingsEV100(8, -1, 100))
	assert.Equal(t, 0.0, SettingsEV100(8, 1, math.NaN()))
}

func TestZoneLuma(t *testing.T) {
	s := model.MeteringSample{Average: 0.1, MatrixMedian: 0.2, CenterWeighted: 0.3, Spot: 0.4}
	assert.Equal(t, 0.2, ZoneLuma(s, model.Matrix))
	assert.Equal(t, 0.3, ZoneLuma(s, model.CenterWeighted))
	assert.Equal(t, 0.4, ZoneLuma(s, model.Spot))
}

func TestSceneEV100Relative(t *testing.T) {
	s := model.MeteringSample{Average: 0.2, MatrixMedian: 0.4, CenterWeighted: 0.1, Spot: 0}
	assert.InDelta(t, 11.0, SceneEV100(10, s, model.Matrix, Calibration{}), 1e-12)
	assert.InDelta(t, 9.0, SceneEV100(10, s, model.CenterWeighted, Calibration{}), 1e-12)

	spot := SceneEV100(10, s, model.Spot, Calibration{})
	assert.InDelta(t, 10+math.Log2(1e-6/0.2), spot, 1e-9)

	zeroAvg := model.MeteringSample{Average: 0, MatrixMedian: 0}
	assert.InDelta(t, 10.0, SceneEV100(10, zeroAvg, model.Matrix, Calibration{}), 1e-12)
}

func TestSceneEV100Absolute(t *testing.T) {
	s := model.MeteringSample{Average: 0.9, MatrixMedian: 0.25}
	ev := SceneEV100(42, s, model.Matrix, Calibrated(4096))
	assert.InDelta(t, 10.0, ev, 1e-12, "calibrated EV ignores the base EV")
}

func TestCalibrateRoundTrip(t *testing.T) {
	samples := []model.MeteringSample{
		uniformSample(0.5),
		{Average: 0.3, MatrixMedian: 0.12, CenterWeighted: 0.7, Spot: 0.01},
		{Average: 0.3, MatrixMedian: 0, CenterWeighted: 1, Spot: 0},
	}
	for _, s := range samples {
		for _, mode := range model.MeteringModes {
			for _, base := range []float64{-3, 0, 7.5, 10.97, 16} {
				k := Calibrate(s, mode, base)
				require.Greater(t, k, 0.0)
				got := SceneEV100(base+5, s, mode, Calibrated(k))
				assert.InDelta(t, base, got, 1e-9, "mode %s base %v", mode, base)
			}
		}
	}
}

func TestCalibrationState(t *testing.T) {
	var pushed []*float64
	st := NewCalibrationState(func(k *float64) error {
		pushed = append(pushed, k)
		return nil
	})

	_, ok := st.Snapshot().Get()
	assert.False(t, ok)

	require.NoError(t, st.Set(120))
	k, ok := st.Snapshot().Get()
	assert.True(t, ok)
	assert.Equal(t, 120.0, k)

	for _, bad := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		err := st.Set(bad)
		assert.ErrorIs(t, err, ErrInvalidCalibration)
	}
	k, _ = st.Snapshot().Get()
	assert.Equal(t, 120.0, k, "rejected values keep the previous constant")

	require.NoError(t, st.Set(80))
	require.NoError(t, st.Clear())
	_, ok = st.Snapshot().Get()
	assert.False(t, ok)

	require.Len(t, pushed, 3)
	assert.Equal(t, 120.0, *pushed[0])
	assert.Equal(t, 80.0, *pushed[1])
	assert.Nil(t, pushed[2])
}

func TestCalibrationStateRestore(t *testing.T) {
	calls := 0
	st := NewCalibrationState(func(*float64) error {
		calls++
		return nil
	})
	k := 33.0
	require.NoError(t, st.Restore(&k))
	require.NoError(t, st.Restore(nil))
	got, ok := st.Snapshot().Get()
	assert.True(t, ok)
	assert.Equal(t, 33.0, got)
	assert.Equal(t, 0, calls, "restoring must not push back")

	bad := -2.0
	assert.ErrorIs(t, st.Restore(&bad), ErrInvalidCalibration)
	assert.Equal(t, 33.0, *st.Snapshot().Ptr())
}

func TestCalibrationStatePersistFailureKeepsValue(t *testing.T) {
	boom := errors.New("disk full")
	st := NewCalibrationState(func(*float64) error { return boom })
	err := st.Set(5)
	assert.ErrorIs(t, err, boom)
	k, ok := st.Snapshot().Get()
	assert.True(t, ok)
	assert.Equal(t, 5.0, k)
}
