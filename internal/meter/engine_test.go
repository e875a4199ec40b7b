package meter

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/evmeter/internal/exposure"
	"github.com/verte-zerg/evmeter/internal/luma"
	"github.com/verte-zerg/evmeter/internal/model"
)

type fakeSettings struct {
	mu          sync.Mutex
	calibration []*float64
	aperture    []*float64
	err         error
}

func (f *fakeSettings) SaveCalibration(_ context.Context, k *float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calibration = append(f.calibration, k)
	return f.err
}

func (f *fakeSettings) SaveApertureOverride(_ context.Context, a *float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aperture = append(f.aperture, a)
	return f.err
}

func grayFrame(width, height int, v byte) luma.Frame {
	pix := make([]byte, width*height)
	for i := range pix {
		pix[i] = v
	}
	return luma.NewFrame(width, height, pix)
}

func newTestEngine(t *testing.T, settings SettingsStore) *Engine {
	t.Helper()
	e, err := New(Options{
		Config:   model.Config{Mode: model.Matrix, FilmISO: 400},
		Settings: settings,
	})
	require.NoError(t, err)
	return e
}

func TestEngineEndToEnd(t *testing.T) {
	e := newTestEngine(t, nil)
	e.SetCaptureParams(model.CaptureParams{DurationSeconds: 1.0 / 125, ISO: 400, ApertureHint: 8})

	require.True(t, e.Offer(grayFrame(800, 600, 128)))
	r, err := e.Next(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(1), r.Seq)
	assert.InDelta(t, 0.502, r.Sample.Average, 1e-3)
	assert.InDelta(t, math.Log2(8000)-2, r.BaseEV, 1e-9)
	assert.InDelta(t, r.BaseEV, r.SceneEV, 1e-12)
	assert.Equal(t, 8.0, r.Exposure.Aperture)
	assert.Equal(t, 400.0, r.FilmISO)
	require.NotEmpty(t, r.Suggestions)
	for _, s := range r.Suggestions {
		assert.Equal(t, "ISO 400", s.ISOLabel)
	}
}

func TestEngineDropsWhileBusy(t *testing.T) {
	e := newTestEngine(t, nil)
	e.busy.Store(true)
	assert.False(t, e.Offer(grayFrame(10, 10, 1)))
	e.busy.Store(false)
	assert.True(t, e.Offer(grayFrame(10, 10, 1)))

	st := e.Stats()
	assert.Equal(t, uint64(1), st.Dropped)
	assert.Equal(t, uint64(1), st.Processed)
}

func TestEngineLatestWins(t *testing.T) {
	e := newTestEngine(t, nil)
	for v := 1; v <= 3; v++ {
		require.True(t, e.Offer(grayFrame(20, 20, byte(v*50))))
	}
	r, err := e.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), r.Seq)
	assert.InDelta(t, 150.0/255.0, r.Sample.Average, 1e-12)
	assert.Equal(t, uint64(2), e.Stats().Overwrites)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = e.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "a consumed reading is not delivered twice")

	latest, ok := e.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(3), latest.Seq)
}

func TestEngineNextWakesOnPublish(t *testing.T) {
	e := newTestEngine(t, nil)
	done := make(chan Reading, 1)
	go func() {
		r, err := e.Next(context.Background())
		if err == nil {
			done <- r
		}
	}()
	time.Sleep(10 * time.Millisecond)
	require.True(t, e.Offer(grayFrame(8, 8, 200)))

	select {
	case r := <-done:
		assert.Equal(t, uint64(1), r.Seq)
	case <-time.After(time.Second):
		t.Fatal("consumer was not woken")
	}
}

func TestEngineClose(t *testing.T) {
	e := newTestEngine(t, nil)
	e.Close()
	_, err := e.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.True(t, e.Offer(grayFrame(4, 4, 9)), "metering still works, the reading is just dropped")
	_, err = e.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEngineApertureResolution(t *testing.T) {
	settings := &fakeSettings{}
	e := newTestEngine(t, settings)

	assert.Equal(t, exposure.DefaultAperture, e.EffectiveExposure().Aperture)

	e.SetCaptureParams(model.CaptureParams{DurationSeconds: 0.01, ISO: 100, ApertureHint: 1.78})
	assert.Equal(t, 1.78, e.EffectiveExposure().Aperture)

	override := 2.2
	require.NoError(t, e.SetApertureOverride(context.Background(), &override))
	override = 99 // caller's variable must not alias the engine state
	assert.Equal(t, 2.2, e.EffectiveExposure().Aperture)

	bad := -1.0
	assert.ErrorIs(t, e.SetApertureOverride(context.Background(), &bad), ErrInvalidAperture)
	assert.Equal(t, 2.2, e.EffectiveExposure().Aperture)

	require.NoError(t, e.SetApertureOverride(context.Background(), nil))
	assert.Equal(t, 1.78, e.EffectiveExposure().Aperture)

	require.Len(t, settings.aperture, 2)
	assert.Equal(t, 2.2, *settings.aperture[0])
	assert.Nil(t, settings.aperture[1])
}

func TestEngineCalibrateRoundTrip(t *testing.T) {
	settings := &fakeSettings{}
	e := newTestEngine(t, settings)

	_, err := e.Calibrate()
	assert.ErrorIs(t, err, ErrNoReading)

	e.SetCaptureParams(model.CaptureParams{DurationSeconds: 1.0 / 250, ISO: 200, ApertureHint: 4})
	e.SetMode(model.Spot)
	e.SetSpotPoint(model.Point{X: 0.25, Y: 0.75})
	frame := grayFrame(320, 240, 46)

	require.True(t, e.Offer(frame))
	before, _ := e.Latest()

	k, err := e.Calibrate()
	require.NoError(t, err)
	assert.Greater(t, k, 0.0)
	assert.True(t, e.Calibration().Ptr() != nil)

	require.True(t, e.Offer(frame))
	after, _ := e.Latest()
	assert.InDelta(t, before.BaseEV, after.SceneEV, 1e-9)

	require.NoError(t, e.ClearCalibration())
	_, ok := e.Calibration().Get()
	assert.False(t, ok)

	require.Len(t, settings.calibration, 2)
	assert.Equal(t, k, *settings.calibration[0])
	assert.Nil(t, settings.calibration[1])
}

func TestEngineRestore(t *testing.T) {
	k, a := 512.0, 2.8
	e, err := New(Options{Restore: model.PersistedSettings{CalibrationConstant: &k, ApertureOverride: &a}})
	require.NoError(t, err)
	got, ok := e.Calibration().Get()
	assert.True(t, ok)
	assert.Equal(t, 512.0, got)
	assert.Equal(t, 2.8, e.EffectiveExposure().Aperture)

	badK, badA := -1.0, 0.0
	e, err = New(Options{Restore: model.PersistedSettings{CalibrationConstant: &badK, ApertureOverride: &badA}})
	require.NotNil(t, e)
	assert.ErrorIs(t, err, exposure.ErrInvalidCalibration)
	assert.ErrorIs(t, err, ErrInvalidAperture)
	_, ok = e.Calibration().Get()
	assert.False(t, ok)
	_, ok = e.ApertureOverride()
	assert.False(t, ok)
}

func TestEnginePersistErrorIsReturned(t *testing.T) {
	boom := errors.New("readonly")
	e := newTestEngine(t, &fakeSettings{err: boom})
	require.True(t, e.Offer(grayFrame(10, 10, 100)))
	_, err := e.Calibrate()
	assert.ErrorIs(t, err, boom)
	_, ok := e.Calibration().Get()
	assert.True(t, ok, "in-memory state keeps the latest write")
}

func TestEngineSettersClamp(t *testing.T) {
	e := newTestEngine(t, nil)
	e.SetSpotPoint(model.Point{X: 4, Y: -1})
	assert.Equal(t, model.Point{X: 1, Y: 0}, e.SpotPoint())

	e.SetFilmISO(-5)
	assert.Equal(t, 400.0, e.FilmISO())
	e.SetFilmISO(1600)
	assert.Equal(t, 1600.0, e.FilmISO())

	_, err := New(Options{Config: model.Config{Shutters: []string{"1/0"}}})
	assert.Error(t, err)
}

func TestEngineConcurrentOffers(t *testing.T) {
	e := newTestEngine(t, nil)
	frame := grayFrame(640, 480, 90)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				e.Offer(frame)
				e.SetMode(model.MeteringModes[j%3])
			}
		}()
	}
	wg.Wait()
	st := e.Stats()
	assert.Equal(t, uint64(160), st.Processed+st.Dropped)
}

func TestReadingNote(t *testing.T) {
	k := 3.0
	r := Reading{
		Exposure:    model.CameraExposure{DurationSeconds: 0.5, ISO: 100, Aperture: 2.8},
		SceneEV:     4.2,
		Mode:        model.Spot,
		Calibration: exposure.Calibrated(k),
	}
	at := time.Unix(0, 0)

	note := r.Note(nil, at)
	assert.Equal(t, "ƒ2.8", note.Aperture)
	assert.Equal(t, "1/2", note.Shutter)
	assert.Equal(t, "ISO 100", note.ISO)
	assert.Equal(t, "spot", note.Mode)
	assert.Equal(t, 4.2, note.EV)
	assert.True(t, note.Calibrated)
	assert.Equal(t, at, note.TakenAt)

	selected := &model.ExposureSuggestion{Aperture: 8, ShutterLabel: "1/60", ISOLabel: "ISO 400"}
	note = r.Note(selected, at)
	assert.Equal(t, "ƒ8", note.Aperture)
	assert.Equal(t, "1/60", note.Shutter)
	assert.Equal(t, "ISO 400", note.ISO)
	assert.Equal(t, 4.2, note.EV)
}
