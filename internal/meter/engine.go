// Package meter runs the metering pipeline on captured frames and publishes
// the latest reading to a single consumer.
package meter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/verte-zerg/evmeter/internal/exposure"
	"github.com/verte-zerg/evmeter/internal/luma"
	"github.com/verte-zerg/evmeter/internal/model"
)

var (
	// ErrInvalidAperture is returned for a non-positive or non-finite aperture override.
	ErrInvalidAperture = errors.New("aperture must be a positive finite f-number")
	// ErrNoReading is returned when an action needs a reading and no frame was processed yet.
	ErrNoReading = errors.New("no frame has been metered yet")
	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("meter closed")
)

// DefaultCaptureParams are assumed until the capture collaborator reports.
var DefaultCaptureParams = model.CaptureParams{DurationSeconds: 1.0 / 120, ISO: 100}

// SettingsStore persists values that must survive a restart.
type SettingsStore interface {
	SaveCalibration(ctx context.Context, constant *float64) error
	SaveApertureOverride(ctx context.Context, aperture *float64) error
}

// Reading is an immutable snapshot published once per processed frame.
type Reading struct {
	Seq         uint64
	At          time.Time
	Sample      model.MeteringSample
	Exposure    model.CameraExposure
	Mode        model.MeteringMode
	SpotPoint   model.Point
	BaseEV      float64
	SceneEV     float64
	Calibration exposure.Calibration
	FilmISO     float64
	Suggestions []model.ExposureSuggestion
}

// Note records the reading as an exposure note taken at at. The note carries
// the labels of selected, or the effective camera exposure when selected is nil.
func (r Reading) Note(selected *model.ExposureSuggestion, at time.Time) model.ExposureNote {
	note := model.ExposureNote{
		TakenAt:    at,
		EV:         r.SceneEV,
		Mode:       r.Mode.String(),
		Calibrated: r.Calibration.Ptr() != nil,
	}
	if selected != nil {
		note.Aperture = exposure.ApertureLabel(selected.Aperture)
		note.Shutter = selected.ShutterLabel
		note.ISO = selected.ISOLabel
		return note
	}
	note.Aperture = exposure.ApertureLabel(r.Exposure.Aperture)
	note.Shutter = exposure.ShutterLabel(r.Exposure.DurationSeconds)
	note.ISO = exposure.ISOLabel(r.Exposure.ISO)
	return note
}

// Stats reports engine counters.
type Stats struct {
	Processed  uint64
	Dropped    uint64
	Published  uint64
	Overwrites uint64
}

// Options configures an Engine.
type Options struct {
	Config   model.Config
	Settings SettingsStore
	Restore  model.PersistedSettings
}

// Engine ties the sampler, calculator, calibration and solver together.
//
// Offer may be called from the capture goroutine; setters may be called from
// any goroutine. Every shared field is read independently with latest-write-wins.
type Engine struct {
	apertures       []float64
	shutters        []exposure.Shutter
	defaultAperture float64
	settings        SettingsStore

	calibration *exposure.CalibrationState

	params   atomic.Pointer[model.CaptureParams]
	override atomic.Pointer[float64]
	mode     atomic.Int32
	spot     atomic.Pointer[model.Point]
	filmISO  atomic.Uint64

	busy      atomic.Bool
	seq       atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	latest    atomic.Pointer[Reading]

	slot *readingSlot
}

// New builds an Engine. Restored values that fail validation are reported
// in the returned error alongside a usable engine.
func New(opts Options) (*Engine, error) {
	cfg := opts.Config
	shutterLabels := cfg.Shutters
	if len(shutterLabels) == 0 {
		shutterLabels = exposure.StandardShutterLabels
	}
	shutters, err := exposure.ParseShutters(shutterLabels)
	if err != nil {
		return nil, fmt.Errorf("failed to parse shutter table: %w", err)
	}
	apertures := cfg.Apertures
	if len(apertures) == 0 {
		apertures = exposure.StandardApertures
	}
	defaultAperture := cfg.DefaultAperture
	if !validAperture(defaultAperture) {
		defaultAperture = exposure.DefaultAperture
	}

	e := &Engine{
		apertures:       append([]float64(nil), apertures...),
		shutters:        shutters,
		defaultAperture: defaultAperture,
		settings:        opts.Settings,
		slot:            newReadingSlot(),
	}
	e.calibration = exposure.NewCalibrationState(e.persistCalibration)
	params := DefaultCaptureParams
	e.params.Store(&params)
	spot := model.Center
	e.spot.Store(&spot)
	e.mode.Store(int32(cfg.Mode))
	filmISO := cfg.FilmISO
	if !(filmISO > 0) {
		filmISO = 100
	}
	e.filmISO.Store(math.Float64bits(filmISO))

	var errs []error
	if err := e.calibration.Restore(opts.Restore.CalibrationConstant); err != nil {
		errs = append(errs, err)
	}
	if a := opts.Restore.ApertureOverride; a != nil {
		if validAperture(*a) {
			v := *a
			e.override.Store(&v)
		} else {
			errs = append(errs, fmt.Errorf("failed to restore aperture override %v: %w", *a, ErrInvalidAperture))
		}
	}
	return e, errors.Join(errs...)
}

// SetCaptureParams records the exposure reported with the latest frame.
func (e *Engine) SetCaptureParams(p model.CaptureParams) {
	e.params.Store(&p)
}

// CaptureParams returns the last reported capture parameters.
func (e *Engine) CaptureParams() model.CaptureParams {
	return *e.params.Load()
}

// SetMode selects the metering mode.
func (e *Engine) SetMode(m model.MeteringMode) {
	e.mode.Store(int32(m))
}

// Mode returns the current metering mode.
func (e *Engine) Mode() model.MeteringMode {
	return model.MeteringMode(e.mode.Load())
}

// SetSpotPoint moves the spot. Coordinates are clamped to [0,1].
func (e *Engine) SetSpotPoint(p model.Point) {
	p.X = clampUnit(p.X)
	p.Y = clampUnit(p.Y)
	e.spot.Store(&p)
}

// SpotPoint returns the current spot point.
func (e *Engine) SpotPoint() model.Point {
	return *e.spot.Load()
}

// SetFilmISO sets the ISO the solver targets. Non-positive values are ignored.
func (e *Engine) SetFilmISO(iso float64) {
	if !(iso > 0) || math.IsInf(iso, 1) {
		return
	}
	e.filmISO.Store(math.Float64bits(iso))
}

// FilmISO returns the solver ISO.
func (e *Engine) FilmISO() float64 {
	return math.Float64frombits(e.filmISO.Load())
}

// ApertureOverride returns the user override, if any.
func (e *Engine) ApertureOverride() (float64, bool) {
	p := e.override.Load()
	if p == nil {
		return 0, false
	}
	return *p, true
}

// SetApertureOverride sets or, with nil, clears the override and pushes it
// to the settings store.
func (e *Engine) SetApertureOverride(ctx context.Context, aperture *float64) error {
	if aperture != nil {
		if !validAperture(*aperture) {
			return ErrInvalidAperture
		}
		v := *aperture
		aperture = &v
	}
	e.override.Store(aperture)
	if e.settings == nil {
		return nil
	}
	if err := e.settings.SaveApertureOverride(ctx, aperture); err != nil {
		return fmt.Errorf("failed to persist aperture override: %w", err)
	}
	return nil
}

// EffectiveExposure resolves the aperture: override, then detected hint, then default.
func (e *Engine) EffectiveExposure() model.CameraExposure {
	p := e.CaptureParams()
	aperture := e.defaultAperture
	if validAperture(p.ApertureHint) {
		aperture = p.ApertureHint
	}
	if o, ok := e.ApertureOverride(); ok {
		aperture = o
	}
	return model.CameraExposure{DurationSeconds: p.DurationSeconds, ISO: p.ISO, Aperture: aperture}
}

// Calibration returns the current calibration snapshot.
func (e *Engine) Calibration() exposure.Calibration {
	return e.calibration.Snapshot()
}

// SetCalibration stores an explicit constant.
func (e *Engine) SetCalibration(k float64) error {
	return e.calibration.Set(k)
}

// Calibrate performs a grey-card calibration against the latest reading and
// the current mode, overwriting any previous constant.
func (e *Engine) Calibrate() (float64, error) {
	r, ok := e.Latest()
	if !ok {
		return 0, ErrNoReading
	}
	k := exposure.Calibrate(r.Sample, e.Mode(), r.BaseEV)
	if err := e.calibration.Set(k); err != nil {
		return k, err
	}
	return k, nil
}

// ClearCalibration removes the constant.
func (e *Engine) ClearCalibration() error {
	return e.calibration.Clear()
}

// Offer meters frame on the caller's goroutine and publishes the reading.
// If another frame is still being metered the frame is dropped and Offer
// returns false. The frame is not retained after Offer returns.
func (e *Engine) Offer(frame luma.Frame) bool {
	if !e.busy.CompareAndSwap(false, true) {
		e.dropped.Add(1)
		return false
	}
	defer e.busy.Store(false)

	r := e.Measure(frame)
	r.Seq = e.seq.Add(1)
	e.processed.Add(1)
	e.latest.Store(&r)
	e.slot.publish(&r)
	return true
}

// Measure computes a reading for frame with the current state without publishing it.
func (e *Engine) Measure(frame luma.Frame) Reading {
	spot := e.SpotPoint()
	mode := e.Mode()
	exp := e.EffectiveExposure()
	cal := e.calibration.Snapshot()
	iso := e.FilmISO()

	sample := luma.Sample(frame, spot)
	base := exposure.BaseEV100(exp)
	scene := exposure.SceneEV100(base, sample, mode, cal)

	return Reading{
		At:          time.Now(),
		Sample:      sample,
		Exposure:    exp,
		Mode:        mode,
		SpotPoint:   spot,
		BaseEV:      base,
		SceneEV:     scene,
		Calibration: cal,
		FilmISO:     iso,
		Suggestions: exposure.EquivalentExposures(scene, iso, e.apertures, e.shutters),
	}
}

// Suggest runs the solver with the engine's option tables.
func (e *Engine) Suggest(targetEV, iso float64) []model.ExposureSuggestion {
	return exposure.EquivalentExposures(targetEV, iso, e.apertures, e.shutters)
}

// Latest returns the most recent reading without consuming it.
func (e *Engine) Latest() (Reading, bool) {
	r := e.latest.Load()
	if r == nil {
		return Reading{}, false
	}
	return *r, true
}

// Next blocks until a reading newer than the last one returned is available.
func (e *Engine) Next(ctx context.Context) (Reading, error) {
	return e.slot.next(ctx)
}

// Close wakes any waiting consumer. Later readings are discarded.
func (e *Engine) Close() {
	e.slot.close()
}

// Stats returns engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Processed:  e.processed.Load(),
		Dropped:    e.dropped.Load(),
		Published:  e.seq.Load(),
		Overwrites: e.slot.overwriteCount(),
	}
}

func (e *Engine) persistCalibration(k *float64) error {
	if e.settings == nil {
		return nil
	}
	return e.settings.SaveCalibration(context.Background(), k)
}

func validAperture(n float64) bool {
	return n > 0 && !math.IsInf(n, 1)
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	return math.Min(1, math.Max(0, v))
}
