// Package model defines shared data structures.
package model

import (
	"fmt"
	"strings"
	"time"
)

// GridSize is the number of rows and columns of the matrix metering grid.
const GridSize = 5

// MeteringMode selects which zone statistic feeds the EV calculation.
type MeteringMode int

// Metering modes.
const (
	Matrix MeteringMode = iota
	CenterWeighted
	Spot
)

// MeteringModes lists every mode in cycling order.
var MeteringModes = []MeteringMode{Matrix, CenterWeighted, Spot}

// String returns the config/CLI name of the mode.
func (m MeteringMode) String() string {
	switch m {
	case Matrix:
		return "matrix"
	case CenterWeighted:
		return "center"
	case Spot:
		return "spot"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Title returns a human readable label.
func (m MeteringMode) Title() string {
	switch m {
	case Matrix:
		return "Matrix"
	case CenterWeighted:
		return "Center-weighted"
	case Spot:
		return "Spot"
	default:
		return m.String()
	}
}

// Next returns the mode after m, wrapping around.
func (m MeteringMode) Next() MeteringMode {
	for i, mode := range MeteringModes {
		if mode == m {
			return MeteringModes[(i+1)%len(MeteringModes)]
		}
	}
	return Matrix
}

// ParseMeteringMode parses a mode name. Accepts a few common aliases.
func ParseMeteringMode(s string) (MeteringMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "matrix", "evaluative", "m":
		return Matrix, nil
	case "center", "center-weighted", "centre", "c":
		return CenterWeighted, nil
	case "spot", "s":
		return Spot, nil
	default:
		return Matrix, fmt.Errorf("unknown metering mode %q (want matrix, center or spot)", s)
	}
}

// Point is a normalized frame coordinate in [0,1]x[0,1].
type Point struct {
	X float64
	Y float64
}

// Center is the middle of the frame.
var Center = Point{X: 0.5, Y: 0.5}

// MeteringSample holds the zone statistics of one frame. All values lie in [0,1].
type MeteringSample struct {
	Average        float64
	MatrixMedian   float64
	Grid           [GridSize][GridSize]float64
	CenterWeighted float64
	Spot           float64
}

// CaptureParams is what the capture collaborator reports for each frame.
// ApertureHint is the detected f-number, or 0 when unknown.
type CaptureParams struct {
	DurationSeconds float64
	ISO             float64
	ApertureHint    float64
}

// CameraExposure is the effective exposure used for EV calculation.
type CameraExposure struct {
	DurationSeconds float64
	ISO             float64
	Aperture        float64
}

// ExposureSuggestion is one equivalent aperture/shutter/ISO combination.
type ExposureSuggestion struct {
	Aperture       float64
	ShutterSeconds float64
	ShutterLabel   string
	ISOLabel       string
	DeltaEV        float64
}

// ExposureNote is a recorded exposure.
type ExposureNote struct {
	ID         int64
	TakenAt    time.Time
	Aperture   string
	Shutter    string
	ISO        string
	EV         float64
	Mode       string
	Calibrated bool
	Latitude   *float64
	Longitude  *float64
	Memo       string
}

// NoteFilter restricts which notes are listed.
type NoteFilter struct {
	Since *time.Time
	Last  int
}

// PersistedSettings are the values restored from the settings store at startup.
type PersistedSettings struct {
	CalibrationConstant *float64
	ApertureOverride    *float64
}

// Config defines meter settings after merging flags and the config file.
type Config struct {
	Mode            MeteringMode
	FilmISO         float64
	DefaultAperture float64
	Apertures       []float64
	Shutters        []string
}

// CaptureConfig defines the frame source settings.
type CaptureConfig struct {
	Source       string
	Input        string
	Width        int
	Height       int
	FPS          int
	Shutter      string
	ISO          float64
	Aperture     float64
	MaxStillSize int
}
