package exposure

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Shutter is a labelled shutter speed.
type Shutter struct {
	Label   string
	Seconds float64
}

// FilmPreset names a film stock and its box speed.
type FilmPreset struct {
	Name string
	ISO  float64
}

// Standard option tables.
var (
	StandardApertures = []float64{1.4, 2, 2.8, 4, 5.6, 8, 11, 16, 22}

	StandardShutterLabels = []string{
		"1/8000", "1/4000", "1/2000", "1/1000", "1/500", "1/250", "1/125", "1/60", "1/30",
		"1/15", "1/8", "1/4", "1/2", "1", "2", "4", "8", "15", "30",
	}

	StandardISOs = []float64{25, 50, 100, 200, 400, 800, 1600, 3200}

	FilmPresets = []FilmPreset{
		{Name: "Kodak Portra 400", ISO: 400},
		{Name: "Kodak Gold 200", ISO: 200},
		{Name: "ILFORD HP5+", ISO: 400},
		{Name: "ILFORD Delta 100", ISO: 100},
		{Name: "Manual ISO", ISO: 100},
	}
)

// ParseShutter converts "1/125", "2", "0.5" or "15s" to seconds.
func ParseShutter(label string) (float64, error) {
	s := strings.TrimSuffix(strings.TrimSpace(strings.ToLower(label)), "s")
	if s == "" {
		return 0, fmt.Errorf("empty shutter value")
	}
	var secs float64
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid shutter %q: %w", label, err)
		}
		d, err := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid shutter %q: %w", label, err)
		}
		if d == 0 {
			return 0, fmt.Errorf("invalid shutter %q: zero denominator", label)
		}
		secs = n / d
	} else {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid shutter %q: %w", label, err)
		}
		secs = v
	}
	if !(secs > 0) || math.IsInf(secs, 0) {
		return 0, fmt.Errorf("invalid shutter %q: must be > 0", label)
	}
	return secs, nil
}

// ParseShutters parses a list of labels.
func ParseShutters(labels []string) ([]Shutter, error) {
	out := make([]Shutter, 0, len(labels))
	for _, label := range labels {
		secs, err := ParseShutter(label)
		if err != nil {
			return nil, err
		}
		out = append(out, Shutter{Label: strings.TrimSpace(label), Seconds: secs})
	}
	return out, nil
}

// StandardShutters returns the parsed standard shutter table.
func StandardShutters() []Shutter {
	out, err := ParseShutters(StandardShutterLabels)
	if err != nil {
		panic(err)
	}
	return out
}

// ShutterLabel formats seconds as "1/N" below one second and "Ns" otherwise.
func ShutterLabel(seconds float64) string {
	if !(seconds > 0) {
		return "-"
	}
	if seconds < 1 {
		return fmt.Sprintf("1/%d", int(math.Round(1/seconds)))
	}
	return strconv.FormatFloat(seconds, 'f', -1, 64) + "s"
}

// ApertureLabel formats an f-number.
func ApertureLabel(n float64) string {
	return "ƒ" + strconv.FormatFloat(n, 'f', -1, 64)
}

// ISOLabel formats an ISO speed.
func ISOLabel(iso float64) string {
	return "ISO " + strconv.FormatFloat(iso, 'f', -1, 64)
}

// PresetForISO returns the first preset with the given speed.
func PresetForISO(iso float64) (FilmPreset, bool) {
	for _, p := range FilmPresets {
		if p.ISO == iso {
			return p, true
		}
	}
	return FilmPreset{}, false
}

// PresetByName looks a preset up case-insensitively.
func PresetByName(name string) (FilmPreset, bool) {
	for _, p := range FilmPresets {
		if strings.EqualFold(p.Name, strings.TrimSpace(name)) {
			return p, true
		}
	}
	return FilmPreset{}, false
}

// StepISO moves iso by delta positions in StandardISOs, snapping to the nearest entry first.
func StepISO(iso float64, delta int) float64 {
	idx := 0
	best := math.Inf(1)
	for i, v := range StandardISOs {
		if d := math.Abs(math.Log2(v) - math.Log2(math.Max(iso, 1))); d < best {
			best = d
			idx = i
		}
	}
	idx += delta
	if idx < 0 {
		idx = 0
	}
	if idx >= len(StandardISOs) {
		idx = len(StandardISOs) - 1
	}
	return StandardISOs[idx]
}
