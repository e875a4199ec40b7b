package report

import (
	"fmt"
	"math"

	"github.com/charmbracelet/lipgloss"
)

// DeltaTier grades how close a suggestion lands to the target EV.
type DeltaTier int

// Delta tiers.
const (
	TierGood DeltaTier = iota
	TierFair
	TierPoor
)

func (t DeltaTier) String() string {
	switch t {
	case TierGood:
		return "good"
	case TierFair:
		return "fair"
	default:
		return "poor"
	}
}

// TierForDelta grades a ΔEV: under 0.15 is good, under 0.35 fair.
func TierForDelta(delta float64) DeltaTier {
	d := math.Abs(delta)
	switch {
	case d < 0.15:
		return TierGood
	case d < 0.35:
		return TierFair
	default:
		return TierPoor
	}
}

// TierColor is the foreground colour used for a tier.
func TierColor(t DeltaTier) lipgloss.Color {
	switch t {
	case TierGood:
		return lipgloss.Color("#52C41A")
	case TierFair:
		return lipgloss.Color("#C89A3A")
	default:
		return lipgloss.Color("#FF4D4F")
	}
}

// HeatHue maps a luma in [0,1] to a hue in [0,0.6]: dark is blue, bright is red.
func HeatHue(v float64) float64 {
	return (1 - unit(v)) * 0.6
}

// HeatColor returns the heatmap colour for a luma value.
func HeatColor(v float64) lipgloss.Color {
	r, g, b := hsvToRGB(HeatHue(v), 0.85, 0.9)
	return lipgloss.Color(fmt.Sprintf("#%02X%02X%02X", r, g, b))
}

// EVGauge maps a scene EV onto a [0,1] gauge spanning EV 0 to 15.
func EVGauge(ev float64) float64 {
	return unit(ev / 15)
}

// GaugeBar draws the gauge as a fixed-width bar.
func GaugeBar(ev float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(math.Round(EVGauge(ev) * float64(width)))
	bar := make([]rune, width)
	for i := range bar {
		if i < filled {
			bar[i] = '█'
		} else {
			bar[i] = '░'
		}
	}
	return string(bar)
}

func hsvToRGB(h, s, v float64) (uint8, uint8, uint8) {
	h = math.Mod(h, 1) * 6
	i := math.Floor(h)
	f := h - i
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))
	var r, g, b float64
	switch int(i) {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return to8(r), to8(g), to8(b)
}

func to8(v float64) uint8 {
	return uint8(math.Round(unit(v) * 255))
}

func unit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}
