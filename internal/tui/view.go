package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/evmeter/internal/exposure"
	"github.com/verte-zerg/evmeter/internal/model"
	"github.com/verte-zerg/evmeter/internal/report"
)

var helpSegments = []string{
	"m mode",
	"←↑↓→ spot",
	"c calibrate",
	"x clear cal",
	"[ ] ISO",
	"p film",
	"a aperture",
	"j/k pick",
	"n note",
	"h heatmap",
	"q quit",
}

func (m *Model) renderHeader() string {
	mode := m.engine.Mode()
	title := titleStyle.Render("EV Meter")
	info := mutedStyle.Render(fmt.Sprintf("%s · film %s", mode.Title(), m.filmLabel()))
	if mode == model.Spot {
		p := m.engine.SpotPoint()
		info += mutedStyle.Render(fmt.Sprintf(" · spot %.0f%%,%.0f%%", p.X*100, p.Y*100))
	}
	return title + "  " + info
}

func (m *Model) renderReadout() string {
	if !m.hasReading {
		return mutedStyle.Render("Waiting for the first frame...")
	}
	r := m.reading
	cal := "relative"
	if k, ok := r.Calibration.Get(); ok {
		cal = fmt.Sprintf("calibrated K=%.4g", k)
	}
	lines := []string{
		fmt.Sprintf("Scene EV100 %s  %s", evStyle.Render(report.FormatEV(r.SceneEV)), mutedStyle.Render("["+cal+"]")),
		report.GaugeBar(r.SceneEV, gaugeWidth),
		mutedStyle.Render(fmt.Sprintf("Camera %s %s %s (EV100 %s)",
			exposure.ApertureLabel(r.Exposure.Aperture),
			exposure.ShutterLabel(r.Exposure.DurationSeconds),
			exposure.ISOLabel(r.Exposure.ISO),
			report.FormatEV(r.BaseEV))),
	}
	if s, ok := m.selectedSuggestion(); ok {
		ev := exposure.SettingsEV100(s.Aperture, s.ShutterSeconds, r.FilmISO)
		tier := report.TierForDelta(s.DeltaEV)
		delta := lipgloss.NewStyle().Foreground(report.TierColor(tier)).Render(report.FormatDelta(s.DeltaEV))
		lines = append(lines, fmt.Sprintf("Selected %s %s %s → EV100 %s %s",
			exposure.ApertureLabel(s.Aperture), s.ShutterLabel, s.ISOLabel, report.FormatEV(ev), delta))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderHeatmap() string {
	if !m.hasReading {
		return ""
	}
	grid := m.reading.Sample.Grid
	spotRow, spotCol := -1, -1
	if m.reading.Mode == model.Spot {
		spotRow, spotCol = zoneFor(m.reading.SpotPoint)
	}
	rows := make([]string, 0, len(grid))
	for r, row := range grid {
		cells := make([]string, len(row))
		for c, v := range row {
			label := fmt.Sprintf("%.0f%%", v*100)
			if r == spotRow && c == spotCol {
				label = "◎" + label
			}
			cells[c] = cellStyle.Background(report.HeatColor(v)).Render(label)
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m *Model) renderSuggestions() string {
	if !m.hasReading {
		return ""
	}
	if len(m.reading.Suggestions) == 0 {
		return mutedStyle.Render("No equivalent exposure within one stop.")
	}
	return m.suggestions.View()
}

func (m *Model) renderStatus() string {
	if m.status == "" {
		return ""
	}
	if m.statusErr {
		return errorStyle.Render(m.status)
	}
	return statusStyle.Render(m.status)
}

func (m *Model) renderHelp() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	lines := wrapSegments(helpSegments, "  ", width)
	for i, line := range lines {
		lines[i] = footerStyle.Render(line)
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderApertureModal() string {
	body := []string{
		evStyle.Render("Aperture override"),
		m.apertureInput.View(),
		mutedStyle.Render("Enter to apply / Esc to cancel / empty clears"),
	}
	box := modalStyle.Render(strings.Join(body, "\n"))
	if m.width <= 0 || m.height <= 0 {
		return box
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

// zoneFor returns the grid cell containing p.
func zoneFor(p model.Point) (row, col int) {
	row = minInt(model.GridSize-1, maxInt(0, int(p.Y*model.GridSize)))
	col = minInt(model.GridSize-1, maxInt(0, int(p.X*model.GridSize)))
	return row, col
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}
