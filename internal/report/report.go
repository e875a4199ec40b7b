// Package report renders meter readings, suggestions and notes as text.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/evmeter/internal/exposure"
	"github.com/verte-zerg/evmeter/internal/meter"
	"github.com/verte-zerg/evmeter/internal/model"
)

// ErrNoNotes is returned when exporting an empty note list.
var ErrNoNotes = errors.New("no notes to export")

// CSVHeader is the first row of a notes export.
var CSVHeader = []string{"Date", "Aperture", "Shutter", "ISO", "EV100", "Latitude", "Longitude"}

// RenderReading prints a full readout: exposure, scene EV, zone heatmap and
// equivalent exposures.
func RenderReading(w io.Writer, r meter.Reading, useColor bool) error {
	exp := r.Exposure
	cal := "relative"
	if k, ok := r.Calibration.Get(); ok {
		cal = fmt.Sprintf("calibrated, K=%.4g", k)
	}
	film := exposure.ISOLabel(r.FilmISO)
	if p, ok := exposure.PresetForISO(r.FilmISO); ok {
		film = fmt.Sprintf("%s (%s)", film, p.Name)
	}
	lines := []string{
		fmt.Sprintf("Mode: %s", r.Mode.Title()),
		fmt.Sprintf("Camera: %s  %s  %s  (EV100 %s)",
			exposure.ApertureLabel(exp.Aperture),
			exposure.ShutterLabel(exp.DurationSeconds),
			exposure.ISOLabel(exp.ISO),
			FormatEV(r.BaseEV)),
		fmt.Sprintf("Scene EV100: %s (%s)  %s", FormatEV(r.SceneEV), cal, GaugeBar(r.SceneEV, 15)),
		fmt.Sprintf("Film: %s", film),
		fmt.Sprintf("Luma: avg %s  matrix %s  center %s  spot %s",
			percent(r.Sample.Average),
			percent(r.Sample.MatrixMedian),
			percent(r.Sample.CenterWeighted),
			percent(r.Sample.Spot)),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	if err := RenderHeatmap(w, r.Sample.Grid, useColor); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, ""); err != nil {
		return err
	}
	return RenderSuggestions(w, r.Suggestions)
}

// RenderHeatmap prints the zone grid as percentages, coloured by heat when
// useColor is set.
func RenderHeatmap(w io.Writer, grid [model.GridSize][model.GridSize]float64, useColor bool) error {
	for _, row := range grid {
		cells := make([]string, len(row))
		for i, v := range row {
			cell := fmt.Sprintf("%4s", percent(v))
			if useColor {
				cell = lipgloss.NewStyle().
					Background(HeatColor(v)).
					Foreground(lipgloss.Color("#000000")).
					Render(" " + cell + " ")
			}
			cells[i] = cell
		}
		sep := " "
		if useColor {
			sep = ""
		}
		if _, err := fmt.Fprintln(w, strings.Join(cells, sep)); err != nil {
			return err
		}
	}
	return nil
}

// SuggestionRows formats suggestions as table rows: aperture, shutter, ISO, ΔEV, fit.
func SuggestionRows(suggestions []model.ExposureSuggestion) [][]string {
	rows := make([][]string, 0, len(suggestions))
	for _, s := range suggestions {
		rows = append(rows, []string{
			exposure.ApertureLabel(s.Aperture),
			s.ShutterLabel,
			s.ISOLabel,
			FormatDelta(s.DeltaEV),
			TierForDelta(s.DeltaEV).String(),
		})
	}
	return rows
}

// SuggestionHeaders are the column titles matching SuggestionRows.
var SuggestionHeaders = []string{"Aperture", "Shutter", "ISO", "ΔEV", "Fit"}

// RenderSuggestions prints the equivalent exposure table.
func RenderSuggestions(w io.Writer, suggestions []model.ExposureSuggestion) error {
	if len(suggestions) == 0 {
		_, err := fmt.Fprintln(w, "No equivalent exposure within one stop.")
		return err
	}
	lines := formatTable(SuggestionHeaders, SuggestionRows(suggestions), map[int]bool{3: true})
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderNotes prints notes as a table.
func RenderNotes(w io.Writer, notes []model.ExposureNote) error {
	if len(notes) == 0 {
		_, err := fmt.Fprintln(w, "No notes found.")
		return err
	}
	lines := formatTable(NoteHeaders, NoteRows(notes), map[int]bool{0: true, 5: true})
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// NoteHeaders are the column titles matching NoteRows.
var NoteHeaders = []string{"ID", "Date", "Aperture", "Shutter", "ISO", "EV100", "Mode", "Location", "Memo"}

// NoteRows formats notes as table rows.
func NoteRows(notes []model.ExposureNote) [][]string {
	rows := make([][]string, 0, len(notes))
	for _, n := range notes {
		mode := n.Mode
		if n.Calibrated {
			mode += "*"
		}
		rows = append(rows, []string{
			strconv.FormatInt(n.ID, 10),
			n.TakenAt.Local().Format("2006-01-02 15:04"),
			n.Aperture,
			n.Shutter,
			n.ISO,
			FormatEV(n.EV),
			mode,
			location(n),
			n.Memo,
		})
	}
	return rows
}

// WriteNotesCSV exports notes with a header row. Absent coordinates are
// written as empty cells.
func WriteNotesCSV(w io.Writer, notes []model.ExposureNote) error {
	if len(notes) == 0 {
		return ErrNoNotes
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, n := range notes {
		record := []string{
			n.TakenAt.UTC().Format(time.RFC3339),
			n.Aperture,
			n.Shutter,
			n.ISO,
			fmt.Sprintf("%.2f", n.EV),
			optionalFloat(n.Latitude),
			optionalFloat(n.Longitude),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// RenderScanSummary prints min/avg/max and a sparkline of per-frame scene EVs.
func RenderScanSummary(w io.Writer, evs []float64, width int) error {
	if len(evs) == 0 {
		_, err := fmt.Fprintln(w, "No frames metered.")
		return err
	}
	lo, hi := MinMax(evs)
	var sum float64
	for _, v := range evs {
		sum += v
	}
	if _, err := fmt.Fprintf(w, "Frames: %d\n", len(evs)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "EV100 min %s  avg %s  max %s  range %s\n",
		FormatEV(lo), FormatEV(sum/float64(len(evs))), FormatEV(hi), FormatEV(hi-lo)); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "[%s]\n", Sparkline(Resample(evs, width)))
	return err
}

// FormatEV formats an EV with two decimals.
func FormatEV(ev float64) string {
	return fmt.Sprintf("%.2f", ev)
}

// FormatDelta formats a ΔEV with an explicit sign.
func FormatDelta(delta float64) string {
	if math.Abs(delta) < 0.005 {
		return "±0.00"
	}
	return fmt.Sprintf("%+.2f", delta)
}

func percent(v float64) string {
	return fmt.Sprintf("%.0f%%", unit(v)*100)
}

func location(n model.ExposureNote) string {
	if n.Latitude == nil || n.Longitude == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f, %.4f", *n.Latitude, *n.Longitude)
}

func optionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
