// Package tui provides the Bubble Tea live meter interface.
package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/evmeter/internal/exposure"
	"github.com/verte-zerg/evmeter/internal/meter"
	"github.com/verte-zerg/evmeter/internal/model"
	"github.com/verte-zerg/evmeter/internal/report"
	"github.com/verte-zerg/evmeter/internal/store"
)

// spotStep is how far one arrow key press moves the spot point.
const spotStep = 0.05

const gaugeWidth = 30

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	evStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cellStyle   = lipgloss.NewStyle().
			Width(7).
			Align(lipgloss.Center).
			Foreground(lipgloss.Color("#000000"))
	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A")).
			Padding(0, 1)
)

type readingMsg struct {
	reading meter.Reading
}

type readingErrMsg struct {
	err error
}

// CaptureErrMsg reports that the frame source stopped. Send it with
// tea.Program.Send; the UI keeps showing the last reading.
type CaptureErrMsg struct {
	Err error
}

// Model implements the Bubble Tea live meter UI.
type Model struct {
	ctx    context.Context
	engine *meter.Engine
	store  *store.Store
	now    func() time.Time

	reading    meter.Reading
	hasReading bool

	showHeatmap bool
	presetIndex int

	suggestions table.Model

	apertureMode  bool
	apertureInput textinput.Model

	status    string
	statusErr bool

	width  int
	height int
}

// NewModel constructs a live meter model. st may be nil, in which case
// notes cannot be recorded.
func NewModel(ctx context.Context, engine *meter.Engine, st *store.Store) *Model {
	m := &Model{
		ctx:         ctx,
		engine:      engine,
		store:       st,
		now:         time.Now,
		showHeatmap: true,
		presetIndex: -1,
	}
	m.initSuggestionTable()
	m.initApertureInput()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.waitForReading()
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.suggestions.SetWidth(tableWidth(m.width))
		return m, nil
	case readingMsg:
		m.applyReading(msg.reading)
		return m, m.waitForReading()
	case readingErrMsg:
		if errors.Is(msg.err, meter.ErrClosed) || errors.Is(msg.err, context.Canceled) {
			return m, nil
		}
		m.setError(msg.err)
		return m, nil
	case CaptureErrMsg:
		if msg.Err != nil {
			m.setError(fmt.Errorf("capture stopped: %w", msg.Err))
		} else {
			m.setStatus("capture finished")
		}
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.apertureMode {
			return m.updateApertureInput(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "m":
		mode := m.engine.Mode().Next()
		m.engine.SetMode(mode)
		m.setStatus("metering: " + mode.Title())
	case "up":
		m.moveSpot(0, -spotStep)
	case "down":
		m.moveSpot(0, spotStep)
	case "left":
		m.moveSpot(-spotStep, 0)
	case "right":
		m.moveSpot(spotStep, 0)
	case "c":
		m.calibrate()
	case "x":
		if err := m.engine.ClearCalibration(); err != nil {
			m.setError(err)
		} else {
			m.setStatus("calibration cleared")
		}
	case "[":
		m.setFilmISO(exposure.StepISO(m.engine.FilmISO(), -1), -1)
	case "]":
		m.setFilmISO(exposure.StepISO(m.engine.FilmISO(), 1), -1)
	case "p":
		m.cyclePreset()
	case "a":
		return m.startApertureInput()
	case "n":
		m.recordNote()
	case "h":
		m.showHeatmap = !m.showHeatmap
	case "j":
		m.suggestions.MoveDown(1)
	case "k":
		m.suggestions.MoveUp(1)
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.apertureMode {
		return m.renderApertureModal()
	}
	sections := []string{m.renderHeader(), m.renderReadout()}
	if m.showHeatmap {
		sections = append(sections, m.renderHeatmap())
	}
	sections = append(sections, m.renderSuggestions(), m.renderStatus(), m.renderHelp())
	out := strings.Join(sections, "\n\n")
	if m.width > 0 && m.height > 0 {
		return fitLines(out, m.width, m.height)
	}
	return out
}

func (m *Model) waitForReading() tea.Cmd {
	ctx := m.ctx
	engine := m.engine
	return func() tea.Msg {
		r, err := engine.Next(ctx)
		if err != nil {
			return readingErrMsg{err: err}
		}
		return readingMsg{reading: r}
	}
}

func (m *Model) applyReading(r meter.Reading) {
	m.reading = r
	m.hasReading = true
	selected := m.suggestions.Cursor()
	m.suggestions.SetRows(suggestionRows(r.Suggestions))
	if n := len(r.Suggestions); n > 0 && selected >= n {
		m.suggestions.SetCursor(n - 1)
	}
}

func (m *Model) moveSpot(dx, dy float64) {
	p := m.engine.SpotPoint()
	m.engine.SetSpotPoint(model.Point{X: p.X + dx, Y: p.Y + dy})
	p = m.engine.SpotPoint()
	m.setStatus(fmt.Sprintf("spot: %.0f%%, %.0f%%", p.X*100, p.Y*100))
}

func (m *Model) calibrate() {
	k, err := m.engine.Calibrate()
	if err != nil {
		m.setError(fmt.Errorf("failed to calibrate: %w", err))
		return
	}
	m.setStatus(fmt.Sprintf("calibrated (%s), K=%.4g", m.engine.Mode().Title(), k))
}

func (m *Model) setFilmISO(iso float64, preset int) {
	m.engine.SetFilmISO(iso)
	m.presetIndex = preset
	m.setStatus("film: " + m.filmLabel())
}

func (m *Model) cyclePreset() {
	next := (m.presetIndex + 1) % len(exposure.FilmPresets)
	m.setFilmISO(exposure.FilmPresets[next].ISO, next)
}

func (m *Model) filmLabel() string {
	iso := m.engine.FilmISO()
	label := exposure.ISOLabel(iso)
	if m.presetIndex >= 0 && m.presetIndex < len(exposure.FilmPresets) {
		return fmt.Sprintf("%s (%s)", label, exposure.FilmPresets[m.presetIndex].Name)
	}
	return label
}

func (m *Model) selectedSuggestion() (model.ExposureSuggestion, bool) {
	if !m.hasReading || len(m.reading.Suggestions) == 0 {
		return model.ExposureSuggestion{}, false
	}
	idx := m.suggestions.Cursor()
	if idx < 0 || idx >= len(m.reading.Suggestions) {
		idx = 0
	}
	return m.reading.Suggestions[idx], true
}

func (m *Model) recordNote() {
	if m.store == nil {
		m.setError(fmt.Errorf("notes are unavailable without a database"))
		return
	}
	if !m.hasReading {
		m.setError(fmt.Errorf("failed to record note: %w", meter.ErrNoReading))
		return
	}
	note := m.reading.Note(m.selectedSuggestionPtr(), m.now())
	id, err := m.store.InsertNote(m.ctx, note)
	if err != nil {
		m.setError(fmt.Errorf("failed to save note: %w", err))
		return
	}
	m.setStatus(fmt.Sprintf("saved note #%d: %s %s %s EV %s", id, note.Aperture, note.Shutter, note.ISO, report.FormatEV(note.EV)))
}

func (m *Model) selectedSuggestionPtr() *model.ExposureSuggestion {
	s, ok := m.selectedSuggestion()
	if !ok {
		return nil
	}
	return &s
}

func (m *Model) startApertureInput() (tea.Model, tea.Cmd) {
	m.apertureMode = true
	if a, ok := m.engine.ApertureOverride(); ok {
		m.apertureInput.SetValue(strconv.FormatFloat(a, 'f', -1, 64))
	} else {
		m.apertureInput.SetValue("")
	}
	return m, m.apertureInput.Focus()
}

func (m *Model) updateApertureInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.apertureMode = false
		m.apertureInput.Blur()
		return m, nil
	case tea.KeyEnter:
		m.apertureMode = false
		m.apertureInput.Blur()
		m.applyAperture(m.apertureInput.Value())
		return m, nil
	}
	var cmd tea.Cmd
	m.apertureInput, cmd = m.apertureInput.Update(msg)
	return m, cmd
}

func (m *Model) applyAperture(input string) {
	aperture, err := ParseAperture(input)
	if err != nil {
		m.setError(err)
		return
	}
	if err := m.engine.SetApertureOverride(m.ctx, aperture); err != nil {
		m.setError(err)
		return
	}
	if aperture == nil {
		m.setStatus("aperture override cleared")
		return
	}
	m.setStatus("aperture override: " + exposure.ApertureLabel(*aperture))
}

// ParseAperture parses "2.8", "f/2.8", "f2.8" or "ƒ2.8". Empty input means
// no override.
func ParseAperture(input string) (*float64, error) {
	s := strings.TrimSpace(input)
	for _, prefix := range []string{"ƒ", "f/", "F/", "f", "F"} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
			break
		}
	}
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid aperture %q", input)
	}
	if !(v > 0) || math.IsInf(v, 1) {
		return nil, meter.ErrInvalidAperture
	}
	return &v, nil
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *Model) setError(err error) {
	m.status = err.Error()
	m.statusErr = true
}

func (m *Model) initSuggestionTable() {
	columns := make([]table.Column, len(report.SuggestionHeaders))
	widths := []int{9, 8, 9, 7, 5}
	for i, title := range report.SuggestionHeaders {
		columns[i] = table.Column{Title: title, Width: widths[i]}
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(8),
		table.WithFocused(true),
	)
	t.SetStyles(suggestionTableStyles())
	t.SetWidth(tableWidth(0))
	m.suggestions = t
}

func suggestionRows(suggestions []model.ExposureSuggestion) []table.Row {
	raw := report.SuggestionRows(suggestions)
	rows := make([]table.Row, len(raw))
	for i, r := range raw {
		rows[i] = table.Row(r)
	}
	return rows
}

func suggestionTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		PaddingLeft(0)
	styles.Cell = styles.Cell.PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

func (m *Model) initApertureInput() {
	input := textinput.New()
	input.Prompt = "Aperture ƒ"
	input.Placeholder = "empty clears"
	input.CharLimit = 8
	input.Cursor.SetMode(cursor.CursorBlink)
	m.apertureInput = input
}

func tableWidth(width int) int {
	return maxInt(48, minInt(width, 60))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
