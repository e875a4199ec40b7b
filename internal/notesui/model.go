// Package notesui provides the Bubble Tea exposure notes browser.
package notesui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/evmeter/internal/model"
	"github.com/verte-zerg/evmeter/internal/report"
	"github.com/verte-zerg/evmeter/internal/store"
)

const (
	tabNotes = iota
	tabTrend
)

const trendWindow = 5

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
)

// Model implements the Bubble Tea notes UI.
type Model struct {
	ctx    context.Context
	store  *store.Store
	filter model.NoteFilter

	notes  []model.ExposureNote
	errMsg string
	info   string

	tabs      []string
	activeTab int
	table     table.Model
	trend     viewport.Model

	width  int
	height int

	filterMode   bool
	filterInputs []textinput.Model
	filterIndex  int
	filterError  string

	confirmDelete bool
}

// NewModel constructs a notes UI model.
func NewModel(ctx context.Context, st *store.Store, filter model.NoteFilter) *Model {
	m := &Model{
		ctx:    ctx,
		store:  st,
		filter: filter,
		tabs:   []string{"Notes", "Trend"},
		trend:  viewport.New(80, 12),
	}
	m.initInputs()
	m.table = buildNotesTable(nil, 80, 10)
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.filterMode {
			return m.updateFilter(msg)
		}
		if m.confirmDelete {
			return m.updateConfirm(msg)
		}
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "left", "h":
			m.moveTab(-1)
			return m, nil
		case "right", "l", "tab":
			m.moveTab(1)
			return m, nil
		case "/":
			return m.startFilter()
		case "d":
			if m.activeTab == tabNotes && len(m.notes) > 0 {
				m.confirmDelete = true
			}
			return m, nil
		case "r":
			m.refresh()
			return m, nil
		}
		if m.activeTab == tabNotes {
			var cmd tea.Cmd
			m.table, cmd = m.table.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.trend, cmd = m.trend.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	header := m.renderTabs() + "\n" + headerStyle.Render(m.filterSummary())
	body := m.renderBody()
	footer := m.renderFooter()
	out := strings.Join([]string{header, body, footer}, "\n")
	if m.height > 0 {
		return fitLines(out, width, m.height)
	}
	return out
}

func (m *Model) renderBody() string {
	if m.filterMode {
		return m.renderFilterForm()
	}
	if m.errMsg != "" && len(m.notes) == 0 {
		return "Failed to load notes."
	}
	if len(m.notes) == 0 {
		return "No notes found."
	}
	if m.activeTab == tabNotes {
		return m.table.View()
	}
	return m.trend.View()
}

func (m *Model) renderFooter() string {
	help := "Nav: left/right  Scroll: up/down  Delete: d  Filter: /  Reload: r  Quit: q"
	if m.filterMode {
		help = "tab/shift+tab: next field  enter: apply  esc: cancel"
	}
	lines := []string{headerStyle.Render(help)}
	switch {
	case m.confirmDelete:
		if n, ok := m.selectedNote(); ok {
			lines = append(lines, errorStyle.Render(fmt.Sprintf("Delete note #%d? (y/n)", n.ID)))
		}
	case m.errMsg != "":
		lines = append(lines, errorStyle.Render(m.errMsg))
	case m.info != "":
		lines = append(lines, headerStyle.Render(m.info))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) filterSummary() string {
	since := "any"
	if m.filter.Since != nil {
		since = m.filter.Since.Format("2006-01-02")
	}
	last := "all"
	if m.filter.Last > 0 {
		last = strconv.Itoa(m.filter.Last)
	}
	return fmt.Sprintf("Filter: since=%s  last=%s  notes=%d", since, last, len(m.notes))
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	next := (m.activeTab + delta + count) % count
	m.activeTab = next
	if m.activeTab == tabNotes {
		m.table.Focus()
	} else {
		m.table.Blur()
	}
}

func (m *Model) refresh() {
	notes, err := m.store.ListNotes(m.ctx, m.filter)
	if err != nil {
		m.errMsg = fmt.Sprintf("failed to load notes: %v", err)
		return
	}
	m.errMsg = ""
	m.notes = notes
	m.table.SetRows(tableRows(notes))
	if len(notes) > 0 && m.table.Cursor() >= len(notes) {
		m.table.SetCursor(len(notes) - 1)
	}
	m.trend.SetContent(renderTrend(notes, m.contentWidth()))
}

func (m *Model) updateLayout() {
	bodyHeight := maxInt(3, m.height-lipgloss.Height(m.renderTabs())-4)
	m.table.SetWidth(m.contentWidth())
	m.table.SetHeight(bodyHeight - 1)
	m.trend.Width = m.contentWidth()
	m.trend.Height = bodyHeight
	for i := range m.filterInputs {
		m.filterInputs[i].Width = maxInt(10, m.contentWidth()-lipgloss.Width(m.filterInputs[i].Prompt)-2)
	}
	m.trend.SetContent(renderTrend(m.notes, m.contentWidth()))
}

func (m *Model) contentWidth() int {
	if m.width <= 0 {
		return 80
	}
	return m.width
}

func (m *Model) selectedNote() (model.ExposureNote, bool) {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.notes) {
		return model.ExposureNote{}, false
	}
	return m.notes[idx], true
}

func (m *Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.confirmDelete = false
	if msg.String() != "y" {
		return m, nil
	}
	note, ok := m.selectedNote()
	if !ok {
		return m, nil
	}
	if err := m.store.DeleteNote(m.ctx, note.ID); err != nil {
		m.errMsg = fmt.Sprintf("failed to delete note: %v", err)
		return m, nil
	}
	m.refresh()
	m.info = fmt.Sprintf("deleted note #%d", note.ID)
	return m, nil
}

func (m *Model) initInputs() {
	m.filterInputs = []textinput.Model{
		newFilterInput("Since (YYYY-MM-DD): "),
		newFilterInput("Last: "),
	}
	m.setInputsFromFilter()
}

func newFilterInput(prompt string) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.CharLimit = 0
	input.Cursor.SetMode(cursor.CursorBlink)
	return input
}

func (m *Model) setInputsFromFilter() {
	if m.filter.Since != nil {
		m.filterInputs[0].SetValue(m.filter.Since.Format("2006-01-02"))
	} else {
		m.filterInputs[0].SetValue("")
	}
	if m.filter.Last > 0 {
		m.filterInputs[1].SetValue(strconv.Itoa(m.filter.Last))
	} else {
		m.filterInputs[1].SetValue("")
	}
}

func (m *Model) startFilter() (tea.Model, tea.Cmd) {
	m.filterMode = true
	m.filterError = ""
	m.setInputsFromFilter()
	return m, m.setFilterIndex(0)
}

func (m *Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filterMode = false
		m.filterError = ""
		return m, nil
	case tea.KeyEnter:
		filter, err := parseFilter(m.filterInputs[0].Value(), m.filterInputs[1].Value())
		if err != nil {
			m.filterError = err.Error()
			return m, nil
		}
		m.filter = filter
		m.filterMode = false
		m.filterError = ""
		m.refresh()
		return m, nil
	case tea.KeyTab:
		return m, m.setFilterIndex(m.filterIndex + 1)
	case tea.KeyShiftTab:
		return m, m.setFilterIndex(m.filterIndex - 1)
	}
	var cmd tea.Cmd
	m.filterInputs[m.filterIndex], cmd = m.filterInputs[m.filterIndex].Update(msg)
	return m, cmd
}

func (m *Model) setFilterIndex(idx int) tea.Cmd {
	count := len(m.filterInputs)
	m.filterIndex = (idx + count) % count
	var cmd tea.Cmd
	for i := range m.filterInputs {
		if i == m.filterIndex {
			cmd = m.filterInputs[i].Focus()
		} else {
			m.filterInputs[i].Blur()
		}
	}
	return cmd
}

func (m *Model) renderFilterForm() string {
	lines := []string{"Filter (enter to apply, esc to cancel)"}
	for _, input := range m.filterInputs {
		lines = append(lines, input.View())
	}
	if m.filterError != "" {
		lines = append(lines, errorStyle.Render(m.filterError))
	}
	return strings.Join(lines, "\n")
}

// parseFilter validates the filter form.
func parseFilter(sinceInput, lastInput string) (model.NoteFilter, error) {
	var filter model.NoteFilter
	if s := strings.TrimSpace(sinceInput); s != "" {
		parsed, err := time.ParseInLocation("2006-01-02", s, time.Local)
		if err != nil {
			return filter, fmt.Errorf("invalid since date (expected YYYY-MM-DD)")
		}
		filter.Since = &parsed
	}
	if s := strings.TrimSpace(lastInput); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("invalid last value (use 0 or positive integer)")
		}
		filter.Last = n
	}
	return filter, nil
}

func buildNotesTable(notes []model.ExposureNote, width, height int) table.Model {
	widths := []int{4, 16, 8, 7, 8, 6, 7, 18, 20}
	columns := make([]table.Column, len(report.NoteHeaders))
	for i, title := range report.NoteHeaders {
		columns[i] = table.Column{Title: title, Width: widths[i]}
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(tableRows(notes)),
		table.WithHeight(maxInt(1, height-1)),
		table.WithFocused(true),
	)
	t.SetWidth(width)
	t.SetStyles(notesTableStyles())
	return t
}

func tableRows(notes []model.ExposureNote) []table.Row {
	raw := report.NoteRows(notes)
	rows := make([]table.Row, len(raw))
	for i, r := range raw {
		rows[i] = table.Row(r)
	}
	return rows
}

func notesTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

func renderTrend(notes []model.ExposureNote, width int) string {
	if len(notes) == 0 {
		return "No notes found."
	}
	evs := make([]float64, len(notes))
	var sum float64
	for i, n := range notes {
		evs[i] = n.EV
		sum += n.EV
	}
	lo, hi := report.MinMax(evs)
	cards := []string{
		metricCard("Notes", strconv.Itoa(len(notes))),
		metricCard("Avg EV100", report.FormatEV(sum/float64(len(evs)))),
		metricCard("Min", report.FormatEV(lo)),
		metricCard("Max", report.FormatEV(hi)),
	}
	summary := lipgloss.JoinHorizontal(lipgloss.Top, cards...)
	if width < 60 {
		summary = lipgloss.JoinVertical(lipgloss.Left, cards...)
	}
	sparkWidth := maxInt(10, width-4)
	lines := []string{
		summary,
		"",
		cardTitleStyle.Render("EV100 per note"),
		"[" + report.Sparkline(report.Resample(evs, sparkWidth)) + "]",
		cardTitleStyle.Render(fmt.Sprintf("Moving average (%d)", trendWindow)),
		"[" + report.Sparkline(report.Resample(report.MovingAverage(evs, trendWindow), sparkWidth)) + "]",
	}
	return strings.Join(lines, "\n")
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), cardValueStyle.Render(value))
	return cardStyle.Render(content)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
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
