package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/evmeter/internal/capture"
	"github.com/verte-zerg/evmeter/internal/model"
	"github.com/verte-zerg/evmeter/internal/notesui"
	"github.com/verte-zerg/evmeter/internal/report"
)

var (
	notesSince  string
	notesLast   int
	notesOutput string

	noteMemo      string
	noteLatitude  float64
	noteLongitude float64
)

func newNotesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Manage recorded exposure notes",
	}
	cmd.PersistentFlags().StringVar(&notesSince, "since", "", "start date (YYYY-MM-DD)")
	cmd.PersistentFlags().IntVar(&notesLast, "last", 0, "limit to the last N notes")

	addCmd := &cobra.Command{
		Use:   "add IMAGE",
		Short: "Meter a still and record it as a note",
		Args:  cobra.ExactArgs(1),
		RunE:  runNotesAddCmd,
	}
	addCmd.Flags().StringVar(&noteMemo, "memo", "", "free-text memo")
	addCmd.Flags().Float64Var(&noteLatitude, "lat", 0, "latitude in degrees (-90..90)")
	addCmd.Flags().Float64Var(&noteLongitude, "lon", 0, "longitude in degrees (-180..180)")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print notes as a table",
		Args:  cobra.NoArgs,
		RunE:  runNotesListCmd,
	})
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export notes as CSV",
		Args:  cobra.NoArgs,
		RunE:  runNotesExportCmd,
	}
	exportCmd.Flags().StringVarP(&notesOutput, "output", "o", "", "output file (default: stdout)")
	cmd.AddCommand(exportCmd)
	cmd.AddCommand(&cobra.Command{
		Use:   "delete ID",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(1),
		RunE:  runNotesDeleteCmd,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "browse",
		Short: "Browse notes interactively",
		Args:  cobra.NoArgs,
		RunE:  runNotesBrowseCmd,
	})
	return cmd
}

func notesFilter() (model.NoteFilter, error) {
	var filter model.NoteFilter
	if notesSince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", notesSince, time.Local)
		if err != nil {
			return filter, fmt.Errorf("invalid --since value: %w", err)
		}
		filter.Since = &parsed
	}
	if notesLast < 0 {
		return filter, fmt.Errorf("--last must be >= 0")
	}
	filter.Last = notesLast
	return filter, nil
}

// noteLocation returns the coordinates given on the command line, if any.
func noteLocation(cmd *cobra.Command) (*float64, *float64, error) {
	hasLat, hasLon := cmd.Flags().Changed("lat"), cmd.Flags().Changed("lon")
	if hasLat != hasLon {
		return nil, nil, fmt.Errorf("--lat and --lon must be given together")
	}
	if !hasLat {
		return nil, nil, nil
	}
	if noteLatitude < -90 || noteLatitude > 90 {
		return nil, nil, fmt.Errorf("--lat must be between -90 and 90")
	}
	if noteLongitude < -180 || noteLongitude > 180 {
		return nil, nil, fmt.Errorf("--lon must be between -180 and 180")
	}
	lat, lon := noteLatitude, noteLongitude
	return &lat, &lon, nil
}

func runNotesAddCmd(cmd *cobra.Command, args []string) error {
	lat, lon, err := noteLocation(cmd)
	if err != nil {
		return err
	}
	cfg, err := resolveSettings(cmd)
	if err != nil {
		return err
	}
	frame, err := capture.LoadStill(args[0], cfg.capture.MaxStillSize)
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	engine, err := newEngine(cmd.Context(), cfg, st)
	if err != nil {
		return err
	}
	note := engine.Measure(frame).Note(nil, time.Now())
	note.Memo = strings.TrimSpace(noteMemo)
	note.Latitude = lat
	note.Longitude = lon
	id, err := st.InsertNote(cmd.Context(), note)
	if err != nil {
		return fmt.Errorf("failed to save note: %w", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Saved note #%d: %s %s %s EV100 %s\n",
		id, note.Aperture, note.Shutter, note.ISO, report.FormatEV(note.EV))
	return err
}

func runNotesListCmd(cmd *cobra.Command, _ []string) error {
	filter, err := notesFilter()
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	notes, err := st.ListNotes(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to load notes: %w", err)
	}
	return report.RenderNotes(cmd.OutOrStdout(), notes)
}

func runNotesExportCmd(cmd *cobra.Command, _ []string) error {
	filter, err := notesFilter()
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	notes, err := st.ListNotes(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to load notes: %w", err)
	}
	if len(notes) == 0 {
		return report.ErrNoNotes
	}

	var w io.Writer = cmd.OutOrStdout()
	if notesOutput != "" {
		f, err := os.Create(notesOutput)
		if err != nil {
			return fmt.Errorf("failed to create export file: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil {
				logErrf("failed to close export file: %v\n", cerr)
			}
		}()
		w = f
	}
	if err := report.WriteNotesCSV(w, notes); err != nil {
		return fmt.Errorf("failed to export notes: %w", err)
	}
	if notesOutput != "" {
		logErrf("Exported %d notes to %s\n", len(notes), notesOutput)
	}
	return nil
}

func runNotesDeleteCmd(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid note id %q", args[0])
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	if err := st.DeleteNote(cmd.Context(), id); err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted note #%d\n", id)
	return err
}

func runNotesBrowseCmd(cmd *cobra.Command, _ []string) error {
	filter, err := notesFilter()
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	model := notesui.NewModel(cmd.Context(), st, filter)
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run notes TUI: %w", err)
	}
	return nil
}
