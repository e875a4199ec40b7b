// Package main provides the CLI entrypoint for evmeter.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/evmeter/internal/capture"
	"github.com/verte-zerg/evmeter/internal/config"
	"github.com/verte-zerg/evmeter/internal/exposure"
	"github.com/verte-zerg/evmeter/internal/luma"
	"github.com/verte-zerg/evmeter/internal/meter"
	"github.com/verte-zerg/evmeter/internal/model"
	"github.com/verte-zerg/evmeter/internal/report"
	"github.com/verte-zerg/evmeter/internal/store"
	"github.com/verte-zerg/evmeter/internal/tui"
)

const (
	defaultMode            = "matrix"
	defaultFilmISO         = 100.0
	defaultSource          = "synthetic"
	defaultCaptureShutter  = "1/120"
	defaultCaptureISO      = 100.0
	defaultCaptureAperture = 0.0
)

var (
	meterMode            string
	meterFilmISO         float64
	meterDefaultAperture float64
	meterApertures       []float64
	meterShutters        []string

	captureSource       string
	captureInput        string
	captureWidth        int
	captureHeight       int
	captureFPS          int
	captureShutter      string
	captureISO          float64
	captureAperture     float64
	captureMaxStillSize int

	readoutColor bool
	spotX        float64
	spotY        float64

	suggestEV  float64
	suggestISO float64

	calibrateClear bool
	apertureClear  bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "evmeter",
		Short:         "Photometric exposure meter",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runLiveCmd,
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&meterMode, "mode", defaultMode, "metering mode (matrix, center, spot)")
	flags.Float64Var(&meterFilmISO, "film-iso", defaultFilmISO, "ISO the suggestions target")
	flags.Float64Var(&meterDefaultAperture, "default-aperture", exposure.DefaultAperture, "f-number used when none is detected or set")
	flags.Float64SliceVar(&meterApertures, "apertures", nil, "aperture table (default: standard full stops)")
	flags.StringSliceVar(&meterShutters, "shutters", nil, "shutter table labels (default: standard full stops)")

	flags.StringVar(&captureSource, "source", defaultSource, "frame source (ffmpeg, synthetic)")
	flags.StringVar(&captureInput, "input", "", "ffmpeg input (file, URL or device)")
	flags.IntVar(&captureWidth, "width", capture.DefaultWidth, "frame width")
	flags.IntVar(&captureHeight, "height", capture.DefaultHeight, "frame height")
	flags.IntVar(&captureFPS, "fps", capture.DefaultFPS, "synthetic source frame rate")
	flags.StringVar(&captureShutter, "shutter", defaultCaptureShutter, "exposure duration of the captured frames")
	flags.Float64Var(&captureISO, "iso", defaultCaptureISO, "ISO of the captured frames")
	flags.Float64Var(&captureAperture, "aperture", defaultCaptureAperture, "detected aperture of the capture device (0 = unknown)")
	flags.IntVar(&captureMaxStillSize, "max-still-size", capture.DefaultMaxStillSize, "downscale stills larger than this (0 = never)")

	rootCmd.AddCommand(newMeterCmd())
	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newSuggestCmd())
	rootCmd.AddCommand(newCalibrateCmd())
	rootCmd.AddCommand(newApertureCmd())
	rootCmd.AddCommand(newNotesCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

// settings is the merged result of the config file and flags.
type settings struct {
	meter   model.Config
	capture model.CaptureConfig
	params  model.CaptureParams
}

func resolveSettings(cmd *cobra.Command) (settings, error) {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return settings{}, fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "mode", &meterMode, fileCfg.Meter.Mode)
	applyFloatConfig(cmd, "film-iso", &meterFilmISO, fileCfg.Meter.FilmISO)
	applyFloatConfig(cmd, "default-aperture", &meterDefaultAperture, fileCfg.Meter.DefaultAperture)
	applyFloatSliceConfig(cmd, "apertures", &meterApertures, fileCfg.Meter.Apertures)
	applyStringSliceConfig(cmd, "shutters", &meterShutters, fileCfg.Meter.Shutters)

	applyStringConfig(cmd, "source", &captureSource, fileCfg.Capture.Source)
	applyStringConfig(cmd, "input", &captureInput, fileCfg.Capture.Input)
	applyIntConfig(cmd, "width", &captureWidth, fileCfg.Capture.Width)
	applyIntConfig(cmd, "height", &captureHeight, fileCfg.Capture.Height)
	applyIntConfig(cmd, "fps", &captureFPS, fileCfg.Capture.FPS)
	applyStringConfig(cmd, "shutter", &captureShutter, fileCfg.Capture.Shutter)
	applyFloatConfig(cmd, "iso", &captureISO, fileCfg.Capture.ISO)
	applyFloatConfig(cmd, "aperture", &captureAperture, fileCfg.Capture.Aperture)
	applyIntConfig(cmd, "max-still-size", &captureMaxStillSize, fileCfg.Capture.MaxStillSize)

	mode, err := model.ParseMeteringMode(meterMode)
	if err != nil {
		return settings{}, fmt.Errorf("--mode: %w", err)
	}
	out := settings{
		meter: model.Config{
			Mode:            mode,
			FilmISO:         meterFilmISO,
			DefaultAperture: meterDefaultAperture,
			Apertures:       meterApertures,
			Shutters:        meterShutters,
		},
		capture: model.CaptureConfig{
			Source:       captureSource,
			Input:        captureInput,
			Width:        captureWidth,
			Height:       captureHeight,
			FPS:          captureFPS,
			Shutter:      captureShutter,
			ISO:          captureISO,
			Aperture:     captureAperture,
			MaxStillSize: captureMaxStillSize,
		},
	}
	if err := validateConfig(out.meter, out.capture); err != nil {
		return settings{}, err
	}
	seconds, err := exposure.ParseShutter(out.capture.Shutter)
	if err != nil {
		return settings{}, fmt.Errorf("--shutter: %w", err)
	}
	out.params = model.CaptureParams{
		DurationSeconds: seconds,
		ISO:             out.capture.ISO,
		ApertureHint:    out.capture.Aperture,
	}
	return out, nil
}

func openStore() (*store.Store, error) {
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if cerr := st.Close(); cerr != nil {
		logErrf("failed to close db: %v\n", cerr)
	}
}

// newEngine restores persisted settings into a fresh engine. Invalid
// persisted values are reported and ignored.
func newEngine(ctx context.Context, cfg settings, st *store.Store) (*meter.Engine, error) {
	restore, err := st.LoadSettings(ctx)
	if err != nil {
		logErrf("failed to load settings: %v\n", err)
	}
	engine, err := meter.New(meter.Options{Config: cfg.meter, Settings: st, Restore: restore})
	if engine == nil {
		return nil, fmt.Errorf("failed to create meter: %w", err)
	}
	if err != nil {
		logErrf("ignoring persisted settings: %v\n", err)
	}
	engine.SetCaptureParams(cfg.params)
	return engine, nil
}

func runLiveCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveSettings(cmd)
	if err != nil {
		return err
	}
	source, err := capture.New(cfg.capture, cfg.params)
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := newEngine(ctx, cfg, st)
	if err != nil {
		return err
	}
	defer engine.Close()

	captureCtx, cancelCapture := context.WithCancel(ctx)
	program := tea.NewProgram(tui.NewModel(ctx, engine, st), tea.WithAltScreen())

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := source.Run(captureCtx, engine)
		if errors.Is(err, context.Canceled) {
			return
		}
		program.Send(tui.CaptureErrMsg{Err: err})
	}()

	_, runErr := program.Run()
	cancelCapture()
	<-done
	if runErr != nil {
		return fmt.Errorf("failed to run TUI: %w", runErr)
	}
	return nil
}

func newMeterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meter IMAGE",
		Short: "Meter a still image",
		Args:  cobra.ExactArgs(1),
		RunE:  runMeterCmd,
	}
	cmd.Flags().BoolVar(&readoutColor, "color", false, "force coloured output")
	cmd.Flags().Float64Var(&spotX, "spot-x", model.Center.X, "spot position across the frame (0-1)")
	cmd.Flags().Float64Var(&spotY, "spot-y", model.Center.Y, "spot position down the frame (0-1)")
	return cmd
}

func runMeterCmd(cmd *cobra.Command, args []string) error {
	cfg, err := resolveSettings(cmd)
	if err != nil {
		return err
	}
	if spotX < 0 || spotX > 1 || spotY < 0 || spotY > 1 {
		return fmt.Errorf("--spot-x and --spot-y must be between 0 and 1")
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
	engine.SetSpotPoint(model.Point{X: spotX, Y: spotY})
	reading := engine.Measure(frame)
	out := cmd.OutOrStdout()
	return report.RenderReading(out, reading, report.ShouldUseColor(out, readoutColor))
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan INPUT",
		Short: "Meter every frame of a video",
		Args:  cobra.ExactArgs(1),
		RunE:  runScanCmd,
	}
}

// scanSink meters every frame synchronously so none are dropped.
type scanSink struct {
	engine *meter.Engine
	bar    *progressbar.ProgressBar
	evs    []float64
}

func (s *scanSink) SetCaptureParams(p model.CaptureParams) {
	s.engine.SetCaptureParams(p)
}

func (s *scanSink) Offer(frame luma.Frame) bool {
	r := s.engine.Measure(frame)
	s.evs = append(s.evs, r.SceneEV)
	if err := s.bar.Add(1); err != nil {
		// Best-effort progress output.
		_ = err
	}
	return true
}

func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := resolveSettings(cmd)
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := newEngine(ctx, cfg, st)
	if err != nil {
		return err
	}

	total := capture.ProbeFrameCount(ctx, args[0])
	if total <= 0 {
		total = -1
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Metering"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)
	sink := &scanSink{engine: engine, bar: bar}
	source := &capture.FFmpegSource{
		Input:  args[0],
		Width:  cfg.capture.Width,
		Height: cfg.capture.Height,
		Params: cfg.params,
	}
	runErr := source.Run(ctx, sink)
	if err := bar.Finish(); err != nil {
		// Best-effort progress output.
		_ = err
	}
	logErrln()
	if runErr != nil && !(errors.Is(runErr, context.Canceled) && len(sink.evs) > 0) {
		return fmt.Errorf("failed to scan %s: %w", args[0], runErr)
	}
	return report.RenderScanSummary(cmd.OutOrStdout(), sink.evs, report.TerminalWidth())
}

func newSuggestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "List equivalent exposures for a scene EV",
		Args:  cobra.NoArgs,
		RunE:  runSuggestCmd,
	}
	cmd.Flags().Float64Var(&suggestEV, "ev", 0, "scene EV100 (required)")
	cmd.Flags().Float64Var(&suggestISO, "target-iso", 0, "ISO to solve for (default: --film-iso)")
	return cmd
}

func runSuggestCmd(cmd *cobra.Command, _ []string) error {
	if !cmd.Flags().Changed("ev") {
		return fmt.Errorf("--ev is required")
	}
	cfg, err := resolveSettings(cmd)
	if err != nil {
		return err
	}
	engine, err := meter.New(meter.Options{Config: cfg.meter})
	if err != nil {
		return fmt.Errorf("failed to create meter: %w", err)
	}
	iso := cfg.meter.FilmISO
	if cmd.Flags().Changed("target-iso") {
		if !(suggestISO > 0) {
			return fmt.Errorf("--target-iso must be > 0")
		}
		iso = suggestISO
	}
	out := cmd.OutOrStdout()
	if _, err := fmt.Fprintf(out, "Scene EV100 %s at %s\n", report.FormatEV(suggestEV), exposure.ISOLabel(iso)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return report.RenderSuggestions(out, engine.Suggest(suggestEV, iso))
}

func newCalibrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibrate [IMAGE]",
		Short: "Calibrate against a grey card image",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runCalibrateCmd,
	}
	cmd.Flags().BoolVar(&calibrateClear, "clear", false, "remove the stored calibration")
	cmd.Flags().Float64Var(&spotX, "spot-x", model.Center.X, "spot position across the frame (0-1)")
	cmd.Flags().Float64Var(&spotY, "spot-y", model.Center.Y, "spot position down the frame (0-1)")
	return cmd
}

func runCalibrateCmd(cmd *cobra.Command, args []string) error {
	if calibrateClear == (len(args) == 1) {
		return fmt.Errorf("pass either an IMAGE or --clear")
	}
	cfg, err := resolveSettings(cmd)
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
	out := cmd.OutOrStdout()
	if calibrateClear {
		if err := engine.ClearCalibration(); err != nil {
			return fmt.Errorf("failed to clear calibration: %w", err)
		}
		_, err := fmt.Fprintln(out, "Calibration cleared.")
		return err
	}

	frame, err := capture.LoadStill(args[0], cfg.capture.MaxStillSize)
	if err != nil {
		return err
	}
	engine.SetSpotPoint(model.Point{X: spotX, Y: spotY})
	engine.Offer(frame)
	k, err := engine.Calibrate()
	if err != nil {
		return fmt.Errorf("failed to calibrate: %w", err)
	}
	reading, _ := engine.Latest()
	_, err = fmt.Fprintf(out, "Calibrated %s metering: K=%.6g (EV100 %s)\n",
		cfg.meter.Mode.Title(), k, report.FormatEV(reading.BaseEV))
	return err
}

func newApertureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aperture [F]",
		Short: "Show, set or clear the aperture override",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runApertureCmd,
	}
	cmd.Flags().BoolVar(&apertureClear, "clear", false, "remove the aperture override")
	return cmd
}

func runApertureCmd(cmd *cobra.Command, args []string) error {
	if apertureClear && len(args) > 0 {
		return fmt.Errorf("pass either F or --clear")
	}
	cfg, err := resolveSettings(cmd)
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
	out := cmd.OutOrStdout()
	switch {
	case apertureClear:
		if err := engine.SetApertureOverride(cmd.Context(), nil); err != nil {
			return err
		}
	case len(args) == 1:
		v, err := tui.ParseAperture(args[0])
		if err != nil {
			return err
		}
		if v == nil {
			return fmt.Errorf("aperture must not be empty (use --clear)")
		}
		if err := engine.SetApertureOverride(cmd.Context(), v); err != nil {
			return err
		}
	}

	if v, ok := engine.ApertureOverride(); ok {
		_, err = fmt.Fprintf(out, "Aperture override: %s\n", exposure.ApertureLabel(v))
		return err
	}
	_, err = fmt.Fprintf(out, "No aperture override (using %s)\n",
		exposure.ApertureLabel(engine.EffectiveExposure().Aperture))
	return err
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatSliceConfig(cmd *cobra.Command, name string, target *[]float64, value []float64) {
	if len(value) == 0 {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = append([]float64(nil), value...)
}

func applyStringSliceConfig(cmd *cobra.Command, name string, target *[]string, value []string) {
	if len(value) == 0 {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = append([]string(nil), value...)
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# evmeter configuration
# Uncomment a value to enable it. CLI flags override config values.

[meter]
# mode = %q            # Metering mode: matrix, center or spot
# film-iso = %g            # ISO the suggestions target
# default-aperture = %g    # f-number used when none is detected or set
# apertures = [1.4, 2, 2.8, 4, 5.6, 8, 11, 16, 22]
# shutters = ["1/1000", "1/500", "1/250", "1/125", "1/60", "1/30"]

[capture]
# source = %q       # Frame source: ffmpeg or synthetic
# input = "/dev/video0"     # ffmpeg input (file, URL or device)
# width = %d
# height = %d
# fps = %d                  # Synthetic source frame rate
# shutter = %q          # Exposure duration of the captured frames
# iso = %g                 # ISO of the captured frames
# aperture = 1.8            # Detected aperture of the capture device
# max-still-size = %d     # Downscale stills larger than this
`,
		defaultMode,
		defaultFilmISO,
		exposure.DefaultAperture,
		defaultSource,
		capture.DefaultWidth,
		capture.DefaultHeight,
		capture.DefaultFPS,
		defaultCaptureShutter,
		defaultCaptureISO,
		capture.DefaultMaxStillSize,
	)
}

func validateConfig(cfg model.Config, capCfg model.CaptureConfig) error {
	if !(cfg.FilmISO > 0) {
		return fmt.Errorf("--film-iso must be > 0")
	}
	if !(cfg.DefaultAperture > 0) {
		return fmt.Errorf("--default-aperture must be > 0")
	}
	for _, a := range cfg.Apertures {
		if !(a > 0) {
			return fmt.Errorf("--apertures must only contain values > 0")
		}
	}
	if _, err := exposure.ParseShutters(cfg.Shutters); err != nil {
		return fmt.Errorf("--shutters: %w", err)
	}
	if capCfg.Width <= 0 || capCfg.Height <= 0 {
		return fmt.Errorf("--width and --height must be > 0")
	}
	if capCfg.FPS <= 0 {
		return fmt.Errorf("--fps must be > 0")
	}
	if !(capCfg.ISO > 0) {
		return fmt.Errorf("--iso must be > 0")
	}
	if capCfg.Aperture < 0 {
		return fmt.Errorf("--aperture must be >= 0")
	}
	if capCfg.MaxStillSize < 0 {
		return fmt.Errorf("--max-still-size must be >= 0")
	}
	return nil
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
