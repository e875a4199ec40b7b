package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/evmeter/internal/config"
	"github.com/verte-zerg/evmeter/internal/model"
	"github.com/verte-zerg/evmeter/internal/report"
)

func isolateHome(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("NO_COLOR", "1")
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeGrayPNG(t *testing.T, v uint8) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 48))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	img.SetGray(0, 0, color.Gray{Y: v})
	path := filepath.Join(t.TempDir(), "card.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestDefaultConfigTemplateLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644))
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Nil(t, cfg.Meter.Mode)
	assert.Nil(t, cfg.Capture.Source)
}

func TestValidateConfig(t *testing.T) {
	good := model.Config{FilmISO: 400, DefaultAperture: 1.8}
	capCfg := model.CaptureConfig{Width: 640, Height: 480, FPS: 15, ISO: 100}
	require.NoError(t, validateConfig(good, capCfg))

	bad := good
	bad.FilmISO = 0
	assert.EqualError(t, validateConfig(bad, capCfg), "--film-iso must be > 0")

	bad = good
	bad.Apertures = []float64{2.8, -1}
	assert.Error(t, validateConfig(bad, capCfg))

	bad = good
	bad.Shutters = []string{"1/0"}
	assert.Error(t, validateConfig(bad, capCfg))

	badCap := capCfg
	badCap.FPS = 0
	assert.EqualError(t, validateConfig(good, badCap), "--fps must be > 0")

	badCap = capCfg
	badCap.Aperture = -2
	assert.Error(t, validateConfig(good, badCap))
}

func TestConfigFileAppliesUnlessFlagChanged(t *testing.T) {
	isolateHome(t)
	path := config.DefaultConfigPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("[meter]\nfilm-iso = 800\n"), 0o644))

	out, err := runCLI(t, "suggest", "--ev", "12")
	require.NoError(t, err)
	assert.Contains(t, out, "Scene EV100 12.00 at ISO 800")

	out, err = runCLI(t, "suggest", "--ev", "12", "--film-iso", "200")
	require.NoError(t, err)
	assert.Contains(t, out, "at ISO 200")
}

func TestSuggestCmd(t *testing.T) {
	isolateHome(t)
	_, err := runCLI(t, "suggest")
	assert.EqualError(t, err, "--ev is required")

	out, err := runCLI(t, "suggest", "--ev", "15", "--target-iso", "100")
	require.NoError(t, err)
	assert.Contains(t, out, "Scene EV100 15.00 at ISO 100")
	assert.Contains(t, out, "ƒ16")
	assert.Contains(t, out, "1/125")

	_, err = runCLI(t, "suggest", "--ev", "15", "--target-iso", "0")
	assert.EqualError(t, err, "--target-iso must be > 0")

	// --iso stays the capture ISO; it does not change the solver target.
	out, err = runCLI(t, "suggest", "--ev", "15", "--film-iso", "400", "--iso", "3200")
	require.NoError(t, err)
	assert.Contains(t, out, "Scene EV100 15.00 at ISO 400")
}

func TestApertureCmd(t *testing.T) {
	isolateHome(t)
	out, err := runCLI(t, "aperture", "f/2.8")
	require.NoError(t, err)
	assert.Contains(t, out, "Aperture override: ƒ2.8")

	out, err = runCLI(t, "aperture")
	require.NoError(t, err)
	assert.Contains(t, out, "Aperture override: ƒ2.8")

	out, err = runCLI(t, "aperture", "--clear")
	require.NoError(t, err)
	assert.Contains(t, out, "No aperture override (using ƒ1.8)")

	_, err = runCLI(t, "aperture", "0")
	assert.Error(t, err)
}

func TestCalibrateAndMeterCmd(t *testing.T) {
	isolateHome(t)
	img := writeGrayPNG(t, 118)

	_, err := runCLI(t, "calibrate")
	assert.Error(t, err)

	out, err := runCLI(t, "calibrate", img, "--shutter", "1/125", "--iso", "100", "--aperture", "8")
	require.NoError(t, err)
	assert.Contains(t, out, "Calibrated Matrix metering: K=")

	out, err = runCLI(t, "meter", img, "--shutter", "1/125", "--iso", "100", "--aperture", "8")
	require.NoError(t, err)
	assert.Contains(t, out, "Camera: ƒ8  1/125  ISO 100  (EV100 12.97)")
	assert.Contains(t, out, "Scene EV100: 12.97 (calibrated")

	out, err = runCLI(t, "calibrate", "--clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Calibration cleared.")

	out, err = runCLI(t, "meter", img, "--shutter", "1/125", "--iso", "100", "--aperture", "8")
	require.NoError(t, err)
	assert.Contains(t, out, "(relative)")
}

func TestMeterCmdRejectsBadInput(t *testing.T) {
	isolateHome(t)
	_, err := runCLI(t, "meter", filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)

	img := writeGrayPNG(t, 60)
	_, err = runCLI(t, "meter", img, "--mode", "zone")
	assert.Error(t, err)
	_, err = runCLI(t, "meter", img, "--spot-x", "2")
	assert.Error(t, err)
	_, err = runCLI(t, "meter", img, "--shutter", "fast")
	assert.Error(t, err)
}

func TestNotesCmds(t *testing.T) {
	isolateHome(t)
	out, err := runCLI(t, "notes", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No notes found.")

	_, err = runCLI(t, "notes", "export")
	assert.ErrorIs(t, err, report.ErrNoNotes)

	_, err = runCLI(t, "notes", "delete", "abc")
	assert.Error(t, err)
	_, err = runCLI(t, "notes", "delete", "7")
	assert.Error(t, err)

	_, err = runCLI(t, "notes", "list", "--since", "yesterday")
	assert.Error(t, err)
}

func TestNotesAddCmd(t *testing.T) {
	isolateHome(t)
	img := writeGrayPNG(t, 118)

	_, err := runCLI(t, "notes", "add", img, "--lat", "52.52")
	assert.EqualError(t, err, "--lat and --lon must be given together")
	_, err = runCLI(t, "notes", "add", img, "--lat", "91", "--lon", "0")
	assert.Error(t, err)

	out, err := runCLI(t, "notes", "add", img, "--shutter", "1/125", "--iso", "100", "--aperture", "8",
		"--memo", "harbour", "--lat", "52.52", "--lon", "13.405")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved note #1: ƒ8 1/125 ISO 100 EV100 12.97")

	_, err = runCLI(t, "notes", "add", img, "--shutter", "1/125", "--iso", "100", "--aperture", "8")
	require.NoError(t, err)

	out, err = runCLI(t, "notes", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "harbour")
	assert.Contains(t, out, "52.5200, 13.4050")

	out, err = runCLI(t, "notes", "export")
	require.NoError(t, err)
	assert.Contains(t, out, "Date,Aperture,Shutter,ISO,EV100,Latitude,Longitude")
	assert.Contains(t, out, ",ƒ8,1/125,ISO 100,12.97,52.52,13.405")
	assert.Contains(t, out, ",ƒ8,1/125,ISO 100,12.97,,")
}
