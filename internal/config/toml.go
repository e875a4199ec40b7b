// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Meter   MeterConfig   `toml:"meter"`
	Capture CaptureConfig `toml:"capture"`
}

// MeterConfig maps metering settings.
type MeterConfig struct {
	Mode            *string   `toml:"mode"`
	FilmISO         *float64  `toml:"film-iso"`
	DefaultAperture *float64  `toml:"default-aperture"`
	Apertures       []float64 `toml:"apertures"`
	Shutters        []string  `toml:"shutters"`
}

// CaptureConfig maps frame source settings.
type CaptureConfig struct {
	Source       *string  `toml:"source"`
	Input        *string  `toml:"input"`
	Width        *int     `toml:"width"`
	Height       *int     `toml:"height"`
	FPS          *int     `toml:"fps"`
	Shutter      *string  `toml:"shutter"`
	ISO          *float64 `toml:"iso"`
	Aperture     *float64 `toml:"aperture"`
	MaxStillSize *int     `toml:"max-still-size"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}
