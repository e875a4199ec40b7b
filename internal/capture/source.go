// Package capture produces luminance frames for the meter from ffmpeg, a
// synthetic test pattern or still images.
package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/verte-zerg/evmeter/internal/luma"
	"github.com/verte-zerg/evmeter/internal/model"
)

// ErrShortFrame is returned when a stream ends in the middle of a frame.
var ErrShortFrame = errors.New("stream ended mid-frame")

// Sink receives frames. The frame is only valid until Offer returns.
// *meter.Engine satisfies Sink.
type Sink interface {
	SetCaptureParams(model.CaptureParams)
	Offer(frame luma.Frame) bool
}

// Source delivers frames to a sink until the stream ends or ctx is done.
type Source interface {
	Run(ctx context.Context, sink Sink) error
}

// New builds the source named by cfg.Source.
func New(cfg model.CaptureConfig, params model.CaptureParams) (Source, error) {
	switch cfg.Source {
	case "", "synthetic":
		return &SyntheticSource{Width: cfg.Width, Height: cfg.Height, FPS: cfg.FPS, Params: params}, nil
	case "ffmpeg":
		if cfg.Input == "" {
			return nil, fmt.Errorf("ffmpeg source needs an input")
		}
		return &FFmpegSource{
			Input:    cfg.Input,
			Width:    cfg.Width,
			Height:   cfg.Height,
			Realtime: true,
			Params:   params,
		}, nil
	default:
		return nil, fmt.Errorf("unknown capture source %q (want ffmpeg or synthetic)", cfg.Source)
	}
}
