package capture

import (
	"context"
	"math"
	"time"

	"github.com/verte-zerg/evmeter/internal/luma"
	"github.com/verte-zerg/evmeter/internal/model"
)

// DefaultFPS is the synthetic frame rate when none is configured.
const DefaultFPS = 15

// SyntheticSource renders a moving test pattern: a horizontal gradient that
// drifts over time with a bright disc orbiting the centre.
type SyntheticSource struct {
	Width  int
	Height int
	FPS    int
	Params model.CaptureParams
}

// Run offers frames at the configured rate until ctx is done.
func (s *SyntheticSource) Run(ctx context.Context, sink Sink) error {
	w, h := s.Width, s.Height
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}
	fps := s.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	buf := make([]byte, w*h)
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			frame := SyntheticFrame(w, h, now.Sub(start).Seconds(), buf)
			sink.SetCaptureParams(s.Params)
			sink.Offer(frame)
		}
	}
}

// SyntheticFrame draws the pattern at time t seconds into buf, allocating
// when buf is too small.
func SyntheticFrame(width, height int, t float64, buf []byte) luma.Frame {
	if len(buf) < width*height {
		buf = make([]byte, width*height)
	}
	phase := math.Mod(t*0.1, 1)
	cx := float64(width) * (0.5 + 0.3*math.Cos(t))
	cy := float64(height) * (0.5 + 0.3*math.Sin(t))
	radius := float64(min(width, height)) / 8
	r2 := radius * radius

	for y := 0; y < height; y++ {
		row := buf[y*width : (y+1)*width]
		dy := float64(y) - cy
		for x := range row {
			dx := float64(x) - cx
			if dx*dx+dy*dy <= r2 {
				row[x] = 250
				continue
			}
			g := math.Mod(float64(x)/float64(width)+phase, 1)
			row[x] = byte(20 + g*180)
		}
	}
	return luma.NewFrame(width, height, buf[:width*height])
}
