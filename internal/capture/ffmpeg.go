package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/verte-zerg/evmeter/internal/luma"
	"github.com/verte-zerg/evmeter/internal/model"
)

// Default frame geometry for piped video.
const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

// FFmpegSource decodes any input ffmpeg understands into 8-bit grey
// rawvideo frames of a fixed size.
type FFmpegSource struct {
	Binary   string
	Input    string
	Width    int
	Height   int
	Realtime bool
	Params   model.CaptureParams

	skipped atomic.Uint64
}

// Args returns the ffmpeg command line without the binary.
func (s *FFmpegSource) Args() []string {
	w, h := s.size()
	args := []string{"-hide_banner", "-loglevel", "error"}
	if s.Realtime {
		args = append(args, "-re")
	}
	return append(args,
		"-i", s.Input,
		"-vf", fmt.Sprintf("scale=%d:%d", w, h),
		"-pix_fmt", "gray",
		"-f", "rawvideo",
		"-",
	)
}

// Skipped returns how many frames a realtime run skipped because the
// previous frame was still being metered.
func (s *FFmpegSource) Skipped() uint64 {
	return s.skipped.Load()
}

// Run starts ffmpeg and offers decoded frames to sink. Offline runs offer
// every frame; realtime runs skip frames that arrive while the sink is still
// busy with the previous one. Cancelling ctx kills the process.
func (s *FFmpegSource) Run(ctx context.Context, sink Sink) error {
	bin := s.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("failed to find %s: %w", bin, err)
	}

	cmd := exec.CommandContext(ctx, bin, s.Args()...)
	// -loglevel error keeps this small.
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	out, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	w, h := s.size()
	var readErr error
	if s.Realtime {
		live := newSkipSink(sink)
		_, readErr = ReadFrames(out, w, h, s.Params, live)
		live.Wait()
		s.skipped.Add(live.Skipped())
	} else {
		_, readErr = ReadFrames(out, w, h, s.Params, sink)
	}
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if readErr != nil {
		return withStderr(readErr, stderr)
	}
	if waitErr != nil {
		return withStderr(fmt.Errorf("ffmpeg failed: %w", waitErr), stderr)
	}
	return nil
}

func (s *FFmpegSource) size() (int, int) {
	w, h := s.Width, s.Height
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}
	return w, h
}

// ReadFrames reads fixed-size grey frames from r until EOF and offers each
// one to sink on the calling goroutine, so a slow sink slows the reader. A
// single buffer is reused for every frame. It returns the number of complete
// frames read.
func ReadFrames(r io.Reader, width, height int, params model.CaptureParams, sink Sink) (int, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	buf := make([]byte, width*height)
	frames := 0
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if errors.Is(err, io.EOF) {
				return frames, nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return frames, fmt.Errorf("frame %d: %w", frames+1, ErrShortFrame)
			}
			return frames, fmt.Errorf("failed to read frame %d: %w", frames+1, err)
		}
		frames++
		sink.SetCaptureParams(params)
		sink.Offer(luma.NewFrame(width, height, buf))
	}
}

// ProbeFrameCount asks ffprobe for the number of video frames in path.
// It returns 0 when the count is unknown.
func ProbeFrameCount(ctx context.Context, path string) int {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return 0
	}
	out, err := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=nb_frames", "-of", "json", path).Output()
	if err != nil {
		return 0
	}
	return parseFrameCount(out)
}

func parseFrameCount(data []byte) int {
	var res struct {
		Streams []struct {
			NbFrames string `json:"nb_frames"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(data, &res); err != nil || len(res.Streams) == 0 {
		return 0
	}
	n, err := strconv.Atoi(res.Streams[0].NbFrames)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func withStderr(err error, stderr *bytes.Buffer) error {
	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, msg)
}
