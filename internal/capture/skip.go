package capture

import (
	"sync"
	"sync/atomic"

	"github.com/verte-zerg/evmeter/internal/luma"
	"github.com/verte-zerg/evmeter/internal/model"
)

// skipSink hands frames to next on its own goroutine so the reader keeps
// draining the pipe. A frame that arrives while the previous one is still
// being metered is skipped instead of queued.
type skipSink struct {
	next    Sink
	buf     []byte
	busy    atomic.Bool
	skipped atomic.Uint64
	wg      sync.WaitGroup
}

func newSkipSink(next Sink) *skipSink {
	return &skipSink{next: next}
}

func (s *skipSink) SetCaptureParams(p model.CaptureParams) {
	s.next.SetCaptureParams(p)
}

// Offer copies frame and returns immediately. It reports false when the
// frame was skipped.
func (s *skipSink) Offer(frame luma.Frame) bool {
	if !s.busy.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		return false
	}
	// buf is only touched by the metering goroutine until busy is cleared.
	n := len(frame.Pix)
	if cap(s.buf) < n {
		s.buf = make([]byte, n)
	}
	s.buf = s.buf[:n]
	copy(s.buf, frame.Pix)
	owned := frame
	owned.Pix = s.buf

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Store(false)
		s.next.Offer(owned)
	}()
	return true
}

// Wait blocks until the frame in flight, if any, has been metered.
func (s *skipSink) Wait() {
	s.wg.Wait()
}

// Skipped returns how many frames were skipped.
func (s *skipSink) Skipped() uint64 {
	return s.skipped.Load()
}
