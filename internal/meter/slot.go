package meter

import (
	"context"
	"sync"
)

// readingSlot is a single-slot mailbox: publish overwrites any unread
// reading and never blocks; the consumer waits for the next one.
type readingSlot struct {
	mu      sync.Mutex
	reading *Reading
	notify  chan struct{}
	closed  bool

	overwrites uint64
}

func newReadingSlot() *readingSlot {
	return &readingSlot{notify: make(chan struct{}, 1)}
}

func (s *readingSlot) publish(r *Reading) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.reading != nil {
		s.overwrites++
	}
	s.reading = r
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// take returns the unread reading, if any.
func (s *readingSlot) take() (*Reading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.reading
	s.reading = nil
	return r, s.closed
}

func (s *readingSlot) next(ctx context.Context) (Reading, error) {
	for {
		r, closed := s.take()
		if r != nil {
			return *r, nil
		}
		if closed {
			return Reading{}, ErrClosed
		}
		select {
		case <-ctx.Done():
			return Reading{}, ctx.Err()
		case <-s.notify:
		}
	}
}

func (s *readingSlot) close() {
	s.mu.Lock()
	s.closed = true
	s.reading = nil
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *readingSlot) overwriteCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overwrites
}
