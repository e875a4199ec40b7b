package exposure

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrInvalidCalibration is returned when a calibration constant is not a positive finite number.
var ErrInvalidCalibration = errors.New("calibration constant must be a positive finite number")

// Calibration is a snapshot of the grey-card constant. The zero value is uncalibrated.
type Calibration struct {
	constant float64
	present  bool
}

// Calibrated returns a snapshot holding k.
func Calibrated(k float64) Calibration {
	return Calibration{constant: k, present: true}
}

// Get returns the constant and whether one is set.
func (c Calibration) Get() (float64, bool) {
	return c.constant, c.present
}

// Ptr returns the constant as an optional value for persistence.
func (c Calibration) Ptr() *float64 {
	if !c.present {
		return nil
	}
	k := c.constant
	return &k
}

// CalibrationState holds the current calibration. One writer, many readers.
// Every change is pushed to the persist hook.
type CalibrationState struct {
	mu      sync.RWMutex
	current Calibration
	persist func(*float64) error
}

// NewCalibrationState creates an uncalibrated state. persist may be nil.
func NewCalibrationState(persist func(*float64) error) *CalibrationState {
	return &CalibrationState{persist: persist}
}

// Restore loads an externally stored value without pushing it back.
// A nil value leaves the state uncalibrated.
func (s *CalibrationState) Restore(k *float64) error {
	if k == nil {
		return nil
	}
	if !validConstant(*k) {
		return fmt.Errorf("failed to restore calibration %v: %w", *k, ErrInvalidCalibration)
	}
	s.mu.Lock()
	s.current = Calibrated(*k)
	s.mu.Unlock()
	return nil
}

// Snapshot returns the current calibration.
func (s *CalibrationState) Snapshot() Calibration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set stores k. Non-positive or non-finite values are rejected and the
// previous state is kept.
func (s *CalibrationState) Set(k float64) error {
	if !validConstant(k) {
		return ErrInvalidCalibration
	}
	s.mu.Lock()
	s.current = Calibrated(k)
	s.mu.Unlock()
	return s.push(&k)
}

// Clear removes the constant.
func (s *CalibrationState) Clear() error {
	s.mu.Lock()
	s.current = Calibration{}
	s.mu.Unlock()
	return s.push(nil)
}

func (s *CalibrationState) push(k *float64) error {
	if s.persist == nil {
		return nil
	}
	if err := s.persist(k); err != nil {
		return fmt.Errorf("failed to persist calibration: %w", err)
	}
	return nil
}

func validConstant(k float64) bool {
	return k > 0 && !math.IsInf(k, 1)
}
