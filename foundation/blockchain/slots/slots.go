// Package slots maps wall clock time onto the fixed width slots that
// validators take turns generating blocks in.
package slots

import (
	"errors"
	"time"
)

// Slots performs slot arithmetic for a chain with a fixed block interval.
type Slots struct {
	interval uint64
	now      func() time.Time
}

// WithClock replaces the clock used for the current time. Tests use it to
// pin "now" to a specific instant.
func WithClock(now func() time.Time) func(s *Slots) {
	return func(s *Slots) {
		s.now = now
	}
}

// New constructs slot arithmetic for the specified block interval.
func New(interval time.Duration, options ...func(s *Slots)) (*Slots, error) {
	if interval < time.Second {
		return nil, errors.New("slot interval must be at least one second")
	}

	s := Slots{
		interval: uint64(interval / time.Second),
		now:      time.Now,
	}

	for _, option := range options {
		option(&s)
	}

	return &s, nil
}

// Interval returns the width of a slot in seconds.
func (s *Slots) Interval() uint64 {
	return s.interval
}

// Now returns the unix time in seconds according to the configured clock.
func (s *Slots) Now() uint64 {
	sec := s.now().Unix()
	if sec < 0 {
		return 0
	}
	return uint64(sec)
}

// SlotNumber returns the slot the unix timestamp falls into.
func (s *Slots) SlotNumber(timestamp uint64) uint64 {
	return timestamp / s.interval
}

// CurrentSlot returns the slot for the current time.
func (s *Slots) CurrentSlot() uint64 {
	return s.SlotNumber(s.Now())
}

// SlotTime returns the unix timestamp a slot starts at.
func (s *Slots) SlotTime(slot uint64) uint64 {
	return slot * s.interval
}

// IsWithinTimeslot reports whether the timestamp falls into the slot.
func (s *Slots) IsWithinTimeslot(slot uint64, timestamp uint64) bool {
	return s.SlotNumber(timestamp) == slot
}

// IsCurrentSlot reports whether the current time falls into the slot.
func (s *Slots) IsCurrentSlot(slot uint64) bool {
	return s.IsWithinTimeslot(slot, s.Now())
}
