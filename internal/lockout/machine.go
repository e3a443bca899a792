// Package lockout implements the brute-force lockout applied to login
// attempts from one browser. State is evaluated lazily against the clock on
// every attempt; nothing runs in the background.
package lockout

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusNormal  Status = "normal"
	StatusWarning Status = "warning"
	StatusLocked  Status = "locked"
)

type State struct {
	Attempts    int        `json:"attempts"`
	LastAttempt time.Time  `json:"lastAttempt"`
	LockedUntil *time.Time `json:"lockedUntil,omitempty"`
}

func (s State) IsLocked(now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

func (s State) TimeRemaining(now time.Time) time.Duration {
	if s.LockedUntil == nil {
		return 0
	}
	remaining := s.LockedUntil.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (s State) Status(now time.Time) Status {
	switch {
	case s.IsLocked(now):
		return StatusLocked
	case s.Attempts == 0:
		return StatusNormal
	default:
		return StatusWarning
	}
}

// AttemptsRemaining counts the failures still allowed before a lock.
func (s State) AttemptsRemaining() int {
	if s.Attempts >= MaxAttempts {
		return 0
	}
	return MaxAttempts - s.Attempts
}

type Machine struct {
	now func() time.Time
}

func NewMachine() *Machine {
	return &Machine{now: time.Now}
}

func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

func (m *Machine) Now() time.Time {
	return m.now()
}

func (m *Machine) RecordFailure(s State) State {
	now := m.now()
	next := State{Attempts: s.Attempts + 1, LastAttempt: now}
	if d := LockDuration(next.Attempts); d > 0 {
		until := now.Add(d)
		next.LockedUntil = &until
	}
	return next
}

func (m *Machine) RecordSuccess(State) State {
	return State{LastAttempt: m.now()}
}

// FormatRemaining renders a countdown as "Xm Ys", or "Ys" under a minute.
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return ""
	}

	minutes := int(d / time.Minute)
	seconds := int((d % time.Minute) / time.Second)
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
