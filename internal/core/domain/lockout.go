package domain

import "time"

const (
	// DefaultFailureThreshold is the number of consecutive failures that engages a lock.
	DefaultFailureThreshold = 3
	// DefaultLockoutDuration is how long an engaged lock lasts.
	DefaultLockoutDuration = 15 * time.Minute
)

// LockState captures the brute-force counters of a single account.
type LockState struct {
	Attempts    int
	LockedUntil *time.Time
}

// IsLocked reports whether the lock is still in force at now.
func (s LockState) IsLocked(now time.Time) bool {
	return s.LockedUntil != nil && s.LockedUntil.After(now)
}

// LockoutPolicy is a pure transition function over LockState.
// There is no sliding window and no permanent ban: a lock lapses on its own
// once wall-clock time passes LockedUntil.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultLockoutPolicy returns the 3 failures / 15 minutes policy.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{Threshold: DefaultFailureThreshold, Duration: DefaultLockoutDuration}
}

// Normalize fills zero values with defaults.
func (p LockoutPolicy) Normalize() LockoutPolicy {
	if p.Threshold <= 0 {
		p.Threshold = DefaultFailureThreshold
	}
	if p.Duration <= 0 {
		p.Duration = DefaultLockoutDuration
	}
	return p
}

// RecordFailure increments the counter and engages the lock once the
// threshold is reached. Below the threshold LockedUntil is nil.
func (p LockoutPolicy) RecordFailure(state LockState, now time.Time) LockState {
	p = p.Normalize()
	next := LockState{Attempts: state.Attempts + 1}
	if next.Attempts < 0 {
		next.Attempts = 1
	}
	if next.Attempts >= p.Threshold {
		until := now.Add(p.Duration)
		next.LockedUntil = &until
	}
	return next
}

// Reset returns the state persisted after a successful login.
func (p LockoutPolicy) Reset() LockState {
	return LockState{}
}

// Engaged reports whether moving from prev to next started a new lock.
func Engaged(prev, next LockState, now time.Time) bool {
	return next.IsLocked(now) && !prev.IsLocked(now)
}
