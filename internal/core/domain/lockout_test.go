package domain

import (
	"testing"
	"time"
)

func TestRecordFailureBelowThresholdKeepsUnlocked(t *testing.T) {
	policy := DefaultLockoutPolicy()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	state := policy.RecordFailure(LockState{}, now)
	if state.Attempts != 1 || state.LockedUntil != nil {
		t.Fatalf("unexpected state after first failure: %+v", state)
	}

	state = policy.RecordFailure(state, now)
	if state.Attempts != 2 || state.LockedUntil != nil {
		t.Fatalf("unexpected state after second failure: %+v", state)
	}
}

func TestThirdFailureLocksForFifteenMinutes(t *testing.T) {
	policy := DefaultLockoutPolicy()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	state := LockState{}
	for i := 0; i < 3; i++ {
		state = policy.RecordFailure(state, now)
	}

	if state.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", state.Attempts)
	}
	if state.LockedUntil == nil || !state.LockedUntil.Equal(now.Add(15*time.Minute)) {
		t.Fatalf("expected lock until now+15m, got %v", state.LockedUntil)
	}
	if !state.IsLocked(now.Add(14 * time.Minute)) {
		t.Fatal("expected lock to hold before expiry")
	}
	if state.IsLocked(now.Add(15 * time.Minute)) {
		t.Fatal("expected lock to lapse at expiry instant")
	}
}

func TestFailureAfterLapsedLockRelocks(t *testing.T) {
	policy := DefaultLockoutPolicy()
	locked := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	prev := LockState{Attempts: 3, LockedUntil: &locked}
	now := locked.Add(time.Minute)

	next := policy.RecordFailure(prev, now)
	if next.Attempts != 4 {
		t.Fatalf("expected counter to keep growing, got %d", next.Attempts)
	}
	if !Engaged(prev, next, now) {
		t.Fatal("expected a fresh lock to be engaged")
	}
}

func TestResetClearsState(t *testing.T) {
	state := DefaultLockoutPolicy().Reset()
	if state.Attempts != 0 || state.LockedUntil != nil {
		t.Fatalf("expected zero state, got %+v", state)
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	p := LockoutPolicy{}.Normalize()
	if p.Threshold != DefaultFailureThreshold || p.Duration != DefaultLockoutDuration {
		t.Fatalf("unexpected normalized policy: %+v", p)
	}
}

func TestCustomThreshold(t *testing.T) {
	policy := LockoutPolicy{Threshold: 1, Duration: time.Minute}
	now := time.Now()
	state := policy.RecordFailure(LockState{}, now)
	if !state.IsLocked(now) {
		t.Fatal("expected threshold of one to lock immediately")
	}
}
