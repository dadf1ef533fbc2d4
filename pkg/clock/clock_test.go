package clock

import (
	"testing"
	"time"
)

func TestFake_AdvanceAndSet(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	if !f.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", f.Now(), start)
	}

	f.Advance(5 * time.Minute)
	want := start.Add(5 * time.Minute)
	if !f.Now().Equal(want) {
		t.Errorf("after Advance, Now() = %v, want %v", f.Now(), want)
	}

	later := start.Add(time.Hour)
	f.Set(later)
	if !f.Now().Equal(later) {
		t.Errorf("after Set, Now() = %v, want %v", f.Now(), later)
	}
}

func TestFake_MonotonicTracksNow(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)
	m1 := f.Monotonic()
	f.Advance(time.Second)
	m2 := f.Monotonic()
	if m2 <= m1 {
		t.Error("Monotonic should increase as the fake clock advances")
	}
}

func TestSystem_NowIsRecent(t *testing.T) {
	var s System
	now := s.Now()
	if time.Since(now) > time.Minute {
		t.Errorf("System.Now() = %v, not close to real time", now)
	}
}
