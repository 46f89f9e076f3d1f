package timeutil

import (
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}
	before := time.Now()
	now := c.Now()
	if now.Before(before) {
		t.Errorf("Now() = %v, before %v", now, before)
	}
	c.Sleep(time.Millisecond)
	if d := c.Since(now); d < time.Millisecond {
		t.Errorf("Since() = %v after a 1ms sleep", d)
	}
}

func TestMockClock_Now(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	if got := c.Now(); !got.Equal(start) {
		t.Errorf("Now() = %v, want %v", got, start)
	}
	if got := c.Now(); !got.Equal(start) {
		t.Errorf("Now() without a step moved to %v", got)
	}

	c.SetStep(time.Second)
	first, second := c.Now(), c.Now()
	if second.Sub(first) != time.Second {
		t.Errorf("stepped readings differ by %v, want 1s", second.Sub(first))
	}
}

func TestMockClock_AdvanceAndSince(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	c.Advance(90 * time.Second)
	if d := c.Since(start); d != 90*time.Second {
		t.Errorf("Since() = %v, want 90s", d)
	}
}

func TestMockClock_Sleep(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	c.Sleep(20 * time.Millisecond)
	c.Sleep(40 * time.Millisecond)

	sleeps := c.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 20*time.Millisecond || sleeps[1] != 40*time.Millisecond {
		t.Errorf("Sleeps() = %v", sleeps)
	}
	if d := c.Since(start); d != 60*time.Millisecond {
		t.Errorf("clock advanced %v, want 60ms", d)
	}
}
