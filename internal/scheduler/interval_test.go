package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseIntervalDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"15m", 15 * time.Minute, true},
		{"1h", time.Hour, true},
		{"4h", 4 * time.Hour, true},
		{"1d", 24 * time.Hour, true},
		{"1w", 7 * 24 * time.Hour, true},
		{"30s", 30 * time.Second, true},
		{" 2H ", 2 * time.Hour, true},
		{"", 0, false},
		{"h", 0, false},
		{"0m", 0, false},
		{"-5m", 0, false},
		{"5x", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseIntervalDuration(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseIntervalDuration(%q) = (%s, %v), want (%s, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestIntervalSchedulerRunsAndStops(t *testing.T) {
	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	s := NewIntervalScheduler("test", 10*time.Millisecond)
	s.RunImmediately = true

	done := make(chan struct{})
	go func() {
		s.Run(ctx, func(context.Context) error {
			runs.Add(1)
			return errors.New("cycle error is not fatal")
		})
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
	if runs.Load() < 2 {
		t.Fatalf("expected at least 2 runs, got %d", runs.Load())
	}
}

func TestIntervalSchedulerRejectsZeroInterval(t *testing.T) {
	s := NewIntervalScheduler("bad", 0)
	done := make(chan struct{})
	go func() {
		s.Run(context.Background(), func(context.Context) error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler with zero interval should return immediately")
	}
}
