package timer

import (
	"testing"
	"time"
)

func TestTimerCountsTicks(t *testing.T) {
	t.Parallel()

	tm := New(10 * time.Millisecond)
	tm.Start()
	waitFor(t, func() bool { return tm.Elapsed() >= 3 })

	tm.Stop()
	if tm.Elapsed() != 0 {
		t.Fatalf("expected stop to reset, got %d", tm.Elapsed())
	}
	if tm.Running() {
		t.Fatalf("expected timer stopped")
	}
}

func TestTimerPauseResume(t *testing.T) {
	t.Parallel()

	tm := New(10 * time.Millisecond)
	tm.Start()
	waitFor(t, func() bool { return tm.Elapsed() >= 2 })

	tm.Pause()
	paused := tm.Elapsed()
	time.Sleep(50 * time.Millisecond)
	if got := tm.Elapsed(); got != paused {
		t.Fatalf("expected paused count %d, got %d", paused, got)
	}

	tm.Resume()
	waitFor(t, func() bool { return tm.Elapsed() > paused })
	tm.Stop()
}

func TestTimerRestartFromZero(t *testing.T) {
	t.Parallel()

	tm := New(10 * time.Millisecond)
	tm.Start()
	waitFor(t, func() bool { return tm.Elapsed() >= 3 })

	tm.Start()
	if got := tm.Elapsed(); got != 0 {
		t.Fatalf("expected restart from zero, got %d", got)
	}
	tm.Stop()
}

func TestTimerResumeWithoutStart(t *testing.T) {
	t.Parallel()

	tm := New(10 * time.Millisecond)
	tm.Resume()
	if tm.Running() {
		t.Fatalf("resume without start must not run")
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	cases := map[int]string{
		0:    "0:00",
		5:    "0:05",
		65:   "1:05",
		3599: "59:59",
		3600: "1:00:00",
		3725: "1:02:05",
		-1:   "0:00",
	}
	for in, want := range cases {
		if got := Format(in); got != want {
			t.Fatalf("Format(%d) = %q, want %q", in, got, want)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}
