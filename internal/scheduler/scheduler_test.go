package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEvery_RunsImmediately(t *testing.T) {
	s := New()
	defer s.Stop()

	var runs atomic.Int32
	// A long interval leaves the immediate run as the only one in the window.
	if _, err := s.Every("poll", time.Hour, func() { runs.Add(1) }); err != nil {
		t.Fatalf("Every: %v", err)
	}
	waitFor(t, "immediate run", func() bool { return runs.Load() == 1 })
}

func TestEvery_RepeatsOnInterval(t *testing.T) {
	s := New()
	defer s.Stop()

	var runs atomic.Int32
	if _, err := s.Every("poll", 10*time.Millisecond, func() { runs.Add(1) }); err != nil {
		t.Fatalf("Every: %v", err)
	}
	waitFor(t, "repeated runs", func() bool { return runs.Load() >= 3 })
}

func TestEvery_SkipsOverlappingRuns(t *testing.T) {
	s := New()
	defer s.Stop()

	var running, maxRunning, runs atomic.Int32
	release := make(chan struct{})
	_, err := s.Every("slow", 5*time.Millisecond, func() {
		n := running.Add(1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		if runs.Add(1) == 1 {
			<-release
		}
		running.Add(-1)
	})
	if err != nil {
		t.Fatalf("Every: %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	if got := runs.Load(); got != 1 {
		t.Errorf("runs while first blocked = %d, want 1", got)
	}
	close(release)
	waitFor(t, "runs after release", func() bool { return runs.Load() >= 2 })
	if got := maxRunning.Load(); got != 1 {
		t.Errorf("max concurrent runs = %d, want 1", got)
	}
}

func TestHandle_CancelStopsJob(t *testing.T) {
	s := New()
	defer s.Stop()

	var runs atomic.Int32
	h, err := s.Every("poll", 10*time.Millisecond, func() { runs.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first runs", func() bool { return runs.Load() >= 2 })
	h.Cancel()
	h.Cancel()

	time.Sleep(20 * time.Millisecond)
	after := runs.Load()
	time.Sleep(60 * time.Millisecond)
	if runs.Load() != after {
		t.Errorf("job kept running after Cancel: %d -> %d", after, runs.Load())
	}
	if len(s.jobs()) != 0 {
		t.Errorf("jobs() = %v, want none", s.jobs())
	}
}

func TestJobs_ListsNames(t *testing.T) {
	s := New()
	defer s.Stop()
	s.Every("a", time.Hour, func() {})
	s.Every("b", time.Hour, func() {})
	jobs := s.jobs()
	if len(jobs) != 2 {
		t.Fatalf("jobs() = %v, want 2 entries", jobs)
	}
}

func TestEvery_Validation(t *testing.T) {
	s := New()
	defer s.Stop()
	if _, err := s.Every("x", 0, func() {}); err == nil {
		t.Error("expected error for zero interval")
	}
	if _, err := s.Every("x", time.Second, nil); err == nil {
		t.Error("expected error for nil fn")
	}
}

func TestStop_RejectsNewJobsAndIsIdempotent(t *testing.T) {
	s := New()
	s.Stop()
	s.Stop()
	if _, err := s.Every("late", time.Second, func() {}); err == nil {
		t.Error("expected error scheduling on a stopped scheduler")
	}
}

func TestScheduleFor(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	if got := scheduleFor(250 * time.Millisecond).Next(base); !got.Equal(base.Add(250 * time.Millisecond)) {
		t.Errorf("sub-second Next = %v", got)
	}
	if got := scheduleFor(4 * time.Second).Next(base); !got.Equal(base.Add(4 * time.Second)) {
		t.Errorf("whole-second Next = %v", got)
	}
}
