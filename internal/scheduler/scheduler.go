// Package scheduler runs named periodic jobs. Each call site constructs and
// owns its Scheduler; there is no process-wide instance.
package scheduler

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps a cron runner whose jobs never overlap themselves and
// survive panics.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	started bool
	stopped bool
	names   map[cron.EntryID]string
	firsts  sync.WaitGroup
}

// New creates a Scheduler. Its runner starts with the first job.
func New() *Scheduler {
	logger := cron.PrintfLogger(log.New(os.Stderr, "scheduler: ", log.LstdFlags))
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		)),
		names: make(map[cron.EntryID]string),
	}
}

// Handle identifies one scheduled job.
type Handle struct {
	s    *Scheduler
	id   cron.EntryID
	once sync.Once
}

// Cancel removes the job. A run already in progress finishes on its own.
// Calling Cancel more than once is harmless.
func (h *Handle) Cancel() {
	h.once.Do(func() {
		h.s.mu.Lock()
		delete(h.s.names, h.id)
		h.s.mu.Unlock()
		h.s.cron.Remove(h.id)
	})
}

// Every schedules fn to run once right away and then every interval. A
// tick that fires while the previous run of the same job is still going is
// skipped.
func (s *Scheduler) Every(name string, interval time.Duration, fn func()) (*Handle, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("scheduler: %s: interval must be positive, got %v", name, interval)
	}
	if fn == nil {
		return nil, fmt.Errorf("scheduler: %s: fn is required", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, fmt.Errorf("scheduler: %s: scheduler stopped", name)
	}

	id := s.cron.Schedule(scheduleFor(interval), cron.FuncJob(fn))
	s.names[id] = name
	if !s.started {
		s.cron.Start()
		s.started = true
	}

	// The wrapped job carries the skip-if-running guard, so the immediate
	// run and the first tick cannot overlap either.
	job := s.cron.Entry(id).WrappedJob
	s.firsts.Add(1)
	go func() {
		defer s.firsts.Done()
		job.Run()
	}()

	return &Handle{s: s, id: id}, nil
}

// jobs returns the names of the currently scheduled jobs.
func (s *Scheduler) jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.cron.Entries() {
		if name, ok := s.names[e.ID]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Stop halts the runner and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.cron.Stop().Done()
	}
	s.firsts.Wait()
}

// scheduleFor uses cron's own @every schedule for whole-second intervals
// and a plain fixed delay otherwise; cron.Every rounds below one second.
func scheduleFor(interval time.Duration) cron.Schedule {
	if interval >= time.Second && interval%time.Second == 0 {
		return cron.Every(interval)
	}
	return fixedDelay(interval)
}

type fixedDelay time.Duration

func (d fixedDelay) Next(t time.Time) time.Time {
	return t.Add(time.Duration(d))
}
