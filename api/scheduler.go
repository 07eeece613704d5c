/*
scheduler.go - Background reconciliation scheduler

PURPOSE:

	Periodically re-runs reconciliation over a trailing day window so
	external hours and anomalies stay current without operator action.

DESIGN:
  - Runs a background goroutine with configurable interval
  - Each tick reconciles [today - WindowDays + 1, today]
  - A tick is skipped if a manual pass is still running; the pipeline's
    writes are transactional either way, skipping just avoids duplicate
    work

USAGE:

	scheduler := NewScheduler(handler)
	scheduler.Interval = 6 * time.Hour
	scheduler.Start()
	// ... later
	scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerReconcile (manual pass)
  - recon/pipeline.go: the pass itself
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/recon-engine/engine"
)

// Scheduler re-runs reconciliation on an interval.
type Scheduler struct {
	Handler  *Handler
	Interval time.Duration
	// WindowDays is how many trailing days each pass covers.
	WindowDays int
	Enabled    bool

	ticker  *time.Ticker
	stop    chan struct{}
	stopped bool
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// NewScheduler creates a scheduler with a 6h interval over the last 7 days.
func NewScheduler(handler *Handler) *Scheduler {
	return &Scheduler{
		Handler:    handler,
		Interval:   6 * time.Hour,
		WindowDays: 7,
		Enabled:    true,
		stop:       make(chan struct{}),
	}
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}
	if s.Handler.Pipeline.Source == nil {
		log.Println("[Scheduler] No external time source configured, not starting")
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)
	go s.run()

	log.Printf("[Scheduler] Started: every %v over the last %d days", s.Interval, s.WindowDays)
}

// Stop halts the scheduler and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.ticker == nil || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.ticker.Stop()
	s.mu.Unlock()

	close(s.stop)
	s.wg.Wait()
	log.Println("[Scheduler] Stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ticker.C:
			s.tick()
		case <-s.stop:
			return
		}
	}
}

func (s *Scheduler) tick() {
	h := s.Handler

	h.mu.Lock()
	if h.reconBusy {
		h.mu.Unlock()
		log.Println("[Scheduler] Pass already running, skipping tick")
		return
	}
	h.reconBusy = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.reconBusy = false
		h.mu.Unlock()
	}()

	to := engine.Today()
	from := to.AddDays(-(s.WindowDays - 1))

	run, err := h.Pipeline.Reconcile(context.Background(), from, to, nil)
	if err != nil {
		log.Printf("[Scheduler] Scheduled pass failed: %v", err)
		return
	}
	log.Printf("[Scheduler] Scheduled pass %s completed: %d anomalies", run.ID, run.Anomalies)
}
