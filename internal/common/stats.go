package common

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"
)

// Stats holds atomic counters for telemetry tracking
type Stats struct {
	TotalPredictions    uint64 // frequency/hour/target predictions completed
	TotalTargets        uint64 // circuits evaluated
	FailedTargets       uint64 // circuits rejected or aborted
	CurrentBatchLatency uint64 // nanoseconds

	// Internal state for reporter
	running   atomic.Bool
	stopCh    chan struct{}
	silent    bool
	out       io.Writer
	lastPreds uint64
	lastTime  time.Time

	// Moving average window for the rate
	rateWindow     []float64
	rateWindowSize int
	rateIndex      int
}

// NewStats creates a new Stats instance
func NewStats() *Stats {
	return &Stats{
		stopCh:         make(chan struct{}),
		out:            os.Stdout,
		rateWindow:     make([]float64, 10), // 10-sample moving average (5 seconds)
		rateWindowSize: 10,
	}
}

// AddPredictions atomically increments the prediction counter
func (s *Stats) AddPredictions(count uint64) {
	atomic.AddUint64(&s.TotalPredictions, count)
}

// AddTarget records one finished circuit
func (s *Stats) AddTarget(failed bool) {
	atomic.AddUint64(&s.TotalTargets, 1)
	if failed {
		atomic.AddUint64(&s.FailedTargets, 1)
	}
}

// SetBatchLatency atomically sets the current batch latency in nanoseconds
func (s *Stats) SetBatchLatency(ns uint64) {
	atomic.StoreUint64(&s.CurrentBatchLatency, ns)
}

func (s *Stats) GetTotalPredictions() uint64 { return atomic.LoadUint64(&s.TotalPredictions) }
func (s *Stats) GetTotalTargets() uint64     { return atomic.LoadUint64(&s.TotalTargets) }
func (s *Stats) GetFailedTargets() uint64    { return atomic.LoadUint64(&s.FailedTargets) }
func (s *Stats) GetBatchLatency() uint64     { return atomic.LoadUint64(&s.CurrentBatchLatency) }

// SetSilent enables or disables silent mode
func (s *Stats) SetSilent(silent bool) {
	s.silent = silent
}

// SetOutput redirects the progress lines; must be called before StartReporter.
func (s *Stats) SetOutput(w io.Writer) {
	s.out = w
}

// StartReporter starts a background goroutine that prints telemetry stats
// every 500ms using newline-based output so it interleaves with log.Printf
func (s *Stats) StartReporter() {
	if s.running.Load() {
		return
	}

	s.running.Store(true)
	s.lastTime = time.Now()
	s.lastPreds = 0

	go s.reporterLoop()
}

// StopReporter stops the background reporter goroutine
func (s *Stats) StopReporter() {
	if !s.running.Load() {
		return
	}
	s.running.Store(false)
	close(s.stopCh)
}

func (s *Stats) reporterLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.printStatus(now)
		}
	}
}

func (s *Stats) printStatus(now time.Time) {
	if s.silent {
		return
	}

	elapsed := now.Sub(s.lastTime).Seconds()
	if elapsed < 0.001 {
		return
	}

	current := s.GetTotalPredictions()
	rate := float64(current-s.lastPreds) / elapsed

	s.rateWindow[s.rateIndex] = rate
	s.rateIndex = (s.rateIndex + 1) % s.rateWindowSize

	var sum float64
	var count int
	for _, r := range s.rateWindow {
		if r > 0 {
			sum += r
			count++
		}
	}
	smoothed := 0.0
	if count > 0 {
		smoothed = sum / float64(count)
	}

	fmt.Fprintf(s.out, "[Progress] Rate: %.0f pred/s (avg: %.0f) | Batch: %.2f ms | Targets: %d (failed %d) | Total: %d predictions\n",
		rate,
		smoothed,
		float64(s.GetBatchLatency())/1_000_000,
		s.GetTotalTargets(),
		s.GetFailedTargets(),
		current,
	)

	s.lastPreds = current
	s.lastTime = now
}

// Reset resets all counters (useful for testing or restarting)
func (s *Stats) Reset() {
	atomic.StoreUint64(&s.TotalPredictions, 0)
	atomic.StoreUint64(&s.TotalTargets, 0)
	atomic.StoreUint64(&s.FailedTargets, 0)
	atomic.StoreUint64(&s.CurrentBatchLatency, 0)
	s.lastPreds = 0
	s.lastTime = time.Now()

	for i := range s.rateWindow {
		s.rateWindow[i] = 0
	}
	s.rateIndex = 0
}
