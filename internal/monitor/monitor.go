// Package monitor periodically snapshots the service's runtime state to
// a status file so operators can inspect a running instance without
// hitting the API.
package monitor

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/rlviewer/telemetry/internal/job"
)

// Dependencies holds everything the monitor observes.
type Dependencies struct {
	Jobs     *job.Store
	QueueLen func() int
	DataDir  string
	Logger   *slog.Logger
}

// Status is one snapshot of the service's runtime state.
type Status struct {
	Time         time.Time `json:"time"`
	UptimeSecs   float64   `json:"uptime_secs"`
	TrackedJobs  int       `json:"tracked_jobs"`
	QueuedJobs   int       `json:"queued_jobs"`
	Goroutines   int       `json:"goroutines"`
	HeapAllocMiB float64   `json:"heap_alloc_mib"`
}

// Service writes runtime snapshots on a fixed interval.
type Service struct {
	deps      Dependencies
	started   time.Time
	interval  time.Duration
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
}

// NewService creates a monitor service. A non-positive interval defaults
// to ten seconds.
func NewService(deps Dependencies, interval time.Duration) *Service {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		deps:     deps,
		interval: interval,
		started:  time.Now(),
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the monitor loop is active.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Snapshot builds the current runtime status.
func (s *Service) Snapshot() Status {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	st := Status{
		Time:         time.Now(),
		UptimeSecs:   time.Since(s.started).Seconds(),
		Goroutines:   runtime.NumGoroutine(),
		HeapAllocMiB: float64(mem.HeapAlloc) / (1 << 20),
	}
	if s.deps.Jobs != nil {
		st.TrackedJobs = s.deps.Jobs.Len()
	}
	if s.deps.QueueLen != nil {
		st.QueuedJobs = s.deps.QueueLen()
	}
	return st
}

// Start launches the monitor goroutine. Starting a running monitor is a
// no-op.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	statusPath := filepath.Join(s.deps.DataDir, "status.json")

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		log := s.deps.Logger
		log.Debug("Status monitor started", "path", statusPath, "interval", s.interval)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				if err := s.writeStatus(statusPath); err != nil {
					log.Error("Writing status file failed", "error", err)
				}
			}
		}
	}()

	return nil
}

func (s *Service) writeStatus(path string) error {
	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Stop stops the monitor loop.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		close(s.stopChan)
	}
}
