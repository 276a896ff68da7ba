package sinktracer

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the scan lifecycle state. Transitions are
// idle -> running -> {paused <-> running} -> {completed | cancelled | failed};
// only the orchestrator mutates it.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Progress is the read-only snapshot handed to pollers.
type Progress struct {
	ID          string    `json:"id"`
	Status      Status    `json:"status"`
	ParsedCount int       `json:"parsedCount"`
	TotalFiles  int       `json:"totalFiles"`
	CurrentFile string    `json:"currentFile"`
	StartedAt   time.Time `json:"startedAt"`
	RatePerMin  float64   `json:"ratePerMin"`
}

// ScanState tracks one active scan. Workers observe the pause and cancel
// flags through it but never mutate; all writes go through the
// orchestrator's bookkeeping methods.
type ScanState struct {
	mu   sync.Mutex
	cond *sync.Cond

	id          string
	status      Status
	parsedCount int
	totalFiles  int
	currentFile string
	startedAt   time.Time
	paused      bool
	cancelled   bool
}

// NewScanState creates an idle state with a fresh scan id.
func NewScanState() *ScanState {
	s := &ScanState{
		id:     uuid.New().String(),
		status: StatusIdle,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// ID returns the scan identifier.
func (s *ScanState) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *ScanState) start(totalFiles int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusRunning
	s.totalFiles = totalFiles
	s.parsedCount = 0
	s.startedAt = time.Now()
}

// advance records one processed file.
func (s *ScanState) advance(file string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parsedCount++
	s.currentFile = file
}

func (s *ScanState) finish(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return
	}
	s.status = st
	s.paused = false
	s.cond.Broadcast()
}

// Pause sets the pause flag. Idempotent; pausing a scan that is not
// running is a no-op success.
func (s *ScanState) Pause() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning && s.status != StatusPaused {
		return true, "scan is not running, nothing to pause"
	}
	if s.paused {
		return true, "scan already paused"
	}
	s.paused = true
	s.status = StatusPaused
	return true, "scan paused"
}

// Resume clears the pause flag and wakes blocked workers.
func (s *ScanState) Resume() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return true, "scan is not paused, nothing to resume"
	}
	s.paused = false
	if s.status == StatusPaused {
		s.status = StatusRunning
	}
	s.cond.Broadcast()
	return true, "scan resumed"
}

// Cancel sets the cancel flag. Workers exit at the next checkpoint;
// in-flight work is not interrupted. Cancelling an idle or finished scan
// is a no-op success.
func (s *ScanState) Cancel() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case StatusIdle, StatusCompleted, StatusCancelled, StatusFailed:
		return true, "no active scan to cancel"
	}
	if s.cancelled {
		return true, "scan already cancelling"
	}
	s.cancelled = true
	s.paused = false
	s.cond.Broadcast()
	return true, "scan cancelling"
}

// Cancelled reports the cancel flag.
func (s *ScanState) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// checkpoint blocks while paused and reports whether work may continue.
// Workers call it between files, never mid-file.
func (s *ScanState) checkpoint() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.paused && !s.cancelled {
		s.cond.Wait()
	}
	return !s.cancelled
}

// Snapshot returns a copy of the current progress for pollers.
func (s *ScanState) Snapshot() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := Progress{
		ID:          s.id,
		Status:      s.status,
		ParsedCount: s.parsedCount,
		TotalFiles:  s.totalFiles,
		CurrentFile: s.currentFile,
		StartedAt:   s.startedAt,
	}
	if !s.startedAt.IsZero() {
		if mins := time.Since(s.startedAt).Minutes(); mins > 0 {
			p.RatePerMin = float64(s.parsedCount) / mins
		}
	}
	return p
}
