// Package session orchestrates a text-to-speech conversion: chunking, a
// bounded synthesis worker pool, classified retries, index-ordered merging
// and cleanup.
package session

import (
	"fmt"
	"sync"

	"vocify/pkg/faults"
)

// ChunkStatus tracks a chunk through the pipeline.
type ChunkStatus string

const (
	ChunkPending ChunkStatus = "pending"
	ChunkRunning ChunkStatus = "running"
	ChunkDone    ChunkStatus = "done"
	ChunkFailed  ChunkStatus = "failed"
)

// Status is the overall session outcome.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ChunkJob is one unit of synthesis work. Index fixes the chunk's position
// in the final audio regardless of completion order.
type ChunkJob struct {
	Index      int
	Text       string
	Status     ChunkStatus
	Attempts   int
	OutputPath string
	Err        *faults.Record
}

// Session is the state of one conversion run.
type Session struct {
	ID           string
	VoiceID      string
	Speed        float64
	OutputFormat string
	OutputPath   string
	Status       Status
	Chunks       []*ChunkJob

	mu     sync.Mutex
	native string // format the engine actually produced
}

// update mutates session state under the lock.
func (s *Session) update(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// setNative records the engine's output format, first writer wins.
func (s *Session) setNative(format string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.native == "" {
		s.native = format
	}
}

// Progress is delivered to the OnProgress callback after every chunk state
// change.
type Progress struct {
	SessionID string
	Index     int
	Status    ChunkStatus
	Attempts  int
	Completed int
	Total     int
}

// SessionError reports a failed or cancelled session. The session is
// retained so the host can inspect per-chunk state and partial output.
type SessionError struct {
	Session *Session
	Record  *faults.Record
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s %s: %s", e.Session.ID, e.Session.Status, e.Record.UserMessage)
}

func (e *SessionError) Unwrap() error { return e.Record }

// Retryable defers to the classified record.
func (e *SessionError) Retryable() bool { return e.Record.Retryable() }
