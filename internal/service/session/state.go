// Package session provides session ID generation and the practice session
// state machine.
package session

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a practice session.
type State int

const (
	// StateIdle - No session open.
	StateIdle State = iota
	// StateRecording - Capturing audio and transcript fragments.
	StateRecording
	// StateFinalizing - Capture stopped, result not yet produced.
	StateFinalizing
	// StateCompleted - Result produced. A new session may start.
	StateCompleted
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRecording:
		return "RECORDING"
	case StateFinalizing:
		return "FINALIZING"
	case StateCompleted:
		return "COMPLETED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsOpen returns true while a session holds resources (RECORDING or FINALIZING).
func (s State) IsOpen() bool {
	return s == StateRecording || s == StateFinalizing
}

// Errors for invalid state transitions.
var (
	ErrAlreadyRecording = errors.New("a session is already recording")
	ErrNotRecording     = errors.New("no session is recording")
	ErrNoSession        = errors.New("no session to finalize")
	ErrStillRecording   = errors.New("session is still recording")
)

// Lifecycle manages the state machine for a single evaluator.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	IDLE → RECORDING → FINALIZING → COMPLETED
//	  ↑        │            │            │
//	  └────────┴── Abort() ─┘            │
//	  RECORDING ←──────── Begin() ───────┘
//
// Rules:
//   - IDLE, COMPLETED: Begin starts a new session
//   - RECORDING: Begin is rejected, Stop moves to FINALIZING
//   - FINALIZING: Complete moves to COMPLETED
//   - RECORDING, FINALIZING: Abort returns to IDLE
type Lifecycle struct {
	mu        sync.RWMutex
	sessionID string
	state     State
}

// NewLifecycle creates a new lifecycle in IDLE state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateIdle}
}

// SessionID returns the current or most recent session ID.
func (l *Lifecycle) SessionID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sessionID
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Begin transitions to RECORDING for a new session.
func (l *Lifecycle) Begin(sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateIdle, StateCompleted:
		l.sessionID = sessionID
		l.state = StateRecording
		return nil
	default:
		return ErrAlreadyRecording
	}
}

// Stop transitions RECORDING to FINALIZING.
func (l *Lifecycle) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateRecording {
		return ErrNotRecording
	}
	l.state = StateFinalizing
	return nil
}

// Complete transitions FINALIZING to COMPLETED. Idempotent once completed.
func (l *Lifecycle) Complete() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateFinalizing, StateCompleted:
		l.state = StateCompleted
		return nil
	case StateIdle:
		return ErrNoSession
	case StateRecording:
		return ErrStillRecording
	default:
		return fmt.Errorf("unexpected state: %v", l.state)
	}
}

// Abort returns an open session to IDLE.
// Returns true if a session was aborted, false if none was open.
func (l *Lifecycle) Abort() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.state.IsOpen() {
		return false
	}
	l.state = StateIdle
	return true
}
