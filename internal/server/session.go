package server

import "sync"

// SessionState tracks the lifecycle of a server session.
type SessionState int

const (
	StateUninitialized SessionState = iota
	StateInitialized
	StateShuttingDown
)

// Session holds per-connection state: the lifecycle phase and counters
// reported at shutdown.
type Session struct {
	mu                sync.Mutex
	state             SessionState
	judgmentsIssued   int64
	sessionsCompleted int64
}

// NewSession creates a Session in the uninitialized state.
func NewSession() *Session {
	return &Session{state: StateUninitialized}
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState transitions the session to the given state.
func (s *Session) SetState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// IncrementJudgments adds n to the judgments-issued counter.
func (s *Session) IncrementJudgments(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.judgmentsIssued += int64(n)
}

// JudgmentsIssued returns the number of judgments issued this session.
func (s *Session) JudgmentsIssued() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.judgmentsIssued
}

// CompleteSession marks the session completed and returns the final
// counters in one atomic read.
func (s *Session) CompleteSession() (completed, issued int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionsCompleted++
	return s.sessionsCompleted, s.judgmentsIssued
}
