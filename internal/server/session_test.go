package server

import (
	"sync"
	"testing"
)

func TestSession_StateTransitions(t *testing.T) {
	s := NewSession()
	if s.State() != StateUninitialized {
		t.Fatalf("new session state = %d, want uninitialized", s.State())
	}
	s.SetState(StateInitialized)
	if s.State() != StateInitialized {
		t.Fatalf("state = %d, want initialized", s.State())
	}
	s.SetState(StateShuttingDown)
	if s.State() != StateShuttingDown {
		t.Fatalf("state = %d, want shutting down", s.State())
	}
}

func TestSession_CompleteSessionReturnsFinalCounters(t *testing.T) {
	s := NewSession()
	s.IncrementJudgments(3)

	completed, issued := s.CompleteSession()
	if completed != 1 {
		t.Errorf("completed = %d, want 1", completed)
	}
	if issued != 3 {
		t.Errorf("issued = %d, want 3", issued)
	}
}

func TestSession_CountsJudgmentsConcurrently(t *testing.T) {
	s := NewSession()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				s.IncrementJudgments(1)
			}
		}()
	}
	wg.Wait()

	if got := s.JudgmentsIssued(); got != 800 {
		t.Errorf("JudgmentsIssued = %d, want 800", got)
	}
}
