package actor

import (
	"fmt"
	"time"
)

// Each transition reports whether it moved the state to completed. A state
// that is already terminal is never modified.

// AppendStdout appends a stdout chunk from pid, then checks the timeout.
// Chunks from any other process are discarded.
func (s *State) AppendStdout(pid uint64, data []byte, clock Clock) bool {
	if s.Phase().IsTerminal() || !s.owns(pid) {
		return false
	}
	s.StdoutBuffer += decodeText(data)
	return s.CheckTimeout(clock)
}

// AppendStderr appends a stderr chunk from pid. It does not check the
// timeout.
func (s *State) AppendStderr(pid uint64, data []byte) bool {
	if s.Phase().IsTerminal() || !s.owns(pid) {
		return false
	}
	s.StderrBuffer += decodeText(data)
	return false
}

// CheckTimeout completes the state with a timeout error once the configured
// number of seconds has elapsed since start. It never triggers when the
// timeout is zero or the clock is unavailable.
func (s *State) CheckTimeout(clock Clock) bool {
	if s.Phase() != PhaseRunning || s.TimeoutSeconds == 0 || s.StartTime == nil {
		return false
	}
	now, ok := clock.Now()
	if !ok {
		return false
	}
	if now.Sub(*s.StartTime) < time.Duration(s.TimeoutSeconds)*time.Second {
		return false
	}
	s.fail(fmt.Sprintf("Command timed out after %d seconds", s.TimeoutSeconds), clock)
	return true
}

// Exit records the exit code of pid and completes the state. It is the only
// transition that sets ExitCode.
func (s *State) Exit(pid uint64, code int32, clock Clock) bool {
	if s.Phase().IsTerminal() || !s.owns(pid) {
		return false
	}
	s.ExitCode = &code
	s.ActiveProcess = nil
	s.finish(clock)
	return true
}

// Remaining returns the time left before the timeout elapses. ok is false
// when no timeout applies.
func (s *State) Remaining(clock Clock) (d time.Duration, ok bool) {
	if s.Phase() != PhaseRunning || s.TimeoutSeconds == 0 || s.StartTime == nil {
		return 0, false
	}
	now, ok := clock.Now()
	if !ok {
		return 0, false
	}
	d = time.Duration(s.TimeoutSeconds)*time.Second - now.Sub(*s.StartTime)
	return max(d, 0), true
}
