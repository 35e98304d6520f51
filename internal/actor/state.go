package actor

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/deixis/gitcmd/internal/config"
)

// Phase is the lifecycle position of an execution.
type Phase int

const (
	// PhaseNotStarted is the state before Start has run.
	PhaseNotStarted Phase = iota

	// PhaseRunning means a process is active and has not reported exit.
	PhaseRunning

	// PhaseCompleted means the process exited or the execution timed out.
	PhaseCompleted

	// PhaseValidationFailed means the execution ended before any process
	// was spawned: the pre-flight check or the spawn itself failed.
	PhaseValidationFailed
)

// String returns a human-readable name for the phase.
func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseRunning:
		return "running"
	case PhaseCompleted:
		return "completed"
	case PhaseValidationFailed:
		return "validation_failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition may alter the state.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseValidationFailed
}

// State is the execution state handed to the host between deliveries.
// The JSON form keeps the flag fields; Phase derives the tagged state.
type State struct {
	RepositoryPath   string   `json:"repository_path"`
	GitArgs          []string `json:"git_args"`
	TimeoutSeconds   uint32   `json:"timeout_seconds"`
	WorkingDirectory *string  `json:"working_directory"`

	ActiveProcess   *uint64 `json:"active_process"`
	StdoutBuffer    string  `json:"stdout_buffer"`
	StderrBuffer    string  `json:"stderr_buffer"`
	ExitCode        *int32  `json:"exit_code"`
	Completed       bool    `json:"completed"`
	ValidationError *string `json:"validation_error"`

	Spawned     bool       `json:"spawned,omitempty"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewState copies a launch descriptor into a fresh, not yet started state.
func NewState(l *config.Launch) *State {
	s := &State{
		RepositoryPath: l.RepositoryPath(),
		GitArgs:        l.GitArgs(),
		TimeoutSeconds: l.TimeoutSeconds(),
	}
	if s.GitArgs == nil {
		s.GitArgs = []string{}
	}
	if wd := l.WorkingDirectory(); wd != "" {
		s.WorkingDirectory = &wd
	}
	return s
}

// Phase derives the lifecycle phase from the state flags.
func (s *State) Phase() Phase {
	switch {
	case s.Completed && !s.Spawned:
		return PhaseValidationFailed
	case s.Completed:
		return PhaseCompleted
	case s.ActiveProcess != nil:
		return PhaseRunning
	default:
		return PhaseNotStarted
	}
}

// Command returns the full git command line, including the -C flag.
func (s *State) Command() []string {
	return config.Command(s.RepositoryPath, s.GitArgs)
}

// owns reports whether pid is the active process.
func (s *State) owns(pid uint64) bool {
	return s.ActiveProcess != nil && *s.ActiveProcess == pid
}

// finish marks the state completed, stamping the completion time when the
// clock can be read.
func (s *State) finish(clock Clock) {
	s.Completed = true
	if now, ok := clock.Now(); ok {
		s.CompletedAt = &now
	}
}

// fail records msg as the terminal error and completes the state.
func (s *State) fail(msg string, clock Clock) {
	s.ValidationError = &msg
	s.finish(clock)
}

// decodeText converts a chunk to text, replacing invalid UTF-8 rather than
// rejecting it.
func decodeText(p []byte) string {
	return strings.ToValidUTF8(string(p), "\uFFFD")
}

// Encode serializes the state for the host.
func (s *State) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding state: %w", err)
	}
	return data, nil
}

// DecodeState restores a state previously produced by Encode.
func DecodeState(data []byte) (*State, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: no state provided", ErrState)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrState, err)
	}
	for _, name := range requiredStateFields {
		if v, ok := fields[name]; !ok || string(v) == "null" {
			return nil, fmt.Errorf("%w: missing field %s", ErrState, name)
		}
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrState, err)
	}
	return &s, nil
}

// requiredStateFields are written by every Encode.
var requiredStateFields = []string{"repository_path", "git_args", "completed"}
