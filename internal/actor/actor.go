// Package actor implements the git command lifecycle as a state machine
// whose state lives entirely outside the process between deliveries.
//
// Every handler decodes the state it is handed, applies exactly one
// transition and returns the re-encoded state. The delivery that completes
// the execution also hands the terminal Result to the Shutdowner.
package actor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deixis/gitcmd/internal/config"
	"github.com/deixis/gitcmd/internal/supervisor"
)

// BufferSize is the capture buffer requested from the supervisor per stream.
const BufferSize = 1 << 20 // 1 MiB

// ErrState is returned when the host hands back a missing or corrupted state.
var ErrState = errors.New("actor: invalid state")

// Spawner starts a child process and returns its identifier.
// Implemented by supervisor.Supervisor.
type Spawner interface {
	Spawn(ctx context.Context, cfg supervisor.ProcessConfig) (uint64, error)
}

// Shutdowner receives the terminal payload. It is called once per execution.
type Shutdowner interface {
	Shutdown(ctx context.Context, payload []byte) error
}

// ShutdownFunc adapts a function to Shutdowner.
type ShutdownFunc func(ctx context.Context, payload []byte) error

func (f ShutdownFunc) Shutdown(ctx context.Context, payload []byte) error { return f(ctx, payload) }

// Actor holds the host-provided collaborators. It keeps no execution state.
type Actor struct {
	Spawner    Spawner
	Shutdowner Shutdowner
	Clock      Clock     // nil means NoClock
	Validate   Validator // nil means AcceptAll
	Logger     *slog.Logger
}

// Init decodes the launch configuration, starts the command and returns the
// first state. A missing or undecodable configuration fails with
// config.ErrConfig and produces no state.
func (a *Actor) Init(ctx context.Context, launchConfig []byte, actorID string) ([]byte, error) {
	a.logger().DebugContext(ctx, "initializing git command actor", "actor_id", actorID)

	launch, err := config.ParseLaunch(launchConfig)
	if err != nil {
		return nil, err
	}

	s := NewState(launch)
	a.logger().InfoContext(ctx, "starting git command",
		"repository_path", s.RepositoryPath, "command", s.Command(), "timeout_seconds", s.TimeoutSeconds)

	a.start(ctx, s)
	return a.commit(ctx, "init", s, s.Phase().IsTerminal())
}

// HandleStdout applies a stdout chunk from pid.
func (a *Actor) HandleStdout(ctx context.Context, state []byte, pid uint64, data []byte) ([]byte, error) {
	return a.apply(ctx, "stdout", state, func(s *State) bool {
		a.logger().DebugContext(ctx, "git stdout", "pid", pid, "bytes", len(data))
		return s.AppendStdout(pid, data, a.clock())
	})
}

// HandleStderr applies a stderr chunk from pid.
func (a *Actor) HandleStderr(ctx context.Context, state []byte, pid uint64, data []byte) ([]byte, error) {
	return a.apply(ctx, "stderr", state, func(s *State) bool {
		a.logger().DebugContext(ctx, "git stderr", "pid", pid, "bytes", len(data))
		return s.AppendStderr(pid, data)
	})
}

// HandleExit applies the exit notification of pid.
func (a *Actor) HandleExit(ctx context.Context, state []byte, pid uint64, exitCode int32) ([]byte, error) {
	return a.apply(ctx, "exit", state, func(s *State) bool {
		if !s.owns(pid) {
			a.logger().DebugContext(ctx, "ignoring exit of untracked process", "pid", pid)
			return false
		}
		return s.Exit(pid, exitCode, a.clock())
	})
}

// HandleDeadline runs the timeout check from an independent timer.
func (a *Actor) HandleDeadline(ctx context.Context, state []byte) ([]byte, error) {
	return a.apply(ctx, "deadline", state, func(s *State) bool {
		return s.CheckTimeout(a.clock())
	})
}

// Remaining reports how long the host may wait before delivering a deadline
// event. ok is false when no timeout applies to the state.
func (a *Actor) Remaining(state []byte) (time.Duration, bool) {
	s, err := DecodeState(state)
	if err != nil {
		return 0, false
	}
	return s.Remaining(a.clock())
}

func (a *Actor) apply(ctx context.Context, event string, state []byte, transition func(*State) bool) ([]byte, error) {
	s, err := DecodeState(state)
	if err != nil {
		return nil, err
	}
	before := s.Phase()
	done := transition(s)
	a.logger().DebugContext(ctx, "transition", "event", event, "from", before.String(), "to", s.Phase().String())
	return a.commit(ctx, event, s, done)
}

// commit shuts the actor down when the transition completed the state, then
// encodes the state.
func (a *Actor) commit(ctx context.Context, event string, s *State, done bool) ([]byte, error) {
	if done {
		a.shutdown(ctx, event, s)
	}
	return s.Encode()
}

func (a *Actor) shutdown(ctx context.Context, event string, s *State) {
	result := s.Result()
	switch {
	case result.Error != nil:
		a.logger().InfoContext(ctx, "git command failed", "event", event, "error", *result.Error)
	case result.Success:
		a.logger().InfoContext(ctx, "git command completed successfully", "event", event,
			"stdout_bytes", len(result.Stdout), "stderr_bytes", len(result.Stderr))
	case result.ExitCode != nil:
		a.logger().InfoContext(ctx, "git command exited with failure", "event", event,
			"exit_code", *result.ExitCode, "stderr_bytes", len(result.Stderr))
	}

	payload, err := json.Marshal(result)
	if err != nil {
		a.logger().ErrorContext(ctx, "encoding result failed", "error", err)
		return
	}
	if a.Shutdowner == nil {
		return
	}
	if err := a.Shutdowner.Shutdown(ctx, payload); err != nil {
		a.logger().WarnContext(ctx, "shutdown request failed", "error", err)
	}
}

// start validates the repository and spawns git. Failures complete the
// state without ever entering PhaseRunning.
func (a *Actor) start(ctx context.Context, s *State) {
	if s.Phase() != PhaseNotStarted {
		return
	}
	clock := a.clock()

	if err := a.validate()(ctx, s.RepositoryPath); err != nil {
		a.logger().InfoContext(ctx, "repository validation failed", "error", err)
		s.fail(err.Error(), clock)
		return
	}

	if now, ok := clock.Now(); ok {
		s.StartTime = &now
	} else {
		a.logger().DebugContext(ctx, "clock unavailable; timeout and elapsed time disabled")
	}

	if a.Spawner == nil {
		s.fail("Failed to spawn git process: no process supervisor", clock)
		return
	}
	pid, err := a.Spawner.Spawn(ctx, processConfig(s))
	if err != nil {
		a.logger().WarnContext(ctx, "spawning git failed", "error", err)
		s.fail(fmt.Sprintf("Failed to spawn git process: %v", err), clock)
		return
	}

	a.logger().DebugContext(ctx, "git process started", "pid", pid)
	s.ActiveProcess = &pid
	s.Spawned = true
}

// processConfig builds the spawn request. The timeout is enforced by the
// state machine, so none is pushed down to the supervisor.
func processConfig(s *State) supervisor.ProcessConfig {
	cmd := s.Command()
	cfg := supervisor.ProcessConfig{
		Program:    cmd[0],
		Args:       cmd[1:],
		BufferSize: BufferSize,
		StdoutMode: supervisor.Raw,
		StderrMode: supervisor.Raw,
	}
	if s.WorkingDirectory != nil {
		cfg.Cwd = *s.WorkingDirectory
	}
	return cfg
}

func (a *Actor) clock() Clock {
	if a.Clock == nil {
		return NoClock{}
	}
	return a.Clock
}

func (a *Actor) validate() Validator {
	if a.Validate == nil {
		return AcceptAll
	}
	return a.Validate
}

func (a *Actor) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}
