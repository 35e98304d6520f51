// Package supervisor spawns child processes on behalf of the host and
// reports their output and exit as a stream of events.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultBufferSize is used when ProcessConfig.BufferSize is zero.
const DefaultBufferSize = 1 << 20 // 1 MiB

var (
	// ErrSpawn wraps every failure to start a process.
	ErrSpawn = errors.New("supervisor: spawn failed")
	// ErrClosed is returned by Spawn once the supervisor is closed.
	ErrClosed = errors.New("supervisor: closed")
)

// OutputMode selects how a stream is cut into chunks.
type OutputMode int

const (
	// Raw delivers whatever each read returns, up to the buffer size.
	Raw OutputMode = iota
	// LineByLine delivers one newline-terminated line per chunk.
	LineByLine
)

// ProcessConfig describes a process to spawn.
type ProcessConfig struct {
	Program          string
	Args             []string
	Env              []string // KEY=VALUE appended to the inherited environment
	Cwd              string   // empty inherits the host cwd
	BufferSize       int
	StdoutMode       OutputMode
	StderrMode       OutputMode
	ExecutionTimeout *time.Duration // nil never kills
}

// EventKind identifies an Event.
type EventKind int

const (
	EventStdout EventKind = iota
	EventStderr
	EventExit
)

func (k EventKind) String() string {
	switch k {
	case EventStdout:
		return "stdout"
	case EventStderr:
		return "stderr"
	case EventExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Event is a notification about a supervised process. For a given PID all
// stdout and stderr events are sent before its exit event.
type Event struct {
	Kind     EventKind
	PID      uint64
	Data     []byte // stdout/stderr only
	ExitCode int32  // exit only; -1 when killed by a signal
}

// Supervisor owns spawned processes until they exit or it is closed.
type Supervisor struct {
	// MaxOutput caps the bytes forwarded per stream; the rest is discarded.
	// Zero means unlimited.
	MaxOutput int
	Logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	events chan Event
	pids   atomic.Uint64

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a Supervisor. Call Close to kill remaining processes and
// release its goroutines.
func New(maxOutput int, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		MaxOutput: maxOutput,
		Logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		events:    make(chan Event, 64),
	}
}

// Events returns the channel every process event is sent on. It is closed
// by Close once all processes are gone.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// Spawn starts a process and returns its identifier. Identifiers start at 1
// and are never reused by the same Supervisor.
func (s *Supervisor) Spawn(ctx context.Context, cfg ProcessConfig) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	if cfg.Program == "" {
		return 0, fmt.Errorf("%w: empty program", ErrSpawn)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("%w: %w", ErrSpawn, ErrClosed)
	}

	var (
		procCtx context.Context
		cancel  context.CancelFunc
	)
	if cfg.ExecutionTimeout != nil {
		procCtx, cancel = context.WithTimeout(s.ctx, *cfg.ExecutionTimeout)
	} else {
		procCtx, cancel = context.WithCancel(s.ctx)
	}

	cmd := exec.CommandContext(procCtx, cfg.Program, cfg.Args...)
	cmd.Dir = cfg.Cwd
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	cmd.WaitDelay = time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return 0, fmt.Errorf("%w: stdout pipe: %w", ErrSpawn, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return 0, fmt.Errorf("%w: stderr pipe: %w", ErrSpawn, err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return 0, fmt.Errorf("%w: %s: %w", ErrSpawn, cfg.Program, err)
	}

	pid := s.pids.Add(1)
	s.Logger.Debug("process started", "pid", pid, "os_pid", cmd.Process.Pid, "program", cfg.Program)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.supervise(procCtx, pid, cmd, stdout, stderr, cfg)
	}()
	return pid, nil
}

// supervise forwards both streams until EOF, then reaps the process and
// reports its exit.
func (s *Supervisor) supervise(ctx context.Context, pid uint64, cmd *exec.Cmd, stdout, stderr io.ReadCloser, cfg ProcessConfig) {
	size := cfg.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}

	// A killed process can leave grandchildren holding the pipes open.
	// Once the kill grace period is over, close the read side ourselves.
	var (
		forceMu sync.Mutex
		force   *time.Timer
	)
	stop := context.AfterFunc(ctx, func() {
		forceMu.Lock()
		defer forceMu.Unlock()
		force = time.AfterFunc(cmd.WaitDelay, func() {
			_ = stdout.Close()
			_ = stderr.Close()
		})
	})
	defer func() {
		stop()
		forceMu.Lock()
		if force != nil {
			force.Stop()
		}
		forceMu.Unlock()
	}()

	var g errgroup.Group
	g.Go(func() error {
		return s.pump(pid, EventStdout, stdout, cfg.StdoutMode, size)
	})
	g.Go(func() error {
		return s.pump(pid, EventStderr, stderr, cfg.StderrMode, size)
	})
	if err := g.Wait(); err != nil {
		s.Logger.Debug("stream forwarding stopped", "pid", pid, "error", err)
	}

	code := exitCode(cmd.Wait())
	s.Logger.Debug("process exited", "pid", pid, "exit_code", code)
	s.emit(Event{Kind: EventExit, PID: pid, ExitCode: code})
}

func (s *Supervisor) pump(pid uint64, kind EventKind, r io.Reader, mode OutputMode, size int) error {
	lim := &limiter{limit: s.MaxOutput}
	send := func(p []byte) error {
		p = lim.take(p)
		if len(p) == 0 {
			return nil
		}
		data := append([]byte(nil), p...)
		if !s.emit(Event{Kind: kind, PID: pid, Data: data}) {
			return ErrClosed
		}
		return nil
	}

	if mode == LineByLine {
		br := bufio.NewReaderSize(r, size)
		for {
			line, err := br.ReadBytes('\n')
			if len(line) > 0 {
				if serr := send(line); serr != nil {
					return serr
				}
			}
			if err != nil {
				return readErr(err)
			}
		}
	}

	buf := make([]byte, size)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if serr := send(buf[:n]); serr != nil {
				return serr
			}
		}
		if err != nil {
			return readErr(err)
		}
	}
}

// emit sends ev unless the supervisor is closed.
func (s *Supervisor) emit(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Close kills processes that are still running, waits for their
// goroutines and closes the event channel. It is safe to call twice.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	close(s.events)
	return nil
}

func exitCode(err error) int32 {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return int32(exitErr.ExitCode())
	}
	return -1
}

func readErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

// limiter passes through up to limit bytes, then silently drops the rest.
type limiter struct {
	limit int
	seen  int
}

func (l *limiter) take(p []byte) []byte {
	if l.limit <= 0 {
		return p
	}
	remaining := l.limit - l.seen
	if remaining <= 0 {
		return nil
	}
	if len(p) > remaining {
		p = p[:remaining]
	}
	l.seen += len(p)
	return p
}
