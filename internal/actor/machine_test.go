package actor

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/deixis/gitcmd/internal/config"
)

func runningState(pid uint64, timeout uint32, start *time.Time) *State {
	s := NewState(config.NewLaunch(config.LaunchConfig{
		RepositoryPath: "/repo",
		GitArgs:        []string{"log"},
		TimeoutSeconds: &timeout,
	}))
	s.ActiveProcess = &pid
	s.Spawned = true
	s.StartTime = start
	return s
}

func TestAppendStdout_PreservesOrder(t *testing.T) {
	s := runningState(1, 0, nil)
	var want strings.Builder
	for i := range 100 {
		chunk := fmt.Sprintf("line %d\n", i)
		want.WriteString(chunk)
		if s.AppendStdout(1, []byte(chunk), NoClock{}) {
			t.Fatal("append completed the state")
		}
	}
	if s.StdoutBuffer != want.String() {
		t.Errorf("StdoutBuffer mismatch: got %d bytes, want %d", len(s.StdoutBuffer), want.Len())
	}
}

func TestAppendStderr_PreservesOrder(t *testing.T) {
	s := runningState(1, 0, nil)
	for _, c := range []string{"a", "", "b", "c"} {
		s.AppendStderr(1, []byte(c))
	}
	if s.StderrBuffer != "abc" {
		t.Errorf("StderrBuffer = %q, want abc", s.StderrBuffer)
	}
}

func TestAppend_NotStartedDiscards(t *testing.T) {
	s := NewState(config.NewLaunch(config.LaunchConfig{RepositoryPath: "/repo"}))
	s.AppendStdout(1, []byte("x"), NoClock{})
	s.AppendStderr(1, []byte("x"))
	if s.StdoutBuffer != "" || s.StderrBuffer != "" {
		t.Errorf("buffers = %q/%q, want empty", s.StdoutBuffer, s.StderrBuffer)
	}
	if s.Exit(1, 0, NoClock{}) {
		t.Error("Exit completed a state that never started")
	}
}

func TestExit_OnlyMatchingPID(t *testing.T) {
	s := runningState(7, 0, nil)
	if s.Exit(9, 0, NoClock{}) {
		t.Fatal("Exit(9) completed state tracking 7")
	}
	if s.ExitCode != nil || s.Completed {
		t.Errorf("state mutated by mismatched exit: %+v", s)
	}
	if !s.Exit(7, 2, NoClock{}) {
		t.Fatal("Exit(7) did not complete")
	}
	if s.ExitCode == nil || *s.ExitCode != 2 {
		t.Errorf("ExitCode = %v, want 2", s.ExitCode)
	}
	if s.Exit(7, 3, NoClock{}) {
		t.Error("second Exit reported completion")
	}
	if *s.ExitCode != 2 {
		t.Errorf("ExitCode = %d after duplicate, want 2", *s.ExitCode)
	}
}

func TestCheckTimeout_Boundary(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	at := func(d time.Duration) Clock {
		return ClockFunc(func() (time.Time, bool) { return start.Add(d), true })
	}

	s := runningState(1, 3, &start)
	if s.CheckTimeout(at(3*time.Second - time.Nanosecond)) {
		t.Fatal("timed out before the limit")
	}
	if !s.CheckTimeout(at(3 * time.Second)) {
		t.Fatal("did not time out at the limit")
	}
	if s.CheckTimeout(at(time.Hour)) {
		t.Error("timeout reported twice")
	}
}

func TestCheckTimeout_ClockLostAfterStart(t *testing.T) {
	start := time.Now()
	s := runningState(1, 1, &start)
	if s.CheckTimeout(NoClock{}) {
		t.Error("timed out without a current reading")
	}
}

func TestRemaining(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := ClockFunc(func() (time.Time, bool) { return start.Add(4 * time.Second), true })

	s := runningState(1, 10, &start)
	d, ok := s.Remaining(clock)
	if !ok || d != 6*time.Second {
		t.Errorf("Remaining() = %v, %v; want 6s, true", d, ok)
	}

	late := ClockFunc(func() (time.Time, bool) { return start.Add(time.Minute), true })
	if d, ok := s.Remaining(late); !ok || d != 0 {
		t.Errorf("Remaining(late) = %v, %v; want 0, true", d, ok)
	}

	if _, ok := runningState(1, 0, &start).Remaining(clock); ok {
		t.Error("Remaining() ok with zero timeout")
	}
	if _, ok := runningState(1, 10, nil).Remaining(clock); ok {
		t.Error("Remaining() ok without start time")
	}
}

func TestResult_SuccessTruthTable(t *testing.T) {
	zero, one := int32(0), int32(1)
	msg := "boom"
	cases := []struct {
		name string
		exit *int32
		err  *string
		want bool
	}{
		{"exit 0", &zero, nil, true},
		{"exit 1", &one, nil, false},
		{"no exit", nil, nil, false},
		{"exit 0 with error", &zero, &msg, false},
		{"error only", nil, &msg, false},
	}
	for _, tc := range cases {
		s := &State{ExitCode: tc.exit, ValidationError: tc.err}
		if got := s.Result().Success; got != tc.want {
			t.Errorf("%s: Success = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestResult_NeverStarted(t *testing.T) {
	var s State
	r := s.Result()
	if r.Success || r.ExitCode != nil || r.Error != nil || r.ExecutionTimeMs != nil {
		t.Errorf("Result() of empty state = %+v", r)
	}
	if len(r.Command) != 3 || r.Command[0] != "git" || r.Command[1] != "-C" {
		t.Errorf("Command = %v, want git -C prefix", r.Command)
	}
}

func TestResult_CopiesPointers(t *testing.T) {
	code := int32(4)
	msg := "x"
	s := &State{ExitCode: &code, ValidationError: &msg}
	r := s.Result()
	*s.ExitCode = 5
	*s.ValidationError = "y"
	if *r.ExitCode != 4 || *r.Error != "x" {
		t.Errorf("Result aliases state: exit=%d error=%q", *r.ExitCode, *r.Error)
	}
}

func TestPhase(t *testing.T) {
	pid := uint64(1)
	cases := []struct {
		state State
		want  Phase
	}{
		{State{}, PhaseNotStarted},
		{State{ActiveProcess: &pid, Spawned: true}, PhaseRunning},
		{State{Completed: true, Spawned: true}, PhaseCompleted},
		{State{Completed: true, Spawned: true, ActiveProcess: &pid}, PhaseCompleted},
		{State{Completed: true}, PhaseValidationFailed},
	}
	for _, tc := range cases {
		if got := tc.state.Phase(); got != tc.want {
			t.Errorf("Phase(%+v) = %v, want %v", tc.state, got, tc.want)
		}
	}
}

func TestPhase_String(t *testing.T) {
	for p, want := range map[Phase]string{
		PhaseNotStarted:       "not_started",
		PhaseRunning:          "running",
		PhaseCompleted:        "completed",
		PhaseValidationFailed: "validation_failed",
		Phase(42):             "unknown",
	} {
		if got := p.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", p, got, want)
		}
	}
	if PhaseRunning.IsTerminal() || !PhaseValidationFailed.IsTerminal() {
		t.Error("IsTerminal mismatch")
	}
}

func TestDecodeState_RoundTrip(t *testing.T) {
	start := time.Date(2026, 5, 6, 7, 8, 9, 123456789, time.UTC)
	s := runningState(3, 30, &start)
	s.StdoutBuffer = "out"

	data, err := s.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := DecodeState(data)
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	if got.Phase() != PhaseRunning || *got.ActiveProcess != 3 || got.StdoutBuffer != "out" || !got.StartTime.Equal(start) {
		t.Errorf("round trip lost data: %+v", got)
	}
}

func TestDecodeState_MissingFields(t *testing.T) {
	for _, blob := range []string{
		`null`,
		`{}`,
		`{"git_args":["log"],"completed":false}`,
		`{"repository_path":"/r","completed":false}`,
		`{"repository_path":"/r","git_args":["log"]}`,
		`{"repository_path":"/r","git_args":["log"],"completed":null}`,
	} {
		if _, err := DecodeState([]byte(blob)); !errors.Is(err, ErrState) {
			t.Errorf("DecodeState(%s) err = %v, want ErrState", blob, err)
		}
	}
}
