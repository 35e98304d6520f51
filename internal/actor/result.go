package actor

// Result is the terminal record describing one execution.
type Result struct {
	Success         bool     `json:"success"`
	ExitCode        *int32   `json:"exit_code"`
	Stdout          string   `json:"stdout"`
	Stderr          string   `json:"stderr"`
	Command         []string `json:"command"`
	ExecutionTimeMs *uint64  `json:"execution_time_ms"`
	Error           *string  `json:"error"`
	RepositoryPath  string   `json:"repository_path"`
}

// Result assembles the terminal record. It has no side effects and is safe
// to call on a state that never started.
func (s *State) Result() Result {
	r := Result{
		Success:        s.ExitCode != nil && *s.ExitCode == 0 && s.ValidationError == nil,
		Stdout:         s.StdoutBuffer,
		Stderr:         s.StderrBuffer,
		Command:        s.Command(),
		RepositoryPath: s.RepositoryPath,
	}
	if s.ExitCode != nil {
		code := *s.ExitCode
		r.ExitCode = &code
	}
	if s.ValidationError != nil {
		msg := *s.ValidationError
		r.Error = &msg
	}
	if s.StartTime != nil && s.CompletedAt != nil {
		if d := s.CompletedAt.Sub(*s.StartTime); d >= 0 {
			ms := uint64(d.Milliseconds())
			r.ExecutionTimeMs = &ms
		}
	}
	return r
}
