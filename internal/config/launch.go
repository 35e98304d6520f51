package config

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultTimeoutSeconds applies when the launch config omits timeout_seconds.
const DefaultTimeoutSeconds = 30

// ErrConfig is returned when the launch configuration is missing or cannot
// be decoded.
var ErrConfig = errors.New("config: invalid launch configuration")

// LaunchConfig is the wire shape of the initiating configuration.
type LaunchConfig struct {
	RepositoryPath   string   `json:"repository_path"`
	GitArgs          []string `json:"git_args"`
	TimeoutSeconds   *uint32  `json:"timeout_seconds,omitempty"`
	WorkingDirectory *string  `json:"working_directory,omitempty"`
}

// Launch is the validated, immutable form of a LaunchConfig.
type Launch struct {
	repositoryPath   string
	gitArgs          []string
	timeoutSeconds   uint32
	workingDirectory string
}

// launchWire tracks which required fields were present in the payload.
type launchWire struct {
	RepositoryPath   *string   `json:"repository_path"`
	GitArgs          *[]string `json:"git_args"`
	TimeoutSeconds   *uint32   `json:"timeout_seconds"`
	WorkingDirectory *string   `json:"working_directory"`
}

// ParseLaunch decodes the initiating configuration blob. repository_path
// and git_args are required; a JSON null counts as absent.
func ParseLaunch(data []byte) (*Launch, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: no init state provided", ErrConfig)
	}
	var w launchWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	switch {
	case w.RepositoryPath == nil:
		return nil, fmt.Errorf("%w: missing field repository_path", ErrConfig)
	case w.GitArgs == nil:
		return nil, fmt.Errorf("%w: missing field git_args", ErrConfig)
	}
	return NewLaunch(LaunchConfig{
		RepositoryPath:   *w.RepositoryPath,
		GitArgs:          *w.GitArgs,
		TimeoutSeconds:   w.TimeoutSeconds,
		WorkingDirectory: w.WorkingDirectory,
	}), nil
}

// NewLaunch builds a Launch from an already decoded LaunchConfig.
func NewLaunch(lc LaunchConfig) *Launch {
	l := &Launch{
		repositoryPath: lc.RepositoryPath,
		gitArgs:        append([]string(nil), lc.GitArgs...),
		timeoutSeconds: DefaultTimeoutSeconds,
	}
	if lc.TimeoutSeconds != nil {
		l.timeoutSeconds = *lc.TimeoutSeconds
	}
	if lc.WorkingDirectory != nil {
		l.workingDirectory = *lc.WorkingDirectory
	}
	return l
}

// RepositoryPath returns the repository passed to git -C.
func (l *Launch) RepositoryPath() string { return l.repositoryPath }

// GitArgs returns a copy of the git arguments.
func (l *Launch) GitArgs() []string { return append([]string(nil), l.gitArgs...) }

// TimeoutSeconds returns the timeout; zero disables it.
func (l *Launch) TimeoutSeconds() uint32 { return l.timeoutSeconds }

// WorkingDirectory returns the cwd override, or "" for the default.
func (l *Launch) WorkingDirectory() string { return l.workingDirectory }

// Command returns the full command line, including the implicit -C flag.
func (l *Launch) Command() []string {
	return Command(l.repositoryPath, l.gitArgs)
}

// Command builds ["git", "-C", repositoryPath] followed by args.
func Command(repositoryPath string, args []string) []string {
	cmd := make([]string, 0, len(args)+3)
	cmd = append(cmd, "git", "-C", repositoryPath)
	return append(cmd, args...)
}
