// Package report persists the terminal records of git command runs so they
// can be inspected after the run has finished.
package report

import (
	"errors"
	"time"

	"github.com/deixis/gitcmd/internal/actor"
)

// ErrNotFound is returned by Load when no record exists for the run ID.
var ErrNotFound = errors.New("report: run not found")

// Store persists and retrieves run records.
type Store interface {
	Save(rec *Record) error
	Load(runID string) (*Record, error)
}

// Record is one finished run: the host-assigned ID, when it started, and the
// result the actor emitted on shutdown.
type Record struct {
	ID        string       `json:"id"`
	StartedAt time.Time    `json:"started_at"`
	Result    actor.Result `json:"result"`
}

// Stream selects which captured output to return.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
	All    Stream = "all"
)

// ParseStream maps a user supplied stream name to a Stream. The empty string
// selects All.
func ParseStream(s string) (Stream, bool) {
	switch Stream(s) {
	case "", All:
		return All, true
	case Stdout, Stderr:
		return Stream(s), true
	default:
		return "", false
	}
}

// Output returns the captured text for the requested stream.
func (r *Record) Output(s Stream) string {
	switch s {
	case Stdout:
		return r.Result.Stdout
	case Stderr:
		return r.Result.Stderr
	}
	out := r.Result.Stdout
	if r.Result.Stderr != "" {
		if out != "" && out[len(out)-1] != '\n' {
			out += "\n"
		}
		out += r.Result.Stderr
	}
	return out
}
