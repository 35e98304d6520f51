// Package host drives one git command actor to completion: it owns the
// serialized state, delivers supervisor events and deadline ticks one at a
// time, and collects the result handed to shutdown.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/deixis/gitcmd/internal/actor"
	"github.com/deixis/gitcmd/internal/config"
	"github.com/deixis/gitcmd/internal/logging"
	"github.com/deixis/gitcmd/internal/metrics"
	"github.com/deixis/gitcmd/internal/report"
	"github.com/deixis/gitcmd/internal/supervisor"
)

// ErrAbandoned is returned when the host stops waiting for a result, either
// because ctx was cancelled or the host deadline elapsed.
var ErrAbandoned = errors.New("host: execution abandoned")

// Host runs executions. The zero value is usable: no output cap, no clock,
// no validation, the default deadline and no store.
type Host struct {
	MaxOutput int
	Clock     actor.Clock
	Validate  actor.Validator
	Deadline  time.Duration // zero means config.DefaultDeadline
	Store     report.Store  // nil skips persistence
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// New builds a Host from the .gitcmd configuration.
func New(cfg *config.Config, store report.Store, logger *slog.Logger) *Host {
	h := &Host{
		MaxOutput: cfg.MaxOutputBytes(),
		Deadline:  cfg.Deadline(),
		Store:     store,
		Metrics:   metrics.New(),
		Logger:    logger,
	}
	if cfg.Clock() == config.ClockSystem {
		h.Clock = actor.SystemClock{}
	}
	if cfg.ValidateRepository {
		h.Validate = actor.RequireDirectory
	}
	return h
}

// Run executes the launch configuration and blocks until the actor shuts
// down. Terminal failures of the command itself are reported in the
// record; the returned error covers configuration, state and abandonment.
func (h *Host) Run(ctx context.Context, launchConfig []byte) (*report.Record, error) {
	id := uuid.NewString()
	actorID := uuid.NewString()
	ctx = logging.ContextAttrs(ctx, slog.String("run_id", id))
	logger := h.logger()

	sup := supervisor.New(h.MaxOutput, logger)
	defer func() {
		if err := sup.Close(); err != nil {
			logger.WarnContext(ctx, "closing supervisor", "error", err)
		}
	}()

	var payload []byte
	a := &actor.Actor{
		Spawner: sup,
		Shutdowner: actor.ShutdownFunc(func(_ context.Context, p []byte) error {
			payload = p
			return nil
		}),
		Clock:    h.Clock,
		Validate: h.Validate,
		Logger:   logger,
	}

	startedAt := time.Now().UTC()
	state, err := a.Init(ctx, launchConfig, actorID)
	if err != nil {
		return nil, err
	}

	giveUp := time.NewTimer(h.deadline())
	defer giveUp.Stop()

	// tick delivers deadline events so a silent command still times out.
	var (
		tick  *time.Timer
		tickC <-chan time.Time
	)
	arm := func() {
		tickC = nil
		d, ok := a.Remaining(state)
		if !ok {
			return
		}
		if tick == nil {
			tick = time.NewTimer(d)
		} else {
			tick.Reset(d)
		}
		tickC = tick.C
	}
	defer func() {
		if tick != nil {
			tick.Stop()
		}
	}()
	arm()

	for payload == nil {
		select {
		case ev, ok := <-sup.Events():
			if !ok {
				return nil, fmt.Errorf("%w: supervisor closed", ErrAbandoned)
			}
			state, err = deliver(ctx, a, state, ev)
		case <-tickC:
			tickC = nil
			state, err = a.HandleDeadline(ctx, state)
			if err == nil && payload == nil {
				arm()
			}
		case <-giveUp.C:
			logger.WarnContext(ctx, "giving up on execution", "deadline", h.deadline())
			h.Metrics.ObserveAbandoned()
			return nil, fmt.Errorf("%w: no result after %s", ErrAbandoned, h.deadline())
		case <-ctx.Done():
			h.Metrics.ObserveAbandoned()
			return nil, fmt.Errorf("%w: %w", ErrAbandoned, context.Cause(ctx))
		}
		if err != nil {
			return nil, err
		}
	}

	rec := &report.Record{ID: id, StartedAt: startedAt}
	if err := json.Unmarshal(payload, &rec.Result); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	h.Metrics.ObserveResult(rec.Result)
	if h.Store != nil {
		if err := h.Store.Save(rec); err != nil {
			logger.WarnContext(ctx, "saving run record failed", "error", err)
		}
	}
	return rec, nil
}

func deliver(ctx context.Context, a *actor.Actor, state []byte, ev supervisor.Event) ([]byte, error) {
	switch ev.Kind {
	case supervisor.EventStdout:
		return a.HandleStdout(ctx, state, ev.PID, ev.Data)
	case supervisor.EventStderr:
		return a.HandleStderr(ctx, state, ev.PID, ev.Data)
	case supervisor.EventExit:
		return a.HandleExit(ctx, state, ev.PID, ev.ExitCode)
	default:
		return state, nil
	}
}

func (h *Host) deadline() time.Duration {
	if h.Deadline <= 0 {
		return config.DefaultDeadline
	}
	return h.Deadline
}

func (h *Host) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}
