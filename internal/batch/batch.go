// Package batch runs a task's classification work in the background:
// bounded fan-out across files, a shared call rate, and per-item retries.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/JaimeStill/vigil/internal/classify"
	"github.com/JaimeStill/vigil/internal/faults"
)

// ErrStopped is returned by Dispatch once the engine is shutting down.
var ErrStopped = fmt.Errorf("%w: batch engine stopped", faults.ErrClassification)

// State is the observable state of one execution.
type State string

const (
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateUnknown   State = "UNKNOWN"
)

// Job is the work submitted for one task.
type Job struct {
	TaskID      uuid.UUID
	Files       []string
	ResultTable string
	WorkflowRef string
}

// Summary tallies a finished execution.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Listener receives execution outcomes.
type Listener interface {
	ItemFailed(ctx context.Context, taskID uuid.UUID, file string, err error)
	Completed(ctx context.Context, taskID uuid.UUID, ref string, summary Summary)
}

// Runner starts tracked background work that ends when its context is cancelled.
// lifecycle.Coordinator satisfies it.
type Runner interface {
	Context() context.Context
	Go(fn func(ctx context.Context))
}

// Settings tunes execution.
type Settings struct {
	Concurrency   int
	RatePerSecond float64
	MaxAttempts   int
	Backoff       time.Duration
}

// System dispatches and tracks executions.
type System interface {
	// Dispatch starts an execution and returns its reference without waiting
	// for any file to be classified.
	Dispatch(ctx context.Context, job Job) (string, error)

	// Progress reports the state of an execution started by this process.
	// References from earlier processes are StateUnknown.
	Progress(ref string) State

	// Listen registers the listener notified for every execution.
	Listen(l Listener)
}

type engine struct {
	runner     Runner
	classifier classify.System
	settings   Settings
	limiter    *rate.Limiter
	logger     *slog.Logger

	mu       sync.RWMutex
	states   map[string]State
	listener Listener
}

// New creates a batch engine. All executions share one rate limiter so the
// classifier sees at most RatePerSecond calls from this process.
func New(runner Runner, classifier classify.System, settings Settings, logger *slog.Logger) System {
	if settings.Concurrency < 1 {
		settings.Concurrency = 1
	}
	if settings.MaxAttempts < 1 {
		settings.MaxAttempts = 1
	}

	limit := rate.Inf
	if settings.RatePerSecond > 0 {
		limit = rate.Limit(settings.RatePerSecond)
	}

	return &engine{
		runner:     runner,
		classifier: classifier,
		settings:   settings,
		limiter:    rate.NewLimiter(limit, settings.Concurrency),
		logger:     logger.With("system", "batch"),
		states:     make(map[string]State),
	}
}

func (e *engine) Listen(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = l
}

func (e *engine) Dispatch(ctx context.Context, job Job) (string, error) {
	if len(job.Files) == 0 || job.ResultTable == "" {
		return "", fmt.Errorf("%w: batch job needs files and a result table", faults.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if e.runner.Context().Err() != nil {
		return "", ErrStopped
	}

	ref := "exec-" + uuid.NewString()

	e.mu.Lock()
	e.states[ref] = StateRunning
	e.mu.Unlock()

	executionsActive.Inc()
	e.runner.Go(func(ctx context.Context) {
		defer executionsActive.Dec()
		e.run(ctx, ref, job)
	})

	e.logger.Info("execution dispatched", "task_id", job.TaskID, "execution", ref, "files", len(job.Files))
	return ref, nil
}

func (e *engine) Progress(ref string) State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if s, ok := e.states[ref]; ok {
		return s
	}
	return StateUnknown
}

func (e *engine) run(ctx context.Context, ref string, job Job) {
	var succeeded, failed atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(e.settings.Concurrency)

	for _, file := range job.Files {
		g.Go(func() error {
			req := classify.Request{
				TaskID:      job.TaskID,
				FilePath:    file,
				ResultTable: job.ResultTable,
				WorkflowRef: job.WorkflowRef,
			}
			if err := e.attempt(ctx, req); err != nil {
				failed.Add(1)
				itemsTotal.WithLabelValues("failed").Inc()
				e.logger.Warn("item failed", "task_id", job.TaskID, "file", file, "error", err)
				if l := e.current(); l != nil && ctx.Err() == nil {
					l.ItemFailed(ctx, job.TaskID, file, err)
				}
				return nil
			}
			succeeded.Add(1)
			itemsTotal.WithLabelValues("succeeded").Inc()
			return nil
		})
	}
	g.Wait()

	summary := Summary{
		Total:     len(job.Files),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
	}

	state := StateSucceeded
	if ctx.Err() != nil || summary.Succeeded == 0 {
		state = StateFailed
	}

	e.mu.Lock()
	e.states[ref] = state
	e.mu.Unlock()

	e.logger.Info(
		"execution finished",
		"task_id", job.TaskID,
		"execution", ref,
		"state", state,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
	)

	// interrupted executions are picked up by reconciliation after restart
	if ctx.Err() != nil {
		return
	}
	if l := e.current(); l != nil {
		l.Completed(ctx, job.TaskID, ref, summary)
	}
}

func (e *engine) attempt(ctx context.Context, req classify.Request) error {
	var err error
	for n := 1; n <= e.settings.MaxAttempts; n++ {
		if werr := e.limiter.Wait(ctx); werr != nil {
			return werr
		}

		if _, err = e.classifier.ClassifyFile(ctx, req); err == nil {
			return nil
		}

		if n == e.settings.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.settings.Backoff * time.Duration(n)):
		}
	}
	return fmt.Errorf("after %d attempts: %w", e.settings.MaxAttempts, err)
}

func (e *engine) current() Listener {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.listener
}
