// Package reconciler advances tasks through the moderation pipeline. It
// reacts to batch execution outcomes as they arrive and periodically
// re-derives every active task's state from its collaborators, so a missed
// event or a process restart never strands a task.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/vigil/internal/batch"
	"github.com/JaimeStill/vigil/internal/faults"
	"github.com/JaimeStill/vigil/internal/results"
	"github.com/JaimeStill/vigil/internal/review"
	"github.com/JaimeStill/vigil/internal/tasks"
)

// Scheduler runs fn periodically until shutdown. lifecycle.Coordinator satisfies it.
type Scheduler interface {
	Every(interval time.Duration, fn func(ctx context.Context))
}

// Settings tunes reconciliation.
type Settings struct {
	Interval time.Duration

	// StaleAfter is how long a task may stay MODERATING under an execution
	// this process does not know before it is judged interrupted, and how
	// long HUMAN_REVIEWING may go without any listed review loop.
	StaleAfter time.Duration

	MaxPages int
}

// System reconciles task status.
type System interface {
	batch.Listener

	// Reconcile re-derives the next status of one task and applies it.
	Reconcile(ctx context.Context, id uuid.UUID) (*tasks.Task, error)

	// UpdateStatus applies an externally signalled status. Only moves the
	// state machine allows are accepted.
	UpdateStatus(ctx context.Context, id uuid.UUID, status tasks.Status, reason string) (*tasks.Task, error)

	// RecordReview stores a completed human review and reconciles the task.
	RecordReview(ctx context.Context, id uuid.UUID, rv results.Review) (*results.Item, error)

	// Sweep reconciles every active task once.
	Sweep(ctx context.Context)

	// Start schedules Sweep every Interval.
	Start(s Scheduler)
}

type reconciler struct {
	tasks    tasks.System
	results  results.System
	review   review.System
	batch    batch.System
	settings Settings
	logger   *slog.Logger
}

// New creates a reconciler.
func New(
	taskSys tasks.System,
	resultSys results.System,
	reviewSys review.System,
	batchSys batch.System,
	settings Settings,
	logger *slog.Logger,
) System {
	if settings.Interval <= 0 {
		settings.Interval = 30 * time.Second
	}
	if settings.StaleAfter <= 0 {
		settings.StaleAfter = time.Hour
	}
	if settings.MaxPages < 1 {
		settings.MaxPages = 1000
	}
	return &reconciler{
		tasks:    taskSys,
		results:  resultSys,
		review:   reviewSys,
		batch:    batchSys,
		settings: settings,
		logger:   logger.With("system", "reconciler"),
	}
}

func (r *reconciler) Start(s Scheduler) {
	s.Every(r.settings.Interval, r.Sweep)
	r.logger.Info("reconciler scheduled", "interval", r.settings.Interval)
}

func (r *reconciler) Sweep(ctx context.Context) {
	active, err := r.tasks.ListByStatus(
		ctx,
		tasks.StatusModerating,
		tasks.StatusModerationCompleted,
		tasks.StatusHumanReviewing,
	)
	if err != nil {
		r.logger.Error("list active tasks failed", "error", err)
		return
	}

	for _, t := range active {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.advance(ctx, &t); err != nil {
			reconcileTotal.WithLabelValues("error").Inc()
			r.logger.Error("reconcile failed", "task_id", t.ID, "status", t.Status, "error", err)
		}
	}
}

func (r *reconciler) Reconcile(ctx context.Context, id uuid.UUID) (*tasks.Task, error) {
	t, err := r.tasks.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.advance(ctx, t)
}

// advance steps t until it rests in a status that waits on outside progress.
func (r *reconciler) advance(ctx context.Context, t *tasks.Task) (*tasks.Task, error) {
	for {
		next, err := r.step(ctx, t)
		if err != nil {
			return t, err
		}
		if next.Status == t.Status {
			reconcileTotal.WithLabelValues("unchanged").Inc()
			return next, nil
		}
		reconcileTotal.WithLabelValues("advanced").Inc()
		t = next
	}
}

func (r *reconciler) step(ctx context.Context, t *tasks.Task) (*tasks.Task, error) {
	switch t.Status {
	case tasks.StatusModerating:
		return r.stepModerating(ctx, t)

	case tasks.StatusModerationCompleted:
		routed, err := r.results.CountRouted(ctx, t.ResultTable)
		if err != nil {
			return t, fmt.Errorf("%w: count routed items: %w", faults.ErrStorage, err)
		}
		if routed > 0 {
			return r.apply(ctx, t, tasks.EventReviewRouted, tasks.Mutation{})
		}
		return r.apply(ctx, t, tasks.EventNoReviewNeeded, tasks.Mutation{})

	case tasks.StatusHumanReviewing:
		if t.ReviewWorkflowRef == nil {
			return r.apply(ctx, t, tasks.EventReviewsResolved, tasks.Mutation{})
		}
		progress, err := r.review.LoopProgress(ctx, *t.ReviewWorkflowRef)
		if err != nil {
			return t, err
		}
		if progress.Total() > 0 && progress.Resolved() {
			return r.apply(ctx, t, tasks.EventReviewsResolved, tasks.Mutation{})
		}
		// loops no longer listed by the review service cannot be waited on
		if progress.Total() == 0 && r.stale(t.UpdatedAt) {
			r.logger.Warn("no review loops listed for stale task", "task_id", t.ID, "workflow", *t.ReviewWorkflowRef)
			return r.apply(ctx, t, tasks.EventReviewsResolved, tasks.Mutation{})
		}
		return t, nil
	}

	return t, nil
}

func (r *reconciler) stepModerating(ctx context.Context, t *tasks.Task) (*tasks.Task, error) {
	state := batch.StateUnknown
	if t.ExecutionRef != nil {
		state = r.batch.Progress(*t.ExecutionRef)
	}

	switch state {
	case batch.StateRunning:
		return t, nil
	case batch.StateSucceeded, batch.StateFailed:
		return r.settle(ctx, t, true)
	}

	// an execution this process does not know may still be running elsewhere
	finished := t.ModerationStartedAt == nil || r.stale(*t.ModerationStartedAt)
	return r.settle(ctx, t, finished)
}

// settle advances a MODERATING task once every file has produced an item
// result. When the execution has finished short of that, the task fails.
func (r *reconciler) settle(ctx context.Context, t *tasks.Task, finished bool) (*tasks.Task, error) {
	processed, err := results.CountAll(ctx, r.results, t.ResultTable, r.settings.MaxPages)
	if err != nil {
		return t, fmt.Errorf("%w: count processed items: %w", faults.ErrStorage, err)
	}

	total := 0
	if t.TotalFiles != nil {
		total = *t.TotalFiles
	}
	if t.TotalFiles != nil && processed >= total {
		return r.apply(ctx, t, tasks.EventModerationFinished, tasks.Mutation{})
	}
	if !finished {
		return t, nil
	}
	return r.fail(ctx, t, fmt.Sprintf("moderation incomplete: %d of %d items processed", processed, total))
}

func (r *reconciler) stale(since time.Time) bool {
	return time.Since(since) >= r.settings.StaleAfter
}

func (r *reconciler) fail(ctx context.Context, t *tasks.Task, reason string) (*tasks.Task, error) {
	return r.apply(ctx, t, tasks.EventFail, tasks.Mutation{FailureReason: &reason})
}

// apply transitions t. Losing a race to another writer is not an error: the
// winner's record is returned instead.
func (r *reconciler) apply(ctx context.Context, t *tasks.Task, event tasks.Event, m tasks.Mutation) (*tasks.Task, error) {
	next, err := r.tasks.Transition(ctx, t.ID, t.Status, event, m)
	if err != nil {
		if errors.Is(err, tasks.ErrConflict) {
			return r.tasks.Find(ctx, t.ID)
		}
		return t, err
	}

	r.logger.Info(
		"task status changed",
		"task_id", t.ID,
		"from", t.Status,
		"to", next.Status,
		"event", event,
	)
	return next, nil
}

func (r *reconciler) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status tasks.Status,
	reason string,
) (*tasks.Task, error) {
	t, err := r.tasks.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	event, err := tasks.EventFor(t.Status, status)
	if err != nil {
		return nil, err
	}

	var m tasks.Mutation
	if event == tasks.EventFail {
		if reason == "" {
			reason = "failed by status update"
		}
		m.FailureReason = &reason
	}

	next, err := r.tasks.Transition(ctx, id, t.Status, event, m)
	if err != nil {
		return nil, err
	}

	r.logger.Info("task status updated", "task_id", id, "from", t.Status, "to", next.Status)
	return next, nil
}

func (r *reconciler) RecordReview(ctx context.Context, id uuid.UUID, rv results.Review) (*results.Item, error) {
	t, err := r.tasks.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	switch t.Status {
	case tasks.StatusModerationCompleted, tasks.StatusHumanReviewing, tasks.StatusCompleted:
	default:
		return nil, fmt.Errorf("%w: reviews are accepted after moderation, task is %s", faults.ErrInvalidState, t.Status)
	}

	item, err := r.results.RecordReview(ctx, t.ResultTable, rv)
	if err != nil {
		return nil, err
	}
	reviewsRecorded.Inc()

	if t.Status == tasks.StatusHumanReviewing {
		if _, err := r.advance(ctx, t); err != nil {
			r.logger.Warn("reconcile after review failed", "task_id", id, "error", err)
		}
	}
	return item, nil
}

func (r *reconciler) ItemFailed(ctx context.Context, taskID uuid.UUID, file string, err error) {
	itemFailures.Inc()
	r.logger.Warn("moderation item failed", "task_id", taskID, "file", file, "error", err)
}

func (r *reconciler) Completed(ctx context.Context, taskID uuid.UUID, ref string, summary batch.Summary) {
	t, err := r.tasks.Find(ctx, taskID)
	if err != nil {
		r.logger.Error("completed execution for unknown task", "task_id", taskID, "execution", ref, "error", err)
		return
	}
	if t.Status != tasks.StatusModerating {
		return
	}

	r.logger.Info(
		"execution completed",
		"task_id", taskID,
		"execution", ref,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
	)

	// the execution is over, so missing item results fail the task
	next, err := r.settle(ctx, t, true)
	if err == nil {
		_, err = r.advance(ctx, next)
	}
	if err != nil {
		r.logger.Error("advance after execution failed", "task_id", taskID, "execution", ref, "error", err)
	}
}
