package reconciler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/vigil/internal/batch"
	"github.com/JaimeStill/vigil/internal/faults"
	"github.com/JaimeStill/vigil/internal/reconciler"
	"github.com/JaimeStill/vigil/internal/results"
	"github.com/JaimeStill/vigil/internal/results/resultstest"
	"github.com/JaimeStill/vigil/internal/review"
	"github.com/JaimeStill/vigil/internal/tasks"
	"github.com/JaimeStill/vigil/internal/tasks/taskstest"
)

const table = "results_reconcile"

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeReview struct {
	review.System
	progress review.Progress
}

func (f *fakeReview) LoopProgress(context.Context, string) (review.Progress, error) {
	return f.progress, nil
}

type fakeBatch struct {
	batch.System
	states map[string]batch.State
}

func (f *fakeBatch) Progress(ref string) batch.State {
	if s, ok := f.states[ref]; ok {
		return s
	}
	return batch.StateUnknown
}

type fixture struct {
	registry *taskstest.Registry
	store    *resultstest.Store
	review   *fakeReview
	batch    *fakeBatch
	sys      reconciler.System
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		registry: taskstest.New(),
		store:    resultstest.New(2),
		review:   &fakeReview{},
		batch:    &fakeBatch{states: map[string]batch.State{}},
	}
	if err := f.store.CreatePartition(context.Background(), table); err != nil {
		t.Fatal(err)
	}
	f.sys = reconciler.New(f.registry, f.store, f.review, f.batch, reconciler.Settings{
		StaleAfter: time.Minute,
	}, discard)
	return f
}

func (f *fixture) task(status tasks.Status, total int, started time.Time) tasks.Task {
	exec := "exec-1"
	wf := "arn:aws:sagemaker:us-east-1:1:flow-definition/vigil-x"
	t := tasks.Task{
		ID:                  uuid.New(),
		Name:                "batch",
		CreatedAt:           time.Now(),
		Status:              status,
		ResultTable:         table,
		ExecutionRef:        &exec,
		ReviewWorkflowRef:   &wf,
		TotalFiles:          &total,
		ModerationStartedAt: &started,
		UpdatedAt:           started,
	}
	f.registry.Put(t)
	return t
}

func (f *fixture) put(t *testing.T, path string, flagged bool, loopArn string) {
	t.Helper()
	item := results.Item{FilePath: path, IssueFlag: flagged}
	if flagged {
		item.Labels = []results.Label{results.NewLabel("Violence", "Weapons", 72)}
	}
	if loopArn != "" {
		item.HumanLoopArn = &loopArn
	}
	if err := f.store.Put(context.Background(), table, item); err != nil {
		t.Fatal(err)
	}
}

func TestCompletedAdvancesPipeline(t *testing.T) {
	tests := []struct {
		name    string
		routed  bool
		stored  int
		summary batch.Summary
		want    tasks.Status
	}{
		{"routed items wait for review", true, 3, batch.Summary{Total: 3, Succeeded: 3}, tasks.StatusHumanReviewing},
		{"nothing routed completes", false, 3, batch.Summary{Total: 3, Succeeded: 3}, tasks.StatusCompleted},
		{"missing item results fail", false, 2, batch.Summary{Total: 3, Succeeded: 2, Failed: 1}, tasks.StatusFailed},
		{"every item failed", false, 0, batch.Summary{Total: 3, Failed: 3}, tasks.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			task := f.task(tasks.StatusModerating, 3, time.Now())
			loop := ""
			if tt.routed {
				loop = "arn:loop"
			}
			for i := range tt.stored {
				f.put(t, "input/"+string(rune('a'+i))+".jpg", i == 0, loop)
			}

			f.sys.Completed(context.Background(), task.ID, "exec-1", tt.summary)

			got, _ := f.registry.Find(context.Background(), task.ID)
			if got.Status != tt.want {
				t.Errorf("status = %s, want %s", got.Status, tt.want)
			}
			if tt.want == tasks.StatusFailed && got.FailureReason == nil {
				t.Error("failure reason not recorded")
			}
		})
	}
}

// A run that lost one file must settle the same way whether the outcome
// arrives from the live execution or is re-derived after a restart.
func TestPartialFailureSettlesAlike(t *testing.T) {
	live := newFixture(t)
	liveTask := live.task(tasks.StatusModerating, 3, time.Now())
	live.put(t, "input/a.jpg", false, "")
	live.put(t, "input/b.jpg", false, "")
	live.batch.states["exec-1"] = batch.StateSucceeded
	live.sys.Completed(context.Background(), liveTask.ID, "exec-1", batch.Summary{Total: 3, Succeeded: 2, Failed: 1})

	restarted := newFixture(t)
	restartedTask := restarted.task(tasks.StatusModerating, 3, time.Now().Add(-2*time.Minute))
	restarted.put(t, "input/a.jpg", false, "")
	restarted.put(t, "input/b.jpg", false, "")
	if _, err := restarted.sys.Reconcile(context.Background(), restartedTask.ID); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	a, _ := live.registry.Find(context.Background(), liveTask.ID)
	b, _ := restarted.registry.Find(context.Background(), restartedTask.ID)
	if a.Status != tasks.StatusFailed || b.Status != tasks.StatusFailed {
		t.Errorf("live = %s, restarted = %s, want both FAILED", a.Status, b.Status)
	}
}

func TestCompletedIgnoresSettledTask(t *testing.T) {
	f := newFixture(t)
	task := f.task(tasks.StatusCompleted, 1, time.Now())

	f.sys.Completed(context.Background(), task.ID, "exec-1", batch.Summary{Total: 1})

	got, _ := f.registry.Find(context.Background(), task.ID)
	if got.Status != tasks.StatusCompleted {
		t.Errorf("status = %s", got.Status)
	}
}

func TestReconcileModerating(t *testing.T) {
	tests := []struct {
		name    string
		state   batch.State
		items   int
		started time.Duration
		want    tasks.Status
	}{
		{"execution running", batch.StateRunning, 0, 0, tasks.StatusModerating},
		{"execution succeeded", batch.StateSucceeded, 3, 0, tasks.StatusCompleted},
		{"execution failed", batch.StateFailed, 1, 0, tasks.StatusFailed},
		{"unknown execution with every item processed", batch.StateUnknown, 3, 0, tasks.StatusCompleted},
		{"unknown execution still fresh", batch.StateUnknown, 1, 0, tasks.StatusModerating},
		{"unknown execution gone stale", batch.StateUnknown, 1, 2 * time.Minute, tasks.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			task := f.task(tasks.StatusModerating, 3, time.Now().Add(-tt.started))
			if tt.state != batch.StateUnknown {
				f.batch.states["exec-1"] = tt.state
			}
			for i := range tt.items {
				f.put(t, "input/"+string(rune('a'+i))+".jpg", false, "")
			}

			got, err := f.sys.Reconcile(context.Background(), task.ID)
			if err != nil {
				t.Fatalf("Reconcile() error = %v", err)
			}
			if got.Status != tt.want {
				t.Errorf("status = %s, want %s", got.Status, tt.want)
			}
		})
	}
}

func TestReconcileHumanReviewing(t *testing.T) {
	f := newFixture(t)
	task := f.task(tasks.StatusHumanReviewing, 1, time.Now())

	f.review.progress = review.Progress{InProgress: 1, Completed: 1}
	got, _ := f.sys.Reconcile(context.Background(), task.ID)
	if got.Status != tasks.StatusHumanReviewing {
		t.Fatalf("status = %s, want HUMAN_REVIEWING", got.Status)
	}

	f.review.progress = review.Progress{Completed: 2}
	got, _ = f.sys.Reconcile(context.Background(), task.ID)
	if got.Status != tasks.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", got.Status)
	}
}

func TestReconcileHumanReviewingWithoutLoops(t *testing.T) {
	tests := []struct {
		name    string
		updated time.Duration
		want    tasks.Status
	}{
		{"recent task keeps waiting", 0, tasks.StatusHumanReviewing},
		{"stale task resolves", 2 * time.Minute, tasks.StatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			task := f.task(tasks.StatusHumanReviewing, 1, time.Now().Add(-tt.updated))
			f.put(t, "input/a.jpg", true, "arn:loop")

			got, err := f.sys.Reconcile(context.Background(), task.ID)
			if err != nil {
				t.Fatalf("Reconcile() error = %v", err)
			}
			if got.Status != tt.want {
				t.Errorf("status = %s, want %s", got.Status, tt.want)
			}
		})
	}
}

func TestSweep(t *testing.T) {
	f := newFixture(t)
	done := f.task(tasks.StatusModerationCompleted, 1, time.Now())
	waiting := f.task(tasks.StatusModerating, 5, time.Now())
	f.batch.states["exec-1"] = batch.StateRunning

	f.sys.Sweep(context.Background())

	got, _ := f.registry.Find(context.Background(), done.ID)
	if got.Status != tasks.StatusCompleted {
		t.Errorf("moderation-completed task = %s", got.Status)
	}
	got, _ = f.registry.Find(context.Background(), waiting.ID)
	if got.Status != tasks.StatusModerating {
		t.Errorf("running task = %s", got.Status)
	}
}

func TestUpdateStatus(t *testing.T) {
	tests := []struct {
		name    string
		from    tasks.Status
		to      tasks.Status
		want    tasks.Status
		wantErr error
	}{
		{"moderation finished", tasks.StatusModerating, tasks.StatusModerationCompleted, tasks.StatusModerationCompleted, nil},
		{"fail any active task", tasks.StatusHumanReviewing, tasks.StatusFailed, tasks.StatusFailed, nil},
		{"skip ahead rejected", tasks.StatusModerating, tasks.StatusCompleted, "", faults.ErrInvalidState},
		{"start is not external", tasks.StatusCreated, tasks.StatusModerating, "", faults.ErrInvalidState},
		{"terminal rejected", tasks.StatusCompleted, tasks.StatusFailed, "", faults.ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			task := f.task(tt.from, 1, time.Now())

			got, err := f.sys.UpdateStatus(context.Background(), task.ID, tt.to, "")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("UpdateStatus() error = %v", err)
			}
			if got.Status != tt.want {
				t.Errorf("status = %s, want %s", got.Status, tt.want)
			}
		})
	}
}

func TestRecordReview(t *testing.T) {
	f := newFixture(t)
	task := f.task(tasks.StatusHumanReviewing, 1, time.Now())
	f.put(t, "input/a.jpg", true, "arn:loop")
	f.review.progress = review.Progress{Completed: 1}

	item, err := f.sys.RecordReview(context.Background(), task.ID, results.Review{
		FilePath: "input/a.jpg",
		Verdicts: []results.ReviewResult{results.FalsePositive},
	})
	if err != nil {
		t.Fatalf("RecordReview() error = %v", err)
	}
	if !item.Reviewed || !item.FalsePositive {
		t.Errorf("item = %+v", item)
	}

	got, _ := f.registry.Find(context.Background(), task.ID)
	if got.Status != tasks.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", got.Status)
	}

	_, err = f.sys.RecordReview(context.Background(), task.ID, results.Review{
		FilePath: "input/a.jpg",
		Verdicts: []results.ReviewResult{results.TruePositive},
	})
	if !errors.Is(err, results.ErrAlreadyReviewed) {
		t.Errorf("second review error = %v, want ErrAlreadyReviewed", err)
	}
}

func TestRecordReviewBeforeModeration(t *testing.T) {
	f := newFixture(t)
	task := f.task(tasks.StatusModerating, 1, time.Now())

	_, err := f.sys.RecordReview(context.Background(), task.ID, results.Review{FilePath: "input/a.jpg"})
	if !errors.Is(err, faults.ErrInvalidState) {
		t.Errorf("error = %v, want ErrInvalidState", err)
	}
}
