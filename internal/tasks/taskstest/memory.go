// Package taskstest provides an in-memory task registry for tests.
package taskstest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/vigil/internal/tasks"
	"github.com/JaimeStill/vigil/pkg/pagination"
)

// Registry is a tasks.System held in memory. Transition is a true
// compare-and-set under the registry lock.
type Registry struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]tasks.Task
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{tasks: make(map[uuid.UUID]tasks.Task)}
}

// Put stores t directly, bypassing the status machine.
func (r *Registry) Put(t tasks.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.ID] = t
}

func (r *Registry) Insert(ctx context.Context, n tasks.NewTask) (*tasks.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[n.ID]; ok {
		return nil, tasks.ErrDuplicate
	}
	now := time.Now().UTC()
	t := tasks.Task{
		ID:           n.ID,
		Name:         n.Name,
		Description:  n.Description,
		CreatedBy:    n.CreatedBy,
		CreatedAt:    now,
		Status:       tasks.StatusCreated,
		SourceBucket: n.SourceBucket,
		SourcePrefix: n.SourcePrefix,
		ResultTable:  n.ResultTable,
		UpdatedAt:    now,
	}
	r.tasks[t.ID] = t
	return &t, nil
}

func (r *Registry) Find(ctx context.Context, id uuid.UUID) (*tasks.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, tasks.ErrNotFound
	}
	return &t, nil
}

func (r *Registry) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters tasks.Filters,
) (*pagination.PageResult[tasks.Task], error) {
	all := r.sorted(func(t tasks.Task) bool {
		if filters.Status != nil && string(t.Status) != *filters.Status {
			return false
		}
		return filters.CreatedBy == nil || t.CreatedBy == *filters.CreatedBy
	})

	if page.Page < 1 {
		page.Page = 1
	}
	if page.PageSize < 1 {
		page.PageSize = 20
	}
	start := min(page.Offset(), len(all))
	end := min(start+page.PageSize, len(all))

	result := pagination.NewPageResult(all[start:end], len(all), page.Page, page.PageSize)
	return &result, nil
}

func (r *Registry) ListByStatus(ctx context.Context, statuses ...tasks.Status) ([]tasks.Task, error) {
	return r.sorted(func(t tasks.Task) bool {
		return slices.Contains(statuses, t.Status)
	}), nil
}

func (r *Registry) Transition(
	ctx context.Context,
	id uuid.UUID,
	from tasks.Status,
	event tasks.Event,
	m tasks.Mutation,
) (*tasks.Task, error) {
	to, err := tasks.Next(from, event)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, tasks.ErrNotFound
	}
	if t.Status != from {
		return nil, fmt.Errorf("%w: expected %s", tasks.ErrConflict, from)
	}

	t.Status = to
	if m.TotalFiles != nil {
		n := *m.TotalFiles
		t.TotalFiles = &n
	}
	if m.ModerationStartedAt != nil {
		t.ModerationStartedAt = m.ModerationStartedAt
	}
	if m.FailureReason != nil {
		t.FailureReason = m.FailureReason
	}
	t.UpdatedAt = time.Now().UTC()
	r.tasks[id] = t
	return &t, nil
}

func (r *Registry) SetReviewWorkflow(ctx context.Context, id uuid.UUID, name, ref string) (*tasks.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, tasks.ErrNotFound
	}
	if t.ReviewWorkflowRef == nil {
		t.ReviewWorkflowName = &name
		t.ReviewWorkflowRef = &ref
		t.UpdatedAt = time.Now().UTC()
		r.tasks[id] = t
	}
	return &t, nil
}

func (r *Registry) SetExecutionRef(ctx context.Context, id uuid.UUID, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return tasks.ErrNotFound
	}
	t.ExecutionRef = &ref
	r.tasks[id] = t
	return nil
}

func (r *Registry) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return tasks.ErrNotFound
	}
	delete(r.tasks, id)
	return nil
}

func (r *Registry) sorted(keep func(tasks.Task) bool) []tasks.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]tasks.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b tasks.Task) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}
