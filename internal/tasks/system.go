package tasks

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/vigil/pkg/pagination"
)

// System defines the task registry contract.
type System interface {
	Insert(ctx context.Context, t NewTask) (*Task, error)
	Find(ctx context.Context, id uuid.UUID) (*Task, error)

	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Task], error)

	// ListByStatus returns every task currently in one of statuses, oldest first.
	ListByStatus(ctx context.Context, statuses ...Status) ([]Task, error)

	// Transition applies event to a task that is still in from. The write is
	// conditional on the stored status, so of two concurrent callers exactly
	// one succeeds and the other receives ErrConflict.
	Transition(ctx context.Context, id uuid.UUID, from Status, event Event, m Mutation) (*Task, error)

	// SetReviewWorkflow records the review workflow once. A task that already
	// holds a reference is returned unchanged.
	SetReviewWorkflow(ctx context.Context, id uuid.UUID, name, ref string) (*Task, error)

	SetExecutionRef(ctx context.Context, id uuid.UUID, ref string) error
	Delete(ctx context.Context, id uuid.UUID) error
}
