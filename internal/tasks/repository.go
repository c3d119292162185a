package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/vigil/pkg/pagination"
	"github.com/JaimeStill/vigil/pkg/query"
	"github.com/JaimeStill/vigil/pkg/repository"
)

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a task registry backed by the tasks table.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "tasks"),
		pagination: pagination,
	}
}

func (r *repo) Insert(ctx context.Context, t NewTask) (*Task, error) {
	q := fmt.Sprintf(`
		INSERT INTO tasks(id, name, description, created_by, status, source_bucket, source_prefix, result_table)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING %s`, projection.Returning())

	args := []any{
		t.ID,
		t.Name,
		t.Description,
		t.CreatedBy,
		StatusCreated,
		t.SourceBucket,
		t.SourcePrefix,
		t.ResultTable,
	}

	task, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Task, error) {
		return repository.QueryOne(ctx, tx, q, args, scanTask)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("task registered", "task_id", task.ID, "name", task.Name)
	return &task, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Task, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	t, err := repository.QueryOne(ctx, r.db, q, args, scanTask)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &t, nil
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Task], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "Name", "Description")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanTask)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) ListByStatus(ctx context.Context, statuses ...Status) ([]Task, error) {
	values := make([]any, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}

	q, args := query.
		NewBuilder(projection, query.SortField{Field: "CreatedAt"}).
		WhereIn("Status", values).
		Build()

	items, err := repository.QueryMany(ctx, r.db, q, args, scanTask)
	if err != nil {
		return nil, fmt.Errorf("query tasks by status: %w", err)
	}
	return items, nil
}

func (r *repo) Transition(
	ctx context.Context,
	id uuid.UUID,
	from Status,
	event Event,
	m Mutation,
) (*Task, error) {
	to, err := Next(from, event)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`
		UPDATE tasks SET
			status = $3,
			total_files = COALESCE($4, total_files),
			moderation_started_ts = COALESCE($5, moderation_started_ts),
			failure_reason = COALESCE($6, failure_reason),
			last_update_ts = $7
		WHERE id = $1 AND status = $2
		RETURNING %s`, projection.Returning())

	args := []any{id, from, to, m.TotalFiles, m.ModerationStartedAt, m.FailureReason, time.Now().UTC()}

	t, err := repository.QueryOne(ctx, r.db, q, args, scanTask)
	if errors.Is(err, sql.ErrNoRows) {
		// the row is missing or has already moved on
		if _, findErr := r.Find(ctx, id); findErr != nil {
			return nil, findErr
		}
		return nil, fmt.Errorf("%w: expected %s", ErrConflict, from)
	}
	if err != nil {
		return nil, fmt.Errorf("transition task: %w", err)
	}

	transitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	r.logger.Info("task transitioned", "task_id", id, "from", from, "to", to, "event", event)
	return &t, nil
}

func (r *repo) SetReviewWorkflow(ctx context.Context, id uuid.UUID, name, ref string) (*Task, error) {
	q := fmt.Sprintf(`
		UPDATE tasks SET
			review_workflow_name = $2,
			review_workflow_ref = $3,
			last_update_ts = $4
		WHERE id = $1 AND review_workflow_ref IS NULL
		RETURNING %s`, projection.Returning())

	t, err := repository.QueryOne(ctx, r.db, q, []any{id, name, ref, time.Now().UTC()}, scanTask)
	if errors.Is(err, sql.ErrNoRows) {
		// already set, or the task does not exist
		return r.Find(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("set review workflow: %w", err)
	}

	r.logger.Info("review workflow recorded", "task_id", id, "workflow", ref)
	return &t, nil
}

func (r *repo) SetExecutionRef(ctx context.Context, id uuid.UUID, ref string) error {
	err := repository.ExecExpectOne(
		ctx, r.db,
		"UPDATE tasks SET execution_ref = $2, last_update_ts = $3 WHERE id = $1",
		id, ref, time.Now().UTC(),
	)
	return repository.MapError(err, ErrNotFound, ErrDuplicate)
}

func (r *repo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		return struct{}{}, repository.ExecExpectOne(ctx, tx, "DELETE FROM tasks WHERE id = $1", id)
	})
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("task deleted", "task_id", id)
	return nil
}
