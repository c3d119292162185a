package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/JaimeStill/vigil/internal/batch"
	"github.com/JaimeStill/vigil/internal/faults"
	"github.com/JaimeStill/vigil/internal/reconciler"
	"github.com/JaimeStill/vigil/internal/results"
	"github.com/JaimeStill/vigil/internal/review"
	"github.com/JaimeStill/vigil/internal/tasks"
	"github.com/JaimeStill/vigil/pkg/formatting"
	"github.com/JaimeStill/vigil/pkg/pagination"
	"github.com/JaimeStill/vigil/pkg/storage"
)

type orchestrator struct {
	tasks      tasks.System
	results    results.System
	review     review.System
	batch      batch.System
	reconciler reconciler.System
	storage    storage.System
	settings   Settings
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a task orchestrator.
func New(
	taskSys tasks.System,
	resultSys results.System,
	reviewSys review.System,
	batchSys batch.System,
	reconcilerSys reconciler.System,
	store storage.System,
	settings Settings,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &orchestrator{
		tasks:      taskSys,
		results:    resultSys,
		review:     reviewSys,
		batch:      batchSys,
		reconciler: reconcilerSys,
		storage:    store,
		settings:   settings.withDefaults(),
		logger:     logger.With("system", "orchestrator"),
		pagination: pagination,
	}
}

func (o *orchestrator) Handler(maxUploadSize int64) *Handler {
	return NewHandler(o, o.reconciler, o.logger, o.pagination, maxUploadSize)
}

func (o *orchestrator) CreateTask(ctx context.Context, cmd CreateCommand) (*tasks.Task, error) {
	cmd.Name = strings.TrimSpace(cmd.Name)
	cmd.CreatedBy = strings.TrimSpace(cmd.CreatedBy)
	if cmd.Name == "" {
		return nil, fmt.Errorf("%w: name is required", faults.ErrValidation)
	}
	if cmd.CreatedBy == "" {
		return nil, fmt.Errorf("%w: created_by is required", faults.ErrValidation)
	}

	id := uuid.New()
	table := results.TableName(o.settings.TablePrefix, id)
	placeholder := o.settings.PlaceholderKey(id)

	if err := o.storage.Upload(ctx, placeholder, bytes.NewReader(nil), "application/octet-stream"); err != nil {
		return nil, fmt.Errorf("%w: create input location: %w", faults.ErrStorage, err)
	}

	if err := o.results.CreatePartition(ctx, table); err != nil {
		o.compensate(ctx, id, placeholder, "")
		return nil, fmt.Errorf("%w: create result table: %w", faults.ErrStorage, err)
	}

	t, err := o.tasks.Insert(ctx, tasks.NewTask{
		ID:           id,
		Name:         cmd.Name,
		Description:  cmd.Description,
		CreatedBy:    cmd.CreatedBy,
		SourceBucket: o.storage.Container(),
		SourcePrefix: o.settings.SourcePrefix(id),
		ResultTable:  table,
	})
	if err != nil {
		o.compensate(ctx, id, placeholder, table)
		return nil, err
	}

	tasksCreated.Inc()
	o.logger.Info("task created", "task_id", id, "name", t.Name, "created_by", t.CreatedBy)
	return t, nil
}

func (o *orchestrator) compensate(ctx context.Context, id uuid.UUID, placeholder, table string) {
	if err := o.storage.Delete(ctx, placeholder); err != nil {
		o.logger.Warn("compensating placeholder delete failed", "task_id", id, "key", placeholder, "error", err)
	}
	if table == "" {
		return
	}
	if err := o.results.DropPartition(ctx, table); err != nil {
		o.logger.Warn("compensating result table drop failed", "task_id", id, "table", table, "error", err)
	}
}

func (o *orchestrator) UploadFile(ctx context.Context, id uuid.UUID, cmd UploadCommand) (*storage.BlobMeta, error) {
	t, err := o.tasks.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != tasks.StatusCreated {
		return nil, fmt.Errorf("%w: files can only be added before moderation, task is %s", faults.ErrInvalidState, t.Status)
	}

	name := sanitizeFilename(cmd.Filename)
	if name == o.settings.Placeholder {
		return nil, fmt.Errorf("%w: reserved file name %q", faults.ErrValidation, name)
	}
	if len(cmd.Data) == 0 {
		return nil, fmt.Errorf("%w: empty file", faults.ErrValidation)
	}

	contentType := detectContentType(cmd.ContentType, cmd.Data)
	key := t.SourcePrefix + name
	if err := o.storage.Upload(ctx, key, bytes.NewReader(cmd.Data), contentType); err != nil {
		return nil, fmt.Errorf("%w: upload %s: %w", faults.ErrStorage, name, err)
	}

	o.logger.Info("input uploaded", "task_id", id, "key", key, "size", formatting.FormatBytes(int64(len(cmd.Data)), 1))
	return &storage.BlobMeta{
		Name:          key,
		ContentType:   contentType,
		ContentLength: int64(len(cmd.Data)),
		LastModified:  now(),
	}, nil
}

func (o *orchestrator) StartModeration(ctx context.Context, id uuid.UUID) (*tasks.Task, error) {
	t, err := o.tasks.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != tasks.StatusCreated {
		return nil, fmt.Errorf("%w: task is %s", faults.ErrInvalidState, t.Status)
	}

	files, err := o.listInputs(ctx, t)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files under %s", faults.ErrEmptyInput, t.SourceLocation())
	}

	if t.ReviewWorkflowRef == nil {
		wf, err := o.review.EnsureReviewWorkflow(ctx, t.ID, t.Name, o.settings.OutputBucket)
		if err != nil {
			return nil, err
		}
		if t, err = o.tasks.SetReviewWorkflow(ctx, t.ID, wf.Name, wf.Arn); err != nil {
			return nil, err
		}
	}

	total := len(files)
	started := now()
	t, err = o.tasks.Transition(ctx, id, tasks.StatusCreated, tasks.EventStart, tasks.Mutation{
		TotalFiles:          &total,
		ModerationStartedAt: &started,
	})
	if err != nil {
		return nil, err
	}

	ref, err := o.batch.Dispatch(ctx, batch.Job{
		TaskID:      id,
		Files:       files,
		ResultTable: t.ResultTable,
		WorkflowRef: *t.ReviewWorkflowRef,
	})
	if err != nil {
		if _, rerr := o.tasks.Transition(ctx, id, tasks.StatusModerating, tasks.EventRelease, tasks.Mutation{}); rerr != nil {
			o.logger.Error("release after failed dispatch failed", "task_id", id, "error", rerr)
		}
		return nil, fmt.Errorf("dispatch moderation: %w", err)
	}

	if err := o.tasks.SetExecutionRef(ctx, id, ref); err != nil {
		o.logger.Error("record execution ref failed", "task_id", id, "execution", ref, "error", err)
	} else {
		t.ExecutionRef = &ref
	}

	moderationsStarted.Inc()
	o.logger.Info("moderation started", "task_id", id, "files", total, "execution", ref)
	return t, nil
}

// listInputs walks the task's input prefix and returns every file key
// except the placeholder.
func (o *orchestrator) listInputs(ctx context.Context, t *tasks.Task) ([]string, error) {
	placeholder := t.SourcePrefix + o.settings.Placeholder

	var (
		files  []string
		marker string
	)
	for range o.settings.MaxListPages {
		page, err := o.storage.List(ctx, t.SourcePrefix, marker, o.settings.ListPageSize)
		if err != nil {
			return nil, fmt.Errorf("%w: list source files: %w", faults.ErrStorage, err)
		}
		for _, b := range page.Blobs {
			if b.Name == placeholder || strings.HasSuffix(b.Name, "/") {
				continue
			}
			files = append(files, b.Name)
		}
		if page.NextMarker == "" {
			return files, nil
		}
		marker = page.NextMarker
	}
	return nil, fmt.Errorf("%w: list source files: %w", faults.ErrStorage, storage.ErrListLimit)
}

func (o *orchestrator) GetTask(ctx context.Context, id uuid.UUID) (*TaskView, error) {
	t, err := o.tasks.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	metrics, err := results.Summarize(ctx, o.results, t.ResultTable, o.settings.MaxResultPages)
	if err != nil {
		return nil, fmt.Errorf("%w: summarize results: %w", faults.ErrStorage, err)
	}

	view := &TaskView{Task: *t, Metrics: metrics}
	if t.ReviewWorkflowRef != nil {
		view.JobTitle = review.JobTitle(*t.ReviewWorkflowRef)
		portal, err := o.review.PortalURL(ctx)
		if err != nil {
			o.logger.Warn("resolve review portal failed", "task_id", id, "error", err)
		}
		view.PortalURL = portal
	}
	return view, nil
}

func (o *orchestrator) ListTasks(
	ctx context.Context,
	page pagination.PageRequest,
	filters tasks.Filters,
) (*pagination.PageResult[tasks.Task], error) {
	return o.tasks.List(ctx, page, filters)
}

func (o *orchestrator) DeleteTask(ctx context.Context, id uuid.UUID) (*DeleteReport, error) {
	t, err := o.tasks.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	report := &DeleteReport{ID: id}
	record := func(step string, err error) {
		o.logger.Error("delete step failed", "task_id", id, "step", step, "error", err)
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", step, err))
	}

	n, err := storage.DeletePrefix(ctx, o.storage, t.SourcePrefix, o.settings.ListPageSize, o.settings.MaxListPages)
	report.BlobsDeleted = n
	if err != nil {
		record("source files", err)
	}

	if t.ReviewWorkflowName != nil {
		if err := o.review.DeleteReviewWorkflow(ctx, *t.ReviewWorkflowName); err != nil {
			record("review workflow", err)
		}
	}

	if err := o.results.DropPartition(ctx, t.ResultTable); err != nil {
		record("result table", err)
	}

	if err := o.tasks.Delete(ctx, id); err != nil && !errors.Is(err, tasks.ErrNotFound) {
		record("task record", err)
	}

	o.logger.Info("task deleted", "task_id", id, "blobs", n, "failures", len(report.Errors))
	return report, nil
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	return url.PathEscape(name)
}

func detectContentType(header string, data []byte) string {
	header = strings.TrimSpace(header)
	if header != "" && header != "application/octet-stream" {
		return header
	}
	return http.DetectContentType(data)
}
