// Package orchestrator drives a task through its lifecycle: registration,
// input upload, the start of moderation, inspection, and deletion.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/vigil/internal/results"
	"github.com/JaimeStill/vigil/internal/tasks"
	"github.com/JaimeStill/vigil/pkg/pagination"
	"github.com/JaimeStill/vigil/pkg/storage"
)

// CreateCommand carries the fields a caller supplies for a new task.
type CreateCommand struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedBy   string `json:"created_by"`
}

// UploadCommand adds one input file to a task.
type UploadCommand struct {
	Filename    string
	ContentType string
	Data        []byte
}

// TaskView is a task with its item metrics and review details.
type TaskView struct {
	tasks.Task
	Metrics   results.Metrics `json:"metrics"`
	PortalURL string          `json:"review_portal_url,omitempty"`
	JobTitle  string          `json:"review_job_title,omitempty"`
}

// DeleteReport lists what a delete cascade could not remove.
type DeleteReport struct {
	ID           uuid.UUID `json:"id"`
	BlobsDeleted int       `json:"blobs_deleted"`
	Errors       []string  `json:"errors,omitempty"`
}

// Settings configures task layout and scan bounds.
type Settings struct {
	InputPrefix    string
	Placeholder    string
	TablePrefix    string
	OutputBucket   string
	ListPageSize   int32
	MaxListPages   int
	MaxResultPages int
}

// System defines the task lifecycle contract.
type System interface {
	Handler(maxUploadSize int64) *Handler

	// CreateTask registers a task in CREATED with its input location and
	// result table in place before the record becomes visible.
	CreateTask(ctx context.Context, cmd CreateCommand) (*tasks.Task, error)

	// UploadFile stores an input file for a task that has not started.
	UploadFile(ctx context.Context, id uuid.UUID, cmd UploadCommand) (*storage.BlobMeta, error)

	// StartModeration enumerates the task's inputs, provisions its review
	// workflow, and dispatches classification. Of concurrent callers exactly
	// one succeeds; the rest receive an invalid-state error.
	StartModeration(ctx context.Context, id uuid.UUID) (*tasks.Task, error)

	GetTask(ctx context.Context, id uuid.UUID) (*TaskView, error)

	ListTasks(
		ctx context.Context,
		page pagination.PageRequest,
		filters tasks.Filters,
	) (*pagination.PageResult[tasks.Task], error)

	// DeleteTask removes a task and everything it owns. Each step runs even
	// when an earlier one fails; failures are reported, not raised.
	DeleteTask(ctx context.Context, id uuid.UUID) (*DeleteReport, error)
}

func (s Settings) withDefaults() Settings {
	if s.InputPrefix == "" {
		s.InputPrefix = "input/"
	}
	if s.Placeholder == "" {
		s.Placeholder = ".temp"
	}
	if s.TablePrefix == "" {
		s.TablePrefix = "results_"
	}
	if s.ListPageSize < 1 {
		s.ListPageSize = 1000
	}
	if s.MaxListPages < 1 {
		s.MaxListPages = 100
	}
	if s.MaxResultPages < 1 {
		s.MaxResultPages = 1000
	}
	return s
}

// SourcePrefix is the blob prefix holding a task's inputs.
func (s Settings) SourcePrefix(id uuid.UUID) string {
	return s.InputPrefix + id.String() + "/"
}

// PlaceholderKey is the marker blob that establishes a task's input location.
func (s Settings) PlaceholderKey(id uuid.UUID) string {
	return s.SourcePrefix(id) + s.Placeholder
}

func now() time.Time {
	return time.Now().UTC()
}
