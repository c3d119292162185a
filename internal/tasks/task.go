// Package tasks implements the task registry: one record per evaluation run,
// its persisted status machine, and the compare-and-set transitions that move
// a task through the moderation pipeline.
package tasks

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task is one evaluation run over a batch of source files.
type Task struct {
	ID                  uuid.UUID  `json:"id"`
	Name                string     `json:"name"`
	Description         string     `json:"description"`
	CreatedBy           string     `json:"created_by"`
	CreatedAt           time.Time  `json:"created_ts"`
	Status              Status     `json:"status"`
	SourceBucket        string     `json:"source_bucket"`
	SourcePrefix        string     `json:"source_prefix"`
	ResultTable         string     `json:"result_table"`
	ReviewWorkflowName  *string    `json:"review_workflow_name"`
	ReviewWorkflowRef   *string    `json:"review_workflow_ref"`
	ExecutionRef        *string    `json:"execution_ref"`
	TotalFiles          *int       `json:"total_files"`
	ModerationStartedAt *time.Time `json:"moderation_started_ts"`
	FailureReason       *string    `json:"failure_reason"`
	UpdatedAt           time.Time  `json:"last_update_ts"`
}

// SourceLocation renders the task's input set as bucket/prefix.
func (t Task) SourceLocation() string {
	return fmt.Sprintf("%s/%s", t.SourceBucket, t.SourcePrefix)
}

// NewTask carries the immutable fields written when a task is registered.
// ResultTable must already exist when Insert is called.
type NewTask struct {
	ID           uuid.UUID
	Name         string
	Description  string
	CreatedBy    string
	SourceBucket string
	SourcePrefix string
	ResultTable  string
}

// Mutation holds the optional column writes applied alongside a status transition.
// Nil fields leave the stored value unchanged.
type Mutation struct {
	TotalFiles          *int
	ModerationStartedAt *time.Time
	FailureReason       *string
}
