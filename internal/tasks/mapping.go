package tasks

import (
	"net/url"

	"github.com/JaimeStill/vigil/pkg/query"
	"github.com/JaimeStill/vigil/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "tasks", "t").
	Project("id", "ID").
	Project("name", "Name").
	Project("description", "Description").
	Project("created_by", "CreatedBy").
	Project("created_ts", "CreatedAt").
	Project("status", "Status").
	Project("source_bucket", "SourceBucket").
	Project("source_prefix", "SourcePrefix").
	Project("result_table", "ResultTable").
	Project("review_workflow_name", "ReviewWorkflowName").
	Project("review_workflow_ref", "ReviewWorkflowRef").
	Project("execution_ref", "ExecutionRef").
	Project("total_files", "TotalFiles").
	Project("moderation_started_ts", "ModerationStartedAt").
	Project("failure_reason", "FailureReason").
	Project("last_update_ts", "UpdatedAt")

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

// Filters narrows task listings. Nil fields are ignored.
type Filters struct {
	Status    *string `json:"status,omitempty"`
	CreatedBy *string `json:"created_by,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Status", f.Status).
		WhereEquals("CreatedBy", f.CreatedBy)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters
	if s := values.Get("status"); s != "" {
		f.Status = &s
	}
	if c := values.Get("created_by"); c != "" {
		f.CreatedBy = &c
	}
	return f
}

func scanTask(s repository.Scanner) (Task, error) {
	var t Task
	err := s.Scan(
		&t.ID,
		&t.Name,
		&t.Description,
		&t.CreatedBy,
		&t.CreatedAt,
		&t.Status,
		&t.SourceBucket,
		&t.SourcePrefix,
		&t.ResultTable,
		&t.ReviewWorkflowName,
		&t.ReviewWorkflowRef,
		&t.ExecutionRef,
		&t.TotalFiles,
		&t.ModerationStartedAt,
		&t.FailureReason,
		&t.UpdatedAt,
	)
	return t, err
}
