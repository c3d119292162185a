package reports

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/vigil/internal/faults"
	"github.com/JaimeStill/vigil/internal/results"
	"github.com/JaimeStill/vigil/internal/tasks"
	"github.com/JaimeStill/vigil/pkg/storage"
)

// ExportHeader is the first line of every export artifact.
var ExportHeader = []string{"file_path", "top_category", "sub_category", "confidence", "review_result"}

// Export references an uploaded artifact.
type Export struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Rows      int       `json:"rows"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Unflagged is a clean item with a short-lived link to its source file.
type Unflagged struct {
	FilePath string `json:"file_path"`
	URL      string `json:"url"`
}

// Settings configures report artifacts and scan bounds.
type Settings struct {
	Prefix    string
	URLExpiry time.Duration
	MaxPages  int
}

// System defines the aggregation contract.
type System interface {
	Handler() *Handler

	// ComputeReport counts every item in the task and aggregates the flagged
	// label rows that pass filters.
	ComputeReport(ctx context.Context, id uuid.UUID, filters Filters) (*Report, error)

	// ExportFlagged writes every flagged label row that passes filters to
	// object storage and returns a time-limited link to it.
	ExportFlagged(ctx context.Context, id uuid.UUID, filters Filters) (*Export, error)

	// ListUnflagged returns every item the classifier found clean.
	ListUnflagged(ctx context.Context, id uuid.UUID) ([]Unflagged, error)
}

type engine struct {
	tasks    tasks.System
	results  results.System
	storage  storage.System
	settings Settings
	logger   *slog.Logger
}

// New creates an aggregation engine.
func New(
	taskSys tasks.System,
	resultSys results.System,
	store storage.System,
	settings Settings,
	logger *slog.Logger,
) System {
	if settings.Prefix == "" {
		settings.Prefix = "report/"
	}
	if settings.URLExpiry <= 0 {
		settings.URLExpiry = 300 * time.Second
	}
	if settings.MaxPages < 1 {
		settings.MaxPages = 1000
	}
	return &engine{
		tasks:    taskSys,
		results:  resultSys,
		storage:  store,
		settings: settings,
		logger:   logger.With("system", "reports"),
	}
}

func (e *engine) Handler() *Handler {
	return NewHandler(e, e.logger)
}

func (e *engine) ComputeReport(ctx context.Context, id uuid.UUID, filters Filters) (*Report, error) {
	defer observe("report", time.Now())

	t, err := e.tasks.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	processed, err := results.CountAll(ctx, e.results, t.ResultTable, e.settings.MaxPages)
	if err != nil {
		return nil, fmt.Errorf("%w: count items: %w", faults.ErrStorage, err)
	}

	rows, err := e.flagged(ctx, t.ResultTable, filters)
	if err != nil {
		return nil, err
	}

	report := Aggregate(processed, rows)
	return &report, nil
}

func (e *engine) ExportFlagged(ctx context.Context, id uuid.UUID, filters Filters) (*Export, error) {
	defer observe("export", time.Now())

	t, err := e.tasks.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := e.flagged(ctx, t.ResultTable, filters)
	if err != nil {
		return nil, err
	}

	data := encodeRows(rows)

	now := time.Now().UTC()
	key := fmt.Sprintf("%s%s_%s.csv", e.settings.Prefix, id, now.Format("20060102150405"))
	if err := e.storage.Upload(ctx, key, bytes.NewReader(data), "text/csv"); err != nil {
		return nil, fmt.Errorf("%w: upload export: %w", faults.ErrStorage, err)
	}

	url, err := e.storage.SignedURL(ctx, key, e.settings.URLExpiry)
	if err != nil {
		return nil, fmt.Errorf("%w: sign export url: %w", faults.ErrStorage, err)
	}

	e.logger.Info("flagged items exported", "task_id", id, "key", key, "rows", len(rows))
	return &Export{
		Key:       key,
		URL:       url,
		Rows:      len(rows),
		ExpiresAt: now.Add(e.settings.URLExpiry),
	}, nil
}

func (e *engine) ListUnflagged(ctx context.Context, id uuid.UUID) ([]Unflagged, error) {
	t, err := e.tasks.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	out := make([]Unflagged, 0)
	err = results.WalkIssueFlag(ctx, e.results, t.ResultTable, false, e.settings.MaxPages, func(items []results.Item) error {
		for _, it := range items {
			url, err := e.storage.SignedURL(ctx, it.FilePath, e.settings.URLExpiry)
			if err != nil {
				return fmt.Errorf("sign %s: %w", it.FilePath, err)
			}
			out = append(out, Unflagged{FilePath: it.FilePath, URL: url})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list unflagged items: %w", faults.ErrStorage, err)
	}
	return out, nil
}

// flagged collects the label rows of every flagged item that pass filters.
func (e *engine) flagged(ctx context.Context, table string, filters Filters) ([]Row, error) {
	rows := make([]Row, 0)
	err := results.WalkIssueFlag(ctx, e.results, table, true, e.settings.MaxPages, func(items []results.Item) error {
		for _, it := range items {
			for _, row := range Flatten(it) {
				if filters.Match(row) {
					rows = append(rows, row)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query flagged items: %w", faults.ErrStorage, err)
	}
	return rows, nil
}

// encodeRows writes the header and one comma-joined line per row. Fields
// are written verbatim with no quoting.
func encodeRows(rows []Row) []byte {
	var b strings.Builder
	b.WriteString(strings.Join(ExportHeader, ","))
	b.WriteByte('\n')
	for _, r := range rows {
		b.WriteString(strings.Join([]string{
			r.FilePath,
			r.TopCategory,
			r.SubCategory,
			strconv.FormatFloat(r.Confidence, 'f', -1, 64),
			r.ReviewResult,
		}, ","))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
