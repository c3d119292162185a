package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JaimeStill/vigil/pkg/pagination"
	"github.com/JaimeStill/vigil/pkg/query"
	"github.com/JaimeStill/vigil/pkg/repository"
)

const itemColumns = `file_path, issue_flag, labels, moderation_duration_ms, moderation_start_ts,
	min_confidence, model_version, human_loop_name, human_loop_arn,
	reviewed_flag, tp_flag, fp_flag, tn_flag, fn_flag, updated_at`

type repo struct {
	db       *sql.DB
	logger   *slog.Logger
	pageSize int
}

// New creates a result store. pageSize bounds every keyset page.
func New(db *sql.DB, logger *slog.Logger, pageSize int) System {
	return &repo{
		db:       db,
		logger:   logger.With("system", "results"),
		pageSize: pageSize,
	}
}

func projection(table string) *query.ProjectionMap {
	return query.
		NewProjectionMap("public", table, "r").
		Project("file_path", "FilePath").
		Project("issue_flag", "IssueFlag").
		Project("labels", "Labels").
		Project("moderation_duration_ms", "ModerationDurationMs").
		Project("moderation_start_ts", "ModerationStartedAt").
		Project("min_confidence", "MinConfidence").
		Project("model_version", "ModelVersion").
		Project("human_loop_name", "HumanLoopName").
		Project("human_loop_arn", "HumanLoopArn").
		Project("reviewed_flag", "Reviewed").
		Project("tp_flag", "TruePositive").
		Project("fp_flag", "FalsePositive").
		Project("tn_flag", "TrueNegative").
		Project("fn_flag", "FalseNegative").
		Project("updated_at", "UpdatedAt")
}

var keyOrder = query.SortField{Field: "FilePath"}

func ident(table string) string {
	return pgx.Identifier{"public", table}.Sanitize()
}

func (r *repo) CreatePartition(ctx context.Context, table string) error {
	if err := ValidateTable(table); err != nil {
		return err
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			file_path TEXT PRIMARY KEY,
			issue_flag BOOLEAN NOT NULL DEFAULT FALSE,
			labels JSONB NOT NULL DEFAULT '[]'::jsonb,
			moderation_duration_ms BIGINT NOT NULL DEFAULT 0,
			moderation_start_ts TIMESTAMPTZ NOT NULL DEFAULT now(),
			min_confidence REAL NOT NULL DEFAULT 0,
			model_version TEXT NOT NULL DEFAULT '',
			human_loop_name TEXT,
			human_loop_arn TEXT,
			reviewed_flag BOOLEAN NOT NULL DEFAULT FALSE,
			tp_flag BOOLEAN NOT NULL DEFAULT FALSE,
			fp_flag BOOLEAN NOT NULL DEFAULT FALSE,
			tn_flag BOOLEAN NOT NULL DEFAULT FALSE,
			fn_flag BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS %s ON %s (issue_flag, file_path);`,
		ident(table),
		pgx.Identifier{table + "_flag_idx"}.Sanitize(),
		ident(table),
	)

	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		if repository.IsDuplicateTable(err) {
			r.logger.Debug("result partition already exists", "table", table)
			return nil
		}
		return fmt.Errorf("create result partition %s: %w", table, err)
	}

	r.logger.Info("result partition ready", "table", table)
	return nil
}

func (r *repo) DropPartition(ctx context.Context, table string) error {
	if err := ValidateTable(table); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+ident(table)); err != nil {
		return fmt.Errorf("drop result partition %s: %w", table, err)
	}
	r.logger.Info("result partition dropped", "table", table)
	return nil
}

func (r *repo) Put(ctx context.Context, table string, item Item) error {
	if err := ValidateTable(table); err != nil {
		return err
	}

	labels, err := json.Marshal(nonNil(item.Labels))
	if err != nil {
		return fmt.Errorf("encode labels: %w", err)
	}

	q := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (file_path) DO UPDATE SET
			issue_flag = EXCLUDED.issue_flag,
			labels = EXCLUDED.labels,
			moderation_duration_ms = EXCLUDED.moderation_duration_ms,
			moderation_start_ts = EXCLUDED.moderation_start_ts,
			min_confidence = EXCLUDED.min_confidence,
			model_version = EXCLUDED.model_version,
			human_loop_name = EXCLUDED.human_loop_name,
			human_loop_arn = EXCLUDED.human_loop_arn,
			reviewed_flag = EXCLUDED.reviewed_flag,
			tp_flag = EXCLUDED.tp_flag,
			fp_flag = EXCLUDED.fp_flag,
			tn_flag = EXCLUDED.tn_flag,
			fn_flag = EXCLUDED.fn_flag,
			updated_at = EXCLUDED.updated_at`,
		ident(table), itemColumns,
	)

	_, err = r.db.ExecContext(ctx, q,
		item.FilePath,
		item.IssueFlag,
		labels,
		item.ModerationDurationMs,
		item.ModerationStartedAt,
		item.MinConfidence,
		item.ModelVersion,
		item.HumanLoopName,
		item.HumanLoopArn,
		item.Reviewed,
		item.TruePositive,
		item.FalsePositive,
		item.TrueNegative,
		item.FalseNegative,
		time.Now().UTC(),
	)
	if err != nil {
		return repository.MapError(err, ErrNotFound, errDuplicate)
	}
	return nil
}

func (r *repo) Find(ctx context.Context, table, filePath string) (*Item, error) {
	if err := ValidateTable(table); err != nil {
		return nil, err
	}

	q, args := query.NewBuilder(projection(table)).BuildSingle("FilePath", filePath)
	item, err := repository.QueryOne(ctx, r.db, q, args, scanItem)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, errDuplicate)
	}
	return &item, nil
}

func (r *repo) CountPage(ctx context.Context, table, token string) (Count, error) {
	if err := ValidateTable(table); err != nil {
		return Count{}, err
	}

	var keys string
	var args []any
	if token == "" {
		keys = fmt.Sprintf("SELECT file_path FROM %s ORDER BY file_path LIMIT %d", ident(table), r.pageSize)
	} else {
		keys = fmt.Sprintf("SELECT file_path FROM %s WHERE file_path > $1 ORDER BY file_path LIMIT %d", ident(table), r.pageSize)
		args = []any{token}
	}

	var (
		n    int
		last sql.NullString
	)
	q := fmt.Sprintf("SELECT COUNT(*), MAX(file_path) FROM (%s) page", keys)
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&n, &last); err != nil {
		return Count{}, repository.MapError(err, ErrNotFound, errDuplicate)
	}

	c := Count{N: n}
	if n == r.pageSize {
		c.Next = last.String
	}
	return c, nil
}

func (r *repo) QueryIssueFlag(
	ctx context.Context,
	table string,
	flag bool,
	token string,
) (pagination.Cursor[Item], error) {
	if err := ValidateTable(table); err != nil {
		return pagination.Cursor[Item]{}, err
	}

	q, args := query.
		NewBuilder(projection(table), keyOrder).
		WhereEquals("IssueFlag", flag).
		WhereAfter("FilePath", token).
		BuildLimit(r.pageSize)

	items, err := repository.QueryMany(ctx, r.db, q, args, scanItem)
	if err != nil {
		return pagination.Cursor[Item]{}, repository.MapError(err, ErrNotFound, errDuplicate)
	}

	cur := pagination.Cursor[Item]{Items: items}
	if len(items) == r.pageSize {
		cur.Next = items[len(items)-1].FilePath
	}
	return cur, nil
}

func (r *repo) CountRouted(ctx context.Context, table string) (int, error) {
	if err := ValidateTable(table); err != nil {
		return 0, err
	}

	var n int
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE human_loop_arn IS NOT NULL AND human_loop_arn <> ''", ident(table))
	if err := r.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, repository.MapError(err, ErrNotFound, errDuplicate)
	}
	return n, nil
}

func (r *repo) RecordReview(ctx context.Context, table string, review Review) (*Item, error) {
	current, err := r.Find(ctx, table, review.FilePath)
	if err != nil {
		return nil, err
	}
	if current.Reviewed {
		return nil, ErrAlreadyReviewed
	}

	updated, err := review.Apply(*current)
	if err != nil {
		return nil, err
	}

	labels, err := json.Marshal(nonNil(updated.Labels))
	if err != nil {
		return nil, fmt.Errorf("encode labels: %w", err)
	}

	q := fmt.Sprintf(`
		UPDATE %s SET
			labels = $2,
			reviewed_flag = TRUE,
			tp_flag = $3,
			fp_flag = $4,
			tn_flag = $5,
			fn_flag = $6,
			updated_at = $7
		WHERE file_path = $1 AND reviewed_flag = FALSE`, ident(table))

	err = repository.ExecExpectOne(ctx, r.db, q,
		review.FilePath,
		labels,
		updated.TruePositive,
		updated.FalsePositive,
		updated.TrueNegative,
		updated.FalseNegative,
		time.Now().UTC(),
	)
	if errors.Is(err, sql.ErrNoRows) {
		// a concurrent review won
		return nil, ErrAlreadyReviewed
	}
	if err != nil {
		return nil, fmt.Errorf("record review: %w", err)
	}

	r.logger.Info("review recorded", "table", table, "file_path", review.FilePath)
	return &updated, nil
}

func scanItem(s repository.Scanner) (Item, error) {
	var (
		it     Item
		labels []byte
	)
	err := s.Scan(
		&it.FilePath,
		&it.IssueFlag,
		&labels,
		&it.ModerationDurationMs,
		&it.ModerationStartedAt,
		&it.MinConfidence,
		&it.ModelVersion,
		&it.HumanLoopName,
		&it.HumanLoopArn,
		&it.Reviewed,
		&it.TruePositive,
		&it.FalsePositive,
		&it.TrueNegative,
		&it.FalseNegative,
		&it.UpdatedAt,
	)
	if err != nil {
		return it, err
	}
	if err := json.Unmarshal(labels, &it.Labels); err != nil {
		return it, fmt.Errorf("decode labels for %s: %w", it.FilePath, err)
	}
	return it, nil
}

func nonNil(labels []Label) []Label {
	if labels == nil {
		return []Label{}
	}
	return labels
}
