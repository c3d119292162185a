package results

import (
	"context"

	"github.com/JaimeStill/vigil/pkg/pagination"
)

// CountAll counts every item in a table, following continuation tokens
// until the store reports none. It stops with pagination.ErrPageLimit
// after maxPages pages.
func CountAll(ctx context.Context, sys System, table string, maxPages int) (int, error) {
	fetch := func(ctx context.Context, token string) (pagination.Cursor[int], error) {
		c, err := sys.CountPage(ctx, table, token)
		if err != nil {
			return pagination.Cursor[int]{}, err
		}
		return pagination.Cursor[int]{Items: []int{c.N}, Next: c.Next}, nil
	}

	total := 0
	err := pagination.Walk(ctx, maxPages, fetch, func(counts []int) error {
		for _, n := range counts {
			total += n
		}
		return nil
	})
	return total, err
}

// WalkIssueFlag visits every page of items with the given issue flag.
func WalkIssueFlag(
	ctx context.Context,
	sys System,
	table string,
	flag bool,
	maxPages int,
	visit func([]Item) error,
) error {
	fetch := func(ctx context.Context, token string) (pagination.Cursor[Item], error) {
		return sys.QueryIssueFlag(ctx, table, flag, token)
	}
	return pagination.Walk(ctx, maxPages, fetch, visit)
}

// Metrics are the per-item counters shown with a task.
type Metrics struct {
	Processed     int `json:"processed"`
	Labeled       int `json:"labeled"`
	Reviewed      int `json:"reviewed"`
	TruePositive  int `json:"true_positive"`
	TrueNegative  int `json:"true_negative"`
	FalsePositive int `json:"false_positive"`
	FalseNegative int `json:"false_negative"`
}

// Summarize computes task metrics from the full table count and the review
// outcome flags of both flagged and unflagged items.
func Summarize(ctx context.Context, sys System, table string, maxPages int) (Metrics, error) {
	var m Metrics

	processed, err := CountAll(ctx, sys, table, maxPages)
	if err != nil {
		return m, err
	}
	m.Processed = processed

	tally := func(items []Item) error {
		for _, it := range items {
			if it.IssueFlag {
				m.Labeled++
			}
			if it.Reviewed {
				m.Reviewed++
			}
			if it.TruePositive {
				m.TruePositive++
			}
			if it.TrueNegative {
				m.TrueNegative++
			}
			if it.FalsePositive {
				m.FalsePositive++
			}
			if it.FalseNegative {
				m.FalseNegative++
			}
		}
		return nil
	}

	if err := WalkIssueFlag(ctx, sys, table, true, maxPages, tally); err != nil {
		return m, err
	}
	if err := WalkIssueFlag(ctx, sys, table, false, maxPages, tally); err != nil {
		return m, err
	}
	return m, nil
}
