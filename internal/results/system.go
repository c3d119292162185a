package results

import (
	"context"

	"github.com/JaimeStill/vigil/pkg/pagination"
)

// Count is one page of a keyset count over a result table.
type Count struct {
	N    int
	Next string
}

// System defines the item result store contract. Every method addresses a
// single task's table by name.
type System interface {
	// CreatePartition creates the table and its issue-flag index. It succeeds
	// when the table already exists.
	CreatePartition(ctx context.Context, table string) error
	DropPartition(ctx context.Context, table string) error

	// Put writes item by file path, overwriting any earlier record.
	Put(ctx context.Context, table string, item Item) error
	Find(ctx context.Context, table, filePath string) (*Item, error)

	// CountPage counts one page of rows after token.
	CountPage(ctx context.Context, table, token string) (Count, error)

	// QueryIssueFlag reads one page of items with the given issue flag after token.
	QueryIssueFlag(ctx context.Context, table string, flag bool, token string) (pagination.Cursor[Item], error)

	// CountRouted counts items that were sent to human review.
	CountRouted(ctx context.Context, table string) (int, error)

	// RecordReview applies a review exactly once. A second review of the same
	// item fails with ErrAlreadyReviewed.
	RecordReview(ctx context.Context, table string, review Review) (*Item, error)
}
