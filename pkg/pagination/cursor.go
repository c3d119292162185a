package pagination

import (
	"context"
	"errors"
	"fmt"
)

// ErrPageLimit indicates a token-paginated walk did not reach the end of the
// collection within its page cap.
var ErrPageLimit = errors.New("pagination page limit exceeded")

// Cursor is one page of a token-paginated collection. An empty Next is the
// only signal that the collection is exhausted.
type Cursor[T any] struct {
	Items []T    `json:"items"`
	Next  string `json:"next,omitempty"`
}

// FetchFunc retrieves the page that starts after token. The first call
// receives an empty token.
type FetchFunc[T any] func(ctx context.Context, token string) (Cursor[T], error)

// Walk follows continuation tokens from the start of a collection, passing
// each page to visit, until fetch reports no next token. It fails with
// ErrPageLimit after maxPages pages, and with an error if a store hands back
// the token it was given, since following it would never terminate.
func Walk[T any](ctx context.Context, maxPages int, fetch FetchFunc[T], visit func([]T) error) error {
	token := ""

	for page := 0; page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		cur, err := fetch(ctx, token)
		if err != nil {
			return err
		}

		if err := visit(cur.Items); err != nil {
			return err
		}

		if cur.Next == "" {
			return nil
		}
		if cur.Next == token {
			return fmt.Errorf("continuation token %q repeated", token)
		}
		token = cur.Next
	}

	return fmt.Errorf("%w: %d pages", ErrPageLimit, maxPages)
}
