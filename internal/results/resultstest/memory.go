// Package resultstest provides an in-memory result store for tests.
package resultstest

import (
	"context"
	"slices"
	"sync"

	"github.com/JaimeStill/vigil/internal/results"
	"github.com/JaimeStill/vigil/pkg/pagination"
)

// Store is a results.System held in memory with the same keyset paging
// semantics as the Postgres store.
type Store struct {
	PageSize int

	mu     sync.Mutex
	tables map[string]map[string]results.Item
	puts   int
}

// New returns an empty store that pages pageSize items at a time.
func New(pageSize int) *Store {
	return &Store{
		PageSize: pageSize,
		tables:   make(map[string]map[string]results.Item),
	}
}

// Puts reports how many writes the store has accepted.
func (s *Store) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

// HasTable reports whether a partition exists.
func (s *Store) HasTable(table string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tables[table]
	return ok
}

func (s *Store) CreatePartition(ctx context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[table]; !ok {
		s.tables[table] = make(map[string]results.Item)
	}
	return nil
}

func (s *Store) DropPartition(ctx context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, table)
	return nil
}

func (s *Store) Put(ctx context.Context, table string, item results.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[table]
	if !ok {
		return results.ErrNotFound
	}
	t[item.FilePath] = item
	s.puts++
	return nil
}

func (s *Store) Find(ctx context.Context, table, filePath string) (*results.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.tables[table][filePath]
	if !ok {
		return nil, results.ErrNotFound
	}
	return &it, nil
}

func (s *Store) CountPage(ctx context.Context, table, token string) (results.Count, error) {
	page, err := s.page(table, token, func(results.Item) bool { return true })
	if err != nil {
		return results.Count{}, err
	}
	return results.Count{N: len(page.Items), Next: page.Next}, nil
}

func (s *Store) QueryIssueFlag(
	ctx context.Context,
	table string,
	flag bool,
	token string,
) (pagination.Cursor[results.Item], error) {
	return s.page(table, token, func(it results.Item) bool { return it.IssueFlag == flag })
}

func (s *Store) CountRouted(ctx context.Context, table string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[table]
	if !ok {
		return 0, results.ErrNotFound
	}
	n := 0
	for _, it := range t {
		if it.Routed() {
			n++
		}
	}
	return n, nil
}

func (s *Store) RecordReview(ctx context.Context, table string, review results.Review) (*results.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.tables[table][review.FilePath]
	if !ok {
		return nil, results.ErrNotFound
	}
	if it.Reviewed {
		return nil, results.ErrAlreadyReviewed
	}
	updated, err := review.Apply(it)
	if err != nil {
		return nil, err
	}
	s.tables[table][review.FilePath] = updated
	return &updated, nil
}

func (s *Store) page(table, token string, keep func(results.Item) bool) (pagination.Cursor[results.Item], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[table]
	if !ok {
		return pagination.Cursor[results.Item]{}, results.ErrNotFound
	}

	keys := make([]string, 0, len(t))
	for k, it := range t {
		if k > token && keep(it) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	cur := pagination.Cursor[results.Item]{Items: make([]results.Item, 0)}
	for _, k := range keys {
		if len(cur.Items) == s.PageSize {
			break
		}
		cur.Items = append(cur.Items, t[k])
	}
	if len(cur.Items) == s.PageSize {
		cur.Next = cur.Items[len(cur.Items)-1].FilePath
	}
	return cur, nil
}
