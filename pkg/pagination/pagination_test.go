package pagination_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/JaimeStill/vigil/pkg/pagination"
	"github.com/JaimeStill/vigil/pkg/query"
)

func defaultConfig() pagination.Config {
	return pagination.Config{DefaultPageSize: 20, MaxPageSize: 100}
}

func TestConfigFinalize(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := pagination.Config{}
		if err := cfg.Finalize(nil); err != nil {
			t.Fatalf("finalize failed: %v", err)
		}
		if cfg.DefaultPageSize != 20 || cfg.MaxPageSize != 100 {
			t.Errorf("got %+v, want default 20 max 100", cfg)
		}
	})

	t.Run("env overrides", func(t *testing.T) {
		t.Setenv("TEST_PAGE_SIZE", "50")
		t.Setenv("TEST_MAX_PAGE", "200")

		cfg := pagination.Config{}
		env := &pagination.ConfigEnv{DefaultPageSize: "TEST_PAGE_SIZE", MaxPageSize: "TEST_MAX_PAGE"}
		if err := cfg.Finalize(env); err != nil {
			t.Fatalf("finalize failed: %v", err)
		}
		if cfg.DefaultPageSize != 50 || cfg.MaxPageSize != 200 {
			t.Errorf("got %+v, want default 50 max 200", cfg)
		}
	})

	t.Run("default above max rejected", func(t *testing.T) {
		cfg := pagination.Config{DefaultPageSize: 500, MaxPageSize: 100}
		if err := cfg.Finalize(nil); err == nil {
			t.Error("expected validation error")
		}
	})
}

func TestPageRequestNormalize(t *testing.T) {
	tests := []struct {
		name         string
		req          pagination.PageRequest
		wantPage     int
		wantPageSize int
	}{
		{"zero values", pagination.PageRequest{}, 1, 20},
		{"over max clamped", pagination.PageRequest{Page: 3, PageSize: 1000}, 3, 100},
		{"valid kept", pagination.PageRequest{Page: 2, PageSize: 10}, 2, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Normalize(defaultConfig())
			if tt.req.Page != tt.wantPage || tt.req.PageSize != tt.wantPageSize {
				t.Errorf("got page %d size %d, want %d %d", tt.req.Page, tt.req.PageSize, tt.wantPage, tt.wantPageSize)
			}
			if want := (tt.wantPage - 1) * tt.wantPageSize; tt.req.Offset() != want {
				t.Errorf("Offset() = %d, want %d", tt.req.Offset(), want)
			}
		})
	}
}

func TestPageRequestFromQuery(t *testing.T) {
	values := url.Values{
		"page":      {"2"},
		"page_size": {"15"},
		"search":    {"batch"},
		"sort":      {"Name,-CreatedAt"},
	}

	req := pagination.PageRequestFromQuery(values, defaultConfig())

	if req.Page != 2 || req.PageSize != 15 {
		t.Errorf("page = %d size = %d, want 2 15", req.Page, req.PageSize)
	}
	if req.Search == nil || *req.Search != "batch" {
		t.Errorf("Search = %v, want batch", req.Search)
	}
	if len(req.Sort) != 2 || !req.Sort[1].Descending {
		t.Errorf("Sort = %v", req.Sort)
	}
}

func TestNewPageResult(t *testing.T) {
	tests := []struct {
		name           string
		total          int
		wantTotalPages int
	}{
		{"exact division", 100, 5},
		{"remainder", 101, 6},
		{"empty result", 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := pagination.NewPageResult[string](nil, tt.total, 1, 20)
			if result.TotalPages != tt.wantTotalPages {
				t.Errorf("TotalPages = %d, want %d", result.TotalPages, tt.wantTotalPages)
			}
			if result.Data == nil {
				t.Error("Data should be empty slice, not nil")
			}
		})
	}
}

func TestSortFieldsUnmarshal(t *testing.T) {
	for _, input := range []string{
		`"Name,-CreatedAt"`,
		`[{"Field":"Name","Descending":false},{"Field":"CreatedAt","Descending":true}]`,
	} {
		var sf pagination.SortFields
		if err := json.Unmarshal([]byte(input), &sf); err != nil {
			t.Fatalf("unmarshal %s failed: %v", input, err)
		}
		if len(sf) != 2 || sf[1] != (query.SortField{Field: "CreatedAt", Descending: true}) {
			t.Errorf("unmarshal %s = %v", input, sf)
		}
	}
}

func pagedFetch(pages map[string]pagination.Cursor[int], calls *int) pagination.FetchFunc[int] {
	return func(_ context.Context, token string) (pagination.Cursor[int], error) {
		*calls++
		cur, ok := pages[token]
		if !ok {
			return pagination.Cursor[int]{}, fmt.Errorf("unknown token %q", token)
		}
		return cur, nil
	}
}

func collect(t *testing.T, fetch pagination.FetchFunc[int]) []int {
	t.Helper()
	all := make([]int, 0)
	err := pagination.Walk(context.Background(), 10, fetch, func(items []int) error {
		all = append(all, items...)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	return all
}

func TestWalkFollowsTokensToExhaustion(t *testing.T) {
	pages := map[string]pagination.Cursor[int]{
		"":  {Items: []int{1, 2}, Next: "a"},
		"a": {Items: []int{3}, Next: "b"},
		"b": {Items: []int{4, 5}},
	}

	var calls int
	got := collect(t, pagedFetch(pages, &calls))
	if len(got) != 5 {
		t.Errorf("items = %v, want 5 items", got)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWalkEmptyPageWithToken(t *testing.T) {
	pages := map[string]pagination.Cursor[int]{
		"":  {Items: nil, Next: "a"},
		"a": {Items: []int{7}},
	}

	var calls int
	got := collect(t, pagedFetch(pages, &calls))
	if len(got) != 1 || got[0] != 7 {
		t.Errorf("items = %v, want [7]", got)
	}
}

func TestWalkPageLimit(t *testing.T) {
	fetch := func(_ context.Context, token string) (pagination.Cursor[int], error) {
		return pagination.Cursor[int]{Items: []int{1}, Next: token + "x"}, nil
	}

	err := pagination.Walk(context.Background(), 3, fetch, func([]int) error { return nil })
	if !errors.Is(err, pagination.ErrPageLimit) {
		t.Errorf("Walk() error = %v, want ErrPageLimit", err)
	}
}

func TestWalkRepeatedToken(t *testing.T) {
	fetch := func(_ context.Context, _ string) (pagination.Cursor[int], error) {
		return pagination.Cursor[int]{Next: "same"}, nil
	}

	err := pagination.Walk(context.Background(), 100, fetch, func([]int) error { return nil })
	if err == nil {
		t.Fatal("Walk() expected error for repeated token")
	}
}

func TestWalkVisitError(t *testing.T) {
	stop := errors.New("stop")
	fetch := func(_ context.Context, _ string) (pagination.Cursor[int], error) {
		return pagination.Cursor[int]{Items: []int{1}, Next: "more"}, nil
	}

	err := pagination.Walk(context.Background(), 5, fetch, func([]int) error { return stop })
	if !errors.Is(err, stop) {
		t.Errorf("Walk() error = %v, want stop", err)
	}
}
