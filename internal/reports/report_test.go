package reports_test

import (
	"math"
	"testing"

	"github.com/JaimeStill/vigil/internal/reports"
	"github.com/JaimeStill/vigil/internal/results"
)

func ptr[T any](v T) *T { return &v }

func TestBand(t *testing.T) {
	tests := []struct {
		confidence float64
		want       int
	}{
		{50, 50},
		{54.99, 50},
		{55, 55},
		{72.3, 70},
		{99.9, 95},
		{100, 100},
	}

	for _, tt := range tests {
		if got := reports.Band(tt.confidence); got != tt.want {
			t.Errorf("Band(%v) = %d, want %d", tt.confidence, got, tt.want)
		}
	}
}

func TestBandMonotonic(t *testing.T) {
	prev := math.MinInt
	for c := 50.0; c <= 100; c += 0.25 {
		b := reports.Band(c)
		if b < prev {
			t.Fatalf("Band(%v) = %d after %d", c, b, prev)
		}
		if float64(b) > c || c-float64(b) >= 5 {
			t.Fatalf("Band(%v) = %d outside its window", c, b)
		}
		prev = b
	}
}

func TestFiltersMatch(t *testing.T) {
	row := reports.Row{
		FilePath:     "a.jpg",
		TopCategory:  "Violence",
		SubCategory:  "Weapons",
		Confidence:   72,
		ReviewResult: "true-positive",
	}

	tests := []struct {
		name    string
		filters reports.Filters
		want    bool
	}{
		{"no filters", reports.Filters{}, true},
		{"top category", reports.Filters{TopCategory: "Violence"}, true},
		{"top category mismatch", reports.Filters{TopCategory: "violence"}, false},
		{"sub category", reports.Filters{SubCategory: "Weapons"}, true},
		{"review result mismatch", reports.Filters{ReviewResult: "false-positive"}, false},
		{"threshold met", reports.Filters{ConfidenceThreshold: ptr(72.0)}, true},
		{"threshold above", reports.Filters{ConfidenceThreshold: ptr(80.0)}, false},
		{"threshold below floor ignored", reports.Filters{ConfidenceThreshold: ptr(99.0 - 50)}, true},
		{"all supplied", reports.Filters{TopCategory: "Violence", SubCategory: "Weapons", ReviewResult: "true-positive", ConfidenceThreshold: ptr(60.0)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filters.Match(row); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}

	low := row
	low.Confidence = 30
	if !(reports.Filters{ConfidenceThreshold: ptr(40.0)}).Match(low) {
		t.Error("threshold under 50 should filter nothing")
	}
}

func TestFlattenSwapsParentlessLabels(t *testing.T) {
	tp := results.TruePositive
	item := results.Item{
		FilePath:  "a.jpg",
		IssueFlag: true,
		Labels: []results.Label{
			results.NewLabel("", "Violence", 72),
			{TopCategory: "Violence", SubCategory: "Weapons", Confidence: 88, ReviewResult: &tp},
		},
	}

	rows := reports.Flatten(item)
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0].TopCategory != "Violence" || rows[0].SubCategory != "" || rows[0].ReviewResult != "" {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1].ReviewResult != "true-positive" {
		t.Errorf("row 1 = %+v", rows[1])
	}
}

func TestAggregateDeduplicatesFiles(t *testing.T) {
	rows := []reports.Row{
		{FilePath: "a.jpg", TopCategory: "Violence", SubCategory: "Weapons", Confidence: 72, ReviewResult: "true-positive"},
		{FilePath: "a.jpg", TopCategory: "Violence", SubCategory: "Graphic", Confidence: 74, ReviewResult: "true-positive"},
		{FilePath: "a.jpg", TopCategory: "Violence", Confidence: 91, ReviewResult: "true-positive"},
		{FilePath: "b.jpg", TopCategory: "Suggestive", Confidence: 61, ReviewResult: "false-positive"},
		{FilePath: "c.jpg", TopCategory: "Suggestive", Confidence: 63},
		{FilePath: "d.jpg", TopCategory: "Suggestive", Confidence: 99},
	}

	r := reports.Aggregate(10, rows)

	if r.Processed != 10 || r.Labeled != 4 || r.Reviewed != 2 || r.TruePositive != 1 || r.FalsePositive != 1 {
		t.Errorf("counts = %+v", r)
	}

	wantTop := []reports.Bucket{{Title: "Suggestive", Value: 3}, {Title: "Violence", Value: 1}}
	assertBuckets(t, "by_top_category", r.ByTopCategory, wantTop)

	// empty sub categories are not a key
	wantSub := []reports.Bucket{{Title: "Graphic", Value: 1}, {Title: "Weapons", Value: 1}}
	assertBuckets(t, "by_sub_category", r.BySubCategory, wantSub)

	wantVerdict := []reports.Bucket{{Title: "false-positive", Value: 1}, {Title: "true-positive", Value: 1}}
	assertBuckets(t, "by_type", r.ByReviewResult, wantVerdict)

	wantBands := []reports.Bucket{
		{Title: "95", Value: 1},
		{Title: "90", Value: 1},
		{Title: "70", Value: 1},
		{Title: "60", Value: 2},
	}
	assertBuckets(t, "by_confidence", r.ByConfidence, wantBands)

	assertBuckets(t, "tp by top", r.ByTopCategoryReview.TruePositive, []reports.Bucket{{Title: "Violence", Value: 1}})
	assertBuckets(t, "fp by top", r.ByTopCategoryReview.FalsePositive, []reports.Bucket{{Title: "Suggestive", Value: 1}})
	assertBuckets(t, "tp by band", r.ByConfidenceReview.TruePositive, []reports.Bucket{{Title: "90", Value: 1}, {Title: "70", Value: 1}})
}

func TestAggregateBandsSortNumerically(t *testing.T) {
	rows := []reports.Row{
		{FilePath: "a", TopCategory: "X", Confidence: 100},
		{FilePath: "b", TopCategory: "X", Confidence: 95},
		{FilePath: "c", TopCategory: "X", Confidence: 55},
	}
	r := reports.Aggregate(3, rows)
	want := []reports.Bucket{{Title: "100", Value: 1}, {Title: "95", Value: 1}, {Title: "55", Value: 1}}
	assertBuckets(t, "by_confidence", r.ByConfidence, want)
}

func TestAggregateEmpty(t *testing.T) {
	r := reports.Aggregate(0, nil)
	if r.ByTopCategory == nil || r.ByConfidenceReview.TruePositive == nil {
		t.Error("empty breakdowns should encode as [] not null")
	}
}

func assertBuckets(t *testing.T, name string, got, want []reports.Bucket) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("%s = %v, want %v", name, got, want)
		return
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%s = %v, want %v", name, got, want)
			return
		}
	}
}
