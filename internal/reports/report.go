// Package reports aggregates a task's item results into accuracy reports and
// exports flagged labels as downloadable artifacts.
package reports

import (
	"cmp"
	"math"
	"slices"
	"strconv"

	"github.com/JaimeStill/vigil/internal/results"
)

// MinThreshold is the classifier's own confidence floor. Thresholds below it
// filter nothing and are ignored.
const MinThreshold = 50.0

// Filters narrow the label rows a report considers. Empty fields match everything.
type Filters struct {
	TopCategory         string   `json:"top_category,omitempty"`
	SubCategory         string   `json:"sub_category,omitempty"`
	ReviewResult        string   `json:"review_result,omitempty"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
}

func (f Filters) threshold() (float64, bool) {
	if f.ConfidenceThreshold == nil || *f.ConfidenceThreshold < MinThreshold {
		return 0, false
	}
	return *f.ConfidenceThreshold, true
}

// Match reports whether row passes every supplied filter.
func (f Filters) Match(row Row) bool {
	if f.TopCategory != "" && row.TopCategory != f.TopCategory {
		return false
	}
	if f.SubCategory != "" && row.SubCategory != f.SubCategory {
		return false
	}
	if f.ReviewResult != "" && row.ReviewResult != f.ReviewResult {
		return false
	}
	if floor, ok := f.threshold(); ok && row.Confidence < floor {
		return false
	}
	return true
}

// Row is one label of one flagged file.
type Row struct {
	FilePath     string  `json:"file_path"`
	TopCategory  string  `json:"top_category"`
	SubCategory  string  `json:"sub_category"`
	Confidence   float64 `json:"confidence"`
	ReviewResult string  `json:"review_result"`
}

// Flatten expands item into one row per label.
func Flatten(item results.Item) []Row {
	rows := make([]Row, 0, len(item.Labels))
	for _, l := range item.Labels {
		row := Row{
			FilePath:    item.FilePath,
			TopCategory: l.TopCategory,
			SubCategory: l.SubCategory,
			Confidence:  l.Confidence,
		}
		if l.ReviewResult != nil {
			row.ReviewResult = string(*l.ReviewResult)
		}
		rows = append(rows, row)
	}
	return rows
}

// Band is the lower edge of the 5-point confidence band holding c.
func Band(c float64) int {
	return int(math.Floor(c/5) * 5)
}

// Bucket is one breakdown entry: a key and the number of distinct files under it.
type Bucket struct {
	Title string `json:"title"`
	Value int    `json:"value"`
}

// ByReviewResult splits a breakdown by reviewer verdict.
type ByReviewResult struct {
	TruePositive  []Bucket `json:"true-positive"`
	FalsePositive []Bucket `json:"false-positive"`
}

// Report is the aggregate accuracy view of one task.
type Report struct {
	Processed     int `json:"processed"`
	Labeled       int `json:"labeled"`
	Reviewed      int `json:"reviewed"`
	TruePositive  int `json:"tp"`
	FalsePositive int `json:"fp"`

	ByTopCategory  []Bucket `json:"by_top_category"`
	BySubCategory  []Bucket `json:"by_sub_category"`
	ByReviewResult []Bucket `json:"by_type"`
	ByConfidence   []Bucket `json:"by_confidence"`

	ByTopCategoryReview ByReviewResult `json:"by_top_category_type"`
	BySubCategoryReview ByReviewResult `json:"by_sub_category_type"`
	ByConfidenceReview  ByReviewResult `json:"by_confidence_type"`
}

// fileSets maps a breakdown key to the distinct files carrying it.
type fileSets map[string]map[string]struct{}

func (s fileSets) add(key, file string) {
	if key == "" {
		return
	}
	if s[key] == nil {
		s[key] = make(map[string]struct{})
	}
	s[key][file] = struct{}{}
}

func (s fileSets) byCount() []Bucket {
	out := s.buckets()
	slices.SortStableFunc(out, func(a, b Bucket) int {
		if c := cmp.Compare(b.Value, a.Value); c != 0 {
			return c
		}
		return cmp.Compare(a.Title, b.Title)
	})
	return out
}

func (s fileSets) byBand() []Bucket {
	out := s.buckets()
	slices.SortFunc(out, func(a, b Bucket) int {
		x, _ := strconv.Atoi(a.Title)
		y, _ := strconv.Atoi(b.Title)
		return cmp.Compare(y, x)
	})
	return out
}

func (s fileSets) buckets() []Bucket {
	out := make([]Bucket, 0, len(s))
	for key, files := range s {
		out = append(out, Bucket{Title: key, Value: len(files)})
	}
	return out
}

type verdictSets struct {
	tp fileSets
	fp fileSets
}

func newVerdictSets() verdictSets {
	return verdictSets{tp: fileSets{}, fp: fileSets{}}
}

func (v verdictSets) add(verdict, key, file string) {
	switch results.ReviewResult(verdict) {
	case results.TruePositive:
		v.tp.add(key, file)
	case results.FalsePositive:
		v.fp.add(key, file)
	}
}

// Aggregate computes the file-level counts and breakdowns over rows that
// already passed the filters. processed is carried through unchanged.
func Aggregate(processed int, rows []Row) Report {
	var (
		top, sub, verdict, band = fileSets{}, fileSets{}, fileSets{}, fileSets{}
		topV, subV, bandV       = newVerdictSets(), newVerdictSets(), newVerdictSets()
		labeled, reviewed       = map[string]struct{}{}, map[string]struct{}{}
		tp, fp                  = map[string]struct{}{}, map[string]struct{}{}
	)

	for _, r := range rows {
		bandKey := strconv.Itoa(Band(r.Confidence))

		top.add(r.TopCategory, r.FilePath)
		sub.add(r.SubCategory, r.FilePath)
		verdict.add(r.ReviewResult, r.FilePath)
		band.add(bandKey, r.FilePath)

		topV.add(r.ReviewResult, r.TopCategory, r.FilePath)
		subV.add(r.ReviewResult, r.SubCategory, r.FilePath)
		bandV.add(r.ReviewResult, bandKey, r.FilePath)

		labeled[r.FilePath] = struct{}{}
		if r.ReviewResult != "" {
			reviewed[r.FilePath] = struct{}{}
		}
		switch results.ReviewResult(r.ReviewResult) {
		case results.TruePositive:
			tp[r.FilePath] = struct{}{}
		case results.FalsePositive:
			fp[r.FilePath] = struct{}{}
		}
	}

	return Report{
		Processed:      processed,
		Labeled:        len(labeled),
		Reviewed:       len(reviewed),
		TruePositive:   len(tp),
		FalsePositive:  len(fp),
		ByTopCategory:  top.byCount(),
		BySubCategory:  sub.byCount(),
		ByReviewResult: verdict.byCount(),
		ByConfidence:   band.byBand(),
		ByTopCategoryReview: ByReviewResult{
			TruePositive:  topV.tp.byCount(),
			FalsePositive: topV.fp.byCount(),
		},
		BySubCategoryReview: ByReviewResult{
			TruePositive:  subV.tp.byCount(),
			FalsePositive: subV.fp.byCount(),
		},
		ByConfidenceReview: ByReviewResult{
			TruePositive:  bandV.tp.byBand(),
			FalsePositive: bandV.fp.byBand(),
		},
	}
}
