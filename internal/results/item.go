// Package results implements the item result store: one Postgres table per
// task holding one record per evaluated file, keyed by file path.
package results

import (
	"fmt"
	"time"

	"github.com/JaimeStill/vigil/internal/faults"
)

// ReviewResult is a human reviewer's verdict on one label.
type ReviewResult string

const (
	TruePositive  ReviewResult = "true-positive"
	FalsePositive ReviewResult = "false-positive"
)

// ParseReviewResult validates a verdict string.
func ParseReviewResult(s string) (ReviewResult, error) {
	switch r := ReviewResult(s); r {
	case TruePositive, FalsePositive:
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown review result %q", faults.ErrValidation, s)
}

// Label is one normalized classifier label.
type Label struct {
	TopCategory  string        `json:"top_category"`
	SubCategory  string        `json:"sub_category"`
	Confidence   float64       `json:"confidence"`
	ReviewResult *ReviewResult `json:"review_result"`
}

// NewLabel builds a label from the classifier's parent and leaf names.
//
// The classifier reports a top-level category in the leaf field with an empty
// parent; that case is swapped so the category lands in TopCategory and
// SubCategory is empty. This is the only place the rule is applied.
func NewLabel(parent, name string, confidence float64) Label {
	top, sub := parent, name
	if top == "" && sub != "" {
		top, sub = sub, ""
	}
	return Label{
		TopCategory: top,
		SubCategory: sub,
		Confidence:  confidence,
	}
}

// Item is the classification outcome for one source file.
type Item struct {
	FilePath             string    `json:"file_path"`
	IssueFlag            bool      `json:"issue_flag"`
	Labels               []Label   `json:"labels"`
	ModerationDurationMs int64     `json:"moderation_duration_ms"`
	ModerationStartedAt  time.Time `json:"moderation_start_ts"`
	MinConfidence        float64   `json:"min_confidence"`
	ModelVersion         string    `json:"model_version"`
	HumanLoopName        *string   `json:"human_loop_name"`
	HumanLoopArn         *string   `json:"human_loop_arn"`
	Reviewed             bool      `json:"reviewed_flag"`
	TruePositive         bool      `json:"tp_flag"`
	FalsePositive        bool      `json:"fp_flag"`
	TrueNegative         bool      `json:"tn_flag"`
	FalseNegative        bool      `json:"fn_flag"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Routed reports whether the item was sent to human review.
func (i Item) Routed() bool {
	return i.HumanLoopArn != nil && *i.HumanLoopArn != ""
}

// Review is the completion of a human review for one file.
// Verdicts align with the item's labels by position. Missed applies to
// unflagged items and records that the reviewer found content the
// classifier did not.
type Review struct {
	FilePath string         `json:"file_path"`
	Verdicts []ReviewResult `json:"verdicts"`
	Missed   bool           `json:"missed"`
}

// Apply returns a copy of item with the review recorded: per-label verdicts
// filled in and the outcome flags set.
func (r Review) Apply(item Item) (Item, error) {
	if item.IssueFlag && len(r.Verdicts) != len(item.Labels) {
		return Item{}, fmt.Errorf(
			"%w: %d verdicts for %d labels", faults.ErrValidation, len(r.Verdicts), len(item.Labels),
		)
	}
	if !item.IssueFlag && len(r.Verdicts) > 0 {
		return Item{}, fmt.Errorf("%w: verdicts given for an unflagged item", faults.ErrValidation)
	}

	out := item
	out.Reviewed = true

	if !item.IssueFlag {
		out.FalseNegative = r.Missed
		out.TrueNegative = !r.Missed
		return out, nil
	}

	out.Labels = make([]Label, len(item.Labels))
	confirmed := false
	for idx, l := range item.Labels {
		v, err := ParseReviewResult(string(r.Verdicts[idx]))
		if err != nil {
			return Item{}, err
		}
		l.ReviewResult = &v
		out.Labels[idx] = l
		if v == TruePositive {
			confirmed = true
		}
	}
	out.TruePositive = confirmed
	out.FalsePositive = !confirmed
	return out, nil
}
