package review_test

import (
	"encoding/json"
	"testing"

	"github.com/JaimeStill/vigil/internal/review"
)

func TestActivationPolicyRoutes(t *testing.T) {
	p := review.ActivationPolicy{Lower: 50, Upper: 100}

	tests := []struct {
		confidence float64
		want       bool
	}{
		{49.9, false},
		{50, false},
		{50.01, true},
		{72, true},
		{99.99, true},
		{100, false},
	}

	for _, tt := range tests {
		if got := p.Routes(tt.confidence); got != tt.want {
			t.Errorf("Routes(%v) = %v, want %v", tt.confidence, got, tt.want)
		}
	}
}

func TestActivationPolicyValidate(t *testing.T) {
	for _, p := range []review.ActivationPolicy{{Lower: 80, Upper: 60}, {Lower: -1, Upper: 50}, {Lower: 50, Upper: 101}, {Lower: 50, Upper: 50}} {
		if err := p.Validate(); err == nil {
			t.Errorf("Validate(%+v) should fail", p)
		}
	}
	if err := (review.ActivationPolicy{Lower: 50, Upper: 100}).Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestActivationPolicyConditions(t *testing.T) {
	doc, err := review.ActivationPolicy{Lower: 50, Upper: 100}.Conditions()
	if err != nil {
		t.Fatalf("Conditions() error = %v", err)
	}

	var parsed struct {
		Conditions []struct {
			And []struct {
				ConditionType       string
				ConditionParameters map[string]any
			}
		}
	}
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		t.Fatalf("conditions are not JSON: %v", err)
	}
	and := parsed.Conditions[0].And
	if len(and) != 2 {
		t.Fatalf("And = %+v", and)
	}
	for _, c := range and {
		if c.ConditionType != "ModerationLabelConfidenceCheck" || c.ConditionParameters["ModerationLabelName"] != "*" {
			t.Errorf("condition = %+v", c)
		}
	}
}
