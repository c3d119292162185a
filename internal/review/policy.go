package review

import (
	"encoding/json"
	"fmt"

	"github.com/JaimeStill/vigil/internal/faults"
)

// ActivationPolicy routes a label to human review when its confidence lies
// strictly between Lower and Upper. Labels at or above Upper are accepted as
// certain; labels at or below Lower are treated as clean.
type ActivationPolicy struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Validate rejects inverted or out-of-range bounds.
func (p ActivationPolicy) Validate() error {
	if p.Lower < 0 || p.Upper > 100 || p.Lower >= p.Upper {
		return fmt.Errorf("%w: activation bounds (%v, %v)", faults.ErrValidation, p.Lower, p.Upper)
	}
	return nil
}

// Routes reports whether a label with the given confidence goes to review.
func (p ActivationPolicy) Routes(confidence float64) bool {
	return confidence > p.Lower && confidence < p.Upper
}

type condition struct {
	ConditionType       string         `json:"ConditionType,omitempty"`
	ConditionParameters map[string]any `json:"ConditionParameters,omitempty"`
	And                 []condition    `json:"And,omitempty"`
}

type conditions struct {
	Conditions []condition `json:"Conditions"`
}

// Conditions renders the policy as the activation-conditions document the
// review service evaluates against every moderation label.
func (p ActivationPolicy) Conditions() (string, error) {
	doc := conditions{Conditions: []condition{{
		And: []condition{
			{
				ConditionType: "ModerationLabelConfidenceCheck",
				ConditionParameters: map[string]any{
					"ModerationLabelName": "*",
					"ConfidenceLessThan":  p.Upper,
				},
			},
			{
				ConditionType: "ModerationLabelConfidenceCheck",
				ConditionParameters: map[string]any{
					"ModerationLabelName":   "*",
					"ConfidenceGreaterThan": p.Lower,
				},
			},
		},
	}}}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
