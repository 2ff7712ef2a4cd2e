package rules

import (
	"github.com/ternarybob/dronebutler/internal/models"
)

// RuleAction decides how the rule set iteration proceeds after a rule
// produces a result.
type RuleAction string

// Rule actions.
const (
	ActionUnset              RuleAction = ""
	ActionNextRule           RuleAction = "NEXT_RULE"
	ActionOmitFailed         RuleAction = "OMIT_FAILED"
	ActionSkipAnalysis       RuleAction = "SKIP_ANALYSIS"
	ActionRequestCancelation RuleAction = "REQUEST_CANCELATION"
	ActionAbruptInterruption RuleAction = "ABRUPT_INTERRUPTION"
)

// ConditionSet is an ordered unique collection of conditions.
type ConditionSet struct {
	Conditions []*Condition
}

// NewConditionSet builds a set preserving order and dropping duplicate
// condition pointers.
func NewConditionSet(conditions ...*Condition) ConditionSet {
	set := ConditionSet{}
	seen := make(map[*Condition]bool, len(conditions))
	for _, c := range conditions {
		if c == nil || seen[c] {
			continue
		}
		seen[c] = true
		set.Conditions = append(set.Conditions, c)
	}
	return set
}

// Apply evaluates every condition in insertion order. A failing condition
// never stops the set: its failure is collected and evaluation continues.
func (s ConditionSet) Apply(ctx *models.AnalysisContext) ([]MatchedCondition, []*ConditionFailure) {
	var matched []MatchedCondition
	var invalid []*ConditionFailure

	for _, condition := range s.Conditions {
		results, failure := condition.Apply(ctx)
		if failure != nil {
			invalid = append(invalid, failure)
			continue
		}
		matched = append(matched, results...)
	}
	return matched, invalid
}

// Rule groups a condition set with a post-match action and notify targets.
type Rule struct {
	Name       string       `yaml:"name" json:"name"`
	Conditions []*Condition `yaml:"conditions" json:"conditions"`
	Action     RuleAction   `yaml:"action,omitempty" json:"action,omitempty"`
	Notify     ValueList    `yaml:"notify,omitempty" json:"notify,omitempty"`
}

// WithPreconditions returns a copy of the rule with the given conditions
// spliced in front of its own. Conditions already present are not repeated.
func (r *Rule) WithPreconditions(conditions ...*Condition) *Rule {
	clone := *r
	merged := make([]*Condition, 0, len(conditions)+len(r.Conditions))
	merged = append(merged, conditions...)
	merged = append(merged, r.Conditions...)
	clone.Conditions = NewConditionSet(merged...).Conditions
	return &clone
}

// WithDefaultAction returns a copy with the action filled only if unset.
func (r *Rule) WithDefaultAction(action RuleAction) *Rule {
	if r.Action != ActionUnset {
		return r
	}
	clone := *r
	clone.Action = action
	return &clone
}

// WithDefaultNotify returns a copy with notify targets filled only if unset.
func (r *Rule) WithDefaultNotify(notify ValueList) *Rule {
	if !r.Notify.Empty() {
		return r
	}
	clone := *r
	clone.Notify = notify
	return &clone
}

// Validate checks every condition of the rule at construction time.
func (r *Rule) Validate() []*ConditionFailure {
	var failures []*ConditionFailure
	for _, condition := range r.Conditions {
		if failure := condition.Validate(); failure != nil {
			failures = append(failures, failure)
		}
	}
	return failures
}

// Apply evaluates the rule's condition set against the context. When any
// required condition produced no match the rule is inapplicable, not
// failed: both result lists come back empty.
func (r *Rule) Apply(ctx *models.AnalysisContext) ([]MatchedCondition, []*ConditionFailure) {
	matched, invalid := NewConditionSet(r.Conditions...).Apply(ctx)

	for _, failure := range invalid {
		if failure.Kind == FailureConditionRequired {
			return nil, nil
		}
	}
	return matched, invalid
}

// MatchedRule is the outcome of a rule producing matched or invalid
// conditions during a rule set application.
type MatchedRule struct {
	Rule                 *Rule               `json:"rule"`
	MatchedConditions    []MatchedCondition  `json:"matched_conditions,omitempty"`
	InvalidConditions    []*ConditionFailure `json:"invalid_conditions,omitempty"`
	CancelationRequested bool                `json:"cancelation_requested,omitempty"`
}

// PossibleProblem returns the first problem annotation among the matched
// conditions, interpolated against the context.
func (m *MatchedRule) PossibleProblem(ctx *models.AnalysisContext) string {
	for _, matched := range m.MatchedConditions {
		if matched.Condition.PossibleProblem != "" {
			return Interpolate(matched.Condition.PossibleProblem, ctx)
		}
	}
	return ""
}

// PossibleSolution returns the first solution annotation among the matched
// conditions, interpolated against the context.
func (m *MatchedRule) PossibleSolution(ctx *models.AnalysisContext) string {
	for _, matched := range m.MatchedConditions {
		if matched.Condition.PossibleSolution != "" {
			return Interpolate(matched.Condition.PossibleSolution, ctx)
		}
	}
	return ""
}
