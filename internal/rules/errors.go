package rules

import "fmt"

// FailureKind classifies a condition failure collected during evaluation.
type FailureKind string

// Condition failure kinds. These are collected as data, never raised across
// the engine boundary.
const (
	FailureInvalidCondition  FailureKind = "InvalidCondition"
	FailureConditionRequired FailureKind = "ConditionRequired"
)

// ConditionFailure records why a condition could not produce a match.
type ConditionFailure struct {
	Kind      FailureKind `json:"kind"`
	Condition *Condition  `json:"condition,omitempty"`
	Message   string      `json:"message"`
}

func (f *ConditionFailure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func invalidCondition(c *Condition, format string, args ...any) *ConditionFailure {
	return &ConditionFailure{
		Kind:      FailureInvalidCondition,
		Condition: c,
		Message:   fmt.Sprintf(format, args...),
	}
}

func conditionRequired(c *Condition) *ConditionFailure {
	return &ConditionFailure{
		Kind:      FailureConditionRequired,
		Condition: c,
		Message:   fmt.Sprintf("required condition on %s.%s produced no match", c.ContextElement, c.AttributePath()),
	}
}

// InvalidRuleSetError aggregates construction-time condition failures for a
// whole rule set, surfaced by the loader.
type InvalidRuleSetError struct {
	Name     string
	Failures []*ConditionFailure
}

func (e *InvalidRuleSetError) Error() string {
	return fmt.Sprintf("rule set %q has %d invalid conditions", e.Name, len(e.Failures))
}
