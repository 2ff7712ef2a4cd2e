package rules

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dronebutler/internal/models"
)

// RuleSet is an ordered collection of rules sharing required conditions,
// default conditions, a default action and default notify targets.
type RuleSet struct {
	Name               string       `yaml:"name" json:"name"`
	RequiredConditions []*Condition `yaml:"required_conditions,omitempty" json:"required_conditions,omitempty"`
	DefaultConditions  []*Condition `yaml:"default_conditions,omitempty" json:"default_conditions,omitempty"`
	DefaultAction      RuleAction   `yaml:"default_action,omitempty" json:"default_action,omitempty"`
	DefaultNotify      ValueList    `yaml:"default_notify,omitempty" json:"default_notify,omitempty"`
	Rules              []*Rule      `yaml:"rules" json:"rules"`

	logger arbor.ILogger
}

// WithLogger attaches a logger used for post-emit action diagnostics.
func (rs *RuleSet) WithLogger(logger arbor.ILogger) *RuleSet {
	rs.logger = logger
	return rs
}

func (rs *RuleSet) log() arbor.ILogger {
	if rs.logger == nil {
		return arbor.NewLogger()
	}
	return rs.logger
}

// Validate checks every condition of the set and its rules, aggregating
// construction-time failures.
func (rs *RuleSet) Validate() error {
	var failures []*ConditionFailure
	for _, condition := range rs.RequiredConditions {
		if failure := condition.Validate(); failure != nil {
			failures = append(failures, failure)
		}
	}
	for _, condition := range rs.DefaultConditions {
		if failure := condition.Validate(); failure != nil {
			failures = append(failures, failure)
		}
	}
	for _, rule := range rs.Rules {
		failures = append(failures, rule.Validate()...)
	}
	if len(failures) > 0 {
		return &InvalidRuleSetError{Name: rs.Name, Failures: failures}
	}
	return nil
}

// Apply evaluates the rule set against the context and returns the ordered
// list of matched rules.
//
// The required conditions act as a gate: when every one of them fails, the
// default action decides whether analysis proceeds (NEXT_RULE, OMIT_FAILED,
// unset), stops silently (SKIP_ANALYSIS), or stops with a single synthetic
// MatchedRule (ABRUPT_INTERRUPTION, REQUEST_CANCELATION; the latter also
// carries the cancelation marker).
func (rs *RuleSet) Apply(ctx *models.AnalysisContext) []*MatchedRule {
	_, requiredFailures := NewConditionSet(rs.RequiredConditions...).Apply(ctx)

	if len(rs.RequiredConditions) > 0 && len(requiredFailures) == len(rs.RequiredConditions) {
		switch rs.DefaultAction {
		case ActionSkipAnalysis:
			return nil
		case ActionAbruptInterruption, ActionRequestCancelation:
			synthetic := &MatchedRule{
				Rule: &Rule{
					Name:   rs.Name + ".required_conditions",
					Action: rs.DefaultAction,
					Notify: rs.DefaultNotify,
				},
				InvalidConditions:    requiredFailures,
				CancelationRequested: rs.DefaultAction == ActionRequestCancelation,
			}
			return []*MatchedRule{synthetic}
		}
	}

	preconditions := make([]*Condition, 0, len(rs.RequiredConditions)+len(rs.DefaultConditions))
	preconditions = append(preconditions, rs.RequiredConditions...)
	preconditions = append(preconditions, rs.DefaultConditions...)

	var results []*MatchedRule
	for _, rule := range rs.Rules {
		spliced := rule.
			WithPreconditions(preconditions...).
			WithDefaultAction(rs.DefaultAction).
			WithDefaultNotify(rs.DefaultNotify)

		matched, invalid := spliced.Apply(ctx)
		if len(matched) == 0 && len(invalid) == 0 {
			continue
		}

		if spliced.Action != ActionOmitFailed {
			results = append(results, &MatchedRule{
				Rule:              spliced,
				MatchedConditions: matched,
				InvalidConditions: invalid,
			})
		}

		switch spliced.Action {
		case ActionNextRule, ActionOmitFailed:
			// keep iterating
		case ActionSkipAnalysis:
			return results
		default:
			rs.log().Warn().
				Str("ruleset", rs.Name).
				Str("rule", spliced.Name).
				Str("action", string(spliced.Action)).
				Msg("Unhandled post-match action, continuing")
		}
	}
	return results
}
