// Package rules implements the build-analysis rule engine: conditions over
// a (build, stage, step) context, rules grouping conditions with an action,
// and rule sets applied in declaration order. Evaluation failures are
// collected as data and never propagate out of Apply.
package rules

import (
	"regexp"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"github.com/ternarybob/dronebutler/internal/models"
)

// MatchType identifies which matcher produced a MatchedCondition.
type MatchType string

// Matcher evaluation order is fixed; matched conditions carry the type of
// the matcher that fired.
const (
	MatchContainsString MatchType = "CONTAINS_STRING"
	MatchRegex          MatchType = "MATCHES_REGEX"
	MatchValue          MatchType = "MATCHES_VALUE"
	MatchIsNot          MatchType = "IS_NOT"
	MatchValueExact     MatchType = "VALUE_EXACT"
)

// Condition is a predicate over one attribute of one context element.
// At least one matcher must be declared.
type Condition struct {
	ContextElement  string    `yaml:"context_element" json:"context_element"`
	TargetAttribute ValueList `yaml:"target_attribute" json:"target_attribute"`

	ContainsString ValueList `yaml:"contains_string,omitempty" json:"contains_string,omitempty"`
	MatchesRegex   string    `yaml:"matches_regex,omitempty" json:"matches_regex,omitempty"`
	MatchesValue   ValueList `yaml:"matches_value,omitempty" json:"matches_value,omitempty"`
	IsNot          Scalar    `yaml:"is_not,omitempty" json:"is_not,omitempty"`
	ValueExact     Scalar    `yaml:"value_exact,omitempty" json:"value_exact,omitempty"`

	// Required defaults to true when nil.
	Required *bool `yaml:"required,omitempty" json:"required,omitempty"`

	PossibleProblem  string `yaml:"possible_problem,omitempty" json:"possible_problem,omitempty"`
	PossibleSolution string `yaml:"possible_solution,omitempty" json:"possible_solution,omitempty"`

	// Conditions are shared across worker goroutines; the compiled regex
	// is written exactly once and read-only afterwards.
	regexOnce sync.Once
	regex     *regexp.Regexp
	regexErr  error
}

// Optional marks a condition as non-required, for literal construction.
func Optional() *bool {
	b := false
	return &b
}

// IsRequired reports whether the condition gates its rule.
func (c *Condition) IsRequired() bool {
	return c.Required == nil || *c.Required
}

// AttributePath is the dot-joined target attribute path.
func (c *Condition) AttributePath() string {
	return strings.Join(c.TargetAttribute.Values, ".")
}

// Location identifies the addressed attribute, e.g. "step.output.lines".
func (c *Condition) Location() string {
	return c.ContextElement + "." + c.AttributePath()
}

func (c *Condition) matcherCount() int {
	n := 0
	if !c.ContainsString.Empty() {
		n++
	}
	if c.MatchesRegex != "" {
		n++
	}
	if !c.MatchesValue.Empty() {
		n++
	}
	if c.IsNot.IsSet() {
		n++
	}
	if c.ValueExact.IsSet() {
		n++
	}
	return n
}

// Validate checks the condition at construction time: the context element
// must be known, the attribute path must be on the fixed DSL surface, at
// least one matcher must be declared and any regex must compile.
func (c *Condition) Validate() *ConditionFailure {
	if c.ContextElement == "" {
		return invalidCondition(c, "missing context_element")
	}
	if !validElement(c.ContextElement) {
		return invalidCondition(c, "%q is not a valid context element (build, stage, step)", c.ContextElement)
	}
	if c.TargetAttribute.Empty() {
		return invalidCondition(c, "missing target_attribute")
	}
	if !validPath(c.ContextElement, c.TargetAttribute.Values) {
		return invalidCondition(c, "unknown attribute %s.%s", c.ContextElement, c.AttributePath())
	}
	if c.matcherCount() == 0 {
		return invalidCondition(c, "condition on %s declares no matchers", c.Location())
	}
	if c.MatchesRegex != "" {
		c.regexOnce.Do(func() {
			c.regex, c.regexErr = regexp.Compile("(?ims)" + c.MatchesRegex)
		})
		if c.regexErr != nil {
			return invalidCondition(c, "invalid regex %q: %v", c.MatchesRegex, c.regexErr)
		}
	}
	return nil
}

// MatchedCondition records one matcher firing against a resolved value.
type MatchedCondition struct {
	Condition *Condition `json:"condition"`
	Location  string     `json:"location"`
	Value     []string   `json:"value"`
	MatchType MatchType  `json:"match_type"`
}

// Apply resolves the target attribute and evaluates every declared matcher
// in fixed order (contains_string, matches_regex, matches_value, is_not,
// value_exact), producing one MatchedCondition per matcher that fires.
// A required condition with no fired matcher yields a ConditionRequired
// failure; a missing attribute yields an InvalidCondition failure.
func (c *Condition) Apply(ctx *models.AnalysisContext) ([]MatchedCondition, *ConditionFailure) {
	if failure := c.Validate(); failure != nil {
		return nil, failure
	}

	value, ok := lookup(ctx, c.ContextElement, c.TargetAttribute.Values)
	if !ok {
		return nil, invalidCondition(c, "could not resolve %s in context", c.Location())
	}

	var matched []MatchedCondition
	record := func(t MatchType) {
		matched = append(matched, MatchedCondition{
			Condition: c,
			Location:  c.Location(),
			Value:     value,
			MatchType: t,
		})
	}

	if !c.ContainsString.Empty() && containsAny(c.ContainsString.Values, value) {
		record(MatchContainsString)
	}
	if c.regex != nil && c.regex.MatchString(strings.Join(value, "\n")) {
		record(MatchRegex)
	}
	if !c.MatchesValue.Empty() && matchesValue(c.MatchesValue, value) {
		record(MatchValue)
	}
	if c.IsNot.IsSet() && !valueEquals(value, c.IsNot.String()) {
		record(MatchIsNot)
	}
	if c.ValueExact.IsSet() && valueEquals(value, c.ValueExact.String()) {
		record(MatchValueExact)
	}

	if len(matched) == 0 && c.IsRequired() {
		return nil, conditionRequired(c)
	}
	return matched, nil
}

// containsAny reports whether any needle and any candidate satisfy mutual
// substring or shell-glob containment, in either direction.
func containsAny(needles, candidates []string) bool {
	for _, needle := range needles {
		for _, candidate := range candidates {
			if strings.Contains(candidate, needle) || strings.Contains(needle, candidate) {
				return true
			}
			if globMatch(needle, candidate) || globMatch(candidate, needle) {
				return true
			}
		}
	}
	return false
}

// matchesValue applies the declared patterns to the resolved value: a list
// means any member matches any candidate via glob, a scalar means exact
// equality.
func matchesValue(patterns ValueList, candidates []string) bool {
	if patterns.Scalar {
		return valueEquals(candidates, patterns.Values[0])
	}
	for _, pattern := range patterns.Values {
		for _, candidate := range candidates {
			if globMatch(pattern, candidate) {
				return true
			}
		}
	}
	return false
}

func valueEquals(candidates []string, target string) bool {
	for _, candidate := range candidates {
		if candidate == target {
			return true
		}
	}
	return false
}

func globMatch(pattern, candidate string) bool {
	g, err := glob.Compile(pattern)
	if err != nil {
		return false
	}
	return g.Match(candidate)
}
