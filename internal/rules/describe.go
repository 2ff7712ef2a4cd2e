package rules

import "github.com/ternarybob/dronebutler/internal/models"

// MatchDescription is the serializable projection of a MatchedRule, stored
// on the build row and rendered by notifiers.
type MatchDescription struct {
	RuleName             string                 `json:"rule_name"`
	Action               string                 `json:"action,omitempty"`
	Notify               []string               `json:"notify,omitempty"`
	MatchedConditions    []ConditionDescription `json:"matched_conditions,omitempty"`
	InvalidConditions    []string               `json:"invalid_conditions,omitempty"`
	PossibleProblem      string                 `json:"possible_problem,omitempty"`
	PossibleSolution     string                 `json:"possible_solution,omitempty"`
	CancelationRequested bool                   `json:"cancelation_requested,omitempty"`
}

// ConditionDescription summarizes one fired matcher.
type ConditionDescription struct {
	Location  string    `json:"location"`
	Value     []string  `json:"value,omitempty"`
	MatchType MatchType `json:"match_type"`
}

// Describe projects the matched rule for persistence and notification,
// interpolating annotations against the context.
func (m *MatchedRule) Describe(ctx *models.AnalysisContext) *MatchDescription {
	desc := &MatchDescription{
		RuleName:             m.Rule.Name,
		Action:               string(m.Rule.Action),
		Notify:               m.Rule.Notify.Values,
		PossibleProblem:      m.PossibleProblem(ctx),
		PossibleSolution:     m.PossibleSolution(ctx),
		CancelationRequested: m.CancelationRequested,
	}
	for _, matched := range m.MatchedConditions {
		desc.MatchedConditions = append(desc.MatchedConditions, ConditionDescription{
			Location:  matched.Location,
			Value:     matched.Value,
			MatchType: matched.MatchType,
		})
	}
	for _, failure := range m.InvalidConditions {
		desc.InvalidConditions = append(desc.InvalidConditions, failure.Error())
	}
	return desc
}

// DescribeAll projects a list of matched rules.
func DescribeAll(matches []*MatchedRule, ctx *models.AnalysisContext) []*MatchDescription {
	descriptions := make([]*MatchDescription, 0, len(matches))
	for _, match := range matches {
		descriptions = append(descriptions, match.Describe(ctx))
	}
	return descriptions
}
