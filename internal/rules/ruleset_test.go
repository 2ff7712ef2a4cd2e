package rules

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/dronebutler/internal/models"
)

func yarnFailureContext() *models.AnalysisContext {
	step := &models.Step{
		Number:   2,
		Name:     "node_modules",
		Status:   models.StatusFailure,
		ExitCode: 1,
		Output: &models.Output{Lines: []models.OutputLine{
			{Pos: 0, Out: `Couldn't find any versions for "react" that matches "2021"`},
		}},
	}
	stage := &models.Stage{Number: 1, Name: "build", Status: models.StatusFailure, Steps: []*models.Step{step}}
	build := &models.Build{
		Number: 138785,
		Status: models.StatusFailure,
		Link:   "https://drone.example.com/acme/repo/pull/138785",
		Stages: []*models.Stage{stage},
	}
	return &models.AnalysisContext{Build: build, Stage: stage, Step: step}
}

func yarnRuleSet() *RuleSet {
	return &RuleSet{
		Name: "acme_repo_pr",
		RequiredConditions: []*Condition{
			{
				ContextElement:  ElementBuild,
				TargetAttribute: Value("link"),
				ContainsString:  Value("acme/repo"),
			},
			{
				ContextElement:  ElementBuild,
				TargetAttribute: Value("link"),
				ContainsString:  Value("/pull/"),
			},
			{
				ContextElement:  ElementStep,
				TargetAttribute: Value("status"),
				MatchesValue:    Values("fail*", "running"),
			},
		},
		DefaultConditions: []*Condition{
			{
				ContextElement:  ElementStep,
				TargetAttribute: Value("exit_code"),
				IsNot:           NewScalar(0),
			},
		},
		DefaultAction: ActionNextRule,
		DefaultNotify: Values("slack"),
		Rules: []*Rule{
			{
				Name: "YarnDependencyNotResolved",
				Conditions: []*Condition{
					{
						ContextElement:  ElementStep,
						TargetAttribute: Values("output", "lines"),
						MatchesRegex:    `Couldn't find any versions for\s*("([^"]+)" that matches "([^"]+)")?`,
					},
				},
				Action: ActionSkipAnalysis,
			},
		},
	}
}

// Scenario: a PR build of acme/repo fails its node_modules step with an
// unresolvable yarn version; the rule set yields exactly one matched rule
// with five matched conditions, in declaration order.
func TestYarnDependencyNotResolvedHit(t *testing.T) {
	ctx := yarnFailureContext()
	matches := yarnRuleSet().Apply(ctx)

	require.Len(t, matches, 1)
	match := matches[0]
	assert.Equal(t, "YarnDependencyNotResolved", match.Rule.Name)
	assert.Empty(t, match.InvalidConditions)

	require.Len(t, match.MatchedConditions, 5)
	expected := []struct {
		location  string
		matchType MatchType
	}{
		{"build.link", MatchContainsString},
		{"build.link", MatchContainsString},
		{"step.status", MatchValue},
		{"step.exit_code", MatchIsNot},
		{"step.output.lines", MatchRegex},
	}
	for i, want := range expected {
		assert.Equal(t, want.location, match.MatchedConditions[i].Location, "condition %d", i)
		assert.Equal(t, want.matchType, match.MatchedConditions[i].MatchType, "condition %d", i)
	}
}

func TestOmitFailedSuppressesMatchedRule(t *testing.T) {
	ctx := yarnFailureContext()

	rs := &RuleSet{
		Name: "omit",
		Rules: []*Rule{
			{
				Name: "StepSucceeded",
				Conditions: []*Condition{
					{
						ContextElement:  ElementStep,
						TargetAttribute: Value("exit_code"),
						ValueExact:      NewScalar(0),
					},
				},
				Action: ActionOmitFailed,
			},
		},
	}

	matches := rs.Apply(ctx)
	assert.Empty(t, matches)
}

// ungatedContext fails every required condition of yarnRuleSet: the build
// is not a PR of acme/repo and the step neither failed nor is running.
func ungatedContext() *models.AnalysisContext {
	ctx := yarnFailureContext()
	ctx.Build.Link = "https://drone.example.com/other/project/55"
	ctx.Step.Status = models.StatusSuccess
	return ctx
}

func TestSkipAnalysisShortCircuit(t *testing.T) {
	ctx := ungatedContext()

	rs := yarnRuleSet()
	rs.DefaultAction = ActionSkipAnalysis
	rs.Rules = []*Rule{
		{
			// Would match if evaluated; an empty result proves the
			// short-circuit happened before any rule ran.
			Name: "MustNotRun",
			Conditions: []*Condition{
				{
					ContextElement:  ElementStep,
					TargetAttribute: Value("exit_code"),
					IsNot:           NewScalar(0),
				},
			},
		},
	}

	matches := rs.Apply(ctx)
	assert.Empty(t, matches)
}

func TestAbruptInterruptionSingleSyntheticResult(t *testing.T) {
	ctx := ungatedContext()

	rs := yarnRuleSet()
	rs.DefaultAction = ActionAbruptInterruption

	matches := rs.Apply(ctx)
	require.Len(t, matches, 1)
	assert.Equal(t, "acme_repo_pr.required_conditions", matches[0].Rule.Name)
	assert.Empty(t, matches[0].MatchedConditions)
	assert.Len(t, matches[0].InvalidConditions, 3)
	assert.False(t, matches[0].CancelationRequested)
}

func TestRequestCancelationCarriesMarker(t *testing.T) {
	ctx := ungatedContext()

	rs := yarnRuleSet()
	rs.DefaultAction = ActionRequestCancelation

	matches := rs.Apply(ctx)
	require.Len(t, matches, 1)
	assert.True(t, matches[0].CancelationRequested)
}

func TestRequiredGatingReturnsEmpty(t *testing.T) {
	ctx := yarnFailureContext()
	ctx.Step.Name = "lint"

	rule := &Rule{
		Name: "YarnOnly",
		Conditions: []*Condition{
			{
				ContextElement:  ElementStep,
				TargetAttribute: Value("name"),
				MatchesValue:    Value("node_modules"),
			},
			{
				ContextElement:  ElementStep,
				TargetAttribute: Value("exit_code"),
				IsNot:           NewScalar(0),
			},
		},
	}

	matched, invalid := rule.Apply(ctx)
	assert.Empty(t, matched)
	assert.Empty(t, invalid)
}

func TestRuleSetDeterminism(t *testing.T) {
	ctx := yarnFailureContext()
	rs := yarnRuleSet()

	first := DescribeAll(rs.Apply(ctx), ctx)
	second := DescribeAll(rs.Apply(ctx), ctx)
	assert.Equal(t, first, second)
}

// One rule set instance is shared by every worker goroutine, so Apply must
// be safe to call concurrently. Run with -race.
func TestRuleSetConcurrentApply(t *testing.T) {
	ctx := yarnFailureContext()
	rs := yarnRuleSet()
	want := DescribeAll(rs.Apply(ctx), ctx)

	const goroutines = 8
	const iterations = 50

	results := make([][]*MatchDescription, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var last []*MatchDescription
			for j := 0; j < iterations; j++ {
				last = DescribeAll(rs.Apply(yarnFailureContext()), ctx)
			}
			results[i] = last
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		assert.Equal(t, want, got, "goroutine %d", i)
	}
}

func TestPartiallyFailedRequiredConditionsStillGateRules(t *testing.T) {
	// One of three required conditions fails: the gate does not trip, but
	// every rule spliced with the failing required condition comes back
	// inapplicable.
	ctx := yarnFailureContext()
	ctx.Step.Status = models.StatusSuccess

	matches := yarnRuleSet().Apply(ctx)
	assert.Empty(t, matches)
}

func TestDefaultRuleSetMatchesSlackServerError(t *testing.T) {
	step := &models.Step{
		Number:   4,
		Name:     "notify-slack",
		Status:   models.StatusFailure,
		ExitCode: 1,
		Output: &models.Output{Lines: []models.OutputLine{
			{Pos: 0, Out: "POST https://slack.com/api/chat.postMessage: server error"},
		}},
	}
	stage := &models.Stage{Number: 2, Name: "notify", Status: models.StatusFailure, Steps: []*models.Step{step}}
	build := &models.Build{
		Number: 99,
		Status: models.StatusFailure,
		Link:   "https://github.com/acme/widgets/pull/77",
		Stages: []*models.Stage{stage},
	}
	ctx := &models.AnalysisContext{Build: build, Stage: stage, Step: step}

	rs := DefaultRuleSet("acme", "widgets")
	require.NoError(t, rs.Validate())

	matches := rs.Apply(ctx)
	require.Len(t, matches, 1)
	assert.Equal(t, "SlackServerError", matches[0].Rule.Name)
	assert.Equal(t, []string{"slack"}, matches[0].Rule.Notify.Values)
}

func TestDefaultRuleSetInterpolatesAnnotations(t *testing.T) {
	step := &models.Step{
		Number:   1,
		Name:     "deploy-gke",
		Status:   models.StatusFailure,
		ExitCode: 1,
		Output: &models.Output{Lines: []models.OutputLine{
			{Pos: 0, Out: "a DNS-1123 label must consist of lower case alphanumeric characters"},
		}},
	}
	stage := &models.Stage{Number: 1, Name: "deploy", Status: models.StatusFailure, Steps: []*models.Step{step}}
	build := &models.Build{
		Number: 100,
		Status: models.StatusFailure,
		Link:   "https://github.com/acme/widgets/pull/78",
		Ref:    "refs/heads/My_Bad_Branch",
		Stages: []*models.Stage{stage},
	}
	ctx := &models.AnalysisContext{Build: build, Stage: stage, Step: step}

	matches := DefaultRuleSet("acme", "widgets").Apply(ctx)
	require.Len(t, matches, 1)
	assert.Equal(t, "GitBranchNameInvalidForGKEDeploy", matches[0].Rule.Name)
	assert.Equal(t, "your branch name is invalid: refs/heads/My_Bad_Branch", matches[0].PossibleProblem(ctx))
}
