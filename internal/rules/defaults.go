package rules

import "fmt"

// DefaultRuleSet builds the built-in pull-request analysis rule set for a
// repository. It gates on PR builds of the given owner/repo with a failed
// or running step, requires a nonzero exit code by default, and carries the
// known failure signatures.
func DefaultRuleSet(owner, repo string) *RuleSet {
	project := fmt.Sprintf("%s/%s", owner, repo)

	return &RuleSet{
		Name: fmt.Sprintf("%s_pr", repo),
		RequiredConditions: []*Condition{
			{
				ContextElement:  ElementBuild,
				TargetAttribute: Value("link"),
				ContainsString:  Value(project),
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
				Name: "ValidateDocsPrettified",
				Conditions: []*Condition{
					{
						ContextElement:   ElementStep,
						TargetAttribute:  Values("output", "lines"),
						MatchesRegex:     "prettier:docs",
						PossibleProblem:  "changed docs without following our formatting style.",
						PossibleSolution: "run `yarn prettier:docs` to fix the issue",
					},
				},
				Action: ActionNextRule,
			},
			{
				Name: "SlackServerError",
				Conditions: []*Condition{
					{
						ContextElement:  ElementStep,
						TargetAttribute: Value("name"),
						ContainsString:  Value("slack"),
					},
					{
						ContextElement:  ElementStep,
						TargetAttribute: Values("output", "lines"),
						ContainsString:  Value("server error"),
					},
				},
			},
			{
				Name: "GitBranchNameInvalidForGKEDeploy",
				Conditions: []*Condition{
					{
						ContextElement:  ElementStep,
						TargetAttribute: Values("output", "lines"),
						MatchesRegex:    "a DNS-1123 label must consist of lower case",
						PossibleProblem: "your branch name is invalid: {build.ref}",
						PossibleSolution: "1. Create a new branch off of {build.ref}, e.g.:\n" +
							"`git checkout {build.ref} && git co -b new-name-properly-formatted`\n" +
							"\n" +
							"2. Delete this invalid branch locally\n" +
							"`git branch -D {build.ref}`\n" +
							"\n" +
							"3. Delete this invalid branch remotely\n" +
							"`git push origin :{build.ref}`",
					},
				},
				Action: ActionSkipAnalysis,
			},
			{
				Name: "SamizdatConnectionError",
				Conditions: []*Condition{
					{
						ContextElement:  ElementStep,
						TargetAttribute: Values("output", "lines"),
						ContainsString:  Values("ECONNREFUSED", "samizdat"),
					},
				},
				Action: ActionSkipAnalysis,
			},
			{
				Name: "GitMergeConflict",
				Conditions: []*Condition{
					{
						ContextElement:  ElementStep,
						TargetAttribute: Values("output", "lines"),
						MatchesRegex:    "(not something we can merge|Automatic merge failed; fix conflicts)",
					},
				},
				Action: ActionSkipAnalysis,
			},
			{
				Name: "YarnDependencyNotResolved",
				Conditions: []*Condition{
					{
						ContextElement:  ElementStep,
						TargetAttribute: Value("name"),
						MatchesValue:    Value("node_modules"),
					},
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
