package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dronebutler/internal/models"
	"github.com/ternarybob/dronebutler/internal/rules"
)

type fakePoster struct {
	channels []string
	blocks   int
	err      error
}

func (f *fakePoster) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	f.channels = append(f.channels, channelID)
	f.blocks++
	return channelID, "ts", f.err
}

func analysisFixture() (*models.AnalysisContext, []*rules.MatchedRule) {
	step := &models.Step{Number: 1, Name: "deploy-gke", Status: models.StatusFailure, ExitCode: 1}
	stage := &models.Stage{Number: 1, Name: "deploy", Status: models.StatusFailure}
	build := &models.Build{
		Number: 17,
		Link:   "https://github.com/acme/widgets/pull/17",
		Ref:    "refs/heads/Bad_Branch",
	}
	ctx := &models.AnalysisContext{Build: build, Stage: stage, Step: step}

	match := &rules.MatchedRule{
		Rule: &rules.Rule{Name: "GitBranchNameInvalidForGKEDeploy", Action: rules.ActionSkipAnalysis},
		MatchedConditions: []rules.MatchedCondition{
			{
				Condition: &rules.Condition{
					ContextElement:  rules.ElementStep,
					TargetAttribute: rules.Values("output", "lines"),
					MatchesRegex:    "a DNS-1123 label",
					PossibleProblem: "your branch name is invalid: {build.ref}",
				},
				Location:  "step.output.lines",
				MatchType: rules.MatchRegex,
			},
		},
	}
	return ctx, []*rules.MatchedRule{match}
}

func newTestNotifier(poster slackPoster, defaultChannel string) *SlackNotifier {
	return &SlackNotifier{
		client:         poster,
		defaultChannel: defaultChannel,
		logger:         arbor.NewLogger(),
	}
}

func TestNotifyPostsToUserDM(t *testing.T) {
	poster := &fakePoster{}
	notifier := newTestNotifier(poster, "C0GENERAL")
	analysisCtx, matches := analysisFixture()

	user := &models.User{GithubUsername: "octocat", SlackUserID: "W012345"}
	require.NoError(t, notifier.Notify(context.Background(), user, analysisCtx, matches))
	assert.Equal(t, []string{"W012345"}, poster.channels)
}

func TestNotifyFallsBackToDefaultChannel(t *testing.T) {
	poster := &fakePoster{}
	notifier := newTestNotifier(poster, "C0GENERAL")
	analysisCtx, matches := analysisFixture()

	user := &models.User{GithubUsername: "octocat"}
	require.NoError(t, notifier.Notify(context.Background(), user, analysisCtx, matches))
	assert.Equal(t, []string{"C0GENERAL"}, poster.channels)
}

func TestNotifyWithoutChannelFails(t *testing.T) {
	notifier := newTestNotifier(&fakePoster{}, "")
	analysisCtx, matches := analysisFixture()

	err := notifier.Notify(context.Background(), &models.User{GithubUsername: "octocat"}, analysisCtx, matches)
	assert.Error(t, err)
}

func TestNotifySkipsEmptyMatches(t *testing.T) {
	poster := &fakePoster{}
	notifier := newTestNotifier(poster, "C0GENERAL")
	analysisCtx, _ := analysisFixture()

	require.NoError(t, notifier.Notify(context.Background(), &models.User{}, analysisCtx, nil))
	assert.Empty(t, poster.channels)
}

func TestNotifySurfacesPostErrors(t *testing.T) {
	poster := &fakePoster{err: errors.New("channel_not_found")}
	notifier := newTestNotifier(poster, "C0GENERAL")
	analysisCtx, matches := analysisFixture()

	err := notifier.Notify(context.Background(), &models.User{SlackUserID: "W1"}, analysisCtx, matches)
	assert.Error(t, err)
}

func TestBuildBlocksInterpolatesAnnotations(t *testing.T) {
	analysisCtx, matches := analysisFixture()

	blocks := buildBlocks(analysisCtx, matches)
	require.NotEmpty(t, blocks)

	var rendered string
	for _, block := range blocks {
		if section, ok := block.(*slack.SectionBlock); ok && section.Text != nil {
			rendered += section.Text.Text + "\n"
		}
	}
	assert.Contains(t, rendered, "GitBranchNameInvalidForGKEDeploy")
	assert.Contains(t, rendered, "your branch name is invalid: refs/heads/Bad_Branch")
	assert.Contains(t, rendered, "*Stage:* deploy")
	assert.Contains(t, rendered, "*Step:* deploy-gke")
}
