// Package notify delivers matched-rule analyses to users as Slack block
// messages.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dronebutler/internal/common"
	"github.com/ternarybob/dronebutler/internal/interfaces"
	"github.com/ternarybob/dronebutler/internal/models"
	"github.com/ternarybob/dronebutler/internal/rules"
)

// slackPoster is the subset of the Slack API the notifier uses.
type slackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackNotifier implements Notifier over the Slack chat API.
type SlackNotifier struct {
	client         slackPoster
	defaultChannel string
	logger         arbor.ILogger
}

// NewSlackNotifier creates a new Slack notifier
func NewSlackNotifier(config *common.SlackConfig, logger arbor.ILogger) interfaces.Notifier {
	return &SlackNotifier{
		client:         slack.New(config.BotToken),
		defaultChannel: config.DefaultChannel,
		logger:         logger,
	}
}

// Notify renders the matches as a block message and posts it to the user's
// Slack DM, falling back to the default channel when the user has no
// Slack identity on record.
func (n *SlackNotifier) Notify(ctx context.Context, user *models.User, analysisCtx *models.AnalysisContext, matches []*rules.MatchedRule) error {
	if len(matches) == 0 {
		return nil
	}

	channel := n.defaultChannel
	if user != nil && user.SlackUserID != "" {
		channel = user.SlackUserID
	}
	if channel == "" {
		login := "unknown"
		if user != nil {
			login = user.GithubUsername
		}
		return fmt.Errorf("no slack channel to notify for user %s", login)
	}

	blocks := buildBlocks(analysisCtx, matches)
	_, _, err := n.client.PostMessageContext(ctx, channel, slack.MsgOptionBlocks(blocks...))
	if err != nil {
		return fmt.Errorf("failed to post slack message to %s: %w", channel, err)
	}

	n.logger.Info().
		Str("channel", channel).
		Int("matches", len(matches)).
		Msg("Analysis notification sent")
	return nil
}

// buildBlocks renders the analysis as header, build context, and one
// section per matched rule with its annotations.
func buildBlocks(analysisCtx *models.AnalysisContext, matches []*rules.MatchedRule) []slack.Block {
	build := analysisCtx.Build

	header := slack.NewHeaderBlock(slack.NewTextBlockObject(
		slack.PlainTextType,
		fmt.Sprintf("🔴 Build #%d failed", build.Number),
		true, false,
	))

	contextLines := []string{fmt.Sprintf("*Build:* <%s|#%d>", build.Link, build.Number)}
	if analysisCtx.Stage != nil {
		contextLines = append(contextLines, fmt.Sprintf("*Stage:* %s", analysisCtx.Stage.Name))
	}
	if analysisCtx.Step != nil {
		contextLines = append(contextLines, fmt.Sprintf("*Step:* %s", analysisCtx.Step.Name))
	}

	blocks := []slack.Block{
		header,
		slack.NewDividerBlock(),
		slack.NewSectionBlock(slack.NewTextBlockObject(
			slack.MarkdownType, strings.Join(contextLines, "\n"), false, false), nil, nil),
		slack.NewDividerBlock(),
	}

	for _, match := range matches {
		lines := []string{fmt.Sprintf("*%s*", match.Rule.Name)}
		if problem := match.PossibleProblem(analysisCtx); problem != "" {
			lines = append(lines, fmt.Sprintf("*Possible problem:* %s", problem))
		}
		if solution := match.PossibleSolution(analysisCtx); solution != "" {
			lines = append(lines, fmt.Sprintf("*Possible solution:*\n%s", solution))
		}
		blocks = append(blocks, slack.NewSectionBlock(slack.NewTextBlockObject(
			slack.MarkdownType, strings.Join(lines, "\n"), false, false), nil, nil))
	}

	blocks = append(blocks, slack.NewDividerBlock())
	return blocks
}
