package builds

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dronebutler/internal/common"
	"github.com/ternarybob/dronebutler/internal/interfaces"
	"github.com/ternarybob/dronebutler/internal/models"
	"github.com/ternarybob/dronebutler/internal/rules"
	"github.com/ternarybob/dronebutler/internal/storage/badger"
)

type fakeClient struct {
	build             *models.Build
	buildInfoCalls    int
	buildWithLogCalls int
}

func (f *fakeClient) GetBuilds(ctx context.Context, owner, repo string, limit, page int) ([]*models.Build, error) {
	return nil, nil
}

func (f *fakeClient) IterBuildsByPage(ctx context.Context, owner, repo string, limit, page int) (<-chan interfaces.BuildsPage, error) {
	ch := make(chan interfaces.BuildsPage)
	close(ch)
	return ch, nil
}

func (f *fakeClient) GetBuildInfo(ctx context.Context, owner, repo string, buildNumber int) (*models.Build, error) {
	f.buildInfoCalls++
	return f.build, nil
}

func (f *fakeClient) GetBuildStepOutput(ctx context.Context, owner, repo string, buildNumber, stageNumber, stepNumber int) (*models.Output, error) {
	return nil, nil
}

func (f *fakeClient) GetLatestBuild(ctx context.Context, owner, repo, branch string) (*models.Build, error) {
	return f.build, nil
}

func (f *fakeClient) InjectLogs(ctx context.Context, owner, repo string, build *models.Build) *models.Build {
	return build
}

func (f *fakeClient) GetBuildWithLogs(ctx context.Context, owner, repo string, buildNumber int) (*models.Build, error) {
	f.buildWithLogCalls++
	return f.build, nil
}

type fakeNotifier struct {
	calls int
}

func (f *fakeNotifier) Notify(ctx context.Context, user *models.User, analysisCtx *models.AnalysisContext, matches []*rules.MatchedRule) error {
	f.calls++
	return nil
}

type fakeSearch struct {
	indexed []*models.BuildDocument
}

func (f *fakeSearch) IndexBuild(ctx context.Context, doc *models.BuildDocument) error {
	f.indexed = append(f.indexed, doc)
	return nil
}

type processorFixture struct {
	processor interfaces.BuildProcessor
	client    *fakeClient
	storage   interfaces.StorageManager
	notifier  *fakeNotifier
	search    *fakeSearch
}

func newProcessorFixture(t *testing.T, build *models.Build) *processorFixture {
	t.Helper()
	logger := arbor.NewLogger()

	manager, err := badger.NewManager(logger, &common.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	client := &fakeClient{build: build}
	notifier := &fakeNotifier{}
	search := &fakeSearch{}

	cfg := &common.DroneConfig{Owner: "acme", Repo: "widgets"}
	processor := NewProcessor(cfg, client, manager,
		rules.DefaultRuleSet("acme", "widgets"), notifier, search, logger)

	return &processorFixture{
		processor: processor,
		client:    client,
		storage:   manager,
		notifier:  notifier,
		search:    search,
	}
}

func failingPRBuild() *models.Build {
	step := &models.Step{
		Number:   2,
		Name:     "notify-slack",
		Status:   models.StatusFailure,
		ExitCode: 1,
		Output: &models.Output{Lines: []models.OutputLine{
			{Pos: 0, Out: "slack API returned a server error"},
		}},
	}
	stage := &models.Stage{
		Number:   1,
		Name:     "notify",
		Status:   models.StatusFailure,
		ExitCode: 1,
		Steps:    []*models.Step{step},
	}
	return &models.Build{
		ID:          9001,
		Number:      42,
		Status:      models.StatusFailure,
		Link:        "https://github.com/acme/widgets/pull/42",
		AuthorLogin: "octocat",
		Updated:     1700000000,
		Stages:      []*models.Stage{stage},
	}
}

func optInUser(t *testing.T, f *processorFixture) {
	t.Helper()
	require.NoError(t, f.storage.UserStorage().Save(context.Background(), &models.User{
		ID:             "user_octocat",
		GithubUsername: "octocat",
		SlackUsername:  "octo",
		OptedIn:        true,
	}))
}

func TestProcessMatchesPersistsNotifiesAndIndexes(t *testing.T) {
	f := newProcessorFixture(t, failingPRBuild())
	optInUser(t, f)
	ctx := context.Background()

	require.NoError(t, f.processor.Process(ctx, 42, false))

	stored, err := f.storage.BuildStorage().Get(ctx, "acme", "widgets", 42)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.LastRulesetProcessedAt)
	require.NotNil(t, stored.OutputRetrievedAt)
	assert.Contains(t, string(stored.MatchesJSON), "SlackServerError")

	assert.Equal(t, 1, f.notifier.calls)
	require.Len(t, f.search.indexed, 1)
	assert.Equal(t, 42, f.search.indexed[0].Number)

	steps, err := f.storage.StepStorage().GetByBuild(ctx, "acme", "widgets", 42)
	require.NoError(t, err)
	assert.Len(t, steps, 1)
}

func TestProcessDropsNonPRBuilds(t *testing.T) {
	build := failingPRBuild()
	build.Link = "https://drone.example.com/acme/widgets/42"
	f := newProcessorFixture(t, build)
	optInUser(t, f)
	ctx := context.Background()

	require.NoError(t, f.processor.Process(ctx, 42, false))

	// Exactly one fetch, nothing persisted, nobody notified.
	assert.Equal(t, 1, f.client.buildInfoCalls)
	assert.Equal(t, 0, f.client.buildWithLogCalls)
	assert.Equal(t, 0, f.notifier.calls)

	count, err := f.storage.BuildStorage().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestProcessDropsAuthorsWithoutOptIn(t *testing.T) {
	f := newProcessorFixture(t, failingPRBuild())
	ctx := context.Background()

	require.NoError(t, f.processor.Process(ctx, 42, false))
	assert.Equal(t, 0, f.client.buildWithLogCalls)
	assert.Equal(t, 0, f.notifier.calls)
}

func TestProcessDropsOutOfScopeStatuses(t *testing.T) {
	build := failingPRBuild()
	build.Status = models.StatusSuccess
	f := newProcessorFixture(t, build)
	optInUser(t, f)

	require.NoError(t, f.processor.Process(context.Background(), 42, false))
	assert.Equal(t, 0, f.client.buildWithLogCalls)
}

func TestProcessIsIdempotentOnProcessedBuilds(t *testing.T) {
	f := newProcessorFixture(t, failingPRBuild())
	optInUser(t, f)
	ctx := context.Background()

	require.NoError(t, f.processor.Process(ctx, 42, false))
	require.NoError(t, f.processor.Process(ctx, 42, false))

	// The second run stops at the dedup gate: one extra GetBuildInfo and
	// nothing else.
	assert.Equal(t, 2, f.client.buildInfoCalls)
	assert.Equal(t, 1, f.client.buildWithLogCalls)
	assert.Equal(t, 1, f.notifier.calls)
	assert.Len(t, f.search.indexed, 1)
}

func TestProcessIgnoreFiltersBypassesUserAndStatusGates(t *testing.T) {
	build := failingPRBuild()
	f := newProcessorFixture(t, build)
	// No opted-in user saved.

	require.NoError(t, f.processor.Process(context.Background(), 42, true))

	stored, err := f.storage.BuildStorage().Get(context.Background(), "acme", "widgets", 42)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.NotNil(t, stored.LastRulesetProcessedAt)
	// Without a user record there is nobody to notify.
	assert.Equal(t, 0, f.notifier.calls)
}

func TestProcessIgnoreFiltersStillNotifiesOptedInAuthor(t *testing.T) {
	f := newProcessorFixture(t, failingPRBuild())
	optInUser(t, f)

	require.NoError(t, f.processor.Process(context.Background(), 42, true))

	assert.Equal(t, 1, f.notifier.calls)
}

func TestProcessIgnoreFiltersNeverNotifiesWithoutOptIn(t *testing.T) {
	f := newProcessorFixture(t, failingPRBuild())
	require.NoError(t, f.storage.UserStorage().Save(context.Background(), &models.User{
		ID:             "user_octocat",
		GithubUsername: "octocat",
		SlackUsername:  "octo",
		OptedIn:        false,
	}))

	require.NoError(t, f.processor.Process(context.Background(), 42, true))

	stored, err := f.storage.BuildStorage().Get(context.Background(), "acme", "widgets", 42)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 0, f.notifier.calls)
}

func TestProcessStampsProcessedAtEvenWithoutMatches(t *testing.T) {
	build := failingPRBuild()
	build.Stages[0].Steps[0].Output = &models.Output{Lines: []models.OutputLine{
		{Pos: 0, Out: "an unrecognized failure"},
	}}
	build.Stages[0].Steps[0].Name = "compile"
	f := newProcessorFixture(t, build)
	optInUser(t, f)
	ctx := context.Background()

	require.NoError(t, f.processor.Process(ctx, 42, false))

	stored, err := f.storage.BuildStorage().Get(ctx, "acme", "widgets", 42)
	require.NoError(t, err)
	require.NotNil(t, stored.LastRulesetProcessedAt)
	assert.JSONEq(t, `[]`, string(stored.MatchesJSON))
	assert.Equal(t, 0, f.notifier.calls)
	assert.Empty(t, f.search.indexed)
}
