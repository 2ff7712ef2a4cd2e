package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dronebutler/internal/common"
	"github.com/ternarybob/dronebutler/internal/interfaces"
	"github.com/ternarybob/dronebutler/internal/models"
)

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()
	manager, err := NewManager(arbor.NewLogger(), &common.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })
	return manager
}

func testBuild(number int) *models.Build {
	return &models.Build{
		ID:          1000 + number,
		Number:      number,
		Status:      models.StatusFailure,
		Link:        "https://github.com/acme/widgets/pull/42",
		AuthorLogin: "octocat",
		Created:     1700000000,
		Updated:     1700000100,
	}
}

func TestBuildStorageGetOrCreateIsIdempotent(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	builds := manager.BuildStorage()

	first, err := builds.GetOrCreate(ctx, "acme", "widgets", testBuild(7))
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "acme/widgets/7", first.Key)

	second, err := builds.GetOrCreate(ctx, "acme", "widgets", testBuild(7))
	require.NoError(t, err)
	assert.Equal(t, first.Key, second.Key)

	count, err := builds.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBuildStorageUpdateFromAPIRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	builds := manager.BuildStorage()

	build := testBuild(8)
	build.Stages = []*models.Stage{{Number: 1, Name: "build", Status: models.StatusFailure, ExitCode: 1}}

	stored, err := builds.GetOrCreate(ctx, "acme", "widgets", build)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, builds.UpdateFromAPI(ctx, stored, "acme", "widgets", build, &now))

	reloaded, err := builds.Get(ctx, "acme", "widgets", 8)
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	require.NotNil(t, reloaded.OutputRetrievedAt)

	decoded, err := reloaded.ToBuild()
	require.NoError(t, err)
	require.Len(t, decoded.Stages, 1)
	assert.Equal(t, "build", decoded.Stages[0].Name)
	assert.True(t, reloaded.Terminal())
}

func TestBuildStorageFindByLink(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	builds := manager.BuildStorage()

	_, err := builds.GetOrCreate(ctx, "acme", "widgets", testBuild(9))
	require.NoError(t, err)

	found, err := builds.FindByLink(ctx, "acme", "widgets", "https://github.com/acme/widgets/pull/42")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, 9, found.Number)

	missing, err := builds.FindByLink(ctx, "acme", "widgets", "https://github.com/acme/widgets/pull/999")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestBuildStorageUpdateMatchesStampsProcessedAt(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	builds := manager.BuildStorage()

	stored, err := builds.GetOrCreate(ctx, "acme", "widgets", testBuild(10))
	require.NoError(t, err)
	require.Nil(t, stored.LastRulesetProcessedAt)

	require.NoError(t, builds.UpdateMatches(ctx, stored, []string{"SlackServerError"}))

	reloaded, err := builds.Get(ctx, "acme", "widgets", 10)
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastRulesetProcessedAt)
	assert.JSONEq(t, `["SlackServerError"]`, string(reloaded.MatchesJSON))

	// An empty match list still marks the build processed.
	require.NoError(t, builds.UpdateMatches(ctx, reloaded, nil))
	reloaded, err = builds.Get(ctx, "acme", "widgets", 10)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(reloaded.MatchesJSON))
}

func TestStepStorageRequiresStoredBuild(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	output := &models.Output{Lines: []models.OutputLine{{Pos: 0, Out: "make: *** [test] Error 1"}}}
	_, err := manager.StepStorage().AttachOutput(ctx, "acme", "widgets", 99, 1, 2, output)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBuildNotFound)
}

func TestStepStorageAttachAndList(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	_, err := manager.BuildStorage().GetOrCreate(ctx, "acme", "widgets", testBuild(11))
	require.NoError(t, err)

	output := &models.Output{Lines: []models.OutputLine{
		{Pos: 1, Out: "second"},
		{Pos: 0, Out: "first"},
	}}
	step, err := manager.StepStorage().AttachOutput(ctx, "acme", "widgets", 11, 1, 2, output)
	require.NoError(t, err)
	assert.Equal(t, "acme/widgets/11/1/2", step.Key)

	// Re-attaching overwrites rather than duplicating.
	_, err = manager.StepStorage().AttachOutput(ctx, "acme", "widgets", 11, 1, 2, output)
	require.NoError(t, err)

	steps, err := manager.StepStorage().GetByBuild(ctx, "acme", "widgets", 11)
	require.NoError(t, err)
	require.Len(t, steps, 1)

	notifiedAt := time.Now().UTC()
	require.NoError(t, manager.StepStorage().MarkNotified(ctx, steps[0], notifiedAt))

	steps, err = manager.StepStorage().GetByBuild(ctx, "acme", "widgets", 11)
	require.NoError(t, err)
	require.NotNil(t, steps[0].LastNotifiedAt)
}

func TestUserStorageFindByGithubUsername(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	users := manager.UserStorage()

	missing, err := users.FindByGithubUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, users.Save(ctx, &models.User{
		ID:             "user_octocat",
		GithubUsername: "octocat",
		SlackUsername:  "octo",
		OptedIn:        true,
	}))

	found, err := users.FindByGithubUsername(ctx, "octocat")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "octo", found.SlackUsername)
	assert.False(t, found.CreatedAt.IsZero())
}

func TestInteractionStorageUpsertPreservesCreatedAt(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	interactions := manager.InteractionStorage()

	first, err := models.NewHTTPInteraction(
		&models.CapturedRequest{Method: "GET", URL: "https://drone.example.com/api/repos/acme/widgets/builds"},
		&models.CapturedResponse{Status: 200, Body: []byte(`[]`)},
	)
	require.NoError(t, err)
	require.NoError(t, interactions.Upsert(ctx, first))

	stored, err := interactions.Get(ctx, first.Key)
	require.NoError(t, err)
	require.NotNil(t, stored)
	createdAt := stored.CreatedAt

	second, err := models.NewHTTPInteraction(
		&models.CapturedRequest{Method: "GET", URL: "https://drone.example.com/api/repos/acme/widgets/builds"},
		&models.CapturedResponse{Status: 200, Body: []byte(`[{"number":1}]`)},
	)
	require.NoError(t, err)
	require.NoError(t, interactions.Upsert(ctx, second))

	stored, err = interactions.Get(ctx, first.Key)
	require.NoError(t, err)
	assert.Equal(t, createdAt, stored.CreatedAt)
	assert.Equal(t, []byte(`[{"number":1}]`), stored.ResponseBody)

	count, err := interactions.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, interactions.Purge(ctx))
	count, err = interactions.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
