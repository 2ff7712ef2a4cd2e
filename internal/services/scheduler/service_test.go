package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dronebutler/internal/common"
	"github.com/ternarybob/dronebutler/internal/interfaces"
	"github.com/ternarybob/dronebutler/internal/models"
)

type pagingClient struct {
	pages [][]*models.Build
}

func (c *pagingClient) GetBuilds(ctx context.Context, owner, repo string, limit, page int) ([]*models.Build, error) {
	return nil, nil
}

func (c *pagingClient) IterBuildsByPage(ctx context.Context, owner, repo string, limit, page int) (<-chan interfaces.BuildsPage, error) {
	ch := make(chan interfaces.BuildsPage, len(c.pages))
	for i, builds := range c.pages {
		ch <- interfaces.BuildsPage{Builds: builds, Page: page + i}
	}
	close(ch)
	return ch, nil
}

func (c *pagingClient) GetBuildInfo(ctx context.Context, owner, repo string, buildNumber int) (*models.Build, error) {
	return nil, nil
}

func (c *pagingClient) GetBuildStepOutput(ctx context.Context, owner, repo string, buildNumber, stageNumber, stepNumber int) (*models.Output, error) {
	return nil, nil
}

func (c *pagingClient) GetLatestBuild(ctx context.Context, owner, repo, branch string) (*models.Build, error) {
	return nil, nil
}

func (c *pagingClient) InjectLogs(ctx context.Context, owner, repo string, build *models.Build) *models.Build {
	return build
}

func (c *pagingClient) GetBuildWithLogs(ctx context.Context, owner, repo string, buildNumber int) (*models.Build, error) {
	return nil, nil
}

type capturingProducer struct {
	enqueued []int
	err      error
}

func (p *capturingProducer) Enqueue(ctx context.Context, envelope *models.JobEnvelope) error {
	return p.err
}

func (p *capturingProducer) EnqueueNoWait(ctx context.Context, envelope *models.JobEnvelope) error {
	if p.err != nil {
		return p.err
	}
	p.enqueued = append(p.enqueued, envelope.BuildID)
	return nil
}

func (p *capturingProducer) Close() error { return nil }

func testConfig() *common.Config {
	cfg := common.DefaultConfig()
	cfg.Drone.Owner = "acme"
	cfg.Drone.Repo = "widgets"
	return cfg
}

func TestSweepEnqueuesEveryBuild(t *testing.T) {
	client := &pagingClient{pages: [][]*models.Build{
		{{Number: 10}, {Number: 11}},
		{{Number: 12}},
	}}
	producer := &capturingProducer{}
	svc := NewService(testConfig(), client, producer, arbor.NewLogger())

	require.NoError(t, svc.Sweep(context.Background()))
	assert.Equal(t, []int{10, 11, 12}, producer.enqueued)
}

func TestSweepContinuesPastEnqueueFailures(t *testing.T) {
	client := &pagingClient{pages: [][]*models.Build{{{Number: 10}}}}
	producer := &capturingProducer{err: errors.New("queue full")}
	svc := NewService(testConfig(), client, producer, arbor.NewLogger())

	// Drops are acceptable on the fire-and-forget path.
	assert.NoError(t, svc.Sweep(context.Background()))
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler.Schedule = "not-a-cron"
	svc := NewService(cfg, &pagingClient{}, &capturingProducer{}, arbor.NewLogger())

	assert.Error(t, svc.Start())
}

func TestStartTwiceFails(t *testing.T) {
	svc := NewService(testConfig(), &pagingClient{}, &capturingProducer{}, arbor.NewLogger())
	require.NoError(t, svc.Start())
	t.Cleanup(func() { _ = svc.Stop() })

	assert.Error(t, svc.Start())
}
