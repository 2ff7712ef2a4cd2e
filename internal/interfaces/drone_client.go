package interfaces

import (
	"context"

	"github.com/ternarybob/dronebutler/internal/models"
)

// BuildsPage is one page yielded by IterBuildsByPage.
type BuildsPage struct {
	Builds   []*models.Build
	Page     int
	MaxPages int
}

// DroneClient is the typed wrapper over the Drone REST endpoints.
type DroneClient interface {
	// GetBuilds paginates until max_builds or max_pages is reached and
	// returns builds sorted descending by max(finished, updated).
	GetBuilds(ctx context.Context, owner, repo string, limit, page int) ([]*models.Build, error)

	// IterBuildsByPage lazily yields one page at a time. The sequence is
	// finite and not restartable; call again to re-drive.
	IterBuildsByPage(ctx context.Context, owner, repo string, limit, page int) (<-chan BuildsPage, error)

	GetBuildInfo(ctx context.Context, owner, repo string, buildNumber int) (*models.Build, error)

	// GetBuildStepOutput returns nil (not an error) when upstream replies 404.
	GetBuildStepOutput(ctx context.Context, owner, repo string, buildNumber, stageNumber, stepNumber int) (*models.Output, error)

	GetLatestBuild(ctx context.Context, owner, repo, branch string) (*models.Build, error)

	// InjectLogs populates the output of every non-skipped step, continuing
	// past per-step fetch failures.
	InjectLogs(ctx context.Context, owner, repo string, build *models.Build) *models.Build

	GetBuildWithLogs(ctx context.Context, owner, repo string, buildNumber int) (*models.Build, error)
}
