package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/dronebutler/internal/models"
)

// BuildStorage - interface for stored build persistence
type BuildStorage interface {
	// GetOrCreate upserts a StoredBuild by its natural key (owner, repo, number).
	GetOrCreate(ctx context.Context, owner, repo string, build *models.Build) (*models.StoredBuild, error)
	Get(ctx context.Context, owner, repo string, number int) (*models.StoredBuild, error)
	FindByLink(ctx context.Context, owner, repo, link string) (*models.StoredBuild, error)

	// UpdateFromAPI refreshes the stored snapshot; a non-nil outputRetrievedAt
	// records that the step outputs were fetched.
	UpdateFromAPI(ctx context.Context, stored *models.StoredBuild, owner, repo string, build *models.Build, outputRetrievedAt *time.Time) error

	// UpdateMatches serializes rule matches and stamps last_ruleset_processed_at.
	UpdateMatches(ctx context.Context, stored *models.StoredBuild, matches any) error

	Count(ctx context.Context) (int, error)
}

// StepStorage - interface for stored step output persistence
type StepStorage interface {
	// AttachOutput upserts a step row under an existing stored build.
	// Returns ErrBuildNotFound when the build was not stored first.
	AttachOutput(ctx context.Context, owner, repo string, buildNumber, stageNumber, stepNumber int, output *models.Output) (*models.StoredStep, error)
	GetByBuild(ctx context.Context, owner, repo string, buildNumber int) ([]*models.StoredStep, error)
	MarkNotified(ctx context.Context, step *models.StoredStep, at time.Time) error
}

// UserStorage - interface for notification recipients
type UserStorage interface {
	FindByGithubUsername(ctx context.Context, login string) (*models.User, error)
	Save(ctx context.Context, user *models.User) error
}

// InteractionStorage - durable key -> (request, response) persistence
// backing the HTTP cache service.
type InteractionStorage interface {
	Get(ctx context.Context, key string) (*models.HTTPInteraction, error)
	Upsert(ctx context.Context, interaction *models.HTTPInteraction) error
	Purge(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	BuildStorage() BuildStorage
	StepStorage() StepStorage
	UserStorage() UserStorage
	InteractionStorage() InteractionStorage
	Close() error
}
