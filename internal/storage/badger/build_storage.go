package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dronebutler/internal/interfaces"
	"github.com/ternarybob/dronebutler/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// BuildStorage implements the BuildStorage interface for Badger
type BuildStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewBuildStorage creates a new BuildStorage instance
func NewBuildStorage(db *BadgerDB, logger arbor.ILogger) interfaces.BuildStorage {
	return &BuildStorage{
		db:     db,
		logger: logger,
	}
}

// GetOrCreate upserts a StoredBuild by its natural key (owner, repo, number).
func (s *BuildStorage) GetOrCreate(ctx context.Context, owner, repo string, build *models.Build) (*models.StoredBuild, error) {
	key := models.StoredBuildKey(owner, repo, build.Number)

	var stored models.StoredBuild
	err := s.db.Store().Get(key, &stored)
	if err == nil {
		return &stored, nil
	}
	if err != badgerhold.ErrNotFound {
		return nil, fmt.Errorf("failed to get stored build %s: %w", key, err)
	}

	stored = models.StoredBuild{
		Key:         key,
		BuildID:     build.ID,
		Number:      build.Number,
		Status:      build.Status,
		Link:        build.Link,
		Owner:       owner,
		Repo:        repo,
		AuthorLogin: build.AuthorLogin,
		AuthorName:  build.AuthorName,
		AuthorEmail: build.AuthorEmail,
		CreatedAt:   build.CreatedAt(),
	}
	if err := s.db.Store().Upsert(key, &stored); err != nil {
		return nil, fmt.Errorf("failed to create stored build %s: %w", key, err)
	}

	s.logger.Debug().
		Str("key", key).
		Str("status", stored.Status).
		Msg("Stored build created")

	return &stored, nil
}

// Get fetches a stored build by natural key; nil when absent.
func (s *BuildStorage) Get(ctx context.Context, owner, repo string, number int) (*models.StoredBuild, error) {
	key := models.StoredBuildKey(owner, repo, number)
	var stored models.StoredBuild
	if err := s.db.Store().Get(key, &stored); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get stored build %s: %w", key, err)
	}
	return &stored, nil
}

// FindByLink locates a stored build by its canonical URL; nil when absent.
func (s *BuildStorage) FindByLink(ctx context.Context, owner, repo, link string) (*models.StoredBuild, error) {
	var builds []models.StoredBuild
	err := s.db.Store().Find(&builds,
		badgerhold.Where("Link").Eq(link).Index("Link").
			And("Owner").Eq(owner).
			And("Repo").Eq(repo))
	if err != nil {
		return nil, fmt.Errorf("failed to find stored build by link %s: %w", link, err)
	}
	if len(builds) == 0 {
		return nil, nil
	}
	return &builds[0], nil
}

// UpdateFromAPI refreshes the stored snapshot from the latest Build.
func (s *BuildStorage) UpdateFromAPI(ctx context.Context, stored *models.StoredBuild, owner, repo string, build *models.Build, outputRetrievedAt *time.Time) error {
	if err := stored.UpdateFromAPI(owner, repo, build, outputRetrievedAt); err != nil {
		return err
	}
	if err := s.db.Store().Upsert(stored.Key, stored); err != nil {
		return fmt.Errorf("failed to update stored build %s: %w", stored.Key, err)
	}
	return nil
}

// UpdateMatches serializes rule match descriptions and stamps
// last_ruleset_processed_at. An empty match list still marks the build
// processed with a well-formed empty array.
func (s *BuildStorage) UpdateMatches(ctx context.Context, stored *models.StoredBuild, matches any) error {
	data, err := json.Marshal(matches)
	if err != nil {
		return fmt.Errorf("failed to serialize matches for build %s: %w", stored.Key, err)
	}
	if string(data) == "null" {
		data = []byte("[]")
	}

	now := time.Now().UTC()
	stored.MatchesJSON = data
	stored.LastRulesetProcessedAt = &now

	if err := s.db.Store().Upsert(stored.Key, stored); err != nil {
		return fmt.Errorf("failed to persist matches for build %s: %w", stored.Key, err)
	}

	s.logger.Debug().
		Str("key", stored.Key).
		Int("matches_bytes", len(data)).
		Msg("Stored build matches updated")

	return nil
}

// Count returns the number of stored builds.
func (s *BuildStorage) Count(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.StoredBuild{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count stored builds: %w", err)
	}
	return int(count), nil
}
