package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dronebutler/internal/interfaces"
	"github.com/ternarybob/dronebutler/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ErrBuildNotFound is returned when a step output is attached to a build
// that was never stored.
var ErrBuildNotFound = errors.New("stored build not found")

// StepStorage implements the StepStorage interface for Badger
type StepStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewStepStorage creates a new StepStorage instance
func NewStepStorage(db *BadgerDB, logger arbor.ILogger) interfaces.StepStorage {
	return &StepStorage{
		db:     db,
		logger: logger,
	}
}

// AttachOutput upserts a step output row under an existing stored build.
// The parent build must be persisted first; otherwise ErrBuildNotFound.
func (s *StepStorage) AttachOutput(ctx context.Context, owner, repo string, buildNumber, stageNumber, stepNumber int, output *models.Output) (*models.StoredStep, error) {
	buildKey := models.StoredBuildKey(owner, repo, buildNumber)

	var build models.StoredBuild
	if err := s.db.Store().Get(buildKey, &build); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("attach output for build %s: %w", buildKey, ErrBuildNotFound)
		}
		return nil, fmt.Errorf("failed to get stored build %s: %w", buildKey, err)
	}

	key := models.StoredStepKey(buildKey, stageNumber, stepNumber)

	var step models.StoredStep
	err := s.db.Store().Get(key, &step)
	if err != nil && err != badgerhold.ErrNotFound {
		return nil, fmt.Errorf("failed to get stored step %s: %w", key, err)
	}
	if err == badgerhold.ErrNotFound {
		step = models.StoredStep{
			Key:            key,
			StoredBuildKey: buildKey,
			BuildNumber:    buildNumber,
			StageNumber:    stageNumber,
			Number:         stepNumber,
		}
	}

	if output != nil {
		data, err := json.Marshal(output)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize step output %s: %w", key, err)
		}
		step.OutputDroneAPIData = data
	}
	step.UpdatedAt = time.Now().UTC()

	if err := s.db.Store().Upsert(key, &step); err != nil {
		return nil, fmt.Errorf("failed to upsert stored step %s: %w", key, err)
	}

	s.logger.Debug().
		Str("key", key).
		Int("output_bytes", len(step.OutputDroneAPIData)).
		Msg("Step output attached")

	return &step, nil
}

// GetByBuild returns all stored steps under a build, ordered by key.
func (s *StepStorage) GetByBuild(ctx context.Context, owner, repo string, buildNumber int) ([]*models.StoredStep, error) {
	buildKey := models.StoredBuildKey(owner, repo, buildNumber)

	var rows []models.StoredStep
	err := s.db.Store().Find(&rows,
		badgerhold.Where("StoredBuildKey").Eq(buildKey).Index("StoredBuildKey"))
	if err != nil {
		return nil, fmt.Errorf("failed to find steps for build %s: %w", buildKey, err)
	}

	steps := make([]*models.StoredStep, len(rows))
	for i := range rows {
		steps[i] = &rows[i]
	}
	return steps, nil
}

// MarkNotified stamps the step as having produced a notification.
func (s *StepStorage) MarkNotified(ctx context.Context, step *models.StoredStep, at time.Time) error {
	step.LastNotifiedAt = &at
	step.UpdatedAt = time.Now().UTC()

	if err := s.db.Store().Upsert(step.Key, step); err != nil {
		return fmt.Errorf("failed to mark step %s notified: %w", step.Key, err)
	}
	return nil
}
