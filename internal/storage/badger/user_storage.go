package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dronebutler/internal/interfaces"
	"github.com/ternarybob/dronebutler/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// UserStorage implements the UserStorage interface for Badger
type UserStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewUserStorage creates a new UserStorage instance
func NewUserStorage(db *BadgerDB, logger arbor.ILogger) interfaces.UserStorage {
	return &UserStorage{
		db:     db,
		logger: logger,
	}
}

// FindByGithubUsername looks up a user by GitHub login; nil when unknown.
func (s *UserStorage) FindByGithubUsername(ctx context.Context, login string) (*models.User, error) {
	var users []models.User
	err := s.db.Store().Find(&users,
		badgerhold.Where("GithubUsername").Eq(login).Index("GithubUsername"))
	if err != nil {
		return nil, fmt.Errorf("failed to find user %s: %w", login, err)
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

// Save upserts a user row.
func (s *UserStorage) Save(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	if err := s.db.Store().Upsert(user.ID, user); err != nil {
		return fmt.Errorf("failed to save user %s: %w", user.GithubUsername, err)
	}

	s.logger.Debug().
		Str("github_username", user.GithubUsername).
		Str("slack_username", user.SlackUsername).
		Msg("User saved")

	return nil
}
