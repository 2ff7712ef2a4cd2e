package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dronebutler/internal/common"
	"github.com/ternarybob/dronebutler/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db          *BadgerDB
	build       interfaces.BuildStorage
	step        interfaces.StepStorage
	user        interfaces.UserStorage
	interaction interfaces.InteractionStorage
	logger      arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:          db,
		build:       NewBuildStorage(db, logger),
		step:        NewStepStorage(db, logger),
		user:        NewUserStorage(db, logger),
		interaction: NewInteractionStorage(db, logger),
		logger:      logger,
	}

	// Reclaim value-log space left over from the previous run.
	db.RunGC()

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// BuildStorage returns the stored-build storage interface
func (m *Manager) BuildStorage() interfaces.BuildStorage {
	return m.build
}

// StepStorage returns the stored-step storage interface
func (m *Manager) StepStorage() interfaces.StepStorage {
	return m.step
}

// UserStorage returns the user storage interface
func (m *Manager) UserStorage() interfaces.UserStorage {
	return m.user
}

// InteractionStorage returns the HTTP interaction storage interface
func (m *Manager) InteractionStorage() interfaces.InteractionStorage {
	return m.interaction
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
