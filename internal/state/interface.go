// Package state provides SQLite-based persistence for Penny.
package state

import (
	"io"
	"time"

	"github.com/pennyhq/penny/pkg/models"
)

// ItemStore handles item persistence operations.
type ItemStore interface {
	CreateItem(item *models.Item) error
	GetItem(id string) (*models.Item, error)
	ListItems(category models.Category, limit, offset int) ([]models.Item, int, error)
	// FinalizeItem records an item's terminal (or confirmed) status together
	// with the action taken. It is the single write path for status changes.
	FinalizeItem(id string, status models.ItemStatus, routedTo string) error
	// ReclassifyItem replaces an item's category, leaving confidence untouched.
	ReclassifyItem(id string, category models.Category) error
}

// TaskStore handles background-task persistence operations.
// All state transitions go through compare-and-set updates keyed on the
// task version so overlapping poll cycles never double-process a task.
type TaskStore interface {
	CreateTask(t *models.BackgroundTask) error
	GetTask(id string) (*models.BackgroundTask, error)
	// ActiveTaskForItem returns the non-terminal task for an item, or nil.
	ActiveTaskForItem(itemID string) (*models.BackgroundTask, error)
	// DueTasks returns queued tasks ready for a poll cycle.
	DueTasks(limit int) ([]models.BackgroundTask, error)
	// TransitionTask applies t's current fields (state, results, confidence,
	// poll count) if and only if the stored version equals expectVersion.
	// On success the stored version becomes expectVersion+1 and t.Version is
	// updated to match. Returns ErrStaleTask when the guard fails.
	TransitionTask(t *models.BackgroundTask, expectVersion int) error
}

// ConfirmationStore handles confirmation-request persistence operations.
type ConfirmationStore interface {
	CreateConfirmation(c *models.Confirmation) error
	GetConfirmation(correlationID string) (*models.Confirmation, error)
	// ResolveConfirmation sets the outcome if and only if the stored outcome
	// is still pending. Returns ErrConfirmationResolved otherwise.
	ResolveConfirmation(correlationID string, outcome models.ConfirmationOutcome) error
	// ExpiredConfirmations returns pending confirmations whose reply window
	// closed before now.
	ExpiredConfirmations(now time.Time) ([]models.Confirmation, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	Migrate() error
}

// Store defines the full persistence interface. It composes focused
// sub-interfaces so components can depend on only what they use.
type Store interface {
	io.Closer
	Migrator
	ItemStore
	TaskStore
	ConfirmationStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store             = (*DB)(nil)
	_ Migrator          = (*DB)(nil)
	_ ItemStore         = (*DB)(nil)
	_ TaskStore         = (*DB)(nil)
	_ ConfirmationStore = (*DB)(nil)
)
