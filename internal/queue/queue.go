// Package queue implements the durable local queue of captured forms.
//
// The queue persists one record per captured inspection form, keyed by a
// locally generated identifier, independent of network connectivity. Two
// implementations are provided: SQLiteStore for on-device durability across
// sessions, and MemoryStore for tests.
package queue

import (
	"context"

	"github.com/conformly/fieldsync/internal/domain"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Store defines the durable local queue contract.
//
// All operations are local transactions; none perform network I/O. Records
// are only removed by explicit Delete, never silently dropped.
type Store interface {
	// Save upserts the full record keyed by its local ID. If the record has
	// no local ID one is generated. SyncStatus defaults to pending when
	// unset, CreatedAt is stamped on first save, and UpdatedAt is refreshed
	// on every save. Returns the local ID used.
	Save(ctx context.Context, form *domain.CapturedForm) (string, error)

	// Get retrieves a record by local ID.
	// Returns domain.ENOTFOUND if no record exists.
	Get(ctx context.Context, localID string) (*domain.CapturedForm, error)

	// List returns all records matching the filter, oldest first.
	// Provided filter fields combine as a logical AND.
	List(ctx context.Context, filter ListFilter) ([]domain.CapturedForm, error)

	// UpdateSyncStatus sets the sync status of an existing record and
	// refreshes UpdatedAt. A non-empty ServerID is stored; an empty one
	// leaves any existing server ID untouched, so a server ID is never
	// cleared. Returns domain.ENOTFOUND if no record exists.
	UpdateSyncStatus(ctx context.Context, params UpdateSyncStatusParams) error

	// Delete removes a record. Idempotent: deleting a missing record is
	// not an error.
	Delete(ctx context.Context, localID string) error

	// ListUnsynced returns all records with sync status pending,
	// oldest first.
	ListUnsynced(ctx context.Context) ([]domain.CapturedForm, error)

	// Close releases the underlying store resources.
	Close() error
}

// =============================================================================
// Parameter Types
// =============================================================================

// ListFilter narrows a List call. Zero-valued fields are ignored.
type ListFilter struct {
	FormType   domain.FormType
	ProjectID  string
	SyncStatus domain.SyncStatus
}

// UpdateSyncStatusParams contains the parameters for a sync status update.
type UpdateSyncStatusParams struct {
	LocalID string
	Status  domain.SyncStatus

	// ServerID is stored only when non-empty; it never overwrites an
	// existing value with the empty string.
	ServerID string

	// LastError is the human-readable detail of the most recent sync
	// failure, kept for display. Pass the empty string to clear it.
	LastError string
}

// matches reports whether a record satisfies the filter.
func (f ListFilter) matches(form *domain.CapturedForm) bool {
	if f.FormType != "" && form.FormType != f.FormType {
		return false
	}
	if f.ProjectID != "" && form.ProjectID != f.ProjectID {
		return false
	}
	if f.SyncStatus != "" && form.SyncStatus != f.SyncStatus {
		return false
	}
	return true
}
