package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/conformly/fieldsync/internal/domain"
)

// MemoryStore is an in-memory Store implementation.
//
// It backs unit tests and ephemeral agents; records do not survive a
// restart. Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	forms map[string]*domain.CapturedForm
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		forms: make(map[string]*domain.CapturedForm),
	}
}

// Save upserts the record, generating a local ID if needed.
func (s *MemoryStore) Save(ctx context.Context, form *domain.CapturedForm) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := form.Clone()
	if stored.LocalID == "" {
		stored.LocalID = domain.NewLocalID(stored.FormType)
	}
	if stored.SyncStatus == "" {
		stored.SyncStatus = domain.SyncStatusPending
	}
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		if existing, ok := s.forms[stored.LocalID]; ok {
			stored.CreatedAt = existing.CreatedAt
		} else {
			stored.CreatedAt = now
		}
	}
	stored.UpdatedAt = now

	s.forms[stored.LocalID] = stored
	return stored.LocalID, nil
}

// Get retrieves a record by local ID.
func (s *MemoryStore) Get(ctx context.Context, localID string) (*domain.CapturedForm, error) {
	const op = "queue.get"

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	form, ok := s.forms[localID]
	if !ok {
		return nil, domain.NotFound(op, "captured form", localID)
	}
	return form.Clone(), nil
}

// List returns all records matching the filter, oldest first.
func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]domain.CapturedForm, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.CapturedForm
	for _, form := range s.forms {
		if filter.matches(form) {
			out = append(out, *form.Clone())
		}
	}

	// Stable oldest-first order so repeated sweeps behave predictably.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].LocalID < out[j].LocalID
	})
	return out, nil
}

// UpdateSyncStatus updates the sync state of an existing record.
func (s *MemoryStore) UpdateSyncStatus(ctx context.Context, params UpdateSyncStatusParams) error {
	const op = "queue.update_sync_status"

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	form, ok := s.forms[params.LocalID]
	if !ok {
		return domain.NotFound(op, "captured form", params.LocalID)
	}

	form.SyncStatus = params.Status
	if params.ServerID != "" {
		form.ServerID = params.ServerID
	}
	form.LastSyncError = params.LastError
	form.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes a record. Idempotent.
func (s *MemoryStore) Delete(ctx context.Context, localID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.forms, localID)
	return nil
}

// ListUnsynced returns all pending records, oldest first.
func (s *MemoryStore) ListUnsynced(ctx context.Context) ([]domain.CapturedForm, error) {
	return s.List(ctx, ListFilter{SyncStatus: domain.SyncStatusPending})
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
