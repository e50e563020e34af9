package queue

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conformly/fieldsync/internal/domain"
)

// stores returns every Store implementation under its own name so the
// contract tests run against both.
func stores(t *testing.T) map[string]Store {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sqlite, err := NewSQLiteStore(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func testForm() *domain.CapturedForm {
	return &domain.CapturedForm{
		FormType:         domain.FormTypeEarthworksSubgrade,
		ProjectID:        "proj-42",
		OrganizationID:   "org-7",
		InspectorName:    "R. Okafor",
		InspectionDate:   time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		InspectionStatus: domain.InspectionStatusPending,
		Comments:         "subgrade at chainage 450",
		Fields: map[string]any{
			"proof_roll_completed":  true,
			"compaction_percent":    98.0,
			"level_survey_conforms": true,
		},
		Results: domain.InspectionResultSet{
			"subgrade": {
				"item-1": {Result: domain.ItemResultPass},
			},
		},
		CompletionPct: 100,
		OverallStatus: domain.OverallStatusInProgress,
		Evidence: []domain.EvidenceFile{
			{Name: "certificate.jpg", ContentType: "image/jpeg", Data: []byte{0x1, 0x2}},
		},
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			before := time.Now().Add(-time.Second)

			form := testForm()
			localID, err := store.Save(ctx, form)
			require.NoError(t, err)
			assert.NotEmpty(t, localID)

			got, err := store.Get(ctx, localID)
			require.NoError(t, err)

			assert.Equal(t, localID, got.LocalID)
			assert.Equal(t, form.FormType, got.FormType)
			assert.Equal(t, form.ProjectID, got.ProjectID)
			assert.Equal(t, form.InspectorName, got.InspectorName)
			assert.True(t, form.InspectionDate.Equal(got.InspectionDate))
			assert.Equal(t, form.Comments, got.Comments)
			assert.Equal(t, form.Fields, got.Fields)
			assert.Equal(t, form.Results, got.Results)
			assert.Equal(t, form.CompletionPct, got.CompletionPct)
			assert.Equal(t, form.Evidence, got.Evidence)

			// Defaulted fields and timestamps.
			assert.Equal(t, domain.SyncStatusPending, got.SyncStatus)
			assert.False(t, got.CreatedAt.IsZero())
			assert.True(t, got.UpdatedAt.After(before) || got.UpdatedAt.Equal(before))
		})
	}
}

func TestSaveKeepsExplicitLocalID(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			form := testForm()
			form.LocalID = "earthworks_subgrade_1_fixed"
			localID, err := store.Save(ctx, form)
			require.NoError(t, err)
			assert.Equal(t, "earthworks_subgrade_1_fixed", localID)

			// A second save is an upsert, not a duplicate.
			form.Comments = "revised"
			_, err = store.Save(ctx, form)
			require.NoError(t, err)

			all, err := store.List(ctx, ListFilter{})
			require.NoError(t, err)
			assert.Len(t, all, 1)
			assert.Equal(t, "revised", all[0].Comments)
		})
	}
}

func TestGetMissingRecord(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "nonexistent")
			assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
		})
	}
}

func TestListFilters(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			a := testForm()
			a.LocalID = "earthworks_subgrade_1_a"
			a.CreatedAt = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
			_, err := store.Save(ctx, a)
			require.NoError(t, err)

			b := testForm()
			b.LocalID = "drainage_excavation_2_b"
			b.FormType = domain.FormTypeDrainageExcavation
			b.CreatedAt = time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)
			_, err = store.Save(ctx, b)
			require.NoError(t, err)

			c := testForm()
			c.LocalID = "earthworks_subgrade_3_c"
			c.ProjectID = "proj-99"
			c.SyncStatus = domain.SyncStatusSynced
			c.CreatedAt = time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
			_, err = store.Save(ctx, c)
			require.NoError(t, err)

			all, err := store.List(ctx, ListFilter{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			// Oldest first.
			assert.Equal(t, "earthworks_subgrade_1_a", all[0].LocalID)
			assert.Equal(t, "drainage_excavation_2_b", all[1].LocalID)

			byType, err := store.List(ctx, ListFilter{FormType: domain.FormTypeDrainageExcavation})
			require.NoError(t, err)
			require.Len(t, byType, 1)
			assert.Equal(t, "drainage_excavation_2_b", byType[0].LocalID)

			// Filters combine as a logical AND.
			combined, err := store.List(ctx, ListFilter{
				FormType:  domain.FormTypeEarthworksSubgrade,
				ProjectID: "proj-42",
			})
			require.NoError(t, err)
			require.Len(t, combined, 1)
			assert.Equal(t, "earthworks_subgrade_1_a", combined[0].LocalID)

			unsynced, err := store.ListUnsynced(ctx)
			require.NoError(t, err)
			assert.Len(t, unsynced, 2)
		})
	}
}

func TestUpdateSyncStatus(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			localID, err := store.Save(ctx, testForm())
			require.NoError(t, err)

			err = store.UpdateSyncStatus(ctx, UpdateSyncStatusParams{
				LocalID:  localID,
				Status:   domain.SyncStatusSynced,
				ServerID: "srv-1",
			})
			require.NoError(t, err)

			got, err := store.Get(ctx, localID)
			require.NoError(t, err)
			assert.Equal(t, domain.SyncStatusSynced, got.SyncStatus)
			assert.Equal(t, "srv-1", got.ServerID)
		})
	}
}

func TestUpdateSyncStatusMissingRecord(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			err := store.UpdateSyncStatus(ctx, UpdateSyncStatusParams{
				LocalID: "nonexistent",
				Status:  domain.SyncStatusSynced,
			})
			assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))

			// The failed update must not create a record.
			all, err := store.List(ctx, ListFilter{})
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestServerIDIsSticky(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			localID, err := store.Save(ctx, testForm())
			require.NoError(t, err)

			err = store.UpdateSyncStatus(ctx, UpdateSyncStatusParams{
				LocalID:  localID,
				Status:   domain.SyncStatusSynced,
				ServerID: "srv-1",
			})
			require.NoError(t, err)

			// A later status update without a server ID must not clear it.
			err = store.UpdateSyncStatus(ctx, UpdateSyncStatusParams{
				LocalID:   localID,
				Status:    domain.SyncStatusFailed,
				LastError: "connection reset",
			})
			require.NoError(t, err)

			got, err := store.Get(ctx, localID)
			require.NoError(t, err)
			assert.Equal(t, "srv-1", got.ServerID)
			assert.Equal(t, domain.SyncStatusFailed, got.SyncStatus)
			assert.Equal(t, "connection reset", got.LastSyncError)
		})
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			localID, err := store.Save(ctx, testForm())
			require.NoError(t, err)

			require.NoError(t, store.Delete(ctx, localID))
			require.NoError(t, store.Delete(ctx, localID))

			_, err = store.Get(ctx, localID)
			assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
		})
	}
}
