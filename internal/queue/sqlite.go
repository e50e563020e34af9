package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/conformly/fieldsync/internal/domain"
)

// =============================================================================
// SQLiteStore Implementation
// =============================================================================

// SQLiteStore is the on-device Store implementation.
//
// Records survive agent restarts. The schema is versioned with
// PRAGMA user_version; migrations are additive only so an upgrade never
// loses queued records.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// schemaVersion is the current PRAGMA user_version.
const schemaVersion = 2

// migrations are applied in order; migrations[i] moves the schema from
// version i to i+1.
var migrations = []string{
	// v0 -> v1: base table and secondary indexes.
	`CREATE TABLE IF NOT EXISTS captured_forms (
		local_id          TEXT PRIMARY KEY,
		server_id         TEXT NOT NULL DEFAULT '',
		form_type         TEXT NOT NULL,
		project_id        TEXT NOT NULL,
		organization_id   TEXT NOT NULL DEFAULT '',
		inspector_name    TEXT NOT NULL DEFAULT '',
		inspection_date   TEXT NOT NULL DEFAULT '',
		inspection_status TEXT NOT NULL DEFAULT 'pending',
		comments          TEXT NOT NULL DEFAULT '',
		fields            TEXT NOT NULL DEFAULT '{}',
		results           TEXT NOT NULL DEFAULT '{}',
		completion_pct    INTEGER NOT NULL DEFAULT 0,
		overall_status    TEXT NOT NULL DEFAULT 'pending',
		evidence          TEXT NOT NULL DEFAULT '[]',
		sync_status       TEXT NOT NULL DEFAULT 'pending',
		created_at        TEXT NOT NULL,
		updated_at        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_captured_forms_form_type ON captured_forms(form_type);
	CREATE INDEX IF NOT EXISTS idx_captured_forms_project_id ON captured_forms(project_id);
	CREATE INDEX IF NOT EXISTS idx_captured_forms_sync_status ON captured_forms(sync_status);
	CREATE INDEX IF NOT EXISTS idx_captured_forms_created_at ON captured_forms(created_at);`,

	// v1 -> v2: retain the last sync error for display.
	`ALTER TABLE captured_forms ADD COLUMN last_sync_error TEXT NOT NULL DEFAULT '';`,
}

// NewSQLiteStore opens (and creates if needed) the queue database at path.
// Use ":memory:" for an ephemeral database.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open queue database: %w", err)
	}

	// A single connection sidesteps table-lock contention between the
	// capture API and the sync engine.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", stmt, err)
		}
	}

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("queue store ready", "path", path, "schema_version", schemaVersion)
	return store, nil
}

// migrate applies any outstanding schema migrations.
func (s *SQLiteStore) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("queue database schema version %d is newer than supported version %d", version, schemaVersion)
	}

	for v := version; v < schemaVersion; v++ {
		if _, err := s.db.Exec(migrations[v]); err != nil {
			return fmt.Errorf("apply queue migration %d: %w", v+1, err)
		}
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			return fmt.Errorf("bump schema version to %d: %w", v+1, err)
		}
		s.logger.Info("applied queue migration", "version", v+1)
	}
	return nil
}

// =============================================================================
// Interface Implementation
// =============================================================================

const formColumns = `local_id, server_id, form_type, project_id, organization_id,
	inspector_name, inspection_date, inspection_status, comments, fields, results,
	completion_pct, overall_status, evidence, sync_status, last_sync_error,
	created_at, updated_at`

// Save upserts the record, generating a local ID if needed.
func (s *SQLiteStore) Save(ctx context.Context, form *domain.CapturedForm) (string, error) {
	const op = "queue.save"

	stored := form.Clone()
	if stored.LocalID == "" {
		stored.LocalID = domain.NewLocalID(stored.FormType)
	}
	if stored.SyncStatus == "" {
		stored.SyncStatus = domain.SyncStatusPending
	}
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	fields, err := encodeJSON(stored.Fields)
	if err != nil {
		return "", domain.Internal(err, op, "failed to encode form fields")
	}
	results, err := encodeJSON(stored.Results)
	if err != nil {
		return "", domain.Internal(err, op, "failed to encode inspection results")
	}
	evidence, err := encodeJSON(stored.Evidence)
	if err != nil {
		return "", domain.Internal(err, op, "failed to encode evidence files")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO captured_forms (`+formColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_id) DO UPDATE SET
			server_id         = excluded.server_id,
			inspector_name    = excluded.inspector_name,
			inspection_date   = excluded.inspection_date,
			inspection_status = excluded.inspection_status,
			comments          = excluded.comments,
			fields            = excluded.fields,
			results           = excluded.results,
			completion_pct    = excluded.completion_pct,
			overall_status    = excluded.overall_status,
			evidence          = excluded.evidence,
			sync_status       = excluded.sync_status,
			last_sync_error   = excluded.last_sync_error,
			updated_at        = excluded.updated_at`,
		stored.LocalID,
		stored.ServerID,
		string(stored.FormType),
		stored.ProjectID,
		stored.OrganizationID,
		stored.InspectorName,
		encodeTime(stored.InspectionDate),
		string(stored.InspectionStatus),
		stored.Comments,
		fields,
		results,
		stored.CompletionPct,
		string(stored.OverallStatus),
		evidence,
		string(stored.SyncStatus),
		stored.LastSyncError,
		encodeTime(stored.CreatedAt),
		encodeTime(stored.UpdatedAt),
	)
	if err != nil {
		return "", domain.Internal(err, op, "failed to save captured form")
	}

	return stored.LocalID, nil
}

// Get retrieves a record by local ID.
func (s *SQLiteStore) Get(ctx context.Context, localID string) (*domain.CapturedForm, error) {
	const op = "queue.get"

	row := s.db.QueryRowContext(ctx,
		`SELECT `+formColumns+` FROM captured_forms WHERE local_id = ?`, localID)

	form, err := scanForm(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NotFound(op, "captured form", localID)
		}
		return nil, domain.Internal(err, op, "failed to load captured form")
	}
	return form, nil
}

// List returns all records matching the filter, oldest first.
func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]domain.CapturedForm, error) {
	const op = "queue.list"

	var conds []string
	var args []any
	if filter.FormType != "" {
		conds = append(conds, "form_type = ?")
		args = append(args, string(filter.FormType))
	}
	if filter.ProjectID != "" {
		conds = append(conds, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.SyncStatus != "" {
		conds = append(conds, "sync_status = ?")
		args = append(args, string(filter.SyncStatus))
	}

	query := `SELECT ` + formColumns + ` FROM captured_forms`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC, local_id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list captured forms")
	}
	defer rows.Close()

	var out []domain.CapturedForm
	for rows.Next() {
		form, err := scanForm(rows)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to scan captured form")
		}
		out = append(out, *form)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to iterate captured forms")
	}
	return out, nil
}

// UpdateSyncStatus updates the sync state of an existing record.
func (s *SQLiteStore) UpdateSyncStatus(ctx context.Context, params UpdateSyncStatusParams) error {
	const op = "queue.update_sync_status"

	res, err := s.db.ExecContext(ctx, `
		UPDATE captured_forms SET
			sync_status     = ?,
			server_id       = CASE WHEN ? = '' THEN server_id ELSE ? END,
			last_sync_error = ?,
			updated_at      = ?
		WHERE local_id = ?`,
		string(params.Status),
		params.ServerID, params.ServerID,
		params.LastError,
		encodeTime(time.Now().UTC()),
		params.LocalID,
	)
	if err != nil {
		return domain.Internal(err, op, "failed to update sync status")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Internal(err, op, "failed to read update result")
	}
	if affected == 0 {
		return domain.NotFound(op, "captured form", params.LocalID)
	}
	return nil
}

// Delete removes a record. Idempotent.
func (s *SQLiteStore) Delete(ctx context.Context, localID string) error {
	const op = "queue.delete"

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM captured_forms WHERE local_id = ?`, localID); err != nil {
		return domain.Internal(err, op, "failed to delete captured form")
	}
	return nil
}

// ListUnsynced returns all pending records, oldest first.
func (s *SQLiteStore) ListUnsynced(ctx context.Context) ([]domain.CapturedForm, error) {
	return s.List(ctx, ListFilter{SyncStatus: domain.SyncStatusPending})
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Row Mapping
// =============================================================================

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanForm(row scanner) (*domain.CapturedForm, error) {
	var form domain.CapturedForm
	var formType, inspectionStatus, syncStatus, overallStatus string
	var inspectionDate, createdAt, updatedAt string
	var fieldsJSON, resultsJSON, evidenceJSON string

	err := row.Scan(
		&form.LocalID,
		&form.ServerID,
		&formType,
		&form.ProjectID,
		&form.OrganizationID,
		&form.InspectorName,
		&inspectionDate,
		&inspectionStatus,
		&form.Comments,
		&fieldsJSON,
		&resultsJSON,
		&form.CompletionPct,
		&overallStatus,
		&evidenceJSON,
		&syncStatus,
		&form.LastSyncError,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	form.FormType = domain.FormType(formType)
	form.InspectionStatus = domain.InspectionStatus(inspectionStatus)
	form.OverallStatus = domain.OverallStatus(overallStatus)
	form.SyncStatus = domain.SyncStatus(syncStatus)

	if form.InspectionDate, err = decodeTime(inspectionDate); err != nil {
		return nil, fmt.Errorf("decode inspection_date: %w", err)
	}
	if form.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if form.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}

	if err := decodeJSON(fieldsJSON, &form.Fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	if err := decodeJSON(resultsJSON, &form.Results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	if err := decodeJSON(evidenceJSON, &form.Evidence); err != nil {
		return nil, fmt.Errorf("decode evidence: %w", err)
	}

	return &form, nil
}

func encodeJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJSON(s string, v any) error {
	if strings.TrimSpace(s) == "" || s == "{}" || s == "[]" || s == "null" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
