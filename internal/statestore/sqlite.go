package statestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/daimoniac/dtrack-upload/internal/dtrack"
	"github.com/daimoniac/dtrack-upload/internal/errors"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements RunStore using SQLite
type SQLiteStore struct {
	db *sql.DB
}

var _ RunStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite run history
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// _foreign_keys=1: Ensures CASCADE DELETE works properly
	// mode=rwc: Read/Write/Create mode
	// _journal_mode=WAL: parallel pipeline jobs may share one history file
	// _busy_timeout=3000: Wait up to 3 seconds for the writer lock
	connStr := dbPath + "?_foreign_keys=1&mode=rwc&_journal_mode=WAL&_busy_timeout=3000"

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, errors.NewTransientf("failed to open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	// Verify foreign keys are enabled
	var fkEnabled int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		db.Close()
		return nil, errors.NewTransientf("failed to check foreign keys status: %w", err)
	}
	if fkEnabled != 1 {
		db.Close()
		return nil, errors.NewTransientf("foreign keys are not enabled (got %d, expected 1)", fkEnabled)
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// initSchema creates the database schema with all tables and indexes
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT,
		name TEXT NOT NULL DEFAULT '',
		version TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT (cast(strftime('%s', 'now') as integer))
	);

	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		command TEXT NOT NULL,
		token TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		violation TEXT NOT NULL DEFAULT '',
		critical_count INTEGER,
		high_count INTEGER,
		medium_count INTEGER,
		low_count INTEGER,
		policy_violations_total INTEGER,
		metrics_json TEXT, -- full snapshot as returned by the server
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_projects_uuid ON projects(uuid);
	CREATE INDEX IF NOT EXISTS idx_projects_name_version ON projects(name, version);
	CREATE INDEX IF NOT EXISTS idx_runs_project ON runs(project_id);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(outcome);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RecordRun saves a run in a transaction, creating the project row on first use
func (s *SQLiteStore) RecordRun(ctx context.Context, record *RunRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewTransientf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	projectRowID, err := s.upsertProject(ctx, tx, record)
	if err != nil {
		return err
	}

	var critical, high, medium, low, policyTotal sql.NullInt64
	var metricsJSON sql.NullString
	if m := record.Metrics; m != nil {
		critical = sql.NullInt64{Int64: int64(m.Critical), Valid: true}
		high = sql.NullInt64{Int64: int64(m.High), Valid: true}
		medium = sql.NullInt64{Int64: int64(m.Medium), Valid: true}
		low = sql.NullInt64{Int64: int64(m.Low), Valid: true}
		policyTotal = sql.NullInt64{Int64: int64(m.PolicyViolationsTotal), Valid: true}

		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal metrics: %w", err)
		}
		metricsJSON = sql.NullString{String: string(data), Valid: true}
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO runs (project_id, command, token, outcome, error_message, violation,
			critical_count, high_count, medium_count, low_count, policy_violations_total, metrics_json,
			started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, projectRowID, record.Command, record.Token, record.Outcome, record.ErrorMessage, record.Violation,
		critical, high, medium, low, policyTotal, metricsJSON,
		record.StartedAt.UnixMilli(), record.FinishedAt.UnixMilli())
	if err != nil {
		return errors.NewTransientf("failed to insert run: %w", err)
	}

	runID, err := result.LastInsertId()
	if err != nil {
		return errors.NewTransientf("failed to get run ID: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewTransientf("failed to commit transaction: %w", err)
	}

	record.ID = runID
	return nil
}

// upsertProject finds the project row by UUID, then by name and version, and
// fills in whatever the record knows that the row does not.
func (s *SQLiteStore) upsertProject(ctx context.Context, tx *sql.Tx, record *RunRecord) (int64, error) {
	var id int64
	err := sql.ErrNoRows
	if record.ProjectID != "" {
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM projects WHERE uuid = ?
		`, record.ProjectID).Scan(&id)
	}
	if err == sql.ErrNoRows && record.ProjectName != "" {
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM projects WHERE name = ? AND version = ? ORDER BY id LIMIT 1
		`, record.ProjectName, record.ProjectVersion).Scan(&id)
	}

	switch {
	case err == sql.ErrNoRows:
		result, err := tx.ExecContext(ctx, `
			INSERT INTO projects (uuid, name, version) VALUES (?, ?, ?)
		`, nullString(record.ProjectID), record.ProjectName, record.ProjectVersion)
		if err != nil {
			return 0, errors.NewTransientf("failed to insert project: %w", err)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return 0, errors.NewTransientf("failed to get project ID: %w", err)
		}
		return id, nil
	case err != nil:
		return 0, errors.NewTransientf("failed to query project: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE projects
		SET uuid = COALESCE(?, uuid),
			name = CASE WHEN ? <> '' THEN ? ELSE name END,
			version = CASE WHEN ? <> '' THEN ? ELSE version END
		WHERE id = ?
	`, nullString(record.ProjectID),
		record.ProjectName, record.ProjectName,
		record.ProjectVersion, record.ProjectVersion,
		id)
	if err != nil {
		return 0, errors.NewTransientf("failed to update project: %w", err)
	}
	return id, nil
}

const selectRuns = `
	SELECT r.id, r.command, COALESCE(p.uuid, ''), p.name, p.version,
		r.token, r.outcome, r.error_message, r.violation, r.metrics_json,
		r.started_at, r.finished_at
	FROM runs r
	JOIN projects p ON r.project_id = p.id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var record RunRecord
	var metricsJSON sql.NullString
	var startedAt, finishedAt int64

	err := row.Scan(
		&record.ID, &record.Command, &record.ProjectID, &record.ProjectName, &record.ProjectVersion,
		&record.Token, &record.Outcome, &record.ErrorMessage, &record.Violation, &metricsJSON,
		&startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	record.StartedAt = time.UnixMilli(startedAt).UTC()
	record.FinishedAt = time.UnixMilli(finishedAt).UTC()

	if metricsJSON.Valid && metricsJSON.String != "" {
		var m dtrack.Metrics
		if err := json.Unmarshal([]byte(metricsJSON.String), &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
		record.Metrics = &m
	}
	return &record, nil
}

// GetLastRun retrieves the most recent run for a project UUID
func (s *SQLiteStore) GetLastRun(ctx context.Context, projectID string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, selectRuns+`
		WHERE p.uuid = ?
		ORDER BY r.started_at DESC, r.id DESC
		LIMIT 1
	`, projectID)

	record, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, errors.NewTransientf("failed to query run: %w", err)
	}
	return record, nil
}

// ListRuns returns runs newest first with optional filters
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error) {
	query := selectRuns + " WHERE 1=1"
	args := []interface{}{}

	if filter.ProjectID != "" {
		query += " AND p.uuid = ?"
		args = append(args, filter.ProjectID)
	}

	if filter.Outcome != "" {
		query += " AND r.outcome = ?"
		args = append(args, filter.Outcome)
	}

	query += " ORDER BY r.started_at DESC, r.id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewTransientf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var records []*RunRecord
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, errors.NewTransientf("failed to scan row: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.NewTransientf("error iterating rows: %w", err)
	}

	return records, nil
}

// CountRunsByOutcome counts the runs of a project UUID per outcome
func (s *SQLiteStore) CountRunsByOutcome(ctx context.Context, projectID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.outcome, COUNT(*)
		FROM runs r
		JOIN projects p ON r.project_id = p.id
		WHERE p.uuid = ?
		GROUP BY r.outcome
	`, projectID)
	if err != nil {
		return nil, errors.NewTransientf("failed to count runs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, errors.NewTransientf("failed to scan run count: %w", err)
		}
		counts[outcome] = count
	}

	if err := rows.Err(); err != nil {
		return nil, errors.NewTransientf("error iterating run counts: %w", err)
	}

	return counts, nil
}

// LastRunAt returns the start of the newest run with the given outcome, or
// ErrRunNotFound when there is none.
func (s *SQLiteStore) LastRunAt(ctx context.Context, projectID, outcome string) (time.Time, error) {
	var startedAt sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(r.started_at)
		FROM runs r
		JOIN projects p ON r.project_id = p.id
		WHERE p.uuid = ? AND r.outcome = ?
	`, projectID, outcome).Scan(&startedAt)
	if err != nil {
		return time.Time{}, errors.NewTransientf("failed to query last run: %w", err)
	}
	if !startedAt.Valid {
		return time.Time{}, ErrRunNotFound
	}
	return time.UnixMilli(startedAt.Int64).UTC(), nil
}

func (s *SQLiteStore) executeCleanup(ctx context.Context, operation func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewTransientf("failed to begin cleanup transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := operation(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.NewTransientf("failed to commit cleanup transaction: %w", err)
	}

	return nil
}

// CleanupExcessRuns removes old runs, keeping only the most recent N runs per project.
func (s *SQLiteStore) CleanupExcessRuns(ctx context.Context, maxRunsToKeep int) error {
	if maxRunsToKeep <= 0 {
		return fmt.Errorf("maxRunsToKeep must be positive, got %d", maxRunsToKeep)
	}

	return s.executeCleanup(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT project_id FROM runs GROUP BY project_id HAVING COUNT(*) > ?
		`, maxRunsToKeep)
		if err != nil {
			return errors.NewTransientf("failed to query projects for cleanup: %w", err)
		}

		var projectIDs []int64
		for rows.Next() {
			var projectID int64
			if err := rows.Scan(&projectID); err != nil {
				rows.Close()
				return errors.NewTransientf("failed to scan project ID: %w", err)
			}
			projectIDs = append(projectIDs, projectID)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return errors.NewTransientf("error iterating project rows: %w", err)
		}

		for _, projectID := range projectIDs {
			if err := cleanupExcessRunsForProject(ctx, tx, projectID, maxRunsToKeep); err != nil {
				return err
			}
		}
		return nil
	})
}

// cleanupExcessRunsForProject deletes every run of one project but the newest N
func cleanupExcessRunsForProject(ctx context.Context, tx *sql.Tx, projectID int64, maxRunsToKeep int) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM runs
		WHERE project_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, projectID, maxRunsToKeep)
	if err != nil {
		return errors.NewTransientf("failed to query runs to keep: %w", err)
	}

	var keepRunIDs []int64
	for rows.Next() {
		var runID int64
		if err := rows.Scan(&runID); err != nil {
			rows.Close()
			return errors.NewTransientf("failed to scan keep run ID: %w", err)
		}
		keepRunIDs = append(keepRunIDs, runID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errors.NewTransientf("error iterating keep run IDs: %w", err)
	}

	if len(keepRunIDs) < maxRunsToKeep {
		return nil
	}

	placeholders := make([]string, len(keepRunIDs))
	args := make([]interface{}, len(keepRunIDs)+1)
	args[0] = projectID
	for i, runID := range keepRunIDs {
		placeholders[i] = "?"
		args[i+1] = runID
	}

	deleteQuery := fmt.Sprintf(`
		DELETE FROM runs
		WHERE project_id = ? AND id NOT IN (%s)
	`, strings.Join(placeholders, ","))

	if _, err := tx.ExecContext(ctx, deleteQuery, args...); err != nil {
		return errors.NewTransientf("failed to delete excess runs: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
