package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"imagecompressor/internal/models"
)

// Storage persists compression history and contact submissions
type Storage struct {
	db     *sql.DB
	dbPath string
}

// NewStorage opens (and creates, if needed) the database at dbPath
func NewStorage(dbPath string) (*Storage, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows one writer; the server writes from several goroutines
	db.SetMaxOpenConns(1)

	s := &Storage{db: db, dbPath: dbPath}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Current schema version
const schemaVersion = 2

// migrations must be idempotent
var migrations = []struct {
	version     int
	description string
	up          string
}{
	{
		version:     1,
		description: "Initial schema",
		up:          "", // Handled by base schema creation
	},
	{
		version:     2,
		description: "Add fidelity column to compression items",
		up: `
			ALTER TABLE compression_items ADD COLUMN fidelity INTEGER DEFAULT -1;
		`,
	},
}

func (s *Storage) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS compression_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		quality INTEGER NOT NULL,
		total INTEGER NOT NULL,
		succeeded INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		bytes_saved INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS compression_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES compression_runs(id) ON DELETE CASCADE,
		source_path TEXT NOT NULL,
		output_path TEXT DEFAULT '',
		format TEXT NOT NULL,
		original_size INTEGER NOT NULL,
		compressed_size INTEGER DEFAULT 0,
		error TEXT DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_items_run_id ON compression_items(run_id);
	CREATE INDEX IF NOT EXISTS idx_items_output_path ON compression_items(output_path);

	CREATE TABLE IF NOT EXISTS contact_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		subject TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	`

	if _, err = s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if err := s.migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (s *Storage) migrate() error {
	currentVersion := s.getSchemaVersion()

	for _, m := range migrations {
		if m.version <= currentVersion || m.up == "" {
			continue
		}

		// Column might already exist
		if m.version == 2 && s.columnExists("compression_items", "fidelity") {
			s.setSchemaVersion(m.version)
			continue
		}

		if _, err := s.db.Exec(m.up); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.description, err)
		}

		s.setSchemaVersion(m.version)
	}

	return nil
}

func (s *Storage) getSchemaVersion() int {
	var version int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0
	}
	return version
}

func (s *Storage) setSchemaVersion(version int) {
	s.db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version)
}

func (s *Storage) columnExists(table, column string) bool {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?
	`, table, column).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// RecordRun saves a run and its items in one transaction. IDs are filled in.
func (s *Storage) RecordRun(run *models.CompressionRun, items []*models.CompressionItem) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO compression_runs (started_at, finished_at, quality, total, succeeded, failed, bytes_saved)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Quality, run.Total, run.Succeeded, run.Failed, run.BytesSaved)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	run.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read run id: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO compression_items (run_id, source_path, output_path, format, original_size, compressed_size, fidelity, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		item.RunID = run.ID
		res, err := stmt.Exec(item.RunID, item.SourcePath, item.OutputPath, item.Format,
			item.OriginalSize, item.CompressedSize, item.Fidelity, item.Error)
		if err != nil {
			return fmt.Errorf("failed to insert item %s: %w", item.SourcePath, err)
		}
		item.ID, _ = res.LastInsertId()
	}

	return tx.Commit()
}

// ListRuns returns runs newest first. limit 0 means all.
func (s *Storage) ListRuns(limit, offset int) ([]*models.CompressionRun, error) {
	query := `
		SELECT id, started_at, finished_at, quality, total, succeeded, failed, bytes_saved
		FROM compression_runs
		ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	} else if offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.CompressionRun
	for rows.Next() {
		run := &models.CompressionRun{}
		var started, finished string
		err := rows.Scan(&run.ID, &started, &finished, &run.Quality, &run.Total,
			&run.Succeeded, &run.Failed, &run.BytesSaved)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		run.StartedAt = parseTime(started)
		run.FinishedAt = parseTime(finished)
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// CountRuns returns the number of recorded runs
func (s *Storage) CountRuns() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM compression_runs").Scan(&count)
	return count, err
}

// ItemsForRun returns the items of a run in insertion order
func (s *Storage) ItemsForRun(runID int64) ([]*models.CompressionItem, error) {
	return s.queryItems(`WHERE run_id = ? ORDER BY id`, runID)
}

// OutputsForRuns returns items with a written output for the given runs.
// No ids means every run.
func (s *Storage) OutputsForRuns(runIDs []int64) ([]*models.CompressionItem, error) {
	if len(runIDs) == 0 {
		return s.queryItems(`WHERE output_path != '' ORDER BY id`)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(runIDs)), ",")
	args := make([]any, len(runIDs))
	for i, id := range runIDs {
		args[i] = id
	}
	return s.queryItems(`WHERE output_path != '' AND run_id IN (`+placeholders+`) ORDER BY id`, args...)
}

func (s *Storage) queryItems(where string, args ...any) ([]*models.CompressionItem, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, source_path, output_path, format, original_size, compressed_size, fidelity, error
		FROM compression_items `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []*models.CompressionItem
	for rows.Next() {
		item := &models.CompressionItem{}
		var output, errMsg sql.NullString
		var fidelity sql.NullInt64
		err := rows.Scan(&item.ID, &item.RunID, &item.SourcePath, &output, &item.Format,
			&item.OriginalSize, &item.CompressedSize, &fidelity, &errMsg)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		item.OutputPath = output.String
		item.Error = errMsg.String
		item.Fidelity = -1
		if fidelity.Valid {
			item.Fidelity = int(fidelity.Int64)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// ForgetOutput clears the output path of items that wrote outputPath
func (s *Storage) ForgetOutput(outputPath string) error {
	_, err := s.db.Exec("UPDATE compression_items SET output_path = '' WHERE output_path = ?", outputPath)
	return err
}

// SaveContact stores a contact submission
func (s *Storage) SaveContact(msg *models.ContactMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	res, err := s.db.Exec(`
		INSERT INTO contact_messages (message_id, name, email, subject, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.MessageID, msg.Name, msg.Email, msg.Subject, msg.Body, msg.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert contact message: %w", err)
	}
	msg.ID, _ = res.LastInsertId()
	return nil
}

// ListContacts returns contact submissions newest first
func (s *Storage) ListContacts() ([]*models.ContactMessage, error) {
	rows, err := s.db.Query(`
		SELECT id, message_id, name, email, subject, body, created_at
		FROM contact_messages
		ORDER BY id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query contact messages: %w", err)
	}
	defer rows.Close()

	var out []*models.ContactMessage
	for rows.Next() {
		m := &models.ContactMessage{}
		var created string
		if err := rows.Scan(&m.ID, &m.MessageID, &m.Name, &m.Email, &m.Subject, &m.Body, &created); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		m.CreatedAt = parseTime(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

// parseTime reads the layouts modernc.org/sqlite writes for time.Time values
func parseTime(v string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999 -0700 MST",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
