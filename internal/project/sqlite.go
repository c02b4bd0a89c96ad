package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/manash/clickgenius/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    mode TEXT NOT NULL DEFAULT 'fast',
    cursor INTEGER NOT NULL DEFAULT -1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS entries (
    project_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    ref TEXT NOT NULL,
    PRIMARY KEY (project_id, position),
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT NOT NULL,
    project_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    role TEXT NOT NULL,
    text TEXT NOT NULL,
    image_ref TEXT,
    timestamp DATETIME NOT NULL,
    PRIMARY KEY (project_id, position),
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_projects_updated_at ON projects(updated_at);
`

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

func DefaultDBPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".clickgenius", "projects.db"), nil
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps the foreign_keys pragma in effect for every query
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save replaces the stored record for p in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, p *Project) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO projects (id, name, mode, cursor, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name, mode = excluded.mode,
		   cursor = excluded.cursor, updated_at = excluded.updated_at`,
		p.ID, p.Name, string(p.Mode), p.Cursor, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE project_id = ?`, p.ID); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE project_id = ?`, p.ID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	for i, ref := range p.Entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entries (project_id, position, ref) VALUES (?, ?, ?)`,
			p.ID, i, string(ref)); err != nil {
			return fmt.Errorf("failed to insert entry %d: %w", i, err)
		}
	}

	for i, msg := range p.Messages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, project_id, position, role, text, image_ref, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, p.ID, i, string(msg.Role), msg.Text, nullString(string(msg.Image)), msg.Timestamp); err != nil {
			return fmt.Errorf("failed to insert message %d: %w", i, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Project, error) {
	p := &Project{}
	var mode string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, mode, cursor, created_at, updated_at FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &mode, &p.Cursor, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	p.Mode = models.Mode(mode)

	if p.Entries, err = s.listEntries(ctx, id); err != nil {
		return nil, err
	}
	if p.Messages, err = s.listMessages(ctx, id); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) listEntries(ctx context.Context, projectID string) ([]models.ImageRef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ref FROM entries WHERE project_id = ? ORDER BY position ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.ImageRef
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		entries = append(entries, models.ImageRef(ref))
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) listMessages(ctx context.Context, projectID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, text, image_ref, timestamp FROM messages
		 WHERE project_id = ? ORDER BY position ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		var role string
		var imageRef sql.NullString
		if err := rows.Scan(&msg.ID, &role, &msg.Text, &imageRef, &msg.Timestamp); err != nil {
			return nil, err
		}
		msg.Role = models.Role(role)
		msg.Image = models.ImageRef(imageRef.String)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.name, p.mode, p.updated_at,
		        (SELECT COUNT(*) FROM entries e WHERE e.project_id = p.id),
		        (SELECT COUNT(*) FROM messages m WHERE m.project_id = p.id)
		 FROM projects p ORDER BY p.updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var sum Summary
		var mode string
		var updatedAt time.Time
		if err := rows.Scan(&sum.ID, &sum.Name, &mode, &updatedAt, &sum.Versions, &sum.Messages); err != nil {
			return nil, err
		}
		sum.Mode = models.Mode(mode)
		sum.UpdatedAt = updatedAt
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Shutdown lets the dependency container close the store.
func (s *SQLiteStore) Shutdown() error {
	return s.Close()
}
