package tasks

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/spetr/doit/pkg/types"
)

// SQLitePersister stores tasks in a SQLite database.
type SQLitePersister struct {
	db   *sql.DB
	path string
}

// NewSQLitePersister opens (and creates if needed) the database at path.
func NewSQLitePersister(path string) (*SQLitePersister, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// WAL mode for concurrent reads, busy_timeout to wait for locks instead of failing immediately
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	p := &SQLitePersister{db: db, path: path}
	if err := p.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return p, nil
}

func (p *SQLitePersister) createSchema() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			ordinal INTEGER NOT NULL,
			text TEXT NOT NULL,
			completed INTEGER NOT NULL DEFAULT 0,
			project TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			origin_file TEXT,
			origin_line INTEGER,
			origin_raw_line TEXT,
			origin_tag TEXT,
			origin_status TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create tasks table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_tasks_ordinal ON tasks(ordinal)",
		"CREATE INDEX IF NOT EXISTS idx_tasks_origin_file ON tasks(origin_file)",
	}
	for _, idx := range indexes {
		if _, err := p.db.Exec(idx); err != nil {
			return err
		}
	}
	return nil
}

// Load reads all tasks in stored order.
func (p *SQLitePersister) Load() ([]types.Task, error) {
	rows, err := p.db.Query(`
		SELECT id, text, completed, project, created_at,
		       origin_file, origin_line, origin_raw_line, origin_tag, origin_status
		FROM tasks ORDER BY ordinal
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []types.Task
	for rows.Next() {
		var (
			t         types.Task
			completed int
			createdAt int64
			file      sql.NullString
			line      sql.NullInt64
			rawLine   sql.NullString
			tag       sql.NullString
			status    sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Text, &completed, &t.Project, &createdAt,
			&file, &line, &rawLine, &tag, &status); err != nil {
			return nil, err
		}

		t.Completed = completed != 0
		t.CreatedAt = time.Unix(0, createdAt)
		if file.Valid {
			t.Origin = &types.Origin{
				FilePath: file.String,
				Line:     int(line.Int64),
				RawLine:  rawLine.String,
				Tag:      types.Tag(tag.String),
				Status:   types.OriginStatus(status.String),
			}
		}
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}

// Save replaces the stored list in one transaction.
func (p *SQLitePersister) Save(tasks []types.Task) error {
	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM tasks"); err != nil {
		return fmt.Errorf("failed to clear tasks: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO tasks
		(id, ordinal, text, completed, project, created_at,
		 origin_file, origin_line, origin_raw_line, origin_tag, origin_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, t := range tasks {
		var file, rawLine, tag, status sql.NullString
		var line sql.NullInt64
		if t.Origin != nil {
			file = sql.NullString{String: t.Origin.FilePath, Valid: true}
			line = sql.NullInt64{Int64: int64(t.Origin.Line), Valid: true}
			rawLine = sql.NullString{String: t.Origin.RawLine, Valid: true}
			tag = sql.NullString{String: string(t.Origin.Tag), Valid: true}
			status = sql.NullString{String: string(t.Origin.Status), Valid: true}
		}

		completed := 0
		if t.Completed {
			completed = 1
		}

		_, err := stmt.Exec(
			t.ID, i, t.Text, completed, t.Project, t.CreatedAt.UnixNano(),
			file, line, rawLine, tag, status,
		)
		if err != nil {
			return fmt.Errorf("failed to store task %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

// Close closes the database.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}
