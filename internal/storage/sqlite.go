package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

// SQLiteStore keeps every entity as a JSON document in its own table
type SQLiteStore struct {
	db          *sql.DB
	interviews  *sqliteCollection[types.Interview, *types.Interview]
	transcripts *sqliteCollection[types.Transcript, *types.Transcript]
	profiles    *sqliteCollection[types.Profile, *types.Profile]
	contents    *sqliteCollection[types.Content, *types.Content]
	projects    *sqliteProjects
}

// table name -> whether ref is unique among non-empty values
var sqliteTables = []struct {
	name      string
	uniqueRef bool
}{
	{"interviews", false},
	{"transcripts", false},
	{"profiles", true},
	{"contents", true},
}

// NewSQLiteStore opens (or creates) the database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	return openSQLite(dsn)
}

// OpenInMemory opens a private in-memory database, for tests
func OpenInMemory() (*SQLiteStore, error) {
	return openSQLite(":memory:")
}

func openSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection: keeps :memory: databases alive and serialises writers
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{
		db:          db,
		interviews:  &sqliteCollection[types.Interview, *types.Interview]{db: db, table: "interviews"},
		transcripts: &sqliteCollection[types.Transcript, *types.Transcript]{db: db, table: "transcripts"},
		profiles:    &sqliteCollection[types.Profile, *types.Profile]{db: db, table: "profiles"},
		contents:    &sqliteCollection[types.Content, *types.Content]{db: db, table: "contents"},
		projects:    &sqliteProjects{db: db},
	}, nil
}

func migrate(db *sql.DB) error {
	for _, t := range sqliteTables {
		createTableSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			ref TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			doc TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_%[1]s_created_at ON %[1]s(created_at);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_status ON %[1]s(status);
		`, t.name)
		if t.uniqueRef {
			createTableSQL += fmt.Sprintf(
				"CREATE UNIQUE INDEX IF NOT EXISTS idx_%[1]s_ref ON %[1]s(ref) WHERE ref <> '';", t.name)
		} else {
			createTableSQL += fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS idx_%[1]s_ref ON %[1]s(ref);", t.name)
		}

		if _, err := db.Exec(createTableSQL); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.name, err)
		}
	}

	projectsSQL := `
	CREATE TABLE IF NOT EXISTS projects (
		project_id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		doc TEXT NOT NULL
	);
	`
	if _, err := db.Exec(projectsSQL); err != nil {
		return fmt.Errorf("failed to create table projects: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Interviews() Collection[types.Interview]   { return s.interviews }
func (s *SQLiteStore) Transcripts() Collection[types.Transcript] { return s.transcripts }
func (s *SQLiteStore) Profiles() Collection[types.Profile]       { return s.profiles }
func (s *SQLiteStore) Contents() Collection[types.Content]       { return s.contents }
func (s *SQLiteStore) Projects() ProjectStore                    { return s.projects }

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteCollection[T any, PT docPtr[T]] struct {
	db    *sql.DB
	table string
}

func (c *sqliteCollection[T, PT]) Insert(ctx context.Context, doc *T) error {
	d := PT(doc)
	if d.GetID() == "" {
		d.SetID(uuid.New().String())
	}
	d.Stamp(time.Now().UTC())

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s document: %w", c.table, err)
	}

	query := fmt.Sprintf(`
	INSERT INTO %s (id, status, ref, created_at, updated_at, doc)
	VALUES (?, ?, ?, ?, ?, ?)
	`, c.table)

	_, err = c.db.ExecContext(ctx, query, d.GetID(), string(d.GetStatus()), d.RefID(),
		d.Created().UnixNano(), time.Now().UnixNano(), string(raw))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s ref %q: %w", c.table, d.RefID(), ErrDuplicate)
		}
		return fmt.Errorf("failed to insert into %s: %w", c.table, err)
	}
	return nil
}

func (c *sqliteCollection[T, PT]) Get(ctx context.Context, id string) (*T, error) {
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE id = ?`, c.table)
	return c.scanOne(c.db.QueryRowContext(ctx, query, id))
}

func (c *sqliteCollection[T, PT]) List(ctx context.Context) ([]*T, error) {
	query := fmt.Sprintf(`SELECT doc FROM %s ORDER BY created_at DESC, rowid DESC`, c.table)
	return c.scanAll(ctx, query)
}

func (c *sqliteCollection[T, PT]) Update(ctx context.Context, doc *T) error {
	d := PT(doc)
	d.Stamp(time.Now().UTC())

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s document: %w", c.table, err)
	}

	query := fmt.Sprintf(`
	UPDATE %s SET status = ?, ref = ?, updated_at = ?, doc = ? WHERE id = ?
	`, c.table)

	res, err := c.db.ExecContext(ctx, query, string(d.GetStatus()), d.RefID(),
		time.Now().UnixNano(), string(raw), d.GetID())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s ref %q: %w", c.table, d.RefID(), ErrDuplicate)
		}
		return fmt.Errorf("failed to update %s: %w", c.table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *sqliteCollection[T, PT]) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, c.table)
	res, err := c.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", c.table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *sqliteCollection[T, PT]) FindByRef(ctx context.Context, ref string) (*T, error) {
	if ref == "" {
		return nil, ErrNotFound
	}
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE ref = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, c.table)
	return c.scanOne(c.db.QueryRowContext(ctx, query, ref))
}

func (c *sqliteCollection[T, PT]) ListByStatus(ctx context.Context, status types.Status) ([]*T, error) {
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE status = ? ORDER BY created_at DESC, rowid DESC`, c.table)
	return c.scanAll(ctx, query, string(status))
}

func (c *sqliteCollection[T, PT]) scanOne(row *sql.Row) (*T, error) {
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", c.table, err)
	}
	var doc T
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode %s document: %w", c.table, err)
	}
	return &doc, nil
}

func (c *sqliteCollection[T, PT]) scanAll(ctx context.Context, query string, args ...interface{}) ([]*T, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.table, err)
	}
	defer rows.Close()

	docs := []*T{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", c.table, err)
		}
		var doc T
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("failed to decode %s document: %w", c.table, err)
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

type sqliteProjects struct {
	db *sql.DB
}

func (p *sqliteProjects) Upsert(ctx context.Context, project *types.Project) error {
	now := time.Now().UTC()
	doc := *project
	existing, err := p.Get(ctx, project.ProjectID)
	switch {
	case err == nil:
		// name and creation time are set once, on insert
		doc.Name = existing.Name
		doc.CreatedAt = existing.CreatedAt
	case errors.Is(err, ErrNotFound):
		doc.CreatedAt = now
	default:
		return err
	}
	doc.UpdatedAt = now
	project.CreatedAt, project.UpdatedAt = doc.CreatedAt, doc.UpdatedAt

	raw, err := json.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to encode project: %w", err)
	}

	query := `
	INSERT INTO projects (project_id, created_at, updated_at, doc)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(project_id) DO UPDATE SET updated_at = excluded.updated_at, doc = excluded.doc
	`
	if _, err := p.db.ExecContext(ctx, query, doc.ProjectID,
		doc.CreatedAt.UnixNano(), now.UnixNano(), string(raw)); err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

func (p *sqliteProjects) Get(ctx context.Context, projectID string) (*types.Project, error) {
	var raw string
	err := p.db.QueryRowContext(ctx, `SELECT doc FROM projects WHERE project_id = ?`, projectID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	var project types.Project
	if err := json.Unmarshal([]byte(raw), &project); err != nil {
		return nil, fmt.Errorf("failed to decode project: %w", err)
	}
	return &project, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
