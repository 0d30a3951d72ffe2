package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Backend persists one serialized document per context id. The Store treats
// every backend as best-effort: a failed write is logged and the in-memory
// window stays authoritative.
type Backend interface {
	// Save writes or replaces the document for its context id.
	Save(ctx context.Context, doc *Document) error

	// Load returns the document for the id, or nil when absent.
	Load(ctx context.Context, contextID string) (*Document, error)

	// Delete removes the document for the id. Deleting an absent
	// document is not an error.
	Delete(ctx context.Context, contextID string) error

	// List returns every stored context id.
	List(ctx context.Context) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// FileBackend stores one JSON file per context id under a directory.
type FileBackend struct {
	dir    string
	logger *slog.Logger
}

// NewFileBackend creates a file backend, creating the directory if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		return nil, fmt.Errorf("directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &FileBackend{
		dir:    dir,
		logger: slog.Default().With("component", "conversation.storage.file"),
	}, nil
}

// path maps a context id to its file, keeping ids with path separators from
// escaping the directory.
func (f *FileBackend) path(contextID string) string {
	name := strings.NewReplacer("/", "_", string(filepath.Separator), "_").Replace(contextID)
	return filepath.Join(f.dir, name+".json")
}

// Save implements Backend.
func (f *FileBackend) Save(ctx context.Context, doc *Document) error {
	if doc == nil || doc.ContextID == "" {
		return fmt.Errorf("document missing context id")
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	if err := os.WriteFile(f.path(doc.ContextID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}

// Load implements Backend.
func (f *FileBackend) Load(ctx context.Context, contextID string) (*Document, error) {
	data, err := os.ReadFile(f.path(contextID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return &doc, nil
}

// Delete implements Backend.
func (f *FileBackend) Delete(ctx context.Context, contextID string) error {
	err := os.Remove(f.path(contextID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// List implements Backend.
func (f *FileBackend) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

// Close implements Backend.
func (f *FileBackend) Close() error { return nil }

// SQLiteBackend stores documents in a single SQLite table, one row per
// context id.
type SQLiteBackend struct {
	db     *sql.DB
	logger *slog.Logger
	mu     sync.RWMutex
}

// SQLiteBackendConfig configures the SQLite document backend.
type SQLiteBackendConfig struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteBackend creates a SQLite document backend.
func NewSQLiteBackend(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	b := &SQLiteBackend{
		db:     db,
		logger: slog.Default().With("component", "conversation.storage.sqlite"),
	}
	if err := b.initialize(cfg.BusyTimeout); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// initialize enables WAL mode and creates the schema.
func (b *SQLiteBackend) initialize(busyTimeout time.Duration) error {
	if _, err := b.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := b.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS contexts (
			context_id TEXT PRIMARY KEY,
			document TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Save implements Backend.
func (b *SQLiteBackend) Save(ctx context.Context, doc *Document) error {
	if doc == nil || doc.ContextID == "" {
		return fmt.Errorf("document missing context id")
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO contexts (context_id, document, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(context_id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at
	`, doc.ContextID, string(data), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// Load implements Backend.
func (b *SQLiteBackend) Load(ctx context.Context, contextID string) (*Document, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var data string
	err := b.db.QueryRowContext(ctx,
		`SELECT document FROM contexts WHERE context_id = ?`, contextID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return &doc, nil
}

// Delete implements Backend.
func (b *SQLiteBackend) Delete(ctx context.Context, contextID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.db.ExecContext(ctx,
		`DELETE FROM contexts WHERE context_id = ?`, contextID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// List implements Backend.
func (b *SQLiteBackend) List(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rows, err := b.db.QueryContext(ctx, `SELECT context_id FROM contexts ORDER BY context_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan context id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating context ids: %w", err)
	}
	return ids, nil
}

// Close implements Backend.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
