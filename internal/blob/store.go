// ABOUTME: Filesystem-backed blob store for agent uploads using modernc.org/sqlite for metadata.
// ABOUTME: Stored names are derived from session id, upload time, and a sanitized original filename.

package blob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested blob does not exist.
var ErrNotFound = errors.New("blob not found")

// Store persists uploaded blobs on the filesystem and records upload
// metadata in a SQLite index.
type Store struct {
	dir    string
	db     *sql.DB
	logger *slog.Logger
}

// ObjectInfo describes one stored blob, as recorded in the index.
type ObjectInfo struct {
	ID         string
	Name       string
	SessionID  string
	Filename   string
	Size       int64
	UploadedAt time.Time
}

// NewStore creates a blob store rooted at dir with its index at
// indexPath. Both parent directories are created if needed and the index
// schema is created automatically.
func NewStore(dir, indexPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "blob")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	db, err := sql.Open("sqlite", indexPath)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}

	// WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS objects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			size INTEGER NOT NULL,
			uploaded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_objects_session ON objects(session_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("blob store initialized", "dir", dir, "index", indexPath)
	return &Store{dir: dir, db: db, logger: logger}, nil
}

// Save streams r to disk under a name derived from the session id, the
// current time, and the sanitized original filename, and records it in
// the index. The stored name is returned for use as a retrieval key.
func (s *Store) Save(ctx context.Context, sessionID, filename string, r io.Reader) (string, error) {
	name := SanitizeName(fmt.Sprintf("%s_%d_%s", sessionID, time.Now().Unix(), filename))
	if name == "" {
		return "", fmt.Errorf("filename %q sanitizes to nothing", filename)
	}

	path := filepath.Join(s.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", name, err)
	}

	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("writing %s: %w", name, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO objects (id, name, session_id, filename, size, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), name, sessionID, filename, size, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("indexing %s: %w", name, err)
	}

	s.logger.Info("blob stored", "name", name, "session_id", sessionID, "size", size)
	return name, nil
}

// Open returns a reader over the stored blob. The name is sanitized
// again before touching the filesystem, so a hostile retrieval key can
// never escape the store directory. Returns ErrNotFound on miss.
func (s *Store) Open(name string) (io.ReadCloser, error) {
	safe := SanitizeName(name)
	if safe == "" {
		return nil, ErrNotFound
	}

	f, err := os.Open(filepath.Join(s.dir, safe))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", safe, err)
	}
	return f, nil
}

// List returns metadata for all stored blobs, most recent first.
func (s *Store) List(ctx context.Context) ([]ObjectInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, session_id, filename, size, uploaded_at
		 FROM objects ORDER BY uploaded_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying objects: %w", err)
	}
	defer rows.Close()

	var objects []ObjectInfo
	for rows.Next() {
		var o ObjectInfo
		if err := rows.Scan(&o.ID, &o.Name, &o.SessionID, &o.Filename, &o.Size, &o.UploadedAt); err != nil {
			return nil, fmt.Errorf("scanning object: %w", err)
		}
		objects = append(objects, o)
	}
	return objects, rows.Err()
}

// Close closes the metadata index.
func (s *Store) Close() error {
	return s.db.Close()
}

// SanitizeName reduces a filename to characters safe as a storage key:
// path separators and anything outside [A-Za-z0-9._-] are replaced with
// underscores, and leading dots are stripped so the result can never be
// a dotfile or a traversal component.
func SanitizeName(name string) string {
	name = filepath.Base(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "._")
}
