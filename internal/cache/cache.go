// Package cache stores transform results keyed by module content and
// chain configuration, plus a history of builds, in SQLite.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/leapstack-labs/leapbundle/pkg/core"
)

// Memory is the path of an in-memory cache.
const Memory = ":memory:"

// Entry is a cached transform result.
type Entry struct {
	Kind        string
	Code        []byte
	Map         []byte
	Diagnostics []core.Diagnostic
	Assets      []core.Asset
}

// Store is a SQLite-backed transform cache. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens (creating if needed) the cache database at path and runs
// migrations. Use Memory for an in-memory database.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dsn := path
	if path != Memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if path == Memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}

	s := &Store{db: db, path: path, logger: logger}
	if err := s.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debug("cache opened", "path", path)
	return s, nil
}

// NewWithDB wraps an existing connection without migrating it.
func NewWithDB(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{db: db, logger: logger}
}

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Key derives the cache key of a module from every input of its transform
// chain: the path, the chain key, the public path and the raw content.
func Key(path, chainKey, publicPath string, raw []byte) string {
	h := sha256.New()
	for _, part := range []string{path, chainKey, publicPath} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the entry stored under key.
func (s *Store) Get(ctx context.Context, key string) (*Entry, bool, error) {
	var (
		e           Entry
		diagnostics string
		assets      string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT kind, code, source_map, diagnostics, assets FROM transform_cache WHERE key = ?`,
		key,
	).Scan(&e.Kind, &e.Code, &e.Map, &diagnostics, &assets)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if err := json.Unmarshal([]byte(diagnostics), &e.Diagnostics); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached diagnostics: %w", err)
	}
	if err := json.Unmarshal([]byte(assets), &e.Assets); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached assets: %w", err)
	}
	return &e, true, nil
}

// Put stores a successful transform result.
func (s *Store) Put(ctx context.Context, key, path string, e *Entry) error {
	if core.HasErrors(e.Diagnostics) {
		return fmt.Errorf("refusing to cache failed result for %s", path)
	}

	diagnostics, err := json.Marshal(nonNil(e.Diagnostics))
	if err != nil {
		return fmt.Errorf("failed to encode diagnostics: %w", err)
	}
	assets, err := json.Marshal(nonNil(e.Assets))
	if err != nil {
		return fmt.Errorf("failed to encode assets: %w", err)
	}

	code := e.Code
	if code == nil {
		code = []byte{}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transform_cache (key, path, kind, code, source_map, diagnostics, assets, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   kind = excluded.kind, code = excluded.code, source_map = excluded.source_map,
		   diagnostics = excluded.diagnostics, assets = excluded.assets, created_at = excluded.created_at`,
		key, path, e.Kind, code, e.Map, string(diagnostics), string(assets), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Stats reports the number of entries and the total size of cached code.
func (s *Store) Stats(ctx context.Context) (entries int, size int64, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(code)), 0) FROM transform_cache`,
	).Scan(&entries, &size)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read cache stats: %w", err)
	}
	return entries, size, nil
}

// Clear removes every cached transform result and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transform_cache`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}
	s.logger.Info("cache cleared", "entries", n)
	return n, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
