// Package cache stores compiled modules in a SQLite database keyed by the
// content they were compiled from.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/phobologic/cssmodules/internal/model"
)

const schema = `
	CREATE TABLE IF NOT EXISTS modules (
		key TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		created_at TEXT NOT NULL,
		blob BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_modules_path ON modules(path);
`

// Cache is a compile cache. It is safe for concurrent use.
type Cache struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open opens or creates the cache database at path.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize cache schema: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Cache{db: db, enc: enc, dec: dec}, nil
}

// Close releases the database.
func (c *Cache) Close() error {
	c.dec.Close()
	if err := c.enc.Close(); err != nil {
		_ = c.db.Close()
		return err
	}
	return c.db.Close()
}

// Key derives the cache key of one compilation from the options
// fingerprint, the resource path and the source text.
func Key(fingerprint, path, source string) string {
	h := xxhash.New()
	for _, s := range []string{fingerprint, path, source} {
		_, _ = h.WriteString(strconv.Itoa(len(s)))
		_, _ = h.WriteString(":")
		_, _ = h.WriteString(s)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// Get returns the module stored under key. ok is false on a miss.
func (c *Cache) Get(ctx context.Context, key string) (m *model.Module, ok bool, err error) {
	var blob []byte
	err = c.db.QueryRowContext(ctx, `SELECT blob FROM modules WHERE key = ?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry %s: %w", key, err)
	}
	data, err := c.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, false, fmt.Errorf("decompress cache entry %s: %w", key, err)
	}
	m = &model.Module{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return m, true, nil
}

// Put stores m under key, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, key string, m *model.Module) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode module %s: %w", m.Path, err)
	}
	blob := c.enc.EncodeAll(data, nil)
	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO modules (key, path, created_at, blob) VALUES (?, ?, ?, ?)`,
		key, m.Path, time.Now().UTC().Format(time.RFC3339), blob)
	if err != nil {
		return fmt.Errorf("write cache entry %s: %w", key, err)
	}
	return nil
}

// Len returns the number of entries.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM modules`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return n, nil
}

// Prune deletes entries for path whose key is not keep, so each path keeps
// only its latest compilation.
func (c *Cache) Prune(ctx context.Context, path, keep string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM modules WHERE path = ? AND key != ?`, path, keep)
	if err != nil {
		return fmt.Errorf("prune cache entries for %s: %w", path, err)
	}
	return nil
}
