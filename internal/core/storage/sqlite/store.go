// Package sqlite provides a SQLite-backed save store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zeusync/homestead/internal/core/observability/log"
	"github.com/zeusync/homestead/internal/core/storage"
	"github.com/zeusync/homestead/internal/core/world"
)

const schema = `
CREATE TABLE IF NOT EXISTS saves (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tick INTEGER NOT NULL,
    checksum TEXT NOT NULL,
    snapshot BLOB NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS saves_created_at ON saves (created_at);
`

// Store persists world saves in SQLite.
type Store struct {
	sqlDB  *sql.DB
	keep   int
	logger log.Log
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite save store and creates its schema. The path
// ":memory:" opens a private in-memory database.
func Open(config storage.Config, logger log.Log) (*Store, error) {
	path := strings.TrimSpace(config.Path)
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := ":memory:"
	if path != dsn {
		dsn = "file:" + filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes
	// writers.
	sqlDB.SetMaxOpenConns(1)
	if err = sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err = sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{
		sqlDB:  sqlDB,
		keep:   config.Keep,
		logger: logger.With(log.String("component", "storage"), log.String("path", path)),
	}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Save stores a snapshot and prunes saves beyond the retention limit.
func (s *Store) Save(ctx context.Context, snap *world.Snapshot) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	blob, checksum, err := storage.Seal(snap)
	if err != nil {
		return 0, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO saves (tick, checksum, snapshot, created_at) VALUES (?, ?, ?, ?)`,
		int64(snap.Tick), checksum, blob, toMillis(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("insert save: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert save: %w", err)
	}
	if s.keep > 0 {
		if _, err = tx.ExecContext(ctx,
			`DELETE FROM saves WHERE id NOT IN (SELECT id FROM saves ORDER BY id DESC LIMIT ?)`,
			s.keep,
		); err != nil {
			return 0, fmt.Errorf("prune saves: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit save: %w", err)
	}
	s.logger.Debug("Save written", log.Int64("save", id), log.Int("bytes", len(blob)))
	return id, nil
}

func (s *Store) Load(ctx context.Context, id int64) (*world.Snapshot, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT checksum, snapshot FROM saves WHERE id = ?`, id)
	return s.scan(row, fmt.Sprintf("save %d", id))
}

func (s *Store) Latest(ctx context.Context) (*world.Snapshot, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT checksum, snapshot FROM saves ORDER BY id DESC LIMIT 1`)
	return s.scan(row, "latest save")
}

func (s *Store) scan(row *sql.Row, what string) (*world.Snapshot, error) {
	var (
		checksum string
		blob     []byte
	)
	if err := row.Scan(&checksum, &blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, what)
		}
		return nil, fmt.Errorf("read %s: %w", what, err)
	}
	snap, err := storage.Unseal(blob, checksum)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return snap, nil
}

// List returns the newest saves first.
func (s *Store) List(ctx context.Context, limit int) ([]storage.Info, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, tick, checksum, length(snapshot), created_at FROM saves ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list saves: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []storage.Info
	for rows.Next() {
		var (
			info    storage.Info
			tick    int64
			created int64
		)
		if err = rows.Scan(&info.ID, &tick, &info.Checksum, &info.Size, &created); err != nil {
			return nil, fmt.Errorf("scan save: %w", err)
		}
		info.Tick = uint64(tick)
		info.CreatedAt = fromMillis(created)
		out = append(out, info)
	}
	return out, rows.Err()
}
