package db

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/maxpert/publist/publishlist"

	_ "github.com/mattn/go-sqlite3"
)

const (
	publishListTable = "publish_list"

	// Rows per multi-row INSERT; 3 bind parameters each
	sqliteInsertChunk = 200

	defaultListCacheSize = 1024
)

var publishListSchema = []string{
	`CREATE TABLE IF NOT EXISTS publish_list (
		user_id     TEXT    NOT NULL,
		resource_id TEXT    NOT NULL,
		ts          INTEGER NOT NULL,
		PRIMARY KEY (user_id, resource_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_publish_list_resource ON publish_list (resource_id)`,
}

// SQLiteStoreOptions tunes the SQLite store
type SQLiteStoreOptions struct {
	BusyTimeoutMS int
	CacheSize     int // Cached ListByUser results, 0 = default
}

// SQLiteStore implements Store on a SQLite file.
// Writes go through a single connection; reads use a small pool.
type SQLiteStore struct {
	writeDB *sql.DB
	readDB  *sql.DB
	dialect goqu.DialectWrapper
	path    string

	// ListByUser cache. gen is bumped on every committed write so a reader
	// that raced with a write does not cache what it read.
	cache   *lru.Cache[string, []publishlist.Entry]
	cacheMu sync.Mutex
	gen     uint64
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the publish-list database at path
func NewSQLiteStore(path string, opts SQLiteStoreOptions) (*SQLiteStore, error) {
	isMemoryDB := strings.Contains(path, ":memory:")

	writeDB, err := sql.Open("sqlite3", sqliteDSN(path, opts.BusyTimeoutMS, true, isMemoryDB))
	if err != nil {
		return nil, fmt.Errorf("failed to open publish list write database: %w", err)
	}
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)
	writeDB.SetConnMaxLifetime(0)

	readDB := writeDB
	if !isMemoryDB {
		readDB, err = sql.Open("sqlite3", sqliteDSN(path, opts.BusyTimeoutMS, false, false))
		if err != nil {
			writeDB.Close()
			return nil, fmt.Errorf("failed to open publish list read database: %w", err)
		}
		readDB.SetMaxOpenConns(4)
		readDB.SetMaxIdleConns(4)
		readDB.SetConnMaxLifetime(0)
	}

	for _, stmt := range publishListSchema {
		if _, err := writeDB.Exec(stmt); err != nil {
			closeBoth(writeDB, readDB)
			return nil, fmt.Errorf("failed to create publish list schema: %w", err)
		}
	}

	cacheSize := opts.CacheSize
	if cacheSize <= 0 {
		cacheSize = defaultListCacheSize
	}
	cache, err := lru.New[string, []publishlist.Entry](cacheSize)
	if err != nil {
		closeBoth(writeDB, readDB)
		return nil, fmt.Errorf("failed to create list cache: %w", err)
	}

	return &SQLiteStore{
		writeDB: writeDB,
		readDB:  readDB,
		dialect: goqu.Dialect("sqlite3"),
		path:    path,
		cache:   cache,
	}, nil
}

func sqliteDSN(path string, busyTimeoutMS int, write, isMemoryDB bool) string {
	if isMemoryDB {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := fmt.Sprintf("%s%s_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=%d", path, sep, busyTimeoutMS)
	if write {
		dsn += "&_txlock=immediate"
	}
	return dsn
}

func closeBoth(writeDB, readDB *sql.DB) {
	if readDB != writeDB {
		readDB.Close()
	}
	writeDB.Close()
}

// DeleteEntries removes rows in one transaction
func (s *SQLiteStore) DeleteEntries(ctx context.Context, entries []publishlist.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range entries {
		where := goqu.Ex{"resource_id": e.ResourceID}
		if !e.AllUsers() {
			where["user_id"] = e.UserID
		}
		query, args, err := s.dialect.Delete(publishListTable).Where(where).Prepared(true).ToSQL()
		if err != nil {
			return fmt.Errorf("failed to build delete: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.invalidate(entries)
	return nil
}

// WriteEntries upserts rows in one transaction
func (s *SQLiteStore) WriteEntries(ctx context.Context, entries []publishlist.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for chunk := range slices.Chunk(entries, sqliteInsertChunk) {
		rows := make([]interface{}, 0, len(chunk))
		for _, e := range chunk {
			rows = append(rows, goqu.Record{
				"user_id":     e.UserID,
				"resource_id": e.ResourceID,
				"ts":          e.Timestamp,
			})
		}

		query, args, err := s.dialect.Insert(publishListTable).
			Rows(rows...).
			OnConflict(goqu.DoUpdate("user_id, resource_id", goqu.Record{"ts": goqu.L("excluded.ts")})).
			Prepared(true).
			ToSQL()
		if err != nil {
			return fmt.Errorf("failed to build upsert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.invalidate(entries)
	return nil
}

// ListByUser returns the user's publish list, served from cache when possible
func (s *SQLiteStore) ListByUser(ctx context.Context, userID string) ([]publishlist.Entry, error) {
	s.cacheMu.Lock()
	cached, ok := s.cache.Get(userID)
	gen := s.gen
	s.cacheMu.Unlock()
	if ok {
		return slices.Clone(cached), nil
	}

	entries, err := s.query(ctx, goqu.Ex{"user_id": userID}, "resource_id")
	if err != nil {
		return nil, err
	}

	s.cacheMu.Lock()
	if s.gen == gen {
		s.cache.Add(userID, slices.Clone(entries))
	}
	s.cacheMu.Unlock()

	return entries, nil
}

// ListByResource returns every row of a resource
func (s *SQLiteStore) ListByResource(ctx context.Context, resourceID string) ([]publishlist.Entry, error) {
	return s.query(ctx, goqu.Ex{"resource_id": resourceID}, "user_id")
}

func (s *SQLiteStore) query(ctx context.Context, where goqu.Ex, orderBy string) ([]publishlist.Entry, error) {
	query, args, err := s.dialect.From(publishListTable).
		Select("user_id", "resource_id", "ts").
		Where(where).
		Order(goqu.C(orderBy).Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []publishlist.Entry{}
	for rows.Next() {
		var e publishlist.Entry
		if err := rows.Scan(&e.UserID, &e.ResourceID, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// invalidate drops cached listings touched by entries
func (s *SQLiteStore) invalidate(entries []publishlist.Entry) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.gen++
	for _, e := range entries {
		if e.AllUsers() {
			s.cache.Purge()
			return
		}
		s.cache.Remove(e.UserID)
	}
}

// Close closes both database handles
func (s *SQLiteStore) Close() error {
	var readErr error
	if s.readDB != nil && s.readDB != s.writeDB {
		readErr = s.readDB.Close()
	}
	if err := s.writeDB.Close(); err != nil {
		return err
	}
	return readErr
}
