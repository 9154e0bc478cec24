package valuestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hupe1980/vectier/cache"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS vectors (
	iid   INTEGER PRIMARY KEY,
	value BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS keys (
	iid INTEGER PRIMARY KEY,
	key TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS index_tree (
	id   INTEGER PRIMARY KEY CHECK (id = 0),
	data BLOB NOT NULL
);
`

// SQLiteStore keeps vectors, external keys and the saved graph in a SQLite
// database. It implements Store, KeyStore and IndexStore.
type SQLiteStore struct {
	db    *sql.DB
	codec Codec
}

// OpenSQLite opens or creates the database at path. Use ":memory:" for a
// private in-memory database.
func OpenSQLite(ctx context.Context, path string, codec Codec) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, unavailable("open", err)
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, unavailable("pragma", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, unavailable("schema", err)
	}
	return &SQLiteStore{db: db, codec: codec}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id cache.ID) ([]float32, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM vectors WHERE iid = ?", int64(id)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	v, err := s.codec.Decode(data)
	if err != nil {
		return nil, unavailable("decode", err)
	}
	return v, nil
}

func (s *SQLiteStore) BulkGet(ctx context.Context, ids []cache.ID) ([]Result, error) {
	return bulkFromGet(ctx, s, ids)
}

func (s *SQLiteStore) Set(ctx context.Context, id cache.ID, v []float32) error {
	data, err := s.codec.Encode(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO vectors (iid, value) VALUES (?, ?) ON CONFLICT(iid) DO UPDATE SET value = excluded.value",
		int64(id), data)
	return unavailable("set", err)
}

// Clear deletes every vector and the saved graph, which references them.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM vectors"); err != nil {
		return unavailable("clear", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM index_tree"); err != nil {
		return unavailable("clear index", err)
	}
	return nil
}

func (s *SQLiteStore) RandomID(ctx context.Context) (cache.ID, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT iid FROM vectors ORDER BY RANDOM() LIMIT 1").Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable("random id", err)
	}
	return cache.ID(id), true, nil
}

// Count returns the number of stored vectors.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vectors").Scan(&n); err != nil {
		return 0, unavailable("count", err)
	}
	return n, nil
}

func (s *SQLiteStore) SetKey(ctx context.Context, id cache.ID, key string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO keys (iid, key) VALUES (?, ?) ON CONFLICT(iid) DO UPDATE SET key = excluded.key",
		int64(id), key)
	return unavailable("set key", err)
}

func (s *SQLiteStore) BulkGetKeys(ctx context.Context, ids []cache.ID) ([]string, error) {
	out := make([]string, len(ids))
	stmt, err := s.db.PrepareContext(ctx, "SELECT key FROM keys WHERE iid = ?")
	if err != nil {
		return nil, unavailable("prepare", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, id := range ids {
		err := stmt.QueryRowContext(ctx, int64(id)).Scan(&out[i])
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, unavailable(fmt.Sprintf("get key %d", id), err)
		}
	}
	return out, nil
}

func (s *SQLiteStore) ClearKeys(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM keys"); err != nil {
		return unavailable("clear keys", err)
	}
	return nil
}

func (s *SQLiteStore) SaveIndex(ctx context.Context, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO index_tree (id, data) VALUES (0, ?) ON CONFLICT(id) DO UPDATE SET data = excluded.data",
		data)
	return unavailable("save index", err)
}

func (s *SQLiteStore) LoadIndex(ctx context.Context) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM index_tree WHERE id = 0").Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("load index", err)
	}
	return data, true, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
