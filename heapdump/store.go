package heapdump

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrSnapshotNotFound indicates the requested snapshot doesn't exist.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Entry summarizes an archived snapshot.
type Entry struct {
	ID      int64
	Label   string
	Taken   time.Time
	Objects int
	Roots   int
}

// Store archives snapshots in a SQLite database.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// OpenStore opens or creates the archive at dbPath.
func OpenStore(ctx context.Context, dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS snapshots (
		id      INTEGER PRIMARY KEY AUTOINCREMENT,
		label   TEXT NOT NULL,
		taken   INTEGER NOT NULL,
		objects INTEGER NOT NULL,
		roots   INTEGER NOT NULL,
		data    BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (st *Store) Close() error {
	if st.db != nil {
		return st.db.Close()
	}
	return nil
}

// Path returns the database file.
func (st *Store) Path() string {
	return st.dbPath
}

// Save archives s and returns its row id.
func (st *Store) Save(ctx context.Context, s *Snapshot) (int64, error) {
	data, err := Marshal(s)
	if err != nil {
		return 0, fmt.Errorf("encoding snapshot: %w", err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	res, err := st.db.ExecContext(ctx,
		"INSERT INTO snapshots (label, taken, objects, roots, data) VALUES (?, ?, ?, ?, ?)",
		s.Label, s.Taken.Unix(), len(s.Objects), len(s.Roots), data,
	)
	if err != nil {
		return 0, fmt.Errorf("saving snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("saving snapshot: %w", err)
	}
	log.Infof("archived snapshot %d (%q) in %s", id, s.Label, st.dbPath)
	return id, nil
}

// Load retrieves the snapshot with row id.
func (st *Store) Load(ctx context.Context, id int64) (*Snapshot, error) {
	var data []byte
	err := st.db.QueryRowContext(ctx, "SELECT data FROM snapshots WHERE id = ?", id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}
	return Unmarshal(data)
}

// Latest retrieves the most recently saved snapshot.
func (st *Store) Latest(ctx context.Context) (int64, *Snapshot, error) {
	var id int64
	err := st.db.QueryRowContext(ctx, "SELECT id FROM snapshots ORDER BY id DESC LIMIT 1").Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, ErrSnapshotNotFound
		}
		return 0, nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	s, err := st.Load(ctx, id)
	return id, s, err
}

// List returns every archived snapshot, oldest first.
func (st *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := st.db.QueryContext(ctx,
		"SELECT id, label, taken, objects, roots FROM snapshots ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e     Entry
			taken int64
		)
		if err := rows.Scan(&e.ID, &e.Label, &taken, &e.Objects, &e.Roots); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		e.Taken = time.Unix(taken, 0).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	return entries, nil
}

// Delete removes the snapshot with row id.
func (st *Store) Delete(ctx context.Context, id int64) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	res, err := st.db.ExecContext(ctx, "DELETE FROM snapshots WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSnapshotNotFound
	}
	return nil
}
