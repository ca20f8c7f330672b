// Package store persists script context snapshots in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chazu/unitscript/unitscript"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

// ErrNotFound indicates the requested snapshot doesn't exist.
var ErrNotFound = errors.New("snapshot not found")

// Record is one saved snapshot of one unit.
type Record struct {
	Unit  uuid.UUID
	Name  string // unit name, for listings
	Tick  int
	Saved time.Time
	Data  []byte // CBOR, see unitscript.MarshalSnapshot
}

// Snapshot decodes the record's payload.
func (r Record) Snapshot() (*unitscript.Snapshot, error) {
	return unitscript.UnmarshalSnapshot(r.Data)
}

// Store handles SQLite storage for snapshots.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	log commonlog.Logger
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		unit  TEXT NOT NULL,
		name  TEXT NOT NULL,
		tick  INTEGER NOT NULL,
		saved INTEGER NOT NULL,
		data  BLOB NOT NULL,
		PRIMARY KEY (unit, tick)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db, log: commonlog.GetLogger("unitscript.store")}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save writes r, replacing any snapshot of the same unit and tick. A zero
// Saved time is set to now.
func (s *Store) Save(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Saved.IsZero() {
		r.Saved = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO snapshots (unit, name, tick, saved, data) VALUES (?, ?, ?, ?, ?)",
		r.Unit.String(), r.Name, r.Tick, r.Saved.UnixNano(), r.Data,
	)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	s.log.Debugf("saved snapshot %s@%d (%d bytes)", r.Unit, r.Tick, len(r.Data))
	return nil
}

// SaveSnapshot encodes snap and saves it.
func (s *Store) SaveSnapshot(ctx context.Context, unit uuid.UUID, name string, tick int, snap *unitscript.Snapshot) error {
	data, err := unitscript.MarshalSnapshot(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return s.Save(ctx, Record{Unit: unit, Name: name, Tick: tick, Data: data})
}

// Load retrieves the snapshot of unit at tick.
func (s *Store) Load(ctx context.Context, unit uuid.UUID, tick int) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT unit, name, tick, saved, data FROM snapshots WHERE unit = ? AND tick = ?",
		unit.String(), tick)
	return scanRecord(row)
}

// Latest retrieves the snapshot of unit with the highest tick.
func (s *Store) Latest(ctx context.Context, unit uuid.UUID) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT unit, name, tick, saved, data FROM snapshots WHERE unit = ? ORDER BY tick DESC LIMIT 1",
		unit.String())
	return scanRecord(row)
}

// List returns every snapshot of unit in tick order, without payloads.
func (s *Store) List(ctx context.Context, unit uuid.UUID) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT unit, name, tick, saved, X'' FROM snapshots WHERE unit = ? ORDER BY tick",
		unit.String())
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		r.Data = nil
		out = append(out, r)
	}
	return out, rows.Err()
}

// Units returns the ids of every unit with at least one snapshot.
func (s *Store) Units(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT unit FROM snapshots ORDER BY unit")
	if err != nil {
		return nil, fmt.Errorf("listing units: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scanning unit: %w", err)
		}
		id, err := uuid.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parsing unit id %q: %w", text, err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Delete removes every snapshot of unit.
func (s *Store) Delete(ctx context.Context, unit uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE unit = ?", unit.String()); err != nil {
		return fmt.Errorf("deleting snapshots: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		r     Record
		unit  string
		saved int64
	)
	if err := row.Scan(&unit, &r.Name, &r.Tick, &saved, &r.Data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("querying snapshot: %w", err)
	}
	id, err := uuid.Parse(unit)
	if err != nil {
		return Record{}, fmt.Errorf("parsing unit id %q: %w", unit, err)
	}
	r.Unit = id
	r.Saved = time.Unix(0, saved)
	return r, nil
}
