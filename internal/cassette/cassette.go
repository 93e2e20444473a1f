// Package cassette is the append-only event log of a trace session. A
// cassette is a single SQLite file holding one row per record in emission
// order, plus a small meta table identifying the session.
package cassette

import (
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SchemaVersion is written to every cassette and checked on Open.
const SchemaVersion = 1

var (
	// ErrClosed is returned by Append after Close.
	ErrClosed = errors.New("cassette closed")

	// ErrSchemaVersion is returned when opening a cassette written with a
	// different schema.
	ErrSchemaVersion = errors.New("unsupported cassette schema version")
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS meta (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
  seq             INTEGER PRIMARY KEY AUTOINCREMENT,
  module_path     TEXT NOT NULL,
  module_line     INTEGER NOT NULL,
  event_type      TEXT NOT NULL,
  event_data      BLOB NOT NULL
);
`

// Record is one persisted event.
type Record struct {
	Seq        int64
	ModulePath string
	ModuleLine int
	Type       EventType
	Data       []byte
}

// Event decodes the record's payload.
func (r *Record) Event() (Event, error) {
	return decodeEvent(r.Type, r.Data)
}

// Meta identifies the session that wrote a cassette.
type Meta struct {
	SchemaVersion int
	SessionID     string
	CreatedAt     time.Time
}

// Writer appends records to a new cassette.
type Writer struct {
	db      *sql.DB
	path    string
	session string
	closed  bool
}

// Create starts a new cassette at path, replacing any file already there.
func Create(path string) (*Writer, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("cassette: create %s: %w", path, err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=DELETE&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cassette: create %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cassette: create %s: %w", path, err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("cassette: migrate %s: %w", path, err)
	}

	w := &Writer{db: db, path: path, session: uuid.New().String()}
	meta := map[string]string{
		"schema_version": strconv.Itoa(SchemaVersion),
		"session_id":     w.session,
		"created_at":     time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range meta {
		if _, err := db.Exec("INSERT INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			db.Close()
			return nil, fmt.Errorf("cassette: write meta %s: %w", path, err)
		}
	}
	return w, nil
}

// Path returns the cassette file path.
func (w *Writer) Path() string {
	return w.path
}

// SessionID returns the identifier stored in the cassette's meta table.
func (w *Writer) SessionID() string {
	return w.session
}

// Append writes one record. Records are never rewritten.
func (w *Writer) Append(modulePath string, line int, ev Event) error {
	if w.closed {
		return ErrClosed
	}
	data, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	_, err = w.db.Exec(
		"INSERT INTO events (module_path, module_line, event_type, event_data) VALUES (?, ?, ?, ?)",
		modulePath, line, ev.EventType().String(), data,
	)
	if err != nil {
		return fmt.Errorf("cassette: append %s:%d: %w", modulePath, line, err)
	}
	return nil
}

// Close releases the cassette. Calling Close more than once is a no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.db.Close()
}

// Reader reads records back from a cassette.
type Reader struct {
	db   *sql.DB
	meta Meta
}

// Open opens an existing cassette read-only.
func Open(path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("cassette: open %s: %w", path, err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cassette: open %s: %w", path, err)
	}
	r := &Reader{db: db}
	if err := r.loadMeta(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cassette: open %s: %w", path, err)
	}
	if r.meta.SchemaVersion != SchemaVersion {
		db.Close()
		return nil, fmt.Errorf("cassette: open %s: version %d: %w", path, r.meta.SchemaVersion, ErrSchemaVersion)
	}
	return r, nil
}

func (r *Reader) loadMeta() error {
	rows, err := r.db.Query("SELECT key, value FROM meta")
	if err != nil {
		return fmt.Errorf("read meta: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("scan meta: %w", err)
		}
		switch k {
		case "schema_version":
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("schema version %q: %w", v, err)
			}
			r.meta.SchemaVersion = n
		case "session_id":
			r.meta.SessionID = v
		case "created_at":
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return fmt.Errorf("created_at %q: %w", v, err)
			}
			r.meta.CreatedAt = t
		}
	}
	return rows.Err()
}

// Meta returns the session metadata.
func (r *Reader) Meta() Meta {
	return r.meta
}

// Len returns the number of records.
func (r *Reader) Len() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&n); err != nil {
		return 0, fmt.Errorf("cassette: count: %w", err)
	}
	return n, nil
}

// Records yields every record in write order. Each iteration starts again
// from the first record. Iteration stops after the first error.
func (r *Reader) Records() iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		rows, err := r.db.Query(
			"SELECT seq, module_path, module_line, event_type, event_data FROM events ORDER BY seq",
		)
		if err != nil {
			yield(nil, fmt.Errorf("cassette: query records: %w", err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			rec := &Record{}
			var typ string
			if err := rows.Scan(&rec.Seq, &rec.ModulePath, &rec.ModuleLine, &typ, &rec.Data); err != nil {
				yield(nil, fmt.Errorf("cassette: scan record: %w", err))
				return
			}
			if rec.Type, err = ParseEventType(typ); err != nil {
				yield(nil, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("cassette: read records: %w", err))
		}
	}
}

// Close releases the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
