package production

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/comalice/harel"
	"github.com/comalice/harel/internal/core"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps every saved snapshot as a revision. Revision ids are
// ULIDs, so lexical order is save order.
type SQLiteStore struct {
	db *sql.DB
}

var _ core.History = (*SQLiteStore)(nil)

// OpenSQLite creates or opens the database at path and applies the schema.
// Use ":memory:" for a throwaway store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite has a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save appends a new revision.
func (s *SQLiteStore) Save(ctx context.Context, machineID string, snap harel.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	id := ulid.Make()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (revision, machine_id, chart, version, body, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id.String(), machineID, snap.Chart, snap.Version, string(body), int64(id.Time()))
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Load returns the newest revision.
func (s *SQLiteStore) Load(ctx context.Context, machineID string) (harel.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT body FROM snapshots WHERE machine_id = ? ORDER BY revision DESC LIMIT 1`, machineID)
	return scanSnapshot(row, machineID)
}

func (s *SQLiteStore) Revision(ctx context.Context, machineID, rev string) (harel.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT body FROM snapshots WHERE machine_id = ? AND revision = ?`, machineID, rev)
	return scanSnapshot(row, machineID)
}

func scanSnapshot(row *sql.Row, machineID string) (harel.Snapshot, error) {
	var body string
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return harel.Snapshot{}, fmt.Errorf("machine %q: %w", machineID, core.ErrNotFound)
		}
		return harel.Snapshot{}, fmt.Errorf("query snapshot: %w", err)
	}
	var snap harel.Snapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		return harel.Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}

func (s *SQLiteStore) Revisions(ctx context.Context, machineID string) ([]core.Revision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT revision, created_at FROM snapshots WHERE machine_id = ? ORDER BY revision DESC`, machineID)
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}
	defer rows.Close()

	var revs []core.Revision
	for rows.Next() {
		var (
			rev core.Revision
			ms  int64
		)
		if err := rows.Scan(&rev.ID, &ms); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		rev.Timestamp = time.UnixMilli(ms).UTC()
		revs = append(revs, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(revs) == 0 {
		return nil, fmt.Errorf("machine %q: %w", machineID, core.ErrNotFound)
	}
	return revs, nil
}

func (s *SQLiteStore) Machines(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT machine_id FROM snapshots ORDER BY machine_id`)
	if err != nil {
		return nil, fmt.Errorf("query machines: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan machine id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
