package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/devblac/deposit-listener/internal/record"
	_ "modernc.org/sqlite"
)

// Store wraps SQLite-backed persistence for the dedupe index and scan history.
// Neither table is read back as a resume cursor.
type Store struct {
	db *sql.DB
}

// Open initializes a SQLite database and runs minimal schema setup.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
CREATE TABLE IF NOT EXISTS deposits (
  key           TEXT PRIMARY KEY,
  chain         TEXT NOT NULL,
  tx_hash       TEXT NOT NULL,
  log_index     INTEGER NOT NULL,
  block_number  INTEGER NOT NULL,
  created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS scans (
  id           TEXT PRIMARY KEY,
  chain        TEXT NOT NULL,
  from_block   INTEGER NOT NULL,
  to_block     INTEGER NOT NULL,
  sub_ranges   INTEGER NOT NULL,
  records      INTEGER NOT NULL,
  status       TEXT NOT NULL,
  error        TEXT,
  started_at   TIMESTAMP NOT NULL,
  finished_at  TIMESTAMP NOT NULL
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// FilterNew drops records whose event key is already indexed, and duplicates within the batch.
func (s *Store) FilterNew(ctx context.Context, records []record.Record) ([]record.Record, error) {
	out := make([]record.Record, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		key := r.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		var one int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM deposits WHERE key = ?;`, key).Scan(&one)
		if err == sql.ErrNoRows {
			out = append(out, r)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("check deposit %s: %w", key, err)
		}
	}
	return out, nil
}

// MarkWritten indexes persisted records in a single transaction.
func (s *Store) MarkWritten(ctx context.Context, records []record.Record) error {
	if len(records) == 0 {
		return nil
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.ExecContext(ctx, `
INSERT INTO deposits (key, chain, tx_hash, log_index, block_number)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(key) DO NOTHING;
`, r.Key(), r.Chain, r.TransactionHash, r.LogIndex, r.BlockNumber)
			if err != nil {
				return fmt.Errorf("index deposit %s: %w", r.Key(), err)
			}
		}
		return nil
	})
}

// CountDeposits returns the number of indexed deposits per chain.
func (s *Store) CountDeposits(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chain, COUNT(*) FROM deposits GROUP BY chain;`)
	if err != nil {
		return nil, fmt.Errorf("count deposits: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var chain string
		var n int
		if err := rows.Scan(&chain, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[chain] = n
	}
	return out, rows.Err()
}

// Scan statuses.
const (
	ScanOK     = "ok"
	ScanFailed = "failed"
)

// Scan is one audit entry describing a finished scan invocation.
type Scan struct {
	ID         string
	Chain      string
	FromBlock  uint64
	ToBlock    uint64
	SubRanges  int
	Records    int
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// InsertScan stores a scan entry; the primary key rejects a repeated id.
func (s *Store) InsertScan(ctx context.Context, sc Scan) error {
	if sc.ID == "" || sc.Chain == "" || sc.Status == "" {
		return errors.New("scan id, chain and status are required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO scans (id, chain, from_block, to_block, sub_ranges, records, status, error, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, sc.ID, sc.Chain, sc.FromBlock, sc.ToBlock, sc.SubRanges, sc.Records, sc.Status, nullString(sc.Error),
		sc.StartedAt.UTC(), sc.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

// RecentScans returns up to limit scans, newest first.
func (s *Store) RecentScans(ctx context.Context, limit int) ([]Scan, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, chain, from_block, to_block, sub_ranges, records, status, COALESCE(error, ''), started_at, finished_at
FROM scans ORDER BY started_at DESC LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var out []Scan
	for rows.Next() {
		var sc Scan
		if err := rows.Scan(&sc.ID, &sc.Chain, &sc.FromBlock, &sc.ToBlock, &sc.SubRanges, &sc.Records,
			&sc.Status, &sc.Error, &sc.StartedAt, &sc.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// WithTx executes a callback inside a transaction for callers needing atomicity.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
