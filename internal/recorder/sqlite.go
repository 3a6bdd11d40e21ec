package recorder

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists run history to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, now: time.Now}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("component", "recorder").Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fetch_events (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			asset     TEXT NOT NULL,
			metrics   TEXT NOT NULL,
			source    TEXT,
			outcome   TEXT NOT NULL,
			reason    TEXT,
			attempts  INTEGER,
			row_count INTEGER,
			artifact  TEXT,
			error     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fetch_asset_ts ON fetch_events(asset, timestamp)`,

		`CREATE TABLE IF NOT EXISTS merge_runs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			asset       TEXT NOT NULL,
			price_file  TEXT,
			output_file TEXT,
			tables      INTEGER,
			failed      INTEGER,
			price_rows  INTEGER,
			row_count   INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_merge_asset_ts ON merge_runs(asset, timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordFetch(evt *FetchEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO fetch_events
		(timestamp, asset, metrics, source, outcome, reason, attempts, row_count, artifact, error)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		r.now().Unix(), evt.Asset, strings.Join(evt.Metrics, ","), evt.Source,
		evt.Outcome, evt.Reason, evt.Attempts, evt.Rows, evt.Artifact, evt.Error,
	)
	return err
}

func (r *SQLiteRecorder) RecordMerge(evt *MergeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO merge_runs
		(timestamp, asset, price_file, output_file, tables, failed, price_rows, row_count)
		VALUES (?,?,?,?,?,?,?,?)`,
		r.now().Unix(), evt.Asset, evt.PriceFile, evt.OutputFile,
		evt.Tables, evt.Failed, evt.PriceRows, evt.Rows,
	)
	return err
}

// FetchOutcomes returns the number of recorded fetches per outcome for asset.
func (r *SQLiteRecorder) FetchOutcomes(asset string) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT outcome, COUNT(*) FROM fetch_events WHERE asset = ? GROUP BY outcome`, asset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		out[outcome] = n
	}
	return out, rows.Err()
}

// LastMerge returns the most recent merge recorded for asset, or nil.
func (r *SQLiteRecorder) LastMerge(asset string) (*MergeEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	evt := &MergeEvent{Asset: asset}
	err := r.db.QueryRow(`SELECT price_file, output_file, tables, failed, price_rows, row_count
		FROM merge_runs WHERE asset = ? ORDER BY id DESC LIMIT 1`, asset).
		Scan(&evt.PriceFile, &evt.OutputFile, &evt.Tables, &evt.Failed, &evt.PriceRows, &evt.Rows)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return evt, nil
}

func (r *SQLiteRecorder) Close() error {
	log.Info().Str("component", "recorder").Msg("closing sqlite recorder")
	return r.db.Close()
}
