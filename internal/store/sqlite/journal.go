// Package sqlite keeps a catalog of collected dataset files in SQLite so
// exports can be listed without scanning export directories.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"indlink/internal/model"
)

// defaultKeep bounds how many export records are retained.
const defaultKeep = 10000

// Config configures the export journal.
type Config struct {
	DBPath string // path to the SQLite database file, e.g. "data/exports.db"
	Keep   int    // records retained after each insert; 0 means defaultKeep
}

// Journal implements model.ExportJournal.
type Journal struct {
	db   *sql.DB
	keep int
	log  zerolog.Logger
}

var _ model.ExportJournal = (*Journal)(nil)

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// Open opens (or creates) the journal database in WAL mode.
func Open(cfg Config, log zerolog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer: sessions terminate on their own goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	keep := cfg.Keep
	if keep <= 0 {
		keep = defaultKeep
	}
	j := &Journal{db: db, keep: keep, log: log.With().Str("component", "sqlite").Logger()}
	j.log.Info().Str("path", cfg.DBPath).Msg("export journal opened")
	return j, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS exports (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id  TEXT    NOT NULL,
			instrument  TEXT    NOT NULL,
			path        TEXT    NOT NULL,
			rows        INTEGER NOT NULL,
			columns     INTEGER NOT NULL,
			written_at  INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS exports_written_at ON exports (written_at);
	`)
	return err
}

// RecordExport inserts one record and prunes the oldest beyond the limit.
func (j *Journal) RecordExport(rec model.ExportRecord) error {
	if rec.WrittenAt.IsZero() {
		rec.WrittenAt = time.Now().UTC()
	}
	_, err := j.db.Exec(
		`INSERT INTO exports (session_id, instrument, path, rows, columns, written_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Instrument, rec.Path, rec.Rows, rec.Columns, rec.WrittenAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite insert export: %w", err)
	}

	_, err = j.db.Exec(
		`DELETE FROM exports WHERE id NOT IN (SELECT id FROM exports ORDER BY id DESC LIMIT ?)`,
		j.keep,
	)
	if err != nil {
		j.log.Warn().Err(err).Msg("prune exports")
	}
	return nil
}

// RecentExports returns up to limit records, newest first.
func (j *Journal) RecentExports(limit int) ([]model.ExportRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.Query(`
		SELECT session_id, instrument, path, rows, columns, written_at
		FROM exports
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query exports: %w", err)
	}
	defer rows.Close()

	var out []model.ExportRecord
	for rows.Next() {
		var rec model.ExportRecord
		var writtenAt int64
		if err := rows.Scan(&rec.SessionID, &rec.Instrument, &rec.Path, &rec.Rows, &rec.Columns, &writtenAt); err != nil {
			return nil, fmt.Errorf("sqlite scan export: %w", err)
		}
		rec.WrittenAt = time.Unix(0, writtenAt).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
