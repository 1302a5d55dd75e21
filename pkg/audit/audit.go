// Package audit keeps an append-only history of lock transitions in SQLite.
// Lock files are overwritten in place, so without this log the record of a
// phase passing, drifting, and passing again would be lost. The log is
// write-behind: the lock file stays the source of truth and a logging
// failure never fails a lock operation.
package audit

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"phasegate/pkg/logx"
	"phasegate/pkg/phase"
)

const schemaVersion = 1

// Event is one recorded lock transition.
type Event struct {
	ID        string    `json:"id"`
	Wave      int       `json:"wave"`
	Phase     int       `json:"phase"`
	PhaseName string    `json:"phase_name"`
	Action    string    `json:"action"`
	Reason    string    `json:"reason,omitempty"`
	Checksum  string    `json:"checksum,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Log is the SQLite-backed transition history. Implements lock.AuditSink.
type Log struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (creating if needed) the audit database at path.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_busy_timeout=5000", path,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping audit database: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Log{db: db, logger: logx.NewLogger("audit")}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("failed to close audit database: %w", err)
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_info (
			version INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transitions (
			id TEXT PRIMARY KEY,
			wave INTEGER NOT NULL,
			phase INTEGER NOT NULL,
			phase_name TEXT NOT NULL,
			action TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			checksum TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_wave ON transitions(wave, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize audit schema: %w", err)
		}
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_info`).Scan(&count); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if count == 0 {
		if _, err := db.Exec(`INSERT INTO schema_info (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	}
	return nil
}

// RecordTransition implements lock.AuditSink.
func (l *Log) RecordTransition(wave int, ph phase.Phase, action, reason, sum string) error {
	_, err := l.db.Exec(
		`INSERT INTO transitions (id, wave, phase, phase_name, action, reason, checksum, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), wave, int(ph), ph.String(), action, reason, sum, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	l.logger.DebugDomain("audit", "recorded wave=%d phase=%s action=%s", wave, ph, action)
	return nil
}

// List returns the wave's transitions in insertion order, oldest first.
func (l *Log) List(wave int) ([]Event, error) {
	rows, err := l.db.Query(
		`SELECT id, wave, phase, phase_name, action, reason, checksum, created_at
		 FROM transitions WHERE wave = ? ORDER BY created_at, id`, wave)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Wave, &ev.Phase, &ev.PhaseName, &ev.Action, &ev.Reason, &ev.Checksum, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transitions: %w", err)
	}
	return events, nil
}
