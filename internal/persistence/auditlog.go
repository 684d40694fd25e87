package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sylas-dev/sylas/internal/trackersvc"
)

// AuditRow is one relayed activity, durably recorded (SPEC_FULL.md §4:
// "useful for postmortems when a session ends with an error note").
type AuditRow struct {
	ID                string    `db:"id"`
	ExternalSessionID string    `db:"external_session_id"`
	Kind              string    `db:"kind"`
	Body              string    `db:"body"`
	CreatedAt         time.Time `db:"created_at"`
}

// AuditLog is an append-only sqlite record of every activity
// internal/relay posts to a tracker. It is ambient observability
// tooling, not part of the session snapshot's correctness contract.
type AuditLog struct {
	db *sqlx.DB
}

// NewAuditLog opens (creating if necessary) the sqlite-backed audit log
// at dbPath.
func NewAuditLog(dbPath string) (*AuditLog, error) {
	db, err := openSQLite(dbPath)
	if err != nil {
		return nil, err
	}
	log := &AuditLog{db: db}
	if err := log.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing audit log schema: %w", err)
	}
	return log, nil
}

func (l *AuditLog) initSchema() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS activities (
			id TEXT PRIMARY KEY,
			external_session_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			body TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_activities_session ON activities(external_session_id);
	`)
	return err
}

// Record appends one activity row.
func (l *AuditLog) Record(ctx context.Context, externalSessionID string, kind trackersvc.ActivityKind, body string) error {
	_, err := l.db.ExecContext(ctx, l.db.Rebind(`
		INSERT INTO activities (id, external_session_id, kind, body, created_at)
		VALUES (?, ?, ?, ?, ?)
	`), uuid.NewString(), externalSessionID, string(kind), body, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("recording audit row: %w", err)
	}
	return nil
}

// ForSession returns every recorded activity for externalSessionID in
// chronological order, used for the postmortem read path.
func (l *AuditLog) ForSession(ctx context.Context, externalSessionID string) ([]AuditRow, error) {
	var rows []AuditRow
	err := l.db.SelectContext(ctx, &rows, l.db.Rebind(`
		SELECT id, external_session_id, kind, body, created_at
		FROM activities
		WHERE external_session_id = ?
		ORDER BY created_at ASC
	`), externalSessionID)
	if err != nil {
		return nil, fmt.Errorf("querying audit rows: %w", err)
	}
	return rows, nil
}

// Close releases the underlying database handle.
func (l *AuditLog) Close() error {
	return l.db.Close()
}
