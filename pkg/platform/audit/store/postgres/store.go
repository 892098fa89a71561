package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"

	id "usiverify/pkg/domain"
	audit "usiverify/pkg/platform/audit"
)

// Schema creates the audit table.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id              TEXT PRIMARY KEY,
	category        TEXT NOT NULL,
	occurred_at     TIMESTAMPTZ NOT NULL,
	user_id         UUID,
	subject         TEXT NOT NULL DEFAULT '',
	action          TEXT NOT NULL,
	decision        TEXT NOT NULL DEFAULT '',
	reason          TEXT NOT NULL DEFAULT '',
	request_id      TEXT NOT NULL DEFAULT '',
	subject_id_hash TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS audit_events_user_idx ON audit_events (user_id, occurred_at);
`

// Store implements audit.Store on PostgreSQL. Event IDs are ULIDs so rows
// written in the same instant still list in insertion order.
type Store struct {
	db *sqlx.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

type eventRow struct {
	Category      string    `db:"category"`
	OccurredAt    time.Time `db:"occurred_at"`
	Subject       string    `db:"subject"`
	Action        string    `db:"action"`
	Decision      string    `db:"decision"`
	Reason        string    `db:"reason"`
	RequestID     string    `db:"request_id"`
	SubjectIDHash string    `db:"subject_id_hash"`
}

// Migrate applies Schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate audit store: %w", err)
	}
	return nil
}

// Append inserts an audit event. Category is always derived from the action.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	var userID uuid.NullUUID
	if !event.UserID.IsNil() {
		userID = uuid.NullUUID{UUID: uuid.UUID(event.UserID), Valid: true}
	}

	query := `
		INSERT INTO audit_events (
			id, category, occurred_at, user_id, subject, action,
			decision, reason, request_id, subject_id_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		ulid.Make().String(),
		string(audit.AuditEvent(event.Action).Category()),
		event.Timestamp,
		userID,
		event.Subject,
		event.Action,
		event.Decision,
		event.Reason,
		event.RequestID,
		event.SubjectIDHash,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByUser returns the user's events, oldest first.
func (s *Store) ListByUser(ctx context.Context, userID id.UserID) ([]audit.Event, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT category, occurred_at, subject, action, decision, reason, request_id, subject_id_hash
		FROM audit_events
		WHERE user_id = $1
		ORDER BY occurred_at ASC, id ASC
	`, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}

	events := make([]audit.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, audit.Event{
			Category:      audit.EventCategory(r.Category),
			Timestamp:     r.OccurredAt,
			UserID:        userID,
			Subject:       r.Subject,
			Action:        r.Action,
			Decision:      r.Decision,
			Reason:        r.Reason,
			RequestID:     r.RequestID,
			SubjectIDHash: r.SubjectIDHash,
		})
	}
	return events, nil
}
