package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"usiverify/pkg/domain"
	"usiverify/pkg/platform/sentinel"
	"usiverify/pkg/requestcontext"
)

// Schema creates the USI table. The partial unique index enforces one owner
// per USI while letting any number of users share an exemption or a blank.
const Schema = `
CREATE TABLE IF NOT EXISTS user_usi (
	user_id    UUID PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
DROP INDEX IF EXISTS user_usi_value_unique;
CREATE UNIQUE INDEX IF NOT EXISTS user_usi_value_owner
	ON user_usi (value)
	WHERE value <> '' AND value NOT LIKE 'exempt\_%';
`

const uniqueViolation = "23505"

// PostgresStore persists USI records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies Schema. It is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate usi store: %w", err)
	}
	return nil
}

func (s *PostgresStore) ExistsForOtherUser(ctx context.Context, usi string, userID domain.UserID) (bool, error) {
	key, ok := uniqueKey(usi)
	if !ok {
		return false, nil
	}
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_usi WHERE value = $1 AND user_id <> $2)`,
		key, uuid.UUID(userID),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check usi uniqueness: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Save(ctx context.Context, userID domain.UserID, value string) error {
	if key, ok := uniqueKey(value); ok {
		value = key
	}
	query := `
		INSERT INTO user_usi (user_id, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, uuid.UUID(userID), value, requestcontext.Now(ctx))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save usi: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, userID domain.UserID) (*Record, error) {
	var (
		id  uuid.UUID
		rec Record
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, value, updated_at FROM user_usi WHERE user_id = $1`,
		uuid.UUID(userID),
	).Scan(&id, &rec.Value, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find usi: %w", err)
	}
	rec.UserID = domain.UserID(id)
	return &rec, nil
}

// Delete removes the user's record. Missing records are not an error.
func (s *PostgresStore) Delete(ctx context.Context, userID domain.UserID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_usi WHERE user_id = $1`, uuid.UUID(userID)); err != nil {
		return fmt.Errorf("delete usi: %w", err)
	}
	return nil
}
