package domain

import (
	"github.com/google/uuid"

	dErrors "usiverify/pkg/domain-errors"
)

// UserID identifies the profile owner of a USI.
type UserID uuid.UUID

// ParseUserID parses a non-nil UUID.
func ParseUserID(s string) (UserID, error) {
	if s == "" {
		return UserID{}, dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid user id format")
	}
	if u == uuid.Nil {
		return UserID{}, dErrors.New(dErrors.CodeInvalidInput, "user id cannot be nil")
	}
	return UserID(u), nil
}

func (id UserID) String() string {
	return uuid.UUID(id).String()
}

func (id UserID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}
