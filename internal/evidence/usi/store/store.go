// Package store persists each user's USI (or exemption) and answers the
// uniqueness question the validator asks before a USI is accepted.
package store

import (
	"strings"
	"time"

	"usiverify/pkg/domain"
)

// Record is one user's stored USI value: an upper-case USI or an exempt_<reason> marker.
type Record struct {
	UserID    domain.UserID
	Value     string
	UpdatedAt time.Time
}

// Exempt reports whether the record holds an exemption rather than a USI.
func (r Record) Exempt() bool {
	return domain.IsExemptValue(r.Value)
}

// uniqueKey is the form used for uniqueness. Exemptions are never unique.
func uniqueKey(value string) (string, bool) {
	if value == "" || domain.IsExemptValue(value) {
		return "", false
	}
	return strings.ToUpper(value), true
}
