package domain

import (
	"errors"
	"strings"

	dErrors "usiverify/pkg/domain-errors"
)

// USI is a Unique Student Identifier that passed local format and checksum checks.
// Construct it with ParseUSI; direct casting bypasses validation.
type USI string

// Local format failures. ParseUSI wraps them with CodeInvalidInput, so match
// them with errors.Is.
var (
	ErrUSIBlank      = errors.New("usi is blank")
	ErrUSILength     = errors.New("usi must be 10 characters")
	ErrUSICharacters = errors.New("usi contains invalid characters")
	ErrUSIChecksum   = errors.New("usi checksum does not match")
)

// ParseUSI validates a USI exactly as entered.
//
// The character check is case-insensitive but the checksum is not, so a lower
// case code fails with ErrUSIChecksum. Callers that want to accept lower case
// input must upper-case it first.
func ParseUSI(s string) (USI, error) {
	if strings.TrimSpace(s) == "" {
		return "", invalid(ErrUSIBlank)
	}
	if len(s) != CodeLength {
		return "", invalid(ErrUSILength)
	}
	for i := 0; i < len(s); i++ {
		if codePoint(upper(s[i])) < 0 {
			return "", invalid(ErrUSICharacters)
		}
	}
	if !ValidateChecksum(s) {
		return "", invalid(ErrUSIChecksum)
	}
	return USI(s), nil
}

// MustUSI parses s and panics when it is invalid. Intended for tests and constants.
func MustUSI(s string) USI {
	u, err := ParseUSI(s)
	if err != nil {
		panic(err)
	}
	return u
}

// NewUSI appends the check symbol to payload.
func NewUSI(payload string) (USI, error) {
	check, err := GenerateChecksum(payload)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid usi payload")
	}
	return USI(payload + string(check)), nil
}

func (u USI) String() string {
	return string(u)
}

// IsNil reports whether the USI is empty.
func (u USI) IsNil() bool {
	return u == ""
}

// Payload returns the symbols covered by the checksum.
func (u USI) Payload() string {
	if len(u) < PayloadLength {
		return string(u)
	}
	return string(u[:PayloadLength])
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

func invalid(err error) error {
	return dErrors.Wrap(err, dErrors.CodeInvalidInput, err.Error())
}
