package domain

import (
	"strings"

	dErrors "usiverify/pkg/domain-errors"
)

// ExemptionReason records why a student has no USI.
// Invariant: the value must be one of the supported reasons.
type ExemptionReason string

const (
	ExemptionCourse        ExemptionReason = "course"
	ExemptionDefence       ExemptionReason = "defence"
	ExemptionInternational ExemptionReason = "international"
	ExemptionIndividual    ExemptionReason = "individual"
)

// ExemptPrefix marks a stored USI value as an exemption rather than a code.
const ExemptPrefix = "exempt_"

// Reporting values that stand in for a USI on exempt records.
const (
	ExemptValueBlank         = ""
	ExemptValueIndividual    = "INDIV"
	ExemptValueInternational = "INTOFF"
)

var validExemptionReasons = map[ExemptionReason]bool{
	ExemptionCourse:        true,
	ExemptionDefence:       true,
	ExemptionInternational: true,
	ExemptionIndividual:    true,
}

// ParseExemptionReason constructs an ExemptionReason from external input.
//
// Errors: CodeValidation when empty, CodeInvalidInput when unsupported.
func ParseExemptionReason(s string) (ExemptionReason, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "exemption reason is required")
	}
	r := ExemptionReason(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported exemption reason: "+s)
	}
	return r, nil
}

func (r ExemptionReason) IsValid() bool {
	return validExemptionReasons[r]
}

func (r ExemptionReason) String() string {
	return string(r)
}

// StoredValue is the persisted form of an exemption.
func (r ExemptionReason) StoredValue() string {
	return ExemptPrefix + string(r)
}

// ExemptionReasons lists the supported reasons in display order.
func ExemptionReasons() []ExemptionReason {
	return []ExemptionReason{
		ExemptionInternational,
		ExemptionIndividual,
		ExemptionCourse,
		ExemptionDefence,
	}
}

// StoredValue returns what is persisted for a profile: the exemption form when
// exempt, otherwise the USI upper-cased.
func StoredValue(usi string, reason ExemptionReason, exempt bool) string {
	if exempt {
		return reason.StoredValue()
	}
	return strings.ToUpper(usi)
}

// IsExemptValue reports whether a stored value records an exemption.
func IsExemptValue(stored string) bool {
	return strings.HasPrefix(stored, ExemptPrefix)
}

// DisplayValue translates a stored value into what is shown and reported.
// Exemptions map to their reporting codes and real USIs are returned as-is.
func DisplayValue(stored string) string {
	if !IsExemptValue(stored) {
		return stored
	}
	switch ExemptionReason(strings.TrimPrefix(stored, ExemptPrefix)) {
	case ExemptionDefence, ExemptionIndividual:
		return ExemptValueIndividual
	case ExemptionInternational:
		return ExemptValueInternational
	default:
		return ExemptValueBlank
	}
}
