package models

import "usiverify/pkg/domain"

// Kind tags a verification outcome.
type Kind string

const (
	KindValid            Kind = "valid"
	KindInvalidFormat    Kind = "invalid_format"
	KindInvalidChecksum  Kind = "invalid_checksum"
	KindTokenInvalid     Kind = "token_invalid"
	KindQuotaExceeded    Kind = "quota_exceeded"
	KindDeactivated      Kind = "deactivated"
	KindNameMismatch     Kind = "name_mismatch"
	KindDobMismatch      Kind = "dob_mismatch"
	KindTransportFailure Kind = "transport_failure"

	// Kinds produced by the orchestrating service rather than the remote call.
	KindDobRequired            Kind = "dob_required"
	KindAlreadyInUse           Kind = "already_in_use"
	KindExemptionReasonMissing Kind = "exemption_reason_missing"
)

// Field values carried by KindInvalidFormat.
const (
	FieldBlank      = "blank"
	FieldLength     = "length"
	FieldCharacters = "characters"
	FieldRemote     = "remote"
)

// Outcome is the tagged result of validating or verifying a USI.
// Only Kind decides success; the other fields carry detail for messaging and diagnostics.
type Outcome struct {
	Kind Kind

	// Field names the mismatched remote element for KindNameMismatch, or the
	// failed local check for KindInvalidFormat.
	Field string

	// Detail is operator-facing context: remote USIStatus, parse errors, transport errors.
	Detail string

	// StatusCode and Body are the raw remote response for KindTransportFailure.
	StatusCode int
	Body       string

	// Category classifies a transport failure (timeout, bad_data, authentication, ...).
	Category string

	// Verified is true only when the remote service confirmed the USI and identity.
	Verified bool

	// Exemption is set when the student declared an exemption instead of a USI.
	Exemption domain.ExemptionReason
}

// OK reports whether the outcome allows the USI to be saved.
func (o Outcome) OK() bool {
	return o.Kind == KindValid
}

// Definitive reports whether the outcome reflects the remote service's answer
// about this USI and identity, as opposed to a transient service condition.
func (o Outcome) Definitive() bool {
	switch o.Kind {
	case KindValid, KindDeactivated, KindNameMismatch, KindDobMismatch:
		return true
	case KindInvalidFormat:
		return o.Field == FieldRemote
	default:
		return false
	}
}

func Valid(verified bool) Outcome {
	return Outcome{Kind: KindValid, Verified: verified}
}

func Exempt(reason domain.ExemptionReason) Outcome {
	return Outcome{Kind: KindValid, Exemption: reason}
}

func InvalidFormat(field string) Outcome {
	return Outcome{Kind: KindInvalidFormat, Field: field}
}

// RemoteInvalid is a USI the remote service reported with a status other than Valid or Deactivated.
func RemoteInvalid(status string) Outcome {
	return Outcome{Kind: KindInvalidFormat, Field: FieldRemote, Detail: status}
}

func InvalidChecksum() Outcome {
	return Outcome{Kind: KindInvalidChecksum}
}

func TokenInvalid() Outcome {
	return Outcome{Kind: KindTokenInvalid}
}

func QuotaExceeded() Outcome {
	return Outcome{Kind: KindQuotaExceeded}
}

func Deactivated() Outcome {
	return Outcome{Kind: KindDeactivated}
}

func NameMismatch(field string) Outcome {
	return Outcome{Kind: KindNameMismatch, Field: field}
}

func DobMismatch() Outcome {
	return Outcome{Kind: KindDobMismatch}
}

func DobRequired() Outcome {
	return Outcome{Kind: KindDobRequired}
}

func AlreadyInUse() Outcome {
	return Outcome{Kind: KindAlreadyInUse}
}

func ExemptionReasonMissing() Outcome {
	return Outcome{Kind: KindExemptionReasonMissing}
}

// TransportFailure records a remote call that produced no usable answer.
func TransportFailure(category string, statusCode int, body, detail string) Outcome {
	return Outcome{
		Kind:       KindTransportFailure,
		Category:   category,
		StatusCode: statusCode,
		Body:       body,
		Detail:     detail,
	}
}
