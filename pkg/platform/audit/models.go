package audit

import (
	"context"
	"time"

	id "usiverify/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance, such as
	// a USI being recorded against a student.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring:
	// rejected API tokens and attempts to claim another student's USI.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity useful for debugging.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// UserID is the student whose USI is affected, when known.
	UserID id.UserID
	// Subject is the authenticated caller (operator or integration).
	Subject   string
	Action    string
	Decision  string
	Reason    string
	RequestID string
	// SubjectIDHash is a keyed hash of the USI under evaluation, for
	// traceability without storing the identifier itself.
	SubjectIDHash string
}

type AuditEvent string

const (
	EventUSIValidated      AuditEvent = "usi_validated"
	EventUSIVerified       AuditEvent = "usi_verified"
	EventUSISaved          AuditEvent = "usi_saved"
	EventUSIConflict       AuditEvent = "usi_conflict"
	EventUSITokenRejected  AuditEvent = "usi_token_rejected"
	EventUSIRemoteDegraded AuditEvent = "usi_remote_degraded"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventUSISaved:    CategoryCompliance,
	EventUSIVerified: CategoryCompliance,

	EventUSIConflict:      CategorySecurity,
	EventUSITokenRejected: CategorySecurity,

	EventUSIValidated:      CategoryOperations,
	EventUSIRemoteDegraded: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
}
