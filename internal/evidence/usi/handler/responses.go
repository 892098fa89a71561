package handler

import (
	"time"

	"usiverify/internal/evidence/usi/messages"
	"usiverify/internal/evidence/usi/models"
	"usiverify/pkg/domain"
	"usiverify/pkg/platform/audit"
)

// OutcomeResponse describes a validation outcome. Raw remote bodies are never returned.
type OutcomeResponse struct {
	Kind      string `json:"kind"`
	OK        bool   `json:"ok"`
	Field     string `json:"field,omitempty"`
	Message   string `json:"message"`
	Verified  bool   `json:"verified"`
	Exemption string `json:"exemption,omitempty"`
	Category  string `json:"category,omitempty"`
}

func FromOutcome(o models.Outcome, p *messages.Printer) *OutcomeResponse {
	return &OutcomeResponse{
		Kind:      string(o.Kind),
		OK:        o.OK(),
		Field:     o.Field,
		Message:   p.Render(o),
		Verified:  o.Verified,
		Exemption: string(o.Exemption),
		Category:  o.Category,
	}
}

type ChecksumResponse struct {
	Checksum string `json:"checksum"`
	USI      string `json:"usi"`
}

type ChecksumValidResponse struct {
	Code  string `json:"code"`
	Valid bool   `json:"valid"`
}

type TokenCheckResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// ExemptionResponse is one entry of GET /usi/exemptions.
type ExemptionResponse struct {
	Reason      string `json:"reason"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

func FromExemptions(p *messages.Printer) []ExemptionResponse {
	reasons := domain.ExemptionReasons()
	out := make([]ExemptionResponse, 0, len(reasons))
	for _, r := range reasons {
		out = append(out, ExemptionResponse{
			Reason:      r.String(),
			Value:       domain.DisplayValue(r.StoredValue()),
			Description: p.Lookup(messages.ExemptionKey(r)),
		})
	}
	return out
}

// StoredUSIResponse is the body of GET /users/{userID}/usi.
type StoredUSIResponse struct {
	UserID          string    `json:"user_id"`
	USI             string    `json:"usi"`
	Exempt          bool      `json:"exempt"`
	ExemptionReason string    `json:"exemption_reason,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func FromStoredUSI(v *models.StoredUSI) *StoredUSIResponse {
	return &StoredUSIResponse{
		UserID:          v.UserID.String(),
		USI:             v.Display,
		Exempt:          v.Exempt,
		ExemptionReason: string(v.Reason),
		UpdatedAt:       v.UpdatedAt,
	}
}

// EventResponse is one audit entry. The USI appears only as its keyed hash.
type EventResponse struct {
	Action    string    `json:"action"`
	Category  string    `json:"category"`
	Decision  string    `json:"decision,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	USIHash   string    `json:"usi_hash,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func FromEvents(events []audit.Event) []EventResponse {
	out := make([]EventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, EventResponse{
			Action:    e.Action,
			Category:  string(e.Category),
			Decision:  e.Decision,
			Reason:    e.Reason,
			Subject:   e.Subject,
			RequestID: e.RequestID,
			USIHash:   e.SubjectIDHash,
			Timestamp: e.Timestamp,
		})
	}
	return out
}
