package service

import (
	"context"
	"strings"

	"usiverify/pkg/platform/audit"
	"usiverify/pkg/requestcontext"
)

// logAudit logs an audit event and emits it best effort. Publisher failures
// are logged and swallowed.
func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, in Input, decision string, attrs ...any) {
	if err := s.emit(ctx, event, in, decision, attrs...); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", string(event), "error", err)
	}
}

// emit logs the event and returns the publisher's error so callers can fail closed.
func (s *Service) emit(ctx context.Context, event audit.AuditEvent, in Input, decision string, attrs ...any) error {
	requestID := requestcontext.RequestID(ctx)
	hash := s.fingerprint(in.USI)

	args := append(attrs,
		"event", string(event),
		"log_type", "audit",
		"decision", decision,
	)
	if !in.UserID.IsNil() {
		args = append(args, "user_id", in.UserID.String())
	}
	if hash != "" {
		args = append(args, "usi_hash", hash)
	}
	if requestID != "" {
		args = append(args, "request_id", requestID)
	}
	s.logger.InfoContext(ctx, string(event), args...)

	if s.auditPublisher == nil {
		return nil
	}
	return s.auditPublisher.Emit(ctx, audit.Event{
		UserID:        in.UserID,
		Subject:       requestcontext.Subject(ctx),
		Action:        string(event),
		Decision:      decision,
		Reason:        in.ExemptionReason,
		RequestID:     requestID,
		SubjectIDHash: hash,
	})
}

func (s *Service) fingerprint(usi string) string {
	usi = strings.TrimSpace(usi)
	if s.keyer == nil || usi == "" {
		return ""
	}
	return s.keyer.Fingerprint(strings.ToUpper(usi))
}
