// Package service validates USIs for a student profile: exemptions, local
// format and checksum checks, remote verification behind a cache and circuit
// breaker, and uniqueness across users.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"usiverify/internal/evidence/usi/cache"
	"usiverify/internal/evidence/usi/metrics"
	"usiverify/internal/evidence/usi/models"
	"usiverify/internal/evidence/usi/providers"
	"usiverify/internal/evidence/usi/store"
	"usiverify/pkg/domain"
	dErrors "usiverify/pkg/domain-errors"
	"usiverify/pkg/platform/audit"
	"usiverify/pkg/platform/circuit"
	"usiverify/pkg/platform/sentinel"
	"usiverify/pkg/requestcontext"
)

const defaultTokenCheckTTL = 10 * time.Minute

// Store persists USIs and answers the uniqueness question.
type Store interface {
	ExistsForOtherUser(ctx context.Context, usi string, userID domain.UserID) (bool, error)
	Save(ctx context.Context, userID domain.UserID, value string) error
	Find(ctx context.Context, userID domain.UserID) (*store.Record, error)
	Delete(ctx context.Context, userID domain.UserID) error
}

// Verifier confirms a USI and identity with the remote service.
type Verifier interface {
	ValidToken(ctx context.Context) (bool, error)
	Verify(ctx context.Context, req models.VerificationRequest) (models.Outcome, error)
}

// VerifierFactory builds a Verifier for an arbitrary server and token.
// CheckToken uses it to test settings before they are applied.
type VerifierFactory func(server, token string) (Verifier, error)

// Cache holds definitive remote outcomes keyed by a hash of the request.
type Cache interface {
	Get(ctx context.Context, key string) (models.Outcome, error)
	Set(ctx context.Context, key string, outcome models.Outcome) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// AuditLog reads back the audit trail of one user.
type AuditLog interface {
	List(ctx context.Context, userID domain.UserID) ([]audit.Event, error)
}

// Input is one submission of the USI profile field.
type Input struct {
	UserID          domain.UserID
	USI             string
	Exempt          bool
	ExemptionReason string
	FirstName       string
	FamilyName      string
	DateOfBirth     *models.Date
}

type Service struct {
	store           Store
	verifier        Verifier
	verifierFactory VerifierFactory
	allowedServers  map[string]bool
	cache           Cache
	breaker         *circuit.Breaker
	keyer           *cache.Keyer
	metrics         *metrics.Metrics
	auditPublisher  AuditPublisher
	auditLog        AuditLog
	logger          *slog.Logger
	now             func() time.Time

	tokenCheckTTL time.Duration
	tokenMu       sync.Mutex
	tokenOKAt     time.Time
}

type Option func(*Service)

// WithVerifier enables remote verification. Without it only local checks run.
func WithVerifier(v Verifier) Option {
	return func(s *Service) {
		s.verifier = v
	}
}

func WithVerifierFactory(f VerifierFactory) Option {
	return func(s *Service) {
		s.verifierFactory = f
	}
}

func WithCache(c Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Service) {
		s.breaker = b
	}
}

func WithKeyer(k *cache.Keyer) Option {
	return func(s *Service) {
		s.keyer = k
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithAuditLog(log AuditLog) Option {
	return func(s *Service) {
		s.auditLog = log
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTokenCheckTTL sets how long an accepted token is trusted before it is
// checked again. Zero checks on every validation.
func WithTokenCheckTTL(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.tokenCheckTTL = d
		}
	}
}

// WithAllowedServers lists the servers CheckToken may contact. Without it
// only the default server (an empty server argument) is accepted.
func WithAllowedServers(servers ...string) Option {
	return func(s *Service) {
		s.allowedServers = make(map[string]bool, len(servers))
		for _, server := range servers {
			s.allowedServers[normalizeServer(server)] = true
		}
	}
}

func normalizeServer(server string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(server), "/"))
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("usi store is required")
	}

	svc := &Service{
		store:         store,
		logger:        slog.Default(),
		now:           time.Now,
		tokenCheckTTL: defaultTokenCheckTTL,
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.cache != nil && svc.keyer == nil {
		return nil, fmt.Errorf("cache keyer is required when a cache is configured")
	}

	return svc, nil
}

// RemoteEnabled reports whether validation calls the remote service.
func (s *Service) RemoteEnabled() bool {
	return s.verifier != nil
}

// Validate runs every check the profile field applies and returns the first
// failing outcome, or a valid one. Errors are reserved for unsupported input
// and infrastructure failures.
func (s *Service) Validate(ctx context.Context, in Input) (models.Outcome, error) {
	outcome, err := s.validate(ctx, in)
	if err != nil {
		return models.Outcome{}, err
	}

	s.metrics.IncrementOutcome(string(outcome.Kind))
	s.logAudit(ctx, audit.EventUSIValidated, in, string(outcome.Kind),
		"outcome", outcome.Kind,
		"verified", outcome.Verified,
	)
	return outcome, nil
}

func (s *Service) validate(ctx context.Context, in Input) (models.Outcome, error) {
	if in.Exempt {
		if strings.TrimSpace(in.ExemptionReason) == "" {
			return models.ExemptionReasonMissing(), nil
		}
		reason, err := domain.ParseExemptionReason(in.ExemptionReason)
		if err != nil {
			return models.Outcome{}, err
		}
		return models.Exempt(reason), nil
	}

	if strings.TrimSpace(in.USI) == "" {
		return models.Valid(false), nil
	}

	usi, err := domain.ParseUSI(in.USI)
	if err != nil {
		return localOutcome(err), nil
	}

	outcome := models.Valid(false)
	if s.verifier != nil {
		outcome, err = s.verifyRemote(ctx, in, usi)
		if err != nil {
			return models.Outcome{}, err
		}
		if !outcome.OK() {
			return outcome, nil
		}
	}

	taken, err := s.store.ExistsForOtherUser(ctx, usi.String(), in.UserID)
	if err != nil {
		return models.Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check usi uniqueness")
	}
	if taken {
		s.logAudit(ctx, audit.EventUSIConflict, in, "denied")
		return models.AlreadyInUse(), nil
	}
	return outcome, nil
}

// localOutcome maps a ParseUSI failure to its outcome.
func localOutcome(err error) models.Outcome {
	switch {
	case errors.Is(err, domain.ErrUSIBlank):
		return models.InvalidFormat(models.FieldBlank)
	case errors.Is(err, domain.ErrUSILength):
		return models.InvalidFormat(models.FieldLength)
	case errors.Is(err, domain.ErrUSIChecksum):
		return models.InvalidChecksum()
	default:
		return models.InvalidFormat(models.FieldCharacters)
	}
}

func (s *Service) verifyRemote(ctx context.Context, in Input, usi domain.USI) (models.Outcome, error) {
	ok, err := s.tokenAccepted(ctx)
	if err != nil {
		outcome := models.TransportFailure(string(providers.GetCategory(err)), 0, "", err.Error())
		s.logAudit(ctx, audit.EventUSIRemoteDegraded, in, outcome.Category)
		return outcome, nil
	}
	if !ok {
		s.logAudit(ctx, audit.EventUSITokenRejected, in, "denied")
		return models.TokenInvalid(), nil
	}

	if in.DateOfBirth == nil || in.DateOfBirth.IsZero() {
		return models.DobRequired(), nil
	}

	req := models.VerificationRequest{
		USI:         usi,
		FirstName:   in.FirstName,
		FamilyName:  in.FamilyName,
		DateOfBirth: *in.DateOfBirth,
	}

	var key string
	if s.cache != nil {
		key = s.keyer.Key(req)
		if cached, ok := s.cached(ctx, key); ok {
			return cached, nil
		}
	}

	if s.breaker != nil && !s.breaker.Allow() {
		s.metrics.IncrementBreakerRejection()
		return models.TransportFailure(string(providers.ErrorProviderOutage), 0, "", "circuit breaker open"), nil
	}

	start := s.now()
	outcome, err := s.verifier.Verify(ctx, req)
	if err != nil {
		return models.Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to call verification service")
	}
	s.metrics.ObserveRemoteLatency(string(outcome.Kind), s.now().Sub(start))
	s.recordBreaker(ctx, outcome)

	switch {
	case outcome.Kind == models.KindTransportFailure:
		s.logAudit(ctx, audit.EventUSIRemoteDegraded, in, outcome.Category,
			"status_code", outcome.StatusCode,
		)
	case outcome.Definitive():
		s.logAudit(ctx, audit.EventUSIVerified, in, string(outcome.Kind))
		if s.cache != nil {
			if err := s.cache.Set(ctx, key, outcome); err != nil {
				s.logger.WarnContext(ctx, "failed to cache usi outcome", "error", err)
			}
		}
	}
	return outcome, nil
}

func (s *Service) cached(ctx context.Context, key string) (models.Outcome, bool) {
	outcome, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		s.metrics.IncrementCacheHit()
		return outcome, true
	case errors.Is(err, sentinel.ErrNotFound):
		s.metrics.IncrementCacheMiss()
	default:
		s.metrics.IncrementCacheError()
		s.logger.WarnContext(ctx, "usi outcome cache unavailable", "error", err)
	}
	return models.Outcome{}, false
}

// recordBreaker counts transport failures against the breaker. Any answer
// from the service, including quota exhaustion, counts as a success.
func (s *Service) recordBreaker(ctx context.Context, outcome models.Outcome) {
	if s.breaker == nil {
		return
	}
	var change circuit.StateChange
	if outcome.Kind == models.KindTransportFailure {
		_, change = s.breaker.RecordFailure()
	} else {
		_, change = s.breaker.RecordSuccess()
	}
	switch {
	case change.Opened:
		s.metrics.SetBreakerOpen(true)
		s.logger.WarnContext(ctx, "usi verification breaker opened", "breaker", s.breaker.Name())
	case change.Closed:
		s.metrics.SetBreakerOpen(false)
		s.logger.InfoContext(ctx, "usi verification breaker closed", "breaker", s.breaker.Name())
	}
}

// tokenAccepted checks the configured token, trusting a positive answer for
// tokenCheckTTL. Rejections are never remembered.
func (s *Service) tokenAccepted(ctx context.Context) (bool, error) {
	s.tokenMu.Lock()
	fresh := !s.tokenOKAt.IsZero() && s.now().Sub(s.tokenOKAt) < s.tokenCheckTTL
	s.tokenMu.Unlock()
	if fresh {
		return true, nil
	}

	ok, err := s.verifier.ValidToken(ctx)
	if err != nil {
		return false, err
	}

	s.tokenMu.Lock()
	if ok {
		s.tokenOKAt = s.now()
	} else {
		s.tokenOKAt = time.Time{}
	}
	s.tokenMu.Unlock()
	return ok, nil
}

// Save validates in and stores it for userID when the outcome allows.
// The returned outcome is the validation result either way.
func (s *Service) Save(ctx context.Context, userID domain.UserID, in Input) (models.Outcome, error) {
	if userID.IsNil() {
		return models.Outcome{}, dErrors.New(dErrors.CodeBadRequest, "user_id is required")
	}
	in.UserID = userID

	outcome, err := s.Validate(ctx, in)
	if err != nil {
		return models.Outcome{}, err
	}
	if !outcome.OK() {
		return outcome, nil
	}

	prev, err := s.store.Find(ctx, userID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return models.Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load usi")
	}

	value := domain.StoredValue(in.USI, outcome.Exemption, in.Exempt)
	if err := s.store.Save(ctx, userID, value); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.logAudit(ctx, audit.EventUSIConflict, in, "denied")
			return models.AlreadyInUse(), nil
		}
		return models.Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save usi")
	}

	if err := s.emit(ctx, audit.EventUSISaved, in, "stored"); err != nil {
		s.restore(ctx, userID, prev)
		return models.Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record usi change")
	}
	return outcome, nil
}

// restore puts back the record a failed Save replaced, or removes the new one
// when there was none.
func (s *Service) restore(ctx context.Context, userID domain.UserID, prev *store.Record) {
	var err error
	if prev == nil {
		err = s.store.Delete(ctx, userID)
	} else {
		err = s.store.Save(requestcontext.WithTime(ctx, prev.UpdatedAt), userID, prev.Value)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to roll back unaudited usi change",
			"user_id", userID.String(),
			"error", err,
		)
	}
}

// Display returns the stored USI for userID in its reporting form.
func (s *Service) Display(ctx context.Context, userID domain.UserID) (*models.StoredUSI, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user_id is required")
	}
	rec, err := s.store.Find(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "usi not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load usi")
	}

	view := &models.StoredUSI{
		UserID:    rec.UserID,
		Value:     rec.Value,
		Display:   domain.DisplayValue(rec.Value),
		Exempt:    rec.Exempt(),
		UpdatedAt: rec.UpdatedAt,
	}
	if view.Exempt {
		view.Reason = domain.ExemptionReason(strings.TrimPrefix(rec.Value, domain.ExemptPrefix))
	}
	return view, nil
}

// CheckToken tests a server and token pair before it is configured. An empty
// server means the default verification service; any other server must be
// allowed with WithAllowedServers.
func (s *Service) CheckToken(ctx context.Context, server, token string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, dErrors.New(dErrors.CodeValidation, "token is required")
	}
	if server != "" && !s.allowedServers[normalizeServer(server)] {
		s.logger.WarnContext(ctx, "usi token check to unlisted server refused",
			"log_type", "audit",
			"subject", requestcontext.Subject(ctx),
		)
		return false, dErrors.New(dErrors.CodeForbidden, "verification server is not allowed")
	}
	if s.verifierFactory == nil {
		return false, dErrors.New(dErrors.CodeUnavailable, "token checks are not configured")
	}

	v, err := s.verifierFactory(server, token)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid verification server")
	}
	ok, err := v.ValidToken(ctx)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "verification service unreachable")
	}
	if !ok {
		s.logger.InfoContext(ctx, "usi token rejected by verification service", "log_type", "audit")
	}
	return ok, nil
}

// History returns the audit trail recorded for userID, oldest first.
func (s *Service) History(ctx context.Context, userID domain.UserID) ([]audit.Event, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user_id is required")
	}
	if s.auditLog == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "audit history is not configured")
	}
	events, err := s.auditLog.List(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit history")
	}
	return events, nil
}
