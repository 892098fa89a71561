package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Verifier,Cache,AuditPublisher,AuditLog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"usiverify/internal/evidence/usi/cache"
	"usiverify/internal/evidence/usi/metrics"
	"usiverify/internal/evidence/usi/models"
	"usiverify/internal/evidence/usi/providers"
	"usiverify/internal/evidence/usi/service/mocks"
	"usiverify/internal/evidence/usi/store"
	"usiverify/pkg/domain"
	dErrors "usiverify/pkg/domain-errors"
	"usiverify/pkg/platform/audit"
	"usiverify/pkg/platform/circuit"
	"usiverify/pkg/platform/sentinel"
	"usiverify/pkg/requestcontext"
)

const validUSI = "BNGH7C75FN"

// =============================================================================
// Verification Service Test Suite
// =============================================================================
// Justification for unit tests: the service orders exemption, local, remote
// and uniqueness checks, and owns caching, breaker and token memoisation
// decisions that HTTP tests cannot pin down precisely.

type ServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	store    *mocks.MockStore
	verifier *mocks.MockVerifier
	cache    *mocks.MockCache
	audit    *mocks.MockAuditPublisher
	metrics  *metrics.Metrics
	keyer    *cache.Keyer
	now      time.Time
	userID   domain.UserID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.verifier = mocks.NewMockVerifier(s.ctrl)
	s.cache = mocks.NewMockCache(s.ctrl)
	s.audit = mocks.NewMockAuditPublisher(s.ctrl)
	s.metrics = metrics.NewWith(prometheus.NewRegistry())
	s.keyer = cache.NewKeyer("test-secret")
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.userID = domain.UserID(uuid.New())
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) clock() time.Time {
	return s.now
}

func (s *ServiceSuite) newService(opts ...Option) *Service {
	base := []Option{
		WithMetrics(s.metrics),
		WithAuditPublisher(s.audit),
		WithKeyer(s.keyer),
		WithClock(s.clock),
	}
	svc, err := New(s.store, append(base, opts...)...)
	s.Require().NoError(err)
	return svc
}

func (s *ServiceSuite) allowAudit() {
	s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
}

func dob() *models.Date {
	d := models.Date{Year: 2001, Month: 4, Day: 9}
	return &d
}

func (s *ServiceSuite) remoteInput() Input {
	return Input{
		UserID:      s.userID,
		USI:         validUSI,
		FirstName:   "Jo",
		FamilyName:  "Citizen",
		DateOfBirth: dob(),
	}
}

// =============================================================================
// Constructor Tests (Invariant Enforcement)
// =============================================================================

func (s *ServiceSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil)
		s.Error(err)
		s.Contains(err.Error(), "usi store is required")
	})

	s.Run("cache without keyer returns error", func() {
		_, err := New(s.store, WithCache(s.cache))
		s.Error(err)
		s.Contains(err.Error(), "keyer is required")
	})

	s.Run("options are applied", func() {
		svc, err := New(s.store, WithVerifier(s.verifier), WithTokenCheckTTL(time.Minute))
		s.Require().NoError(err)
		s.True(svc.RemoteEnabled())
		s.Equal(time.Minute, svc.tokenCheckTTL)
	})

	s.Run("local only without verifier", func() {
		svc, err := New(s.store)
		s.Require().NoError(err)
		s.False(svc.RemoteEnabled())
	})
}

// =============================================================================
// Exemption and Local Check Tests
// =============================================================================

func (s *ServiceSuite) TestValidate_Exemption() {
	s.allowAudit()
	svc := s.newService(WithVerifier(s.verifier))
	ctx := context.Background()

	s.Run("missing reason", func() {
		out, err := svc.Validate(ctx, Input{UserID: s.userID, Exempt: true})
		s.Require().NoError(err)
		s.Equal(models.KindExemptionReasonMissing, out.Kind)
	})

	s.Run("unknown reason is invalid input", func() {
		_, err := svc.Validate(ctx, Input{UserID: s.userID, Exempt: true, ExemptionReason: "holiday"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("known reason skips every other check", func() {
		out, err := svc.Validate(ctx, Input{
			UserID:          s.userID,
			USI:             "garbage",
			Exempt:          true,
			ExemptionReason: "international",
		})
		s.Require().NoError(err)
		s.True(out.OK())
		s.Equal(domain.ExemptionInternational, out.Exemption)
		s.False(out.Verified)
	})
}

func (s *ServiceSuite) TestValidate_LocalChecks() {
	s.allowAudit()
	svc := s.newService(WithVerifier(s.verifier))
	ctx := context.Background()

	s.Run("blank usi is valid and unverified", func() {
		out, err := svc.Validate(ctx, Input{UserID: s.userID, USI: "   "})
		s.Require().NoError(err)
		s.True(out.OK())
		s.False(out.Verified)
	})

	tests := []struct {
		name  string
		usi   string
		kind  models.Kind
		field string
	}{
		{"too short", "BNGH7C75F", models.KindInvalidFormat, models.FieldLength},
		{"too long", "BNGH7C75FNX", models.KindInvalidFormat, models.FieldLength},
		{"excluded letter", "BNGH7C75FI", models.KindInvalidFormat, models.FieldCharacters},
		{"bad checksum", "BNGH7C75FM", models.KindInvalidChecksum, ""},
		{"lower case fails checksum", "bngh7c75fn", models.KindInvalidChecksum, ""},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			out, err := svc.Validate(ctx, Input{UserID: s.userID, USI: tt.usi})
			s.Require().NoError(err)
			s.Equal(tt.kind, out.Kind)
			s.Equal(tt.field, out.Field)
		})
	}
}

func (s *ServiceSuite) TestValidate_LocalOnlyUniqueness() {
	s.allowAudit()
	svc := s.newService()
	ctx := context.Background()

	s.Run("unique usi is valid", func() {
		s.store.EXPECT().ExistsForOtherUser(gomock.Any(), validUSI, s.userID).Return(false, nil)

		out, err := svc.Validate(ctx, Input{UserID: s.userID, USI: validUSI})
		s.Require().NoError(err)
		s.True(out.OK())
		s.False(out.Verified)
	})

	s.Run("usi held by another user", func() {
		s.store.EXPECT().ExistsForOtherUser(gomock.Any(), validUSI, s.userID).Return(true, nil)

		out, err := svc.Validate(ctx, Input{UserID: s.userID, USI: validUSI})
		s.Require().NoError(err)
		s.Equal(models.KindAlreadyInUse, out.Kind)
	})

	s.Run("store failure is internal", func() {
		s.store.EXPECT().ExistsForOtherUser(gomock.Any(), validUSI, s.userID).Return(false, errors.New("db down"))

		_, err := svc.Validate(ctx, Input{UserID: s.userID, USI: validUSI})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

// =============================================================================
// Remote Verification Tests
// =============================================================================

func (s *ServiceSuite) TestValidate_Token() {
	s.allowAudit()
	ctx := context.Background()

	s.Run("rejected token blocks verification", func() {
		svc := s.newService(WithVerifier(s.verifier))
		s.verifier.EXPECT().ValidToken(gomock.Any()).Return(false, nil)

		out, err := svc.Validate(ctx, s.remoteInput())
		s.Require().NoError(err)
		s.Equal(models.KindTokenInvalid, out.Kind)
	})

	s.Run("unreachable service is a transport failure", func() {
		svc := s.newService(WithVerifier(s.verifier))
		s.verifier.EXPECT().ValidToken(gomock.Any()).
			Return(false, providers.NewProviderError(providers.ErrorTimeout, "avetmiss", "timed out", context.DeadlineExceeded))

		out, err := svc.Validate(ctx, s.remoteInput())
		s.Require().NoError(err)
		s.Equal(models.KindTransportFailure, out.Kind)
		s.Equal(string(providers.ErrorTimeout), out.Category)
	})

	s.Run("accepted token is remembered for the ttl", func() {
		svc := s.newService(WithVerifier(s.verifier), WithTokenCheckTTL(time.Minute))
		s.verifier.EXPECT().ValidToken(gomock.Any()).Return(true, nil).Times(2)
		s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(models.Valid(true), nil).Times(3)
		s.store.EXPECT().ExistsForOtherUser(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil).Times(3)

		for range 2 {
			_, err := svc.Validate(ctx, s.remoteInput())
			s.Require().NoError(err)
		}
		s.now = s.now.Add(2 * time.Minute)
		_, err := svc.Validate(ctx, s.remoteInput())
		s.Require().NoError(err)
	})

	s.Run("date of birth required once token is accepted", func() {
		svc := s.newService(WithVerifier(s.verifier))
		s.verifier.EXPECT().ValidToken(gomock.Any()).Return(true, nil)

		in := s.remoteInput()
		in.DateOfBirth = nil
		out, err := svc.Validate(ctx, in)
		s.Require().NoError(err)
		s.Equal(models.KindDobRequired, out.Kind)
	})
}

func (s *ServiceSuite) TestValidate_Remote() {
	s.allowAudit()
	ctx := context.Background()

	s.Run("verified usi is cached and checked for uniqueness", func() {
		svc := s.newService(WithVerifier(s.verifier), WithCache(s.cache))
		in := s.remoteInput()

		s.verifier.EXPECT().ValidToken(gomock.Any()).Return(true, nil)
		s.cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(models.Outcome{}, sentinel.ErrNotFound)
		s.verifier.EXPECT().Verify(gomock.Any(), models.VerificationRequest{
			USI:         domain.MustUSI(validUSI),
			FirstName:   in.FirstName,
			FamilyName:  in.FamilyName,
			DateOfBirth: *in.DateOfBirth,
		}).Return(models.Valid(true), nil)
		s.cache.EXPECT().Set(gomock.Any(), gomock.Any(), models.Valid(true)).Return(nil)
		s.store.EXPECT().ExistsForOtherUser(gomock.Any(), validUSI, s.userID).Return(false, nil)

		out, err := svc.Validate(ctx, in)
		s.Require().NoError(err)
		s.True(out.OK())
		s.True(out.Verified)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues("miss")))
	})

	s.Run("cache hit skips the remote call", func() {
		svc := s.newService(WithVerifier(s.verifier), WithCache(s.cache))

		s.verifier.EXPECT().ValidToken(gomock.Any()).Return(true, nil)
		s.cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(models.NameMismatch("FamilyName"), nil)

		out, err := svc.Validate(ctx, s.remoteInput())
		s.Require().NoError(err)
		s.Equal(models.KindNameMismatch, out.Kind)
		s.Equal("FamilyName", out.Field)
	})

	s.Run("cache failure falls through to the remote call", func() {
		svc := s.newService(WithVerifier(s.verifier), WithCache(s.cache))

		s.verifier.EXPECT().ValidToken(gomock.Any()).Return(true, nil)
		s.cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(models.Outcome{}, sentinel.ErrUnavailable)
		s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(models.Deactivated(), nil)
		s.cache.EXPECT().Set(gomock.Any(), gomock.Any(), models.Deactivated()).Return(errors.New("write failed"))

		out, err := svc.Validate(ctx, s.remoteInput())
		s.Require().NoError(err)
		s.Equal(models.KindDeactivated, out.Kind)
	})

	s.Run("quota exhaustion is not cached", func() {
		svc := s.newService(WithVerifier(s.verifier), WithCache(s.cache))

		s.verifier.EXPECT().ValidToken(gomock.Any()).Return(true, nil)
		s.cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(models.Outcome{}, sentinel.ErrNotFound)
		s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(models.QuotaExceeded(), nil)

		out, err := svc.Validate(ctx, s.remoteInput())
		s.Require().NoError(err)
		s.Equal(models.KindQuotaExceeded, out.Kind)
	})

	s.Run("request construction failure is an error", func() {
		svc := s.newService(WithVerifier(s.verifier))

		s.verifier.EXPECT().ValidToken(gomock.Any()).Return(true, nil)
		s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(models.Outcome{}, errors.New("bad url"))

		_, err := svc.Validate(ctx, s.remoteInput())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestValidate_Breaker() {
	s.allowAudit()
	ctx := context.Background()
	breaker := circuit.New("avetmiss",
		circuit.WithFailureThreshold(2),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(s.clock),
	)
	svc := s.newService(WithVerifier(s.verifier), WithBreaker(breaker))
	outage := models.TransportFailure(string(providers.ErrorProviderOutage), 503, "down", "")

	s.verifier.EXPECT().ValidToken(gomock.Any()).Return(true, nil)

	s.Run("failures open the breaker", func() {
		s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(outage, nil).Times(2)
		for range 2 {
			out, err := svc.Validate(ctx, s.remoteInput())
			s.Require().NoError(err)
			s.Equal(models.KindTransportFailure, out.Kind)
		}
		s.True(breaker.IsOpen())
		s.Equal(1.0, testutil.ToFloat64(s.metrics.BreakerOpen))
	})

	s.Run("open breaker short-circuits", func() {
		out, err := svc.Validate(ctx, s.remoteInput())
		s.Require().NoError(err)
		s.Equal(models.KindTransportFailure, out.Kind)
		s.Equal(string(providers.ErrorProviderOutage), out.Category)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.BreakerRejections))
	})

	s.Run("successful probe after cooldown closes it", func() {
		s.now = s.now.Add(2 * time.Minute)
		s.verifier.EXPECT().ValidToken(gomock.Any()).Return(true, nil).MaxTimes(1)
		s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(models.DobMismatch(), nil)

		out, err := svc.Validate(ctx, s.remoteInput())
		s.Require().NoError(err)
		s.Equal(models.KindDobMismatch, out.Kind)
		s.False(breaker.IsOpen())
		s.Equal(0.0, testutil.ToFloat64(s.metrics.BreakerOpen))
	})
}

// =============================================================================
// Save and Display Tests
// =============================================================================

func (s *ServiceSuite) TestSave() {
	ctx := context.Background()

	s.Run("nil user is rejected", func() {
		svc := s.newService()
		_, err := svc.Save(ctx, domain.UserID{}, Input{USI: validUSI})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("valid usi is stored", func() {
		s.allowAudit()
		svc := s.newService()
		s.store.EXPECT().ExistsForOtherUser(gomock.Any(), validUSI, s.userID).Return(false, nil)
		s.store.EXPECT().Find(gomock.Any(), s.userID).Return(nil, sentinel.ErrNotFound)
		s.store.EXPECT().Save(gomock.Any(), s.userID, validUSI).Return(nil)

		out, err := svc.Save(ctx, s.userID, Input{USI: validUSI})
		s.Require().NoError(err)
		s.True(out.OK())
	})

	s.Run("exemption is stored in its marker form", func() {
		s.allowAudit()
		svc := s.newService()
		s.store.EXPECT().Find(gomock.Any(), s.userID).Return(nil, sentinel.ErrNotFound)
		s.store.EXPECT().Save(gomock.Any(), s.userID, "exempt_defence").Return(nil)

		out, err := svc.Save(ctx, s.userID, Input{Exempt: true, ExemptionReason: "defence"})
		s.Require().NoError(err)
		s.Equal(domain.ExemptionDefence, out.Exemption)
	})

	s.Run("failed validation is not stored", func() {
		s.allowAudit()
		svc := s.newService()

		out, err := svc.Save(ctx, s.userID, Input{USI: "BNGH7C75FM"})
		s.Require().NoError(err)
		s.Equal(models.KindInvalidChecksum, out.Kind)
	})

	s.Run("lost race becomes already in use", func() {
		s.allowAudit()
		svc := s.newService()
		s.store.EXPECT().ExistsForOtherUser(gomock.Any(), validUSI, s.userID).Return(false, nil)
		s.store.EXPECT().Find(gomock.Any(), s.userID).Return(nil, sentinel.ErrNotFound)
		s.store.EXPECT().Save(gomock.Any(), s.userID, validUSI).Return(sentinel.ErrConflict)

		out, err := svc.Save(ctx, s.userID, Input{USI: validUSI})
		s.Require().NoError(err)
		s.Equal(models.KindAlreadyInUse, out.Kind)
	})

	s.Run("store lookup failure is internal", func() {
		s.allowAudit()
		svc := s.newService()
		s.store.EXPECT().ExistsForOtherUser(gomock.Any(), validUSI, s.userID).Return(false, nil)
		s.store.EXPECT().Find(gomock.Any(), s.userID).Return(nil, errors.New("connection reset"))

		_, err := svc.Save(ctx, s.userID, Input{USI: validUSI})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

type failingSavedAudit struct{}

func (failingSavedAudit) Emit(_ context.Context, e audit.Event) error {
	if e.Action == string(audit.EventUSISaved) {
		return errors.New("audit buffer full")
	}
	return nil
}

// Saving must not succeed without its audit record, and must leave the store
// as it was.
func (s *ServiceSuite) TestSave_AuditFailureFailsClosed() {
	ctx := context.Background()
	newService := func(st *store.InMemoryStore) *Service {
		svc, err := New(st, WithAuditPublisher(failingSavedAudit{}), WithKeyer(s.keyer), WithClock(s.clock))
		s.Require().NoError(err)
		return svc
	}

	s.Run("first save is removed", func() {
		st := store.NewInMemory()
		svc := newService(st)

		_, err := svc.Save(ctx, s.userID, Input{USI: validUSI})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))

		_, err = st.Find(ctx, s.userID)
		s.ErrorIs(err, sentinel.ErrNotFound)

		taken, err := st.ExistsForOtherUser(ctx, validUSI, domain.UserID(uuid.New()))
		s.Require().NoError(err)
		s.False(taken, "the unaudited usi must not block other users")
	})

	s.Run("replaced record is restored", func() {
		st := store.NewInMemory()
		before := s.now.Add(-time.Hour)
		s.Require().NoError(st.Save(requestcontext.WithTime(ctx, before), s.userID, "XYZ234567J"))
		svc := newService(st)

		_, err := svc.Save(ctx, s.userID, Input{USI: validUSI})
		s.Require().Error(err)

		rec, err := st.Find(ctx, s.userID)
		s.Require().NoError(err)
		s.Equal("XYZ234567J", rec.Value)
		s.True(before.Equal(rec.UpdatedAt))
	})
}

func (s *ServiceSuite) TestSave_AuditEventCarriesHashNotUSI() {
	svc := s.newService()
	var saved audit.Event
	s.store.EXPECT().ExistsForOtherUser(gomock.Any(), validUSI, s.userID).Return(false, nil)
	s.store.EXPECT().Find(gomock.Any(), s.userID).Return(nil, sentinel.ErrNotFound)
	s.store.EXPECT().Save(gomock.Any(), s.userID, validUSI).Return(nil)
	s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
		if e.Action == string(audit.EventUSISaved) {
			saved = e
		}
		return nil
	}).AnyTimes()

	_, err := svc.Save(context.Background(), s.userID, Input{USI: validUSI})
	s.Require().NoError(err)
	s.Equal(s.userID, saved.UserID)
	s.Equal(s.keyer.Fingerprint(validUSI), saved.SubjectIDHash)
	s.NotContains(saved.SubjectIDHash, validUSI)
}

func (s *ServiceSuite) TestDisplay() {
	svc := s.newService()
	ctx := context.Background()

	s.Run("real usi", func() {
		s.store.EXPECT().Find(gomock.Any(), s.userID).Return(&store.Record{UserID: s.userID, Value: validUSI, UpdatedAt: s.now}, nil)

		view, err := svc.Display(ctx, s.userID)
		s.Require().NoError(err)
		s.Equal(validUSI, view.Display)
		s.False(view.Exempt)
	})

	s.Run("exemption shows its reporting code", func() {
		s.store.EXPECT().Find(gomock.Any(), s.userID).Return(&store.Record{UserID: s.userID, Value: "exempt_international"}, nil)

		view, err := svc.Display(ctx, s.userID)
		s.Require().NoError(err)
		s.Equal(domain.ExemptValueInternational, view.Display)
		s.True(view.Exempt)
		s.Equal(domain.ExemptionInternational, view.Reason)
	})

	s.Run("missing record is not found", func() {
		s.store.EXPECT().Find(gomock.Any(), s.userID).Return(nil, sentinel.ErrNotFound)

		_, err := svc.Display(ctx, s.userID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestHistory() {
	ctx := context.Background()

	s.Run("not configured", func() {
		svc := s.newService()
		_, err := svc.History(ctx, s.userID)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	s.Run("reads the audit log", func() {
		log := mocks.NewMockAuditLog(s.ctrl)
		svc := s.newService(WithAuditLog(log))
		want := []audit.Event{{UserID: s.userID, Action: string(audit.EventUSISaved)}}
		log.EXPECT().List(gomock.Any(), s.userID).Return(want, nil)

		got, err := svc.History(ctx, s.userID)
		s.Require().NoError(err)
		s.Equal(want, got)
	})

	s.Run("log failure is internal", func() {
		log := mocks.NewMockAuditLog(s.ctrl)
		svc := s.newService(WithAuditLog(log))
		log.EXPECT().List(gomock.Any(), s.userID).Return(nil, errors.New("db down"))

		_, err := svc.History(ctx, s.userID)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

// =============================================================================
// Token Check Tests
// =============================================================================

func (s *ServiceSuite) TestCheckToken() {
	ctx := context.Background()

	s.Run("token required", func() {
		svc := s.newService()
		_, err := svc.CheckToken(ctx, "", " ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("no factory configured", func() {
		svc := s.newService()
		_, err := svc.CheckToken(ctx, "", "tok")
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	s.Run("factory receives server and token", func() {
		var gotServer, gotToken string
		svc := s.newService(
			WithVerifierFactory(func(server, token string) (Verifier, error) {
				gotServer, gotToken = server, token
				return s.verifier, nil
			}),
			WithAllowedServers("https://usi.example.test/"),
		)
		s.verifier.EXPECT().ValidToken(gomock.Any()).Return(true, nil)

		ok, err := svc.CheckToken(ctx, "https://usi.example.test", "tok")
		s.Require().NoError(err)
		s.True(ok)
		s.Equal("https://usi.example.test", gotServer)
		s.Equal("tok", gotToken)
	})

	s.Run("bad server is invalid input", func() {
		svc := s.newService(
			WithVerifierFactory(func(string, string) (Verifier, error) {
				return nil, errors.New("invalid verification server url")
			}),
			WithAllowedServers("ftp://nope"),
		)
		_, err := svc.CheckToken(ctx, "ftp://nope", "tok")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unlisted server is refused before any call", func() {
		svc := s.newService(
			WithVerifierFactory(func(string, string) (Verifier, error) {
				s.Fail("factory must not be called for an unlisted server")
				return s.verifier, nil
			}),
			WithAllowedServers("https://usi.example.test"),
		)
		_, err := svc.CheckToken(ctx, "http://169.254.169.254/latest", "tok")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("no allowlist accepts only the default server", func() {
		svc := s.newService(WithVerifierFactory(func(string, string) (Verifier, error) {
			return s.verifier, nil
		}))
		_, err := svc.CheckToken(ctx, "https://usi.example.test", "tok")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unreachable service is unavailable", func() {
		svc := s.newService(WithVerifierFactory(func(string, string) (Verifier, error) {
			return s.verifier, nil
		}))
		s.verifier.EXPECT().ValidToken(gomock.Any()).Return(false, errors.New("dial tcp: refused"))
		_, err := svc.CheckToken(ctx, "", "tok")
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}
