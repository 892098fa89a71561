package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"usiverify/internal/evidence/usi/messages"
	"usiverify/internal/evidence/usi/models"
	"usiverify/internal/evidence/usi/service"
	"usiverify/pkg/domain"
	dErrors "usiverify/pkg/domain-errors"
	"usiverify/pkg/platform/audit"
	"usiverify/pkg/platform/httputil"
	"usiverify/pkg/requestcontext"
)

// Service defines the USI operations exposed over HTTP.
type Service interface {
	Validate(ctx context.Context, in service.Input) (models.Outcome, error)
	Save(ctx context.Context, userID domain.UserID, in service.Input) (models.Outcome, error)
	Display(ctx context.Context, userID domain.UserID) (*models.StoredUSI, error)
	CheckToken(ctx context.Context, server, token string) (bool, error)
	History(ctx context.Context, userID domain.UserID) ([]audit.Event, error)
}

// Handler wires USI endpoints to the verification service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts USI endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/usi/validate", h.HandleValidate)
	r.Post("/usi/checksum", h.HandleGenerateChecksum)
	r.Get("/usi/checksum/{code}", h.HandleCheckChecksum)
	r.Post("/usi/token/check", h.HandleCheckToken)
	r.Get("/usi/exemptions", h.HandleListExemptions)
	r.Put("/users/{userID}/usi", h.HandleSave)
	r.Get("/users/{userID}/usi", h.HandleGet)
	r.Get("/users/{userID}/usi/history", h.HandleHistory)
}

func printer(r *http.Request) *messages.Printer {
	return messages.ForAcceptLanguage(r.Header.Get("Accept-Language"))
}

// HandleValidate handles POST /usi/validate. The outcome is the answer, so
// failed validations still return 200.
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[USIRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	outcome, err := h.service.Validate(ctx, req.Input(domain.UserID{}))
	if err != nil {
		h.logError(ctx, "usi validation failed", err, requestID)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "usi validated",
		"request_id", requestID,
		"outcome", outcome.Kind,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromOutcome(outcome, printer(r)))
}

// HandleSave handles PUT /users/{userID}/usi. Outcomes that block saving
// return 422 with the same body as a validation.
func (h *Handler) HandleSave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID, err := domain.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[USIRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	outcome, err := h.service.Save(ctx, userID, req.Input(userID))
	if err != nil {
		h.logError(ctx, "usi save failed", err, requestID, "user_id", userID.String())
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if !outcome.OK() {
		status = http.StatusUnprocessableEntity
	}
	h.logger.InfoContext(ctx, "usi save handled",
		"request_id", requestID,
		"user_id", userID.String(),
		"outcome", outcome.Kind,
	)
	httputil.WriteJSON(w, status, FromOutcome(outcome, printer(r)))
}

// HandleGet handles GET /users/{userID}/usi.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := domain.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	view, err := h.service.Display(ctx, userID)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			h.logError(ctx, "usi lookup failed", err, requestcontext.RequestID(ctx), "user_id", userID.String())
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromStoredUSI(view))
}

// HandleHistory handles GET /users/{userID}/usi/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := domain.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	events, err := h.service.History(ctx, userID)
	if err != nil {
		h.logError(ctx, "usi history lookup failed", err, requestcontext.RequestID(ctx), "user_id", userID.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromEvents(events))
}

// HandleGenerateChecksum handles POST /usi/checksum.
func (h *Handler) HandleGenerateChecksum(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[ChecksumRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	usi, err := domain.NewUSI(strings.ToUpper(req.Payload))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &ChecksumResponse{
		Checksum: usi.String()[domain.PayloadLength:],
		USI:      usi.String(),
	})
}

// HandleCheckChecksum handles GET /usi/checksum/{code}.
func (h *Handler) HandleCheckChecksum(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	httputil.WriteJSON(w, http.StatusOK, &ChecksumValidResponse{
		Code:  code,
		Valid: domain.ValidateChecksum(code),
	})
}

// HandleCheckToken handles POST /usi/token/check.
func (h *Handler) HandleCheckToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[TokenCheckRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	valid, err := h.service.CheckToken(ctx, req.Server, req.Token)
	if err != nil {
		h.logError(ctx, "usi token check failed", err, requestID)
		httputil.WriteError(w, err)
		return
	}

	resp := &TokenCheckResponse{Valid: valid}
	if !valid {
		resp.Message = printer(r).Lookup(messages.KeyAPIInvalidToken)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleListExemptions handles GET /usi/exemptions.
func (h *Handler) HandleListExemptions(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, FromExemptions(printer(r)))
}

func (h *Handler) logError(ctx context.Context, msg string, err error, requestID string, attrs ...any) {
	args := append([]any{"request_id", requestID, "error", err}, attrs...)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, args...)
		return
	}
	h.logger.WarnContext(ctx, msg, args...)
}
