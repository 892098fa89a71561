// Package avetmiss verifies USIs against the AVETMISS USI verification API.
//
// Remote outcomes, including transport failures, are returned as
// models.Outcome values. Go errors are reserved for requests that could not
// be constructed at all.
package avetmiss

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"usiverify/internal/evidence/usi/models"
	"usiverify/internal/evidence/usi/providers"
)

const (
	ProviderID     = "avetmiss"
	DefaultServer  = "https://adts.avetmissfree.com"
	VerifyPath     = "/api/usi/verify/"
	DefaultTimeout = 30 * time.Second

	maxBodyBytes = 1 << 20
)

// ErrInvalidServer is returned when the configured server is not an absolute http(s) URL.
var ErrInvalidServer = errors.New("invalid verification server url")

// Doer is the HTTP transport the client depends on. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client calls the verification endpoint. It holds no per-call state and is
// safe for concurrent use.
type Client struct {
	endpoint string
	token    string
	http     Doer
	timeout  time.Duration
	logger   *slog.Logger
	tracer   trace.Tracer
}

type Option func(*Client)

func WithHTTPClient(d Doer) Option {
	return func(c *Client) {
		if d != nil {
			c.http = d
		}
	}
}

// WithTimeout bounds each remote call. Non-positive values keep DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// New builds a client for server (DefaultServer when empty) authenticating with token.
func New(server, token string, opts ...Option) (*Client, error) {
	endpoint, err := verifyEndpoint(server)
	if err != nil {
		return nil, err
	}
	c := &Client{
		endpoint: endpoint,
		token:    token,
		http:     &http.Client{},
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
		tracer:   otel.Tracer("usiverify/avetmiss"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func verifyEndpoint(server string) (string, error) {
	server = strings.TrimRight(strings.TrimSpace(server), "/")
	if server == "" {
		server = DefaultServer
	}
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidServer, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidServer, server)
	}
	return server + VerifyPath, nil
}

// Endpoint returns the verification URL the client posts to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// ValidToken checks the configured token with an empty request. The service
// authenticates before validating parameters, so 400 means the token was
// accepted. Any other status reports false. Only a failed call returns an error.
func (c *Client) ValidToken(ctx context.Context) (bool, error) {
	ctx, span := c.tracer.Start(ctx, "avetmiss.ValidToken", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	status, _, err := c.post(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token check failed")
		c.logger.WarnContext(ctx, "usi token check failed", "error", err)
		return false, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", status))
	c.logger.DebugContext(ctx, "usi token check", "status_code", status)
	return status == http.StatusBadRequest, nil
}

// Verify submits req and classifies the response.
func (c *Client) Verify(ctx context.Context, req models.VerificationRequest) (models.Outcome, error) {
	ctx, span := c.tracer.Start(ctx, "avetmiss.Verify", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()
	status, body, err := c.post(ctx, req.Form())
	if err != nil {
		var pe *providers.ProviderError
		if !errors.As(err, &pe) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "request construction failed")
			return models.Outcome{}, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(pe.Category))
		c.logger.WarnContext(ctx, "usi verification call failed",
			"category", pe.Category,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return models.TransportFailure(string(pe.Category), 0, "", err.Error()), nil
	}

	outcome := parseVerifyResponse(status, body)

	span.SetAttributes(
		attribute.Int("http.response.status_code", status),
		attribute.String("usi.outcome", string(outcome.Kind)),
	)
	c.logger.DebugContext(ctx, "usi verification response",
		"status_code", status,
		"body_bytes", len(body),
		"outcome", outcome.Kind,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return outcome, nil
}

// post sends one form POST and returns status and body. Errors from the
// transport or body read are *providers.ProviderError; any other error means
// the request could not be built.
func (c *Client) post(ctx context.Context, form url.Values) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return 0, nil, fmt.Errorf("build verification request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, providers.NewProviderError(providers.CategoryForTransport(err), ProviderID, "verification call failed", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, providers.NewProviderError(providers.CategoryForTransport(err), ProviderID, "read verification response", err)
	}
	return resp.StatusCode, data, nil
}
