// Package transport delivers calls to the RPC backend over HTTP.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/LavishGent/callgate/internal/config"
	"github.com/LavishGent/callgate/internal/types"
)

const defaultTimeout = 15 * time.Second

// StatusError is returned for HTTP responses that suggest the call may
// succeed if repeated: 408, 429 and 5xx.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("rpc: HTTP %d", e.Code)
	}
	return fmt.Sprintf("rpc: HTTP %d: %s", e.Code, e.Body)
}

// Option customizes an HTTPTransport.
type Option func(*HTTPTransport)

// WithDialer replaces the TCP dialer. Tests use it with an in-memory listener.
func WithDialer(dial fasthttp.DialFunc) Option {
	return func(t *HTTPTransport) {
		t.client.Dial = dial
	}
}

// HTTPTransport POSTs each call as a JSON envelope to a single RPC URL:
//
//	{"endpoint": "...", "action": "...", "payload": {...}}
//
// and expects a types.Response body back.
type HTTPTransport struct {
	client    *fasthttp.Client
	url       string
	userAgent string
	authToken types.SecretString
	timeout   time.Duration
	logger    *slog.Logger
}

type envelope struct {
	Endpoint string         `json:"endpoint"`
	Action   string         `json:"action"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// NewHTTPTransport creates a transport for cfg.BaseURL.
func NewHTTPTransport(cfg config.TransportConfig, logger *slog.Logger, opts ...Option) (*HTTPTransport, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("transport: base URL is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	t := &HTTPTransport{
		client: &fasthttp.Client{
			Name:                     cfg.UserAgent,
			MaxConnsPerHost:          cfg.MaxConnsPerHost,
			ReadTimeout:              timeout,
			WriteTimeout:             timeout,
			NoDefaultUserAgentHeader: cfg.UserAgent == "",
		},
		url:       strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		authToken: cfg.AuthToken,
		timeout:   timeout,
		logger:    logger.With("component", "transport"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Invoke sends spec and decodes the backend's response. The deadline is the
// earlier of ctx's deadline and the configured timeout.
func (t *HTTPTransport) Invoke(ctx context.Context, spec types.RequestSpec) (*types.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(envelope{Endpoint: spec.Endpoint, Action: spec.Action, Payload: spec.Payload})
	if err != nil {
		return nil, fmt.Errorf("rpc: encode %s: %w", spec.PolicyKey(), err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(t.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if t.userAgent != "" {
		req.Header.SetUserAgent(t.userAgent)
	}
	if !t.authToken.IsEmpty() {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+t.authToken.Value())
	}
	req.SetBody(body)

	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	start := time.Now()
	if err := t.client.DoDeadline(req, resp, deadline); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			return nil, fmt.Errorf("rpc %s: %w: %w", spec.PolicyKey(), types.ErrTimeout, err)
		}
		return nil, fmt.Errorf("rpc %s: %w", spec.PolicyKey(), err)
	}

	status := resp.StatusCode()
	t.logger.Debug("RPC completed",
		"endpoint", spec.Endpoint,
		"action", spec.Action,
		"status", status,
		"duration", time.Since(start),
	)

	return decodeResponse(status, resp.Body())
}

func decodeResponse(status int, body []byte) (*types.Response, error) {
	switch {
	case status == fasthttp.StatusRequestTimeout,
		status == fasthttp.StatusTooManyRequests,
		status >= fasthttp.StatusInternalServerError:
		return nil, &StatusError{Code: status, Body: truncate(body)}
	case status >= fasthttp.StatusBadRequest:
		return &types.Response{
			Success: false,
			Error:   (&StatusError{Code: status, Body: truncate(body)}).Error(),
		}, nil
	}

	var out types.Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrMalformedResponse, err)
	}
	return &out, nil
}

func truncate(body []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

var _ types.Transport = (*HTTPTransport)(nil)
