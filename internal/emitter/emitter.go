package emitter

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/correlator-io/correlator-airflow/internal/lineage"
	"github.com/correlator-io/correlator-airflow/internal/redact"
)

// DefaultTimeout bounds a delivery attempt when Target.Timeout is unset.
const DefaultTimeout = 30 * time.Second

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// Request headers sent with every delivery.
const (
	HeaderContentType = "Content-Type"
	HeaderAPIKey      = "X-API-Key"
	HeaderRequestID   = "X-Request-ID"
)

// Target describes where and how a batch is delivered.
type Target struct {
	// Endpoint is the absolute lineage endpoint URL.
	Endpoint string

	// APIKey is sent as X-API-Key when non-empty.
	APIKey string

	// Timeout bounds the whole attempt. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Emitter performs lineage deliveries over a shared HTTP client.
// It holds no per-call state and is safe for concurrent use.
type Emitter struct {
	client *http.Client
	logger *slog.Logger
}

// NewEmitter creates an Emitter. A nil client falls back to
// NewHTTPClient(true); a nil logger falls back to slog.Default().
func NewEmitter(client *http.Client, logger *slog.Logger) *Emitter {
	if client == nil {
		client = NewHTTPClient(true)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		client: client,
		logger: logger.With("component", "lineage_emitter"),
	}
}

// NewHTTPClient returns a pooled client suitable for sharing across every
// delivery in the process. When verifyTLS is false, server certificates are
// not verified.
func NewHTTPClient(verifyTLS bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !verifyTLS, //nolint:gosec // opt-out exposed as verify_ssl
	}
	return &http.Client{Transport: transport}
}

// Send delivers events to target in a single POST. The body is always a JSON
// array, even for one event. It returns nil on success and on partial
// success; any other outcome yields a *DeliveryError.
func (e *Emitter) Send(ctx context.Context, events []lineage.RunEvent, target Target) error {
	if len(events) == 0 {
		return ErrNoEvents
	}

	endpoint, err := parseEndpoint(target.Endpoint)
	if err != nil {
		return err
	}
	safeEndpoint := redact.URL(endpoint.String())

	payload, err := sonic.ConfigStd.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to encode lineage events: %w", err)
	}

	timeout := target.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build lineage request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set(HeaderContentType, "application/json")
	req.Header.Set(HeaderRequestID, requestID)
	if target.APIKey != "" {
		req.Header.Set(HeaderAPIKey, target.APIKey)
	}

	log := e.logger.With(
		"request_id", requestID,
		"endpoint", safeEndpoint,
		"event_count", len(events),
		"namespace", events[0].Job.Namespace,
	)
	log.DebugContext(ctx, "sending lineage events", "payload_bytes", len(payload))

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return &DeliveryError{
			Kind:     KindTransport,
			Endpoint: safeEndpoint,
			Err:      fmt.Errorf("after %s: %w", time.Since(start).Round(time.Millisecond), err),
		}
	}
	defer func() {
		// Drain so the connection goes back to the pool.
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &DeliveryError{
			Kind:       KindTransport,
			StatusCode: resp.StatusCode,
			Endpoint:   safeEndpoint,
			Err:        fmt.Errorf("failed to read response body: %w", err),
		}
	}

	return handleResponse(ctx, log, resp.StatusCode, body, len(events), safeEndpoint, target.APIKey)
}

func parseEndpoint(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: endpoint is empty", ErrInvalidEndpoint)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEndpoint, redact.Error(err))
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute http(s) URL", ErrInvalidEndpoint, redact.URL(raw))
	}
	return u, nil
}
