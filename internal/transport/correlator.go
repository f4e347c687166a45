package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/correlator-io/correlator-airflow/internal/emitter"
	"github.com/correlator-io/correlator-airflow/internal/lineage"
	"github.com/correlator-io/correlator-airflow/internal/redact"
)

// KindCorrelator is the registry name of the Correlator transport.
const KindCorrelator = "correlator"

// EndpointPath is appended to the configured base URL.
const EndpointPath = "/api/v1/lineage/events"

// CorrelatorTransport sends events to the Correlator lineage API.
type CorrelatorTransport struct {
	endpoint string
	target   emitter.Target
	emitter  *emitter.Emitter
	logger   *slog.Logger
}

// Endpoint builds the lineage endpoint from a base URL.
func Endpoint(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + EndpointPath
}

// NewCorrelatorTransport builds the transport. An empty URL yields a
// disabled transport whose Emit is a no-op; a malformed URL is an error.
func NewCorrelatorTransport(cfg Config, logger *slog.Logger) (*CorrelatorTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "correlator_transport")

	t := &CorrelatorTransport{logger: logger}

	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		logger.Warn("Correlator URL not configured, lineage events will not be emitted",
			"hint", "set transport.url in openlineage.yml or AIRFLOW__OPENLINEAGE__TRANSPORT")
		return t, nil
	}

	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", emitter.ErrInvalidEndpoint, redact.URL(baseURL))
	}

	client := cfg.Client
	if client == nil {
		client = emitter.NewHTTPClient(cfg.VerifySSL)
	}

	t.endpoint = Endpoint(baseURL)
	t.target = emitter.Target{
		Endpoint: t.endpoint,
		APIKey:   cfg.APIKey,
		Timeout:  cfg.Timeout,
	}
	t.emitter = emitter.NewEmitter(client, logger)

	logger.Debug("correlator transport configured",
		"endpoint", redact.URL(t.endpoint),
		"timeout", t.target.Timeout.String(),
		"verify_ssl", cfg.VerifySSL,
		"api_key_present", cfg.APIKey != "")

	return t, nil
}

// Kind implements Transport.
func (t *CorrelatorTransport) Kind() string {
	return KindCorrelator
}

// Enabled reports whether a URL was configured.
func (t *CorrelatorTransport) Enabled() bool {
	return t.emitter != nil
}

// Endpoint returns the full lineage endpoint, or "" when disabled.
func (t *CorrelatorTransport) Endpoint() string {
	return t.endpoint
}

// Emit sends events in one request. Delivery errors are returned unchanged.
func (t *CorrelatorTransport) Emit(ctx context.Context, events ...lineage.RunEvent) error {
	if !t.Enabled() {
		return nil
	}
	return t.emitter.Send(ctx, events, t.target)
}
