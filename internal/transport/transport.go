package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/correlator-io/correlator-airflow/internal/lineage"
)

// ErrUnknownTransport is returned by New for an unregistered type.
var ErrUnknownTransport = errors.New("unknown transport type")

// Transport delivers lineage events to a backend.
type Transport interface {
	// Kind returns the registry name of the transport.
	Kind() string

	// Emit delivers events in order. Errors are returned to the caller.
	Emit(ctx context.Context, events ...lineage.RunEvent) error
}

// Config carries the settings shared by all transport types. Each factory
// reads the fields it needs.
type Config struct {
	Type      string
	URL       string
	APIKey    string
	Timeout   time.Duration
	VerifySSL bool

	// Client is an optional pre-configured HTTP client shared by the
	// process. When nil, HTTP transports build their own.
	Client *http.Client

	// Output is where the console transport writes. Defaults to stdout.
	Output io.Writer
}

// Factory constructs a transport from configuration.
type Factory func(cfg Config, logger *slog.Logger) (Transport, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a transport available under kind. It panics if kind is
// empty, the factory is nil, or kind is already registered.
func Register(kind string, factory Factory) {
	kind = normalizeKind(kind)
	if kind == "" {
		panic("transport: Register called with empty kind")
	}
	if factory == nil {
		panic("transport: Register factory is nil for " + kind)
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[kind]; dup {
		panic("transport: Register called twice for " + kind)
	}
	registry[kind] = factory
}

// Kinds returns the registered transport types in sorted order.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	kinds := make([]string, 0, len(registry))
	for kind := range registry {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// New resolves cfg.Type in the registry and builds the transport.
func New(cfg Config, logger *slog.Logger) (Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	kind := normalizeKind(cfg.Type)
	registryMu.RLock()
	factory, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %s)", ErrUnknownTransport, cfg.Type, strings.Join(Kinds(), ", "))
	}

	t, err := factory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s transport: %w", kind, err)
	}
	return t, nil
}

func normalizeKind(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}

func init() {
	Register(KindCorrelator, func(cfg Config, logger *slog.Logger) (Transport, error) {
		return NewCorrelatorTransport(cfg, logger)
	})
	Register(KindConsole, func(cfg Config, logger *slog.Logger) (Transport, error) {
		return NewConsoleTransport(cfg.Output), nil
	})
}
