package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/correlator-io/correlator-airflow/internal/emitter"
	"github.com/correlator-io/correlator-airflow/internal/lineage"
	"github.com/correlator-io/correlator-airflow/internal/platform/logger"
	"github.com/correlator-io/correlator-airflow/internal/redact"
	"github.com/correlator-io/correlator-airflow/internal/transport"
	"github.com/correlator-io/correlator-airflow/internal/version"
)

// DefaultNamespace is the job namespace used when none is configured.
const DefaultNamespace = "airflow"

const componentName = "lineage_listener"

// ErrNoTransport is logged when a Listener was built without a transport.
var ErrNoTransport = errors.New("no lineage transport configured")

// Error kinds reported in the error_kind log attribute, in addition to the
// delivery kinds defined by the emitter package.
const (
	ErrorKindInvalidEvent = "invalid_event"
	ErrorKindPanic        = "panic"
	ErrorKindInternal     = "internal"
)

// TaskContext is what the lifecycle hook knows about a task execution.
type TaskContext struct {
	RunID        string            `json:"run_id"`
	TaskID       string            `json:"task_id"`
	DagID        string            `json:"dag_id"`
	TryNumber    int               `json:"try_number,omitempty"`
	ErrorMessage string            `json:"error,omitempty"`
	Inputs       []lineage.Dataset `json:"inputs,omitempty"`
	Outputs      []lineage.Dataset `json:"outputs,omitempty"`
}

// Options configures a Listener.
type Options struct {
	// Namespace is the job namespace. Defaults to DefaultNamespace.
	Namespace string

	// Producer is the producer URI. Defaults to version.Producer().
	Producer string
}

// Listener emits lineage events for task lifecycle transitions. It keeps no
// state between calls and is safe for concurrent use.
type Listener struct {
	transport transport.Transport
	namespace string
	producer  string
	logger    *slog.Logger

	// inflight tracks goroutines started by Go.
	inflight sync.WaitGroup
}

// New creates a Listener that emits through t.
func New(t transport.Transport, opts Options, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.Producer == "" {
		opts.Producer = version.Producer()
	}

	return &Listener{
		transport: t,
		namespace: opts.Namespace,
		producer:  opts.Producer,
		logger:    logger.With("component", componentName),
	}
}

// OnTaskStart reports that a task instance started running.
func (l *Listener) OnTaskStart(ctx context.Context, tc TaskContext) {
	l.EmitTaskEvent(ctx, lineage.EventTypeStart, tc)
}

// OnTaskSuccess reports that a task instance succeeded.
func (l *Listener) OnTaskSuccess(ctx context.Context, tc TaskContext) {
	l.EmitTaskEvent(ctx, lineage.EventTypeComplete, tc)
}

// OnTaskFailure reports that a task instance failed.
func (l *Listener) OnTaskFailure(ctx context.Context, tc TaskContext) {
	l.EmitTaskEvent(ctx, lineage.EventTypeFail, tc)
}

// EmitTaskEvent builds and delivers one event. It always returns normally:
// errors and panics are logged at error level and discarded. A logger
// stored in ctx with logger.WithLogger takes precedence over the
// Listener's own.
func (l *Listener) EmitTaskEvent(ctx context.Context, eventType lineage.EventType, tc TaskContext) {
	log := slog.Default()
	defer func() {
		if r := recover(); r != nil {
			log.Error("lineage emission panicked",
				"error_kind", ErrorKindPanic,
				"error", redact.String(fmt.Sprint(r)),
				"stack", string(debug.Stack()))
		}
	}()

	if ctx == nil {
		ctx = context.Background()
	}

	log = l.eventLogger(ctx).With(
		"event_type", string(eventType),
		"run_id", tc.RunID,
		"task_id", tc.TaskID,
		"dag_id", tc.DagID,
	)
	if tc.TryNumber > 0 {
		log = log.With("try_number", tc.TryNumber)
	}

	if err := l.emit(ctx, eventType, tc); err != nil {
		log.ErrorContext(ctx, "failed to emit lineage event",
			"error_kind", ErrorKind(err),
			"error", redact.Error(err))
		return
	}

	log.DebugContext(ctx, "lineage event handed to transport")
}

// eventLogger picks the request-scoped logger from ctx when present,
// falling back to the Listener's logger and then to slog.Default.
func (l *Listener) eventLogger(ctx context.Context) *slog.Logger {
	if reqLog := logger.FromContextOrDefault(ctx, nil); reqLog != nil {
		return reqLog.With("component", componentName)
	}
	if l == nil || l.logger == nil {
		return slog.Default().With("component", componentName)
	}
	return l.logger
}

// Go runs EmitTaskEvent on its own goroutine. The event is detached from
// ctx cancellation so a finished inbound request does not abort delivery.
// Use Wait to block until every started emission has finished.
func (l *Listener) Go(ctx context.Context, eventType lineage.EventType, tc TaskContext) {
	if ctx == nil {
		ctx = context.Background()
	}
	detached := context.WithoutCancel(ctx)

	l.inflight.Add(1)
	go func() {
		defer l.inflight.Done()
		l.EmitTaskEvent(detached, eventType, tc)
	}()
}

// Wait blocks until all emissions started with Go have returned.
func (l *Listener) Wait() {
	l.inflight.Wait()
}

func (l *Listener) emit(ctx context.Context, eventType lineage.EventType, tc TaskContext) error {
	event, err := lineage.NewRunEvent(lineage.EventParams{
		EventType:      eventType,
		RunIdentifier:  tc.RunID,
		TaskIdentifier: tc.TaskID,
		PipelineID:     tc.DagID,
		Namespace:      l.namespace,
		Producer:       l.producer,
		Inputs:         tc.Inputs,
		Outputs:        tc.Outputs,
		ErrorMessage:   tc.ErrorMessage,
	})
	if err != nil {
		return fmt.Errorf("failed to build lineage event: %w", err)
	}

	if l.transport == nil {
		return ErrNoTransport
	}

	if err := l.transport.Emit(ctx, event); err != nil {
		return fmt.Errorf("%s transport: %w", l.transport.Kind(), err)
	}
	return nil
}

// ErrorKind names the failure class of err for logging.
func ErrorKind(err error) string {
	if errors.Is(err, lineage.ErrInvalidEvent) {
		return ErrorKindInvalidEvent
	}
	if kind := emitter.KindOf(err); kind != "" {
		return string(kind)
	}
	return ErrorKindInternal
}
