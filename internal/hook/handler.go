package hook

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/correlator-io/correlator-airflow/internal/lineage"
	"github.com/correlator-io/correlator-airflow/internal/listener"
	"github.com/correlator-io/correlator-airflow/internal/platform/logger"
)

// maxBodyBytes bounds a hook request body.
const maxBodyBytes = 1 << 20

const componentName = "hook_handler"

var errEmptyBody = errors.New("empty request body")

// Lifecycle states accepted in the request path.
const (
	StateStart   = "start"
	StateSuccess = "success"
	StateFailure = "failure"
)

var stateEventTypes = map[string]lineage.EventType{
	StateStart:   lineage.EventTypeStart,
	StateSuccess: lineage.EventTypeComplete,
	StateFailure: lineage.EventTypeFail,
}

// Dispatcher starts an emission without waiting for it. *listener.Listener
// satisfies it.
type Dispatcher interface {
	Go(ctx context.Context, eventType lineage.EventType, tc listener.TaskContext)
}

// Handler serves the hook endpoints.
type Handler struct {
	dispatcher Dispatcher
	logger     *slog.Logger

	// base is the logger without the component attribute, used to derive
	// request-scoped loggers.
	base *slog.Logger
}

// NewHandler creates a Handler dispatching to d.
func NewHandler(d Dispatcher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		dispatcher: d,
		logger:     logger.With("component", componentName),
		base:       logger,
	}
}

// Routes returns the router with all hook endpoints mounted.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/health", h.Health)
	r.Post("/api/v1/hooks/task/{state}", h.TaskEvent)

	return r
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		h.logger.Error("failed to write health check response", "error", err)
	}
}

// TaskEvent decodes a task context and dispatches the matching event.
func (h *Handler) TaskEvent(w http.ResponseWriter, r *http.Request) {
	state := chi.URLParam(r, "state")
	eventType, ok := stateEventTypes[state]
	if !ok {
		writeJSON(w, h.logger, http.StatusNotFound, map[string]string{"error": "unknown task state " + state})
		return
	}

	tc, err := decodeTaskContext(r.Body)
	if err != nil {
		writeJSON(w, h.logger, http.StatusBadRequest, map[string]string{"error": "invalid task context: " + err.Error()})
		return
	}

	h.dispatcher.Go(r.Context(), eventType, tc)

	writeJSON(w, h.logger, http.StatusAccepted, map[string]string{
		"status":     "accepted",
		"event_type": string(eventType),
		"run_id":     lineage.RunID(tc.RunID, tc.TaskID),
	})
}

// requestLogger stores a logger tagged with the request ID in the request
// context, so emissions dispatched from the request log under the same ID.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		reqLog := h.base.With("request_id", middleware.GetReqID(r.Context()))
		r = r.WithContext(logger.WithLogger(r.Context(), reqLog))

		next.ServeHTTP(ww, r)

		reqLog.DebugContext(r.Context(), "hook request handled",
			"component", componentName,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func decodeTaskContext(body io.Reader) (listener.TaskContext, error) {
	var tc listener.TaskContext

	data, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return tc, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return tc, errEmptyBody
	}
	if err := sonic.ConfigStd.Unmarshal(data, &tc); err != nil {
		return tc, err
	}
	return tc, nil
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body interface{}) {
	data, err := sonic.ConfigStd.Marshal(body)
	if err != nil {
		logger.Error("failed to encode hook response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		logger.Error("failed to write hook response", "error", err)
	}
}
