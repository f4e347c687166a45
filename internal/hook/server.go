package hook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// shutdownTimeout bounds graceful shutdown of the hook server.
const shutdownTimeout = 10 * time.Second

// Waiter is implemented by dispatchers that track in-flight work.
type Waiter interface {
	Wait()
}

// Serve runs an HTTP server for h on addr until ctx is canceled, then shuts
// it down gracefully and waits for in-flight emissions when the dispatcher
// supports it.
func Serve(ctx context.Context, addr string, h *Handler, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ServeListener(ctx, ln, h, logger)
}

// ServeListener is Serve on an existing listener.
func ServeListener(ctx context.Context, ln net.Listener, h *Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	server := &http.Server{
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting hook server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("hook server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down hook server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("hook server shutdown failed", "error", err)
		return fmt.Errorf("hook server shutdown failed: %w", err)
	}

	if w, ok := h.dispatcher.(Waiter); ok {
		w.Wait()
	}

	logger.Info("hook server shutdown completed")
	return nil
}
