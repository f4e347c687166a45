package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/correlator-io/correlator-airflow/internal/config"
	"github.com/correlator-io/correlator-airflow/internal/emitter"
	"github.com/correlator-io/correlator-airflow/internal/hook"
	"github.com/correlator-io/correlator-airflow/internal/lineage"
	"github.com/correlator-io/correlator-airflow/internal/listener"
	"github.com/correlator-io/correlator-airflow/internal/platform/logger"
	"github.com/correlator-io/correlator-airflow/internal/redact"
	"github.com/correlator-io/correlator-airflow/internal/transport"
	"github.com/spf13/pflag"
)

// application holds the components shared by every command.
type application struct {
	config   *config.Config
	logger   *slog.Logger
	listener *listener.Listener
}

// newApplication loads configuration, sets up logging and wires the
// configured transport into a listener.
func newApplication(configPath string, stdout, stderr io.Writer) (*application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(logger.LoggerConfig{Level: cfg.LogLevel, Output: stderr})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Debug("configuration loaded",
		"namespace", cfg.Namespace,
		"transport", cfg.Transport.Type,
		"api_key_present", cfg.Transport.APIKey != "")

	t, err := transport.New(transport.Config{
		Type:      cfg.Transport.Type,
		URL:       cfg.Transport.URL,
		APIKey:    cfg.Transport.APIKey,
		Timeout:   cfg.Transport.Timeout(),
		VerifySSL: cfg.Transport.VerifySSL,
		Client:    emitter.NewHTTPClient(cfg.Transport.VerifySSL),
		Output:    stdout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	if ct, ok := t.(*transport.CorrelatorTransport); ok && ct.Enabled() {
		log.Info("lineage transport ready",
			"transport", ct.Kind(),
			"endpoint", redact.URL(ct.Endpoint()))
	}

	return &application{
		config:   cfg,
		logger:   log,
		listener: listener.New(t, listener.Options{Namespace: cfg.Namespace}, log),
	}, nil
}

func runServe(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.StringP("config", "c", "", "path to openlineage.yml")
	addr := fs.String("addr", "", "listen address, overrides hook.addr")

	if err := fs.Parse(args); err != nil {
		return flagError(err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}

	app, err := newApplication(*configPath, stdout, stderr)
	if err != nil {
		return err
	}

	listenAddr := app.config.Hook.Addr
	if *addr != "" {
		listenAddr = *addr
	}

	app.logger.Info("airflow-correlator starting",
		"namespace", app.config.Namespace,
		"transport", app.config.Transport.Type)

	return hook.Serve(ctx, listenAddr, hook.NewHandler(app.listener, app.logger), app.logger)
}

func runEmit(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("emit", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.StringP("config", "c", "", "path to openlineage.yml")
	event := fs.String("event", "", "event type: START, COMPLETE or FAIL")
	runID := fs.String("run-id", "", "Airflow run identifier")
	taskID := fs.String("task-id", "", "task identifier")
	dagID := fs.String("dag-id", "", "DAG identifier")
	tryNumber := fs.Int("try-number", 0, "task attempt number")
	errMsg := fs.String("error", "", "error message attached to FAIL events")

	if err := fs.Parse(args); err != nil {
		return flagError(err)
	}

	eventType := lineage.EventType(strings.ToUpper(strings.TrimSpace(*event)))
	if !eventType.IsValid() {
		return fmt.Errorf("%w: --event must be one of START, COMPLETE, FAIL, got %q", errUsage, *event)
	}

	var missing []string
	for _, f := range []struct {
		name, value string
	}{
		{"--run-id", *runID},
		{"--task-id", *taskID},
		{"--dag-id", *dagID},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required flags %s", errUsage, strings.Join(missing, ", "))
	}

	app, err := newApplication(*configPath, stdout, stderr)
	if err != nil {
		return err
	}

	// Delivery failures are logged by the listener and never change the
	// exit code.
	app.listener.EmitTaskEvent(ctx, eventType, listener.TaskContext{
		RunID:        *runID,
		TaskID:       *taskID,
		DagID:        *dagID,
		TryNumber:    *tryNumber,
		ErrorMessage: *errMsg,
	})
	return nil
}

// flagError classifies a pflag parse error.
func flagError(err error) error {
	if errors.Is(err, pflag.ErrHelp) {
		return err
	}
	return fmt.Errorf("%w: %v", errUsage, err)
}
