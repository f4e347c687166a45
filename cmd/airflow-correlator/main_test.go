package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/correlator-io/correlator-airflow/internal/config"
	"github.com/correlator-io/correlator-airflow/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv removes every variable config.Load consults.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		config.EnvConfigPath, config.EnvAirflowTransport, config.EnvAirflowNamespace, config.EnvAirflowHome,
		"CORRELATOR_NAMESPACE", "CORRELATOR_LOG_LEVEL", "CORRELATOR_API_KEY",
		"CORRELATOR_TRANSPORT_TYPE", "CORRELATOR_TRANSPORT_URL", "CORRELATOR_TRANSPORT_API_KEY",
		"CORRELATOR_TRANSPORT_TIMEOUT", "CORRELATOR_TRANSPORT_VERIFY_SSL", "CORRELATOR_HOOK_ADDR",
	} {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "openlineage.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunVersion(t *testing.T) {
	for _, args := range [][]string{{"--version"}, {"version"}} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			code, stdout, _ := runCLI(t, args...)

			assert.Equal(t, exitOK, code)
			assert.Equal(t, fmt.Sprintf("airflow-correlator, version %s\n", version.Version), stdout)
		})
	}
}

func TestRunHelp(t *testing.T) {
	for _, args := range [][]string{{"--help"}, {"-h"}, {"help"}, {}} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			code, stdout, _ := runCLI(t, args...)

			assert.Equal(t, exitOK, code)
			assert.Contains(t, stdout, "Usage: airflow-correlator")
			assert.Contains(t, stdout, "emit")
			assert.Contains(t, stdout, "serve")
		})
	}
}

func TestRunSubcommandHelp(t *testing.T) {
	code, _, stderr := runCLI(t, "emit", "--help")

	assert.Equal(t, exitOK, code)
	assert.Contains(t, stderr, "--run-id")
}

func TestRunUsageErrors(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantStderr string
	}{
		{
			name:       "unknown command",
			args:       []string{"frobnicate"},
			wantStderr: `unknown command "frobnicate"`,
		},
		{
			name:       "unknown root flag",
			args:       []string{"--bogus"},
			wantStderr: "unknown flag",
		},
		{
			name:       "unknown emit flag",
			args:       []string{"emit", "--nope"},
			wantStderr: "unknown flag",
		},
		{
			name:       "invalid event type",
			args:       []string{"emit", "--event", "RUNNING", "--run-id", "r", "--task-id", "t", "--dag-id", "d"},
			wantStderr: "--event must be one of",
		},
		{
			name:       "missing identifiers",
			args:       []string{"emit", "--event", "START", "--run-id", "r"},
			wantStderr: "missing required flags --task-id, --dag-id",
		},
		{
			name:       "serve extra arguments",
			args:       []string{"serve", "extra"},
			wantStderr: "unexpected arguments",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)

			code, _, stderr := runCLI(t, tt.args...)

			assert.Equal(t, exitUsage, code)
			assert.Contains(t, stderr, tt.wantStderr)
		})
	}
}

func TestRunEmitConsole(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
namespace: test-ns
transport:
  type: console
`)

	code, stdout, stderr := runCLI(t,
		"emit", "--config", path,
		"--event", "fail",
		"--run-id", "run-1", "--task-id", "extract", "--dag-id", "etl",
		"--error", "boom")

	require.Equal(t, exitOK, code, stderr)
	assert.NotContains(t, stderr, "lineage transport ready")

	var events []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(stdout)), &events))
	require.Len(t, events, 1)

	event := events[0]
	assert.Equal(t, "FAIL", event["eventType"])
	assert.Equal(t, version.Producer(), event["producer"])

	runObj := event["run"].(map[string]interface{})
	assert.Equal(t, "run-1.extract", runObj["runId"])
	facets := runObj["facets"].(map[string]interface{})
	assert.Contains(t, facets, "errorMessage")

	job := event["job"].(map[string]interface{})
	assert.Equal(t, "test-ns", job["namespace"])
	assert.Equal(t, "etl.extract", job["name"])
}

func TestRunEmitCorrelator(t *testing.T) {
	clearEnv(t)

	var (
		mu       sync.Mutex
		paths    []string
		apiKeys  []string
		payloads [][]map[string]interface{}
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		mu.Lock()
		paths = append(paths, r.URL.Path)
		apiKeys = append(apiKeys, r.Header.Get("X-API-Key"))
		payloads = append(payloads, body)
		mu.Unlock()

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	t.Setenv("CORRELATOR_TRANSPORT_URL", server.URL)
	t.Setenv("CORRELATOR_API_KEY", "cli-test-key")

	code, _, stderr := runCLI(t,
		"emit", "--event", "START",
		"--run-id", "manual__2024-01-01", "--task-id", "load", "--dag-id", "warehouse")

	require.Equal(t, exitOK, code, stderr)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, payloads, 1)
	assert.Equal(t, "/api/v1/lineage/events", paths[0])
	assert.Equal(t, "cli-test-key", apiKeys[0])
	require.Len(t, payloads[0], 1)
	assert.Equal(t, "START", payloads[0][0]["eventType"])
	assert.Contains(t, stderr, "lineage transport ready")
	assert.Contains(t, stderr, server.URL+"/api/v1/lineage/events")
	assert.NotContains(t, stderr, "cli-test-key")
}

func TestRunEmitBackendFailureStillExitsZero(t *testing.T) {
	clearEnv(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	url := server.URL
	server.Close()

	t.Setenv("CORRELATOR_TRANSPORT_URL", url)
	t.Setenv("CORRELATOR_TRANSPORT_TIMEOUT", "2")

	code, _, stderr := runCLI(t,
		"emit", "--event", "COMPLETE",
		"--run-id", "r", "--task-id", "t", "--dag-id", "d")

	assert.Equal(t, exitOK, code)
	assert.Contains(t, stderr, "failed to emit lineage event")
}

func TestRunEmitConfigError(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
log_level: verbose
transport:
  type: console
`)

	code, _, stderr := runCLI(t,
		"emit", "--config", path,
		"--event", "START", "--run-id", "r", "--task-id", "t", "--dag-id", "d")

	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "failed to load configuration")
}

func TestRunServeShutsDownOnCancel(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
transport:
  type: console
`)

	ctx, cancel := context.WithCancel(context.Background())
	var stdout, stderr bytes.Buffer

	done := make(chan int, 1)
	go func() {
		done <- run(ctx, []string{"serve", "--config", path, "--addr", "127.0.0.1:0"}, &stdout, &stderr)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case code := <-done:
		assert.Equal(t, exitOK, code)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not shut down after context cancellation")
	}
}
