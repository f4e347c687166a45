package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/correlator-io/correlator-airflow/internal/lineage"
)

// KindConsole is the registry name of the console transport.
const KindConsole = "console"

// ConsoleTransport writes each batch as one JSON array line.
type ConsoleTransport struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleTransport writes to out, or os.Stdout when out is nil.
func NewConsoleTransport(out io.Writer) *ConsoleTransport {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleTransport{out: out}
}

// Kind implements Transport.
func (t *ConsoleTransport) Kind() string {
	return KindConsole
}

// Emit implements Transport.
func (t *ConsoleTransport) Emit(_ context.Context, events ...lineage.RunEvent) error {
	if len(events) == 0 {
		return nil
	}

	data, err := sonic.ConfigStd.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to encode lineage events: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write lineage events: %w", err)
	}
	return nil
}
