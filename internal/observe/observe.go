// Package observe bundles the structured logger and tracer shared by the
// CLI, API server, and agent loop.
package observe

import (
	"context"
	"io"

	"github.com/felixgeelhaar/bolt/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("genie")

// Observer carries the logger and tracer for one process.
type Observer struct {
	log *bolt.Logger
}

// New creates an Observer logging human-readable console output. Without
// verbose, only warnings and errors are emitted.
func New(out io.Writer, verbose bool) *Observer {
	return withLevel(bolt.New(bolt.NewConsoleHandler(out)), verbose)
}

// NewJSON creates an Observer logging one JSON object per line, for runs
// whose output is collected rather than read, such as the API server.
func NewJSON(out io.Writer, verbose bool) *Observer {
	return withLevel(bolt.New(bolt.NewJSONHandler(out)), verbose)
}

func withLevel(l *bolt.Logger, verbose bool) *Observer {
	if !verbose {
		l.SetLevel(bolt.WARN)
	}
	return &Observer{log: l}
}

// Log returns the logger.
func (o *Observer) Log() *bolt.Logger {
	return o.log
}

// StartSpan opens a span under the genie tracer.
func (o *Observer) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// Close flushes buffered telemetry. Both backends write synchronously today,
// so this is a no-op kept for call-site symmetry.
func (o *Observer) Close() error {
	return nil
}
