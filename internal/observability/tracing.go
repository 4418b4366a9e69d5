package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/danmuck/wirelink"

// Tracer returns the process tracer. Without an installed SDK provider the
// spans are no-ops.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
