package agent

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

func defaultLogger() *slog.Logger {
	return slog.Default()
}

func defaultTracer() trace.Tracer {
	return otel.Tracer("nexus/agent")
}
