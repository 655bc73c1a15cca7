// Package telemetry builds the OpenTelemetry tracer provider of a vendoring
// run. Finished spans go to the debug log and optionally to a trace file.
package telemetry

import (
	"context"
	"time"

	"github.com/tsukinoko-kun/ziplock/logger"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const TracerName = "github.com/tsukinoko-kun/ziplock"

// NewProvider returns a provider that samples every span and hands it to
// the log processor followed by processors.
func NewProvider(processors ...sdktrace.SpanProcessor) *sdktrace.TracerProvider {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSpanProcessor(LogProcessor{}),
	}
	for _, p := range processors {
		opts = append(opts, sdktrace.WithSpanProcessor(p))
	}
	return sdktrace.NewTracerProvider(opts...)
}

// Tracer is the tracer the engine records its spans with.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	return tp.Tracer(TracerName)
}

// LogProcessor writes one debug line per finished span.
type LogProcessor struct{}

func (LogProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (LogProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	if !s.SpanContext().IsValid() {
		return
	}
	kv := []any{"span", s.Name(), "took", s.EndTime().Sub(s.StartTime()).Round(time.Millisecond)}
	for _, a := range s.Attributes() {
		kv = append(kv, string(a.Key), a.Value.Emit())
	}
	if s.Status().Code == codes.Error {
		kv = append(kv, "err", s.Status().Description)
	}
	logger.L().Debug("span finished", kv...)
}

func (LogProcessor) ForceFlush(context.Context) error { return nil }

func (LogProcessor) Shutdown(context.Context) error { return nil }
