package telemetry

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsukinoko-kun/ziplock/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestProviderFeedsProcessors(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := NewProvider(sr)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, parent := Tracer(tp).Start(context.Background(), "ziplock run")
	_, child := Tracer(tp).Start(ctx, "vendor left-pad")
	child.End()
	parent.End()

	ended := sr.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "vendor left-pad", ended[0].Name())
	assert.Equal(t, parent.SpanContext().SpanID(), ended[0].Parent().SpanID())
}

func TestLogProcessorWritesDebugLine(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(&buf, true)
	t.Cleanup(func() { logger.Init(&bytes.Buffer{}, false) })

	tp := NewProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	_, span := Tracer(tp).Start(context.Background(), "vendor dotty")
	span.SetAttributes(attribute.String("ziplock.kind", "registry"))
	span.SetStatus(codes.Error, "registry unavailable")
	span.End()

	out := buf.String()
	assert.Contains(t, out, "span finished")
	assert.Contains(t, out, "vendor dotty")
	assert.Contains(t, out, "ziplock.kind=registry")
	assert.Contains(t, out, "registry unavailable")
}

type closingBuffer struct {
	bytes.Buffer
	closed bool
}

func (b *closingBuffer) Close() error {
	b.closed = true
	return nil
}

func TestFileExporterWritesJSONLines(t *testing.T) {
	var buf closingBuffer
	tp := NewProvider(sdktrace.NewSimpleSpanProcessor(NewFileExporter(&buf)))

	ctx, parent := Tracer(tp).Start(context.Background(), "ziplock run")
	_, child := Tracer(tp).Start(ctx, "vendor dotty")
	child.SetAttributes(attribute.String("ziplock.package", "dotty"))
	child.RecordError(errors.New("boom"))
	child.SetStatus(codes.Error, "boom")
	child.End()
	parent.End()
	require.NoError(t, tp.Shutdown(context.Background()))
	assert.True(t, buf.closed)

	var records []SpanRecord
	sc := bufio.NewScanner(&buf.Buffer)
	for sc.Scan() {
		var r SpanRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		records = append(records, r)
	}
	require.Len(t, records, 2)

	assert.Equal(t, "vendor dotty", records[0].Name)
	assert.Equal(t, "error", records[0].Status)
	assert.Equal(t, "boom", records[0].Error)
	assert.Equal(t, "dotty", records[0].Attributes["ziplock.package"])
	assert.Equal(t, records[1].SpanID, records[0].ParentID)
	assert.Equal(t, records[1].TraceID, records[0].TraceID)

	assert.Equal(t, "ziplock run", records[1].Name)
	assert.Equal(t, "ok", records[1].Status)
	assert.Empty(t, records[1].ParentID)
}
