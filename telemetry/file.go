package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.trai.ch/zerr"
)

// SpanRecord is one line of a trace file.
type SpanRecord struct {
	Name       string            `json:"name"`
	TraceID    string            `json:"trace_id"`
	SpanID     string            `json:"span_id"`
	ParentID   string            `json:"parent_id,omitempty"`
	Start      time.Time         `json:"start"`
	End        time.Time         `json:"end"`
	Status     string            `json:"status"`
	Error      string            `json:"error,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// FileExporter writes finished spans as JSON lines.
type FileExporter struct {
	mu  sync.Mutex
	enc *json.Encoder
	w   io.Writer
}

func NewFileExporter(w io.Writer) *FileExporter {
	return &FileExporter{enc: json.NewEncoder(w), w: w}
}

func (e *FileExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range spans {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.enc.Encode(record(s)); err != nil {
			return zerr.Wrap(err, "failed to write span")
		}
	}
	return nil
}

// Shutdown closes the underlying writer when it is a Closer.
func (e *FileExporter) Shutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.w.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return zerr.Wrap(err, "failed to close trace file")
		}
	}
	return nil
}

func record(s sdktrace.ReadOnlySpan) SpanRecord {
	r := SpanRecord{
		Name:    s.Name(),
		TraceID: s.SpanContext().TraceID().String(),
		SpanID:  s.SpanContext().SpanID().String(),
		Start:   s.StartTime(),
		End:     s.EndTime(),
		Status:  "ok",
	}
	if p := s.Parent(); p.IsValid() {
		r.ParentID = p.SpanID().String()
	}
	if s.Status().Code == codes.Error {
		r.Status = "error"
		r.Error = s.Status().Description
	}
	if attrs := s.Attributes(); len(attrs) > 0 {
		r.Attributes = make(map[string]string, len(attrs))
		for _, a := range attrs {
			r.Attributes[string(a.Key)] = a.Value.Emit()
		}
	}
	return r
}
