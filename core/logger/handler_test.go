package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestHandler(t *testing.T, format logFormat) (*structuredHandler, *syncBuffer) {
	t.Helper()
	buf := &syncBuffer{}
	writer := newAsyncWriter([]io.Writer{buf}, 1024)
	t.Cleanup(func() { _ = writer.Close() })
	h := newStructuredHandler(handlerConfig{
		level:  slog.LevelDebug,
		writer: writer,
		format: format,
	})
	return h, buf
}

func emit(t *testing.T, h *structuredHandler, ctx context.Context, attrs ...slog.Attr) string {
	t.Helper()
	rec := slog.NewRecord(time.Date(2025, 1, 2, 3, 4, 5, 678000000, time.UTC), slog.LevelInfo, "test_event", 0)
	rec.AddAttrs(attrs...)
	if err := h.Handle(ctx, rec); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := h.cfg.writer.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	return ""
}

func TestKVLineRespectsKeyOrder(t *testing.T) {
	h, buf := newTestHandler(t, formatKV)
	emit(t, h, context.Background(),
		slog.String("component", "tg"),
		slog.String("status", "ok"),
		slog.Int("user_id", 42),
	)
	line := strings.TrimSpace(buf.String())
	tsIdx := strings.Index(line, "ts=")
	levelIdx := strings.Index(line, "level=")
	compIdx := strings.Index(line, "component=")
	eventIdx := strings.Index(line, "event=")
	statusIdx := strings.Index(line, "status=")
	if tsIdx != 0 {
		t.Fatalf("expected line to start with ts=, got %q", line)
	}
	if !(levelIdx > tsIdx && compIdx > levelIdx && eventIdx > compIdx && statusIdx > eventIdx) {
		t.Fatalf("unexpected key order in %q", line)
	}
}

func TestJSONLineRespectsKeyOrder(t *testing.T) {
	h, buf := newTestHandler(t, formatJSON)
	emit(t, h, context.Background(),
		slog.String("component", "db"),
		slog.String("status", "ok"),
	)
	line := strings.TrimSpace(buf.String())
	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("invalid json %q: %v", line, err)
	}
	if decoded["component"] != "db" {
		t.Fatalf("component mismatch: %v", decoded["component"])
	}
	tsIdx := strings.Index(line, `"ts"`)
	levelIdx := strings.Index(line, `"level"`)
	compIdx := strings.Index(line, `"component"`)
	if !(tsIdx >= 0 && levelIdx > tsIdx && compIdx > levelIdx) {
		t.Fatalf("unexpected key order in %q", line)
	}
}

func TestKVLineCompactsRID(t *testing.T) {
	h, buf := newTestHandler(t, formatKV)
	ctx := WithRID(context.Background(), "100:200:300")
	emit(t, h, ctx)
	line := strings.TrimSpace(buf.String())
	want := "rid=" + CompactRID("100:200:300")
	if !strings.Contains(line, want) {
		t.Fatalf("expected %q in %q", want, line)
	}
	if strings.Contains(line, "rid_full=") {
		t.Fatalf("kv output must not carry rid_full: %q", line)
	}
}

func TestJSONLineKeepsFullRID(t *testing.T) {
	h, buf := newTestHandler(t, formatJSON)
	ctx := WithRID(context.Background(), "100:200:300")
	emit(t, h, ctx)
	line := strings.TrimSpace(buf.String())
	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("invalid json %q: %v", line, err)
	}
	if decoded["rid"] != CompactRID("100:200:300") {
		t.Fatalf("rid mismatch: %v", decoded["rid"])
	}
	if decoded["rid_full"] != "100:200:300" {
		t.Fatalf("rid_full mismatch: %v", decoded["rid_full"])
	}
}
