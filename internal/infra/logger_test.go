package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"group-messaging-service/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"INFO", slog.LevelInfo},
		{"unknown", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLogLevel(tt.in); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTraceHandler_AddsTraceAttributes(t *testing.T) {
	cfg := &config.Config{LogLevel: "INFO", OtelEnabled: true, GoogleCloudProject: "demo-project"}
	var buf bytes.Buffer
	logger := NewLogger(&buf, cfg)

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	logger.InfoContext(ctx, "hello")

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("failed to parse log line: %v", err)
	}
	traceID := span.SpanContext().TraceID().String()
	if record["trace"] != traceID {
		t.Errorf("expected trace=%s, got %v", traceID, record["trace"])
	}
	if record["logging.googleapis.com/trace"] != "projects/demo-project/traces/"+traceID {
		t.Errorf("unexpected cloud logging trace: %v", record["logging.googleapis.com/trace"])
	}
}

func TestTraceHandler_Disabled(t *testing.T) {
	cfg := &config.Config{LogLevel: "INFO"}
	var buf bytes.Buffer
	logger := NewLogger(&buf, cfg)

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	logger.InfoContext(ctx, "hello")

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("failed to parse log line: %v", err)
	}
	if _, ok := record["trace"]; ok {
		t.Error("expected no trace attribute when otel is disabled")
	}
}
