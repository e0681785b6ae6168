package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestWriteAuditLog(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	before := testutil.ToFloat64(operationsTotal.WithLabelValues("PUBLISH_PUBLIC_KEY", ResultSuccess))

	WriteAuditLog(context.Background(), AuditLog{
		Operation: "PUBLISH_PUBLIC_KEY",
		UserID:    "alice",
		Result:    ResultSuccess,
	})

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("failed to parse log line: %v", err)
	}
	if record["operation"] != "PUBLISH_PUBLIC_KEY" {
		t.Errorf("expected operation=PUBLISH_PUBLIC_KEY, got %v", record["operation"])
	}
	if record["user_id"] != "alice" {
		t.Errorf("expected user_id=alice, got %v", record["user_id"])
	}
	if record["timestamp"] == "" {
		t.Error("expected timestamp to be set")
	}

	after := testutil.ToFloat64(operationsTotal.WithLabelValues("PUBLISH_PUBLIC_KEY", ResultSuccess))
	if after != before+1 {
		t.Errorf("expected counter to increase by 1, got %v -> %v", before, after)
	}
}
