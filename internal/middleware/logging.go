// Package middleware はHTTPミドルウェアと監査ログを提供する。
package middleware

import (
	"context"
	"log/slog"
	"time"
)

// 監査ログの結果。
const (
	ResultSuccess = "SUCCESS"
	ResultFailed  = "FAILED"
)

// AuditLog は監査ログの構造体。
type AuditLog struct {
	Operation string `json:"operation"`
	UserID    string `json:"user_id,omitempty"`
	GroupID   string `json:"group_id,omitempty"`
	Result    string `json:"result"`
	Timestamp string `json:"timestamp"`
}

// WriteAuditLog は監査ログを出力し、操作メトリクスを記録する。
func WriteAuditLog(ctx context.Context, entry AuditLog) {
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	operationsTotal.WithLabelValues(entry.Operation, entry.Result).Inc()

	slog.InfoContext(ctx, "group messaging operation completed",
		"operation", entry.Operation,
		"user_id", entry.UserID,
		"group_id", entry.GroupID,
		"result", entry.Result,
		"timestamp", entry.Timestamp,
	)
}
