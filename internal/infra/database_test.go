package infra

import (
	"testing"

	"group-messaging-service/config"
)

func TestNewDB_SQLite(t *testing.T) {
	db, err := NewDB(&config.Config{DatabaseDriver: "sqlite", DatabaseURL: ":memory:"})
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	if err := db.Exec("SELECT 1").Error; err != nil {
		t.Errorf("expected working connection, got %v", err)
	}
}

func TestNewDB_UnsupportedDriver(t *testing.T) {
	if _, err := NewDB(&config.Config{DatabaseDriver: "oracle"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestGroupChannel(t *testing.T) {
	if got := GroupChannel("group1"); got != "group:notify:group1" {
		t.Errorf("unexpected channel: %s", got)
	}
}
