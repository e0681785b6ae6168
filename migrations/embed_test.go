package migrations

import (
	"io/fs"
	"testing"
)

func TestFS(t *testing.T) {
	entries, err := fs.ReadDir(FS, ".")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	want := []string{"001_create_users.sql", "002_create_group_messages.sql"}
	if len(entries) != len(want) {
		t.Fatalf("expected %d files, got %d", len(want), len(entries))
	}
	for i, e := range entries {
		if e.Name() != want[i] {
			t.Errorf("entries[%d]: expected %s, got %s", i, want[i], e.Name())
		}
	}
}
