package repository

import (
	"context"
	"testing"
)

func TestMigrationRepository(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewMigrationRepository(db)

	// 既にテーブルがあっても失敗しない
	if err := repo.EnsureHistoryTable(ctx); err != nil {
		t.Fatalf("EnsureHistoryTable failed: %v", err)
	}

	applied, err := repo.IsMigrationApplied(ctx, "001")
	if err != nil {
		t.Fatalf("IsMigrationApplied failed: %v", err)
	}
	if applied {
		t.Error("expected 001 to be pending")
	}

	for _, v := range []string{"002", "001"} {
		if err := db.Create(&SchemaMigrationModel{Version: v}).Error; err != nil {
			t.Fatalf("failed to insert history: %v", err)
		}
	}

	applied, err = repo.IsMigrationApplied(ctx, "001")
	if err != nil {
		t.Fatalf("IsMigrationApplied failed: %v", err)
	}
	if !applied {
		t.Error("expected 001 to be applied")
	}

	migrations, err := repo.FindAllApplied(ctx)
	if err != nil {
		t.Fatalf("FindAllApplied failed: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != "001" || migrations[1].Version != "002" {
		t.Errorf("expected versions in order, got %s, %s", migrations[0].Version, migrations[1].Version)
	}
	if migrations[0].AppliedAt == migrations[1].AppliedAt {
		t.Error("expected distinct AppliedAt pointers")
	}
}
