package repository

import (
	"context"

	"gorm.io/gorm"
)

// AutoMigrate はモデル定義からテーブルを作成・更新する。
// 開発環境とテスト用。本番は migrations のSQLを groupctl migrate up で適用する。
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(
		&UserModel{},
		&GroupMessageModel{},
		&MessageCiphertextModel{},
	)
}
