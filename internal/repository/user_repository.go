// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"group-messaging-service/internal/domain"
)

// UserModel はgorm用のモデル定義。
type UserModel struct {
	UserID    string    `gorm:"type:varchar(64);primaryKey"`
	PublicKey []byte    `gorm:"not null"`
	Version   uint      `gorm:"not null;default:1"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (UserModel) TableName() string {
	return "users"
}

func (u *UserModel) toDomain() *domain.PublicKey {
	return &domain.PublicKey{
		UserID:    u.UserID,
		Key:       u.PublicKey,
		Version:   u.Version,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// UserRepository は公開鍵ディレクトリのデータアクセスを提供する。
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository は新しいUserRepositoryを生成する。
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// CreateIfAbsent は公開鍵が未登録の場合のみ保存する。
// 既に登録済みの場合は何もせず created=false を返す。
func (r *UserRepository) CreateIfAbsent(ctx context.Context, key *domain.PublicKey) (bool, error) {
	model := &UserModel{
		UserID:    key.UserID,
		PublicKey: key.Key,
		Version:   1,
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model)
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to create user",
			"operation", "create_if_absent",
			"user_id", key.UserID,
			"error", result.Error,
		)
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	key.Version = model.Version
	key.CreatedAt = model.CreatedAt
	key.UpdatedAt = model.UpdatedAt
	return true, nil
}

// FindByUserID は指定されたユーザーの公開鍵を取得する。存在しない場合は nil を返す。
func (r *UserRepository) FindByUserID(ctx context.Context, userID string) (*domain.PublicKey, error) {
	var model UserModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find user",
			"operation", "find_by_user_id",
			"user_id", userID,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindAll は登録済みの全ユーザーの公開鍵をユーザーID順に取得する。
// userIDs が指定された場合はそのユーザーに限定する。
func (r *UserRepository) FindAll(ctx context.Context, userIDs []string) ([]*domain.PublicKey, error) {
	var models []UserModel
	q := r.db.WithContext(ctx).Order("user_id ASC")
	if len(userIDs) > 0 {
		q = q.Where("user_id IN ?", userIDs)
	}
	if err := q.Find(&models).Error; err != nil {
		slog.ErrorContext(ctx, "failed to find users",
			"operation", "find_all",
			"filter_count", len(userIDs),
			"error", err,
		)
		return nil, err
	}

	keys := make([]*domain.PublicKey, len(models))
	for i := range models {
		keys[i] = models[i].toDomain()
	}
	return keys, nil
}

// ExistingUserIDs は指定されたIDのうち登録済みのものを返す。
func (r *UserRepository) ExistingUserIDs(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("user_id IN ?", userIDs).
		Pluck("user_id", &ids).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to pluck existing user ids",
			"operation", "existing_user_ids",
			"filter_count", len(userIDs),
			"error", err,
		)
		return nil, err
	}
	return ids, nil
}

// UpdateKey は現在のバージョンが expectedVersion と一致する場合に限り公開鍵を置き換え、
// バージョンを1つ進める。一致しなかった場合は updated=false を返す。
func (r *UserRepository) UpdateKey(ctx context.Context, userID string, key []byte, expectedVersion uint) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("user_id = ? AND version = ?", userID, expectedVersion).
		Updates(map[string]interface{}{
			"public_key": key,
			"version":    expectedVersion + 1,
		})
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to update public key",
			"operation", "update_key",
			"user_id", userID,
			"version", expectedVersion,
			"error", result.Error,
		)
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
