// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"group-messaging-service/internal/domain"
)

// rotateMaxAttempts は楽観ロック競合時の再試行回数。
const rotateMaxAttempts = 3

// UserRepository は公開鍵ディレクトリのデータアクセスのインターフェース。
type UserRepository interface {
	CreateIfAbsent(ctx context.Context, key *domain.PublicKey) (bool, error)
	FindByUserID(ctx context.Context, userID string) (*domain.PublicKey, error)
	FindAll(ctx context.Context, userIDs []string) ([]*domain.PublicKey, error)
	ExistingUserIDs(ctx context.Context, userIDs []string) ([]string, error)
	UpdateKey(ctx context.Context, userID string, key []byte, expectedVersion uint) (bool, error)
}

// DirectoryService は公開鍵ディレクトリのビジネスロジックを提供する。
// 秘密鍵を扱う操作は持たない。
type DirectoryService struct {
	repo UserRepository
}

// NewDirectoryService は新しいDirectoryServiceを生成する。
func NewDirectoryService(repo UserRepository) *DirectoryService {
	return &DirectoryService{repo: repo}
}

// PublishPublicKey は公開鍵を登録する。
// 既に登録済みのユーザーについては何もせず、既存の鍵を更新しない。
func (s *DirectoryService) PublishPublicKey(ctx context.Context, userID string, key []byte) error {
	if len(key) == 0 {
		return domain.ErrInvalidPublicKey
	}

	created, err := s.repo.CreateIfAbsent(ctx, &domain.PublicKey{UserID: userID, Key: key})
	if err != nil {
		return fmt.Errorf("creating public key: %w", err)
	}
	if !created {
		slog.DebugContext(ctx, "public key already published, keeping existing key",
			"operation", "publish_public_key",
			"user_id", userID,
		)
	}
	return nil
}

// GetPublicKey は指定されたユーザーの公開鍵を取得する。
func (s *DirectoryService) GetPublicKey(ctx context.Context, userID string) (*domain.PublicKey, error) {
	key, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("finding public key: %w", err)
	}
	if key == nil {
		return nil, domain.ErrUserNotFound
	}
	return key, nil
}

// ListPublicKeys はユーザーIDから公開鍵へのマップを返す。
// userIDs を指定しない場合は全ユーザーを返す。
func (s *DirectoryService) ListPublicKeys(ctx context.Context, userIDs ...string) (map[string][]byte, error) {
	keys, err := s.repo.FindAll(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("finding public keys: %w", err)
	}

	directory := make(map[string][]byte, len(keys))
	for _, k := range keys {
		directory[k.UserID] = k.Key
	}
	return directory, nil
}

// RotatePublicKey は公開鍵を明示的に置き換え、バージョンを進める。
// 未登録の場合はバージョン1として登録する。同じ鍵への置き換えは何もしない。
func (s *DirectoryService) RotatePublicKey(ctx context.Context, userID string, key []byte) (*domain.PublicKey, error) {
	if len(key) == 0 {
		return nil, domain.ErrInvalidPublicKey
	}

	for attempt := 0; attempt < rotateMaxAttempts; attempt++ {
		current, err := s.repo.FindByUserID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("finding public key: %w", err)
		}

		if current == nil {
			record := &domain.PublicKey{UserID: userID, Key: key}
			created, err := s.repo.CreateIfAbsent(ctx, record)
			if err != nil {
				return nil, fmt.Errorf("creating public key: %w", err)
			}
			if created {
				return record, nil
			}
			// 並行して登録された。読み直して更新する
			continue
		}

		if bytes.Equal(current.Key, key) {
			return current, nil
		}

		updated, err := s.repo.UpdateKey(ctx, userID, key, current.Version)
		if err != nil {
			return nil, fmt.Errorf("updating public key: %w", err)
		}
		if updated {
			current.Key = key
			current.Version++
			return current, nil
		}
	}

	return nil, fmt.Errorf("rotating public key for %s: concurrent updates exceeded %d attempts", userID, rotateMaxAttempts)
}

// ensureRecipientsKnown は宛先が全てディレクトリに登録されていることを確認する。
func (s *DirectoryService) ensureRecipientsKnown(ctx context.Context, recipients []string) error {
	existing, err := s.repo.ExistingUserIDs(ctx, recipients)
	if err != nil {
		return fmt.Errorf("checking recipients: %w", err)
	}
	known := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		known[id] = struct{}{}
	}
	for _, id := range recipients {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownRecipient, id)
		}
	}
	return nil
}
