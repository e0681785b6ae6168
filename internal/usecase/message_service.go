package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"group-messaging-service/internal/domain"
)

// appendMaxAttempts はシーケンス番号の採番競合時の再試行回数。
const appendMaxAttempts = 5

// MessageRepository はグループメッセージのデータアクセスのインターフェース。
type MessageRepository interface {
	GetMaxSequence(ctx context.Context, groupID string) (uint64, error)
	Create(ctx context.Context, msg *domain.GroupMessage) error
	FindByGroupID(ctx context.Context, groupID string, afterSequence uint64) ([]*domain.GroupMessage, error)
	FindByClientMessageID(ctx context.Context, clientMessageID string) (*domain.GroupMessage, error)
}

// Notifier は新着メッセージ通知のインターフェース。
type Notifier interface {
	NotifyMessage(ctx context.Context, groupID string, sequence uint64, senderID string) error
}

// MessageService はグループメッセージのビジネスロジックを提供する。
// サーバーは暗号文を復号しない。
type MessageService struct {
	repo      MessageRepository
	directory *DirectoryService
	notifier  Notifier
}

// NewMessageService は新しいMessageServiceを生成する。notifier は nil でもよい。
func NewMessageService(repo MessageRepository, directory *DirectoryService, notifier Notifier) *MessageService {
	return &MessageService{
		repo:      repo,
		directory: directory,
		notifier:  notifier,
	}
}

// AppendGroupMessageInput はメッセージ投稿の入力。
type AppendGroupMessageInput struct {
	GroupID         string
	SenderID        string
	Ciphertexts     map[string][]byte
	ClientMessageID string
}

// AppendGroupMessage はグループに新しいメッセージを追加する。
// ClientMessageID が既に保存済みの場合は既存のメッセージをそのまま返す。
func (s *MessageService) AppendGroupMessage(ctx context.Context, in AppendGroupMessageInput) (*domain.GroupMessage, bool, error) {
	if len(in.Ciphertexts) == 0 {
		return nil, false, domain.ErrEmptyCiphertexts
	}

	if existing, err := s.findDuplicate(ctx, in.ClientMessageID); err != nil || existing != nil {
		return existing, false, err
	}

	msg := &domain.GroupMessage{
		GroupID:         in.GroupID,
		SenderID:        in.SenderID,
		Ciphertexts:     in.Ciphertexts,
		ClientMessageID: in.ClientMessageID,
	}
	if err := s.directory.ensureRecipientsKnown(ctx, msg.Recipients()); err != nil {
		return nil, false, err
	}

	for attempt := 0; attempt < appendMaxAttempts; attempt++ {
		maxSeq, err := s.repo.GetMaxSequence(ctx, in.GroupID)
		if err != nil {
			return nil, false, fmt.Errorf("getting max sequence: %w", err)
		}
		msg.Sequence = maxSeq + 1

		err = s.repo.Create(ctx, msg)
		if err == nil {
			s.notify(ctx, msg)
			return msg, true, nil
		}
		if !errors.Is(err, domain.ErrMessageConflict) {
			return nil, false, fmt.Errorf("creating message: %w", err)
		}

		// 同じクライアントメッセージIDが並行して保存された可能性がある
		if existing, err := s.findDuplicate(ctx, in.ClientMessageID); err != nil || existing != nil {
			return existing, false, err
		}
		slog.WarnContext(ctx, "sequence conflict, retrying",
			"operation", "append_group_message",
			"group_id", in.GroupID,
			"sequence", msg.Sequence,
			"attempt", attempt+1,
		)
	}

	return nil, false, fmt.Errorf("%w: group %s after %d attempts", domain.ErrMessageConflict, in.GroupID, appendMaxAttempts)
}

func (s *MessageService) findDuplicate(ctx context.Context, clientMessageID string) (*domain.GroupMessage, error) {
	if clientMessageID == "" {
		return nil, nil
	}
	existing, err := s.repo.FindByClientMessageID(ctx, clientMessageID)
	if err != nil {
		return nil, fmt.Errorf("finding message by client id: %w", err)
	}
	return existing, nil
}

func (s *MessageService) notify(ctx context.Context, msg *domain.GroupMessage) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyMessage(ctx, msg.GroupID, msg.Sequence, msg.SenderID); err != nil {
		slog.WarnContext(ctx, "failed to publish message notification",
			"operation", "notify_message",
			"group_id", msg.GroupID,
			"sequence", msg.Sequence,
			"error", err,
		)
	}
}

// ListGroupMessages は指定されたグループのメッセージをシーケンス順に返す。
// afterSequence より後のメッセージのみを返す。0 の場合は全件。
func (s *MessageService) ListGroupMessages(ctx context.Context, groupID string, afterSequence uint64) ([]*domain.GroupMessage, error) {
	messages, err := s.repo.FindByGroupID(ctx, groupID, afterSequence)
	if err != nil {
		return nil, fmt.Errorf("finding messages: %w", err)
	}
	return messages, nil
}
