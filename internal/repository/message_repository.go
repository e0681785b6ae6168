package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"group-messaging-service/internal/domain"
)

// GroupMessageModel はgorm用のモデル定義。
type GroupMessageModel struct {
	ID              string                   `gorm:"type:char(36);primaryKey"`
	GroupID         string                   `gorm:"type:varchar(64);not null;uniqueIndex:uk_group_sequence"`
	Sequence        uint64                   `gorm:"not null;uniqueIndex:uk_group_sequence"`
	SenderID        string                   `gorm:"type:varchar(64);not null"`
	ClientMessageID *string                  `gorm:"type:varchar(64);uniqueIndex:uk_client_message_id"`
	CreatedAt       time.Time                `gorm:"not null;autoCreateTime"`
	Ciphertexts     []MessageCiphertextModel `gorm:"foreignKey:MessageID;references:ID"`
}

// TableName はテーブル名を返す。
func (GroupMessageModel) TableName() string {
	return "group_messages"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *GroupMessageModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// MessageCiphertextModel は宛先ごとの暗号文を保持するgorm用のモデル定義。
type MessageCiphertextModel struct {
	MessageID   string `gorm:"type:char(36);primaryKey"`
	RecipientID string `gorm:"type:varchar(64);primaryKey"`
	Ciphertext  []byte `gorm:"not null"`
}

// TableName はテーブル名を返す。
func (MessageCiphertextModel) TableName() string {
	return "message_ciphertexts"
}

func (m *GroupMessageModel) toDomain() *domain.GroupMessage {
	msg := &domain.GroupMessage{
		ID:          m.ID,
		GroupID:     m.GroupID,
		Sequence:    m.Sequence,
		SenderID:    m.SenderID,
		Ciphertexts: make(map[string][]byte, len(m.Ciphertexts)),
		CreatedAt:   m.CreatedAt,
	}
	if m.ClientMessageID != nil {
		msg.ClientMessageID = *m.ClientMessageID
	}
	for _, c := range m.Ciphertexts {
		msg.Ciphertexts[c.RecipientID] = c.Ciphertext
	}
	return msg
}

// MessageRepository はグループメッセージのデータアクセスを提供する。
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository は新しいMessageRepositoryを生成する。
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// GetMaxSequence は指定されたグループの最大シーケンス番号を取得する。
func (r *MessageRepository) GetMaxSequence(ctx context.Context, groupID string) (uint64, error) {
	var maxSeq *uint64
	err := r.db.WithContext(ctx).
		Model(&GroupMessageModel{}).
		Where("group_id = ?", groupID).
		Select("MAX(sequence)").
		Scan(&maxSeq).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to get max sequence",
			"operation", "get_max_sequence",
			"group_id", groupID,
			"error", err,
		)
		return 0, err
	}
	if maxSeq == nil {
		return 0, nil
	}
	return *maxSeq, nil
}

// Create はメッセージと宛先ごとの暗号文を同一トランザクションで保存する。
// シーケンス番号またはクライアントメッセージIDが衝突した場合は domain.ErrMessageConflict を返す。
func (r *MessageRepository) Create(ctx context.Context, msg *domain.GroupMessage) error {
	model := &GroupMessageModel{
		ID:       msg.ID,
		GroupID:  msg.GroupID,
		Sequence: msg.Sequence,
		SenderID: msg.SenderID,
	}
	if model.ID == "" {
		model.ID = uuid.New().String()
	}
	if msg.ClientMessageID != "" {
		clientID := msg.ClientMessageID
		model.ClientMessageID = &clientID
	}
	for recipientID, ciphertext := range msg.Ciphertexts {
		model.Ciphertexts = append(model.Ciphertexts, MessageCiphertextModel{
			MessageID:   model.ID,
			RecipientID: recipientID,
			Ciphertext:  ciphertext,
		})
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrMessageConflict
		}
		slog.ErrorContext(ctx, "failed to create message",
			"operation", "create",
			"group_id", msg.GroupID,
			"sequence", msg.Sequence,
			"error", err,
		)
		return err
	}
	msg.ID = model.ID
	msg.CreatedAt = model.CreatedAt
	return nil
}

// FindByGroupID は指定されたグループのメッセージをシーケンス順に取得する。
// afterSequence より大きいシーケンスのメッセージのみを返す。
func (r *MessageRepository) FindByGroupID(ctx context.Context, groupID string, afterSequence uint64) ([]*domain.GroupMessage, error) {
	var models []GroupMessageModel
	err := r.db.WithContext(ctx).
		Preload("Ciphertexts").
		Where("group_id = ? AND sequence > ?", groupID, afterSequence).
		Order("sequence ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find messages by group_id",
			"operation", "find_by_group_id",
			"group_id", groupID,
			"after_sequence", afterSequence,
			"error", err,
		)
		return nil, err
	}

	messages := make([]*domain.GroupMessage, len(models))
	for i := range models {
		messages[i] = models[i].toDomain()
	}
	return messages, nil
}

// FindByClientMessageID はクライアントメッセージIDでメッセージを取得する。存在しない場合は nil を返す。
func (r *MessageRepository) FindByClientMessageID(ctx context.Context, clientMessageID string) (*domain.GroupMessage, error) {
	var model GroupMessageModel
	err := r.db.WithContext(ctx).
		Preload("Ciphertexts").
		Where("client_message_id = ?", clientMessageID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find message by client_message_id",
			"operation", "find_by_client_message_id",
			"client_message_id", clientMessageID,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}
