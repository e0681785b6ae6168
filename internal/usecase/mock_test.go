package usecase

import (
	"context"
	"sort"
	"time"

	"group-messaging-service/internal/domain"
)

// mockUserRepository はテスト用のインメモリリポジトリ。
type mockUserRepository struct {
	users      map[string]*domain.PublicKey
	createErr  error
	findErr    error
	findAllErr error
	updateErr  error
	// staleUpdates は UpdateKey を指定回数だけ競合として扱う
	staleUpdates int
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{users: make(map[string]*domain.PublicKey)}
}

func (m *mockUserRepository) CreateIfAbsent(ctx context.Context, key *domain.PublicKey) (bool, error) {
	if m.createErr != nil {
		return false, m.createErr
	}
	if _, ok := m.users[key.UserID]; ok {
		return false, nil
	}
	now := time.Now()
	key.Version = 1
	key.CreatedAt = now
	key.UpdatedAt = now
	stored := *key
	m.users[key.UserID] = &stored
	return true, nil
}

func (m *mockUserRepository) FindByUserID(ctx context.Context, userID string) (*domain.PublicKey, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	key, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	copied := *key
	return &copied, nil
}

func (m *mockUserRepository) FindAll(ctx context.Context, userIDs []string) ([]*domain.PublicKey, error) {
	if m.findAllErr != nil {
		return nil, m.findAllErr
	}
	filter := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		filter[id] = true
	}
	var keys []*domain.PublicKey
	for id, key := range m.users {
		if len(filter) > 0 && !filter[id] {
			continue
		}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].UserID < keys[j].UserID })
	return keys, nil
}

func (m *mockUserRepository) ExistingUserIDs(ctx context.Context, userIDs []string) ([]string, error) {
	var ids []string
	for _, id := range userIDs {
		if _, ok := m.users[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *mockUserRepository) UpdateKey(ctx context.Context, userID string, key []byte, expectedVersion uint) (bool, error) {
	if m.updateErr != nil {
		return false, m.updateErr
	}
	if m.staleUpdates > 0 {
		m.staleUpdates--
		return false, nil
	}
	current, ok := m.users[userID]
	if !ok || current.Version != expectedVersion {
		return false, nil
	}
	current.Key = key
	current.Version++
	return true, nil
}

// mockMessageRepository はテスト用のインメモリリポジトリ。
type mockMessageRepository struct {
	messages []*domain.GroupMessage
	// conflicts は Create を指定回数だけ競合として扱う
	conflicts int
	// onConflict は競合を返す直前に呼ばれる
	onConflict func()
	createErr  error
	maxSeqErr  error
}

func (m *mockMessageRepository) GetMaxSequence(ctx context.Context, groupID string) (uint64, error) {
	if m.maxSeqErr != nil {
		return 0, m.maxSeqErr
	}
	var maxSeq uint64
	for _, msg := range m.messages {
		if msg.GroupID == groupID && msg.Sequence > maxSeq {
			maxSeq = msg.Sequence
		}
	}
	return maxSeq, nil
}

func (m *mockMessageRepository) Create(ctx context.Context, msg *domain.GroupMessage) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.conflicts > 0 {
		m.conflicts--
		if m.onConflict != nil {
			m.onConflict()
		}
		return domain.ErrMessageConflict
	}
	msg.ID = "msg-" + time.Now().Format("150405.000000000")
	msg.CreatedAt = time.Now()
	stored := *msg
	m.messages = append(m.messages, &stored)
	return nil
}

func (m *mockMessageRepository) FindByGroupID(ctx context.Context, groupID string, afterSequence uint64) ([]*domain.GroupMessage, error) {
	var result []*domain.GroupMessage
	for _, msg := range m.messages {
		if msg.GroupID == groupID && msg.Sequence > afterSequence {
			result = append(result, msg)
		}
	}
	return result, nil
}

func (m *mockMessageRepository) FindByClientMessageID(ctx context.Context, clientMessageID string) (*domain.GroupMessage, error) {
	for _, msg := range m.messages {
		if msg.ClientMessageID == clientMessageID {
			return msg, nil
		}
	}
	return nil, nil
}

// mockNotifier はテスト用の通知先。
type mockNotifier struct {
	notified []uint64
	err      error
}

func (m *mockNotifier) NotifyMessage(ctx context.Context, groupID string, sequence uint64, senderID string) error {
	m.notified = append(m.notified, sequence)
	return m.err
}
