package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"group-messaging-service/internal/domain"
)

func setupMessageService(t *testing.T, users ...string) (*MessageService, *mockMessageRepository, *mockNotifier) {
	t.Helper()
	directory := NewDirectoryService(newMockUserRepository())
	for _, id := range users {
		if err := directory.PublishPublicKey(context.Background(), id, []byte("pk-"+id)); err != nil {
			t.Fatalf("PublishPublicKey failed: %v", err)
		}
	}
	repo := &mockMessageRepository{}
	notifier := &mockNotifier{}
	return NewMessageService(repo, directory, notifier), repo, notifier
}

func bundle(ids ...string) map[string][]byte {
	m := make(map[string][]byte, len(ids))
	for _, id := range ids {
		m[id] = []byte("ct-" + id)
	}
	return m
}

func TestAppendGroupMessage_Success(t *testing.T) {
	service, _, notifier := setupMessageService(t, "alice", "bob")

	msg, created, err := service.AppendGroupMessage(context.Background(), AppendGroupMessageInput{
		GroupID:     "group1",
		SenderID:    "alice",
		Ciphertexts: bundle("alice", "bob"),
	})
	if err != nil {
		t.Fatalf("AppendGroupMessage failed: %v", err)
	}
	if !created {
		t.Error("expected created=true")
	}
	if msg.Sequence != 1 {
		t.Errorf("expected sequence=1, got %d", msg.Sequence)
	}
	if len(notifier.notified) != 1 || notifier.notified[0] != 1 {
		t.Errorf("expected one notification for sequence 1, got %v", notifier.notified)
	}
}

func TestAppendGroupMessage_PreservesCallOrder(t *testing.T) {
	ctx := context.Background()
	service, _, _ := setupMessageService(t, "alice", "bob")

	const n = 5
	for i := 0; i < n; i++ {
		sender := "alice"
		if i%2 == 1 {
			sender = "bob"
		}
		if _, _, err := service.AppendGroupMessage(ctx, AppendGroupMessageInput{
			GroupID:     "group1",
			SenderID:    sender,
			Ciphertexts: bundle("alice", "bob"),
		}); err != nil {
			t.Fatalf("AppendGroupMessage failed: %v", err)
		}
	}

	messages, err := service.ListGroupMessages(ctx, "group1", 0)
	if err != nil {
		t.Fatalf("ListGroupMessages failed: %v", err)
	}
	if len(messages) != n {
		t.Fatalf("expected %d messages, got %d", n, len(messages))
	}
	for i, m := range messages {
		if m.Sequence != uint64(i+1) {
			t.Errorf("messages[%d]: expected sequence=%d, got %d", i, i+1, m.Sequence)
		}
	}

	after, err := service.ListGroupMessages(ctx, "group1", 3)
	if err != nil {
		t.Fatalf("ListGroupMessages failed: %v", err)
	}
	if len(after) != 2 {
		t.Errorf("expected 2 messages after sequence 3, got %d", len(after))
	}
}

func TestAppendGroupMessage_EmptyCiphertexts(t *testing.T) {
	service, _, _ := setupMessageService(t, "alice")

	_, _, err := service.AppendGroupMessage(context.Background(), AppendGroupMessageInput{
		GroupID:  "group1",
		SenderID: "alice",
	})
	if !errors.Is(err, domain.ErrEmptyCiphertexts) {
		t.Errorf("expected ErrEmptyCiphertexts, got %v", err)
	}
}

func TestAppendGroupMessage_UnknownRecipient(t *testing.T) {
	service, repo, _ := setupMessageService(t, "alice")

	_, _, err := service.AppendGroupMessage(context.Background(), AppendGroupMessageInput{
		GroupID:     "group1",
		SenderID:    "alice",
		Ciphertexts: bundle("alice", "mallory"),
	})
	if !errors.Is(err, domain.ErrUnknownRecipient) {
		t.Errorf("expected ErrUnknownRecipient, got %v", err)
	}
	if len(repo.messages) != 0 {
		t.Errorf("expected nothing stored, got %d messages", len(repo.messages))
	}
}

func TestAppendGroupMessage_Dedup(t *testing.T) {
	ctx := context.Background()
	service, repo, notifier := setupMessageService(t, "alice", "bob")
	in := AppendGroupMessageInput{
		GroupID:         "group1",
		SenderID:        "alice",
		Ciphertexts:     bundle("alice", "bob"),
		ClientMessageID: "client-1",
	}

	first, created, err := service.AppendGroupMessage(ctx, in)
	if err != nil || !created {
		t.Fatalf("first append: created=%v err=%v", created, err)
	}
	second, created, err := service.AppendGroupMessage(ctx, in)
	if err != nil {
		t.Fatalf("second append failed: %v", err)
	}
	if created {
		t.Error("expected duplicate to be deduplicated")
	}
	if second.Sequence != first.Sequence {
		t.Errorf("expected same sequence %d, got %d", first.Sequence, second.Sequence)
	}
	if len(repo.messages) != 1 {
		t.Errorf("expected 1 stored message, got %d", len(repo.messages))
	}
	if len(notifier.notified) != 1 {
		t.Errorf("expected 1 notification, got %d", len(notifier.notified))
	}
}

func TestAppendGroupMessage_RetriesSequenceConflict(t *testing.T) {
	service, repo, _ := setupMessageService(t, "alice")
	repo.conflicts = 2

	msg, created, err := service.AppendGroupMessage(context.Background(), AppendGroupMessageInput{
		GroupID:     "group1",
		SenderID:    "alice",
		Ciphertexts: bundle("alice"),
	})
	if err != nil {
		t.Fatalf("AppendGroupMessage failed: %v", err)
	}
	if !created || msg.Sequence != 1 {
		t.Errorf("expected created message with sequence 1, got created=%v seq=%d", created, msg.Sequence)
	}
}

func TestAppendGroupMessage_ConflictFromConcurrentDuplicate(t *testing.T) {
	service, repo, _ := setupMessageService(t, "alice")
	// 競合の直前に同じクライアントIDのメッセージが別経路で保存される
	repo.conflicts = 1
	repo.onConflict = func() {
		repo.messages = append(repo.messages, &domain.GroupMessage{
			ID: "other", GroupID: "group1", Sequence: 1, SenderID: "alice", ClientMessageID: "client-1",
		})
	}

	msg, created, err := service.AppendGroupMessage(context.Background(), AppendGroupMessageInput{
		GroupID:         "group1",
		SenderID:        "alice",
		Ciphertexts:     bundle("alice"),
		ClientMessageID: "client-1",
	})
	if err != nil {
		t.Fatalf("AppendGroupMessage failed: %v", err)
	}
	if created {
		t.Error("expected existing message to be returned")
	}
	if msg.ID != "other" {
		t.Errorf("expected id=other, got %s", msg.ID)
	}
}

func TestAppendGroupMessage_ConflictExhausted(t *testing.T) {
	service, repo, _ := setupMessageService(t, "alice")
	repo.conflicts = appendMaxAttempts

	_, _, err := service.AppendGroupMessage(context.Background(), AppendGroupMessageInput{
		GroupID:     "group1",
		SenderID:    "alice",
		Ciphertexts: bundle("alice"),
	})
	if !errors.Is(err, domain.ErrMessageConflict) {
		t.Errorf("expected ErrMessageConflict, got %v", err)
	}
}

func TestAppendGroupMessage_NotifierFailureIgnored(t *testing.T) {
	service, _, notifier := setupMessageService(t, "alice")
	notifier.err = fmt.Errorf("redis down")

	_, created, err := service.AppendGroupMessage(context.Background(), AppendGroupMessageInput{
		GroupID:     "group1",
		SenderID:    "alice",
		Ciphertexts: bundle("alice"),
	})
	if err != nil || !created {
		t.Errorf("expected append to succeed despite notifier failure, created=%v err=%v", created, err)
	}
}

func TestListGroupMessages_EmptyGroup(t *testing.T) {
	service, _, _ := setupMessageService(t)

	messages, err := service.ListGroupMessages(context.Background(), "nobody-here", 0)
	if err != nil {
		t.Fatalf("ListGroupMessages failed: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("expected no messages, got %d", len(messages))
	}
}
