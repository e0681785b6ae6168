package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"group-messaging-service/internal/crypto"
	"group-messaging-service/internal/keystore"
	"group-messaging-service/pkg/api"
)

var (
	// ErrNotLoggedIn はログイン前に操作した場合のエラー。
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrAlreadyLoggedIn はログイン中に再度ログインした場合のエラー。
	ErrAlreadyLoggedIn = errors.New("already logged in")

	// ErrEmptyUserID はユーザーIDが空の場合のエラー。
	ErrEmptyUserID = errors.New("user ID must not be empty")

	// ErrEmptyMessage は送信するメッセージが空の場合のエラー。
	ErrEmptyMessage = errors.New("message must not be empty")

	// ErrOwnKeyMissing は自分の公開鍵がディレクトリに見つからない場合のエラー。
	ErrOwnKeyMissing = errors.New("own public key is missing from the directory")

	// ErrNothingToSend は暗号化できた宛先が一件もない場合のエラー。
	ErrNothingToSend = errors.New("no recipient could be encrypted for")
)

// State はセッションの状態。
type State int

const (
	// LoggedOut はログイン前の状態。
	LoggedOut State = iota
	// LoggedIn は鍵ペアを保持し、送受信できる状態。
	LoggedIn
)

func (s State) String() string {
	switch s {
	case LoggedIn:
		return "LoggedIn"
	default:
		return "LoggedOut"
	}
}

// Server はセッションが使うサーバーAPI。*APIClient が実装する。
type Server interface {
	PublishPublicKey(ctx context.Context, userID, publicKey string) error
	RotatePublicKey(ctx context.Context, userID, publicKey string) (*api.PublicKeyResponse, error)
	GetPublicKey(ctx context.Context, userID string) (*api.PublicKeyResponse, error)
	ListPublicKeys(ctx context.Context, userIDs ...string) (map[string]string, error)
	AppendGroupMessage(ctx context.Context, groupID, senderID string, ciphertexts map[string][]byte) (*api.MessageResponse, error)
	ListGroupMessages(ctx context.Context, groupID string, afterSequence uint64) ([]api.MessageResponse, error)
}

// KeyStore はローカルの鍵ペアの保存先。*keystore.Store が実装する。
// 鍵ペアが存在しない場合、Load は keystore.ErrNotFound を返す。
type KeyStore interface {
	Load(ctx context.Context, userID string) (*crypto.KeyPair, error)
	Save(ctx context.Context, userID string, kp *crypto.KeyPair) error
}

// Session は1ユーザーとして1つのグループに参加するクライアントセッション。
// 操作はミューテックスで直列化され、同時に実行されるのは1つだけ。
type Session struct {
	mu sync.Mutex

	server      Server
	keys        KeyStore
	groupID     string
	fanOutLimit int

	state     State
	userID    string
	keyPair   *crypto.KeyPair
	publicKey string
	directory map[string]string
	messages  []DisplayMessage
	lastSeq   uint64
}

// SessionOption はSessionの設定を変更する。
type SessionOption func(*Session)

// WithFanOutLimit は同時に暗号化する宛先数の上限を設定する。
func WithFanOutLimit(n int) SessionOption {
	return func(s *Session) { s.fanOutLimit = n }
}

// NewSession は新しいSessionを LoggedOut 状態で生成する。
func NewSession(server Server, keys KeyStore, groupID string, opts ...SessionOption) *Session {
	s := &Session{
		server:      server,
		keys:        keys,
		groupID:     groupID,
		fanOutLimit: DefaultFanOutLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State は現在の状態を返す。
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UserID はログイン中のユーザーIDを返す。
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// PublicKey はログイン中のユーザーの公開鍵(Base64)を返す。
func (s *Session) PublicKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publicKey
}

// Login は鍵ペアを用意して公開鍵を登録し、ディレクトリとメッセージを取得する。
// ローカルに鍵ペアがなければ生成して保存する。
// ディレクトリに別の鍵が登録されている場合は自分の鍵に置き換える。
func (s *Session) Login(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == LoggedIn {
		return ErrAlreadyLoggedIn
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrEmptyUserID
	}

	kp, err := s.loadOrGenerate(ctx, userID)
	if err != nil {
		return err
	}
	pub, err := crypto.EncodePublicKey(kp.Public)
	if err != nil {
		return err
	}

	if err := s.server.PublishPublicKey(ctx, userID, pub); err != nil {
		return fmt.Errorf("publishing public key: %w", err)
	}
	if err := s.ensureCurrentKey(ctx, userID, pub); err != nil {
		return err
	}

	s.userID = userID
	s.keyPair = kp
	s.publicKey = pub
	s.state = LoggedIn
	slog.InfoContext(ctx, "logged in",
		"operation", "login",
		"user_id", userID,
		"group_id", s.groupID,
	)

	if err := s.refresh(ctx); err != nil {
		// 鍵は登録済みなのでログイン状態は維持し、取得は Refresh で再試行できる
		return fmt.Errorf("initial refresh: %w", err)
	}
	return nil
}

func (s *Session) loadOrGenerate(ctx context.Context, userID string) (*crypto.KeyPair, error) {
	kp, err := s.keys.Load(ctx, userID)
	if err == nil {
		return kp, nil
	}
	if !errors.Is(err, keystore.ErrNotFound) {
		return nil, fmt.Errorf("loading key pair: %w", err)
	}

	kp, err = crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	if err := s.keys.Save(ctx, userID, kp); err != nil {
		return nil, fmt.Errorf("saving key pair: %w", err)
	}
	return kp, nil
}

// ensureCurrentKey はディレクトリの鍵が手元の鍵と一致しない場合にローテーションする。
func (s *Session) ensureCurrentKey(ctx context.Context, userID, pub string) error {
	current, err := s.server.GetPublicKey(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetching own public key: %w", err)
	}
	if current.PublicKey == pub {
		return nil
	}

	slog.WarnContext(ctx, "directory holds a stale public key, rotating",
		"operation", "login",
		"user_id", userID,
		"version", current.Version,
	)
	if _, err := s.server.RotatePublicKey(ctx, userID, pub); err != nil {
		return fmt.Errorf("rotating public key: %w", err)
	}
	return nil
}

// Send はメッセージをディレクトリの全ユーザー宛てに暗号化して投稿する。
// 全宛先の暗号化が終わってから1回だけ投稿する。
func (s *Session) Send(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != LoggedIn {
		return ErrNotLoggedIn
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	directory, err := s.server.ListPublicKeys(ctx)
	if err != nil {
		return fmt.Errorf("fetching directory: %w", err)
	}
	s.directory = directory
	if directory[s.userID] == "" {
		return ErrOwnKeyMissing
	}

	ciphertexts, err := fanOut(ctx, []byte(text), directory, s.fanOutLimit)
	if err != nil {
		return err
	}
	if len(ciphertexts) == 0 {
		return ErrNothingToSend
	}

	msg, err := s.server.AppendGroupMessage(ctx, s.groupID, s.userID, ciphertexts)
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	slog.DebugContext(ctx, "message sent",
		"operation", "send",
		"group_id", s.groupID,
		"sequence", msg.Sequence,
		"recipients", len(ciphertexts),
	)

	return s.refresh(ctx)
}

// Refresh はディレクトリと新着メッセージを取得する。
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != LoggedIn {
		return ErrNotLoggedIn
	}
	return s.refresh(ctx)
}

func (s *Session) refresh(ctx context.Context) error {
	directory, err := s.server.ListPublicKeys(ctx)
	if err != nil {
		return fmt.Errorf("fetching directory: %w", err)
	}
	s.directory = directory

	messages, err := s.server.ListGroupMessages(ctx, s.groupID, s.lastSeq)
	if err != nil {
		return fmt.Errorf("fetching messages: %w", err)
	}
	s.messages = append(s.messages, ReadMessages(messages, s.userID, s.keyPair.Private)...)
	for _, m := range messages {
		if m.Sequence > s.lastSeq {
			s.lastSeq = m.Sequence
		}
	}
	return nil
}

// Logout は鍵とキャッシュを破棄して LoggedOut 状態に戻る。
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = LoggedOut
	s.userID = ""
	s.keyPair = nil
	s.publicKey = ""
	s.directory = nil
	s.messages = nil
	s.lastSeq = 0
}

// Messages は復号済みのメッセージをシーケンス順に返す。
func (s *Session) Messages() []DisplayMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DisplayMessage(nil), s.messages...)
}

// Directory は最後に取得した公開鍵ディレクトリを返す。
func (s *Session) Directory() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.directory))
	for k, v := range s.directory {
		out[k] = v
	}
	return out
}
