package client

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"group-messaging-service/config"
	"group-messaging-service/internal/crypto"
	"group-messaging-service/internal/handler"
	"group-messaging-service/internal/infra"
	"group-messaging-service/internal/keystore"
	"group-messaging-service/internal/repository"
	"group-messaging-service/internal/usecase"
)

var (
	testKeysOnce sync.Once
	testKeys     [3]*crypto.KeyPair
)

// loadTestKeys はテスト全体で使い回す鍵ペアを返す。
func loadTestKeys(t *testing.T) [3]*crypto.KeyPair {
	t.Helper()
	testKeysOnce.Do(func() {
		for i := range testKeys {
			kp, err := crypto.GenerateKeyPair()
			if err != nil {
				panic(err)
			}
			testKeys[i] = kp
		}
	})
	return testKeys
}

func encodePub(t *testing.T, kp *crypto.KeyPair) string {
	t.Helper()
	pub, err := crypto.EncodePublicKey(kp.Public)
	require.NoError(t, err)
	return pub
}

// memoryKeyStore はテスト用のインメモリ鍵ストア。
type memoryKeyStore struct {
	mu   sync.Mutex
	keys map[string]*crypto.KeyPair
}

func newMemoryKeyStore() *memoryKeyStore {
	return &memoryKeyStore{keys: make(map[string]*crypto.KeyPair)}
}

func (m *memoryKeyStore) Load(_ context.Context, userID string) (*crypto.KeyPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kp, ok := m.keys[userID]
	if !ok {
		return nil, keystore.ErrNotFound
	}
	return kp, nil
}

func (m *memoryKeyStore) Save(_ context.Context, userID string, kp *crypto.KeyPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[userID] = kp
	return nil
}

// newTestServer はインメモリSQLiteを使う本物のAPIサーバーを起動する。
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := infra.NewDB(&config.Config{DatabaseDriver: "sqlite", DatabaseURL: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, repository.AutoMigrate(context.Background(), db))

	directory := usecase.NewDirectoryService(repository.NewUserRepository(db))
	messages := usecase.NewMessageService(repository.NewMessageRepository(db), directory, nil)
	router := handler.NewRouter(handler.NewDirectoryHandler(directory), handler.NewMessageHandler(messages), nil)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}
