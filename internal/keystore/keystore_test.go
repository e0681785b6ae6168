package keystore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"group-messaging-service/internal/crypto"
)

var (
	testKeyOnce sync.Once
	testKey     *crypto.KeyPair
)

func loadTestKey(t *testing.T) *crypto.KeyPair {
	t.Helper()
	testKeyOnce.Do(func() {
		kp, err := crypto.GenerateKeyPair()
		if err != nil {
			panic(err)
		}
		testKey = kp
	})
	return testKey
}

// fastSealer はテスト用にscryptのコストを下げたPassphraseSealerを返す。
func fastSealer(t *testing.T, passphrase string) *PassphraseSealer {
	t.Helper()
	s, err := NewPassphraseSealer(passphrase)
	require.NoError(t, err)
	s.n = 1 << 10
	return s
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "keys.db")
	kp := loadTestKey(t)

	store, err := Open(path, fastSealer(t, "secret"))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "alice", kp))
	require.NoError(t, store.Close())

	// 開き直しても読める
	store, err = Open(path, fastSealer(t, "secret"))
	require.NoError(t, err)
	defer store.Close()

	loaded, err := store.Load(ctx, "alice")
	require.NoError(t, err)
	require.True(t, kp.Private.Equal(loaded.Private))
	require.True(t, kp.Public.Equal(loaded.Public))

	users, err := store.Users()
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, users)
}

func TestStore_LoadNotFound(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "keys.db"), fastSealer(t, "secret"))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load(context.Background(), "nobody")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_WrongPassphrase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "keys.db")

	store, err := Open(path, fastSealer(t, "secret"))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "alice", loadTestKey(t)))
	require.NoError(t, store.Close())

	store, err = Open(path, fastSealer(t, "other"))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load(ctx, "alice")
	require.ErrorIs(t, err, ErrWrongPassphrase)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	store, err := Open(filepath.Join(t.TempDir(), "keys.db"), fastSealer(t, "secret"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(ctx, "alice", loadTestKey(t)))
	require.NoError(t, store.Delete("alice"))
	require.NoError(t, store.Delete("alice"))

	_, err = store.Load(ctx, "alice")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPassphraseSealer(t *testing.T) {
	ctx := context.Background()
	s := fastSealer(t, "secret")

	a, err := s.Encrypt(ctx, []byte("private"))
	require.NoError(t, err)
	b, err := s.Encrypt(ctx, []byte("private"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	pt, err := s.Decrypt(ctx, a)
	require.NoError(t, err)
	require.Equal(t, []byte("private"), pt)

	a[len(a)-1] ^= 0xff
	_, err = s.Decrypt(ctx, a)
	require.ErrorIs(t, err, ErrWrongPassphrase)

	_, err = s.Decrypt(ctx, []byte("short"))
	require.ErrorIs(t, err, ErrWrongPassphrase)

	_, err = NewPassphraseSealer("")
	require.Error(t, err)
}
