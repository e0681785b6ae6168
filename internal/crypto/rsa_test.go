package crypto

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	testKeysOnce sync.Once
	testKeys     [2]*KeyPair
)

// loadTestKeys は鍵生成のコストを抑えるため、テスト全体で鍵ペアを共有する。
func loadTestKeys(t *testing.T) (*KeyPair, *KeyPair) {
	t.Helper()
	testKeysOnce.Do(func() {
		for i := range testKeys {
			kp, err := GenerateKeyPair()
			if err != nil {
				panic(err)
			}
			testKeys[i] = kp
		}
	})
	return testKeys[0], testKeys[1]
}

func TestEncryptDecrypt(t *testing.T) {
	alice, _ := loadTestKeys(t)

	ct, err := Encrypt(alice.Public, []byte("hello group"))
	require.NoError(t, err)

	pt, err := Decrypt(alice.Private, ct)
	require.NoError(t, err)
	require.Equal(t, "hello group", string(pt))
}

func TestEncrypt_NonDeterministic(t *testing.T) {
	alice, _ := loadTestKeys(t)

	a, err := Encrypt(alice.Public, []byte("same"))
	require.NoError(t, err)
	b, err := Encrypt(alice.Public, []byte("same"))
	require.NoError(t, err)
	require.False(t, bytes.Equal(a, b))
}

func TestEncrypt_TooLong(t *testing.T) {
	alice, _ := loadTestKeys(t)
	require.Equal(t, 190, MaxPlaintextSize(alice.Public))

	_, err := Encrypt(alice.Public, []byte(strings.Repeat("x", 190)))
	require.NoError(t, err)

	_, err = Encrypt(alice.Public, []byte(strings.Repeat("x", 191)))
	require.ErrorIs(t, err, ErrEncryption)
}

func TestDecrypt_WrongKey(t *testing.T) {
	alice, bob := loadTestKeys(t)

	ct, err := Encrypt(alice.Public, []byte("for alice"))
	require.NoError(t, err)

	_, err = Decrypt(bob.Private, ct)
	require.ErrorIs(t, err, ErrDecryption)

	_, err = Decrypt(alice.Private, []byte("garbage"))
	require.ErrorIs(t, err, ErrDecryption)
}

func TestEncodeDecodeKeys(t *testing.T) {
	alice, _ := loadTestKeys(t)

	pubB64, err := EncodePublicKey(alice.Public)
	require.NoError(t, err)
	pub, err := DecodePublicKey(pubB64)
	require.NoError(t, err)
	require.True(t, alice.Public.Equal(pub))

	privB64, err := EncodePrivateKey(alice.Private)
	require.NoError(t, err)
	priv, err := DecodePrivateKey(privB64)
	require.NoError(t, err)
	require.True(t, alice.Private.Equal(priv))
}

func TestDecodeKeys_Invalid(t *testing.T) {
	_, err := DecodePublicKey("not base64!!")
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = DecodePublicKey("aGVsbG8=")
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = DecodePrivateKey("aGVsbG8=")
	require.ErrorIs(t, err, ErrInvalidKey)
}
