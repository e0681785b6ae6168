package keystore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// Sealer は保存前の秘密鍵を暗号化するインターフェース。
// infra.KMSClient もこのインターフェースを満たす。
type Sealer interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// scryptのパラメータ
const (
	scryptN   = 1 << 15
	scryptR   = 8
	scryptP   = 1
	saltSize  = 16
	keyLength = chacha20poly1305.KeySize
)

// ErrWrongPassphrase はパスフレーズが一致しない、またはデータが改ざんされている場合のエラー。
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted data")

// PassphraseSealer はパスフレーズから導出した鍵でXChaCha20-Poly1305暗号化を行う。
// 出力形式は salt || nonce || ciphertext。
type PassphraseSealer struct {
	passphrase []byte
	n          int
}

// NewPassphraseSealer は新しいPassphraseSealerを生成する。
func NewPassphraseSealer(passphrase string) (*PassphraseSealer, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase must not be empty")
	}
	return &PassphraseSealer{passphrase: []byte(passphrase), n: scryptN}, nil
}

func (s *PassphraseSealer) deriveKey(salt []byte) ([]byte, error) {
	return scrypt.Key(s.passphrase, salt, s.n, scryptR, scryptP, keyLength)
}

// Encrypt は平文を暗号化する。
func (s *PassphraseSealer) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	key, err := s.deriveKey(salt)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, salt), nil
}

// Decrypt は Encrypt の出力を復号する。
func (s *PassphraseSealer) Decrypt(_ context.Context, sealed []byte) ([]byte, error) {
	if len(sealed) < saltSize+chacha20poly1305.NonceSizeX {
		return nil, ErrWrongPassphrase
	}
	salt := sealed[:saltSize]
	nonce := sealed[saltSize : saltSize+chacha20poly1305.NonceSizeX]
	ciphertext := sealed[saltSize+chacha20poly1305.NonceSizeX:]

	key, err := s.deriveKey(salt)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, salt)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plaintext, nil
}
