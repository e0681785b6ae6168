// Package crypto はクライアント側のエンドツーエンド暗号処理を提供する。
// 鍵はRSA-2048、暗号方式はRSA-OAEP(SHA-256)。
// 公開鍵はSPKI(DER)、秘密鍵はPKCS#8(DER)をBase64でエンコードして運ぶ。
package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
)

// KeyBits は生成する鍵のビット長。
const KeyBits = 2048

var (
	// ErrEncryption は暗号化に失敗した場合のエラー。
	ErrEncryption = errors.New("encryption failed")

	// ErrDecryption は復号に失敗した場合のエラー。
	ErrDecryption = errors.New("decryption failed")

	// ErrInvalidKey は鍵のデコードまたはパースに失敗した場合のエラー。
	ErrInvalidKey = errors.New("invalid key")
)

// KeyPair はユーザーの鍵ペア。
type KeyPair struct {
	Public  *rsa.PublicKey
	Private *rsa.PrivateKey
}

// GenerateKeyPair は新しいRSA鍵ペアを生成する。
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("generating rsa key: %w", err)
	}
	return &KeyPair{Public: &priv.PublicKey, Private: priv}, nil
}

// EncodePublicKey は公開鍵をSPKI形式のBase64文字列にする。
func EncodePublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshaling public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// DecodePublicKey はSPKI形式のBase64文字列から公開鍵を復元する。
func DecodePublicKey(encoded string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an rsa public key", ErrInvalidKey)
	}
	return pub, nil
}

// EncodePrivateKey は秘密鍵をPKCS#8形式のBase64文字列にする。
// 秘密鍵はクライアントの外に出してはならない。
func EncodePrivateKey(priv *rsa.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", fmt.Errorf("marshaling private key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// DecodePrivateKey はPKCS#8形式のBase64文字列から秘密鍵を復元する。
func DecodePrivateKey(encoded string) (*rsa.PrivateKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an rsa private key", ErrInvalidKey)
	}
	return priv, nil
}

// Encrypt は平文を公開鍵で暗号化する。
// パディングは乱数を含むため、同じ入力でも毎回異なる暗号文になる。
// 平文がOAEPの上限(2048ビット鍵で190バイト)を超える場合は ErrEncryption を返す。
func Encrypt(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	return ct, nil
}

// Decrypt は暗号文を秘密鍵で復号する。鍵が一致しない場合は ErrDecryption を返す。
func Decrypt(priv *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	pt, err := rsa.DecryptOAEP(sha256.New(), nil, priv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return pt, nil
}

// MaxPlaintextSize は公開鍵で暗号化できる平文の最大バイト数を返す。
func MaxPlaintextSize(pub *rsa.PublicKey) int {
	return pub.Size() - 2*sha256.Size - 2
}
