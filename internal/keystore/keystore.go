// Package keystore はクライアントの鍵ペアをローカルファイルに保存する。
// 秘密鍵は Sealer で暗号化してから書き込み、平文のままディスクに置かない。
package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"group-messaging-service/internal/crypto"
)

const (
	metadataBucket = "metadata"
	keysBucket     = "keys"
	versionKey     = "version"
	formatVersion  = 1
)

// ErrNotFound は指定されたユーザーの鍵ペアが保存されていない場合のエラー。
var ErrNotFound = errors.New("key pair not found")

// record はファイルに保存する1ユーザー分の形式。
type record struct {
	PublicKey     string    `json:"public_key"`
	SealedPrivate []byte    `json:"sealed_private_key"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store はbboltファイルによる鍵ペアの保存先。
type Store struct {
	db     *bolt.DB
	sealer Sealer
}

// Open は鍵ストアのファイルを開く。存在しない場合は作成する。
func Open(path string, sealer Sealer) (*Store, error) {
	if sealer == nil {
		return nil, errors.New("keystore: sealer is required")
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("keystore: opening %s: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(keysBucket)); err != nil {
			return err
		}

		if b := meta.Get([]byte(versionKey)); b != nil {
			if len(b) != 1 || b[0] != formatVersion {
				return fmt.Errorf("keystore: incompatible version: %v", b)
			}
			return nil
		}
		return meta.Put([]byte(versionKey), []byte{formatVersion})
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, sealer: sealer}, nil
}

// Save はユーザーの鍵ペアを保存する。既存の鍵ペアは上書きする。
func (s *Store) Save(ctx context.Context, userID string, kp *crypto.KeyPair) error {
	pub, err := crypto.EncodePublicKey(kp.Public)
	if err != nil {
		return err
	}
	priv, err := crypto.EncodePrivateKey(kp.Private)
	if err != nil {
		return err
	}
	sealed, err := s.sealer.Encrypt(ctx, []byte(priv))
	if err != nil {
		return fmt.Errorf("keystore: sealing private key: %w", err)
	}

	raw, err := json.Marshal(record{PublicKey: pub, SealedPrivate: sealed, CreatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(keysBucket)).Put([]byte(userID), raw)
	})
}

// Load はユーザーの鍵ペアを読み込む。保存されていない場合は ErrNotFound を返す。
func (s *Store) Load(ctx context.Context, userID string) (*crypto.KeyPair, error) {
	var raw []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(keysBucket)).Get([]byte(userID)); v != nil {
			// トランザクション外では参照できないためコピーする
			raw = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrNotFound
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("keystore: corrupted record for %s: %w", userID, err)
	}
	priv, err := s.sealer.Decrypt(ctx, rec.SealedPrivate)
	if err != nil {
		return nil, fmt.Errorf("keystore: unsealing private key: %w", err)
	}
	privateKey, err := crypto.DecodePrivateKey(string(priv))
	if err != nil {
		return nil, err
	}
	return &crypto.KeyPair{Public: &privateKey.PublicKey, Private: privateKey}, nil
}

// Delete はユーザーの鍵ペアを削除する。存在しない場合も成功とする。
func (s *Store) Delete(userID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(keysBucket)).Delete([]byte(userID))
	})
}

// Users は鍵ペアが保存されているユーザーIDを昇順で返す。
func (s *Store) Users() ([]string, error) {
	var users []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(keysBucket)).ForEach(func(k, _ []byte) error {
			users = append(users, string(k))
			return nil
		})
	})
	sort.Strings(users)
	return users, err
}

// Close はファイルを閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}
