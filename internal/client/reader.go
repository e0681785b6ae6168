package client

import (
	"crypto/rsa"
	"encoding/base64"
	"time"

	"group-messaging-service/internal/crypto"
	"group-messaging-service/pkg/api"
)

// DecryptionFailedText は復号できなかったメッセージの代わりに表示する文言。
const DecryptionFailedText = "*** Decryption Failed (Key mismatch) ***"

// DisplayMessage は復号済みの表示用メッセージ。
type DisplayMessage struct {
	Sender    string
	Text      string
	Sequence  uint64
	CreatedAt time.Time
	// Failed は復号に失敗し、Text が DecryptionFailedText であることを示す。
	Failed bool
}

// ReadMessages は自分宛ての暗号文を復号して表示用メッセージを返す。
// 自分宛ての暗号文を含まないメッセージは除外する。順序は入力の順序のまま。
func ReadMessages(messages []api.MessageResponse, selfID string, priv *rsa.PrivateKey) []DisplayMessage {
	out := make([]DisplayMessage, 0, len(messages))
	for _, m := range messages {
		encoded, ok := m.EncryptedMessages[selfID]
		if !ok {
			continue
		}

		dm := DisplayMessage{Sender: m.SenderID, Sequence: m.Sequence}
		// 不正な日時は表示に影響しないため無視する
		dm.CreatedAt, _ = time.Parse(time.RFC3339, m.CreatedAt)

		text, ok := decryptSlot(encoded, priv)
		if ok {
			dm.Text = text
		} else {
			dm.Text = DecryptionFailedText
			dm.Failed = true
		}
		out = append(out, dm)
	}
	return out
}

func decryptSlot(encoded string, priv *rsa.PrivateKey) (string, bool) {
	if priv == nil {
		return "", false
	}
	ct, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	pt, err := crypto.Decrypt(priv, ct)
	if err != nil {
		return "", false
	}
	return string(pt), true
}
