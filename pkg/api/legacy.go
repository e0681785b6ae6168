package api

// 以下は /api 配下の互換エンドポイントで使うcamelCaseの形式。

// LegacySavePublicKeyRequest は互換エンドポイントの公開鍵登録リクエスト。
type LegacySavePublicKeyRequest struct {
	UserID    string `json:"userId"`
	PublicKey string `json:"publicKey"`
}

// LegacyPublicKeyResponse は互換エンドポイントの公開鍵レスポンス。
type LegacyPublicKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

// LegacySendGroupMessageRequest は互換エンドポイントのメッセージ投稿リクエスト。
type LegacySendGroupMessageRequest struct {
	SenderID          string            `json:"senderId"`
	GroupID           string            `json:"groupId"`
	EncryptedMessages map[string]string `json:"encryptedMessages"`
}

// LegacyGroupMessage は互換エンドポイントのメッセージ形式。
type LegacyGroupMessage struct {
	ID                string            `json:"_id"`
	GroupID           string            `json:"groupId"`
	SenderID          string            `json:"senderId"`
	EncryptedMessages map[string]string `json:"encryptedMessages"`
	CreatedAt         string            `json:"createdAt"`
}
