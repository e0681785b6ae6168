// Package api はサーバーとクライアントが共有するHTTP APIのリクエスト・レスポンス形式を定義する。
// 鍵と暗号文はBase64(標準エンコーディング)の文字列として運ぶ。
package api

// PublishPublicKeyRequest は公開鍵の登録・ローテーションのリクエスト形式。
type PublishPublicKeyRequest struct {
	PublicKey string `json:"public_key"`
}

// PublicKeyResponse は公開鍵のレスポンス形式。
type PublicKeyResponse struct {
	UserID    string `json:"user_id"`
	PublicKey string `json:"public_key"`
	Version   uint   `json:"version"`
	UpdatedAt string `json:"updated_at"`
}

// PublicKeyListResponse は公開鍵ディレクトリのレスポンス形式。
type PublicKeyListResponse struct {
	PublicKeys map[string]string `json:"public_keys"`
}

// AppendMessageRequest はグループメッセージ投稿のリクエスト形式。
type AppendMessageRequest struct {
	SenderID          string            `json:"sender_id"`
	EncryptedMessages map[string]string `json:"encrypted_messages"`
	ClientMessageID   string            `json:"client_message_id,omitempty"`
}

// MessageResponse はグループメッセージのレスポンス形式。
type MessageResponse struct {
	ID                string            `json:"id"`
	GroupID           string            `json:"group_id"`
	Sequence          uint64            `json:"sequence"`
	SenderID          string            `json:"sender_id"`
	EncryptedMessages map[string]string `json:"encrypted_messages"`
	ClientMessageID   string            `json:"client_message_id,omitempty"`
	CreatedAt         string            `json:"created_at"`
}

// MessageListResponse はグループメッセージ一覧のレスポンス形式。
type MessageListResponse struct {
	Messages []MessageResponse `json:"messages"`
}

// AckResponse は結果本体を持たない操作の応答。
type AckResponse struct {
	Message string `json:"message"`
}
