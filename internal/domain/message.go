package domain

import "time"

// GroupMessage はグループに投稿された暗号化メッセージを表す。
// 作成後は変更されない。
type GroupMessage struct {
	ID              string
	GroupID         string
	Sequence        uint64
	SenderID        string
	ClientMessageID string
	// Ciphertexts は宛先ユーザーIDごとの暗号文。
	Ciphertexts map[string][]byte
	CreatedAt   time.Time
}

// Recipients は暗号文の宛先ユーザーID一覧を返す。
func (m *GroupMessage) Recipients() []string {
	ids := make([]string, 0, len(m.Ciphertexts))
	for id := range m.Ciphertexts {
		ids = append(ids, id)
	}
	return ids
}
