// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import "time"

// PublicKey はディレクトリに登録されたユーザーの公開鍵を表す。
// 鍵はサーバーにとって不透明なバイト列であり、解釈しない。
type PublicKey struct {
	UserID    string
	Key       []byte
	Version   uint
	CreatedAt time.Time
	UpdatedAt time.Time
}
