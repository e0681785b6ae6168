package domain

import "errors"

var (
	// ErrUserNotFound は指定されたユーザーの公開鍵が存在しない場合のエラー。
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidUserID はユーザーIDの形式が不正な場合のエラー。
	ErrInvalidUserID = errors.New("invalid user ID")

	// ErrInvalidGroupID はグループIDの形式が不正な場合のエラー。
	ErrInvalidGroupID = errors.New("invalid group ID")

	// ErrInvalidPublicKey は公開鍵が空またはエンコードが不正な場合のエラー。
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrEmptyCiphertexts は宛先ごとの暗号文が一件も含まれない場合のエラー。
	ErrEmptyCiphertexts = errors.New("message has no ciphertexts")

	// ErrUnknownRecipient は暗号文の宛先がディレクトリに登録されていない場合のエラー。
	ErrUnknownRecipient = errors.New("unknown recipient")

	// ErrMessageConflict はメッセージのシーケンス番号またはクライアントメッセージIDが既存レコードと衝突した場合のエラー。
	ErrMessageConflict = errors.New("message conflicts with an existing record")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrMigrationFileNotFound はマイグレーションファイルが見つからない場合のエラー。
	ErrMigrationFileNotFound = errors.New("migration file not found")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
