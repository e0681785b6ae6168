// Package migrations はMySQL用のスキーマ定義SQLを埋め込む。
// ファイル名は {version}_{name}.sql とし、groupctl migrate up でバージョン順に適用する。
package migrations

import "embed"

// FS はマイグレーションファイル群。
//
//go:embed *.sql
var FS embed.FS
