package client

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"group-messaging-service/internal/crypto"
)

// DefaultFanOutLimit は同時に暗号化する宛先数の既定値。
const DefaultFanOutLimit = 8

// FanOut は平文をディレクトリの全ユーザーの公開鍵でそれぞれ暗号化する。
// 公開鍵が空のユーザーは黙って除外し、暗号化に失敗したユーザーはWARNログを出して除外する。
// 失敗した宛先は再試行しない。ctx がキャンセルされた場合のみエラーを返す。
func FanOut(ctx context.Context, plaintext []byte, directory map[string]string) (map[string][]byte, error) {
	return fanOut(ctx, plaintext, directory, DefaultFanOutLimit)
}

func fanOut(ctx context.Context, plaintext []byte, directory map[string]string, limit int) (map[string][]byte, error) {
	if limit <= 0 {
		limit = DefaultFanOutLimit
	}

	var (
		mu          sync.Mutex
		ciphertexts = make(map[string][]byte, len(directory))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for recipientID, encodedKey := range directory {
		if encodedKey == "" {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			pub, err := crypto.DecodePublicKey(encodedKey)
			if err != nil {
				slog.WarnContext(gctx, "skipping recipient with unusable public key",
					"operation", "fan_out",
					"recipient_id", recipientID,
					"error", err,
				)
				return nil
			}
			ct, err := crypto.Encrypt(pub, plaintext)
			if err != nil {
				slog.WarnContext(gctx, "failed to encrypt for recipient",
					"operation", "fan_out",
					"recipient_id", recipientID,
					"error", err,
				)
				return nil
			}

			mu.Lock()
			ciphertexts[recipientID] = ct
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ciphertexts, nil
}
