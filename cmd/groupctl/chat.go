package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"group-messaging-service/internal/client"
	"group-messaging-service/internal/infra"
)

// withSession はログイン済みのセッションで fn を実行する。
func withSession(ctx context.Context, fn func(*client.Session) error) error {
	userID, err := requireUser()
	if err != nil {
		return err
	}
	store, closeStore, err := openKeystore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	session := client.NewSession(newAPIClient(), store, cfg.Group)
	if err := session.Login(ctx, userID); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer session.Logout()
	return fn(session)
}

// loginCmd は鍵ペアを用意して公開鍵を登録する。
func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Create or load the local key pair and publish the public key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(s *client.Session) error {
				fmt.Printf("Logged in as %q in group %q (%d members)\n", s.UserID(), cfg.Group, len(s.Directory()))
				return nil
			})
		},
	}
}

// sendCmd はメッセージを全メンバー宛てに暗号化して送信する。
func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send MESSAGE...",
		Short: "Encrypt a message for every group member and send it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return withSession(cmd.Context(), func(s *client.Session) error {
				if err := s.Send(cmd.Context(), text); err != nil {
					return err
				}
				fmt.Printf("Sent to %d member(s)\n", len(s.Directory()))
				return nil
			})
		},
	}
}

// readCmd は自分宛てのメッセージを復号して表示する。
func readCmd() *cobra.Command {
	var (
		follow   bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Decrypt and print the group messages addressed to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withSession(ctx, func(s *client.Session) error {
				printed := printMessages(s.Messages(), 0)
				if !follow {
					return nil
				}

				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				wake, err := followTrigger(ctx, interval)
				if err != nil {
					return err
				}
				for range wake {
					if err := s.Refresh(ctx); err != nil {
						if ctx.Err() != nil {
							return nil
						}
						return err
					}
					printed = printMessages(s.Messages(), printed)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new messages")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "Polling interval when Redis notifications are not configured")
	return cmd
}

// followTrigger は新着を確認するタイミングを通知する。
// redis_url が設定されていれば新着通知を、なければ一定間隔のポーリングを使う。
func followTrigger(ctx context.Context, interval time.Duration) (<-chan struct{}, error) {
	out := make(chan struct{})

	if cfg.RedisURL != "" {
		notifier, err := infra.NewRedisNotifier(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		notes, err := notifier.Subscribe(ctx, cfg.Group)
		if err != nil {
			notifier.Close()
			return nil, err
		}
		go func() {
			defer close(out)
			defer notifier.Close()
			for range notes {
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}()
		return out, nil
	}

	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// printMessages は messages[from:] を表示し、表示済みの件数を返す。
func printMessages(messages []client.DisplayMessage, from int) int {
	for _, m := range messages[from:] {
		if output == "json" {
			b, _ := json.Marshal(map[string]interface{}{
				"sequence":   m.Sequence,
				"sender":     m.Sender,
				"text":       m.Text,
				"failed":     m.Failed,
				"created_at": m.CreatedAt,
			})
			fmt.Println(string(b))
			continue
		}
		fmt.Printf("[%d] %s %s: %s\n", m.Sequence, m.CreatedAt.Local().Format("2006-01-02 15:04"), m.Sender, m.Text)
	}
	return len(messages)
}
