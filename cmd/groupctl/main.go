// Package main はグループメッセージングのCLIクライアントのエントリポイント。
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"group-messaging-service/config"
	"group-messaging-service/internal/client"
	"group-messaging-service/internal/infra"
	"group-messaging-service/internal/keystore"
)

const version = "1.0.0"

var (
	configPath string
	cfg        *config.ClientConfig

	// フラグ（設定ファイルと環境変数より優先）
	apiURL string
	group  string
	user   string
	output string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "groupctl",
		Short:         "End-to-end encrypted group messaging CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.LoadClientFile(configPath); err != nil {
				return err
			}
			if apiURL != "" {
				cfg.APIURL = apiURL
			}
			if group != "" {
				cfg.Group = group
			}
			if user != "" {
				cfg.User = user
			}
			slog.SetDefault(infra.NewLogger(os.Stderr, &config.Config{LogLevel: cfg.LogLevel}))
			return nil
		},
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("GROUPCTL_CONFIG"), "Path to TOML config file (or set GROUPCTL_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API endpoint URL (or set GROUPCTL_API_URL)")
	rootCmd.PersistentFlags().StringVar(&group, "group", "", "Group ID (or set GROUPCTL_GROUP)")
	rootCmd.PersistentFlags().StringVar(&user, "user", "", "User ID to act as (or set GROUPCTL_USER)")
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format: text, json")

	// サブコマンド登録
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(readCmd())
	rootCmd.AddCommand(keysCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("groupctl version %s\n", version)
		},
	}
}

func newAPIClient() *client.APIClient {
	return client.NewAPIClient(cfg.APIURL, client.WithTimeout(cfg.Timeout.Duration))
}

// newSealer は設定に応じて秘密鍵の封印方式を選ぶ。返り値の close は必ず呼ぶこと。
func newSealer(ctx context.Context) (keystore.Sealer, func(), error) {
	if cfg.Sealer.KMSKey != "" {
		kmsClient, err := infra.NewKMSClient(ctx, cfg.Sealer.KMSKey)
		if err != nil {
			return nil, nil, err
		}
		return kmsClient, func() {
			if err := kmsClient.Close(); err != nil {
				slog.Error("failed to close KMS client", "error", err)
			}
		}, nil
	}

	passphrase := os.Getenv(cfg.Sealer.PassphraseEnv)
	if passphrase == "" {
		return nil, nil, fmt.Errorf("set %s or configure [sealer] kms_key to protect the keystore", cfg.Sealer.PassphraseEnv)
	}
	sealer, err := keystore.NewPassphraseSealer(passphrase)
	if err != nil {
		return nil, nil, err
	}
	return sealer, func() {}, nil
}

// openKeystore は設定されたキーストアを開く。返り値の close は必ず呼ぶこと。
func openKeystore(ctx context.Context) (*keystore.Store, func(), error) {
	sealer, closeSealer, err := newSealer(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Keystore), 0o700); err != nil {
		closeSealer()
		return nil, nil, fmt.Errorf("creating keystore directory: %w", err)
	}
	store, err := keystore.Open(cfg.Keystore, sealer)
	if err != nil {
		closeSealer()
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			slog.Error("failed to close keystore", "error", err)
		}
		closeSealer()
	}, nil
}

func requireUser() (string, error) {
	if cfg.User == "" {
		return "", fmt.Errorf("--user is required (or set GROUPCTL_USER)")
	}
	return cfg.User, nil
}
