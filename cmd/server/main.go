// Package main はAPIサーバーのエントリポイント。
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"group-messaging-service/config"
	"group-messaging-service/internal/handler"
	"group-messaging-service/internal/infra"
	"group-messaging-service/internal/repository"
	"group-messaging-service/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func run() error {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	cfg := config.Load()

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		return err
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg)

	// DB初期化
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	db, err := infra.NewDB(cfg)
	if err != nil {
		return err
	}
	if cfg.AutoMigrate {
		if err := repository.AutoMigrate(ctx, db); err != nil {
			return err
		}
		slog.Info("database schema migrated", "driver", cfg.DatabaseDriver)
	}

	// 新着通知（REDIS_URL未設定の場合は通知しない）
	var notifier usecase.Notifier
	if cfg.RedisURL != "" {
		rn, err := infra.NewRedisNotifier(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := rn.Close(); closeErr != nil {
				slog.Error("failed to close redis client", "error", closeErr)
			}
		}()
		notifier = rn
	}

	// DI
	directory := usecase.NewDirectoryService(repository.NewUserRepository(db))
	messages := usecase.NewMessageService(repository.NewMessageRepository(db), directory, notifier)
	router := handler.NewRouter(
		handler.NewDirectoryHandler(directory),
		handler.NewMessageHandler(messages),
		cfg,
	)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server", "port", cfg.Port, "database_driver", cfg.DatabaseDriver)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
