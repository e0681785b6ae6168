package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"group-messaging-service/config"
	"group-messaging-service/internal/middleware"
)

// NewRouter はルーターを生成する。
func NewRouter(dh *DirectoryHandler, mh *MessageHandler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", middleware.MetricsHandler())

	// ルート定義
	r.Route("/v1", func(r chi.Router) {
		r.Route("/users/{user_id}/public-key", func(r chi.Router) {
			r.Post("/", dh.PublishPublicKey)
			r.Put("/", dh.RotatePublicKey)
			r.Get("/", dh.GetPublicKey)
		})
		r.Get("/public-keys", dh.ListPublicKeys)
		r.Route("/groups/{group_id}/messages", func(r chi.Router) {
			r.Post("/", mh.AppendGroupMessage)
			r.Get("/", mh.ListGroupMessages)
		})
	})

	// 互換エンドポイント。秘密鍵を扱うルートは提供しない
	r.Route("/api", func(r chi.Router) {
		r.Post("/save-public-key", dh.LegacySavePublicKey)
		r.Get("/public-keys", dh.LegacyListPublicKeys)
		r.Get("/get-public-key", dh.LegacyGetPublicKey)
		r.Post("/send-group-message", mh.LegacySendGroupMessage)
		r.Get("/get-group-messages", mh.LegacyGetGroupMessages)
	})

	if cfg != nil && cfg.OtelEnabled {
		return otelhttp.NewHandler(r, cfg.OtelServiceName)
	}
	return r
}
