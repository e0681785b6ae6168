// Package handler はHTTPハンドラを提供する。
package handler

import (
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"group-messaging-service/internal/domain"
	"group-messaging-service/internal/middleware"
	"group-messaging-service/internal/usecase"
	"group-messaging-service/pkg/api"
	"group-messaging-service/pkg/httputil"
)

// DirectoryHandler は公開鍵ディレクトリのHTTPハンドラを提供する。
type DirectoryHandler struct {
	service *usecase.DirectoryService
}

// NewDirectoryHandler は新しいDirectoryHandlerを生成する。
func NewDirectoryHandler(service *usecase.DirectoryService) *DirectoryHandler {
	return &DirectoryHandler{service: service}
}

func toPublicKeyResponse(key *domain.PublicKey) api.PublicKeyResponse {
	return api.PublicKeyResponse{
		UserID:    key.UserID,
		PublicKey: base64.StdEncoding.EncodeToString(key.Key),
		Version:   key.Version,
		UpdatedAt: key.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// PublishPublicKey は公開鍵を登録する。登録済みの場合は既存の鍵を維持する。
func (h *DirectoryHandler) PublishPublicKey(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	var req api.PublishPublicKeyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if h.publish(w, r, userID, req.PublicKey) {
		httputil.JSON(w, http.StatusOK, api.AckResponse{Message: "public key saved"})
	}
}

// publish は登録処理を行い、成功した場合に true を返す。失敗時はレスポンスを書き込み済み。
func (h *DirectoryHandler) publish(w http.ResponseWriter, r *http.Request, userID, encodedKey string) bool {
	audit := middleware.AuditLog{Operation: "PUBLISH_PUBLIC_KEY", UserID: userID, Result: middleware.ResultFailed}
	if err := validateUserID(userID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_USER_ID", "invalid user ID format")
		return false
	}
	key, err := decodePublicKey(encodedKey)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_PUBLIC_KEY", "public key must be non-empty base64")
		return false
	}

	if err := h.service.PublishPublicKey(r.Context(), userID, key); err != nil {
		middleware.WriteAuditLog(r.Context(), audit)
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return false
	}

	audit.Result = middleware.ResultSuccess
	middleware.WriteAuditLog(r.Context(), audit)
	return true
}

// RotatePublicKey は公開鍵を明示的に置き換える。
func (h *DirectoryHandler) RotatePublicKey(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	audit := middleware.AuditLog{Operation: "ROTATE_PUBLIC_KEY", UserID: userID, Result: middleware.ResultFailed}
	if err := validateUserID(userID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_USER_ID", "invalid user ID format")
		return
	}
	var req api.PublishPublicKeyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	key, err := decodePublicKey(req.PublicKey)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_PUBLIC_KEY", "public key must be non-empty base64")
		return
	}

	record, err := h.service.RotatePublicKey(r.Context(), userID, key)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), audit)
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	audit.Result = middleware.ResultSuccess
	middleware.WriteAuditLog(r.Context(), audit)
	httputil.JSON(w, http.StatusOK, toPublicKeyResponse(record))
}

// GetPublicKey は指定されたユーザーの公開鍵を取得する。
func (h *DirectoryHandler) GetPublicKey(w http.ResponseWriter, r *http.Request) {
	key, ok := h.lookup(w, r, chi.URLParam(r, "user_id"))
	if ok {
		httputil.JSON(w, http.StatusOK, toPublicKeyResponse(key))
	}
}

func (h *DirectoryHandler) lookup(w http.ResponseWriter, r *http.Request, userID string) (*domain.PublicKey, bool) {
	if err := validateUserID(userID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_USER_ID", "invalid user ID format")
		return nil, false
	}

	key, err := h.service.GetPublicKey(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			httputil.Error(w, http.StatusNotFound, "USER_NOT_FOUND", "public key not found")
			return nil, false
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return nil, false
	}
	return key, true
}

// ListPublicKeys は公開鍵ディレクトリを返す。user_id クエリで対象を絞り込める。
func (h *DirectoryHandler) ListPublicKeys(w http.ResponseWriter, r *http.Request) {
	userIDs := r.URL.Query()["user_id"]
	for _, id := range userIDs {
		if err := validateUserID(id); err != nil {
			httputil.Error(w, http.StatusBadRequest, "INVALID_USER_ID", "invalid user ID format")
			return
		}
	}

	directory, ok := h.directory(w, r, userIDs)
	if ok {
		httputil.JSON(w, http.StatusOK, api.PublicKeyListResponse{PublicKeys: directory})
	}
}

func (h *DirectoryHandler) directory(w http.ResponseWriter, r *http.Request, userIDs []string) (map[string]string, bool) {
	keys, err := h.service.ListPublicKeys(r.Context(), userIDs...)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return nil, false
	}
	encoded := make(map[string]string, len(keys))
	for id, key := range keys {
		encoded[id] = base64.StdEncoding.EncodeToString(key)
	}
	return encoded, true
}

// LegacySavePublicKey は互換エンドポイント POST /api/save-public-key。
func (h *DirectoryHandler) LegacySavePublicKey(w http.ResponseWriter, r *http.Request) {
	var req api.LegacySavePublicKeyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if h.publish(w, r, req.UserID, req.PublicKey) {
		httputil.JSON(w, http.StatusOK, api.AckResponse{Message: "Public key saved"})
	}
}

// LegacyGetPublicKey は互換エンドポイント GET /api/get-public-key?userId=。
func (h *DirectoryHandler) LegacyGetPublicKey(w http.ResponseWriter, r *http.Request) {
	key, ok := h.lookup(w, r, r.URL.Query().Get("userId"))
	if ok {
		httputil.JSON(w, http.StatusOK, api.LegacyPublicKeyResponse{
			PublicKey: base64.StdEncoding.EncodeToString(key.Key),
		})
	}
}

// LegacyListPublicKeys は互換エンドポイント GET /api/public-keys。ユーザーIDから鍵へのマップをそのまま返す。
func (h *DirectoryHandler) LegacyListPublicKeys(w http.ResponseWriter, r *http.Request) {
	directory, ok := h.directory(w, r, nil)
	if ok {
		httputil.JSON(w, http.StatusOK, directory)
	}
}
