package handler

import (
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

// MessageHandler はグループメッセージのHTTPハンドラを提供する。
type MessageHandler struct {
	service *usecase.MessageService
}

// NewMessageHandler は新しいMessageHandlerを生成する。
func NewMessageHandler(service *usecase.MessageService) *MessageHandler {
	return &MessageHandler{service: service}
}

func toMessageResponse(msg *domain.GroupMessage) api.MessageResponse {
	return api.MessageResponse{
		ID:                msg.ID,
		GroupID:           msg.GroupID,
		Sequence:          msg.Sequence,
		SenderID:          msg.SenderID,
		EncryptedMessages: encodeCiphertexts(msg.Ciphertexts),
		ClientMessageID:   msg.ClientMessageID,
		CreatedAt:         msg.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toLegacyGroupMessage(msg *domain.GroupMessage) api.LegacyGroupMessage {
	return api.LegacyGroupMessage{
		ID:                msg.ID,
		GroupID:           msg.GroupID,
		SenderID:          msg.SenderID,
		EncryptedMessages: encodeCiphertexts(msg.Ciphertexts),
		CreatedAt:         msg.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// AppendGroupMessage はグループに暗号化メッセージを投稿する。
func (h *MessageHandler) AppendGroupMessage(w http.ResponseWriter, r *http.Request) {
	var req api.AppendMessageRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}

	msg, created, ok := h.appendMessage(w, r, usecase.AppendGroupMessageInput{
		GroupID:         chi.URLParam(r, "group_id"),
		SenderID:        req.SenderID,
		ClientMessageID: req.ClientMessageID,
	}, req.EncryptedMessages)
	if !ok {
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	httputil.JSON(w, status, toMessageResponse(msg))
}

// appendMessage は入力を検証して保存する。失敗時はレスポンスを書き込み済みで ok=false を返す。
func (h *MessageHandler) appendMessage(w http.ResponseWriter, r *http.Request, in usecase.AppendGroupMessageInput, encoded map[string]string) (*domain.GroupMessage, bool, bool) {
	audit := middleware.AuditLog{
		Operation: "APPEND_GROUP_MESSAGE",
		UserID:    in.SenderID,
		GroupID:   in.GroupID,
		Result:    middleware.ResultFailed,
	}

	if err := validateGroupID(in.GroupID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_GROUP_ID", "invalid group ID format")
		return nil, false, false
	}
	if err := validateUserID(in.SenderID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_USER_ID", "invalid sender ID format")
		return nil, false, false
	}
	if in.ClientMessageID != "" && !validID(in.ClientMessageID) {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid client message ID format")
		return nil, false, false
	}

	ciphertexts, err := decodeCiphertexts(encoded)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmptyCiphertexts):
			httputil.Error(w, http.StatusBadRequest, "EMPTY_CIPHERTEXTS", "encrypted_messages must not be empty")
		case errors.Is(err, domain.ErrInvalidUserID):
			httputil.Error(w, http.StatusBadRequest, "INVALID_USER_ID", "invalid recipient ID format")
		default:
			httputil.Error(w, http.StatusBadRequest, "INVALID_CIPHERTEXT", "ciphertexts must be non-empty base64")
		}
		return nil, false, false
	}
	in.Ciphertexts = ciphertexts

	msg, created, err := h.service.AppendGroupMessage(r.Context(), in)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), audit)
		switch {
		case errors.Is(err, domain.ErrUnknownRecipient):
			httputil.Error(w, http.StatusUnprocessableEntity, "UNKNOWN_RECIPIENT", err.Error())
		case errors.Is(err, domain.ErrEmptyCiphertexts):
			httputil.Error(w, http.StatusBadRequest, "EMPTY_CIPHERTEXTS", "encrypted_messages must not be empty")
		default:
			httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return nil, false, false
	}

	if created {
		middleware.ObserveFanoutWidth(len(msg.Ciphertexts))
	}
	audit.Result = middleware.ResultSuccess
	middleware.WriteAuditLog(r.Context(), audit)
	return msg, created, true
}

// ListGroupMessages はグループのメッセージをシーケンス順に返す。
func (h *MessageHandler) ListGroupMessages(w http.ResponseWriter, r *http.Request) {
	after, err := parseAfterSequence(r.URL.Query().Get("after"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "after must be a non-negative integer")
		return
	}

	messages, ok := h.list(w, r, chi.URLParam(r, "group_id"), after)
	if !ok {
		return
	}

	resp := api.MessageListResponse{Messages: make([]api.MessageResponse, len(messages))}
	for i, m := range messages {
		resp.Messages[i] = toMessageResponse(m)
	}
	httputil.JSON(w, http.StatusOK, resp)
}

func (h *MessageHandler) list(w http.ResponseWriter, r *http.Request, groupID string, after uint64) ([]*domain.GroupMessage, bool) {
	if err := validateGroupID(groupID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_GROUP_ID", "invalid group ID format")
		return nil, false
	}

	messages, err := h.service.ListGroupMessages(r.Context(), groupID, after)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return nil, false
	}
	return messages, true
}

// LegacySendGroupMessage は互換エンドポイント POST /api/send-group-message。
func (h *MessageHandler) LegacySendGroupMessage(w http.ResponseWriter, r *http.Request) {
	var req api.LegacySendGroupMessageRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}

	_, _, ok := h.appendMessage(w, r, usecase.AppendGroupMessageInput{
		GroupID:  req.GroupID,
		SenderID: req.SenderID,
	}, req.EncryptedMessages)
	if ok {
		httputil.JSON(w, http.StatusOK, api.AckResponse{Message: "Group message stored"})
	}
}

// LegacyGetGroupMessages は互換エンドポイント GET /api/get-group-messages?groupId=。
func (h *MessageHandler) LegacyGetGroupMessages(w http.ResponseWriter, r *http.Request) {
	messages, ok := h.list(w, r, r.URL.Query().Get("groupId"), 0)
	if !ok {
		return
	}

	resp := make([]api.LegacyGroupMessage, len(messages))
	for i, m := range messages {
		resp[i] = toLegacyGroupMessage(m)
	}
	httputil.JSON(w, http.StatusOK, resp)
}
