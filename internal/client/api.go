// Package client はグループメッセージングのクライアント側の処理を提供する。
// 暗号化と復号は全てクライアントで行い、サーバーには暗号文と公開鍵だけを送る。
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"group-messaging-service/pkg/api"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultMaxTries = 4
)

// ErrNotFound はサーバーが404を返した場合のエラー。
var ErrNotFound = errors.New("not found")

// APIError はサーバーがエラーレスポンスを返した場合のエラー。
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Code, e.Message)
}

// temporary はリトライで回復しうるエラーかどうかを返す。
func (e *APIError) temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// APIClient はサーバーのHTTP APIクライアント。
// 読み取りと冪等な書き込みは指数バックオフで再試行する。
type APIClient struct {
	baseURL         string
	httpClient      *http.Client
	maxTries        uint
	initialInterval time.Duration
}

// Option はAPIClientの設定を変更する。
type Option func(*APIClient)

// WithTimeout はリクエストごとのタイムアウトを設定する。
func WithTimeout(d time.Duration) Option {
	return func(c *APIClient) { c.httpClient.Timeout = d }
}

// WithHTTPClient は使用する http.Client を差し替える。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *APIClient) { c.httpClient = hc }
}

// WithMaxTries は1リクエストあたりの最大試行回数を設定する。
func WithMaxTries(n uint) Option {
	return func(c *APIClient) { c.maxTries = n }
}

// WithRetryInterval は最初の再試行までの待ち時間を設定する。
func WithRetryInterval(d time.Duration) Option {
	return func(c *APIClient) { c.initialInterval = d }
}

// NewAPIClient は新しいAPIClientを生成する。
func NewAPIClient(baseURL string, opts ...Option) *APIClient {
	c := &APIClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		maxTries:        defaultMaxTries,
		initialInterval: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := c.send(ctx, method, path, payload, out)
		if err == nil {
			return struct{}{}, nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.temporary() {
			return struct{}{}, backoff.Permanent(err)
		}
		if errors.Is(err, ErrNotFound) || ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		slog.WarnContext(ctx, "request failed, retrying",
			"operation", "api_request",
			"method", method,
			"path", path,
			"attempt", attempt,
			"error", err,
		)
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxTries))
	return err
}

func (c *APIClient) send(ctx context.Context, method, path string, payload []byte, out interface{}) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		var errBody struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.NewDecoder(resp.Body).Decode(&errBody) == nil {
			apiErr.Code = errBody.Code
			apiErr.Message = errBody.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func userKeyPath(userID string) string {
	return "/v1/users/" + url.PathEscape(userID) + "/public-key"
}

// PublishPublicKey は公開鍵を登録する。登録済みの場合、サーバーは既存の鍵を維持する。
func (c *APIClient) PublishPublicKey(ctx context.Context, userID, publicKey string) error {
	return c.do(ctx, http.MethodPost, userKeyPath(userID), api.PublishPublicKeyRequest{PublicKey: publicKey}, nil)
}

// RotatePublicKey は公開鍵を置き換える。
func (c *APIClient) RotatePublicKey(ctx context.Context, userID, publicKey string) (*api.PublicKeyResponse, error) {
	var resp api.PublicKeyResponse
	if err := c.do(ctx, http.MethodPut, userKeyPath(userID), api.PublishPublicKeyRequest{PublicKey: publicKey}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetPublicKey は指定されたユーザーの公開鍵を取得する。未登録の場合は ErrNotFound を返す。
func (c *APIClient) GetPublicKey(ctx context.Context, userID string) (*api.PublicKeyResponse, error) {
	var resp api.PublicKeyResponse
	if err := c.do(ctx, http.MethodGet, userKeyPath(userID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListPublicKeys は公開鍵ディレクトリを取得する。userIDs を指定した場合はそのユーザーに絞り込む。
func (c *APIClient) ListPublicKeys(ctx context.Context, userIDs ...string) (map[string]string, error) {
	path := "/v1/public-keys"
	if len(userIDs) > 0 {
		q := url.Values{}
		for _, id := range userIDs {
			q.Add("user_id", id)
		}
		path += "?" + q.Encode()
	}

	var resp api.PublicKeyListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.PublicKeys == nil {
		resp.PublicKeys = map[string]string{}
	}
	return resp.PublicKeys, nil
}

// AppendGroupMessage は宛先ごとの暗号文をグループに投稿する。
// クライアントメッセージIDを付与するため、再試行しても重複して保存されない。
func (c *APIClient) AppendGroupMessage(ctx context.Context, groupID, senderID string, ciphertexts map[string][]byte) (*api.MessageResponse, error) {
	req := api.AppendMessageRequest{
		SenderID:          senderID,
		EncryptedMessages: make(map[string]string, len(ciphertexts)),
		ClientMessageID:   uuid.NewString(),
	}
	for id, ct := range ciphertexts {
		req.EncryptedMessages[id] = base64.StdEncoding.EncodeToString(ct)
	}

	var resp api.MessageResponse
	path := "/v1/groups/" + url.PathEscape(groupID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListGroupMessages はグループのメッセージを afterSequence より後からシーケンス順に取得する。
func (c *APIClient) ListGroupMessages(ctx context.Context, groupID string, afterSequence uint64) ([]api.MessageResponse, error) {
	path := "/v1/groups/" + url.PathEscape(groupID) + "/messages"
	if afterSequence > 0 {
		path += "?after=" + strconv.FormatUint(afterSequence, 10)
	}

	var resp api.MessageListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}
