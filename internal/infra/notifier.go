package infra

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const groupNotifyPrefix = "group:notify:"

// GroupNotification は新着メッセージ通知のペイロード。
type GroupNotification struct {
	GroupID  string `json:"group_id"`
	Sequence uint64 `json:"sequence"`
	SenderID string `json:"sender_id"`
}

// RedisNotifier は新着メッセージをRedisのPub/Subで通知する。
type RedisNotifier struct {
	rdb *redis.Client
}

// NewRedisNotifier はREDIS_URL形式のURLからRedisNotifierを生成する。
func NewRedisNotifier(ctx context.Context, url string) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return &RedisNotifier{rdb: rdb}, nil
}

// GroupChannel はグループの通知チャネル名を返す。
func GroupChannel(groupID string) string {
	return groupNotifyPrefix + groupID
}

// NotifyMessage はグループの通知チャネルに新着メッセージを publish する。
func (n *RedisNotifier) NotifyMessage(ctx context.Context, groupID string, sequence uint64, senderID string) error {
	payload, err := json.Marshal(GroupNotification{
		GroupID:  groupID,
		Sequence: sequence,
		SenderID: senderID,
	})
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}
	if err := n.rdb.Publish(ctx, GroupChannel(groupID), payload).Err(); err != nil {
		return fmt.Errorf("publishing notification: %w", err)
	}
	return nil
}

// Subscribe はグループの新着通知を購読する。ctx が終了するとチャネルは閉じられる。
// 解釈できないペイロードは読み飛ばす。
func (n *RedisNotifier) Subscribe(ctx context.Context, groupID string) (<-chan GroupNotification, error) {
	sub := n.rdb.Subscribe(ctx, GroupChannel(groupID))
	// 購読の確立を待つ
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribing %s: %w", GroupChannel(groupID), err)
	}

	out := make(chan GroupNotification)
	go func() {
		defer close(out)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var note GroupNotification
				if err := json.Unmarshal([]byte(msg.Payload), &note); err != nil {
					continue
				}
				select {
				case out <- note:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close はRedisクライアントを閉じる。
func (n *RedisNotifier) Close() error {
	return n.rdb.Close()
}
