// Package confirm は取り消せない管理操作のための2段階確認トークンを提供する。
//
// 1回目のリクエストでトークンを発行し、同じ操作・対象・実行者による
// 2回目のリクエストでトークンを消費して初めて操作を実行する。
package confirm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "confirm:"

// ErrInvalidToken はトークンが存在しない、期限切れ、または別の操作に紐づく場合に返される。
var ErrInvalidToken = errors.New("invalid or expired confirmation token")

// Intent は確認対象の操作を表す。
type Intent struct {
	Action      string `json:"action"`
	TargetID    string `json:"target_id"`
	PrincipalID string `json:"principal_id"`
}

// Store は確認トークンの発行と消費を行うインターフェース。
type Store interface {
	// Issue はIntentに紐づく1回限りのトークンを発行する。
	Issue(ctx context.Context, intent Intent) (string, error)
	// Consume はトークンを消費し、Intentと一致するかを検証する。
	// トークンは一致しなかった場合も消費される。
	Consume(ctx context.Context, token string, intent Intent) error
}

// RedisStore はRedisを使用した確認トークンストア。
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore はRedisStoreを生成する。
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Issue はトークンを発行し、TTL付きで保存する。
func (s *RedisStore) Issue(ctx context.Context, intent Intent) (string, error) {
	data, err := json.Marshal(intent)
	if err != nil {
		return "", fmt.Errorf("failed to encode confirmation intent: %w", err)
	}

	token := uuid.New().String()
	if err := s.client.Set(ctx, keyPrefix+token, data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store confirmation token: %w", err)
	}
	return token, nil
}

// Consume はGETDELでトークンを取り出し、Intentと照合する。
func (s *RedisStore) Consume(ctx context.Context, token string, intent Intent) error {
	if token == "" {
		return ErrInvalidToken
	}

	data, err := s.client.GetDel(ctx, keyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrInvalidToken
	}
	if err != nil {
		return fmt.Errorf("failed to consume confirmation token: %w", err)
	}

	var stored Intent
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to decode confirmation intent: %w", err)
	}
	if stored != intent {
		return ErrInvalidToken
	}
	return nil
}

// compile-time interface check
var _ Store = (*RedisStore)(nil)
