package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/farmchef/internal/model"
)

const sessionKeyPrefix = "session:"

type sessionPayload struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsAdmin   bool      `json:"is_admin"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisSessionRepo はRedisを使用したセッションリポジトリ。
// セッションは有効期限をTTLとして保存され、期限切れのキーはRedisが削除する。
type RedisSessionRepo struct {
	client redis.UniversalClient
}

// NewRedisSessionRepo はRedisSessionRepoを生成する。
func NewRedisSessionRepo(client redis.UniversalClient) *RedisSessionRepo {
	return &RedisSessionRepo{client: client}
}

// Create はセッションを作成する。
func (r *RedisSessionRepo) Create(ctx context.Context, session *model.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired: %s", session.ID)
	}

	data, err := json.Marshal(sessionPayload{
		ID:        session.ID,
		OwnerID:   session.Principal.ID,
		Email:     session.Principal.Email,
		Name:      session.Principal.Name,
		IsAdmin:   session.IsAdmin,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := r.client.Set(ctx, sessionKeyPrefix+session.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *RedisSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	data, err := r.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	var p sessionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if !p.ExpiresAt.After(time.Now()) {
		return nil, nil
	}

	return &model.Session{
		ID: p.ID,
		Principal: model.Principal{
			ID:    p.OwnerID,
			Email: p.Email,
			Name:  p.Name,
		},
		IsAdmin:   p.IsAdmin,
		ExpiresAt: p.ExpiresAt,
		CreatedAt: p.CreatedAt,
	}, nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *RedisSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, sessionKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SessionRepository = (*RedisSessionRepo)(nil)
