package confirm

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, NewRedisStore(rdb, ttl)
}

var deleteProfile = Intent{Action: "delete_profile", TargetID: "p-1", PrincipalID: "admin-1"}

func TestRedisStore_IssueAndConsume(t *testing.T) {
	mr, store := setupStore(t, 5*time.Minute)
	ctx := context.Background()

	token, err := store.Issue(ctx, deleteProfile)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, mr.Exists("confirm:"+token))
	assert.Equal(t, 5*time.Minute, mr.TTL("confirm:"+token))

	require.NoError(t, store.Consume(ctx, token, deleteProfile))
	assert.False(t, mr.Exists("confirm:"+token))
}

func TestRedisStore_ConsumeIsOneTime(t *testing.T) {
	_, store := setupStore(t, time.Minute)
	ctx := context.Background()

	token, err := store.Issue(ctx, deleteProfile)
	require.NoError(t, err)

	require.NoError(t, store.Consume(ctx, token, deleteProfile))
	assert.ErrorIs(t, store.Consume(ctx, token, deleteProfile), ErrInvalidToken)
}

func TestRedisStore_ConsumeRejectsMismatchedIntent(t *testing.T) {
	tests := []struct {
		name   string
		intent Intent
	}{
		{"別の対象", Intent{Action: "delete_profile", TargetID: "p-2", PrincipalID: "admin-1"}},
		{"別の操作", Intent{Action: "delete_post", TargetID: "p-1", PrincipalID: "admin-1"}},
		{"別の実行者", Intent{Action: "delete_profile", TargetID: "p-1", PrincipalID: "admin-2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr, store := setupStore(t, time.Minute)
			ctx := context.Background()

			token, err := store.Issue(ctx, deleteProfile)
			require.NoError(t, err)

			assert.ErrorIs(t, store.Consume(ctx, token, tt.intent), ErrInvalidToken)
			assert.False(t, mr.Exists("confirm:"+token), "mismatched token should still be consumed")
		})
	}
}

func TestRedisStore_ConsumeExpired(t *testing.T) {
	mr, store := setupStore(t, time.Minute)
	ctx := context.Background()

	token, err := store.Issue(ctx, deleteProfile)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	assert.ErrorIs(t, store.Consume(ctx, token, deleteProfile), ErrInvalidToken)
}

func TestRedisStore_ConsumeEmptyToken(t *testing.T) {
	_, store := setupStore(t, time.Minute)
	assert.ErrorIs(t, store.Consume(context.Background(), "", deleteProfile), ErrInvalidToken)
}
