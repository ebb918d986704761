package sessionstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client)
}

func testStores(t *testing.T) map[string]Store {
	return map[string]Store{
		"redis":  newTestRedisStore(t),
		"memory": NewMemoryStore(),
	}
}

func TestSessionStore_CreateGetDelete(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			session := &StreamSession{
				UserID:         "user-1",
				ConversationID: "conv-1",
				Provider:       "openai",
				Model:          "gpt-4",
				Messages:       []Message{{ID: "m1", Role: "user", Content: "hi"}},
			}

			token, err := store.Create(ctx, session, time.Minute)
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(token), 32)

			got, err := store.Get(ctx, token)
			require.NoError(t, err)
			require.NotNil(t, got)
			require.Equal(t, "conv-1", got.ConversationID)

			require.NoError(t, store.Delete(ctx, token))

			after, err := store.Get(ctx, token)
			require.NoError(t, err)
			require.Nil(t, after)

			require.NoError(t, store.Delete(ctx, token))
		})
	}
}

func TestSessionStore_GetMissingReturnsNil(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := store.Get(context.Background(), "nonexistent-token")
			require.NoError(t, err)
			require.Nil(t, got)
		})
	}
}

func TestMemoryStore_ExpiresAfterTTL(t *testing.T) {
	store := NewMemoryStore()
	token, err := store.Create(context.Background(), &StreamSession{ConversationID: "c"}, 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	got, err := store.Get(context.Background(), token)
	require.NoError(t, err)
	require.Nil(t, got)
}
