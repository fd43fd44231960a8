package production

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, opts ...RedisOption) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	s := NewRedisStoreFromClient(client, opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore_Contract(t *testing.T) {
	s, _ := newRedisStore(t)
	storeContract(t, s)
}

func TestRedisStore_ListAndDelete(t *testing.T) {
	s, mr := newRedisStore(t, WithPrefix("test:"))
	ctx := context.Background()
	_, snap := sampleSnapshot(t)

	require.NoError(t, s.Save(ctx, "a", snap))
	require.NoError(t, s.Save(ctx, "b", snap))
	assert.True(t, mr.Exists("test:a"))

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)

	require.NoError(t, s.Delete(ctx, "a"))
	ids, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
	assert.False(t, mr.Exists("test:a"))
}

func TestRedisStore_TTL(t *testing.T) {
	s, mr := newRedisStore(t, WithTTL(time.Minute))
	ctx := context.Background()
	_, snap := sampleSnapshot(t)

	require.NoError(t, s.Save(ctx, "short", snap))
	assert.Equal(t, time.Minute, mr.TTL("harel:machine:short"))

	mr.FastForward(2 * time.Minute)
	_, err := s.Load(ctx, "short")
	assert.Error(t, err)
}

func TestNewRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStore(mr.Addr(), "", 0)
	defer s.Close()
	storeContract(t, s)
}
