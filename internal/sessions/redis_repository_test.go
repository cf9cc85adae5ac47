package sessions

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisRepo(t *testing.T, prefix string) (*RedisRepository, *mr.Miniredis) {
	t.Helper()
	m := mr.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRepository(client, prefix), m
}

func TestRedisRepository_RoundTripsProviderAndClaims(t *testing.T) {
	repo, m := newRedisRepo(t, "")
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	cases := map[string]*Session{
		"generated account": {
			ID: "sid-acc", RefreshToken: "r-acc", Sub: "gen-1", Provider: ProviderAccount,
			Claims: map[string]string{"assigned_workspace_uid": "w1"},
		},
		"identity provider": {
			ID: "sid-idp", RefreshToken: "r-idp", Sub: "kc-7", Provider: ProviderOIDC,
			Name: "Ada", Email: "ada@example.com",
		},
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			s.CreatedAt = now
			s.ExpiresAt = now.Add(time.Hour)
			require.NoError(t, repo.Create(ctx, s))
			require.True(t, m.Exists("session:"+s.RefreshToken))

			got, err := repo.GetByRefresh(ctx, s.RefreshToken)
			require.NoError(t, err)
			require.NotNil(t, got)
			require.Equal(t, s.ID, got.ID)
			require.Equal(t, s.Provider, got.Provider)
			require.Equal(t, s.Claims, got.Claims)
			require.Equal(t, s.Email, got.Email)
			require.True(t, s.ExpiresAt.Equal(got.ExpiresAt))

			require.NoError(t, repo.DeleteByRefresh(ctx, s.RefreshToken))
			got, err = repo.GetByRefresh(ctx, s.RefreshToken)
			require.NoError(t, err)
			require.Nil(t, got)
		})
	}
}

func TestRedisRepository_KeyLivesAsLongAsSession(t *testing.T) {
	repo, m := newRedisRepo(t, "test:session:")
	ctx := context.Background()

	s := &Session{ID: "sid", RefreshToken: "r1", ExpiresAt: time.Now().UTC().Add(10 * time.Minute)}
	require.NoError(t, repo.Create(ctx, s))
	left := m.TTL("test:session:r1")
	require.Greater(t, left, 9*time.Minute)
	require.LessOrEqual(t, left, 10*time.Minute)

	m.FastForward(11 * time.Minute)
	got, err := repo.GetByRefresh(ctx, "r1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRedisRepository_ExpiredSessionClampsTTL(t *testing.T) {
	repo, m := newRedisRepo(t, "test:session:")
	ctx := context.Background()

	s := &Session{ID: "sid", RefreshToken: "late", ExpiresAt: time.Now().UTC().Add(-time.Minute)}
	require.NoError(t, repo.Create(ctx, s))
	require.Equal(t, time.Second, m.TTL("test:session:late"))

	// a stored session past ExpiresAt is not returned even before Redis drops it
	got, err := repo.GetByRefresh(ctx, "late")
	require.NoError(t, err)
	require.Nil(t, got)
	require.False(t, m.Exists("test:session:late"))
}

func TestRedisRepository_ExpiredDespiteLongKeyTTL(t *testing.T) {
	repo, m := newRedisRepo(t, "test:session:")
	ctx := context.Background()

	b, err := json.Marshal(&Session{ID: "sid", RefreshToken: "stale", ExpiresAt: time.Now().UTC().Add(-time.Second)})
	require.NoError(t, err)
	require.NoError(t, m.Set("test:session:stale", string(b)))
	m.SetTTL("test:session:stale", time.Hour)

	got, err := repo.GetByRefresh(ctx, "stale")
	require.NoError(t, err)
	require.Nil(t, got)
	require.False(t, m.Exists("test:session:stale"))
}

func TestRedisRepository_CorruptValue(t *testing.T) {
	repo, m := newRedisRepo(t, "test:session:")
	require.NoError(t, m.Set("test:session:bad", "{not json"))

	_, err := repo.GetByRefresh(context.Background(), "bad")
	require.Error(t, err)
	require.NoError(t, repo.DeleteByRefresh(context.Background(), "never-stored"))
}
