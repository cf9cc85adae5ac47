package sessions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	blacklistMu     sync.RWMutex
	blacklistClient *redis.Client
)

// SetBlacklistClient configures the Redis client used for revoked access
// tokens. nil disables the blacklist.
func SetBlacklistClient(c *redis.Client) {
	blacklistMu.Lock()
	blacklistClient = c
	blacklistMu.Unlock()
}

func blacklist() *redis.Client {
	blacklistMu.RLock()
	defer blacklistMu.RUnlock()
	return blacklistClient
}

// BlacklistKey is the Redis key for token. Tokens are stored hashed.
func BlacklistKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "blacklist:access:" + hex.EncodeToString(sum[:])
}

// BlacklistAccessToken revokes token for ttl. Without a client it is a no-op.
func BlacklistAccessToken(ctx context.Context, token string, ttl time.Duration) error {
	c := blacklist()
	if c == nil || ttl <= 0 {
		return nil
	}
	return c.Set(ctx, BlacklistKey(token), "1", ttl).Err()
}

// BlacklistUntil revokes token until it expires on its own at exp.
func BlacklistUntil(ctx context.Context, token string, exp time.Time) error {
	return BlacklistAccessToken(ctx, token, time.Until(exp))
}

// IsAccessTokenBlacklisted reports whether token was revoked. Without a
// client it returns (false, nil).
func IsAccessTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	c := blacklist()
	if c == nil {
		return false, nil
	}
	n, err := c.Exists(ctx, BlacklistKey(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
