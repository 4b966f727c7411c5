package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"go-auth-service/internal/model"
)

const revokedKeyPrefix = "revoked:"

// RedisRevocationLedger keeps revoked tokens as keys with a TTL equal to
// the token's remaining natural lifetime. SETNX gives the same atomic
// insert-if-absent gate as the Postgres unique constraint, and expiry-based
// garbage collection comes for free.
type RedisRevocationLedger struct {
	client *redis.Client
}

func NewRedisRevocationLedger(client *redis.Client) *RedisRevocationLedger {
	return &RedisRevocationLedger{client: client}
}

func (l *RedisRevocationLedger) Record(ctx context.Context, token string, purpose string, expiresAt time.Time) (bool, error) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// Already past its natural expiry; the codec rejects it anyway, so
		// an entry would be meaningless.
		return false, nil
	}

	inserted, err := l.client.SetNX(ctx, revokedKeyPrefix+token, purpose, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: record revocation: %v", model.ErrStoreUnavailable, err)
	}
	return inserted, nil
}

func (l *RedisRevocationLedger) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := l.client.Exists(ctx, revokedKeyPrefix+token).Result()
	if err != nil {
		return false, fmt.Errorf("%w: check revocation: %v", model.ErrStoreUnavailable, err)
	}
	return n > 0, nil
}
