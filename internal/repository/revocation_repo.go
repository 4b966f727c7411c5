package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"go-auth-service/internal/model"
)

// RevocationRepository is the Postgres-backed revocation ledger. The unique
// constraint on the token column makes Record a genuinely atomic
// insert-if-absent, which is what refresh rotation leans on.
type RevocationRepository struct {
	pool *pgxpool.Pool
}

func NewRevocationRepository(pool *pgxpool.Pool) *RevocationRepository {
	return &RevocationRepository{pool: pool}
}

// Record inserts a ledger entry and reports whether this call inserted it.
// A duplicate token is a no-op resolved by the store's uniqueness
// constraint, never by a read-then-write.
func (r *RevocationRepository) Record(ctx context.Context, token string, purpose string, expiresAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO revoked_tokens (token, purpose, revoked_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (token) DO NOTHING`,
		token, purpose, time.Now().UTC(), expiresAt)
	if err != nil {
		return false, fmt.Errorf("%w: record revocation: %v", model.ErrStoreUnavailable, err)
	}
	return tag.RowsAffected() == 1, nil
}

// IsRevoked ignores entries whose expiry has passed; those tokens fail the
// codec's own expiry check anyway and the GC sweep will remove the rows.
func (r *RevocationRepository) IsRevoked(ctx context.Context, token string) (bool, error) {
	var revoked bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE token = $1 AND expires_at > now())`,
		token).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("%w: check revocation: %v", model.ErrStoreUnavailable, err)
	}
	return revoked, nil
}

func (r *RevocationRepository) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("%w: purge expired revocations: %v", model.ErrStoreUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

// StartGC sweeps expired entries until the context is cancelled, keeping
// the ledger bounded by the number of not-yet-expired revoked tokens.
func (r *RevocationRepository) StartGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := r.PurgeExpired(ctx)
			if err != nil {
				slog.Warn("revocation ledger gc failed", "error", err)
				continue
			}
			if purged > 0 {
				slog.Info("revocation ledger gc", "purged", purged)
			}
		}
	}
}
