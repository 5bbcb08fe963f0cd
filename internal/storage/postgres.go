package storage

import (
	"context"
	"fmt"

	"channelPassAPI/internal/types/subscription"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores subscriptions in a single table. Linearizability comes
// from Postgres itself; callers never hold an application-level lock
// across a query.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the subscriptions table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS subscriptions (
			user_id BIGINT PRIMARY KEY,
			expiry_date BIGINT NOT NULL
		)
	`
	if _, err := p.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("%w: failed to create subscriptions table: %v", subscription.ErrStorageUnavailable, err)
	}
	return nil
}

func (p *Postgres) Upsert(ctx context.Context, userID int64, expiresAt int64) error {
	query := `
		INSERT INTO subscriptions (user_id, expiry_date)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET expiry_date = EXCLUDED.expiry_date
	`
	if _, err := p.db.Exec(ctx, query, userID, expiresAt); err != nil {
		return fmt.Errorf("%w: failed to upsert subscription for user %d: %v", subscription.ErrStorageUnavailable, userID, err)
	}
	return nil
}

func (p *Postgres) Remove(ctx context.Context, userID int64) error {
	// Deleting an absent row is a successful no-op.
	query := `DELETE FROM subscriptions WHERE user_id = $1`
	if _, err := p.db.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("%w: failed to remove subscription for user %d: %v", subscription.ErrStorageUnavailable, userID, err)
	}
	return nil
}

func (p *Postgres) GetExpiry(ctx context.Context, userID int64) (int64, error) {
	query := `SELECT expiry_date FROM subscriptions WHERE user_id = $1`

	var expiresAt int64
	err := p.db.QueryRow(ctx, query, userID).Scan(&expiresAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, subscription.ErrNotSubscribed
		}
		return 0, fmt.Errorf("%w: failed to get expiry for user %d: %v", subscription.ErrStorageUnavailable, userID, err)
	}
	return expiresAt, nil
}

func (p *Postgres) ListExpired(ctx context.Context, now int64) ([]int64, error) {
	query := `
		SELECT user_id FROM subscriptions
		WHERE expiry_date <= $1
		ORDER BY expiry_date ASC
	`

	rows, err := p.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list expired subscriptions: %v", subscription.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var expired []int64
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("%w: failed to scan expired subscription: %v", subscription.ErrStorageUnavailable, err)
		}
		expired = append(expired, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to list expired subscriptions: %v", subscription.ErrStorageUnavailable, err)
	}
	return expired, nil
}

func (p *Postgres) ListAll(ctx context.Context) ([]subscription.Subscription, error) {
	query := `SELECT user_id, expiry_date FROM subscriptions ORDER BY expiry_date ASC`

	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list subscriptions: %v", subscription.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var subs []subscription.Subscription
	for rows.Next() {
		var sub subscription.Subscription
		if err := rows.Scan(&sub.UserID, &sub.ExpiresAt); err != nil {
			return nil, fmt.Errorf("%w: failed to scan subscription: %v", subscription.ErrStorageUnavailable, err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to list subscriptions: %v", subscription.ErrStorageUnavailable, err)
	}
	return subs, nil
}
