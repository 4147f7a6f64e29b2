package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/findfriends/backend/internal/db"
	"github.com/findfriends/backend/internal/models"
)

// PostgresAcceptStore commits the three writes of a friend-request acceptance
// (both users' friend-id blobs plus the request status) in one transaction, so
// a failure leaves no partial state behind.
type PostgresAcceptStore struct {
	pool db.Pool
}

// NewPostgresAcceptStore constructs the transactional accept store.
func NewPostgresAcceptStore(pool db.Pool) *PostgresAcceptStore {
	return &PostgresAcceptStore{pool: pool}
}

// ApplyAccept persists the updated requester, receiver, and request records together.
func (s *PostgresAcceptStore) ApplyAccept(ctx context.Context, requester, receiver models.User, request models.FriendRequest) error {
	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, user := range []models.User{requester, receiver} {
			tag, err := tx.Exec(ctx, `
                UPDATE users
                SET friend_ids = $2, updated_at = $3
                WHERE id = $1
            `, user.ID, user.FriendIDs, user.UpdatedAt)
			if err != nil {
				return fmt.Errorf("update friend ids for %s: %w", user.ID, err)
			}
			if tag.RowsAffected() == 0 {
				return ErrNotFound
			}
		}

		tag, err := tx.Exec(ctx, `
            UPDATE friend_requests
            SET status = $2, is_read = $3
            WHERE id = $1
        `, request.ID, request.Status, request.IsRead)
		if err != nil {
			return fmt.Errorf("update friend request %s: %w", request.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		return nil
	})
}
