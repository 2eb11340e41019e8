package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/database"
)

// TokenRepo persists access tokens in the access_tokens table.
// Revoking a token deletes its row.
type TokenRepo struct {
	db *sqlx.DB
}

func NewTokenRepo(db *sqlx.DB) *TokenRepo { return &TokenRepo{db: db} }

const insertToken = `INSERT INTO access_tokens (id, user_id, name, token_hash, created_at) VALUES ($1, $2, $3, $4, $5)`

// ReplaceForUser revokes every token of t.UserID and stores t, in one transaction.
func (r *TokenRepo) ReplaceForUser(ctx context.Context, t *entity.AccessToken) error {
	return database.WithTx(ctx, r.db, func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM access_tokens WHERE user_id=$1`, t.UserID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, insertToken, t.ID, t.UserID, t.Name, t.TokenHash, t.CreatedAt)
		return err
	})
}

// Find returns the token with the given id or sql.ErrNoRows.
func (r *TokenRepo) Find(ctx context.Context, id int64) (*entity.AccessToken, error) {
	const q = `SELECT id, user_id, name, token_hash, last_used_at, created_at FROM access_tokens WHERE id=$1`
	var t entity.AccessToken
	if err := r.db.GetContext(ctx, &t, q, id); err != nil {
		return nil, err
	}
	return &t, nil
}

// Touch records the time a token was last used.
func (r *TokenRepo) Touch(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE access_tokens SET last_used_at=$2 WHERE id=$1`, id, at)
	return err
}

// RevokeOne deletes a single token. Revoking a missing token is not an error.
func (r *TokenRepo) RevokeOne(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE id=$1`, id)
	return err
}

// RevokeAll deletes every token of a user and returns how many were removed.
func (r *TokenRepo) RevokeAll(ctx context.Context, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE user_id=$1`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
