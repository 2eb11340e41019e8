package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/database"
)

// ErrDuplicateEmail is returned when a write collides with the unique index on
// the email of non-deleted users.
var ErrDuplicateEmail = errors.New("email already taken")

const userColumns = `id, name, email, email_verified_at, password_hash, created_at, updated_at, deleted_at`

// UserRepo provides data access for users table using sqlx.
// Lookups return sql.ErrNoRows when nothing matches.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// List returns all users that are not soft-deleted, ordered by id.
func (r *UserRepo) List(ctx context.Context) ([]entity.User, error) {
	users := []entity.User{}
	q := `SELECT ` + userColumns + ` FROM users WHERE deleted_at IS NULL ORDER BY id`
	if err := r.db.SelectContext(ctx, &users, q); err != nil {
		return nil, err
	}
	return users, nil
}

// GetByID fetches a user. Soft-deleted rows are only visible with includeDeleted.
func (r *UserRepo) GetByID(ctx context.Context, id int64, includeDeleted bool) (*entity.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	if !includeDeleted {
		q += ` AND deleted_at IS NULL`
	}
	var u entity.User
	if err := r.db.GetContext(ctx, &u, q, id); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail returns the non-deleted user with the given email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE email=$1 AND deleted_at IS NULL`
	var u entity.User
	if err := r.db.GetContext(ctx, &u, q, email); err != nil {
		return nil, err
	}
	return &u, nil
}

// EmailTaken reports whether a non-deleted user other than exceptID owns email.
// Pass 0 as exceptID when creating.
func (r *UserRepo) EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE email=$1 AND id<>$2 AND deleted_at IS NULL)`
	var taken bool
	if err := r.db.GetContext(ctx, &taken, q, email, exceptID); err != nil {
		return false, err
	}
	return taken, nil
}

// Create inserts u and fills in its generated id and timestamps.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (name, email, email_verified_at, password_hash)
		VALUES (:name, :email, :email_verified_at, :password_hash)
		RETURNING id, created_at, updated_at`
	rows, err := r.db.NamedQueryContext(ctx, q, u)
	if err != nil {
		return writeErr(err)
	}
	defer rows.Close()
	if rows.Next() {
		return rows.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	}
	if err := rows.Err(); err != nil {
		return writeErr(err)
	}
	return errors.New("no id returned")
}

// Update writes name, email and password hash of a non-deleted user.
func (r *UserRepo) Update(ctx context.Context, u *entity.User) error {
	const q = `UPDATE users SET name=$2, email=$3, password_hash=$4, updated_at=NOW()
		WHERE id=$1 AND deleted_at IS NULL RETURNING updated_at`
	if err := r.db.GetContext(ctx, &u.UpdatedAt, q, u.ID, u.Name, u.Email, u.PasswordHash); err != nil {
		return writeErr(err)
	}
	return nil
}

// SoftDelete stamps deleted_at on a non-deleted user.
func (r *UserRepo) SoftDelete(ctx context.Context, id int64) error {
	const q = `UPDATE users SET deleted_at=NOW(), updated_at=NOW() WHERE id=$1 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func writeErr(err error) error {
	if database.IsUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}
