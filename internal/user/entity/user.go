package entity

import "time"

// User represents an account row in the `users` table.
// A non-nil DeletedAt marks the row as soft-deleted.
type User struct {
	ID              int64      `db:"id" json:"id"`
	Name            string     `db:"name" json:"name"`
	Email           string     `db:"email" json:"email"`
	EmailVerifiedAt *time.Time `db:"email_verified_at" json:"email_verified_at"`
	PasswordHash    string     `db:"password_hash" json:"-"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt       *time.Time `db:"deleted_at" json:"deleted_at"`
}

// Trashed reports whether the user has been soft-deleted.
func (u *User) Trashed() bool { return u.DeletedAt != nil }

// AccessToken is one issued bearer credential. Only the SHA-256 hash of the
// secret is persisted; the secret itself is handed out once at login.
type AccessToken struct {
	ID         int64      `db:"id" json:"id"`
	UserID     int64      `db:"user_id" json:"user_id"`
	Name       string     `db:"name" json:"name"`
	TokenHash  string     `db:"token_hash" json:"-"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}
