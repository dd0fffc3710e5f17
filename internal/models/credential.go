package models

import (
	"time"

	"github.com/google/uuid"
)

// Credential is the durable password record for one user. The hash is an
// argon2id derivation over (password, salt); the plaintext is never stored.
// Hash and salt are replaced together on every password change.
type Credential struct {
	EmailBucket   int       `db:"email_bucket"`
	Email         string    `db:"email"`
	UserID        uuid.UUID `db:"user_id"`
	PasswordHash  string    `db:"password_hash"`
	Salt          string    `db:"salt"`
	Algorithm     string    `db:"algorithm"`
	EmailVerified bool      `db:"email_verified"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
	LastLoginAt   time.Time `db:"last_login_at"`
}
