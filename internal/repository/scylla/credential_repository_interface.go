package scylla

import (
	"context"
	"time"

	"lms-auth/internal/models"
)

// CredentialRepository is the persistence contract for credential records.
// The concrete implementation is Scylla-backed; tests substitute fakes.
type CredentialRepository interface {
	Create(ctx context.Context, cred *models.Credential) error
	GetByEmail(ctx context.Context, email string) (*models.Credential, error)

	// UpdatePassword replaces hash and salt together; the old pair is
	// overwritten, never kept.
	UpdatePassword(ctx context.Context, email, passwordHash, salt string) error

	MarkEmailVerified(ctx context.Context, email string) error
	UpdateLastLogin(ctx context.Context, email string, at time.Time) error

	HealthCheck(ctx context.Context) error
}
