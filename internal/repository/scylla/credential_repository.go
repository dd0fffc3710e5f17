package scylla

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lms-auth/internal/bucketing"
	"lms-auth/internal/models"
	"lms-auth/internal/util"
)

var ErrCredentialNotFound = errors.New("credential not found")

type ScyllaCredentialRepository struct {
	client  *ScyllaClient
	buckets *bucketing.Manager
}

func NewCredentialRepository(client *ScyllaClient, buckets *bucketing.Manager, logger *zap.Logger) *ScyllaCredentialRepository {
	return &ScyllaCredentialRepository{
		client:  client,
		buckets: buckets,
	}
}

func (r *ScyllaCredentialRepository) Create(ctx context.Context, cred *models.Credential) error {
	if cred.UserID == uuid.Nil {
		cred.UserID = uuid.New()
	}

	now := time.Now().UTC()
	cred.Email = normalizeEmail(cred.Email)
	cred.EmailBucket = r.buckets.SubjectBucket(cred.Email)
	cred.CreatedAt = now
	cred.UpdatedAt = now

	query := r.client.Prepared.CreateCredential.WithContext(ctx).Bind(
		cred.EmailBucket, cred.Email, cred.UserID, cred.PasswordHash,
		cred.Salt, cred.Algorithm, cred.EmailVerified,
		cred.CreatedAt, cred.UpdatedAt, cred.LastLoginAt)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to create credential",
			zap.Int("email_bucket", cred.EmailBucket),
			zap.Error(err))
		return fmt.Errorf("failed to create credential: %w", err)
	}

	util.Info("Credential created",
		zap.String("user_id", cred.UserID.String()),
		zap.Int("email_bucket", cred.EmailBucket))

	return nil
}

func (r *ScyllaCredentialRepository) GetByEmail(ctx context.Context, email string) (*models.Credential, error) {
	email = normalizeEmail(email)
	cred := &models.Credential{}

	query := r.client.Prepared.GetCredentialByEmail.WithContext(ctx).Bind(
		r.buckets.SubjectBucket(email), email)

	err := r.client.ScanWithRetry(query,
		&cred.EmailBucket, &cred.Email, &cred.UserID, &cred.PasswordHash,
		&cred.Salt, &cred.Algorithm, &cred.EmailVerified,
		&cred.CreatedAt, &cred.UpdatedAt, &cred.LastLoginAt)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrCredentialNotFound
		}
		util.Error("Failed to get credential by email", zap.Error(err))
		return nil, fmt.Errorf("failed to get credential by email: %w", err)
	}

	return cred, nil
}

func (r *ScyllaCredentialRepository) UpdatePassword(ctx context.Context, email, passwordHash, salt string) error {
	email = normalizeEmail(email)

	query := r.client.Prepared.UpdateCredentialPassword.WithContext(ctx).Bind(
		passwordHash, salt, time.Now().UTC(),
		r.buckets.SubjectBucket(email), email)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to update credential password", zap.Error(err))
		return fmt.Errorf("failed to update credential password: %w", err)
	}

	util.Info("Credential password updated",
		zap.Int("email_bucket", r.buckets.SubjectBucket(email)))

	return nil
}

func (r *ScyllaCredentialRepository) MarkEmailVerified(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	query := r.client.Prepared.MarkEmailVerified.WithContext(ctx).Bind(
		true, time.Now().UTC(),
		r.buckets.SubjectBucket(email), email)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to mark email verified", zap.Error(err))
		return fmt.Errorf("failed to mark email verified: %w", err)
	}

	return nil
}

func (r *ScyllaCredentialRepository) UpdateLastLogin(ctx context.Context, email string, at time.Time) error {
	email = normalizeEmail(email)

	query := r.client.Prepared.UpdateLastLogin.WithContext(ctx).Bind(
		at.UTC(), r.buckets.SubjectBucket(email), email)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	return nil
}

func (r *ScyllaCredentialRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
