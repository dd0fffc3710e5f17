package service

import (
	"go.uber.org/zap"

	"lms-auth/internal/events"
	"lms-auth/internal/hashing"
	"lms-auth/internal/otp"
	"lms-auth/internal/repository/scylla"
	"lms-auth/internal/session"
)

// ServiceFactory creates and manages service instances.
type ServiceFactory struct {
	creds     scylla.CredentialRepository
	hasher    *hashing.Hasher
	sessions  *session.Manager
	otps      *otp.Manager
	publisher events.Publisher
	logger    *zap.Logger

	authService *AuthService
}

func NewServiceFactory(
	creds scylla.CredentialRepository,
	hasher *hashing.Hasher,
	sessions *session.Manager,
	otps *otp.Manager,
	publisher events.Publisher,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		creds:     creds,
		hasher:    hasher,
		sessions:  sessions,
		otps:      otps,
		publisher: publisher,
		logger:    logger,
	}
}

// AuthService returns the auth service instance (singleton).
func (f *ServiceFactory) AuthService() *AuthService {
	if f.authService == nil {
		f.authService = NewAuthService(
			f.creds,
			f.hasher,
			f.sessions,
			f.otps,
			f.publisher,
			f.logger,
		)
	}
	return f.authService
}
