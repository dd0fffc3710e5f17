package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"lms-auth/internal/events"
	"lms-auth/internal/hashing"
	"lms-auth/internal/models"
	"lms-auth/internal/otp"
	"lms-auth/internal/repository/scylla"
	"lms-auth/internal/session"
	"lms-auth/internal/util"
)

var (
	// ErrInvalidCredentials covers both unknown email and wrong password;
	// callers must not be able to tell which.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrInvalidInput    = errors.New("invalid input")
	ErrEmailTaken      = errors.New("email already registered")
	ErrUnauthenticated = errors.New("unauthenticated")
)

const minPasswordLength = 8

// AuthService orchestrates registration, login, session resolution, and the
// OTP-backed email verification and password reset flows.
type AuthService struct {
	creds     scylla.CredentialRepository
	hasher    *hashing.Hasher
	sessions  *session.Manager
	otps      *otp.Manager
	publisher events.Publisher
	logger    *zap.Logger
}

func NewAuthService(
	creds scylla.CredentialRepository,
	hasher *hashing.Hasher,
	sessions *session.Manager,
	otps *otp.Manager,
	publisher events.Publisher,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		creds:     creds,
		hasher:    hasher,
		sessions:  sessions,
		otps:      otps,
		publisher: publisher,
		logger:    logger,
	}
}

// Register creates a credential record for a new user and opens a session.
// The salt is generated before hash derivation and stored alongside the
// hash; the plaintext password is discarded.
func (s *AuthService) Register(ctx context.Context, email, password string) (*models.Credential, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validateEmail(email); err != nil {
		return nil, "", err
	}
	if len(password) < minPasswordLength {
		return nil, "", fmt.Errorf("%w: password too short", ErrInvalidInput)
	}

	if _, err := s.creds.GetByEmail(ctx, email); err == nil {
		return nil, "", ErrEmailTaken
	} else if !errors.Is(err, scylla.ErrCredentialNotFound) {
		return nil, "", fmt.Errorf("failed to check existing credential: %w", err)
	}

	salt, err := s.hasher.GenerateSalt()
	if err != nil {
		return nil, "", fmt.Errorf("failed to register: %w", err)
	}
	hash, err := s.hasher.DeriveHash(password, salt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to register: %w", err)
	}

	cred := &models.Credential{
		Email:        email,
		PasswordHash: hash,
		Salt:         salt,
		Algorithm:    hashing.Algorithm,
	}
	if err := s.creds.Create(ctx, cred); err != nil {
		return nil, "", err
	}

	sessionID, err := s.sessions.CreateSession(ctx, cred.UserID.String())
	if err != nil {
		return nil, "", err
	}

	s.publish(ctx, events.Event{
		Type:    events.TypeUserRegistered,
		Subject: email,
		UserID:  cred.UserID.String(),
	})

	s.logger.Info("User registered", util.String("user_id", cred.UserID.String()))

	return cred, sessionID, nil
}

// Login verifies the password against the stored (salt, hash) pair and
// opens a new session. Concurrent logins each get their own session.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	cred, err := s.creds.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, scylla.ErrCredentialNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	ok, err := s.hasher.Verify(password, cred.Salt, cred.PasswordHash)
	if err != nil {
		return "", fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		s.publish(ctx, events.Event{
			Type:    events.TypeLoginFailed,
			Subject: email,
		})
		return "", ErrInvalidCredentials
	}

	sessionID, err := s.sessions.CreateSession(ctx, cred.UserID.String())
	if err != nil {
		return "", err
	}

	if err := s.creds.UpdateLastLogin(ctx, email, time.Now().UTC()); err != nil {
		util.Warn("Failed to update last login", util.ErrorField(err))
	}

	s.publish(ctx, events.Event{
		Type:    events.TypeLoginSucceeded,
		Subject: email,
		UserID:  cred.UserID.String(),
	})

	return sessionID, nil
}

// Logout invalidates the session immediately; no TTL wait is involved.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	userID, err := s.sessions.ResolveSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil // already gone
		}
		return err
	}

	if err := s.sessions.InvalidateSession(ctx, sessionID); err != nil {
		return err
	}

	s.publish(ctx, events.Event{
		Type:   events.TypeSessionRevoked,
		UserID: userID,
	})

	return nil
}

// Authenticate resolves a session token to a user ID. A missing session is
// reported as ErrUnauthenticated; a store outage propagates distinctly so
// the HTTP layer denies access rather than treating it as anonymous.
func (s *AuthService) Authenticate(ctx context.Context, sessionID string) (string, error) {
	userID, err := s.sessions.ResolveSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return "", ErrUnauthenticated
		}
		return "", err
	}
	return userID, nil
}

// RequestEmailVerification issues a verification code for an existing
// account and returns it for out-of-band delivery. Unknown subjects get
// ErrInvalidCredentials; the HTTP layer responds identically either way.
func (s *AuthService) RequestEmailVerification(ctx context.Context, email string) (string, error) {
	return s.issueOTP(ctx, email)
}

// ConfirmEmailVerification consumes the code and marks the account's email
// verified.
func (s *AuthService) ConfirmEmailVerification(ctx context.Context, email, code string) error {
	if err := s.otps.Verify(ctx, email, code); err != nil {
		return err
	}

	if err := s.creds.MarkEmailVerified(ctx, email); err != nil {
		return err
	}

	s.publish(ctx, events.Event{
		Type:    events.TypeOTPVerified,
		Subject: strings.ToLower(email),
	})

	return nil
}

// RequestPasswordReset issues a reset code for an existing account.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	return s.issueOTP(ctx, email)
}

// ConfirmPasswordReset consumes the code and replaces the credential with
// a fresh salt and hash; the old pair is destroyed by the overwrite.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("%w: password too short", ErrInvalidInput)
	}

	if err := s.otps.Verify(ctx, email, code); err != nil {
		return err
	}

	salt, err := s.hasher.GenerateSalt()
	if err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}
	hash, err := s.hasher.DeriveHash(newPassword, salt)
	if err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}

	if err := s.creds.UpdatePassword(ctx, email, hash, salt); err != nil {
		return err
	}

	s.publish(ctx, events.Event{
		Type:    events.TypePasswordChanged,
		Subject: strings.ToLower(email),
	})

	return nil
}

func (s *AuthService) issueOTP(ctx context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validateEmail(email); err != nil {
		return "", err
	}

	if _, err := s.creds.GetByEmail(ctx, email); err != nil {
		if errors.Is(err, scylla.ErrCredentialNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	code, err := s.otps.Issue(ctx, email)
	if err != nil {
		return "", err
	}

	s.publish(ctx, events.Event{
		Type:    events.TypeOTPIssued,
		Subject: email,
	})

	return code, nil
}

// publish is best-effort: a broken event stream must never fail an auth
// operation.
func (s *AuthService) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		util.Warn("Failed to publish auth event",
			util.String("event_type", event.Type),
			util.ErrorField(err))
	}
}

func validateEmail(email string) error {
	at := strings.IndexByte(email, '@')
	if at < 1 || at == len(email)-1 || len(email) > 254 {
		return fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	return nil
}
