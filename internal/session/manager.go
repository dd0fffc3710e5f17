package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lms-auth/internal/store"
	"lms-auth/internal/util"
)

const (
	keyPrefix = "session:"

	// tokenBytes is the entropy behind a session token. The hex-encoded
	// token is what the client holds; its presence in the store is the
	// sole proof of validity.
	tokenBytes = 256
)

// ErrSessionNotFound means the token is absent from the store, either
// because it was never issued, was invalidated, or expired via TTL.
var ErrSessionNotFound = errors.New("session not found")

// Record is the stored shape of a session, keyed by the opaque token.
type Record struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
}

// Manager issues opaque session tokens and resolves them back to user
// identities. Expiry is enforced by the store's native TTL, never by
// application-level timestamp checks.
type Manager struct {
	store store.Store
	ttl   time.Duration
}

func NewManager(st store.Store, ttl time.Duration) *Manager {
	return &Manager{store: st, ttl: ttl}
}

// CreateSession generates a high-entropy token, persists the session
// record under it with the configured TTL, and returns the token. Two
// concurrent calls for the same user produce two independent sessions;
// multi-session login is permitted.
func (m *Manager) CreateSession(ctx context.Context, userID string) (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	token := hex.EncodeToString(buf)

	record := Record{
		ID:     uuid.New().String(),
		UserID: userID,
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session record: %w", err)
	}

	if err := m.store.Put(ctx, keyPrefix+token, string(payload), m.ttl); err != nil {
		return "", fmt.Errorf("failed to persist session: %w", err)
	}

	util.Debug("Session created",
		util.String("session_record_id", record.ID),
		util.String("user_id", userID),
		util.Duration("ttl", m.ttl))

	return token, nil
}

// ResolveSession looks the token up and returns the owning user ID.
// An absent token yields ErrSessionNotFound; a store failure is reported
// distinctly (wrapping store.ErrUnavailable) so callers can fail closed
// instead of treating an outage as an invalid session.
func (m *Manager) ResolveSession(ctx context.Context, sessionID string) (string, error) {
	value, err := m.store.Get(ctx, keyPrefix+sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("failed to resolve session: %w", err)
	}

	var record Record
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		return "", fmt.Errorf("failed to unmarshal session record: %w", err)
	}
	return record.UserID, nil
}

// InvalidateSession removes the session immediately. Invalidating an
// absent or already-expired session is a no-op.
func (m *Manager) InvalidateSession(ctx context.Context, sessionID string) error {
	if err := m.store.Delete(ctx, keyPrefix+sessionID); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	util.Debug("Session invalidated")
	return nil
}

// TTL reports the configured session lifetime, used by the HTTP layer for
// the cookie max age.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}
