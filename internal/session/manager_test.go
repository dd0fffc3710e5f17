package session

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-auth/internal/store"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestManager(t *testing.T, ttl time.Duration) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	mem := store.NewMemory()
	mem.SetClock(clock.Now)
	return NewManager(mem, ttl), clock
}

// unavailableStore simulates an unreachable backing service.
type unavailableStore struct{}

func (unavailableStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	return fmt.Errorf("%w: connection refused", store.ErrUnavailable)
}

func (unavailableStore) Get(ctx context.Context, key string) (string, error) {
	return "", fmt.Errorf("%w: connection refused", store.ErrUnavailable)
}

func (unavailableStore) Delete(ctx context.Context, keys ...string) error {
	return fmt.Errorf("%w: connection refused", store.ErrUnavailable)
}

func (unavailableStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return 0, fmt.Errorf("%w: connection refused", store.ErrUnavailable)
}

func (unavailableStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	return nil, fmt.Errorf("%w: connection refused", store.ErrUnavailable)
}

func TestCreateAndResolveSession(t *testing.T) {
	m, _ := newTestManager(t, time.Hour)
	ctx := context.Background()

	token, err := m.CreateSession(ctx, "user-123")
	require.NoError(t, err)

	userID, err := m.ResolveSession(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)
}

func TestSessionToken_Opaque(t *testing.T) {
	m, _ := newTestManager(t, time.Hour)

	token, err := m.CreateSession(context.Background(), "user-123")
	require.NoError(t, err)

	// 256 bytes of randomness, hex-encoded
	assert.Len(t, token, 512)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]+$`), token)
}

func TestCreateSession_MultiSession(t *testing.T) {
	m, _ := newTestManager(t, time.Hour)
	ctx := context.Background()

	token1, err := m.CreateSession(ctx, "user-123")
	require.NoError(t, err)
	token2, err := m.CreateSession(ctx, "user-123")
	require.NoError(t, err)

	assert.NotEqual(t, token1, token2)

	// Both sessions are independently valid
	userID, err := m.ResolveSession(ctx, token1)
	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)
	userID, err = m.ResolveSession(ctx, token2)
	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)
}

func TestResolveSession_Expired(t *testing.T) {
	m, clock := newTestManager(t, time.Second)
	ctx := context.Background()

	token, err := m.CreateSession(ctx, "user-123")
	require.NoError(t, err)

	clock.Advance(1500 * time.Millisecond)

	_, err = m.ResolveSession(ctx, token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestInvalidateSession_Immediate(t *testing.T) {
	m, _ := newTestManager(t, time.Hour)
	ctx := context.Background()

	token, err := m.CreateSession(ctx, "user-123")
	require.NoError(t, err)

	require.NoError(t, m.InvalidateSession(ctx, token))

	// No TTL wait required
	_, err = m.ResolveSession(ctx, token)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Invalidating again is a no-op
	require.NoError(t, m.InvalidateSession(ctx, token))
}

func TestResolveSession_Unknown(t *testing.T) {
	m, _ := newTestManager(t, time.Hour)

	_, err := m.ResolveSession(context.Background(), "never-issued")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

// A store outage must surface distinctly from "no session" so callers can
// fail closed instead of treating everyone as logged out.
func TestStoreUnavailable_Distinct(t *testing.T) {
	m := NewManager(unavailableStore{}, time.Hour)
	ctx := context.Background()

	_, err := m.ResolveSession(ctx, "some-token")
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.NotErrorIs(t, err, ErrSessionNotFound)

	_, err = m.CreateSession(ctx, "user-123")
	assert.ErrorIs(t, err, store.ErrUnavailable)
}
