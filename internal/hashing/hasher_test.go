package hashing

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-auth/internal/config"
)

// newTestHasher uses deliberately cheap argon2 parameters so the suite
// stays fast; the derivation path is identical to production.
func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	cfg := &config.Config{}
	cfg.Hashing = config.HashingConfig{
		Argon2MemoryCost:  1024,
		Argon2TimeCost:    1,
		Argon2Parallelism: 1,
	}
	return NewHasher(cfg)
}

func TestDeriveHash_RoundTrip(t *testing.T) {
	h := newTestHasher(t)

	salt, err := h.GenerateSalt()
	require.NoError(t, err)

	hash, err := h.DeriveHash("Passw0rd!", salt)
	require.NoError(t, err)

	ok, err := h.Verify("Passw0rd!", salt, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("wrongpass", salt, hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeriveHash_Deterministic(t *testing.T) {
	h := newTestHasher(t)

	salt, err := h.GenerateSalt()
	require.NoError(t, err)

	hash1, err := h.DeriveHash("secret-password", salt)
	require.NoError(t, err)
	hash2, err := h.DeriveHash("secret-password", salt)
	require.NoError(t, err)

	assert.Equal(t, hash1, hash2)
}

func TestDeriveHash_DifferentPasswordsDiffer(t *testing.T) {
	h := newTestHasher(t)

	salt, err := h.GenerateSalt()
	require.NoError(t, err)

	hash1, err := h.DeriveHash("password-one", salt)
	require.NoError(t, err)
	hash2, err := h.DeriveHash("password-two", salt)
	require.NoError(t, err)

	assert.NotEqual(t, hash1, hash2)
}

func TestGenerateSalt_Unique(t *testing.T) {
	h := newTestHasher(t)

	const samples = 10000
	seen := make(map[string]struct{}, samples)
	for i := 0; i < samples; i++ {
		salt, err := h.GenerateSalt()
		require.NoError(t, err)
		_, dup := seen[salt]
		require.False(t, dup, "salt collision after %d samples", i)
		seen[salt] = struct{}{}
	}
}

func TestGenerateSalt_Length(t *testing.T) {
	h := newTestHasher(t)

	salt, err := h.GenerateSalt()
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(salt)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(raw), 16)
}

func TestVerify_MalformedInputs(t *testing.T) {
	h := newTestHasher(t)

	_, err := h.Verify("password", "not-valid-base64!!!", "")
	assert.ErrorIs(t, err, ErrInvalidHash)

	salt, err := h.GenerateSalt()
	require.NoError(t, err)
	_, err = h.Verify("password", salt, "not-valid-base64!!!")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

// TestVerify_TimingIndependence checks that comparison time does not
// depend on where the first mismatching byte is. The bound is generous:
// the KDF recomputation dominates, and the compare itself is constant
// time, so the two distributions should be statistically identical.
func TestVerify_TimingIndependence(t *testing.T) {
	h := newTestHasher(t)

	salt, err := h.GenerateSalt()
	require.NoError(t, err)
	hash, err := h.DeriveHash("timing-test-password", salt)
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(hash)
	require.NoError(t, err)

	// Mismatch in the last byte only vs mismatch in every byte.
	nearMatch := make([]byte, len(raw))
	copy(nearMatch, raw)
	nearMatch[len(nearMatch)-1] ^= 0xff

	allMismatch := make([]byte, len(raw))
	for i := range allMismatch {
		allMismatch[i] = raw[i] ^ 0xff
	}

	timeVerify := func(expected []byte) time.Duration {
		encoded := base64.RawURLEncoding.EncodeToString(expected)
		const rounds = 30
		start := time.Now()
		for i := 0; i < rounds; i++ {
			ok, err := h.Verify("timing-test-password", salt, encoded)
			require.NoError(t, err)
			require.False(t, ok)
		}
		return time.Since(start) / rounds
	}

	nearTime := timeVerify(nearMatch)
	farTime := timeVerify(allMismatch)

	ratio := float64(nearTime) / float64(farTime)
	assert.Greater(t, ratio, 0.2, "near-match verification suspiciously fast")
	assert.Less(t, ratio, 5.0, "near-match verification suspiciously slow")
}
