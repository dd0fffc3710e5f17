package otp

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"lms-auth/internal/bucketing"
	"lms-auth/internal/hashing"
	"lms-auth/internal/store"
	"lms-auth/internal/util"
)

const (
	keyPrefix     = "otp:"
	attemptPrefix = "otp_attempts:"

	// CodeLength is the fixed length of issued numeric codes.
	CodeLength = 6
)

var (
	// ErrCodeNotFound covers every "request a new code" outcome: never
	// issued, already consumed, expired, or swept. It is deliberately not
	// split further.
	ErrCodeNotFound = errors.New("otp not found or expired")

	// ErrCodeMismatch means an active code exists but the supplied one is
	// wrong.
	ErrCodeMismatch = errors.New("otp code mismatch")

	// ErrMalformedCode means the supplied code is not a six-digit string.
	ErrMalformedCode = errors.New("malformed otp code")

	// ErrTooManyAttempts means the active code was invalidated after too
	// many failed verifications.
	ErrTooManyAttempts = errors.New("too many otp verification attempts")
)

var codePattern = regexp.MustCompile(`^\d{6}$`)

// Record is the stored shape of an issued code. The code itself is kept
// only as a salted argon2 hash.
type Record struct {
	CodeHash  string `json:"code_hash"`
	Salt      string `json:"salt"`
	CreatedAt int64  `json:"created_at"`
}

// Manager owns the one-time-passcode lifecycle: issue, verify-and-consume,
// and sweep. One record is active per subject; issuing again supersedes the
// previous code. The manager has no self-scheduling behavior; the process
// composition root calls SweepExpired on a timer.
type Manager struct {
	store       store.Store
	hasher      *hashing.Hasher
	buckets     *bucketing.Manager
	window      time.Duration
	maxAttempts int

	now func() time.Time
}

func NewManager(st store.Store, hasher *hashing.Hasher, buckets *bucketing.Manager, window time.Duration, maxAttempts int) *Manager {
	return &Manager{
		store:       st,
		hasher:      hasher,
		buckets:     buckets,
		window:      window,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Issue generates a fresh six-digit code for the subject, persists its
// hashed record, and returns the code for out-of-band delivery. Any
// previously active code for the subject is superseded.
func (m *Manager) Issue(ctx context.Context, subjectEmail string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}

	salt, err := m.hasher.GenerateSalt()
	if err != nil {
		return "", fmt.Errorf("failed to issue otp: %w", err)
	}
	codeHash, err := m.hasher.DeriveHash(code, salt)
	if err != nil {
		return "", fmt.Errorf("failed to issue otp: %w", err)
	}

	record := Record{
		CodeHash:  codeHash,
		Salt:      salt,
		CreatedAt: m.now().UTC().Unix(),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal otp record: %w", err)
	}

	// No native TTL here: freshness is checked against created_at on
	// verification and stale records are purged by the periodic sweep.
	if err := m.store.Put(ctx, m.key(subjectEmail), string(payload), 0); err != nil {
		return "", fmt.Errorf("failed to persist otp: %w", err)
	}

	// Fresh code, fresh attempt budget.
	if err := m.store.Delete(ctx, m.attemptKey(subjectEmail)); err != nil {
		util.Warn("Failed to reset otp attempt counter", util.ErrorField(err))
	}

	util.Info("OTP issued", util.Int("subject_bucket", m.buckets.SubjectBucket(subjectEmail)))

	return code, nil
}

// Verify checks the supplied code against the subject's active record and
// consumes the record on success, so a verified code cannot be replayed.
// Absent, expired, or consumed codes yield ErrCodeNotFound; a wrong or
// superseded code checked against an active record yields ErrCodeMismatch.
// Both fail closed.
func (m *Manager) Verify(ctx context.Context, subjectEmail, suppliedCode string) error {
	if !codePattern.MatchString(suppliedCode) {
		return ErrMalformedCode
	}

	key := m.key(subjectEmail)

	value, err := m.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrCodeNotFound
		}
		return fmt.Errorf("failed to fetch otp: %w", err)
	}

	var record Record
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		return fmt.Errorf("failed to unmarshal otp record: %w", err)
	}

	if m.now().UTC().Sub(time.Unix(record.CreatedAt, 0)) > m.window {
		if err := m.store.Delete(ctx, key, m.attemptKey(subjectEmail)); err != nil {
			util.Warn("Failed to delete expired otp", util.ErrorField(err))
		}
		return ErrCodeNotFound
	}

	attempts, err := m.store.Incr(ctx, m.attemptKey(subjectEmail), m.window)
	if err != nil {
		return fmt.Errorf("failed to count otp attempt: %w", err)
	}
	if attempts > int64(m.maxAttempts) {
		if err := m.store.Delete(ctx, key, m.attemptKey(subjectEmail)); err != nil {
			util.Warn("Failed to delete otp after attempt limit", util.ErrorField(err))
		}
		util.Warn("OTP invalidated after too many attempts",
			util.Int("subject_bucket", m.buckets.SubjectBucket(subjectEmail)))
		return ErrTooManyAttempts
	}

	ok, err := m.hasher.Verify(suppliedCode, record.Salt, record.CodeHash)
	if err != nil {
		return fmt.Errorf("failed to verify otp: %w", err)
	}
	if !ok {
		return ErrCodeMismatch
	}

	// Consume. A failed delete must fail the verification: leaving the
	// record behind would make the code replayable.
	if err := m.store.Delete(ctx, key, m.attemptKey(subjectEmail)); err != nil {
		return fmt.Errorf("failed to consume otp: %w", err)
	}

	util.Info("OTP verified", util.Int("subject_bucket", m.buckets.SubjectBucket(subjectEmail)))
	return nil
}

// SweepExpired deletes every record older than maxAge and reports how many
// were removed. Deletion is idempotent, so overlapping sweep runs are
// harmless.
func (m *Manager) SweepExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	keys, err := m.store.Scan(ctx, keyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("failed to scan otp records: %w", err)
	}

	cutoff := m.now().UTC().Add(-maxAge).Unix()
	removed := 0

	for _, key := range keys {
		value, err := m.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue // already gone, nothing to do
			}
			return removed, fmt.Errorf("failed to fetch otp record during sweep: %w", err)
		}

		var record Record
		if err := json.Unmarshal([]byte(value), &record); err != nil {
			util.Warn("Sweep found malformed otp record", util.String("key", key))
			continue
		}

		if record.CreatedAt < cutoff {
			if err := m.store.Delete(ctx, key); err != nil {
				return removed, fmt.Errorf("failed to delete expired otp record: %w", err)
			}
			removed++
		}
	}

	util.Info("OTP sweep completed",
		util.Int("keys_checked", len(keys)),
		util.Int("removed", removed))

	return removed, nil
}

func (m *Manager) key(subjectEmail string) string {
	email := strings.ToLower(subjectEmail)
	return fmt.Sprintf("%s%d:%s", keyPrefix, m.buckets.SubjectBucket(email), email)
}

func (m *Manager) attemptKey(subjectEmail string) string {
	return attemptPrefix + strings.ToLower(subjectEmail)
}

func generateCode() (string, error) {
	max := big.NewInt(1000000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate otp code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n), nil
}
