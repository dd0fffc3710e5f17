package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"lms-auth/internal/config"

	"golang.org/x/crypto/argon2"
)

var ErrInvalidHash = errors.New("invalid hash format")

// Algorithm identifies the derivation stored alongside credential records.
const Algorithm = "argon2id-v1"

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Hasher derives and verifies argon2id password hashes. Derivation is
// deterministic over (password, salt); every credential carries its own
// salt, generated fresh before each derivation.
type Hasher struct {
	params Argon2Params
}

func NewHasher(cfg *config.Config) *Hasher {
	return &Hasher{
		params: Argon2Params{
			Memory:      uint32(cfg.Hashing.Argon2MemoryCost),
			Iterations:  uint32(cfg.Hashing.Argon2TimeCost),
			Parallelism: uint8(cfg.Hashing.Argon2Parallelism),
			SaltLength:  32,
			KeyLength:   32,
		},
	}
}

// GenerateSalt produces a fresh random salt, base64-encoded. An entropy
// failure is returned to the caller; there is no weaker fallback path.
func (h *Hasher) GenerateSalt() (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(salt), nil
}

// DeriveHash computes the argon2id hash of password under the given salt.
func (h *Hasher) DeriveHash(password, salt string) (string, error) {
	rawSalt, err := base64.RawURLEncoding.DecodeString(salt)
	if err != nil {
		return "", ErrInvalidHash
	}

	hash := argon2.IDKey(
		[]byte(password),
		rawSalt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return base64.RawURLEncoding.EncodeToString(hash), nil
}

// Verify recomputes the hash for password under salt and compares it to
// expectedHash in constant time.
func (h *Hasher) Verify(password, salt, expectedHash string) (bool, error) {
	rawSalt, err := base64.RawURLEncoding.DecodeString(salt)
	if err != nil {
		return false, ErrInvalidHash
	}

	expected, err := base64.RawURLEncoding.DecodeString(expectedHash)
	if err != nil {
		return false, ErrInvalidHash
	}

	computed := argon2.IDKey(
		[]byte(password),
		rawSalt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		uint32(len(expected)),
	)

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}
