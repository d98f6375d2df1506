// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Supported digest algorithms.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// DefaultBcryptCost matches the work factor of digests written by the
// previous service, so existing accounts verify without an upgrade.
const DefaultBcryptCost = 10

const (
	argon2SaltLen = 16
	argon2KeyLen  = 32

	// bcrypt ignores input past this length; we reject it instead.
	bcryptMaxPasswordBytes = 72
)

// Argon2Params are the argon2id cost parameters.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultArgon2Params are the OWASP-recommended argon2id parameters.
var DefaultArgon2Params = Argon2Params{Time: 1, Memory: 64 * 1024, Threads: 4}

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted digest of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the digest.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on a malformed digest.
	Verify(password, digest string) (bool, error)

	// NeedsUpgrade reports whether the digest was produced with a different
	// algorithm or cost than the hasher currently writes.
	NeedsUpgrade(digest string) bool
}

// HasherConfig selects the algorithm and cost used for new digests.
type HasherConfig struct {
	Algorithm  string
	BcryptCost int
	Argon2     Argon2Params
}

// CredentialHasher writes digests with one configured algorithm and
// verifies digests of every supported algorithm.
type CredentialHasher struct {
	cfg HasherConfig
}

var _ PasswordHasher = (*CredentialHasher)(nil)

// NewCredentialHasher creates a hasher from cfg. Zero cost values fall back
// to the defaults.
func NewCredentialHasher(cfg HasherConfig) (*CredentialHasher, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgorithmBcrypt
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = DefaultBcryptCost
	}
	if cfg.Argon2 == (Argon2Params{}) {
		cfg.Argon2 = DefaultArgon2Params
	}

	switch cfg.Algorithm {
	case AlgorithmBcrypt:
		if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
			return nil, oops.Code("AUTH_HASHER_CONFIG_INVALID").
				With("cost", cfg.BcryptCost).
				Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
		}
	case AlgorithmArgon2id:
		if cfg.Argon2.Time == 0 || cfg.Argon2.Memory == 0 || cfg.Argon2.Threads == 0 {
			return nil, oops.Code("AUTH_HASHER_CONFIG_INVALID").
				With("time", cfg.Argon2.Time).
				With("memory", cfg.Argon2.Memory).
				With("threads", cfg.Argon2.Threads).
				Errorf("argon2id parameters must be positive")
		}
	default:
		return nil, oops.Code("AUTH_HASHER_CONFIG_INVALID").
			With("algorithm", cfg.Algorithm).
			Errorf("unsupported hash algorithm: %s", cfg.Algorithm)
	}

	return &CredentialHasher{cfg: cfg}, nil
}

// NewBcryptHasher creates a hasher writing bcrypt digests at the given cost.
func NewBcryptHasher(cost int) (*CredentialHasher, error) {
	return NewCredentialHasher(HasherConfig{Algorithm: AlgorithmBcrypt, BcryptCost: cost})
}

// NewArgon2idHasher creates a hasher writing argon2id digests with the default parameters.
func NewArgon2idHasher() *CredentialHasher {
	return &CredentialHasher{cfg: HasherConfig{
		Algorithm:  AlgorithmArgon2id,
		BcryptCost: DefaultBcryptCost,
		Argon2:     DefaultArgon2Params,
	}}
}

// Algorithm returns the algorithm used for new digests.
func (h *CredentialHasher) Algorithm() string {
	return h.cfg.Algorithm
}

// Hash produces a digest of the password with a fresh random salt.
func (h *CredentialHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	if h.cfg.Algorithm == AlgorithmArgon2id {
		return h.hashArgon2id(password)
	}
	return h.hashBcrypt(password)
}

func (h *CredentialHasher) hashBcrypt(password string) (string, error) {
	if len(password) > bcryptMaxPasswordBytes {
		return "", oops.Code(CodePasswordTooLong).
			With("max_bytes", bcryptMaxPasswordBytes).
			Public(fmt.Sprintf("%q length must be less than or equal to %d bytes long", "password", bcryptMaxPasswordBytes)).
			Errorf("password exceeds %d bytes", bcryptMaxPasswordBytes)
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cfg.BcryptCost)
	if err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").With("algorithm", AlgorithmBcrypt).Wrap(err)
	}
	return string(digest), nil
}

func (h *CredentialHasher) hashArgon2id(password string) (string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	p := h.cfg.Argon2
	key := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return fmt.Sprintf(
		"$argon2id$v=%d$%s$%s$%s",
		argon2.Version,
		argon2ParamString(p),
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks the password against a bcrypt or argon2id digest.
func (h *CredentialHasher) Verify(password, digest string) (bool, error) {
	switch {
	case isBcryptDigest(digest):
		return verifyBcrypt(password, digest)
	case strings.HasPrefix(digest, "$argon2id$"):
		return verifyArgon2id(password, digest)
	}

	parts := strings.Split(digest, "$")
	if len(parts) < 3 || parts[0] != "" {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}
	return false, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
}

// NeedsUpgrade reports whether digest differs from what Hash would write now.
func (h *CredentialHasher) NeedsUpgrade(digest string) bool {
	if h.cfg.Algorithm == AlgorithmBcrypt {
		if !isBcryptDigest(digest) {
			return true
		}
		cost, err := bcrypt.Cost([]byte(digest))
		return err != nil || cost != h.cfg.BcryptCost
	}

	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return true
	}
	return parts[3] != argon2ParamString(h.cfg.Argon2)
}

func verifyBcrypt(password, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, oops.Code("AUTH_INVALID_HASH").With("algorithm", AlgorithmBcrypt).Wrap(err)
}

func verifyArgon2id(password, digest string) (bool, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	if threads == 0 || threads > 255 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}

	keyLen := len(expected)
	if keyLen == 0 || keyLen > 1<<30 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", keyLen)
	}

	computed := argon2.IDKey([]byte(password), salt, time, memory, uint8(threads), uint32(keyLen))

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

func isBcryptDigest(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}

func argon2ParamString(p Argon2Params) string {
	return fmt.Sprintf("m=%d,t=%d,p=%d", p.Memory, p.Time, p.Threads)
}
