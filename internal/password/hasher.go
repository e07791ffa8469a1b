// Package password hashes and verifies account passwords.
package password

import (
	"errors"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"

	"authgate/internal/domain"
)

// Supported algorithm names, as used by the auth.hasher config key.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// bcrypt ignores everything after the 72nd byte, so longer inputs are rejected.
const bcryptMaxLength = 72

// validationError is a password rule violation; it matches domain.ErrValidation.
// Sentinels stay plain values: oops errors match any other oops error in errors.Is.
type validationError string

func (e validationError) Error() string { return string(e) }

func (e validationError) Unwrap() error { return domain.ErrValidation }

const (
	// ErrEmptyPassword is returned when hashing an empty password.
	ErrEmptyPassword validationError = "password cannot be empty"
	// ErrPasswordTooLong is returned when the password exceeds what bcrypt can hash.
	ErrPasswordTooLong validationError = "password must be at most 72 bytes"
)

// Hash prefixes used to pick a verifier.
var (
	bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}
	argon2idPrefix = "$" + AlgorithmArgon2id + "$"
)

// Hasher produces and checks salted one-way password hashes. The encoded
// hash carries its own algorithm parameters.
type Hasher interface {
	Hash(password string) (string, error)

	// Verify reports whether password matches hash. Malformed hashes never match.
	Verify(password, hash string) bool
}

// New returns a Hasher that hashes with algorithm and verifies any supported
// hash by its prefix, so changing algorithms keeps existing accounts working.
// An empty name selects bcrypt.
func New(algorithm string, bcryptCost int) (Hasher, error) {
	bcryptHasher, err := NewBcryptHasher(bcryptCost)
	if err != nil {
		return nil, err
	}
	h := &hasher{bcrypt: bcryptHasher, argon2id: NewArgon2idHasher()}

	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", AlgorithmBcrypt:
		h.primary = h.bcrypt
	case AlgorithmArgon2id:
		h.primary = h.argon2id
	default:
		return nil, oops.Code("PASSWORD_UNKNOWN_ALGORITHM").
			With("algorithm", algorithm).
			Errorf("unsupported password hasher %q", algorithm)
	}
	return h, nil
}

// hasher hashes with primary and dispatches Verify on the hash prefix.
type hasher struct {
	primary  Hasher
	bcrypt   *BcryptHasher
	argon2id *Argon2idHasher
}

func (h *hasher) Hash(password string) (string, error) {
	return h.primary.Hash(password)
}

func (h *hasher) Verify(password, hash string) bool {
	if strings.HasPrefix(hash, argon2idPrefix) {
		return h.argon2id.Verify(password, hash)
	}
	for _, prefix := range bcryptPrefixes {
		if strings.HasPrefix(hash, prefix) {
			return h.bcrypt.Verify(password, hash)
		}
	}
	return false
}

// BcryptHasher hashes passwords with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a BcryptHasher. A zero cost selects bcrypt.DefaultCost.
func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, oops.Code("PASSWORD_INVALID_COST").
			With("cost", cost).
			Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &BcryptHasher{cost: cost}, nil
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", oops.Code("AUTH_VALIDATION").Wrap(ErrEmptyPassword)
	}
	if len(password) > bcryptMaxLength {
		return "", oops.Code("AUTH_VALIDATION").With("length", len(password)).Wrap(ErrPasswordTooLong)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", oops.Code("AUTH_VALIDATION").Wrap(ErrPasswordTooLong)
		}
		return "", oops.Code("PASSWORD_HASH_FAILED").Wrap(err)
	}
	return string(hash), nil
}

// Verify relies on bcrypt's constant-time digest comparison. bcrypt only reads
// the first 72 bytes, so longer passwords can never match.
func (h *BcryptHasher) Verify(password, hash string) bool {
	if hash == "" || len(password) > bcryptMaxLength {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
