package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2SaltLen = 16
	argon2KeyLen  = 32
)

// Argon2idHasher encodes hashes in PHC string format:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
type Argon2idHasher struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	SaltLen int
	KeyLen  uint32
}

// NewArgon2idHasher returns a hasher with the default parameters.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{
		Time:    argon2Time,
		Memory:  argon2Memory,
		Threads: argon2Threads,
		SaltLen: argon2SaltLen,
		KeyLen:  argon2KeyLen,
	}
}

func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", oops.Code("AUTH_VALIDATION").Wrap(ErrEmptyPassword)
	}

	salt := make([]byte, h.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("PASSWORD_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.Time, h.Memory, h.Threads, h.KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.Memory,
		h.Time,
		h.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the key with the parameters recorded in hash.
func (h *Argon2idHasher) Verify(password, hash string) bool {
	params, salt, expected, ok := decodeArgon2id(hash)
	if !ok {
		return false
	}
	computed := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1
}

func decodeArgon2id(encoded string) (params Argon2idHasher, salt, key []byte, ok bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return params, nil, nil, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return params, nil, nil, false
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return params, nil, nil, false
	}
	if threads == 0 || threads > 255 || time == 0 || memory == 0 || memory > 1<<20 {
		return params, nil, nil, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return params, nil, nil, false
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > 1<<10 {
		return params, nil, nil, false
	}

	params = Argon2idHasher{Time: time, Memory: memory, Threads: uint8(threads)}
	return params, salt, key, true
}
