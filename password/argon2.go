package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	minSecretBytes        = 8
	algorithmID           = "argon2id"
)

var (
	ErrSecretTooShort = errors.New("secret must be at least 8 bytes")
	ErrHashMalformed  = errors.New("malformed password hash")
)

// Config tunes the argon2id cost parameters.
type Config struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Hasher hashes and verifies secrets. Immutable after construction.
type Hasher struct {
	config    Config
	dummyHash string
}

func NewHasher(cfg Config) (*Hasher, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	h := &Hasher{config: cfg}

	// Precompute a throwaway hash so DummyVerify costs the same as a real
	// verification without rehashing at every miss.
	dummy, err := h.Hash("tokengate-dummy-secret")
	if err != nil {
		return nil, err
	}
	h.dummyHash = dummy

	return h, nil
}

// Hash derives an argon2id hash of secret in PHC format. Secret bytes are
// used exactly as provided (no Unicode normalization).
func (h *Hasher) Hash(secret string) (string, error) {
	if len(secret) < minSecretBytes {
		return "", ErrSecretTooShort
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(secret),
		salt,
		h.config.Time,
		h.config.Memory,
		h.config.Parallelism,
		h.config.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.config.Memory,
		h.config.Time,
		h.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether candidate matches encodedHash. Comparison is
// constant-time in the derived key.
func (h *Hasher) Verify(candidate, encodedHash string) (bool, error) {
	memory, timeCost, parallelism, salt, key, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(candidate),
		salt,
		timeCost,
		memory,
		parallelism,
		uint32(len(key)),
	)

	return subtle.ConstantTimeCompare(computed, key) == 1, nil
}

// DummyVerify performs a verification against a fixed throwaway hash and
// discards the result. Callers invoke it when the identifier lookup misses
// so a miss and a mismatch take comparable time.
func (h *Hasher) DummyVerify(candidate string) {
	_, _ = h.Verify(candidate, h.dummyHash)
}

func decodeHash(encodedHash string) (memory, timeCost uint32, parallelism uint8, salt, key []byte, err error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return 0, 0, 0, nil, nil, ErrHashMalformed
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return 0, 0, 0, nil, nil, ErrHashMalformed
	}
	if version != argon2.Version {
		return 0, 0, 0, nil, nil, errors.New("unsupported argon2 version")
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &parallelism); err != nil {
		return 0, 0, 0, nil, nil, ErrHashMalformed
	}
	if memory < minMemoryKB || timeCost < minTimeCost || parallelism < minParallelism {
		return 0, 0, 0, nil, nil, ErrHashMalformed
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || uint32(len(salt)) < minSaltLength {
		return 0, 0, 0, nil, nil, ErrHashMalformed
	}

	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return 0, 0, 0, nil, nil, ErrHashMalformed
	}

	return memory, timeCost, parallelism, salt, key, nil
}

func validateConfig(cfg Config) error {
	if cfg.Memory < minMemoryKB {
		return errors.New("password memory must be >= 8192 KB")
	}
	if cfg.Time < minTimeCost {
		return errors.New("password time must be >= 1")
	}
	if cfg.Parallelism < minParallelism {
		return errors.New("password parallelism must be >= 1")
	}
	if cfg.SaltLength < minSaltLength {
		return errors.New("password salt length must be >= 16")
	}
	if cfg.KeyLength < minKeyLength {
		return errors.New("password key length must be >= 16")
	}

	return nil
}
