package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"workflow-dashboard/internal/config"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidHash         = errors.New("invalid hash format")
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
	ErrUnsupportedHash     = errors.New("unsupported hash algorithm")
)

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Hasher produces argon2id password hashes in PHC string format and verifies
// both argon2id and bcrypt hashes.
type Hasher struct {
	params Argon2Params
	pepper string
	dummy  string
}

func NewHasher(cfg config.HashingConfig) *Hasher {
	params := Argon2Params{
		Memory:      uint32(cfg.Argon2MemoryCost),
		Iterations:  uint32(cfg.Argon2TimeCost),
		Parallelism: uint8(cfg.Argon2Parallelism),
		SaltLength:  16,
		KeyLength:   32,
	}
	if params.Memory == 0 {
		params.Memory = 64 * 1024
	}
	if params.Iterations == 0 {
		params.Iterations = 3
	}
	if params.Parallelism == 0 {
		params.Parallelism = 2
	}

	h := &Hasher{params: params, pepper: cfg.Pepper}

	// Hash of a random value, compared against when the account does not exist.
	seed := make([]byte, 16)
	_, _ = rand.Read(seed)
	h.dummy, _ = h.HashPassword(base64.RawStdEncoding.EncodeToString(seed))

	return h
}

// HashPassword returns $argon2id$v=19$m=..,t=..,p=..$salt$hash.
func (h *Hasher) HashPassword(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey(
		[]byte(password+h.pepper),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword compares password to an encoded hash in constant time.
// bcrypt hashes ($2a$, $2b$, $2y$) are accepted for accounts imported from the
// previous system; they are verified without the pepper.
func (h *Hasher) VerifyPassword(password, encoded string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, "$argon2id$"):
		return h.verifyArgon2(password, encoded)
	case strings.HasPrefix(encoded, "$2a$"), strings.HasPrefix(encoded, "$2b$"), strings.HasPrefix(encoded, "$2y$"):
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
		}
		return true, nil
	default:
		return false, ErrUnsupportedHash
	}
}

// DummyVerify spends the same work as a real verification. Used for unknown
// accounts so response time does not reveal whether an email exists.
func (h *Hasher) DummyVerify(password string) {
	if h.dummy == "" {
		return
	}
	_, _ = h.verifyArgon2(password, h.dummy)
}

// NeedsRehash reports whether encoded should be replaced by a fresh argon2id hash.
func (h *Hasher) NeedsRehash(encoded string) bool {
	params, _, _, err := decodeArgon2(encoded)
	if err != nil {
		return true
	}
	return params.Memory != h.params.Memory ||
		params.Iterations != h.params.Iterations ||
		params.Parallelism != h.params.Parallelism
}

func (h *Hasher) verifyArgon2(password, encoded string) (bool, error) {
	params, salt, expected, err := decodeArgon2(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(password+h.pepper),
		salt,
		params.Iterations,
		params.Memory,
		params.Parallelism,
		uint32(len(expected)),
	)

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

func decodeArgon2(encoded string) (*Argon2Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return nil, nil, nil, ErrIncompatibleVersion
	}

	p := &Argon2Params{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return nil, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, nil, ErrInvalidHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return nil, nil, nil, ErrInvalidHash
	}
	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))

	return p, salt, key, nil
}
