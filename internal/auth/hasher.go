package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"

	"workspace-auth/internal/config"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
)

// Hasher produces argon2id digests in PHC string form:
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt>$<hash>
type Hasher struct {
	params config.Argon2
	// dummy is verified against when no user exists so both login failure
	// paths pay for one full argon2 computation.
	dummy string
}

type phcDigest struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func NewHasher(params config.Argon2) (*Hasher, error) {
	if params.MemoryKB < minMemoryKB {
		return nil, fmt.Errorf("argon2 memory must be >= %d KiB", minMemoryKB)
	}
	if params.Time < minTimeCost {
		return nil, errors.New("argon2 time cost must be >= 1")
	}
	if params.Parallelism < minParallelism {
		return nil, errors.New("argon2 parallelism must be >= 1")
	}
	if params.SaltLength < minSaltLength {
		return nil, fmt.Errorf("argon2 salt length must be >= %d", minSaltLength)
	}
	if params.KeyLength < minKeyLength {
		return nil, fmt.Errorf("argon2 key length must be >= %d", minKeyLength)
	}

	h := &Hasher{params: params}

	filler := make([]byte, 32)
	if _, err := rand.Read(filler); err != nil {
		return nil, fmt.Errorf("generate dummy password: %w", err)
	}
	dummy, err := h.Hash(base64.RawStdEncoding.EncodeToString(filler))
	if err != nil {
		return nil, fmt.Errorf("precompute dummy digest: %w", err)
	}
	h.dummy = dummy

	return h, nil
}

func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.MemoryKB, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.params.MemoryKB,
		h.params.Time,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches digest. A digest that cannot be
// parsed never matches.
func (h *Hasher) Verify(password, digest string) bool {
	parsed, err := parsePHC(digest)
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(password), parsed.salt, parsed.time, parsed.memory, parsed.parallelism, uint32(len(parsed.hash)))

	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1
}

// VerifyDummy burns the same work as Verify against a digest nobody owns.
func (h *Hasher) VerifyDummy(password string) {
	_ = h.Verify(password, h.dummy)
}

func parsePHC(digest string) (phcDigest, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" {
		return phcDigest{}, errors.New("invalid PHC format")
	}
	if parts[1] != algorithmID {
		return phcDigest{}, errors.New("unsupported algorithm")
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return phcDigest{}, errors.New("unsupported argon2 version")
	}

	var out phcDigest
	for _, pair := range strings.Split(parts[3], ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return phcDigest{}, errors.New("invalid parameter entry")
		}
		switch key {
		case "m":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v < uint64(minMemoryKB) {
				return phcDigest{}, errors.New("invalid memory parameter")
			}
			out.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v < uint64(minTimeCost) {
				return phcDigest{}, errors.New("invalid time parameter")
			}
			out.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(value, 10, 8)
			if err != nil || v < uint64(minParallelism) {
				return phcDigest{}, errors.New("invalid parallelism parameter")
			}
			out.parallelism = uint8(v)
		default:
			return phcDigest{}, errors.New("unknown parameter")
		}
	}
	if out.memory == 0 || out.time == 0 || out.parallelism == 0 {
		return phcDigest{}, errors.New("missing argon2 parameter")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < int(minSaltLength) {
		return phcDigest{}, errors.New("invalid salt")
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) < int(minKeyLength) {
		return phcDigest{}, errors.New("invalid hash")
	}
	out.salt = salt
	out.hash = hash

	return out, nil
}
