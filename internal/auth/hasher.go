// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

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

	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

// Argon2Params are the argon2id cost parameters written into new hashes.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultArgon2Params follow the OWASP baseline for argon2id.
var DefaultArgon2Params = Argon2Params{
	Time:    1,
	Memory:  64 * 1024,
	Threads: 4,
	SaltLen: 16,
	KeyLen:  32,
}

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = errutil.WithKind(errutil.KindValidation,
	oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty"))

// PasswordHasher hashes and checks account passwords.
type PasswordHasher interface {
	// Hash produces an encoded hash of the password.
	Hash(password string) (string, error)

	// Verify reports whether password matches hash. A mismatch is (false, nil);
	// an unparseable hash is an error.
	Verify(password, hash string) (bool, error)

	// NeedsUpgrade reports whether hash should be replaced after a
	// successful Verify.
	NeedsUpgrade(hash string) bool
}

// HasherOption configures an Argon2idHasher.
type HasherOption func(*Argon2idHasher)

// WithArgon2Params overrides DefaultArgon2Params.
func WithArgon2Params(p Argon2Params) HasherOption {
	return func(h *Argon2idHasher) { h.params = p }
}

// Argon2idHasher writes argon2id PHC strings. It also verifies bcrypt
// hashes carried over from account imports; those always need an upgrade.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates a hasher using DefaultArgon2Params unless
// overridden.
func NewArgon2idHasher(opts ...HasherOption) *Argon2idHasher {
	h := &Argon2idHasher{params: DefaultArgon2Params}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Hash returns $argon2id$v=19$m=<mem>,t=<time>,p=<threads>$<salt>$<key>.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	ph := phcHash{
		version: argon2.Version,
		params:  h.params,
		salt:    salt,
		key:     argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen),
	}
	return ph.String(), nil
}

// Verify checks password against an argon2id or bcrypt hash.
func (h *Argon2idHasher) Verify(password, encoded string) (bool, error) {
	if isBcrypt(encoded) {
		return verifyBcrypt(password, encoded)
	}

	ph, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	p := ph.params
	computed := argon2.IDKey([]byte(password), ph.salt, p.Time, p.Memory, p.Threads, p.KeyLen)
	return subtle.ConstantTimeCompare(computed, ph.key) == 1, nil
}

// NeedsUpgrade is true for bcrypt hashes, unparseable hashes and argon2id
// hashes written with weaker parameters than the hasher's.
func (h *Argon2idHasher) NeedsUpgrade(encoded string) bool {
	ph, err := parsePHC(encoded)
	if err != nil {
		return true
	}
	p := ph.params
	return p.Time < h.params.Time || p.Memory < h.params.Memory || p.KeyLen < h.params.KeyLen
}

type phcHash struct {
	version int
	params  Argon2Params
	salt    []byte
	key     []byte
}

func (ph phcHash) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		ph.version, ph.params.Memory, ph.params.Time, ph.params.Threads,
		base64.RawStdEncoding.EncodeToString(ph.salt),
		base64.RawStdEncoding.EncodeToString(ph.key))
}

func parsePHC(encoded string) (phcHash, error) {
	invalid := func(format string, args ...any) (phcHash, error) {
		return phcHash{}, oops.Code("AUTH_INVALID_HASH").Errorf(format, args...)
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return invalid("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return invalid("unsupported hash algorithm: %s", parts[1])
	}

	var ph phcHash
	if _, err := fmt.Sscanf(parts[2], "v=%d", &ph.version); err != nil {
		return phcHash{}, oops.Code("AUTH_INVALID_HASH").With("field", "version").Wrap(err)
	}

	var threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &ph.params.Memory, &ph.params.Time, &threads); err != nil {
		return phcHash{}, oops.Code("AUTH_INVALID_HASH").With("field", "params").Wrap(err)
	}
	if threads == 0 || threads > 255 {
		return invalid("threads value %d out of range", threads)
	}
	ph.params.Threads = uint8(threads)

	var err error
	if ph.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return phcHash{}, oops.Code("AUTH_INVALID_HASH").With("field", "salt").Wrap(err)
	}
	if ph.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return phcHash{}, oops.Code("AUTH_INVALID_HASH").With("field", "key").Wrap(err)
	}
	if len(ph.key) == 0 || len(ph.key) > 1<<10 {
		return invalid("invalid hash key length: %d", len(ph.key))
	}
	ph.params.SaltLen = uint32(len(ph.salt))
	ph.params.KeyLen = uint32(len(ph.key))
	return ph, nil
}

// Imported accounts carry bcrypt hashes ($2a$, $2b$, $2y$).
func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}

func verifyBcrypt(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, oops.Code("AUTH_INVALID_HASH").With("algorithm", "bcrypt").Wrap(err)
}
