// Package passhash decodes, verifies and produces the administrator password
// hash. Two schemes coexist: a legacy unsalted SHA-256 hex digest and a
// salted bcrypt hash. A stored string is decoded once into a Hash and the
// scheme is never re-inspected afterwards.
package passhash

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/platedash/internal/util"
)

// Kind identifies the scheme that produced a Hash.
type Kind int

const (
	// Legacy is an unsalted SHA-256 digest, stored as 64 hex characters.
	Legacy Kind = iota + 1
	// Modern is a bcrypt hash in its standard "$2b$<cost>$<salt><sum>" form.
	Modern
)

func (k Kind) String() string {
	switch k {
	case Legacy:
		return "legacy"
	case Modern:
		return "bcrypt"
	default:
		return "unknown"
	}
}

const (
	// DefaultCost is the bcrypt cost used for new hashes.
	DefaultCost = bcrypt.DefaultCost
	// MaxPasswordBytes is the longest password bcrypt can represent.
	MaxPasswordBytes = 72

	legacyDigestLen = sha256.Size
	bcryptSaltLen   = 22
	bcryptPrefixLen = 7 // "$2b$10$"
)

var (
	// ErrMalformed is returned when a stored hash matches neither scheme.
	ErrMalformed = errors.New("malformed password hash")
	// ErrEmptyPassword is returned when hashing an empty password.
	ErrEmptyPassword = errors.New("password is empty")
	// ErrTooLong is returned when a password exceeds MaxPasswordBytes.
	ErrTooLong = fmt.Errorf("password exceeds %d bytes", MaxPasswordBytes)
)

// Hash is a decoded password hash. The zero value verifies nothing.
type Hash struct {
	kind Kind

	// legacy
	digest []byte

	// modern
	encoded []byte
	salt    []byte
	cost    int
}

// Parse decodes a stored hash string.
func Parse(s string) (Hash, error) {
	if strings.HasPrefix(s, "$2") {
		return parseBcrypt(s)
	}
	if len(s) == hex.EncodedLen(legacyDigestLen) {
		digest, err := hex.DecodeString(s)
		if err != nil {
			return Hash{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return Hash{kind: Legacy, digest: digest}, nil
	}
	return Hash{}, ErrMalformed
}

func parseBcrypt(s string) (Hash, error) {
	cost, err := bcrypt.Cost([]byte(s))
	if err != nil {
		return Hash{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(s) < bcryptPrefixLen+bcryptSaltLen {
		return Hash{}, ErrMalformed
	}
	return Hash{
		kind:    Modern,
		encoded: []byte(s),
		salt:    []byte(s[bcryptPrefixLen : bcryptPrefixLen+bcryptSaltLen]),
		cost:    cost,
	}, nil
}

// NewLegacy hashes password with the legacy scheme. It exists so that
// installs created before the bcrypt migration can be reproduced in tests
// and imports; new credentials always use NewModern.
func NewLegacy(password string) Hash {
	sum := sha256.Sum256([]byte(password))
	return Hash{kind: Legacy, digest: sum[:]}
}

// NewModern hashes password with bcrypt at the given cost. A cost outside
// bcrypt's accepted range falls back to DefaultCost.
func NewModern(password string, cost int) (Hash, error) {
	if password == "" {
		return Hash{}, ErrEmptyPassword
	}
	if len(password) > MaxPasswordBytes {
		return Hash{}, ErrTooLong
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	pw := []byte(password)
	defer util.WipeBytes(pw)
	encoded, err := bcrypt.GenerateFromPassword(pw, cost)
	if err != nil {
		return Hash{}, fmt.Errorf("generating bcrypt hash: %w", err)
	}
	return parseBcrypt(string(encoded))
}

// Kind reports the scheme of h.
func (h Hash) Kind() Kind { return h.kind }

// IsLegacy reports whether h should be migrated.
func (h Hash) IsLegacy() bool { return h.kind == Legacy }

// Cost returns the bcrypt cost, or 0 for legacy hashes.
func (h Hash) Cost() int { return h.cost }

// Salt returns the encoded bcrypt salt, or nil for legacy hashes.
func (h Hash) Salt() []byte { return h.salt }

// Verify reports whether password matches h. Comparisons are constant time
// with respect to the stored digest.
func (h Hash) Verify(password string) bool {
	if password == "" {
		return false
	}
	switch h.kind {
	case Legacy:
		sum := sha256.Sum256([]byte(password))
		return subtle.ConstantTimeCompare(sum[:], h.digest) == 1
	case Modern:
		// bcrypt only looks at the first 72 bytes; a longer candidate can
		// never be the password that produced h.
		if len(password) > MaxPasswordBytes {
			return false
		}
		pw := []byte(password)
		defer util.WipeBytes(pw)
		return bcrypt.CompareHashAndPassword(h.encoded, pw) == nil
	default:
		return false
	}
}

// String returns the self-describing stored form of h.
func (h Hash) String() string {
	switch h.kind {
	case Legacy:
		return hex.EncodeToString(h.digest)
	case Modern:
		return string(h.encoded)
	default:
		return ""
	}
}
