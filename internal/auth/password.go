package auth

import (
	"crypto"
	"crypto/rand"
	_ "crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	_ "golang.org/x/crypto/blake2b"
	_ "golang.org/x/crypto/sha3"
)

const saltSize = 16

// DefaultHashAlgorithm is used when no algorithm is configured.
const DefaultHashAlgorithm = "SHA-256"

var hashAlgorithms = map[string]crypto.Hash{
	"SHA-256":     crypto.SHA256,
	"SHA3-256":    crypto.SHA3_256,
	"BLAKE2B-256": crypto.BLAKE2b_256,
}

// PasswordHasher produces salted one-way password digests.
type PasswordHasher struct {
	algorithm string
	hash      crypto.Hash
}

// NewPasswordHasher fails with ErrFatal if algorithm is unknown or not linked into the binary.
func NewPasswordHasher(algorithm string) (*PasswordHasher, error) {
	algorithm = strings.ToUpper(strings.TrimSpace(algorithm))
	if algorithm == "" {
		algorithm = DefaultHashAlgorithm
	}
	h, ok := hashAlgorithms[algorithm]
	if !ok || !h.Available() {
		return nil, fmt.Errorf("%w: hash algorithm %q is unavailable", ErrFatal, algorithm)
	}
	return &PasswordHasher{algorithm: algorithm, hash: h}, nil
}

// Algorithm returns the configured digest name.
func (h *PasswordHasher) Algorithm() string { return h.algorithm }

// GenerateSalt returns a fresh random salt encoded for storage.
func (h *PasswordHasher) GenerateSalt() (string, error) {
	buf := make([]byte, saltSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// Encode digests salt followed by the raw password.
func (h *PasswordHasher) Encode(rawPassword, salt string) string {
	d := h.hash.New()
	d.Write([]byte(salt))
	d.Write([]byte(rawPassword))
	return base64.StdEncoding.EncodeToString(d.Sum(nil))
}

// Matches recomputes the digest and compares it in constant time.
func (h *PasswordHasher) Matches(rawPassword, salt, storedHash string) bool {
	computed := h.Encode(rawPassword, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
