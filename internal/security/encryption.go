package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

const (
	sealVersion = 1
	saltSize    = 16
	nonceSize   = 12
	keySize     = 32
	scryptR     = 8
	scryptP     = 1
)

// ErrSealCorrupted is returned when a sealed blob fails authentication or
// cannot be parsed.
var ErrSealCorrupted = errors.New("sealed data corrupted or tampered")

// Sealer encrypts small blobs at rest with AES-256-GCM. The key is derived
// per blob from the storage secret and a random salt using scrypt.
//
// Layout: version(1) | salt(16) | nonce(12) | ciphertext+tag
type Sealer struct {
	secret []byte
	n      int
}

// NewSealer creates a sealer. n is the scrypt CPU/memory cost and must be a
// power of two greater than 1.
func NewSealer(secret string, n int) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("storage secret cannot be empty")
	}
	if n < 2 || n&(n-1) != 0 {
		return nil, fmt.Errorf("scrypt N must be a power of two greater than 1, got %d", n)
	}
	return &Sealer{secret: []byte(secret), n: n}, nil
}

// Seal encrypts plaintext. aad is authenticated but not stored; Open must be
// given the same value.
func (s *Sealer) Seal(plaintext, aad []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := s.aead(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, 1+saltSize+nonceSize+len(plaintext)+gcm.Overhead())
	out = append(out, sealVersion)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, aad), nil
}

// Open decrypts a blob produced by Seal.
func (s *Sealer) Open(blob, aad []byte) ([]byte, error) {
	if len(blob) < 1+saltSize+nonceSize+16 {
		return nil, fmt.Errorf("%w: blob too short", ErrSealCorrupted)
	}
	if blob[0] != sealVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrSealCorrupted, blob[0])
	}

	salt := blob[1 : 1+saltSize]
	nonce := blob[1+saltSize : 1+saltSize+nonceSize]
	ciphertext := blob[1+saltSize+nonceSize:]

	gcm, err := s.aead(salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealCorrupted, err)
	}
	return plaintext, nil
}

func (s *Sealer) aead(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(s.secret, salt, s.n, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// SecureCompare performs constant-time comparison to prevent timing attacks
func SecureCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// MatchesDigest reports whether the SHA-256 of candidate equals the hex
// digest. An empty or malformed digest never matches.
func MatchesDigest(candidate, hexDigest string) bool {
	want, err := hex.DecodeString(hexDigest)
	if err != nil || len(want) != sha256.Size {
		return false
	}
	got := sha256.Sum256([]byte(candidate))
	return SecureCompare(got[:], want)
}
