package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

var (
	// ErrEncryption is returned when sealing a payload fails.
	ErrEncryption = errors.New("encryption failed")
	// ErrDecryption is returned for malformed payloads and failed tag verification.
	ErrDecryption = errors.New("decryption failed")
)

// Encryptor defines an interface for encrypting/decrypting payloads stored at rest.
type Encryptor interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(payload string) ([]byte, error)
}

// AESGCMEncryptor implements Encryptor using AES-256-GCM.
//
// Payloads are encoded as hex(iv):hex(tag):hex(ciphertext).
type AESGCMEncryptor struct {
	key []byte // 32 bytes
}

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	ivSize       = 12
	legacyIVSize = 16
	tagSize      = 16
	separator    = ":"
	noopPrefix   = "noop:"

	hkdfSalt = "hakim-identity/payload-key/v1"
)

// NewAESGCMEncryptor constructs a new AESGCMEncryptor. Key must be 32 bytes (AES-256).
func NewAESGCMEncryptor(key []byte) (*AESGCMEncryptor, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("aes-gcm key must be 32 bytes, got %d", len(key))
	}
	return &AESGCMEncryptor{key: append([]byte(nil), key...)}, nil
}

// Encrypt seals plaintext under a fresh random IV.
func (e *AESGCMEncryptor) Encrypt(plaintext []byte) (string, error) {
	gcm, err := e.aead(ivSize)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncryption, err)
	}
	iv, err := SecureRandom(ivSize)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncryption, err)
	}
	sealed := gcm.Seal(nil, iv, plaintext, nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]
	return strings.Join([]string{
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ct),
	}, separator), nil
}

// Decrypt opens a payload produced by Encrypt. The tag is verified before any
// plaintext is returned; on failure the returned slice is always nil.
func (e *AESGCMEncryptor) Decrypt(payload string) ([]byte, error) {
	parts := strings.Split(payload, separator)
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 components, got %d", ErrDecryption, len(parts))
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: iv: %w", ErrDecryption, err)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: tag: %w", ErrDecryption, err)
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %w", ErrDecryption, err)
	}
	if len(iv) != ivSize && len(iv) != legacyIVSize {
		return nil, fmt.Errorf("%w: iv must be %d or %d bytes, got %d", ErrDecryption, ivSize, legacyIVSize, len(iv))
	}
	if len(tag) != tagSize {
		return nil, fmt.Errorf("%w: tag must be %d bytes, got %d", ErrDecryption, tagSize, len(tag))
	}

	gcm, err := e.aead(len(iv))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryption, err)
	}
	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	pt, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryption, err)
	}
	return pt, nil
}

func (e *AESGCMEncryptor) aead(nonceSize int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, err
	}
	if nonceSize == ivSize {
		return cipher.NewGCM(block)
	}
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}

// NoopEncryptor is useful for tests and local development; it stores plaintext with a prefix marker.
type NoopEncryptor struct{}

func (NoopEncryptor) Encrypt(plaintext []byte) (string, error) {
	return noopPrefix + base64.StdEncoding.EncodeToString(plaintext), nil
}

func (NoopEncryptor) Decrypt(payload string) ([]byte, error) {
	if !strings.HasPrefix(payload, noopPrefix) {
		return nil, fmt.Errorf("%w: invalid noop payload", ErrDecryption)
	}
	pt, err := base64.StdEncoding.DecodeString(payload[len(noopPrefix):])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryption, err)
	}
	return pt, nil
}

// Hash returns the hex SHA-256 digest of data. Only for non-secret comparison.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SecureRandom returns n bytes from the system CSPRNG.
func SecureRandom(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("random length must be positive, got %d", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("read random: %w", err)
	}
	return b, nil
}

// RandomToken returns n random bytes encoded as unpadded base64url.
func RandomToken(n int) (string, error) {
	b, err := SecureRandom(n)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DeriveKey turns configured key material into a 32-byte AES key.
// A 64-character hex string is used verbatim; anything else is stretched with HKDF-SHA256.
func DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("encryption key is required")
	}
	if decoded, err := hex.DecodeString(secret); err == nil && len(decoded) == KeySize {
		return decoded, nil
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), []byte(hkdfSalt), nil), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}
