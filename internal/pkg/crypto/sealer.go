package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// SealedPrefix marks a credential value that must be opened before use.
const SealedPrefix = "sealed:"

// NonceSize is the size of the GCM nonce in bytes.
const NonceSize = 12

// hkdfInfo binds derived keys to their purpose.
const hkdfInfo = "contract-storage backup credentials v1"

// Errors
var (
	// ErrInvalidCiphertext indicates the ciphertext is malformed or too short.
	ErrInvalidCiphertext = errors.New("invalid ciphertext: too short or malformed")

	// ErrDecryptionFailed indicates decryption failed (wrong key or corrupted data).
	ErrDecryptionFailed = errors.New("decryption failed: authentication error")

	// ErrSealerUnavailable indicates a sealed value was found but no key is configured.
	ErrSealerUnavailable = errors.New("sealed credential found but no credentials key is configured")
)

// Sealer encrypts backup credential values with AES-256-GCM under a key
// derived from a master key with HKDF-SHA256.
type Sealer struct {
	gcm cipher.AEAD
}

// NewSealer creates a Sealer from a 32-byte master key.
func NewSealer(masterKey []byte) (*Sealer, error) {
	if len(masterKey) != KeySize {
		return nil, ErrInvalidHexKey
	}

	derived := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte(hkdfInfo)), derived); err != nil {
		return nil, fmt.Errorf("failed to derive sealing key: %w", err)
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Sealer{gcm: gcm}, nil
}

// NewSealerFromHex creates a Sealer from a hex-encoded master key.
func NewSealerFromHex(hexKey string) (*Sealer, error) {
	key, err := ParseHexKey(hexKey)
	if err != nil {
		return nil, err
	}
	return NewSealer(key)
}

// Seal encrypts plaintext and returns "sealed:" + base64(nonce || ciphertext || tag).
func (s *Sealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	encoded, ok := strings.CutPrefix(sealed, SealedPrefix)
	if !ok {
		return "", ErrInvalidCiphertext
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	if len(ciphertext) < NonceSize+s.gcm.Overhead() {
		return "", ErrInvalidCiphertext
	}

	plaintext, err := s.gcm.Open(nil, ciphertext[:NonceSize], ciphertext[NonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// IsSealed reports whether v carries the sealed prefix.
func IsSealed(v string) bool {
	return strings.HasPrefix(v, SealedPrefix)
}

// OpenAll returns a copy of values with every sealed entry opened.
// A nil Sealer is accepted only when no value is sealed.
func (s *Sealer) OpenAll(values map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if !IsSealed(v) {
			out[k] = v
			continue
		}
		if s == nil {
			return nil, fmt.Errorf("%w: %s", ErrSealerUnavailable, k)
		}
		plain, err := s.Open(v)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", k, err)
		}
		out[k] = plain
	}
	return out, nil
}
