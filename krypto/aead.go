package krypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

const (
	// DefaultNonceLength is the AES-GCM nonce size in bytes (96 bits).
	DefaultNonceLength = 12

	maxNonceLength = 16
)

func validateNonceLength(n int) error {
	if n < DefaultNonceLength || n > maxNonceLength {
		return fmt.Errorf("%w: got %d", ErrInvalidNonceLength, n)
	}
	return nil
}

func newGCM(raw []byte, nonceLen int) (cipher.AEAD, error) {
	switch len(raw) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d-byte key", ErrInvalidKeyLength, len(raw))
	}

	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	if nonceLen == DefaultNonceLength {
		return cipher.NewGCM(block)
	}
	return cipher.NewGCMWithNonceSize(block, nonceLen)
}

// sealAESGCM encrypts plaintext under the key with a fresh random nonce of
// the given length, returning nonce and ciphertext (tag appended).
func sealAESGCM(key *SecureKey, plaintext []byte, nonceLen int) (nonce, ciphertext []byte, err error) {
	if key == nil {
		return nil, nil, ErrKeyRequired
	}
	if nonceLen == 0 {
		nonceLen = DefaultNonceLength
	}
	if err := validateNonceLength(nonceLen); err != nil {
		return nil, nil, err
	}

	gcm, err := newGCM(key.raw, nonceLen)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext = gcm.Seal(nil, nonce, plaintext, nil)
	return nonce, ciphertext, nil
}

// openAESGCM decrypts ciphertext under the key. Tag-verification failure
// surfaces as the cipher's own error; callers collapse it at the boundary.
func openAESGCM(key *SecureKey, nonce, ciphertext []byte) ([]byte, error) {
	if key == nil {
		return nil, ErrKeyRequired
	}
	if err := validateNonceLength(len(nonce)); err != nil {
		return nil, err
	}

	gcm, err := newGCM(key.raw, len(nonce))
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return plaintext, nil
}
