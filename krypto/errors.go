package krypto

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is() checks.
var (
	// ErrEmptyPassword is returned when a password-based operation receives an empty password.
	ErrEmptyPassword = errors.New("password must not be empty")

	// ErrIterationsOutOfRange is returned when an iteration count falls outside
	// [MinIterations, MaxIterations].
	ErrIterationsOutOfRange = errors.New("iteration count out of range")

	// ErrInvalidKeyLength is returned for key lengths other than 128, 192, or 256 bits.
	ErrInvalidKeyLength = errors.New("key length must be 128, 192, or 256 bits")

	// ErrInvalidNonceLength is returned for unsupported nonce lengths.
	ErrInvalidNonceLength = errors.New("nonce length must be between 12 and 16 bytes")

	// ErrUnsupportedAlgorithm is returned when an envelope or option names an
	// algorithm the engine cannot handle.
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")

	// ErrKeyRequired is returned when a keyed operation receives a nil key.
	ErrKeyRequired = errors.New("key is required")

	// ErrKeyDerivation is the caller-facing derivation failure. The internal
	// cause is logged, never wrapped, so it cannot leak through error chains.
	ErrKeyDerivation = errors.New("key derivation failed")

	// ErrMalformedEnvelope is returned when an envelope string cannot be parsed.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrChecksumMismatch indicates the envelope integrity checksum did not
	// match. Internal only: Decrypt collapses it into ErrDecrypt.
	ErrChecksumMismatch = errors.New("envelope checksum mismatch")

	// ErrDecrypt is the single caller-facing decrypt failure. Checksum
	// mismatches and tag-verification failures both map here so callers cannot
	// distinguish a wrong password from tampered ciphertext.
	ErrDecrypt = errors.New("failed to decrypt: invalid password or corrupted data")
)

// MissingFieldError reports a required envelope field absent from a payload.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("envelope missing required field %q", e.Field)
}
