package krypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// MinIterations is the lowest PBKDF2 iteration count the engine accepts.
	MinIterations = 10_000
	// MaxIterations is the highest PBKDF2 iteration count the engine accepts.
	MaxIterations = 10_000_000

	// SaltLengthBytes is the salt length generated for every derivation.
	SaltLengthBytes = 32

	// DefaultIterations is the policy default when the caller supplies none.
	// Stored envelopes carry their own count, so changing this never breaks
	// existing ciphertext.
	DefaultIterations = 600_000

	// DefaultKeyBits is the default derived key length.
	DefaultKeyBits = 256

	// AlgorithmAESGCM identifies the only cipher the engine currently speaks.
	AlgorithmAESGCM = "AES-GCM"
)

// PBKDF2Params captures tunable parameters for PBKDF2-SHA256.
type PBKDF2Params struct {
	Iterations int
	SaltLen    int
	KeyBits    int
}

// DefaultPBKDF2Params returns sane defaults for deriving a 256-bit key.
func DefaultPBKDF2Params() PBKDF2Params {
	return PBKDF2Params{
		Iterations: DefaultIterations,
		SaltLen:    SaltLengthBytes,
		KeyBits:    DefaultKeyBits,
	}
}

// SecureKey holds derived symmetric key material plus its provenance. The raw
// bytes are unexported and usable only through this package's encrypt/decrypt
// operations; Go offers no hardware-backed non-extractable handles, so this is
// a best-effort software approximation and the buffer should be zeroed via
// Zero once the key is no longer needed.
type SecureKey struct {
	raw        []byte
	Salt       []byte
	Iterations int
	Algorithm  string
	KeyBits    int
	CreatedAt  time.Time
}

// Zero overwrites the backing key buffer in place. Do not call on keys still
// held by an engine cache.
func (k *SecureKey) Zero() {
	if k == nil {
		return
	}
	for i := range k.raw {
		k.raw[i] = 0
	}
}

// Equal reports whether two keys carry identical key material, compared in
// constant time. The material itself is never exposed.
func (k *SecureKey) Equal(other *SecureKey) bool {
	if k == nil || other == nil {
		return k == other
	}
	if len(k.raw) != len(other.raw) {
		return false
	}
	return subtle.ConstantTimeCompare(k.raw, other.raw) == 1
}

// DeriveOptions selects non-default derivation inputs. Zero values fall back
// to the KDF defaults; a nil Salt requests a fresh random one.
type DeriveOptions struct {
	Salt       []byte
	Iterations int
	KeyBits    int
}

// validateIterations enforces the accepted PBKDF2 work-factor range before any
// cryptographic call.
func validateIterations(n int) error {
	if n < MinIterations || n > MaxIterations {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrIterationsOutOfRange, n, MinIterations, MaxIterations)
	}
	return nil
}

func validateKeyBits(bits int) error {
	switch bits {
	case 128, 192, 256:
		return nil
	}
	return fmt.Errorf("%w: got %d", ErrInvalidKeyLength, bits)
}

// DeriveKeyMaterial runs PBKDF2-SHA256 and returns the raw output bytes.
// Intended for digest-style uses (e.g. a server-held auth verifier) where the
// result is not an encryption key; encryption keys should come from a KDF
// instance so they stay wrapped in a SecureKey.
func DeriveKeyMaterial(password string, salt []byte, iterations, keyLenBytes int) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	if err := validateIterations(iterations); err != nil {
		return nil, err
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("salt is required")
	}
	return pbkdf2.Key([]byte(password), salt, iterations, keyLenBytes, sha256.New), nil
}

// DeriveSecureKey runs PBKDF2-SHA256 with explicit parameters and wraps the
// result in a SecureKey, bypassing any cache. Used for one-shot derivations
// such as session encryption keys.
func DeriveSecureKey(password string, salt []byte, iterations, keyBits int) (*SecureKey, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	if err := validateIterations(iterations); err != nil {
		return nil, err
	}
	if err := validateKeyBits(keyBits); err != nil {
		return nil, err
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("salt is required")
	}
	return &SecureKey{
		raw:        pbkdf2.Key([]byte(password), salt, iterations, keyBits/8, sha256.New),
		Salt:       append([]byte(nil), salt...),
		Iterations: iterations,
		Algorithm:  AlgorithmAESGCM,
		KeyBits:    keyBits,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// KDF derives AES-GCM-capable keys from passwords and owns the bounded key
// cache. Construct one per host process and share it; all methods are safe for
// concurrent use.
type KDF struct {
	defaults PBKDF2Params
	cache    *keyCache
	log      *slog.Logger
}

// NewKDF returns a KDF with the given defaults. Zero-valued fields of p fall
// back to DefaultPBKDF2Params; a nil logger disables internal diagnostics.
func NewKDF(p PBKDF2Params, log *slog.Logger) *KDF {
	d := DefaultPBKDF2Params()
	if p.Iterations != 0 {
		d.Iterations = p.Iterations
	}
	if p.SaltLen != 0 {
		d.SaltLen = p.SaltLen
	}
	if p.KeyBits != 0 {
		d.KeyBits = p.KeyBits
	}
	return &KDF{
		defaults: d,
		cache:    newKeyCache(cacheMaxEntries, cacheTTL),
		log:      log,
	}
}

// SetCacheLimits overrides the cache bounds. Intended for hosts that need a
// shorter key lifetime than the 5-minute default.
func (k *KDF) SetCacheLimits(maxEntries int, ttl time.Duration) {
	k.cache.setLimits(maxEntries, ttl)
}

// DeriveKey turns a password plus derivation options into a SecureKey.
// Validation happens before any cryptographic call: empty passwords and
// out-of-range iteration counts are rejected outright. A cache hit younger
// than the TTL is returned without re-deriving.
func (k *KDF) DeriveKey(password string, opts DeriveOptions) (*SecureKey, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}

	iterations := opts.Iterations
	if iterations == 0 {
		iterations = k.defaults.Iterations
	}
	if err := validateIterations(iterations); err != nil {
		return nil, err
	}

	keyBits := opts.KeyBits
	if keyBits == 0 {
		keyBits = k.defaults.KeyBits
	}
	if err := validateKeyBits(keyBits); err != nil {
		return nil, err
	}

	salt := opts.Salt
	if len(salt) == 0 {
		var err error
		salt, err = NewRandomSalt(k.defaults.SaltLen)
		if err != nil {
			k.logError("generate salt", err)
			return nil, ErrKeyDerivation
		}
	}

	pwDigest := sha256.Sum256([]byte(password))
	lookup := cacheLookupKey(password, salt, iterations, keyBits)
	if hit := k.cache.get(lookup, pwDigest, salt); hit != nil {
		return hit, nil
	}

	key := &SecureKey{
		raw:        pbkdf2.Key([]byte(password), salt, iterations, keyBits/8, sha256.New),
		Salt:       append([]byte(nil), salt...),
		Iterations: iterations,
		Algorithm:  AlgorithmAESGCM,
		KeyBits:    keyBits,
		CreatedAt:  time.Now().UTC(),
	}

	// Caching is best effort; a full or failed cache never fails the call.
	k.cache.put(lookup, pwDigest, key)

	return key, nil
}

func (k *KDF) logError(op string, err error) {
	if k.log != nil {
		k.log.Error("kdf failure", slog.String("op", op), slog.Any("err", err))
	}
}

// NewRandomSalt returns a cryptographically secure random salt of n bytes.
func NewRandomSalt(n int) ([]byte, error) {
	if n <= 0 {
		n = SaltLengthBytes
	}
	salt := make([]byte, n)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}
