package krypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"
)

// Config tunes an Engine. Zero values fall back to the package defaults; the
// bounds in kdf.go are still enforced per call, so a misconfigured host cannot
// weaken stored envelopes.
type Config struct {
	Iterations int
	KeyBits    int
	SaltLen    int
	NonceLen   int
	CacheSize  int
	CacheTTL   time.Duration
	Logger     *slog.Logger
}

// Engine performs authenticated encryption and decryption, producing and
// consuming the envelope format. Construct one per host process and pass it
// to every call site; it owns the KDF key cache.
type Engine struct {
	kdf      *KDF
	nonceLen int
	saltLen  int
	log      *slog.Logger
}

// New returns an Engine ready for use.
func New(cfg Config) *Engine {
	kdf := NewKDF(PBKDF2Params{
		Iterations: cfg.Iterations,
		KeyBits:    cfg.KeyBits,
		SaltLen:    cfg.SaltLen,
	}, cfg.Logger)
	if cfg.CacheSize > 0 || cfg.CacheTTL > 0 {
		kdf.SetCacheLimits(cfg.CacheSize, cfg.CacheTTL)
	}

	nonceLen := cfg.NonceLen
	if nonceLen == 0 {
		nonceLen = DefaultNonceLength
	}
	saltLen := cfg.SaltLen
	if saltLen == 0 {
		saltLen = SaltLengthBytes
	}

	return &Engine{
		kdf:      kdf,
		nonceLen: nonceLen,
		saltLen:  saltLen,
		log:      cfg.Logger,
	}
}

// KDF exposes the engine's key-derivation component for hosts that derive
// keys upstream (e.g. sign-in flows).
func (g *Engine) KDF() *KDF { return g.kdf }

// Purge discards all cached key material. Call on lock or sign-out.
func (g *Engine) Purge() { g.kdf.cache.purge() }

// Option adjusts a single Encrypt call.
type Option func(*encryptOptions)

type encryptOptions struct {
	algorithm  string
	iterations int
	keyBits    int
	nonceLen   int
}

// WithAlgorithm selects the cipher. Only AES-GCM is supported; anything else
// fails validation before key material is touched.
func WithAlgorithm(name string) Option {
	return func(o *encryptOptions) { o.algorithm = name }
}

// WithIterations overrides the PBKDF2 iteration count for one call.
func WithIterations(n int) Option {
	return func(o *encryptOptions) { o.iterations = n }
}

// WithKeyLength overrides the derived key length in bits (128/192/256).
func WithKeyLength(bits int) Option {
	return func(o *encryptOptions) { o.keyBits = bits }
}

// WithNonceLength overrides the nonce length in bytes.
func WithNonceLength(n int) Option {
	return func(o *encryptOptions) { o.nonceLen = n }
}

func (g *Engine) buildOptions(opts []Option) (encryptOptions, error) {
	o := encryptOptions{
		algorithm: AlgorithmAESGCM,
		nonceLen:  g.nonceLen,
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.algorithm != AlgorithmAESGCM {
		return o, ErrUnsupportedAlgorithm
	}
	return o, nil
}

// Encrypt derives a key from the password and encrypts plaintext, returning a
// fully populated envelope. Salt and nonce are fresh random values on every
// call, never reused even for identical inputs.
func (g *Engine) Encrypt(plaintext, password string, opts ...Option) (*Envelope, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	o, err := g.buildOptions(opts)
	if err != nil {
		return nil, err
	}

	salt, err := NewRandomSalt(g.saltLen)
	if err != nil {
		g.logCause("generate salt", err)
		return nil, ErrKeyDerivation
	}

	key, err := g.kdf.DeriveKey(password, DeriveOptions{
		Salt:       salt,
		Iterations: o.iterations,
		KeyBits:    o.keyBits,
	})
	if err != nil {
		return nil, err
	}

	return g.seal([]byte(plaintext), key, salt, o.nonceLen)
}

// EncryptWithKey encrypts plaintext under an already-derived key, skipping
// key derivation entirely. A fresh cosmetic salt is still stamped so the
// envelope shape matches password-based output; it plays no part in keyed
// decryption.
func (g *Engine) EncryptWithKey(plaintext string, key *SecureKey) (*Envelope, error) {
	if key == nil {
		return nil, ErrKeyRequired
	}
	salt, err := NewRandomSalt(g.saltLen)
	if err != nil {
		g.logCause("generate salt", err)
		return nil, ErrKeyDerivation
	}
	return g.seal([]byte(plaintext), key, salt, g.nonceLen)
}

func (g *Engine) seal(plaintext []byte, key *SecureKey, salt []byte, nonceLen int) (*Envelope, error) {
	nonce, ciphertext, err := sealAESGCM(key, plaintext, nonceLen)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Data:       base64.StdEncoding.EncodeToString(ciphertext),
		IV:         base64.StdEncoding.EncodeToString(nonce),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Iterations: key.Iterations,
		Algorithm:  key.Algorithm,
		KeyLength:  key.KeyBits,
		Version:    EnvelopeVersion,
		Checksum:   base64.StdEncoding.EncodeToString(integrityChecksum(ciphertext, salt, nonce)),
	}, nil
}

// Decrypt verifies the envelope checksum, re-derives the key from the
// parameters embedded in the envelope (never caller-supplied ones), and
// decrypts. Every integrity or cipher failure collapses into ErrDecrypt so the
// caller cannot distinguish a wrong password from tampered ciphertext.
func (g *Engine) Decrypt(env *Envelope, password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	ciphertext, nonce, salt, err := g.verifyEnvelope(env)
	if err != nil {
		return "", err
	}

	keyBits := env.KeyLength
	if keyBits == 0 {
		keyBits = DefaultKeyBits
	}
	key, err := g.kdf.DeriveKey(password, DeriveOptions{
		Salt:       salt,
		Iterations: env.Iterations,
		KeyBits:    keyBits,
	})
	if err != nil {
		return "", err
	}

	plaintext, err := openAESGCM(key, nonce, ciphertext)
	if err != nil {
		return "", g.failDecrypt(err)
	}
	return string(plaintext), nil
}

// DecryptWithKey is the keyed counterpart to Decrypt: same
// checksum-then-decrypt sequence with a caller-held key instead of a password.
func (g *Engine) DecryptWithKey(env *Envelope, key *SecureKey) (string, error) {
	if key == nil {
		return "", ErrKeyRequired
	}
	ciphertext, nonce, _, err := g.verifyEnvelope(env)
	if err != nil {
		return "", err
	}

	plaintext, err := openAESGCM(key, nonce, ciphertext)
	if err != nil {
		return "", g.failDecrypt(err)
	}
	return string(plaintext), nil
}

// verifyEnvelope runs shape validation, decodes binary fields, and compares
// the recomputed integrity checksum before any decryption attempt.
func (g *Engine) verifyEnvelope(env *Envelope) (ciphertext, nonce, salt []byte, err error) {
	if env == nil {
		return nil, nil, nil, fmt.Errorf("%w: nil payload", ErrMalformedEnvelope)
	}
	if err := env.validate(); err != nil {
		return nil, nil, nil, err
	}
	if env.Algorithm != AlgorithmAESGCM {
		return nil, nil, nil, ErrUnsupportedAlgorithm
	}

	ciphertext, nonce, salt, sum, err := env.decodeParts()
	if err != nil {
		return nil, nil, nil, err
	}

	want := integrityChecksum(ciphertext, salt, nonce)
	if subtle.ConstantTimeCompare(want, sum) != 1 {
		return nil, nil, nil, g.failDecrypt(ErrChecksumMismatch)
	}
	return ciphertext, nonce, salt, nil
}

// failDecrypt is the single mapping point that converts the true failure
// cause into the uniform caller-facing decrypt error. The cause survives only
// on the internal diagnostic channel.
func (g *Engine) failDecrypt(cause error) error {
	g.logCause("decrypt", cause)
	return ErrDecrypt
}

func (g *Engine) logCause(op string, cause error) {
	if g.log != nil {
		g.log.Warn("crypto engine failure", slog.String("op", op), slog.Any("cause", cause))
	}
}

// integrityChecksum hashes ciphertext, salt, and nonce in that order. AES-GCM
// already authenticates ciphertext and nonce via its tag; this digest exists
// for wire-format parity and is not a substitute for the tag.
func integrityChecksum(ciphertext, salt, nonce []byte) []byte {
	h := sha256.New()
	h.Write(ciphertext)
	h.Write(salt)
	h.Write(nonce)
	return h.Sum(nil)
}
