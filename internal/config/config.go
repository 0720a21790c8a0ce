package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/credvault/credvault/krypto"
)

// Config carries the policy knobs supplied by the environment. These are
// defaults only: the wire format always records its own parameters, and the
// crypto engine re-checks bounds, so a bad value here can never weaken or
// break stored envelopes.
type Config struct {
	Crypto  CryptoConfig
	DataDir string
}

// CryptoConfig holds default key-derivation and cipher parameters.
type CryptoConfig struct {
	Iterations  int
	KeyBits     int
	SaltLength  int
	NonceLength int
}

// Load reads configuration from the environment, consulting a .env file when
// one is present.
func Load() (*Config, error) {
	// A missing .env is fine; explicit env vars still apply.
	_ = godotenv.Load()

	cfg := &Config{
		Crypto: CryptoConfig{
			Iterations:  getEnvInt("CREDVAULT_ITERATIONS", krypto.DefaultIterations),
			KeyBits:     getEnvInt("CREDVAULT_KEY_BITS", krypto.DefaultKeyBits),
			SaltLength:  getEnvInt("CREDVAULT_SALT_LENGTH", krypto.SaltLengthBytes),
			NonceLength: getEnvInt("CREDVAULT_NONCE_LENGTH", krypto.DefaultNonceLength),
		},
		DataDir: getEnv("CREDVAULT_DATA_DIR", "./credvault-data"),
	}

	if cfg.Crypto.Iterations < krypto.MinIterations || cfg.Crypto.Iterations > krypto.MaxIterations {
		return nil, fmt.Errorf("CREDVAULT_ITERATIONS %d outside [%d, %d]",
			cfg.Crypto.Iterations, krypto.MinIterations, krypto.MaxIterations)
	}
	switch cfg.Crypto.KeyBits {
	case 128, 192, 256:
	default:
		return nil, fmt.Errorf("CREDVAULT_KEY_BITS must be 128, 192, or 256, got %d", cfg.Crypto.KeyBits)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
