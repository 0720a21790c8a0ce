// Package store persists serialized envelopes to disk. It treats the
// envelope string as opaque binary-safe text: nothing here inspects or
// validates cryptographic fields.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/credvault/credvault/krypto"
)

const envelopeExt = ".env.json"

// Paths locates envelope files on disk.
type Paths struct {
	Dir string
}

// EnvelopePath resolves the file path for a named envelope.
func (p Paths) EnvelopePath(name string) (string, error) {
	if name == "" {
		return "", errors.New("envelope name is required")
	}
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid envelope name %q", name)
	}
	return filepath.Join(p.Dir, name+envelopeExt), nil
}

func (p Paths) ensureDir() error {
	if p.Dir == "" {
		return errors.New("envelope directory not specified")
	}
	if err := os.MkdirAll(p.Dir, 0o700); err != nil {
		return fmt.Errorf("create envelope directory: %w", err)
	}
	return nil
}

// SaveEnvelope writes the envelope atomically with restrictive permissions.
// Nothing partial is ever left at the target path.
func SaveEnvelope(p Paths, name string, env *krypto.Envelope) error {
	if env == nil {
		return errors.New("envelope is required")
	}
	if err := p.ensureDir(); err != nil {
		return err
	}
	path, err := p.EnvelopePath(name)
	if err != nil {
		return err
	}

	serialized, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	tmp, err := os.CreateTemp(p.Dir, "envelope-*.json")
	if err != nil {
		return fmt.Errorf("create temp envelope: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(serialized); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp envelope: %w", err)
	}

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp envelope: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp envelope: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace envelope: %w", err)
	}

	return nil
}

// LoadEnvelope reads and parses a named envelope from disk.
func LoadEnvelope(p Paths, name string) (*krypto.Envelope, error) {
	path, err := p.EnvelopePath(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("read envelope: %w", err)
	}

	env, err := krypto.ParseEnvelope(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse envelope %s: %w", name, err)
	}
	return env, nil
}
