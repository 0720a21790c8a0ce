package store_test

import (
	"errors"
	"os"
	"testing"

	"github.com/credvault/credvault/krypto"
	"github.com/credvault/credvault/store"
)

func TestSaveAndLoadEnvelope(t *testing.T) {
	engine := krypto.New(krypto.Config{Iterations: krypto.MinIterations})
	paths := store.Paths{Dir: t.TempDir()}

	env, err := engine.Encrypt("stored secret", "pw")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if err := store.SaveEnvelope(paths, "notes", env); err != nil {
		t.Fatalf("SaveEnvelope: %v", err)
	}

	loaded, err := store.LoadEnvelope(paths, "notes")
	if err != nil {
		t.Fatalf("LoadEnvelope: %v", err)
	}
	if *loaded != *env {
		t.Fatal("loaded envelope differs from saved one")
	}

	got, err := engine.Decrypt(loaded, "pw")
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != "stored secret" {
		t.Fatal("plaintext mismatch after persistence")
	}
}

func TestSaveEnvelopeRestrictsPermissions(t *testing.T) {
	engine := krypto.New(krypto.Config{Iterations: krypto.MinIterations})
	paths := store.Paths{Dir: t.TempDir()}

	env, err := engine.Encrypt("secret", "pw")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if err := store.SaveEnvelope(paths, "perm-check", env); err != nil {
		t.Fatalf("SaveEnvelope: %v", err)
	}

	path, err := paths.EnvelopePath("perm-check")
	if err != nil {
		t.Fatalf("EnvelopePath: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat envelope: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 permissions, got %o", perm)
	}
}

func TestLoadEnvelopeMissing(t *testing.T) {
	paths := store.Paths{Dir: t.TempDir()}

	if _, err := store.LoadEnvelope(paths, "absent"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestLoadEnvelopeMalformedFile(t *testing.T) {
	paths := store.Paths{Dir: t.TempDir()}

	path, err := paths.EnvelopePath("broken")
	if err != nil {
		t.Fatalf("EnvelopePath: %v", err)
	}
	if err := os.WriteFile(path, []byte("not an envelope"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, err := store.LoadEnvelope(paths, "broken"); !errors.Is(err, krypto.ErrMalformedEnvelope) {
		t.Fatalf("expected ErrMalformedEnvelope, got %v", err)
	}
}

func TestEnvelopePathRejectsTraversal(t *testing.T) {
	paths := store.Paths{Dir: t.TempDir()}

	for _, name := range []string{"", "../escape", "a/b", ".hidden"} {
		if _, err := paths.EnvelopePath(name); err == nil {
			t.Fatalf("expected rejection for name %q", name)
		}
	}
}
