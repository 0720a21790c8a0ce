package auth_test

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/credvault/credvault/auth"
	"github.com/credvault/credvault/krypto"
)

func dualSalt(b byte) []byte {
	salt := make([]byte, auth.DualSaltLength)
	for i := range salt {
		salt[i] = b
	}
	return salt
}

func TestDeriveDualKeysDeterministic(t *testing.T) {
	authSalt, encSalt := dualSalt(1), dualSalt(2)

	a, err := auth.DeriveDualKeys("master pass", authSalt, encSalt)
	if err != nil {
		t.Fatalf("DeriveDualKeys: %v", err)
	}
	b, err := auth.DeriveDualKeys("master pass", authSalt, encSalt)
	if err != nil {
		t.Fatalf("DeriveDualKeys: %v", err)
	}

	if a.AuthKey != b.AuthKey {
		t.Fatal("auth keys must be deterministic for fixed inputs")
	}
	if !a.EncryptionKey.Equal(b.EncryptionKey) {
		t.Fatal("encryption keys must be deterministic for fixed inputs")
	}
}

func TestDeriveDualKeysAuthKeyShape(t *testing.T) {
	keys, err := auth.DeriveDualKeys("master pass", dualSalt(1), dualSalt(2))
	if err != nil {
		t.Fatalf("DeriveDualKeys: %v", err)
	}

	raw, err := hex.DecodeString(keys.AuthKey)
	if err != nil {
		t.Fatalf("auth key is not hex: %v", err)
	}
	if len(raw) != 32 {
		t.Fatalf("expected 256-bit auth key, got %d bytes", len(raw))
	}
}

func TestDualKeyIndependence(t *testing.T) {
	authSalt := dualSalt(3)

	a, err := auth.DeriveDualKeys("master pass", authSalt, dualSalt(4))
	if err != nil {
		t.Fatalf("DeriveDualKeys: %v", err)
	}
	b, err := auth.DeriveDualKeys("master pass", authSalt, dualSalt(5))
	if err != nil {
		t.Fatalf("DeriveDualKeys: %v", err)
	}

	if a.AuthKey != b.AuthKey {
		t.Fatal("auth key must not depend on the encryption salt")
	}
	if a.EncryptionKey.Equal(b.EncryptionKey) {
		t.Fatal("different encryption salts must yield different encryption keys")
	}
}

func TestDualKeysAreDomainSeparated(t *testing.T) {
	// Same salt for both derivations: domain separation alone must keep the
	// two keys unrelated.
	salt := dualSalt(6)
	keys, err := auth.DeriveDualKeys("master pass", salt, salt)
	if err != nil {
		t.Fatalf("DeriveDualKeys: %v", err)
	}

	// Same iteration count, same salt, no domain suffix: only the suffix
	// separates this derivation from the encryption key.
	probe, err := krypto.DeriveSecureKey("master pass", salt, auth.EncryptionKeyIterations, 256)
	if err != nil {
		t.Fatalf("DeriveSecureKey: %v", err)
	}
	if keys.EncryptionKey.Equal(probe) {
		t.Fatal("domain suffix must separate the encryption key from a raw derivation")
	}
}

func TestDeriveDualKeysValidation(t *testing.T) {
	if _, err := auth.DeriveDualKeys("", dualSalt(1), dualSalt(2)); !errors.Is(err, krypto.ErrEmptyPassword) {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
	if _, err := auth.DeriveDualKeys("pw", []byte{1, 2, 3}, dualSalt(2)); err == nil {
		t.Fatal("expected error for short auth salt")
	}
	if _, err := auth.DeriveDualKeys("pw", dualSalt(1), nil); err == nil {
		t.Fatal("expected error for missing encryption salt")
	}
}

func TestRegisterUserRecordShape(t *testing.T) {
	record, keys, err := auth.RegisterUser("User@Example.COM", "correct horse battery staple")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	defer keys.EncryptionKey.Zero()

	if record.Email != "user@example.com" {
		t.Fatalf("expected normalized email, got %q", record.Email)
	}
	if record.AuthHash != keys.AuthKey {
		t.Fatal("record must store the auth digest")
	}
	if len(record.AuthSalt) != auth.DualSaltLength || len(record.EncryptionSalt) != auth.DualSaltLength {
		t.Fatal("record must carry both full-length salts")
	}
	if string(record.AuthSalt) == string(record.EncryptionSalt) {
		t.Fatal("auth and encryption salts must be independent")
	}
	if record.CreatedAt.IsZero() || record.UpdatedAt.IsZero() {
		t.Fatal("record must carry timestamps")
	}
}

func TestRegisterUserFreshSalts(t *testing.T) {
	a, ka, err := auth.RegisterUser("a@example.com", "correct horse battery staple")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	defer ka.EncryptionKey.Zero()

	b, kb, err := auth.RegisterUser("a@example.com", "correct horse battery staple")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	defer kb.EncryptionKey.Zero()

	if string(a.AuthSalt) == string(b.AuthSalt) {
		t.Fatal("two registrations must generate different auth salts")
	}
	if string(a.EncryptionSalt) == string(b.EncryptionSalt) {
		t.Fatal("two registrations must generate different encryption salts")
	}
	if a.AuthHash == b.AuthHash {
		t.Fatal("different salts must produce different auth hashes")
	}
}

func TestAuthenticateUserSuccess(t *testing.T) {
	record, keys, err := auth.RegisterUser("user@example.com", "correct horse battery staple")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	defer keys.EncryptionKey.Zero()

	encKey, err := auth.AuthenticateUser("user@example.com", "correct horse battery staple", record)
	if err != nil {
		t.Fatalf("AuthenticateUser: %v", err)
	}
	if !encKey.Equal(keys.EncryptionKey) {
		t.Fatal("authenticated encryption key must match the registration key")
	}
}

func TestAuthenticateUserWrongPassword(t *testing.T) {
	record, keys, err := auth.RegisterUser("user@example.com", "correct horse battery staple")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	defer keys.EncryptionKey.Zero()

	encKey, err := auth.AuthenticateUser("user@example.com", "wrong password entirely", record)
	if !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if encKey != nil {
		t.Fatal("no key may be returned on failed authentication")
	}
}

func TestAuthenticateUserWrongEmail(t *testing.T) {
	record, keys, err := auth.RegisterUser("user@example.com", "correct horse battery staple")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	defer keys.EncryptionKey.Zero()

	if _, err := auth.AuthenticateUser("other@example.com", "correct horse battery staple", record); !errors.Is(err, auth.ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}

func TestEncryptionKeyUsableWithEngine(t *testing.T) {
	record, keys, err := auth.RegisterUser("user@example.com", "correct horse battery staple")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	defer keys.EncryptionKey.Zero()

	engine := krypto.New(krypto.Config{Iterations: krypto.MinIterations})

	env, err := engine.EncryptWithKey("vault item", keys.EncryptionKey)
	if err != nil {
		t.Fatalf("EncryptWithKey: %v", err)
	}

	sessionKey, err := auth.AuthenticateUser("user@example.com", "correct horse battery staple", record)
	if err != nil {
		t.Fatalf("AuthenticateUser: %v", err)
	}
	defer sessionKey.Zero()

	got, err := engine.DecryptWithKey(env, sessionKey)
	if err != nil {
		t.Fatalf("DecryptWithKey: %v", err)
	}
	if got != "vault item" {
		t.Fatal("plaintext mismatch")
	}
}
