package auth

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/credvault/credvault/krypto"
)

const (
	// AuthKeyIterations is the PBKDF2 work factor for the server-held
	// authentication verifier.
	AuthKeyIterations = 100_000

	// EncryptionKeyIterations is intentionally higher: this key protects
	// data at rest, not just an auth check.
	EncryptionKeyIterations = 210_000

	// DualSaltLength is the salt size for both derivations.
	DualSaltLength = 32

	authKeyBytes      = 32
	encryptionKeyBits = 256

	// encryptionDomainSuffix separates the encryption-key input domain from
	// the auth-key one, so the server-held authKey can never be replayed to
	// reconstruct the encryption key.
	encryptionDomainSuffix = "-encryption"
)

var (
	// ErrInvalidCredentials is returned when authentication fails. It does
	// not say why.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnknownUser is returned when a record does not belong to the
	// claimed email.
	ErrUnknownUser = errors.New("unknown user")
)

// DualKeys pairs the hex-encoded authentication digest (safe to send to a
// remote verifier) with the local-only encryption key. The encryption key is
// never serialized; discard it with Zero on lock or sign-out.
type DualKeys struct {
	AuthKey       string
	EncryptionKey *krypto.SecureKey
}

// TrustedDevice records a device the user has approved for sign-in.
type TrustedDevice struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	AddedAt time.Time `json:"addedAt"`
}

// UserRecord is the server-storable account record. It deliberately excludes
// the encryption key: possession of the whole record is not sufficient to
// decrypt anything.
type UserRecord struct {
	Email          string          `json:"email"`
	AuthHash       string          `json:"authHash"`
	AuthSalt       []byte          `json:"authSalt"`
	EncryptionSalt []byte          `json:"encryptionSalt"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	TrustedDevices []TrustedDevice `json:"trustedDevices"`
}

// DeriveDualKeys derives the authentication and encryption keys from one
// master password using domain-separated inputs and independent salts and
// iteration counts.
func DeriveDualKeys(master string, authSalt, encryptionSalt []byte) (DualKeys, error) {
	if master == "" {
		return DualKeys{}, krypto.ErrEmptyPassword
	}
	if len(authSalt) != DualSaltLength || len(encryptionSalt) != DualSaltLength {
		return DualKeys{}, fmt.Errorf("salts must be %d bytes", DualSaltLength)
	}

	authRaw, err := krypto.DeriveKeyMaterial(master, authSalt, AuthKeyIterations, authKeyBytes)
	if err != nil {
		return DualKeys{}, fmt.Errorf("derive auth key: %w", err)
	}

	encKey, err := krypto.DeriveSecureKey(master+encryptionDomainSuffix, encryptionSalt, EncryptionKeyIterations, encryptionKeyBits)
	if err != nil {
		return DualKeys{}, fmt.Errorf("derive encryption key: %w", err)
	}

	return DualKeys{
		AuthKey:       hex.EncodeToString(authRaw),
		EncryptionKey: encKey,
	}, nil
}

// RegisterUser generates fresh salts, derives both keys, and returns the
// server-storable record alongside the session keys. The record never carries
// the encryption key.
func RegisterUser(email, master string) (UserRecord, DualKeys, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return UserRecord{}, DualKeys{}, errors.New("email is required")
	}
	if master == "" {
		return UserRecord{}, DualKeys{}, krypto.ErrEmptyPassword
	}

	authSalt, err := krypto.NewRandomSalt(DualSaltLength)
	if err != nil {
		return UserRecord{}, DualKeys{}, fmt.Errorf("generate auth salt: %w", err)
	}
	encryptionSalt, err := krypto.NewRandomSalt(DualSaltLength)
	if err != nil {
		return UserRecord{}, DualKeys{}, fmt.Errorf("generate encryption salt: %w", err)
	}

	keys, err := DeriveDualKeys(master, authSalt, encryptionSalt)
	if err != nil {
		return UserRecord{}, DualKeys{}, err
	}

	now := time.Now().UTC()
	record := UserRecord{
		Email:          email,
		AuthHash:       keys.AuthKey,
		AuthSalt:       authSalt,
		EncryptionSalt: encryptionSalt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return record, keys, nil
}

// AuthenticateUser re-derives both keys from the record's salts and succeeds
// only when the fresh auth digest matches the stored hash, compared in
// constant time. On success it returns the session-local encryption key; it
// never persists it.
func AuthenticateUser(email, master string, record UserRecord) (*krypto.SecureKey, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if !strings.EqualFold(email, record.Email) {
		return nil, ErrUnknownUser
	}
	if master == "" {
		return nil, ErrInvalidCredentials
	}

	keys, err := DeriveDualKeys(master, record.AuthSalt, record.EncryptionSalt)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if subtle.ConstantTimeCompare([]byte(keys.AuthKey), []byte(record.AuthHash)) != 1 {
		keys.EncryptionKey.Zero()
		return nil, ErrInvalidCredentials
	}
	return keys.EncryptionKey, nil
}
