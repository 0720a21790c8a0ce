package accounts

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/credvault/credvault/auth"
)

// ErrNotFound is returned when no record exists for an email.
var ErrNotFound = errors.New("account not found")

// CreateUser stores a freshly registered record.
func (s *Store) CreateUser(rec auth.UserRecord) error {
	_, err := s.sql.Exec(
		`INSERT INTO users (email, auth_hash, auth_salt, enc_salt, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Email, rec.AuthHash, rec.AuthSalt, rec.EncryptionSalt, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	for _, d := range rec.TrustedDevices {
		if err := s.insertDevice(rec.Email, d); err != nil {
			return err
		}
	}
	return nil
}

// GetUser loads the record for an email, trusted devices included.
func (s *Store) GetUser(email string) (auth.UserRecord, error) {
	var rec auth.UserRecord

	err := s.sql.QueryRow(
		`SELECT email, auth_hash, auth_salt, enc_salt, created_at, updated_at
		   FROM users WHERE email = ?`,
		email,
	).Scan(&rec.Email, &rec.AuthHash, &rec.AuthSalt, &rec.EncryptionSalt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, ErrNotFound
		}
		return rec, fmt.Errorf("select user: %w", err)
	}

	devices, err := s.listDevices(email)
	if err != nil {
		return rec, err
	}
	rec.TrustedDevices = devices
	return rec, nil
}

// Touch bumps the record's updated_at, e.g. after a successful sign-in.
func (s *Store) Touch(email string) error {
	res, err := s.sql.Exec(`UPDATE users SET updated_at = ? WHERE email = ?`, time.Now().UTC(), email)
	if err != nil {
		return fmt.Errorf("touch user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddTrustedDevice registers a device name for the account and returns the
// stored row.
func (s *Store) AddTrustedDevice(email, name string) (auth.TrustedDevice, error) {
	if name == "" {
		return auth.TrustedDevice{}, errors.New("device name is required")
	}
	if _, err := s.GetUser(email); err != nil {
		return auth.TrustedDevice{}, err
	}

	device := auth.TrustedDevice{
		ID:      uuid.New().String(),
		Name:    name,
		AddedAt: time.Now().UTC(),
	}
	if err := s.insertDevice(email, device); err != nil {
		return auth.TrustedDevice{}, err
	}
	return device, nil
}

func (s *Store) insertDevice(email string, d auth.TrustedDevice) error {
	id := d.ID
	if id == "" {
		id = uuid.New().String()
	}
	_, err := s.sql.Exec(
		`INSERT INTO trusted_devices (id, email, name, added_at) VALUES (?, ?, ?, ?)`,
		id, email, d.Name, d.AddedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trusted device: %w", err)
	}
	return nil
}

func (s *Store) listDevices(email string) ([]auth.TrustedDevice, error) {
	rows, err := s.sql.Query(
		`SELECT id, name, added_at FROM trusted_devices WHERE email = ? ORDER BY added_at`,
		email,
	)
	if err != nil {
		return nil, fmt.Errorf("query trusted devices: %w", err)
	}
	defer rows.Close()

	var out []auth.TrustedDevice
	for rows.Next() {
		var d auth.TrustedDevice
		if err := rows.Scan(&d.ID, &d.Name, &d.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
