package krypto

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// EnvelopeVersion is stamped into every envelope this engine produces.
const EnvelopeVersion = "2.0.0"

// Envelope is the only on-the-wire representation of encrypted data. It is
// immutable once created and carries everything needed for decryption except
// the password or key. Binary fields are base64 (std encoding), matching the
// persisted JSON form exactly.
type Envelope struct {
	Data       string `json:"data"`
	IV         string `json:"iv"`
	Salt       string `json:"salt"`
	Iterations int    `json:"iterations"`
	Algorithm  string `json:"algorithm"`
	KeyLength  int    `json:"keyLength"`
	Version    string `json:"version"`
	Checksum   string `json:"checksum"`
}

// Marshal serializes the envelope to its transportable string form.
func (e *Envelope) Marshal() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return string(data), nil
}

// ParseEnvelope parses the serialized envelope form. Any input that does not
// decode into the versioned envelope shape fails with ErrMalformedEnvelope,
// never a cryptographic error.
func ParseEnvelope(s string) (*Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.DisallowUnknownFields()

	var e Envelope
	if err := dec.Decode(&e); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedEnvelope, "not a valid envelope document")
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrMalformedEnvelope)
	}
	if e.Version == "" {
		return nil, fmt.Errorf("%w: missing version", ErrMalformedEnvelope)
	}
	return &e, nil
}

// validate checks that every field required for decryption is present,
// naming the first missing one.
func (e *Envelope) validate() error {
	switch {
	case e.Data == "":
		return &MissingFieldError{Field: "data"}
	case e.IV == "":
		return &MissingFieldError{Field: "iv"}
	case e.Salt == "":
		return &MissingFieldError{Field: "salt"}
	case e.Iterations == 0:
		return &MissingFieldError{Field: "iterations"}
	case e.Algorithm == "":
		return &MissingFieldError{Field: "algorithm"}
	case e.Checksum == "":
		return &MissingFieldError{Field: "checksum"}
	}
	return nil
}

// decodeParts decodes the base64 binary fields. Undecodable fields count as a
// malformed envelope, not a crypto failure.
func (e *Envelope) decodeParts() (ciphertext, nonce, salt, checksum []byte, err error) {
	ciphertext, err = base64.StdEncoding.DecodeString(e.Data)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("%w: undecodable data field", ErrMalformedEnvelope)
	}
	nonce, err = base64.StdEncoding.DecodeString(e.IV)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("%w: undecodable iv field", ErrMalformedEnvelope)
	}
	salt, err = base64.StdEncoding.DecodeString(e.Salt)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("%w: undecodable salt field", ErrMalformedEnvelope)
	}
	checksum, err = base64.StdEncoding.DecodeString(e.Checksum)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("%w: undecodable checksum field", ErrMalformedEnvelope)
	}
	return ciphertext, nonce, salt, checksum, nil
}
