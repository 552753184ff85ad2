// Package credentials turns a stored (sealed) provider key into plaintext
// before it reaches the pipeline.
package credentials

import (
	"encoding/base64"
	"fmt"
	"strings"

	"page-assist/internal/apperr"
)

// Codec seals and opens stored secrets. The sealing scheme is owned by the
// caller; this package only defines the boundary.
type Codec interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// Plain stores secrets as-is.
type Plain struct{}

func (Plain) Seal(plaintext string) (string, error) { return plaintext, nil }
func (Plain) Open(sealed string) (string, error)    { return sealed, nil }

// Base64 stores secrets base64-encoded. It is an encoding, not encryption.
type Base64 struct{}

func (Base64) Seal(plaintext string) (string, error) {
	return base64.StdEncoding.EncodeToString([]byte(plaintext)), nil
}

func (Base64) Open(sealed string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sealed))
	if err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}
	return string(b), nil
}

// ByName returns the codec for "plain" or "base64".
func ByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "plain":
		return Plain{}, nil
	case "base64":
		return Base64{}, nil
	default:
		return nil, fmt.Errorf("unknown secret codec %q", name)
	}
}

// Resolve returns the plaintext key to call a provider with. An absent
// sealed key resolves to defaultKey. A sealed key that cannot be opened is a
// SecretDecode error and never falls back to defaultKey.
func Resolve(codec Codec, sealed, defaultKey string) (string, error) {
	if strings.TrimSpace(sealed) == "" {
		return defaultKey, nil
	}
	key, err := codec.Open(sealed)
	if err != nil {
		return "", apperr.Wrap(apperr.SecretDecode, "credentials.Resolve", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", apperr.New(apperr.SecretDecode, "credentials.Resolve", "stored key decoded to an empty value")
	}
	return key, nil
}
