// Package crypto implements AES-256-GCM encryption for OAuth tokens and
// secret config values at rest. See DESIGN.md for why this is built
// directly on crypto/aes + crypto/cipher rather than a third-party lib.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// KeySize is the required decoded key length for AES-256.
const KeySize = 32

var ErrInvalidKeySize = fmt.Errorf("encryption key must decode to exactly %d bytes", KeySize)

// Box encrypts/decrypts OAuth tokens and secret config values using a
// single 32-byte key loaded once at startup.
type Box struct {
	gcm cipher.AEAD
}

// NewBox parses a key given as hex, base64, or raw bytes and refuses to
// start if it does not decode to exactly 32 bytes.
func NewBox(key string) (*Box, error) {
	raw, err := decodeKey(key)
	if err != nil {
		return nil, err
	}
	if len(raw) != KeySize {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}
	return &Box{gcm: gcm}, nil
}

func decodeKey(key string) ([]byte, error) {
	if raw, err := hex.DecodeString(key); err == nil && len(raw) == KeySize {
		return raw, nil
	}
	if raw, err := base64.StdEncoding.DecodeString(key); err == nil && len(raw) == KeySize {
		return raw, nil
	}
	if len(key) == KeySize {
		return []byte(key), nil
	}
	return nil, ErrInvalidKeySize
}

// Seal encrypts plaintext and returns "base64(iv):base64(tag):base64(ct)"
// with a 12-byte nonce.
func (b *Box) Seal(plaintext string) (string, error) {
	nonce := make([]byte, b.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypto: nonce: %w", err)
	}
	sealed := b.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	ct := sealed[:len(sealed)-b.gcm.Overhead()]
	tag := sealed[len(sealed)-b.gcm.Overhead():]
	return strings.Join([]string{
		base64.StdEncoding.EncodeToString(nonce),
		base64.StdEncoding.EncodeToString(tag),
		base64.StdEncoding.EncodeToString(ct),
	}, ":"), nil
}

// Open decrypts a value produced by Seal. It is the only decryption point
// in the system; reads must never surface ciphertext or raw key material.
func (b *Box) Open(sealed string) (string, error) {
	parts := strings.SplitN(sealed, ":", 3)
	if len(parts) != 3 {
		return "", errors.New("crypto: malformed ciphertext")
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("crypto: decode iv: %w", err)
	}
	tag, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("crypto: decode tag: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("crypto: decode ct: %w", err)
	}
	pt, err := b.gcm.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("crypto: open: %w", err)
	}
	return string(pt), nil
}
