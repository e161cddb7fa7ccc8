// Package aesgcm implements secrets.Oracle with AES-256-GCM, keying each
// instance from a shared passphrase and salt via HKDF so that any server in
// a cluster configured with the same material decrypts the same tokens
// (spec §6 "cluster-safe secret material").
package aesgcm

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/nexfin/pesitd/pkg/secrets"
)

const (
	keySize   = 32 // AES-256
	nonceSize = 12 // standard GCM nonce
)

// Oracle is an AES-256-GCM secrets.Oracle. Tokens are base64url(nonce||ciphertext).
type Oracle struct {
	aead cipher.AEAD
}

// New derives a 256-bit key from passphrase and salt via HKDF-SHA256 and
// returns an Oracle ready to encrypt and decrypt. The same (passphrase, salt)
// pair always derives the same key, so every cluster member configured
// identically can decrypt tokens produced by any other member.
func New(passphrase, salt string) (*Oracle, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("aesgcm: passphrase must not be empty")
	}
	if salt == "" {
		return nil, fmt.Errorf("aesgcm: salt must not be empty")
	}

	key := make([]byte, keySize)
	kdf := hkdf.New(sha256.New, []byte(passphrase), []byte(salt), []byte("pesitd-secrets-oracle"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("aesgcm: derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aesgcm: init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("aesgcm: init GCM: %w", err)
	}
	return &Oracle{aead: aead}, nil
}

func (o *Oracle) Encrypt(_ context.Context, plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("aesgcm: generate nonce: %w", err)
	}
	sealed := o.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (o *Oracle) Decrypt(_ context.Context, token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("aesgcm: malformed token: %w", err)
	}
	if len(raw) < nonceSize {
		return "", fmt.Errorf("aesgcm: token too short")
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := o.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("aesgcm: decrypt: %w", err)
	}
	return string(plaintext), nil
}

var _ secrets.Oracle = (*Oracle)(nil)
