// Copyright (C) 2025 The RouteMe Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package messagecrypto seals message bodies with a per-conversation
// AES-256-GCM key. Keys and ciphertexts cross the storage boundary as
// standard base64 strings.
package messagecrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	KeySize   = 32
	NonceSize = 12
)

var (
	ErrDecryptionFailed = errors.New("message decryption failed")
	ErrInvalidKey       = errors.New("invalid conversation key")
)

// Key is an imported conversation key ready for sealing and opening.
type Key struct {
	aead cipher.AEAD
	raw  []byte
}

// Sealed is the storable output of Encrypt.
type Sealed struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
}

// GenerateKey returns a fresh random key.
func GenerateKey() (Key, error) {
	raw := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return Key{}, fmt.Errorf("generate key: %w", err)
	}
	return newKey(raw)
}

// ExportKey returns the storable representation of k.
func ExportKey(k Key) string {
	return base64.StdEncoding.EncodeToString(k.raw)
}

// ImportKey parses a key produced by ExportKey.
func ImportKey(encoded string) (Key, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) != KeySize {
		return Key{}, ErrInvalidKey
	}
	return newKey(raw)
}

func newKey(raw []byte) (Key, error) {
	block, err := aes.NewCipher(raw)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return Key{aead: aead, raw: raw}, nil
}

// Valid reports whether k was produced by GenerateKey or ImportKey.
func (k Key) Valid() bool {
	return k.aead != nil
}

// Equal reports whether two keys hold the same material.
func (k Key) Equal(other Key) bool {
	return len(k.raw) > 0 && subtle.ConstantTimeCompare(k.raw, other.raw) == 1
}

// Encrypt seals plaintext under a fresh random nonce.
func Encrypt(plaintext string, k Key) (Sealed, error) {
	if !k.Valid() {
		return Sealed{}, ErrInvalidKey
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Sealed{}, fmt.Errorf("generate nonce: %w", err)
	}
	ct := k.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return Sealed{
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
		IV:         base64.StdEncoding.EncodeToString(nonce),
	}, nil
}

// Decrypt opens a sealed message. Any malformed input or authentication
// failure yields ErrDecryptionFailed and no plaintext.
func Decrypt(ciphertext, iv string, k Key) (string, error) {
	if !k.Valid() {
		return "", ErrDecryptionFailed
	}
	nonce, err := base64.StdEncoding.DecodeString(iv)
	if err != nil || len(nonce) != NonceSize {
		return "", ErrDecryptionFailed
	}
	ct, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	pt, err := k.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(pt), nil
}
