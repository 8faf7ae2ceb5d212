// Package aead frames plaintext into a self-describing authenticated-encryption
// payload:
//
//	[Nonce:12][Ciphertext:N][Tag:16]
//
// Every Encrypt or Decrypt call imports an ephemeral key into the configured
// backend, performs exactly one operation and destroys the key again before
// returning, whether the operation succeeded or not. No partial output is ever
// written to the caller's buffer.
package aead

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Sizes of the framed payload's fixed parts.
const (
	KeySize   = 16 // 128-bit key
	NonceSize = 12 // 96-bit nonce
	TagSize   = 16 // 128-bit tag
	Overhead  = NonceSize + TagSize
)

// Key is a 128-bit symmetric key.
type Key [KeySize]byte

// Nonce must never repeat for the same Key.
type Nonce [NonceSize]byte

var (
	ErrBufferTooSmall         = errors.New("aead: destination buffer too small")
	ErrBackendInit            = errors.New("aead: crypto backend init failed")
	ErrKeyImport              = errors.New("aead: key import failed")
	ErrEncrypt                = errors.New("aead: encrypt failed")
	ErrUnexpectedOutputLength = errors.New("aead: unexpected ciphertext length")
	ErrAuthenticationFailed   = errors.New("aead: authentication failed")
	ErrPayloadTooShort        = errors.New("aead: payload shorter than nonce and tag")
	ErrKeyUsage               = errors.New("aead: key not imported for this operation")
	ErrUnknownAlgorithm       = errors.New("aead: unknown algorithm")
)

// Algorithm selects the AEAD construction a key is bound to on import.
type Algorithm uint8

const (
	AlgAES128GCM Algorithm = iota + 1
	AlgChaCha20Poly1305
)

func (a Algorithm) String() string {
	switch a {
	case AlgAES128GCM:
		return "aes-128-gcm"
	case AlgChaCha20Poly1305:
		return "chacha20-poly1305"
	default:
		return fmt.Sprintf("Algorithm(%d)", uint8(a))
	}
}

// ParseAlgorithm accepts the names produced by Algorithm.String.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "aes-128-gcm", "aes128gcm", "aes-gcm", "":
		return AlgAES128GCM, nil
	case "chacha20-poly1305", "chacha20poly1305", "chacha":
		return AlgChaCha20Poly1305, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}

// ParseKey decodes a 32-character hex string.
func ParseKey(s string) (Key, error) {
	var k Key
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return k, fmt.Errorf("aead: key is not hex: %w", err)
	}
	defer Wipe(raw)
	if len(raw) != KeySize {
		return k, fmt.Errorf("aead: key must be %d bytes, got %d", KeySize, len(raw))
	}
	copy(k[:], raw)
	return k, nil
}

// PayloadSize is the framed size for a plaintext of n bytes.
func PayloadSize(n int) int {
	return NonceSize + n + TagSize
}
