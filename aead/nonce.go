package aead

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"runtime"
)

// NonceSource fills buffers with unpredictable bytes.
type NonceSource interface {
	Fill(buf []byte) error
}

// RandomNonces draws from the operating system's CSPRNG.
type RandomNonces struct{}

// Fill implements NonceSource.
func (RandomNonces) Fill(buf []byte) error {
	_, err := rand.Read(buf)
	return err
}

// NewNonce draws one nonce from src.
func NewNonce(src NonceSource) (Nonce, error) {
	var n Nonce
	if src == nil {
		src = RandomNonces{}
	}
	if err := src.Fill(n[:]); err != nil {
		return Nonce{}, fmt.Errorf("aead: nonce generation failed: %w", err)
	}
	return n, nil
}

// NewKey draws a random key from src.
func NewKey(src NonceSource) (Key, error) {
	var k Key
	if src == nil {
		src = RandomNonces{}
	}
	if err := src.Fill(k[:]); err != nil {
		return Key{}, fmt.Errorf("aead: key generation failed: %w", err)
	}
	return k, nil
}

// Wipe zeroes sensitive bytes in place.
func Wipe(data []byte) {
	if len(data) == 0 {
		return
	}
	zeros := make([]byte, len(data))
	subtle.ConstantTimeCopy(1, data, zeros)
	runtime.KeepAlive(data)
}
