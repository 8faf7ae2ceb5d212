package aead

import (
	"fmt"

	"github.com/user/nebula-blue/logger"
)

const logPrefix = "aead"

// Framer produces and opens [Nonce|Ciphertext|Tag] payloads. It holds no key
// state between calls and is safe for concurrent use if its Backend is.
type Framer struct {
	backend Backend
	alg     Algorithm
}

// NewFramer binds a framer to a backend and algorithm. A nil backend selects the
// software backend.
func NewFramer(backend Backend, alg Algorithm) *Framer {
	if backend == nil {
		backend = &SoftwareBackend{}
	}
	if alg == 0 {
		alg = AlgAES128GCM
	}
	return &Framer{backend: backend, alg: alg}
}

// Algorithm reports the construction this framer uses.
func (f *Framer) Algorithm() Algorithm {
	return f.alg
}

// Encrypt writes nonce, ciphertext and tag into dst and returns the number of
// bytes written. dst must hold at least PayloadSize(len(plaintext)) bytes. On any
// error dst is left untouched.
func (f *Framer) Encrypt(key Key, nonce Nonce, plaintext, dst []byte) (int, error) {
	defer Wipe(key[:])

	need := PayloadSize(len(plaintext))
	if len(dst) < need {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, need, len(dst))
	}

	if err := f.backend.Init(); err != nil {
		logger.Error(logPrefix, "backend init failed: %v", err)
		return 0, fmt.Errorf("%w: %w", ErrBackendInit, err)
	}

	handle, err := f.backend.ImportKey(key[:], f.alg, UsageEncrypt)
	if err != nil {
		logger.Error(logPrefix, "key import failed: %v", err)
		return 0, fmt.Errorf("%w: %w", ErrKeyImport, err)
	}
	defer destroy(handle)

	out, err := handle.Seal(nonce[:], plaintext, nil)
	if err != nil {
		logger.Error(logPrefix, "%v encrypt failed: %v", f.alg, err)
		return 0, fmt.Errorf("%w: %w", ErrEncrypt, err)
	}

	if len(out) != len(plaintext)+TagSize {
		logger.Error(logPrefix, "unexpected output length %d for %d byte plaintext", len(out), len(plaintext))
		return 0, fmt.Errorf("%w: got %d, want %d", ErrUnexpectedOutputLength, len(out), len(plaintext)+TagSize)
	}

	copy(dst[:NonceSize], nonce[:])
	copy(dst[NonceSize:need], out)
	return need, nil
}

// Seal is Encrypt into a freshly allocated buffer of the exact size.
func (f *Framer) Seal(key Key, nonce Nonce, plaintext []byte) ([]byte, error) {
	dst := make([]byte, PayloadSize(len(plaintext)))
	n, err := f.Encrypt(key, nonce, plaintext, dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

// Decrypt verifies and opens a payload produced by Encrypt with the same key and
// algorithm. Any modification of the nonce, ciphertext or tag yields
// ErrAuthenticationFailed and no plaintext.
func (f *Framer) Decrypt(key Key, payload []byte) ([]byte, error) {
	defer Wipe(key[:])

	if len(payload) < Overhead {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooShort, len(payload))
	}

	if err := f.backend.Init(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendInit, err)
	}

	handle, err := f.backend.ImportKey(key[:], f.alg, UsageDecrypt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyImport, err)
	}
	defer destroy(handle)

	plaintext, err := handle.Open(payload[:NonceSize], payload[NonceSize:], nil)
	if err != nil {
		logger.Warn(logPrefix, "payload of %d bytes failed authentication", len(payload))
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return plaintext, nil
}

func destroy(h KeyHandle) {
	if err := h.Destroy(); err != nil {
		logger.Warn(logPrefix, "key destroy failed: %v", err)
	}
}
