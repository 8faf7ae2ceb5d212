package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Usage restricts what an imported key may be used for.
type Usage uint8

const (
	UsageEncrypt Usage = 1 << iota
	UsageDecrypt
)

// Backend is the crypto provider keys are imported into.
type Backend interface {
	// Init prepares the backend. It is called before every key import and must be
	// cheap after the first success.
	Init() error

	// ImportKey binds raw key bytes to alg and usage. The backend keeps its own
	// copy; the caller may wipe key as soon as ImportKey returns.
	ImportKey(key []byte, alg Algorithm, usage Usage) (KeyHandle, error)
}

// KeyHandle is a key living inside a Backend.
type KeyHandle interface {
	Seal(nonce, plaintext, additionalData []byte) ([]byte, error)
	Open(nonce, ciphertext, additionalData []byte) ([]byte, error)
	// Destroy erases the key material. Further use fails.
	Destroy() error
}

// chachaInfo domain-separates the expansion of a 128-bit key to the 256 bits
// ChaCha20-Poly1305 needs.
var chachaInfo = []byte("nebula-blue chacha20-poly1305 v1")

// SoftwareBackend implements Backend with Go's AES-GCM and x/crypto's
// ChaCha20-Poly1305.
type SoftwareBackend struct {
	once sync.Once
	err  error
}

// Init implements Backend.
func (b *SoftwareBackend) Init() error {
	b.once.Do(func() {
		// Sanity check that the AES implementation accepts our key size.
		_, b.err = aes.NewCipher(make([]byte, KeySize))
	})
	return b.err
}

// ImportKey implements Backend.
func (b *SoftwareBackend) ImportKey(key []byte, alg Algorithm, usage Usage) (KeyHandle, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key length %d, want %d", len(key), KeySize)
	}
	if usage == 0 {
		return nil, fmt.Errorf("key usage not set")
	}

	material := make([]byte, KeySize)
	copy(material, key)

	var (
		impl cipher.AEAD
		err  error
	)
	switch alg {
	case AlgAES128GCM:
		var block cipher.Block
		block, err = aes.NewCipher(material)
		if err == nil {
			impl, err = cipher.NewGCM(block)
		}
	case AlgChaCha20Poly1305:
		expanded := make([]byte, chacha20poly1305.KeySize)
		_, err = io.ReadFull(hkdf.New(sha256.New, material, nil, chachaInfo), expanded)
		if err == nil {
			impl, err = chacha20poly1305.New(expanded)
		}
		Wipe(expanded)
	default:
		err = fmt.Errorf("%w: %v", ErrUnknownAlgorithm, alg)
	}
	if err != nil {
		Wipe(material)
		return nil, err
	}
	if impl.NonceSize() != NonceSize || impl.Overhead() != TagSize {
		Wipe(material)
		return nil, fmt.Errorf("%v: nonce %d/tag %d do not match framing", alg, impl.NonceSize(), impl.Overhead())
	}

	return &softwareKey{material: material, impl: impl, usage: usage}, nil
}

type softwareKey struct {
	mu       sync.Mutex
	material []byte
	impl     cipher.AEAD
	usage    Usage
}

func (k *softwareKey) use(u Usage) (cipher.AEAD, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.impl == nil {
		return nil, fmt.Errorf("%w: key destroyed", ErrKeyUsage)
	}
	if k.usage&u == 0 {
		return nil, ErrKeyUsage
	}
	return k.impl, nil
}

func (k *softwareKey) Seal(nonce, plaintext, additionalData []byte) ([]byte, error) {
	impl, err := k.use(UsageEncrypt)
	if err != nil {
		return nil, err
	}
	if len(nonce) != impl.NonceSize() {
		return nil, fmt.Errorf("nonce length %d, want %d", len(nonce), impl.NonceSize())
	}
	return impl.Seal(nil, nonce, plaintext, additionalData), nil
}

func (k *softwareKey) Open(nonce, ciphertext, additionalData []byte) ([]byte, error) {
	impl, err := k.use(UsageDecrypt)
	if err != nil {
		return nil, err
	}
	if len(nonce) != impl.NonceSize() {
		return nil, fmt.Errorf("nonce length %d, want %d", len(nonce), impl.NonceSize())
	}
	return impl.Open(nil, nonce, ciphertext, additionalData)
}

func (k *softwareKey) Destroy() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	Wipe(k.material)
	k.material = nil
	k.impl = nil
	return nil
}
