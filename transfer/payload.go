package transfer

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"

	"github.com/user/nebula-blue/aead"
)

// PlaintextSource supplies the bytes a transfer protects. Every call may return
// fresh data; the caller owns the returned slice.
type PlaintextSource interface {
	Plaintext() ([]byte, error)
}

// SourceFunc adapts a function to PlaintextSource.
type SourceFunc func() ([]byte, error)

// Plaintext implements PlaintextSource.
func (f SourceFunc) Plaintext() ([]byte, error) { return f() }

// Built is a payload ready to be armed.
type Built struct {
	Data      []byte
	Encrypted   bool
	Algorithm   string
	ContentType string // sniffed from the plaintext
}

// contentType sniffs the MIME type of plaintext.
func contentType(pt []byte) string {
	return mimetype.Detect(pt).String()
}

// PayloadBuilder produces the bytes the scheduler streams.
type PayloadBuilder interface {
	Build() (Built, error)
}

// Passthrough streams the plaintext as is.
type Passthrough struct {
	Source PlaintextSource
}

// Build implements PayloadBuilder.
func (p Passthrough) Build() (Built, error) {
	if p.Source == nil {
		return Built{}, ErrNoSource
	}
	pt, err := p.Source.Plaintext()
	if err != nil {
		return Built{}, fmt.Errorf("read plaintext: %w", err)
	}
	return Built{Data: pt, ContentType: contentType(pt)}, nil
}

// Encrypting frames the plaintext as [Nonce|Ciphertext|Tag] under Key, drawing a
// fresh nonce for every build.
type Encrypting struct {
	Source PlaintextSource
	Framer *aead.Framer
	Key    aead.Key
	Nonces aead.NonceSource
}

// Build implements PayloadBuilder.
func (e Encrypting) Build() (Built, error) {
	if e.Source == nil {
		return Built{}, ErrNoSource
	}
	framer := e.Framer
	if framer == nil {
		framer = aead.NewFramer(nil, aead.AlgAES128GCM)
	}

	pt, err := e.Source.Plaintext()
	if err != nil {
		return Built{}, fmt.Errorf("read plaintext: %w", err)
	}
	defer aead.Wipe(pt)
	ct := contentType(pt)

	nonce, err := aead.NewNonce(e.Nonces)
	if err != nil {
		return Built{}, err
	}

	out := make([]byte, aead.PayloadSize(len(pt)))
	n, err := framer.Encrypt(e.Key, nonce, pt, out)
	if err != nil {
		return Built{}, err
	}
	return Built{Data: out[:n], Encrypted: true, Algorithm: framer.Algorithm().String(), ContentType: ct}, nil
}
