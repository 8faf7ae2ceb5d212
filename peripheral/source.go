package peripheral

import (
	"errors"
	"fmt"
	"os"

	"github.com/user/nebula-blue/aead"
	"github.com/user/nebula-blue/config"
	"github.com/user/nebula-blue/logger"
	"github.com/user/nebula-blue/transfer"
)

// DemoText is the placeholder plaintext sent until a real sensor source is
// configured.
const DemoText = "NEBULA demo payload — replace with real sensor data"

// ErrPlaintextTooLarge is returned by a source whose data exceeds its limit.
var ErrPlaintextTooLarge = errors.New("peripheral: plaintext too large")

// StaticSource always returns the same bytes.
type StaticSource struct {
	Data []byte
	Max  int // 0 means no limit
}

// DemoSource returns DemoText followed by its terminating NUL.
func DemoSource() StaticSource {
	return StaticSource{Data: append([]byte(DemoText), 0), Max: config.DefaultMaxPlaintext}
}

// Plaintext implements transfer.PlaintextSource.
func (s StaticSource) Plaintext() ([]byte, error) {
	if s.Max > 0 && len(s.Data) > s.Max {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrPlaintextTooLarge, len(s.Data), s.Max)
	}
	return append([]byte(nil), s.Data...), nil
}

// FileSource reads the plaintext from a file on every build.
type FileSource struct {
	Path string
	Max  int // 0 means no limit
}

// Plaintext implements transfer.PlaintextSource.
func (f FileSource) Plaintext() ([]byte, error) {
	info, err := os.Stat(f.Path)
	if err != nil {
		return nil, err
	}
	if f.Max > 0 && info.Size() > int64(f.Max) {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrPlaintextTooLarge, f.Path, info.Size(), f.Max)
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	logger.Debug(logPrefix, "📄 %s: %d bytes", f.Path, len(data))
	return data, nil
}

// NewSource picks the plaintext source cfg asks for.
func NewSource(cfg config.Config) transfer.PlaintextSource {
	if cfg.PayloadFile != "" {
		return FileSource{Path: cfg.PayloadFile, Max: cfg.MaxPlaintext}
	}
	src := DemoSource()
	src.Max = cfg.MaxPlaintext
	return src
}

// NewBuilder returns the payload policy cfg asks for: passthrough by default,
// AEAD framing when encryption is enabled.
func NewBuilder(cfg config.Config, src transfer.PlaintextSource) (transfer.PayloadBuilder, error) {
	if !cfg.Encrypt {
		return transfer.Passthrough{Source: src}, nil
	}
	key, alg, err := cfg.AEAD()
	if err != nil {
		return nil, err
	}
	return transfer.Encrypting{
		Source: src,
		Framer: aead.NewFramer(nil, alg),
		Key:    key,
	}, nil
}
