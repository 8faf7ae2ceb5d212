package aead

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend lets each stage of Encrypt fail on demand.
type fakeBackend struct {
	initErr   error
	importErr error
	sealErr   error
	truncate  bool

	imported  int
	destroyed int
}

func (b *fakeBackend) Init() error { return b.initErr }

func (b *fakeBackend) ImportKey(key []byte, alg Algorithm, usage Usage) (KeyHandle, error) {
	if b.importErr != nil {
		return nil, b.importErr
	}
	inner, err := (&SoftwareBackend{}).ImportKey(key, alg, usage)
	if err != nil {
		return nil, err
	}
	b.imported++
	return &fakeKey{KeyHandle: inner, b: b}, nil
}

type fakeKey struct {
	KeyHandle
	b *fakeBackend
}

func (k *fakeKey) Seal(nonce, plaintext, ad []byte) ([]byte, error) {
	if k.b.sealErr != nil {
		return nil, k.b.sealErr
	}
	out, err := k.KeyHandle.Seal(nonce, plaintext, ad)
	if k.b.truncate && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, err
}

func (k *fakeKey) Destroy() error {
	k.b.destroyed++
	return k.KeyHandle.Destroy()
}

func testKey() Key {
	var k Key
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func testNonce() Nonce {
	var n Nonce
	for i := range n {
		n[i] = byte(0xA0 + i)
	}
	return n
}

func TestEncryptLayout(t *testing.T) {
	f := NewFramer(nil, AlgAES128GCM)
	plaintext := []byte("NEBULA demo payload")
	dst := make([]byte, PayloadSize(len(plaintext))+5)

	n, err := f.Encrypt(testKey(), testNonce(), plaintext, dst)
	require.NoError(t, err)
	assert.Equal(t, len(plaintext)+28, n)

	nonce := testNonce()
	assert.Equal(t, nonce[:], dst[:NonceSize], "payload starts with the nonce")
	assert.NotEqual(t, plaintext, dst[NonceSize:NonceSize+len(plaintext)])
	assert.Equal(t, make([]byte, 5), dst[n:], "bytes past the payload untouched")
}

func TestAES128GCMKnownAnswer(t *testing.T) {
	// GCM test case 2: zero key, zero IV, 16 zero bytes of plaintext.
	f := NewFramer(nil, AlgAES128GCM)
	out, err := f.Seal(Key{}, Nonce{}, make([]byte, 16))
	require.NoError(t, err)

	assert.Equal(t, "0388dace60b6a392f328c2b971b2fe78", hex.EncodeToString(out[NonceSize:NonceSize+16]))
	assert.Equal(t, "ab6e47d42cec13bdf53a67b21257bddf", hex.EncodeToString(out[NonceSize+16:]))
}

func TestRoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{AlgAES128GCM, AlgChaCha20Poly1305} {
		t.Run(alg.String(), func(t *testing.T) {
			f := NewFramer(nil, alg)
			for _, size := range []int{0, 1, 15, 16, 17, 200, 2048} {
				plaintext := bytes.Repeat([]byte{0x5A}, size)
				payload, err := f.Seal(testKey(), testNonce(), plaintext)
				require.NoError(t, err)
				require.Len(t, payload, size+Overhead)

				got, err := f.Decrypt(testKey(), payload)
				require.NoError(t, err, "size %d", size)
				assert.True(t, bytes.Equal(plaintext, got), "size %d", size)
			}
		})
	}
}

func TestAlgorithmsProduceDifferentCiphertext(t *testing.T) {
	plaintext := []byte("same input")
	a, err := NewFramer(nil, AlgAES128GCM).Seal(testKey(), testNonce(), plaintext)
	require.NoError(t, err)
	c, err := NewFramer(nil, AlgChaCha20Poly1305).Seal(testKey(), testNonce(), plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	_, err = NewFramer(nil, AlgChaCha20Poly1305).Decrypt(testKey(), a)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestSingleBitFlipFailsAuthentication(t *testing.T) {
	f := NewFramer(nil, AlgAES128GCM)
	plaintext := []byte("sensor frame 0042")
	payload, err := f.Seal(testKey(), testNonce(), plaintext)
	require.NoError(t, err)

	for i := 0; i < len(payload)*8; i++ {
		tampered := append([]byte(nil), payload...)
		tampered[i/8] ^= 1 << (i % 8)

		got, err := f.Decrypt(testKey(), tampered)
		require.ErrorIs(t, err, ErrAuthenticationFailed, "bit %d", i)
		require.Nil(t, got, "bit %d", i)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	f := NewFramer(nil, AlgAES128GCM)
	payload, err := f.Seal(testKey(), testNonce(), []byte("hello"))
	require.NoError(t, err)

	other := testKey()
	other[0] ^= 0xFF
	_, err = f.Decrypt(other, payload)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestDecryptTooShort(t *testing.T) {
	f := NewFramer(nil, AlgAES128GCM)
	_, err := f.Decrypt(testKey(), make([]byte, Overhead-1))
	assert.ErrorIs(t, err, ErrPayloadTooShort)
}

func TestEncryptFailuresLeaveBufferUnwritten(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name          string
		backend       *fakeBackend
		dstLen        int
		want          error
		wantDestroyed int
	}{
		{"buffer too small", &fakeBackend{}, PayloadSize(4) - 1, ErrBufferTooSmall, 0},
		{"backend init", &fakeBackend{initErr: boom}, PayloadSize(4), ErrBackendInit, 0},
		{"key import", &fakeBackend{importErr: boom}, PayloadSize(4), ErrKeyImport, 0},
		{"encrypt", &fakeBackend{sealErr: boom}, PayloadSize(4), ErrEncrypt, 1},
		{"output length", &fakeBackend{truncate: true}, PayloadSize(4), ErrUnexpectedOutputLength, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFramer(tt.backend, AlgAES128GCM)
			dst := bytes.Repeat([]byte{0xEE}, tt.dstLen)

			n, err := f.Encrypt(testKey(), testNonce(), []byte("abcd"), dst)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, n)
			assert.Equal(t, bytes.Repeat([]byte{0xEE}, tt.dstLen), dst)
			assert.Equal(t, tt.wantDestroyed, tt.backend.destroyed)
			assert.Equal(t, tt.backend.imported, tt.backend.destroyed, "every imported key destroyed")
		})
	}
}

func TestEncryptDestroysKeyOnSuccess(t *testing.T) {
	b := &fakeBackend{}
	f := NewFramer(b, AlgAES128GCM)
	_, err := f.Seal(testKey(), testNonce(), []byte("ok"))
	require.NoError(t, err)
	assert.Equal(t, 1, b.imported)
	assert.Equal(t, 1, b.destroyed)
}

func TestKeyUsageEnforced(t *testing.T) {
	b := &SoftwareBackend{}
	k := testKey()
	h, err := b.ImportKey(k[:], AlgAES128GCM, UsageEncrypt)
	require.NoError(t, err)

	n := testNonce()
	sealed, err := h.Seal(n[:], []byte("x"), nil)
	require.NoError(t, err)
	_, err = h.Open(n[:], sealed, nil)
	assert.ErrorIs(t, err, ErrKeyUsage)

	require.NoError(t, h.Destroy())
	_, err = h.Seal(n[:], []byte("x"), nil)
	assert.ErrorIs(t, err, ErrKeyUsage)
}

func TestImportKeyRejectsBadInput(t *testing.T) {
	b := &SoftwareBackend{}
	_, err := b.ImportKey(make([]byte, 15), AlgAES128GCM, UsageEncrypt)
	assert.Error(t, err)
	_, err = b.ImportKey(make([]byte, 16), Algorithm(99), UsageEncrypt)
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
	_, err = b.ImportKey(make([]byte, 16), AlgAES128GCM, 0)
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey("000102030405060708090a0b0c0d0e0f")
	require.NoError(t, err)
	assert.Equal(t, testKey(), k)

	_, err = ParseKey("zz")
	assert.Error(t, err)
	_, err = ParseKey("0001")
	assert.Error(t, err)
}

func TestParseAlgorithm(t *testing.T) {
	for in, want := range map[string]Algorithm{
		"":                  AlgAES128GCM,
		"AES-128-GCM":       AlgAES128GCM,
		"chacha20-poly1305": AlgChaCha20Poly1305,
		"chacha":            AlgChaCha20Poly1305,
	} {
		got, err := ParseAlgorithm(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseAlgorithm("rot13")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

type failingSource struct{}

func (failingSource) Fill([]byte) error { return errors.New("no entropy") }

func TestNewNonce(t *testing.T) {
	a, err := NewNonce(nil)
	require.NoError(t, err)
	b, err := NewNonce(RandomNonces{})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	_, err = NewNonce(failingSource{})
	assert.Error(t, err)
	_, err = NewKey(failingSource{})
	assert.Error(t, err)
}

func TestWipe(t *testing.T) {
	b := []byte{1, 2, 3}
	Wipe(b)
	assert.Equal(t, []byte{0, 0, 0}, b)
	Wipe(nil)
}
