package transfer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/nebula-blue/aead"
	"github.com/user/nebula-blue/workqueue"
)

type fixedNonces struct{ b byte }

func (f fixedNonces) Fill(buf []byte) error {
	for i := range buf {
		buf[i] = f.b
	}
	return nil
}

func TestPassthrough(t *testing.T) {
	built, err := Passthrough{Source: &counterSource{data: []byte("hello")}}.Build()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), built.Data)
	assert.False(t, built.Encrypted)

	_, err = Passthrough{}.Build()
	assert.ErrorIs(t, err, ErrNoSource)

	boom := errors.New("sensor offline")
	_, err = Passthrough{Source: SourceFunc(func() ([]byte, error) { return nil, boom })}.Build()
	assert.ErrorIs(t, err, boom)
}

func TestEncrypting(t *testing.T) {
	key := aead.Key{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	for _, alg := range []aead.Algorithm{aead.AlgAES128GCM, aead.AlgChaCha20Poly1305} {
		t.Run(alg.String(), func(t *testing.T) {
			plaintext := []byte("NEBULA sensor frame")
			builder := Encrypting{
				Source: &counterSource{data: plaintext},
				Framer: aead.NewFramer(nil, alg),
				Key:    key,
				Nonces: fixedNonces{b: 0x42},
			}

			built, err := builder.Build()
			require.NoError(t, err)
			assert.True(t, built.Encrypted)
			assert.Equal(t, alg.String(), built.Algorithm)
			require.Len(t, built.Data, aead.PayloadSize(len(plaintext)))
			assert.Equal(t, []byte{0x42, 0x42, 0x42}, built.Data[:3])

			got, err := aead.NewFramer(nil, alg).Decrypt(key, built.Data)
			require.NoError(t, err)
			assert.Equal(t, plaintext, got)
		})
	}
}

func TestEncryptingFreshNoncePerBuild(t *testing.T) {
	builder := Encrypting{Source: &counterSource{data: []byte("x")}}
	a, err := builder.Build()
	require.NoError(t, err)
	b, err := builder.Build()
	require.NoError(t, err)
	assert.NotEqual(t, a.Data[:aead.NonceSize], b.Data[:aead.NonceSize])
}

func TestEncryptedTransferEndToEnd(t *testing.T) {
	key := aead.Key{15: 1}
	plaintext := patterned(300)
	link := newFakeLink(23)
	q := workqueue.NewManual()
	s := NewScheduler(DefaultConfig(), Encrypting{Source: &counterSource{data: plaintext}, Key: key}, link, link, q)

	require.NoError(t, s.Start())
	q.Drain(100)

	desc := s.Descriptor()
	assert.True(t, desc.Encrypted)
	assert.Equal(t, uint32(300+aead.Overhead), desc.PayloadLen)
	assert.Equal(t, uint32(17), desc.NumChunks)

	got, err := aead.NewFramer(nil, aead.AlgAES128GCM).Decrypt(key, link.joined())
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestBuildersSniffContentType(t *testing.T) {
	reading := []byte(`{"temp":21.5,"unit":"C"}`)

	built, err := Passthrough{Source: &counterSource{data: reading}}.Build()
	require.NoError(t, err)
	assert.Equal(t, "application/json", built.ContentType)

	built, err = Encrypting{Source: &counterSource{data: reading}}.Build()
	require.NoError(t, err)
	assert.Equal(t, "application/json", built.ContentType, "type comes from the plaintext, not the ciphertext")
}

func TestDescriptorCarriesContentType(t *testing.T) {
	link := newFakeLink(23)
	q := workqueue.NewManual()
	s := NewScheduler(DefaultConfig(), Passthrough{Source: &counterSource{data: []byte(`{"temp":21.5}`)}}, link, link, q)

	require.NoError(t, s.Prepare())
	desc, err := UnmarshalDescriptor(s.Descriptor().Marshal())
	require.NoError(t, err)
	assert.Equal(t, "application/json", desc.ContentType)
}
