package transfer

import (
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/types/known/structpb"
)

// Descriptor field numbers in the protobuf wire encoding.
const (
	fieldTransferID    protowire.Number = 1
	fieldPayloadLen    protowire.Number = 2
	fieldNumChunks     protowire.Number = 3
	fieldChunkCapacity protowire.Number = 4
	fieldEncrypted     protowire.Number = 5
	fieldAlgorithm     protowire.Number = 6
	fieldContentType   protowire.Number = 7
)

// Descriptor describes the armed transfer so a central can size its reassembly
// buffer and knows whether to decrypt. It is published as a read-only value next
// to the metadata.
type Descriptor struct {
	TransferID    uuid.UUID
	PayloadLen    uint32
	NumChunks     uint32
	ChunkCapacity uint32
	Encrypted     bool
	Algorithm     string
	ContentType   string // MIME type of the plaintext
}

// Marshal encodes d in protobuf wire format. Zero-valued scalars are omitted.
func (d Descriptor) Marshal() []byte {
	var b []byte
	if d.TransferID != uuid.Nil {
		b = protowire.AppendTag(b, fieldTransferID, protowire.BytesType)
		b = protowire.AppendBytes(b, d.TransferID[:])
	}
	for _, f := range []struct {
		num protowire.Number
		v   uint64
	}{
		{fieldPayloadLen, uint64(d.PayloadLen)},
		{fieldNumChunks, uint64(d.NumChunks)},
		{fieldChunkCapacity, uint64(d.ChunkCapacity)},
		{fieldEncrypted, protowire.EncodeBool(d.Encrypted)},
	} {
		if f.v == 0 {
			continue
		}
		b = protowire.AppendTag(b, f.num, protowire.VarintType)
		b = protowire.AppendVarint(b, f.v)
	}
	for _, f := range []struct {
		num protowire.Number
		v   string
	}{
		{fieldAlgorithm, d.Algorithm},
		{fieldContentType, d.ContentType},
	} {
		if f.v == "" {
			continue
		}
		b = protowire.AppendTag(b, f.num, protowire.BytesType)
		b = protowire.AppendString(b, f.v)
	}
	return b
}

// UnmarshalDescriptor decodes the output of Marshal. Unknown fields are skipped.
func UnmarshalDescriptor(b []byte) (Descriptor, error) {
	var d Descriptor
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Descriptor{}, fmt.Errorf("%w: %v", ErrInvalidDescriptor, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldTransferID && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Descriptor{}, fmt.Errorf("%w: transfer id: %v", ErrInvalidDescriptor, protowire.ParseError(n))
			}
			id, err := uuid.FromBytes(v)
			if err != nil {
				return Descriptor{}, fmt.Errorf("%w: transfer id: %v", ErrInvalidDescriptor, err)
			}
			d.TransferID = id
			b = b[n:]

		case (num == fieldAlgorithm || num == fieldContentType) && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return Descriptor{}, fmt.Errorf("%w: field %d: %v", ErrInvalidDescriptor, num, protowire.ParseError(n))
			}
			if num == fieldAlgorithm {
				d.Algorithm = v
			} else {
				d.ContentType = v
			}
			b = b[n:]

		case typ == protowire.VarintType && num >= fieldPayloadLen && num <= fieldEncrypted:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Descriptor{}, fmt.Errorf("%w: field %d: %v", ErrInvalidDescriptor, num, protowire.ParseError(n))
			}
			switch num {
			case fieldPayloadLen:
				d.PayloadLen = uint32(v)
			case fieldNumChunks:
				d.NumChunks = uint32(v)
			case fieldChunkCapacity:
				d.ChunkCapacity = uint32(v)
			case fieldEncrypted:
				d.Encrypted = protowire.DecodeBool(v)
			}
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Descriptor{}, fmt.Errorf("%w: field %d: %v", ErrInvalidDescriptor, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return d, nil
}

// AsStruct renders d for logging with logger.DebugJSON.
func (d Descriptor) AsStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"transfer_id":    d.TransferID.String(),
		"payload_len":    d.PayloadLen,
		"num_chunks":     d.NumChunks,
		"chunk_capacity": d.ChunkCapacity,
		"encrypted":      d.Encrypted,
		"algorithm":      d.Algorithm,
		"content_type":   d.ContentType,
	})
}
