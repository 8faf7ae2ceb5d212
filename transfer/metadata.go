package transfer

import (
	"fmt"
)

// Lifecycle is the transfer phase advertised to the peer in the metadata value.
type Lifecycle uint8

const (
	LifecycleIdle    Lifecycle = 0
	LifecycleSending Lifecycle = 1
	LifecycleDone    Lifecycle = 2
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleIdle:
		return "idle"
	case LifecycleSending:
		return "sending"
	case LifecycleDone:
		return "done"
	default:
		return fmt.Sprintf("Lifecycle(%d)", uint8(l))
	}
}

const (
	// MaxChunks is the most chunks a single transfer can be split into; the count
	// travels as one byte.
	MaxChunks = 255

	// MetadataSize is the length of the encoded metadata value.
	MetadataSize = 3
)

// Metadata is the progress summary a central can read at any time:
//
//	[num_chunks:1][chunks_rx:1][ready:1]
//
// ChunksRx counts chunks emitted by the peripheral, not chunks acknowledged.
// Metadata is plain data; the Scheduler owns the live copy and hands out values.
type Metadata struct {
	NumChunks uint8
	ChunksRx  uint8
	Ready     Lifecycle
}

// ChunkCount returns ceil(payloadLen/capacity).
func ChunkCount(payloadLen, capacity int) int {
	if capacity < 1 || payloadLen <= 0 {
		return 0
	}
	return (payloadLen + capacity - 1) / capacity
}

// Reset arms the tracker for a payload of payloadLen bytes split into chunks of at
// most capacity bytes.
func (m *Metadata) Reset(payloadLen, capacity int) error {
	if capacity < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidChunkCapacity, capacity)
	}
	n := ChunkCount(payloadLen, capacity)
	if n > MaxChunks {
		return fmt.Errorf("%w: %d bytes at %d per chunk needs %d chunks", ErrPayloadTooLarge, payloadLen, capacity, n)
	}
	m.NumChunks = uint8(n)
	m.ChunksRx = 0
	m.Ready = LifecycleSending
	return nil
}

// RecordChunkSent counts one emitted chunk. It saturates at NumChunks.
func (m *Metadata) RecordChunkSent() {
	if m.ChunksRx < m.NumChunks {
		m.ChunksRx++
	}
}

// Rebase recomputes NumChunks after the chunk capacity changed mid-transfer, keeping
// the chunks already sent and planning ceil(remaining/capacity) more.
func (m *Metadata) Rebase(remaining, capacity int) error {
	if capacity < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidChunkCapacity, capacity)
	}
	n := int(m.ChunksRx) + ChunkCount(remaining, capacity)
	if n > MaxChunks {
		return fmt.Errorf("%w: %d chunks after capacity change to %d", ErrPayloadTooLarge, n, capacity)
	}
	m.NumChunks = uint8(n)
	return nil
}

// MarkDone flags the transfer complete.
func (m *Metadata) MarkDone() {
	m.ChunksRx = m.NumChunks
	m.Ready = LifecycleDone
}

// Clear returns the tracker to its idle zero value.
func (m *Metadata) Clear() {
	*m = Metadata{}
}

// Encode returns the wire form.
func (m Metadata) Encode() [MetadataSize]byte {
	return [MetadataSize]byte{m.NumChunks, m.ChunksRx, byte(m.Ready)}
}

// DecodeMetadata parses the wire form.
func DecodeMetadata(b []byte) (Metadata, error) {
	if len(b) != MetadataSize {
		return Metadata{}, fmt.Errorf("%w: length %d, want %d", ErrInvalidMetadata, len(b), MetadataSize)
	}
	m := Metadata{NumChunks: b[0], ChunksRx: b[1], Ready: Lifecycle(b[2])}
	if m.Ready > LifecycleDone {
		return Metadata{}, fmt.Errorf("%w: ready %d", ErrInvalidMetadata, b[2])
	}
	if m.ChunksRx > m.NumChunks {
		return Metadata{}, fmt.Errorf("%w: chunks_rx %d exceeds num_chunks %d", ErrInvalidMetadata, m.ChunksRx, m.NumChunks)
	}
	return m, nil
}

func (m Metadata) String() string {
	return fmt.Sprintf("%d/%d %s", m.ChunksRx, m.NumChunks, m.Ready)
}
