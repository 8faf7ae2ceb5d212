// Package transport defines the capabilities the transfer core consumes from the
// notification link: negotiated capacity, a non-blocking send primitive, inbound
// data delivery and connection presence events.
package transport

import (
	"errors"
	"fmt"
)

// ConnID identifies the active peer. It is a weak reference: the link may drop the
// connection at any time, so holders must look it up again instead of caching it.
type ConnID string

// MTU bounds for a notification link. A notification carries
// [Opcode:1][Handle:2][Value:N], so the usable value is MTU - HeaderOverhead.
const (
	HeaderOverhead = 3
	DefaultMTU     = 23
	MaxMTU         = 512
)

var (
	// ErrResourceExhausted means the link's internal buffers are full. The write was
	// not queued and may be retried later unchanged.
	ErrResourceExhausted = errors.New("transport: resource exhausted")

	// ErrNotConnected means there is no connection matching the given ConnID.
	ErrNotConnected = errors.New("transport: not connected")
)

// Transport is the send side of the link.
type Transport interface {
	// Capacity returns the currently negotiated MTU for conn, or 0 if conn is gone.
	Capacity(conn ConnID) uint16

	// Send queues value as a single notification. It never blocks waiting for
	// buffer space; it returns an error wrapping ErrResourceExhausted instead.
	Send(conn ConnID, value []byte) error
}

// DataReceiver is invoked by the link for every write received from the peer,
// at most once per write and in the order the writes arrived.
type DataReceiver interface {
	OnDataReceived(conn ConnID, data []byte)
}

// ConnectionObserver receives connection presence changes.
type ConnectionObserver interface {
	Connected(conn ConnID)
	Disconnected(conn ConnID, reason uint8)
}

// ErrorClass buckets a send error by how the caller must react to it.
type ErrorClass int

const (
	ClassNone ErrorClass = iota
	ClassResourceExhausted
	ClassNotConnected
	ClassOther
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassResourceExhausted:
		return "resource_exhausted"
	case ClassNotConnected:
		return "not_connected"
	case ClassOther:
		return "other"
	default:
		return fmt.Sprintf("ErrorClass(%d)", int(c))
	}
}

// Classify maps a Send error onto an ErrorClass.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrResourceExhausted):
		return ClassResourceExhausted
	case errors.Is(err, ErrNotConnected):
		return ClassNotConnected
	default:
		return ClassOther
	}
}

// ValueCapacity returns the largest notification value that fits in mtu, or 0 when
// the mtu cannot carry any payload at all.
func ValueCapacity(mtu uint16) int {
	if int(mtu) <= HeaderOverhead {
		return 0
	}
	return int(mtu) - HeaderOverhead
}
