package wire

import (
	"errors"
	"time"
)

// Link defaults for the reference notification link
const (
	// One notification leaves the controller per connection event.
	DefaultConnectionInterval = 7500 * time.Microsecond

	// Controller TX buffers available to a connection.
	DefaultBufferSlots = 8

	// Largest ATT MTU the peripheral advertises in an MTU exchange.
	DefaultServerMaxMTU = 247
)

// HCI disconnect reasons reported to connection observers
const (
	ReasonConnectionTimeout    uint8 = 0x08
	ReasonRemoteUserTerminated uint8 = 0x13
	ReasonLocalHostTerminated  uint8 = 0x16
)

var (
	// ErrPeerLimit is returned when a second central tries to connect.
	ErrPeerLimit = errors.New("wire: peer limit reached")

	// ErrNotificationsDisabled is returned by Send when the peer has not enabled
	// notifications on the TX characteristic. It is not retryable.
	ErrNotificationsDisabled = errors.New("wire: notifications not enabled")

	// ErrClosed is returned once the link has been closed.
	ErrClosed = errors.New("wire: link closed")

	// ErrNoLink is returned by central operations before Connect.
	ErrNoLink = errors.New("wire: central not connected")
)
