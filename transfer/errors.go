package transfer

import "errors"

var (
	// ErrNoConnection is returned by Start when no peer is connected.
	ErrNoConnection = errors.New("transfer: no connection")

	// ErrPayloadTooLarge means the payload would need more than MaxChunks chunks.
	ErrPayloadTooLarge = errors.New("transfer: payload needs too many chunks")

	// ErrCapacityTooSmall means the negotiated MTU leaves no room for payload bytes.
	ErrCapacityTooSmall = errors.New("transfer: link capacity too small")

	// ErrRetriesExhausted means the link stayed busy for more than MaxBusyRetries
	// consecutive attempts.
	ErrRetriesExhausted = errors.New("transfer: busy retries exhausted")

	ErrInvalidChunkCapacity = errors.New("transfer: chunk capacity must be at least 1")
	ErrInvalidMetadata      = errors.New("transfer: malformed metadata")
	ErrInvalidDescriptor    = errors.New("transfer: malformed descriptor")
	ErrNoSource             = errors.New("transfer: no plaintext source")
)
