package att

import (
	"errors"
	"fmt"

	"github.com/user/nebula-blue/transport"
)

// Error codes the link returns (Core v5.3 Vol 3, Part F, 3.4.1.1).
const (
	ErrInvalidHandle               = 0x01
	ErrReadNotPermitted            = 0x02
	ErrWriteNotPermitted           = 0x03
	ErrInvalidPDU                  = 0x04
	ErrRequestNotSupported         = 0x06
	ErrInvalidOffset               = 0x07
	ErrAttributeNotLong            = 0x0B
	ErrInvalidAttributeValueLength = 0x0D
	ErrInsufficientResources       = 0x11
)

var codeNames = map[uint8]string{
	ErrInvalidHandle:               "invalid handle",
	ErrReadNotPermitted:            "read not permitted",
	ErrWriteNotPermitted:           "write not permitted",
	ErrInvalidPDU:                  "invalid PDU",
	ErrRequestNotSupported:         "request not supported",
	ErrInvalidOffset:               "invalid offset",
	ErrAttributeNotLong:            "attribute not long",
	ErrInvalidAttributeValueLength: "invalid attribute value length",
	ErrInsufficientResources:       "insufficient resources",
}

// Error is an ATT failure for one request or notification.
type Error struct {
	Code          uint8
	RequestOpcode uint8
	Handle        uint16
}

func (e *Error) Error() string {
	name, ok := codeNames[e.Code]
	if !ok {
		name = fmt.Sprintf("error 0x%02X", e.Code)
	}
	return fmt.Sprintf("att: %s on %s, handle 0x%04X", name, OpcodeName(e.RequestOpcode), e.Handle)
}

// Unwrap maps Insufficient Resources, the one retryable code, onto
// transport.ErrResourceExhausted.
func (e *Error) Unwrap() error {
	if e.Code == ErrInsufficientResources {
		return transport.ErrResourceExhausted
	}
	return nil
}

func NewError(code, requestOpcode uint8, handle uint16) *Error {
	return &Error{Code: code, RequestOpcode: requestOpcode, Handle: handle}
}

// IsATTError reports whether err carries an ATT error with code.
func IsATTError(err error, code uint8) bool {
	return GetErrorCode(err) == code && code != 0
}

// GetErrorCode returns the ATT code in err's chain, or 0.
func GetErrorCode(err error) uint8 {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// FromResponse turns a decoded Error Response into an error value.
func FromResponse(r *ErrorResponse) *Error {
	return NewError(r.ErrorCode, r.RequestOpcode, r.Handle)
}
