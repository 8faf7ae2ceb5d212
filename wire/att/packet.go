package att

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/user/nebula-blue/transport"
)

// ErrMalformedPDU is returned by DecodePacket for truncated or unknown PDUs.
var ErrMalformedPDU = errors.New("att: malformed PDU")

// MTU Exchange Request/Response (Opcodes 0x02/0x03)
type ExchangeMTURequest struct {
	ClientRxMTU uint16 // Client's maximum receive MTU
}

type ExchangeMTUResponse struct {
	ServerRxMTU uint16 // Server's maximum receive MTU
}

// Error Response (Opcode 0x01)
type ErrorResponse struct {
	RequestOpcode uint8  // The opcode that caused the error
	Handle        uint16 // The handle that caused the error
	ErrorCode     uint8
}

// Read Request/Response (Opcodes 0x0A/0x0B)
type ReadRequest struct {
	Handle uint16
}

type ReadResponse struct {
	Value []byte // at most MTU-1 bytes of the attribute value
}

// Read Blob Request/Response (Opcodes 0x0C/0x0D), for values longer than MTU-1
type ReadBlobRequest struct {
	Handle uint16
	Offset uint16
}

type ReadBlobResponse struct {
	Value []byte
}

// Write Request/Response (Opcodes 0x12/0x13)
type WriteRequest struct {
	Handle uint16
	Value  []byte
}

type WriteResponse struct{}

// Write Command (Opcode 0x52) - no response
type WriteCommand struct {
	Handle uint16
	Value  []byte
}

// Handle Value Notification (Opcode 0x1B) - no confirmation
type HandleValueNotification struct {
	Handle uint16
	Value  []byte
}

// MaxNotificationValue is the largest value a notification can carry at mtu.
func MaxNotificationValue(mtu uint16) int {
	return transport.ValueCapacity(mtu)
}

// MaxReadValue is the largest value a Read or Read Blob response can carry at mtu.
func MaxReadValue(mtu uint16) int {
	if mtu < 1 {
		return 0
	}
	return int(mtu) - 1
}

// ClampMTU bounds a proposed MTU to [DefaultMTU, MaxMTU].
func ClampMTU(mtu int) uint16 {
	if mtu < transport.DefaultMTU {
		return transport.DefaultMTU
	}
	if mtu > transport.MaxMTU {
		return transport.MaxMTU
	}
	return uint16(mtu)
}

func encodeHandleValue(op uint8, handle uint16, value []byte) []byte {
	buf := make([]byte, 3+len(value))
	buf[0] = op
	binary.LittleEndian.PutUint16(buf[1:3], handle)
	copy(buf[3:], value)
	return buf
}

// EncodePacket encodes an ATT packet to binary format
func EncodePacket(pkt any) ([]byte, error) {
	switch p := pkt.(type) {
	case *ExchangeMTURequest:
		buf := make([]byte, 3)
		buf[0] = OpExchangeMTURequest
		binary.LittleEndian.PutUint16(buf[1:3], p.ClientRxMTU)
		return buf, nil

	case *ExchangeMTUResponse:
		buf := make([]byte, 3)
		buf[0] = OpExchangeMTUResponse
		binary.LittleEndian.PutUint16(buf[1:3], p.ServerRxMTU)
		return buf, nil

	case *ErrorResponse:
		buf := make([]byte, 5)
		buf[0] = OpErrorResponse
		buf[1] = p.RequestOpcode
		binary.LittleEndian.PutUint16(buf[2:4], p.Handle)
		buf[4] = p.ErrorCode
		return buf, nil

	case *ReadRequest:
		buf := make([]byte, 3)
		buf[0] = OpReadRequest
		binary.LittleEndian.PutUint16(buf[1:3], p.Handle)
		return buf, nil

	case *ReadResponse:
		return append([]byte{OpReadResponse}, p.Value...), nil

	case *ReadBlobRequest:
		buf := make([]byte, 5)
		buf[0] = OpReadBlobRequest
		binary.LittleEndian.PutUint16(buf[1:3], p.Handle)
		binary.LittleEndian.PutUint16(buf[3:5], p.Offset)
		return buf, nil

	case *ReadBlobResponse:
		return append([]byte{OpReadBlobResponse}, p.Value...), nil

	case *WriteRequest:
		return encodeHandleValue(OpWriteRequest, p.Handle, p.Value), nil

	case *WriteResponse:
		return []byte{OpWriteResponse}, nil

	case *WriteCommand:
		return encodeHandleValue(OpWriteCommand, p.Handle, p.Value), nil

	case *HandleValueNotification:
		return encodeHandleValue(OpHandleValueNotification, p.Handle, p.Value), nil

	default:
		return nil, fmt.Errorf("att: unknown packet type %T", pkt)
	}
}

func tooShort(name string) error {
	return fmt.Errorf("%w: %s too short", ErrMalformedPDU, name)
}

// DecodePacket decodes binary data into an ATT packet
func DecodePacket(data []byte) (any, error) {
	if len(data) < 1 {
		return nil, tooShort("packet")
	}

	switch opcode := data[0]; opcode {
	case OpExchangeMTURequest:
		if len(data) < 3 {
			return nil, tooShort("ExchangeMTURequest")
		}
		return &ExchangeMTURequest{ClientRxMTU: binary.LittleEndian.Uint16(data[1:3])}, nil

	case OpExchangeMTUResponse:
		if len(data) < 3 {
			return nil, tooShort("ExchangeMTUResponse")
		}
		return &ExchangeMTUResponse{ServerRxMTU: binary.LittleEndian.Uint16(data[1:3])}, nil

	case OpErrorResponse:
		if len(data) < 5 {
			return nil, tooShort("ErrorResponse")
		}
		return &ErrorResponse{
			RequestOpcode: data[1],
			Handle:        binary.LittleEndian.Uint16(data[2:4]),
			ErrorCode:     data[4],
		}, nil

	case OpReadRequest:
		if len(data) < 3 {
			return nil, tooShort("ReadRequest")
		}
		return &ReadRequest{Handle: binary.LittleEndian.Uint16(data[1:3])}, nil

	case OpReadResponse:
		return &ReadResponse{Value: append([]byte{}, data[1:]...)}, nil

	case OpReadBlobRequest:
		if len(data) < 5 {
			return nil, tooShort("ReadBlobRequest")
		}
		return &ReadBlobRequest{
			Handle: binary.LittleEndian.Uint16(data[1:3]),
			Offset: binary.LittleEndian.Uint16(data[3:5]),
		}, nil

	case OpReadBlobResponse:
		return &ReadBlobResponse{Value: append([]byte{}, data[1:]...)}, nil

	case OpWriteRequest:
		if len(data) < 3 {
			return nil, tooShort("WriteRequest")
		}
		return &WriteRequest{
			Handle: binary.LittleEndian.Uint16(data[1:3]),
			Value:  append([]byte{}, data[3:]...),
		}, nil

	case OpWriteResponse:
		return &WriteResponse{}, nil

	case OpWriteCommand:
		if len(data) < 3 {
			return nil, tooShort("WriteCommand")
		}
		return &WriteCommand{
			Handle: binary.LittleEndian.Uint16(data[1:3]),
			Value:  append([]byte{}, data[3:]...),
		}, nil

	case OpHandleValueNotification:
		if len(data) < 3 {
			return nil, tooShort("HandleValueNotification")
		}
		return &HandleValueNotification{
			Handle: binary.LittleEndian.Uint16(data[1:3]),
			Value:  append([]byte{}, data[3:]...),
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown opcode 0x%02X", ErrMalformedPDU, opcode)
	}
}
