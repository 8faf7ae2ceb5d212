package att

import "fmt"

// Opcodes the notification link speaks (Core v5.3 Vol 3, Part F, 3.4.8).
const (
	OpErrorResponse           = 0x01
	OpExchangeMTURequest      = 0x02
	OpExchangeMTUResponse     = 0x03
	OpReadRequest             = 0x0A
	OpReadResponse            = 0x0B
	OpReadBlobRequest         = 0x0C
	OpReadBlobResponse        = 0x0D
	OpWriteRequest            = 0x12
	OpWriteResponse           = 0x13
	OpHandleValueNotification = 0x1B
	OpWriteCommand            = 0x52
)

type opInfo struct {
	name     string
	response uint8 // non-zero for requests
}

var opcodes = map[uint8]opInfo{
	OpErrorResponse:           {name: "ERROR_RSP"},
	OpExchangeMTURequest:      {name: "EXCHANGE_MTU_REQ", response: OpExchangeMTUResponse},
	OpExchangeMTUResponse:     {name: "EXCHANGE_MTU_RSP"},
	OpReadRequest:             {name: "READ_REQ", response: OpReadResponse},
	OpReadResponse:            {name: "READ_RSP"},
	OpReadBlobRequest:         {name: "READ_BLOB_REQ", response: OpReadBlobResponse},
	OpReadBlobResponse:        {name: "READ_BLOB_RSP"},
	OpWriteRequest:            {name: "WRITE_REQ", response: OpWriteResponse},
	OpWriteResponse:           {name: "WRITE_RSP"},
	OpHandleValueNotification: {name: "HANDLE_VALUE_NTF"},
	OpWriteCommand:            {name: "WRITE_CMD"},
}

// OpcodeName returns the mnemonic of op, or its hex value if the link does not
// know it.
func OpcodeName(op uint8) string {
	if info, ok := opcodes[op]; ok {
		return info.name
	}
	return fmt.Sprintf("0x%02X", op)
}

// IsRequest reports whether op expects a response from the server.
func IsRequest(op uint8) bool {
	return opcodes[op].response != 0
}

// GetResponseOpcode returns the response that answers request op, or 0.
func GetResponseOpcode(op uint8) uint8 {
	return opcodes[op].response
}
