package advertising

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/user/nebula-blue/wire/gatt"
)

// AD Types (Advertising Data Types) - EIR/AD format
const (
	ADTypeFlags                        = 0x01
	ADTypeIncomplete16BitServiceUUIDs  = 0x02
	ADTypeComplete16BitServiceUUIDs    = 0x03
	ADTypeIncomplete128BitServiceUUIDs = 0x06
	ADTypeComplete128BitServiceUUIDs   = 0x07
	ADTypeShortenedLocalName           = 0x08
	ADTypeCompleteLocalName            = 0x09
)

// Advertising Flags (used in ADTypeFlags)
const (
	FlagLEGeneralDiscoverableMode = 0x02
	FlagBREDRNotSupported         = 0x04
)

// MaxAdvertisingDataLen is the legacy advertising payload limit.
const MaxAdvertisingDataLen = 31

// ErrTooLong is returned when advertising data does not fit in one payload.
var ErrTooLong = errors.New("advertising: data exceeds 31 bytes")

// ADStructure is a single TLV in advertising data.
// Format: [Length: 1 byte] [Type: 1 byte] [Data: N bytes], Length covers Type + Data.
type ADStructure struct {
	Type byte
	Data []byte
}

// Advertisement is what a peripheral broadcasts: the advertising payload and
// the scan response handed out on request.
type Advertisement struct {
	Data         []byte
	ScanResponse []byte
}

// Nebula builds the advertisement of a Nebula peripheral: flags, the UART service
// UUID and the Nebula identifier in the payload, the device name in the scan response.
func Nebula(name string) (Advertisement, error) {
	data, err := EncodeADStructures([]ADStructure{
		NewFlagsAD(FlagLEGeneralDiscoverableMode | FlagBREDRNotSupported),
		NewComplete16BitServiceUUIDsAD([]uint16{gatt.NebulaIdentifier}),
		NewComplete128BitServiceUUIDsAD([][]byte{gatt.MustUUID128(gatt.NUSServiceUUID)}),
	})
	if err != nil {
		return Advertisement{}, err
	}
	scan, err := EncodeADStructures([]ADStructure{NewCompleteLocalNameAD(name)})
	if err != nil {
		return Advertisement{}, fmt.Errorf("device name: %w", err)
	}
	return Advertisement{Data: data, ScanResponse: scan}, nil
}

// IsNebula reports whether advertising data carries both the UART service and
// the Nebula identifier.
func IsNebula(data []byte) bool {
	structures, err := DecodeADStructures(data)
	if err != nil {
		return false
	}
	hasID := false
	for _, id := range Get16BitServiceUUIDs(structures) {
		if id == gatt.NebulaIdentifier {
			hasID = true
		}
	}
	if !hasID {
		return false
	}
	nus := gatt.MustUUID128(gatt.NUSServiceUUID)
	for _, u := range Get128BitServiceUUIDs(structures) {
		if bytes.Equal(u, nus) {
			return true
		}
	}
	return false
}

// EncodeADStructures encodes AD structures into a single advertising payload
func EncodeADStructures(structures []ADStructure) ([]byte, error) {
	var buf []byte
	for _, s := range structures {
		length := 1 + len(s.Data)
		if length > 255 {
			return nil, fmt.Errorf("AD structure too long: %d bytes (max 255)", length)
		}
		buf = append(buf, byte(length), s.Type)
		buf = append(buf, s.Data...)
	}
	if len(buf) > MaxAdvertisingDataLen {
		return nil, fmt.Errorf("%w: %d", ErrTooLong, len(buf))
	}
	return buf, nil
}

// DecodeADStructures parses advertising data into individual AD structures
func DecodeADStructures(data []byte) ([]ADStructure, error) {
	var structures []ADStructure
	offset := 0
	for offset < len(data) {
		length := int(data[offset])
		if length == 0 {
			// Padding
			break
		}
		offset++
		if offset+length > len(data) {
			return nil, fmt.Errorf("AD structure length exceeds data: length=%d, remaining=%d", length, len(data)-offset)
		}
		structures = append(structures, ADStructure{
			Type: data[offset],
			Data: append([]byte{}, data[offset+1:offset+length]...),
		})
		offset += length
	}
	return structures, nil
}

// NewFlagsAD creates a flags AD structure
func NewFlagsAD(flags byte) ADStructure {
	return ADStructure{Type: ADTypeFlags, Data: []byte{flags}}
}

// NewCompleteLocalNameAD creates a complete local name AD structure
func NewCompleteLocalNameAD(name string) ADStructure {
	return ADStructure{Type: ADTypeCompleteLocalName, Data: []byte(name)}
}

// NewComplete16BitServiceUUIDsAD creates a complete 16-bit service UUIDs AD structure
func NewComplete16BitServiceUUIDsAD(uuids []uint16) ADStructure {
	data := make([]byte, len(uuids)*2)
	for i, u := range uuids {
		binary.LittleEndian.PutUint16(data[i*2:], u)
	}
	return ADStructure{Type: ADTypeComplete16BitServiceUUIDs, Data: data}
}

// NewComplete128BitServiceUUIDsAD creates a complete 128-bit service UUIDs AD
// structure from little-endian UUIDs.
func NewComplete128BitServiceUUIDsAD(uuids [][]byte) ADStructure {
	var data []byte
	for _, u := range uuids {
		data = append(data, u...)
	}
	return ADStructure{Type: ADTypeComplete128BitServiceUUIDs, Data: data}
}

// GetLocalName extracts the local name from AD structures (complete or shortened)
func GetLocalName(structures []ADStructure) string {
	for _, s := range structures {
		if s.Type == ADTypeCompleteLocalName || s.Type == ADTypeShortenedLocalName {
			return string(s.Data)
		}
	}
	return ""
}

// Get16BitServiceUUIDs extracts all 16-bit service UUIDs from AD structures
func Get16BitServiceUUIDs(structures []ADStructure) []uint16 {
	var uuids []uint16
	for _, s := range structures {
		if (s.Type == ADTypeComplete16BitServiceUUIDs || s.Type == ADTypeIncomplete16BitServiceUUIDs) && len(s.Data)%2 == 0 {
			for i := 0; i < len(s.Data); i += 2 {
				uuids = append(uuids, binary.LittleEndian.Uint16(s.Data[i:i+2]))
			}
		}
	}
	return uuids
}

// Get128BitServiceUUIDs extracts all 128-bit service UUIDs from AD structures
func Get128BitServiceUUIDs(structures []ADStructure) [][]byte {
	var uuids [][]byte
	for _, s := range structures {
		if (s.Type == ADTypeComplete128BitServiceUUIDs || s.Type == ADTypeIncomplete128BitServiceUUIDs) && len(s.Data)%16 == 0 {
			for i := 0; i < len(s.Data); i += 16 {
				uuids = append(uuids, append([]byte{}, s.Data[i:i+16]...))
			}
		}
	}
	return uuids
}
