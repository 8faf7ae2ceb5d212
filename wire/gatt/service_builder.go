package gatt

import (
	"encoding/binary"
	"fmt"
)

// Service is a high-level GATT service definition
type Service struct {
	UUID            []byte
	Characteristics []Characteristic
}

// Characteristic is a high-level GATT characteristic definition
type Characteristic struct {
	UUID       []byte
	Properties uint8
	Value      []byte
}

// ServiceHandleInfo stores the handles assigned to a built service
type ServiceHandleInfo struct {
	ServiceHandle uint16
	EndHandle     uint16
	CharHandles   map[string]uint16 // UUID -> characteristic value handle
	CCCDHandles   map[string]uint16 // UUID -> CCCD handle, notify/indicate only
}

// BuildAttributeDatabase converts service definitions into an attribute database.
// Handles are assigned in declaration order, so the same definitions always
// produce the same table.
func BuildAttributeDatabase(services []Service) (*AttributeDatabase, []*ServiceHandleInfo) {
	db := NewAttributeDatabase()
	infos := make([]*ServiceHandleInfo, 0, len(services))
	for _, service := range services {
		infos = append(infos, buildService(db, service))
	}
	return db, infos
}

func buildService(db *AttributeDatabase, service Service) *ServiceHandleInfo {
	info := &ServiceHandleInfo{
		CharHandles: make(map[string]uint16),
		CCCDHandles: make(map[string]uint16),
	}
	info.ServiceHandle = db.AddAttribute(UUIDPrimaryService, service.UUID, PermReadable)

	for _, char := range service.Characteristics {
		valueHandle, cccdHandle := buildCharacteristic(db, char)
		key := uuidKey(char.UUID)
		info.CharHandles[key] = valueHandle
		if cccdHandle != 0 {
			info.CCCDHandles[key] = cccdHandle
		}
	}

	db.mu.RLock()
	info.EndHandle = db.nextHandle - 1
	db.mu.RUnlock()
	return info
}

// buildCharacteristic adds declaration, value and, for notify/indicate, a CCCD.
func buildCharacteristic(db *AttributeDatabase, char Characteristic) (valueHandle, cccdHandle uint16) {
	// [Properties: 1][Value Handle: 2][UUID: 2 or 16]
	declValue := make([]byte, 3+len(char.UUID))
	declValue[0] = char.Properties
	db.mu.RLock()
	binary.LittleEndian.PutUint16(declValue[1:3], db.nextHandle+1)
	db.mu.RUnlock()
	copy(declValue[3:], char.UUID)
	db.AddAttribute(UUIDCharacteristic, declValue, PermReadable)

	valueHandle = db.AddAttribute(char.UUID, char.Value, determinePermissions(char.Properties))

	if char.Properties&(PropNotify|PropIndicate) != 0 {
		cccdHandle = db.AddAttribute(UUIDClientCharacteristicConfig, EncodeCCCDValue(false, false), PermReadable|PermWritable)
	}
	return valueHandle, cccdHandle
}

func determinePermissions(properties uint8) uint8 {
	var perms uint8
	if properties&PropRead != 0 {
		perms |= PermReadable
	}
	if properties&(PropWrite|PropWriteWithoutResponse) != 0 {
		perms |= PermWritable
	}
	return perms
}

func uuidKey(uuid []byte) string {
	return fmt.Sprintf("%x", uuid)
}

// FindCharacteristicHandle finds the value handle for a characteristic UUID in a service
func FindCharacteristicHandle(info *ServiceHandleInfo, charUUID []byte) (uint16, error) {
	handle, ok := info.CharHandles[uuidKey(charUUID)]
	if !ok {
		return 0, fmt.Errorf("gatt: characteristic %x not found in service", charUUID)
	}
	return handle, nil
}

// NewGenericAccessService creates the Generic Access service (0x1800) carrying the device name
func NewGenericAccessService(deviceName string) Service {
	return Service{
		UUID: UUID16(0x1800),
		Characteristics: []Characteristic{
			{UUID: UUID16(0x2A00), Properties: PropRead, Value: []byte(deviceName)},
		},
	}
}
