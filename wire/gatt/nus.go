package gatt

// Nordic UART Service layout plus the two read-only transfer characteristics.
const (
	NUSServiceUUID    = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	NUSRXUUID         = "6e400002-b5a3-f393-e0a9-e50e24dcca9e" // central -> peripheral, write
	NUSTXUUID         = "6e400003-b5a3-f393-e0a9-e50e24dcca9e" // peripheral -> central, notify
	NUSMetadataUUID   = "6e400004-b5a3-f393-e0a9-e50e24dcca9e" // 3-byte transfer progress
	NUSDescriptorUUID = "6e400005-b5a3-f393-e0a9-e50e24dcca9e" // transfer descriptor

	// NebulaIdentifier is the 16-bit UUID advertised next to the service.
	NebulaIdentifier uint16 = 0x180A
)

// NUSHandles are the handles a peer needs to drive a transfer.
type NUSHandles struct {
	Service    uint16
	RX         uint16
	TX         uint16
	TXCCCD     uint16
	Metadata   uint16
	Descriptor uint16
}

// BuildNUS builds the attribute table of a Nebula peripheral: Generic Access
// with deviceName, then the UART service.
func BuildNUS(deviceName string) (*AttributeDatabase, NUSHandles) {
	rx := MustUUID128(NUSRXUUID)
	tx := MustUUID128(NUSTXUUID)
	meta := MustUUID128(NUSMetadataUUID)
	desc := MustUUID128(NUSDescriptorUUID)

	db, infos := BuildAttributeDatabase([]Service{
		NewGenericAccessService(deviceName),
		{
			UUID: MustUUID128(NUSServiceUUID),
			Characteristics: []Characteristic{
				{UUID: rx, Properties: PropWrite | PropWriteWithoutResponse},
				{UUID: tx, Properties: PropNotify},
				{UUID: meta, Properties: PropRead, Value: []byte{0, 0, 0}},
				{UUID: desc, Properties: PropRead},
			},
		},
	})

	nus := infos[1]
	return db, NUSHandles{
		Service:    nus.ServiceHandle,
		RX:         nus.CharHandles[uuidKey(rx)],
		TX:         nus.CharHandles[uuidKey(tx)],
		TXCCCD:     nus.CCCDHandles[uuidKey(tx)],
		Metadata:   nus.CharHandles[uuidKey(meta)],
		Descriptor: nus.CharHandles[uuidKey(desc)],
	}
}
