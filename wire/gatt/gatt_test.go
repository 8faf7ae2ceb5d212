package gatt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/nebula-blue/wire/att"
)

func TestUUID128LittleEndian(t *testing.T) {
	b, err := UUID128(NUSServiceUUID)
	require.NoError(t, err)
	require.Len(t, b, 16)
	assert.Equal(t, byte(0x9e), b[0])
	assert.Equal(t, byte(0x01), b[12])
	assert.Equal(t, byte(0x6e), b[15])

	_, err = UUID128("not-a-uuid")
	assert.Error(t, err)
	assert.Panics(t, func() { MustUUID128("nope") })
}

func TestBuildNUSHandles(t *testing.T) {
	db, h := BuildNUS("NEBULA")

	// GAP: service, decl, name = 1..3; NUS service at 4.
	assert.Equal(t, NUSHandles{
		Service:    4,
		RX:         6,
		TX:         8,
		TXCCCD:     9,
		Metadata:   11,
		Descriptor: 13,
	}, h)
	assert.Equal(t, 13, db.Count())

	name, err := db.GetAttribute(3)
	require.NoError(t, err)
	assert.Equal(t, []byte("NEBULA"), name.Value)

	cccd, err := db.GetAttribute(h.TXCCCD)
	require.NoError(t, err)
	assert.Equal(t, UUIDClientCharacteristicConfig, cccd.Type)
	assert.Equal(t, []byte{0, 0}, cccd.Value)

	rx, err := db.GetAttribute(h.RX)
	require.NoError(t, err)
	assert.Equal(t, uint8(PermWritable), rx.Permissions)

	meta, err := db.GetAttribute(h.Metadata)
	require.NoError(t, err)
	assert.Equal(t, uint8(PermReadable), meta.Permissions)

	// Declaration points at the value handle that follows it.
	decl, err := db.GetAttribute(h.TX - 1)
	require.NoError(t, err)
	assert.Equal(t, byte(PropNotify), decl.Value[0])
	assert.Equal(t, []byte{byte(h.TX), 0}, decl.Value[1:3])

	assert.Equal(t, []uint16{1, 4}, db.FindAttributesByType(1, 0xFFFF, UUIDPrimaryService))
}

func TestAttributeDatabaseInvalidHandle(t *testing.T) {
	db := NewAttributeDatabase()
	_, err := db.GetAttribute(7)
	assert.True(t, att.IsATTError(err, att.ErrInvalidHandle))
	assert.True(t, att.IsATTError(db.SetAttributeValue(7, nil), att.ErrInvalidHandle))

	h := db.AddAttribute(UUID16(0x2A00), []byte("a"), PermReadable)
	require.NoError(t, db.SetAttributeValue(h, []byte("b")))
	got, err := db.GetAttribute(h)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), got.Value)
}

func TestCCCDManager(t *testing.T) {
	cm := NewCCCDManager()
	assert.False(t, cm.IsNotifyEnabled(8))

	require.NoError(t, cm.SetSubscription(8, EncodeCCCDValue(true, false)))
	assert.True(t, cm.IsNotifyEnabled(8))
	assert.Equal(t, 1, cm.Count())

	require.NoError(t, cm.SetSubscription(8, []byte{0x02, 0x00}))
	assert.False(t, cm.IsNotifyEnabled(8), "indications alone do not enable notifications")

	require.NoError(t, cm.SetSubscription(8, []byte{0x01, 0x00}))
	cm.Clear()
	assert.Zero(t, cm.Count())

	err := cm.SetSubscription(8, []byte{0x01})
	assert.True(t, att.IsATTError(err, att.ErrInvalidAttributeValueLength))
}

func TestCCCDValueCodec(t *testing.T) {
	assert.Equal(t, []byte{0x03, 0x00}, EncodeCCCDValue(true, true))
	n, i, err := DecodeCCCDValue([]byte{0x01, 0x00})
	require.NoError(t, err)
	assert.True(t, n)
	assert.False(t, i)
}

func TestFindCharacteristicHandle(t *testing.T) {
	_, infos := BuildAttributeDatabase([]Service{NewGenericAccessService("x")})
	h, err := FindCharacteristicHandle(infos[0], UUID16(0x2A00))
	require.NoError(t, err)
	assert.Equal(t, uint16(3), h)
	assert.Equal(t, uint16(3), infos[0].EndHandle)

	_, err = FindCharacteristicHandle(infos[0], UUID16(0x2A01))
	assert.Error(t, err)
}
