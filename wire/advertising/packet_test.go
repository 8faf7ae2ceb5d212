package advertising

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/nebula-blue/wire/gatt"
)

func TestNebulaAdvertisement(t *testing.T) {
	adv, err := Nebula("NEBULA")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(adv.Data), MaxAdvertisingDataLen)
	assert.True(t, IsNebula(adv.Data))

	structures, err := DecodeADStructures(adv.Data)
	require.NoError(t, err)
	require.Len(t, structures, 3)
	assert.Equal(t, NewFlagsAD(0x06), structures[0])
	assert.Equal(t, []uint16{gatt.NebulaIdentifier}, Get16BitServiceUUIDs(structures))

	scan, err := DecodeADStructures(adv.ScanResponse)
	require.NoError(t, err)
	assert.Equal(t, "NEBULA", GetLocalName(scan))
}

func TestNebulaNameTooLong(t *testing.T) {
	_, err := Nebula(strings.Repeat("n", 40))
	assert.ErrorIs(t, err, ErrTooLong)
}

func TestIsNebulaRejectsOthers(t *testing.T) {
	other, err := EncodeADStructures([]ADStructure{
		NewFlagsAD(0x06),
		NewComplete16BitServiceUUIDsAD([]uint16{gatt.NebulaIdentifier}),
	})
	require.NoError(t, err)
	assert.False(t, IsNebula(other), "identifier without the service")
	assert.False(t, IsNebula([]byte{0x05, 0x01}), "truncated")
	assert.False(t, IsNebula(nil))
}

func TestDecodeADStructures(t *testing.T) {
	data := []byte{0x02, 0x01, 0x06, 0x03, 0x09, 'h', 'i', 0x00, 0x00}
	structures, err := DecodeADStructures(data)
	require.NoError(t, err)
	assert.Equal(t, []ADStructure{
		{Type: ADTypeFlags, Data: []byte{0x06}},
		{Type: ADTypeCompleteLocalName, Data: []byte("hi")},
	}, structures)

	_, err = DecodeADStructures([]byte{0x09, 0x09, 'x'})
	assert.Error(t, err)
}
