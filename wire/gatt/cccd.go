package gatt

import (
	"encoding/binary"
	"sync"

	"github.com/user/nebula-blue/wire/att"
)

// CCCD (Client Characteristic Configuration Descriptor) values
const (
	CCCDNotificationsDisabled = 0x0000
	CCCDNotificationsEnabled  = 0x0001
	CCCDIndicationsEnabled    = 0x0002
)

// CCCDManager tracks subscriptions for one connection. State is never shared
// across connections and is cleared when the connection closes.
type CCCDManager struct {
	mu sync.RWMutex
	// characteristic value handle -> notify enabled
	notify map[uint16]bool
}

// NewCCCDManager creates a new CCCD manager for a connection
func NewCCCDManager() *CCCDManager {
	return &CCCDManager{notify: make(map[uint16]bool)}
}

// SetSubscription applies a 2-byte little-endian CCCD value written by the client
func (cm *CCCDManager) SetSubscription(charHandle uint16, cccdValue []byte) error {
	notify, _, err := DecodeCCCDValue(cccdValue)
	if err != nil {
		return att.NewError(att.ErrInvalidAttributeValueLength, att.OpWriteRequest, charHandle)
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	if notify {
		cm.notify[charHandle] = true
	} else {
		delete(cm.notify, charHandle)
	}
	return nil
}

// IsNotifyEnabled returns true if notifications are enabled for a characteristic
func (cm *CCCDManager) IsNotifyEnabled(charHandle uint16) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.notify[charHandle]
}

// Clear removes all subscriptions
func (cm *CCCDManager) Clear() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.notify = make(map[uint16]bool)
}

// Count returns the number of active subscriptions
func (cm *CCCDManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.notify)
}

// EncodeCCCDValue converts subscription flags to CCCD value bytes
func EncodeCCCDValue(notifyEnabled, indicateEnabled bool) []byte {
	var value uint16
	if notifyEnabled {
		value |= CCCDNotificationsEnabled
	}
	if indicateEnabled {
		value |= CCCDIndicationsEnabled
	}
	out := make([]byte, 2)
	binary.LittleEndian.PutUint16(out, value)
	return out
}

// DecodeCCCDValue parses CCCD value bytes to notification/indication flags
func DecodeCCCDValue(cccdValue []byte) (notifyEnabled, indicateEnabled bool, err error) {
	if len(cccdValue) != 2 {
		return false, false, att.NewError(att.ErrInvalidAttributeValueLength, att.OpWriteRequest, 0)
	}
	value := binary.LittleEndian.Uint16(cccdValue)
	return value&CCCDNotificationsEnabled != 0, value&CCCDIndicationsEnabled != 0, nil
}
