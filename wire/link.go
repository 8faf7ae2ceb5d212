package wire

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/user/nebula-blue/logger"
	"github.com/user/nebula-blue/transport"
	"github.com/user/nebula-blue/wire/advertising"
	"github.com/user/nebula-blue/wire/att"
	"github.com/user/nebula-blue/wire/gatt"
)

// Link is the peripheral side of the reference notification link. It serves the
// Nebula attribute table to at most one central and implements
// transport.Transport for the TX characteristic.
type Link struct {
	name       string
	hardwareID string
	sim        *Simulator
	db         *gatt.AttributeDatabase
	handles    gatt.NUSHandles
	adv        advertising.Advertisement
	events     *ConnectionEventLogger

	mu      sync.Mutex
	conn    *Connection
	readers map[uint16]func() []byte
	closed  bool
	wg      sync.WaitGroup

	callbackMu sync.RWMutex
	receiver   transport.DataReceiver
	observer   transport.ConnectionObserver

	// serializes inbound writes so the receiver sees them in arrival order
	rxMu sync.Mutex
}

// NewLink creates a peripheral advertising as name
func NewLink(name string, config *SimulationConfig) (*Link, error) {
	adv, err := advertising.Nebula(name)
	if err != nil {
		return nil, err
	}
	db, handles := gatt.BuildNUS(name)
	return &Link{
		name:       name,
		hardwareID: uuid.NewString(),
		sim:        NewSimulator(config),
		db:         db,
		handles:    handles,
		adv:        adv,
		readers:    make(map[uint16]func() []byte),
	}, nil
}

func (l *Link) prefix() string {
	return shortHash(l.hardwareID) + " Wire"
}

// Name returns the advertised device name
func (l *Link) Name() string { return l.name }

// HardwareID returns the link's random identity
func (l *Link) HardwareID() string { return l.hardwareID }

// Handles returns the attribute handles of the UART service
func (l *Link) Handles() gatt.NUSHandles { return l.handles }

// Advertisement returns the advertising payload and scan response
func (l *Link) Advertisement() advertising.Advertisement { return l.adv }

// Config returns the effective simulation parameters
func (l *Link) Config() SimulationConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sim.Config()
}

// SetReceiver installs the handler for writes to the RX characteristic
func (l *Link) SetReceiver(r transport.DataReceiver) {
	l.callbackMu.Lock()
	defer l.callbackMu.Unlock()
	l.receiver = r
}

// SetObserver installs the connection presence observer
func (l *Link) SetObserver(o transport.ConnectionObserver) {
	l.callbackMu.Lock()
	defer l.callbackMu.Unlock()
	l.observer = o
}

// SetEventLog records connection events to cel
func (l *Link) SetEventLog(cel *ConnectionEventLogger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = cel
}

// HandleRead serves the value of a readable characteristic from fn on every
// read instead of from the attribute table
func (l *Link) HandleRead(handle uint16, fn func() []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readers[handle] = fn
}

// Current returns the active connection, if any
func (l *Link) Current() (transport.ConnID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return "", false
	}
	return l.conn.id, true
}

// Capacity implements transport.Transport
func (l *Link) Capacity(id transport.ConnID) uint16 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil || l.conn.id != id {
		return 0
	}
	return l.conn.mtu
}

// Send implements transport.Transport. The value is queued as a Handle Value
// Notification on the TX characteristic; Send never waits for buffer space.
func (l *Link) Send(id transport.ConnID, value []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.conn
	if c == nil || c.id != id {
		return fmt.Errorf("notify %s: %w", id, transport.ErrNotConnected)
	}
	if !c.cccd.IsNotifyEnabled(l.handles.TX) {
		return ErrNotificationsDisabled
	}
	if len(value) > att.MaxNotificationValue(c.mtu) {
		return att.NewError(att.ErrInvalidAttributeValueLength, att.OpHandleValueNotification, l.handles.TX)
	}
	if l.sim.ShouldRefuse() {
		return att.NewError(att.ErrInsufficientResources, att.OpHandleValueNotification, l.handles.TX)
	}

	pdu, err := att.EncodePacket(&att.HandleValueNotification{Handle: l.handles.TX, Value: value})
	if err != nil {
		return err
	}
	select {
	case c.tx <- pdu:
		logger.Trace(l.prefix(), "📤 notify %d bytes (buffered=%d)", len(value), len(c.tx))
		return nil
	default:
		return att.NewError(att.ErrInsufficientResources, att.OpHandleValueNotification, l.handles.TX)
	}
}

// accept registers central as the peer and starts its connection.
func (l *Link) accept(central *Central) (transport.ConnID, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return "", ErrClosed
	}
	if l.conn != nil {
		events := l.events
		l.mu.Unlock()
		logger.Warn(l.prefix(), "❌ refusing %s: already connected", shortHash(central.id))
		events.LogConnectionRefused(central.id, ErrPeerLimit)
		return "", ErrPeerLimit
	}

	id := transport.ConnID(uuid.NewString())
	c := newConnection(id, central, l.sim.config.BufferSlots)
	l.conn = c
	l.wg.Add(1)
	go c.drain(l.sim.config.ConnectionInterval, &l.wg)
	events := l.events
	l.mu.Unlock()

	logger.Info(l.prefix(), "🔗 connected to %s (conn %s)", shortHash(central.id), shortHash(string(id)))
	events.LogConnectionAccepted(central.id, string(id))

	l.callbackMu.RLock()
	observer := l.observer
	l.callbackMu.RUnlock()
	if observer != nil {
		observer.Connected(id)
	}
	return id, nil
}

// Disconnect terminates the current connection from the peripheral side
func (l *Link) Disconnect(reason uint8) error {
	id, ok := l.Current()
	if !ok {
		return transport.ErrNotConnected
	}
	return l.drop(id, reason)
}

// drop removes connection id and notifies both sides outside the lock.
func (l *Link) drop(id transport.ConnID, reason uint8) error {
	l.mu.Lock()
	c := l.conn
	if c == nil || c.id != id {
		l.mu.Unlock()
		return transport.ErrNotConnected
	}
	l.conn = nil
	c.cccd.Clear()
	c.close()
	events := l.events
	l.mu.Unlock()

	logger.Info(l.prefix(), "🔌 disconnected from %s (reason 0x%02X)", shortHash(c.central.id), reason)
	events.LogDisconnected(c.central.id, string(id), reason)

	l.callbackMu.RLock()
	observer := l.observer
	l.callbackMu.RUnlock()
	if observer != nil {
		observer.Disconnected(id, reason)
	}
	c.central.disconnected(id, reason)
	return nil
}

// Close disconnects the peer, if any, and stops all delivery goroutines
func (l *Link) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	if id, ok := l.Current(); ok {
		l.drop(id, ReasonLocalHostTerminated)
	}
	l.wg.Wait()
}

// lookup returns the connection if id is still current
func (l *Link) lookup(id transport.ConnID) (*Connection, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil || l.conn.id != id {
		return nil, transport.ErrNotConnected
	}
	return l.conn, nil
}
