package wire

import (
	"sync"
	"time"

	"github.com/user/nebula-blue/transport"
	"github.com/user/nebula-blue/wire/gatt"
)

// Connection is the peripheral's view of one connected central
type Connection struct {
	id      transport.ConnID
	central *Central
	mtu     uint16 // guarded by Link.mu
	cccd    *gatt.CCCDManager

	// Controller TX buffer: encoded notification PDUs waiting for a
	// connection event.
	tx        chan []byte
	stop      chan struct{}
	closeOnce sync.Once
}

func newConnection(id transport.ConnID, central *Central, slots int) *Connection {
	return &Connection{
		id:      id,
		central: central,
		mtu:     transport.DefaultMTU,
		cccd:    gatt.NewCCCDManager(),
		tx:      make(chan []byte, slots),
		stop:    make(chan struct{}),
	}
}

// ID returns the connection handle
func (c *Connection) ID() transport.ConnID {
	return c.id
}

// drain delivers queued notifications to the central, one per connection
// interval, in the order they were queued. Anything still buffered when the
// connection closes is lost, as on a real link.
func (c *Connection) drain(interval time.Duration, wg *sync.WaitGroup) {
	defer wg.Done()

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-c.stop:
			return
		case pdu := <-c.tx:
			if tick != nil {
				select {
				case <-c.stop:
					return
				case <-tick:
				}
			}
			c.central.deliver(pdu)
		}
	}
}

func (c *Connection) close() {
	c.closeOnce.Do(func() { close(c.stop) })
}

// Buffered returns the number of notifications waiting in the TX buffer
func (c *Connection) Buffered() int {
	return len(c.tx)
}

// shortHash trims an id to 8 characters for log prefixes.
func shortHash(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}
