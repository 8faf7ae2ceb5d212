package wire

import (
	"fmt"
	"sync"

	"github.com/user/nebula-blue/logger"
	"github.com/user/nebula-blue/transport"
	"github.com/user/nebula-blue/wire/att"
	"github.com/user/nebula-blue/wire/gatt"
)

// Central is the client side of the reference link
type Central struct {
	id string

	mu           sync.Mutex
	link         *Link
	conn         transport.ConnID
	mtu          uint16
	onNotify     func(value []byte)
	onDisconnect func(reason uint8)
}

// NewCentral creates an unconnected central with identity id
func NewCentral(id string) *Central {
	return &Central{id: id, mtu: transport.DefaultMTU}
}

func (c *Central) prefix() string {
	return shortHash(c.id) + " Central"
}

// ID returns the central's identity
func (c *Central) ID() string { return c.id }

// Connect opens a connection to link. The MTU starts at the default until
// ExchangeMTU is called.
func (c *Central) Connect(link *Link) error {
	id, err := link.accept(c)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.link = link
	c.conn = id
	c.mtu = transport.DefaultMTU
	c.mu.Unlock()
	return nil
}

// Connected reports whether the central holds a live connection
func (c *Central) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link != nil
}

// MTU returns the MTU the central believes is in effect
func (c *Central) MTU() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mtu
}

// Handles returns the UART service handles of the connected peripheral
func (c *Central) Handles() (gatt.NUSHandles, error) {
	link, _, err := c.session()
	if err != nil {
		return gatt.NUSHandles{}, err
	}
	return link.Handles(), nil
}

// OnNotification installs the callback for TX notifications. It runs on the
// link's delivery goroutine, one notification at a time.
func (c *Central) OnNotification(fn func(value []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onNotify = fn
}

// OnDisconnect installs the callback for connection loss
func (c *Central) OnDisconnect(fn func(reason uint8)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = fn
}

func (c *Central) session() (*Link, transport.ConnID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link == nil {
		return nil, "", ErrNoLink
	}
	return c.link, c.conn, nil
}

// roundTrip sends a request and decodes the response, turning an Error
// Response into an *att.Error
func (c *Central) roundTrip(req any) (any, error) {
	link, id, err := c.session()
	if err != nil {
		return nil, err
	}
	pdu, err := att.EncodePacket(req)
	if err != nil {
		return nil, err
	}
	raw, err := link.request(id, pdu)
	if err != nil {
		return nil, err
	}
	rsp, err := att.DecodePacket(raw)
	if err != nil {
		return nil, err
	}
	if e, ok := rsp.(*att.ErrorResponse); ok {
		return nil, att.FromResponse(e)
	}
	if want := att.GetResponseOpcode(pdu[0]); raw[0] != want {
		return nil, fmt.Errorf("%w: got %s for %s", att.ErrMalformedPDU, att.OpcodeName(raw[0]), att.OpcodeName(pdu[0]))
	}
	return rsp, nil
}

// ExchangeMTU proposes clientRxMTU and returns the MTU both sides now use
func (c *Central) ExchangeMTU(clientRxMTU uint16) (uint16, error) {
	rsp, err := c.roundTrip(&att.ExchangeMTURequest{ClientRxMTU: clientRxMTU})
	if err != nil {
		return 0, err
	}
	server := rsp.(*att.ExchangeMTUResponse).ServerRxMTU
	mtu := clientRxMTU
	if server < mtu {
		mtu = server
	}
	negotiated := att.ClampMTU(int(mtu))

	c.mu.Lock()
	c.mtu = negotiated
	c.mu.Unlock()
	logger.Debug(c.prefix(), "📥 MTU Response: server_mtu=%d, using %d", server, negotiated)
	return negotiated, nil
}

// Subscribe enables notifications on the TX characteristic
func (c *Central) Subscribe() error {
	return c.writeCCCD(true)
}

// Unsubscribe disables notifications on the TX characteristic
func (c *Central) Unsubscribe() error {
	return c.writeCCCD(false)
}

func (c *Central) writeCCCD(enabled bool) error {
	h, err := c.Handles()
	if err != nil {
		return err
	}
	_, err = c.roundTrip(&att.WriteRequest{Handle: h.TXCCCD, Value: gatt.EncodeCCCDValue(enabled, false)})
	return err
}

// Write sends data to the RX characteristic as a Write Command
func (c *Central) Write(data []byte) error {
	link, id, err := c.session()
	if err != nil {
		return err
	}
	if len(data) > att.MaxNotificationValue(c.MTU()) {
		return att.NewError(att.ErrInvalidAttributeValueLength, att.OpWriteCommand, link.Handles().RX)
	}
	pdu, err := att.EncodePacket(&att.WriteCommand{Handle: link.Handles().RX, Value: data})
	if err != nil {
		return err
	}
	logger.Debug(c.prefix(), "📤 write %q", data)
	return link.command(id, pdu)
}

// Read returns the full value of handle, continuing with Read Blob requests
// while responses fill the MTU
func (c *Central) Read(handle uint16) ([]byte, error) {
	rsp, err := c.roundTrip(&att.ReadRequest{Handle: handle})
	if err != nil {
		return nil, err
	}
	value := rsp.(*att.ReadResponse).Value
	limit := att.MaxReadValue(c.MTU())

	last := len(value)
	for last == limit {
		rsp, err := c.roundTrip(&att.ReadBlobRequest{Handle: handle, Offset: uint16(len(value))})
		if err != nil {
			if att.IsATTError(err, att.ErrInvalidOffset) || att.IsATTError(err, att.ErrAttributeNotLong) {
				break
			}
			return nil, err
		}
		part := rsp.(*att.ReadBlobResponse).Value
		value = append(value, part...)
		last = len(part)
	}
	return value, nil
}

// Disconnect closes the connection from the central side
func (c *Central) Disconnect() error {
	link, id, err := c.session()
	if err != nil {
		return err
	}
	return link.drop(id, ReasonRemoteUserTerminated)
}

// deliver is called by the link's delivery goroutine for every notification
func (c *Central) deliver(pdu []byte) {
	packet, err := att.DecodePacket(pdu)
	if err != nil {
		logger.Warn(c.prefix(), "⚠️  bad notification: %v", err)
		return
	}
	n, ok := packet.(*att.HandleValueNotification)
	if !ok {
		return
	}

	c.mu.Lock()
	fn := c.onNotify
	c.mu.Unlock()
	if fn != nil {
		fn(n.Value)
	}
}

func (c *Central) disconnected(id transport.ConnID, reason uint8) {
	c.mu.Lock()
	if c.conn != id {
		c.mu.Unlock()
		return
	}
	c.link = nil
	c.conn = ""
	c.mtu = transport.DefaultMTU
	fn := c.onDisconnect
	c.mu.Unlock()

	if fn != nil {
		fn(reason)
	}
}
