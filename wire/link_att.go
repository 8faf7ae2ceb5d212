package wire

import (
	"github.com/user/nebula-blue/logger"
	"github.com/user/nebula-blue/transport"
	"github.com/user/nebula-blue/wire/att"
	"github.com/user/nebula-blue/wire/gatt"
)

// request handles an ATT request from the central and returns the encoded
// response, which is an Error Response when the request fails.
func (l *Link) request(id transport.ConnID, pdu []byte) ([]byte, error) {
	c, err := l.lookup(id)
	if err != nil {
		return nil, err
	}

	packet, err := att.DecodePacket(pdu)
	if err != nil {
		logger.Warn(l.prefix(), "⚠️  malformed request from %s: %v", shortHash(c.central.id), err)
		return errorResponse(pdu, 0, att.ErrInvalidPDU)
	}

	var rsp any
	switch p := packet.(type) {
	case *att.ExchangeMTURequest:
		rsp = l.exchangeMTU(c, p)

	case *att.ReadRequest:
		value, aerr := l.readValue(c, p.Handle, att.OpReadRequest)
		if aerr != nil {
			return encodeError(aerr)
		}
		rsp = &att.ReadResponse{Value: truncate(value, att.MaxReadValue(l.mtu(c)))}

	case *att.ReadBlobRequest:
		value, aerr := l.readValue(c, p.Handle, att.OpReadBlobRequest)
		if aerr != nil {
			return encodeError(aerr)
		}
		if int(p.Offset) > len(value) {
			return encodeError(att.NewError(att.ErrInvalidOffset, att.OpReadBlobRequest, p.Handle))
		}
		rsp = &att.ReadBlobResponse{Value: truncate(value[p.Offset:], att.MaxReadValue(l.mtu(c)))}

	case *att.WriteRequest:
		if aerr := l.write(c, p.Handle, p.Value, att.OpWriteRequest); aerr != nil {
			return encodeError(aerr)
		}
		rsp = &att.WriteResponse{}

	default:
		logger.Debug(l.prefix(), "📥 unsupported request %s", att.OpcodeName(pdu[0]))
		return errorResponse(pdu, 0, att.ErrRequestNotSupported)
	}
	return att.EncodePacket(rsp)
}

// command handles an ATT Write Command. Commands get no response, so
// failures are only logged.
func (l *Link) command(id transport.ConnID, pdu []byte) error {
	c, err := l.lookup(id)
	if err != nil {
		return err
	}
	packet, err := att.DecodePacket(pdu)
	if err != nil {
		return err
	}
	cmd, ok := packet.(*att.WriteCommand)
	if !ok {
		return att.NewError(att.ErrRequestNotSupported, pdu[0], 0)
	}
	if aerr := l.write(c, cmd.Handle, cmd.Value, att.OpWriteCommand); aerr != nil {
		logger.Debug(l.prefix(), "📥 write command dropped: %v", aerr)
	}
	return nil
}

func (l *Link) mtu(c *Connection) uint16 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return c.mtu
}

func (l *Link) exchangeMTU(c *Connection, p *att.ExchangeMTURequest) *att.ExchangeMTUResponse {
	l.mu.Lock()
	negotiated := l.sim.NegotiatedMTU(int(p.ClientRxMTU))
	c.mtu = negotiated
	serverMTU := uint16(l.sim.config.ServerMaxMTU)
	events := l.events
	l.mu.Unlock()

	logger.Debug(l.prefix(), "📥 MTU Request from %s: client_mtu=%d", shortHash(c.central.id), p.ClientRxMTU)
	logger.Info(l.prefix(), "✅ MTU negotiated with %s: %d bytes", shortHash(c.central.id), negotiated)
	events.LogMTUNegotiated(string(c.id), negotiated)
	return &att.ExchangeMTUResponse{ServerRxMTU: serverMTU}
}

// readValue returns the full value of handle as seen by connection c
func (l *Link) readValue(c *Connection, handle uint16, op uint8) ([]byte, *att.Error) {
	if handle == l.handles.TXCCCD {
		return gatt.EncodeCCCDValue(c.cccd.IsNotifyEnabled(l.handles.TX), false), nil
	}

	attr, err := l.db.GetAttribute(handle)
	if err != nil {
		return nil, att.NewError(att.ErrInvalidHandle, op, handle)
	}
	if attr.Permissions&gatt.PermReadable == 0 {
		return nil, att.NewError(att.ErrReadNotPermitted, op, handle)
	}

	l.mu.Lock()
	fn := l.readers[handle]
	l.mu.Unlock()
	if fn != nil {
		return fn(), nil
	}
	return attr.Value, nil
}

// write applies a write to the TX CCCD or the RX characteristic
func (l *Link) write(c *Connection, handle uint16, value []byte, op uint8) *att.Error {
	switch handle {
	case l.handles.TXCCCD:
		if op != att.OpWriteRequest {
			return att.NewError(att.ErrWriteNotPermitted, op, handle)
		}
		if err := c.cccd.SetSubscription(l.handles.TX, value); err != nil {
			return att.NewError(att.ErrInvalidAttributeValueLength, op, handle)
		}
		enabled := c.cccd.IsNotifyEnabled(l.handles.TX)
		logger.Info(l.prefix(), "🔔 notifications %s by %s", onOff(enabled), shortHash(c.central.id))
		l.mu.Lock()
		events := l.events
		l.mu.Unlock()
		events.LogSubscription(string(c.id), enabled)
		return nil

	case l.handles.RX:
		if len(value) > att.MaxNotificationValue(l.mtu(c)) {
			return att.NewError(att.ErrInvalidAttributeValueLength, op, handle)
		}
		l.deliverRX(c.id, value)
		return nil
	}

	if _, err := l.db.GetAttribute(handle); err != nil {
		return att.NewError(att.ErrInvalidHandle, op, handle)
	}
	return att.NewError(att.ErrWriteNotPermitted, op, handle)
}

// deliverRX hands one inbound write to the receiver, once, in arrival order.
func (l *Link) deliverRX(id transport.ConnID, data []byte) {
	l.callbackMu.RLock()
	receiver := l.receiver
	l.callbackMu.RUnlock()
	if receiver == nil {
		return
	}

	l.rxMu.Lock()
	defer l.rxMu.Unlock()
	receiver.OnDataReceived(id, append([]byte(nil), data...))
}

func errorResponse(pdu []byte, handle uint16, code uint8) ([]byte, error) {
	var op uint8
	if len(pdu) > 0 {
		op = pdu[0]
	}
	return encodeError(att.NewError(code, op, handle))
}

func encodeError(e *att.Error) ([]byte, error) {
	return att.EncodePacket(&att.ErrorResponse{RequestOpcode: e.RequestOpcode, Handle: e.Handle, ErrorCode: e.Code})
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

func onOff(v bool) string {
	if v {
		return "enabled"
	}
	return "disabled"
}
