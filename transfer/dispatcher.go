package transfer

import (
	"bytes"
	"fmt"

	"github.com/user/nebula-blue/logger"
	"github.com/user/nebula-blue/transport"
)

// Command is a control message recognized on the inbound channel.
type Command uint8

const (
	CommandNone Command = iota
	CommandStart
	CommandPrep
	CommandAck
)

func (c Command) String() string {
	switch c {
	case CommandNone:
		return "none"
	case CommandStart:
		return "START"
	case CommandPrep:
		return "PREP"
	case CommandAck:
		return "ACK"
	default:
		return fmt.Sprintf("Command(%d)", uint8(c))
	}
}

// commandTable is matched in order; the first prefix that fits wins. Bytes after
// the prefix are not inspected.
var commandTable = []struct {
	prefix []byte
	cmd    Command
}{
	{[]byte("START"), CommandStart},
	{[]byte("PREP"), CommandPrep},
	{[]byte("ACK"), CommandAck},
}

// ParseCommand maps inbound bytes to a Command, CommandNone when nothing matches.
func ParseCommand(data []byte) Command {
	for _, e := range commandTable {
		if bytes.HasPrefix(data, e.prefix) {
			return e.cmd
		}
	}
	return CommandNone
}

// Controller is the part of the scheduler the dispatcher drives.
type Controller interface {
	Prepare() error
	Start() error
}

// Dispatcher turns inbound writes into scheduler calls. It never fails; errors
// from the controller are logged.
type Dispatcher struct {
	ctl Controller
}

// NewDispatcher returns a dispatcher driving ctl.
func NewDispatcher(ctl Controller) *Dispatcher {
	return &Dispatcher{ctl: ctl}
}

// OnDataReceived implements transport.DataReceiver.
func (d *Dispatcher) OnDataReceived(conn transport.ConnID, data []byte) {
	logger.Trace(logPrefix, "rx %d bytes from %s", len(data), conn)
	d.Dispatch(data)
}

// Dispatch parses data and acts on it, returning the command it recognized.
func (d *Dispatcher) Dispatch(data []byte) Command {
	cmd := ParseCommand(data)
	switch cmd {
	case CommandStart:
		logger.Info(logPrefix, "START received from central")
		if err := d.ctl.Prepare(); err != nil {
			logger.Warn(logPrefix, "START: prepare failed: %v", err)
			return cmd
		}
		if err := d.ctl.Start(); err != nil {
			logger.Warn(logPrefix, "START: %v", err)
		}

	case CommandPrep:
		logger.Info(logPrefix, "PREP received from central")
		if err := d.ctl.Prepare(); err != nil {
			logger.Warn(logPrefix, "PREP: prepare failed: %v", err)
		}

	case CommandAck:
		logger.Info(logPrefix, "ACK received from central")

	default:
		logger.Info(logPrefix, "RX cmd ignored (len=%d)", len(data))
	}
	return cmd
}
