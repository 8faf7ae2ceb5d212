// Package peripheral assembles a Nebula peripheral: the transfer scheduler and
// command dispatcher running on one serialized loop, attached to a link.
package peripheral

import (
	"github.com/user/nebula-blue/logger"
	"github.com/user/nebula-blue/transfer"
	"github.com/user/nebula-blue/transport"
	"github.com/user/nebula-blue/wire"
	"github.com/user/nebula-blue/workqueue"
)

const logPrefix = "peripheral"

// Device is a running peripheral. Inbound writes and disconnect notifications
// are posted to the loop, so every scheduler transition except an explicit
// Stop happens on one goroutine.
type Device struct {
	link       *wire.Link
	loop       *workqueue.Loop
	sched      *transfer.Scheduler
	dispatcher *transfer.Dispatcher
}

// New builds a device on link. Call Start to attach it.
func New(link *wire.Link, builder transfer.PayloadBuilder, cfg transfer.Config) *Device {
	loop := workqueue.NewLoop("peripheral", 0)
	sched := transfer.NewScheduler(cfg, builder, link, link, loop)
	return &Device{
		link:       link,
		loop:       loop,
		sched:      sched,
		dispatcher: transfer.NewDispatcher(sched),
	}
}

// Start runs the loop and installs the device's handlers on the link.
func (d *Device) Start() {
	d.loop.Start()
	h := d.link.Handles()
	d.link.HandleRead(h.Metadata, d.metadataValue)
	d.link.HandleRead(h.Descriptor, d.descriptorValue)
	d.link.SetObserver(d)
	d.link.SetReceiver(d)
	logger.Info(logPrefix, "📡 advertising as %q", d.link.Name())
}

// Close stops any transfer and the loop. The link is left open.
func (d *Device) Close() {
	d.sched.Stop()
	d.loop.Close()
}

// Scheduler exposes the transfer state for observers.
func (d *Device) Scheduler() *transfer.Scheduler {
	return d.sched
}

// Do runs fn on the device loop and waits for it.
func (d *Device) Do(fn func()) error {
	return d.loop.Do(fn)
}

// OnDataReceived implements transport.DataReceiver.
func (d *Device) OnDataReceived(conn transport.ConnID, data []byte) {
	if err := d.loop.Submit(func() { d.dispatcher.OnDataReceived(conn, data) }); err != nil {
		logger.Warn(logPrefix, "dropping %d byte write: %v", len(data), err)
	}
}

// Connected implements transport.ConnectionObserver.
func (d *Device) Connected(conn transport.ConnID) {
	logger.Info(logPrefix, "Connected: %s", conn)
}

// Disconnected implements transport.ConnectionObserver. The run is stopped on
// the loop; if the loop is gone it is stopped directly.
func (d *Device) Disconnected(conn transport.ConnID, reason uint8) {
	logger.Info(logPrefix, "Disconnected: %s (reason 0x%02x)", conn, reason)
	if err := d.loop.Submit(d.sched.Stop); err != nil {
		d.sched.Stop()
	}
}

func (d *Device) metadataValue() []byte {
	m := d.sched.Metadata().Encode()
	return m[:]
}

func (d *Device) descriptorValue() []byte {
	return d.sched.Descriptor().Marshal()
}
