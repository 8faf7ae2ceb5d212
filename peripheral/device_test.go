package peripheral

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/nebula-blue/transfer"
	"github.com/user/nebula-blue/wire"
)

type notes struct {
	ch chan []byte
}

func newDevice(t *testing.T, data []byte, sim *wire.SimulationConfig) (*Device, *wire.Link, *wire.Central, *notes) {
	t.Helper()
	if sim == nil {
		sim = wire.PerfectSimulationConfig()
	}
	link, err := wire.NewLink("NEBULA", sim)
	require.NoError(t, err)

	cfg := transfer.DefaultConfig()
	cfg.PacingDelay = time.Millisecond
	cfg.BackoffDelay = time.Millisecond
	dev := New(link, transfer.Passthrough{Source: StaticSource{Data: data}}, cfg)
	dev.Start()
	t.Cleanup(func() {
		dev.Close()
		link.Close()
	})

	c := wire.NewCentral("device-test")
	n := &notes{ch: make(chan []byte, 512)}
	c.OnNotification(func(v []byte) {
		select {
		case n.ch <- v:
		default:
		}
	})
	require.NoError(t, c.Connect(link))
	return dev, link, c, n
}

func (n *notes) collect(t *testing.T, want int) []byte {
	t.Helper()
	var out []byte
	deadline := time.After(5 * time.Second)
	for len(out) < want {
		select {
		case v := <-n.ch:
			out = append(out, v...)
		case <-deadline:
			t.Fatalf("got %d of %d bytes", len(out), want)
		}
	}
	return out
}

func readMetadata(t *testing.T, dev *Device, c *wire.Central) transfer.Metadata {
	t.Helper()
	v, err := c.Read(dev.link.Handles().Metadata)
	require.NoError(t, err)
	m, err := transfer.DecodeMetadata(v)
	require.NoError(t, err)
	return m
}

func TestDeviceStreamsOnStart(t *testing.T) {
	data := make([]byte, 130)
	for i := range data {
		data[i] = byte(i * 3)
	}
	dev, _, c, n := newDevice(t, data, nil)
	require.NoError(t, c.Subscribe())
	assert.Equal(t, transfer.Metadata{}, readMetadata(t, dev, c))

	require.NoError(t, c.Write([]byte("START")))
	assert.Equal(t, data, n.collect(t, len(data)))

	require.Eventually(t, func() bool {
		return readMetadata(t, dev, c).Ready == transfer.LifecycleDone
	}, 2*time.Second, time.Millisecond)
	m := readMetadata(t, dev, c)
	assert.Equal(t, uint8(7), m.NumChunks)
	assert.Equal(t, m.NumChunks, m.ChunksRx)
	assert.False(t, dev.Scheduler().Running())
}

func TestDeviceDescriptorValue(t *testing.T) {
	dev, _, c, _ := newDevice(t, []byte("frame"), nil)
	h := dev.link.Handles()

	v, err := c.Read(h.Descriptor)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, c.Write([]byte("PREP")))
	require.Eventually(t, func() bool { return dev.Scheduler().State() == transfer.StateArmed }, time.Second, time.Millisecond)

	v, err = c.Read(h.Descriptor)
	require.NoError(t, err)
	desc, err := transfer.UnmarshalDescriptor(v)
	require.NoError(t, err)
	assert.Equal(t, dev.Scheduler().Descriptor(), desc)
	assert.Equal(t, uint32(5), desc.PayloadLen)
	assert.Equal(t, uint32(20), desc.ChunkCapacity)
}

func TestDeviceStartWithoutSubscriptionFails(t *testing.T) {
	dev, _, c, _ := newDevice(t, []byte("frame"), nil)
	var failed error
	done := make(chan struct{})
	dev.Scheduler().OnFailed(func(err error) {
		failed = err
		close(done)
	})

	require.NoError(t, c.Write([]byte("START")))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("transfer never failed")
	}
	assert.ErrorIs(t, failed, wire.ErrNotificationsDisabled)
	assert.Equal(t, transfer.LifecycleSending, readMetadata(t, dev, c).Ready)
}

func TestDeviceDisconnectStopsTransfer(t *testing.T) {
	sim := wire.PerfectSimulationConfig()
	sim.BusyRate = 1
	dev, link, c, _ := newDevice(t, make([]byte, 100), sim)
	require.NoError(t, c.Subscribe())
	require.NoError(t, c.Write([]byte("START")))
	require.Eventually(t, dev.Scheduler().Running, time.Second, time.Millisecond)

	require.NoError(t, link.Disconnect(wire.ReasonLocalHostTerminated))
	require.Eventually(t, func() bool { return !dev.Scheduler().Running() }, time.Second, time.Millisecond)
	assert.Zero(t, dev.Scheduler().Offset())
	assert.False(t, c.Connected())
}

func TestDeviceIgnoresUnknownCommand(t *testing.T) {
	dev, _, c, _ := newDevice(t, []byte("frame"), nil)
	require.NoError(t, c.Subscribe())
	require.NoError(t, c.Write([]byte("XYZ")))
	require.NoError(t, dev.Do(func() {}))

	assert.Equal(t, transfer.StateIdle, dev.Scheduler().State())
	assert.Zero(t, dev.Scheduler().PayloadLen())
}

func TestDeviceSurvivesCommandFlood(t *testing.T) {
	dev, _, c, _ := newDevice(t, make([]byte, 100), nil)
	require.NoError(t, c.Subscribe())

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				if err := c.Write([]byte("START")); err != nil {
					return
				}
			}
		}()
	}
	writers := make(chan struct{})
	go func() {
		wg.Wait()
		close(writers)
	}()
	select {
	case <-writers:
	case <-time.After(20 * time.Second):
		t.Fatal("writers stalled behind the device loop")
	}

	require.NoError(t, dev.Do(func() {}))
	stopped := make(chan struct{})
	go func() {
		dev.Scheduler().Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop blocked on the scheduler")
	}
	assert.False(t, dev.Scheduler().Running())
}
