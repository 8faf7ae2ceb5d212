package transfer

import (
	"sync"

	"github.com/user/nebula-blue/transport"
)

const testConn transport.ConnID = "conn-1"

type sentChunk struct {
	data []byte
	mtu  uint16
}

// fakeLink is a Transport and ConnSource with scripted send results.
type fakeLink struct {
	mu        sync.Mutex
	connected bool
	mtu       uint16
	script    []error
	attempts  int
	sent      []sentChunk
	onSend    func(n int)
}

func newFakeLink(mtu uint16) *fakeLink {
	return &fakeLink{connected: true, mtu: mtu}
}

func (f *fakeLink) Current() (transport.ConnID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return testConn, f.connected
}

func (f *fakeLink) Capacity(conn transport.ConnID) uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected || conn != testConn {
		return 0
	}
	return f.mtu
}

func (f *fakeLink) Send(conn transport.ConnID, value []byte) error {
	f.mu.Lock()
	f.attempts++
	if !f.connected || conn != testConn {
		f.mu.Unlock()
		return transport.ErrNotConnected
	}
	if len(f.script) > 0 {
		err := f.script[0]
		f.script = f.script[1:]
		if err != nil {
			f.mu.Unlock()
			return err
		}
	}
	f.sent = append(f.sent, sentChunk{data: append([]byte(nil), value...), mtu: f.mtu})
	n := len(f.sent)
	hook := f.onSend
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return nil
}

func (f *fakeLink) setConnected(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = v
}

func (f *fakeLink) setMTU(mtu uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mtu = mtu
}

func (f *fakeLink) fail(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, errs...)
}

func (f *fakeLink) chunks() []sentChunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentChunk(nil), f.sent...)
}

func (f *fakeLink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeLink) joined() []byte {
	var out []byte
	for _, c := range f.chunks() {
		out = append(out, c.data...)
	}
	return out
}

// counterSource returns a fixed plaintext and counts calls.
type counterSource struct {
	mu    sync.Mutex
	data  []byte
	calls int
}

func (c *counterSource) Plaintext() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return append([]byte(nil), c.data...), nil
}

func patterned(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}
