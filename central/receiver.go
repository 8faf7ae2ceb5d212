// Package central drives the peer side of a Nebula transfer over the reference
// link: it finds the peripheral, asks for a payload and rebuilds it from
// notifications.
package central

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/user/nebula-blue/aead"
	"github.com/user/nebula-blue/logger"
	"github.com/user/nebula-blue/transfer"
	"github.com/user/nebula-blue/transport"
	"github.com/user/nebula-blue/wire"
	"github.com/user/nebula-blue/wire/advertising"
)

const logPrefix = "central"

// DefaultPollInterval is how often the metadata value is read while waiting.
const DefaultPollInterval = 2 * time.Millisecond

var (
	ErrNotNebula    = errors.New("central: peer does not advertise the Nebula service")
	ErrNoKey        = errors.New("central: payload is encrypted and no key is set")
	ErrDisconnected = errors.New("central: link dropped before the transfer finished")
	ErrShortPayload = errors.New("central: notifications do not add up to the payload length")
)

// Options tunes a Receiver. Zero values take defaults.
type Options struct {
	MTU          uint16 // requested ATT MTU, DefaultMTU when 0
	Command      string // written to RX to begin, START when empty
	Key          *aead.Key
	PollInterval time.Duration
}

// Result is one reassembled transfer.
type Result struct {
	Descriptor transfer.Descriptor
	Metadata   transfer.Metadata
	MTU        uint16
	Payload    []byte // bytes as received
	Plaintext  []byte // Payload, decrypted when the descriptor says so
	Chunks     int
	Elapsed    time.Duration
}

// Extension returns the usual file extension for the plaintext's content
// type, or ".bin" when the type has none.
func (r Result) Extension() string {
	ct, _, _ := strings.Cut(r.Descriptor.ContentType, ";")
	if m := mimetype.Lookup(strings.TrimSpace(ct)); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	return ".bin"
}

// Receiver owns one wire.Central and the notifications it has collected.
type Receiver struct {
	opts    Options
	central *wire.Central

	mu      sync.Mutex
	chunks  [][]byte
	total   int
	dropped chan uint8
	notify  chan struct{}
}

// NewReceiver creates a receiver identified as id on the link.
func NewReceiver(id string, opts Options) *Receiver {
	if opts.MTU == 0 {
		opts.MTU = transport.DefaultMTU
	}
	if opts.Command == "" {
		opts.Command = transfer.CommandStart.String()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	r := &Receiver{
		opts:    opts,
		central: wire.NewCentral(id),
		dropped: make(chan uint8, 1),
		notify:  make(chan struct{}, 1),
	}
	r.central.OnNotification(r.collect)
	r.central.OnDisconnect(func(reason uint8) {
		select {
		case r.dropped <- reason:
		default:
		}
	})
	return r
}

// Central exposes the underlying link client.
func (r *Receiver) Central() *wire.Central {
	return r.central
}

func (r *Receiver) collect(value []byte) {
	r.mu.Lock()
	r.chunks = append(r.chunks, value)
	r.total += len(value)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *Receiver) received() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total, len(r.chunks)
}

func (r *Receiver) reset() {
	r.mu.Lock()
	r.chunks = nil
	r.total = 0
	r.mu.Unlock()
}

// Attach checks the advertisement, connects, negotiates the MTU and subscribes
// to TX notifications.
func (r *Receiver) Attach(link *wire.Link) error {
	if !advertising.IsNebula(link.Advertisement().Data) {
		return ErrNotNebula
	}
	if err := r.central.Connect(link); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	mtu, err := r.central.ExchangeMTU(r.opts.MTU)
	if err != nil {
		return fmt.Errorf("exchange mtu: %w", err)
	}
	if err := r.central.Subscribe(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	logger.Debug(logPrefix, "🔗 attached to %s (mtu=%d)", link.Name(), mtu)
	return nil
}

// Metadata reads the peripheral's progress value.
func (r *Receiver) Metadata() (transfer.Metadata, error) {
	h, err := r.central.Handles()
	if err != nil {
		return transfer.Metadata{}, err
	}
	v, err := r.central.Read(h.Metadata)
	if err != nil {
		return transfer.Metadata{}, fmt.Errorf("read metadata: %w", err)
	}
	return transfer.DecodeMetadata(v)
}

// Descriptor reads the armed transfer's descriptor. It is empty before the
// first payload is prepared.
func (r *Receiver) Descriptor() (transfer.Descriptor, error) {
	h, err := r.central.Handles()
	if err != nil {
		return transfer.Descriptor{}, err
	}
	v, err := r.central.Read(h.Descriptor)
	if err != nil {
		return transfer.Descriptor{}, fmt.Errorf("read descriptor: %w", err)
	}
	return transfer.UnmarshalDescriptor(v)
}

// Prepare asks the peripheral to arm a payload without sending it and returns
// the resulting descriptor.
func (r *Receiver) Prepare(ctx context.Context) (transfer.Descriptor, error) {
	prev, err := r.Descriptor()
	if err != nil {
		return transfer.Descriptor{}, err
	}
	if err := r.central.Write([]byte(transfer.CommandPrep.String())); err != nil {
		return transfer.Descriptor{}, fmt.Errorf("write command: %w", err)
	}
	var desc transfer.Descriptor
	err = r.poll(ctx, func() (bool, error) {
		d, err := r.Descriptor()
		if err != nil {
			return false, err
		}
		desc = d
		return d.TransferID != prev.TransferID, nil
	})
	return desc, err
}

// Fetch writes the start command and blocks until the peripheral reports
// ready=done and every payload byte has arrived, or ctx ends.
func (r *Receiver) Fetch(ctx context.Context) (Result, error) {
	start := time.Now()
	prev, err := r.Descriptor()
	if err != nil {
		return Result{}, err
	}
	r.reset()
	if err := r.central.Write([]byte(r.opts.Command)); err != nil {
		return Result{}, fmt.Errorf("write command: %w", err)
	}

	// A finished earlier run also reads as done; wait for a new transfer id.
	var (
		meta transfer.Metadata
		desc transfer.Descriptor
	)
	err = r.poll(ctx, func() (bool, error) {
		m, err := r.Metadata()
		if err != nil || m.Ready != transfer.LifecycleDone {
			return false, err
		}
		d, err := r.Descriptor()
		if err != nil {
			return false, err
		}
		meta, desc = m, d
		return d.TransferID != prev.TransferID, nil
	})
	if err != nil {
		return Result{}, err
	}
	if s, err := desc.AsStruct(); err == nil {
		logger.DebugJSON(logPrefix, "📋 descriptor", s)
	}

	want := int(desc.PayloadLen)
	err = r.poll(ctx, func() (bool, error) {
		got, _ := r.received()
		if got > want {
			return false, fmt.Errorf("%w: got %d, want %d", ErrShortPayload, got, want)
		}
		return got == want, nil
	})
	if err != nil {
		return Result{}, err
	}

	payload, n := r.assemble()
	res := Result{
		Descriptor: desc,
		Metadata:   meta,
		MTU:        r.central.MTU(),
		Payload:    payload,
		Plaintext:  payload,
		Chunks:     n,
	}
	if desc.Encrypted {
		if res.Plaintext, err = r.decrypt(desc, payload); err != nil {
			return res, err
		}
	}
	res.Elapsed = time.Since(start)
	logger.Info(logPrefix, "✅ received %d bytes in %d notifications (%v)", len(payload), n, res.Elapsed.Round(time.Millisecond))
	return res, nil
}

func (r *Receiver) assemble() ([]byte, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]byte, 0, r.total)
	for _, c := range r.chunks {
		out = append(out, c...)
	}
	return out, len(r.chunks)
}

func (r *Receiver) decrypt(desc transfer.Descriptor, payload []byte) ([]byte, error) {
	if r.opts.Key == nil {
		return nil, ErrNoKey
	}
	alg, err := aead.ParseAlgorithm(desc.Algorithm)
	if err != nil {
		return nil, err
	}
	return aead.NewFramer(nil, alg).Decrypt(*r.opts.Key, payload)
}

// poll calls check until it reports done, fails, the link drops or ctx ends.
// Notifications wake it early.
func (r *Receiver) poll(ctx context.Context, check func() (bool, error)) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()
	for {
		done, err := check()
		if err != nil {
			if errors.Is(err, wire.ErrNoLink) {
				return fmt.Errorf("%w: %v", ErrDisconnected, err)
			}
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case reason := <-r.dropped:
			return fmt.Errorf("%w (reason 0x%02x)", ErrDisconnected, reason)
		case <-r.notify:
		case <-ticker.C:
		}
	}
}

// Close disconnects from the peripheral if still connected.
func (r *Receiver) Close() error {
	if !r.central.Connected() {
		return nil
	}
	return r.central.Disconnect()
}
