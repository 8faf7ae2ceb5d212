package transfer

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/nebula-blue/aead"
	"github.com/user/nebula-blue/logger"
	"github.com/user/nebula-blue/transport"
	"github.com/user/nebula-blue/workqueue"
)

const logPrefix = "transfer"

// Reference timing and sizing.
const (
	DefaultChunkSize    = 200
	DefaultPacingDelay  = 5 * time.Millisecond
	DefaultBackoffDelay = 200 * time.Millisecond
)

// Config tunes the send loop.
type Config struct {
	// ChunkSize caps every chunk independently of the link MTU.
	ChunkSize int
	// PacingDelay separates successful sends.
	PacingDelay time.Duration
	// BackoffDelay is how long to wait before retrying a chunk the link refused
	// because its buffers were full.
	BackoffDelay time.Duration
	// MaxBusyRetries bounds consecutive refusals of the same chunk. Zero retries
	// forever.
	MaxBusyRetries int
}

// DefaultConfig returns 200-byte chunks, 5ms pacing and a 200ms busy backoff.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    DefaultChunkSize,
		PacingDelay:  DefaultPacingDelay,
		BackoffDelay: DefaultBackoffDelay,
	}
}

// ConnSource reports the active peer. It is consulted on every tick; the scheduler
// never keeps a ConnID across ticks.
type ConnSource interface {
	Current() (transport.ConnID, bool)
}

// Stats counts what the send loop has done since the scheduler was created.
type Stats struct {
	ChunksSent  uint64
	BytesSent   uint64
	BusyRetries uint64
	Completed   uint64
	Failed      uint64
}

// Scheduler owns the armed payload, the cursor and the metadata, and drives the
// chunk-send loop one tick at a time through a workqueue.Queue.
//
// All state sits behind one mutex, held across the non-blocking Send, so Stop may
// be called from any goroutine: once it returns no further chunk is sent.
type Scheduler struct {
	mu sync.Mutex

	cfg     Config
	tx      transport.Transport
	conns   ConnSource
	queue   workqueue.Queue
	builder PayloadBuilder

	state    State
	payload  []byte
	offset   int
	capacity int
	meta     Metadata
	desc     Descriptor
	running  bool
	busy     int
	pending  *workqueue.Task
	gen      uint64
	stats    Stats

	onComplete func(Descriptor)
	onFailed   func(error)
}

// NewScheduler wires a scheduler to its collaborators. Zero fields in cfg take the
// DefaultConfig values.
func NewScheduler(cfg Config, builder PayloadBuilder, tx transport.Transport, conns ConnSource, queue workqueue.Queue) *Scheduler {
	def := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.PacingDelay <= 0 {
		cfg.PacingDelay = def.PacingDelay
	}
	if cfg.BackoffDelay <= 0 {
		cfg.BackoffDelay = def.BackoffDelay
	}
	return &Scheduler{
		cfg:     cfg,
		tx:      tx,
		conns:   conns,
		queue:   queue,
		builder: builder,
	}
}

// OnComplete registers a function called after a transfer reaches Done. It runs on
// the tick's goroutine without the scheduler lock held.
func (s *Scheduler) OnComplete(fn func(Descriptor)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onComplete = fn
}

// OnFailed registers a function called after a fatal send error aborted a run.
func (s *Scheduler) OnFailed(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFailed = fn
}

// Prepare builds a fresh payload and arms it. Any run in progress is stopped first.
// On failure nothing stays armed and the metadata reads idle.
func (s *Scheduler) Prepare() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prepareLocked()
}

func (s *Scheduler) prepareLocked() error {
	s.haltLocked()
	s.setStateLocked(StatePreparing)

	built, err := s.builder.Build()
	if err != nil {
		s.discardLocked()
		logger.Error(logPrefix, "❌ payload preparation failed: %v", err)
		return fmt.Errorf("prepare payload: %w", err)
	}

	capacity := s.plannedCapacityLocked()
	var meta Metadata
	if err := meta.Reset(len(built.Data), capacity); err != nil {
		if built.Encrypted {
			aead.Wipe(built.Data)
		}
		s.discardLocked()
		logger.Error(logPrefix, "❌ payload rejected: %v", err)
		return err
	}

	s.payload = built.Data
	s.offset = 0
	s.capacity = capacity
	s.meta = meta
	s.busy = 0
	s.desc = Descriptor{
		TransferID:    uuid.New(),
		PayloadLen:    uint32(len(built.Data)),
		NumChunks:     uint32(meta.NumChunks),
		ChunkCapacity: uint32(capacity),
		Encrypted:     built.Encrypted,
		Algorithm:     built.Algorithm,
		ContentType:   built.ContentType,
	}
	s.setStateLocked(StateArmed)

	logger.Info(logPrefix, "📦 payload prepared: %d bytes, %d chunks of up to %d", len(s.payload), meta.NumChunks, capacity)
	if !built.Encrypted {
		logger.Debug(logPrefix, "payload to be sent: %q", s.payload)
	}
	logger.DebugJSON(logPrefix, "descriptor", s.descStructLocked())
	return nil
}

// Start begins streaming to the connected peer, preparing a payload first unless
// one is already armed.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conns.Current(); !ok {
		logger.Warn(logPrefix, "no connection; cannot start transfer")
		return ErrNoConnection
	}
	if s.running {
		logger.Debug(logPrefix, "start ignored, transfer already running at offset %d", s.offset)
		return nil
	}
	if s.state != StateArmed || len(s.payload) == 0 {
		if err := s.prepareLocked(); err != nil {
			return err
		}
	}

	s.setStateLocked(StateSending)
	s.running = true
	s.gen++
	s.scheduleLocked(0)
	logger.Info(logPrefix, "🚀 transfer started: %d bytes", len(s.payload))
	return nil
}

// Stop cancels the pending tick and halts the run. It is safe to call from any
// goroutine at any time. A tick already executing finishes its single send before
// Stop returns; no tick sends afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		logger.Info(logPrefix, "⏹️ transfer stopped at offset %d/%d", s.offset, len(s.payload))
	}
	s.haltLocked()
}

// haltLocked invalidates every scheduled tick and leaves Sending.
func (s *Scheduler) haltLocked() {
	s.gen++
	if s.pending != nil {
		s.queue.Cancel(s.pending)
		s.pending = nil
	}
	s.running = false
	if s.state == StateSending {
		s.setStateLocked(StateIdle)
	}
}

func (s *Scheduler) discardLocked() {
	s.payload = nil
	s.offset = 0
	s.capacity = 0
	s.meta.Clear()
	s.desc = Descriptor{}
	s.setStateLocked(StateIdle)
}

func (s *Scheduler) scheduleLocked(delay time.Duration) {
	gen := s.gen
	s.pending = s.queue.After(delay, func() { s.tick(gen) })
}

// plannedCapacityLocked sizes chunks for the current link, or ChunkSize when no
// peer is connected yet.
func (s *Scheduler) plannedCapacityLocked() int {
	capacity := s.cfg.ChunkSize
	if conn, ok := s.conns.Current(); ok {
		if vc := transport.ValueCapacity(s.tx.Capacity(conn)); vc > 0 && vc < capacity {
			capacity = vc
		}
	}
	return capacity
}

func (s *Scheduler) setStateLocked(to State) {
	if s.state == to {
		return
	}
	if !CanTransition(s.state, to) {
		logger.Warn(logPrefix, "refusing transition %v -> %v", s.state, to)
		return
	}
	logger.Trace(logPrefix, "state %v -> %v", s.state, to)
	s.state = to
}

type decisionKind int

const (
	decideIdle decisionKind = iota
	decideFinish
	decideSend
	decideFail
)

// tickInput is everything a tick decision depends on.
type tickInput struct {
	running   bool
	connected bool
	mtu       uint16
	offset    int
	total     int
	chunkSize int
}

type decision struct {
	kind     decisionKind
	chunk    int
	capacity int
	err      error
}

// step decides what a tick does without touching any state.
func step(in tickInput) decision {
	if !in.running || !in.connected {
		return decision{kind: decideIdle}
	}
	if in.offset >= in.total {
		return decision{kind: decideFinish}
	}
	capacity := transport.ValueCapacity(in.mtu)
	if capacity == 0 {
		return decision{kind: decideFail, err: fmt.Errorf("%w: mtu %d", ErrCapacityTooSmall, in.mtu)}
	}
	if in.chunkSize > 0 && in.chunkSize < capacity {
		capacity = in.chunkSize
	}
	return decision{kind: decideSend, chunk: min(in.total-in.offset, capacity), capacity: capacity}
}

// tick runs one iteration of the send loop for run generation gen.
func (s *Scheduler) tick(gen uint64) {
	var hook func()
	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		if hook != nil {
			hook()
		}
	}()

	if gen != s.gen {
		return
	}
	s.pending = nil

	conn, connected := s.conns.Current()
	var mtu uint16
	if connected {
		mtu = s.tx.Capacity(conn)
		connected = mtu > 0
	}

	d := step(tickInput{
		running:   s.running,
		connected: connected,
		mtu:       mtu,
		offset:    s.offset,
		total:     len(s.payload),
		chunkSize: s.cfg.ChunkSize,
	})

	switch d.kind {
	case decideIdle:
		// A lost peer ends the run here; a later Start re-arms rather than resumes.
		if s.running {
			logger.Warn(logPrefix, "connection gone at offset %d/%d, transfer halted", s.offset, len(s.payload))
			s.haltLocked()
		}

	case decideFinish:
		s.meta.MarkDone()
		s.running = false
		s.setStateLocked(StateDone)
		s.stats.Completed++
		logger.Info(logPrefix, "✅ transfer complete (%d bytes)", len(s.payload))
		if fn, desc := s.onComplete, s.desc; fn != nil {
			hook = func() { fn(desc) }
		}

	case decideFail:
		hook = s.failLocked(d.err, 0)

	case decideSend:
		if d.capacity != s.capacity {
			if err := s.meta.Rebase(len(s.payload)-s.offset, d.capacity); err != nil {
				hook = s.failLocked(err, d.chunk)
				return
			}
			logger.Debug(logPrefix, "chunk capacity %d -> %d, now %d chunks", s.capacity, d.capacity, s.meta.NumChunks)
			s.capacity = d.capacity
			s.desc.ChunkCapacity = uint32(d.capacity)
			s.desc.NumChunks = uint32(s.meta.NumChunks)
		}

		err := s.tx.Send(conn, s.payload[s.offset:s.offset+d.chunk])
		switch transport.Classify(err) {
		case transport.ClassNone:
			s.offset += d.chunk
			s.meta.RecordChunkSent()
			s.busy = 0
			s.stats.ChunksSent++
			s.stats.BytesSent += uint64(d.chunk)
			logger.Trace(logPrefix, "sent chunk %d/%d (%d bytes)", s.meta.ChunksRx, s.meta.NumChunks, d.chunk)
			s.scheduleLocked(s.cfg.PacingDelay)

		case transport.ClassResourceExhausted:
			s.busy++
			s.stats.BusyRetries++
			if s.cfg.MaxBusyRetries > 0 && s.busy > s.cfg.MaxBusyRetries {
				hook = s.failLocked(fmt.Errorf("%w: %d attempts: %w", ErrRetriesExhausted, s.busy, err), d.chunk)
				return
			}
			logger.Debug(logPrefix, "link busy at offset %d, retrying in %v", s.offset, s.cfg.BackoffDelay)
			s.scheduleLocked(s.cfg.BackoffDelay)

		default:
			hook = s.failLocked(err, d.chunk)
		}
	}
}

// failLocked aborts the run after a fatal error. The metadata keeps reading
// "sending" so the peer sees a stalled transfer. It returns the failure hook call,
// if one is registered.
func (s *Scheduler) failLocked(err error, chunkLen int) func() {
	s.haltLocked()
	s.stats.Failed++
	logger.WithFields(logPrefix, logger.Fields{
		"offset":    s.offset,
		"chunk_len": chunkLen,
		"error":     err.Error(),
	}).Error("transfer aborted")

	if fn := s.onFailed; fn != nil {
		return func() { fn(err) }
	}
	return nil
}

func (s *Scheduler) descStructLocked() interface{} {
	st, err := s.desc.AsStruct()
	if err != nil {
		return s.desc
	}
	return st
}

// Metadata returns a copy of the progress summary.
func (s *Scheduler) Metadata() Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// State returns the lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running reports whether the send loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Offset returns the cursor.
func (s *Scheduler) Offset() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// PayloadLen returns the armed payload's length.
func (s *Scheduler) PayloadLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payload)
}

// Payload returns a copy of the armed payload.
func (s *Scheduler) Payload() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.payload...)
}

// Descriptor describes the armed transfer. It is the zero value when nothing is
// armed.
func (s *Scheduler) Descriptor() Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desc
}

// Stats returns the send loop counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
