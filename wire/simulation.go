package wire

import (
	"math/rand"
	"time"

	"github.com/user/nebula-blue/wire/att"
)

// SimulationConfig controls how the reference link behaves
type SimulationConfig struct {
	// Controller TX buffer depth per connection. Default: 8
	BufferSlots int

	// Delay between delivered notifications. Zero delivers as soon as a PDU
	// is queued. Default: 7.5ms
	ConnectionInterval time.Duration

	// Probability that the controller refuses a notification even though a
	// buffer is free. Default: 0
	BusyRate float64

	// Largest MTU the peripheral accepts in an MTU exchange. Default: 247
	ServerMaxMTU int

	// Deterministic mode for testing
	Deterministic bool
	Seed          int64
}

// DefaultSimulationConfig returns parameters close to a typical nRF52 peripheral
func DefaultSimulationConfig() *SimulationConfig {
	return &SimulationConfig{
		BufferSlots:        DefaultBufferSlots,
		ConnectionInterval: DefaultConnectionInterval,
		ServerMaxMTU:       DefaultServerMaxMTU,
	}
}

// PerfectSimulationConfig returns a link that never refuses and never waits
func PerfectSimulationConfig() *SimulationConfig {
	cfg := DefaultSimulationConfig()
	cfg.BufferSlots = 256
	cfg.ConnectionInterval = 0
	cfg.Deterministic = true
	return cfg
}

// Simulator makes the random decisions of the link. It is not safe for
// concurrent use; the Link guards it with its own mutex.
type Simulator struct {
	config *SimulationConfig
	rng    *rand.Rand
}

// NewSimulator creates a simulator, filling unset fields with defaults
func NewSimulator(config *SimulationConfig) *Simulator {
	if config == nil {
		config = DefaultSimulationConfig()
	}
	cfg := *config
	if cfg.BufferSlots <= 0 {
		cfg.BufferSlots = DefaultBufferSlots
	}
	if cfg.ServerMaxMTU == 0 {
		cfg.ServerMaxMTU = DefaultServerMaxMTU
	}

	seed := cfg.Seed
	if !cfg.Deterministic {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		config: &cfg,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Config returns the effective configuration
func (s *Simulator) Config() SimulationConfig {
	return *s.config
}

// ShouldRefuse returns true if the controller should report itself busy
func (s *Simulator) ShouldRefuse() bool {
	if s.config.BusyRate <= 0 {
		return false
	}
	return s.rng.Float64() < s.config.BusyRate
}

// NegotiatedMTU returns the MTU after an exchange: the smaller of the two
// proposals, clamped to the valid range
func (s *Simulator) NegotiatedMTU(clientRxMTU int) uint16 {
	mtu := clientRxMTU
	if s.config.ServerMaxMTU < mtu {
		mtu = s.config.ServerMaxMTU
	}
	return att.ClampMTU(mtu)
}
