// Package memory defines the external interfaces the timing core relies on
// for the memory hierarchy, as described in the external-interfaces
// section of the design: a cache/vector-cache admission-and-access contract
// and an MMU address-translation contract. The memory hierarchy itself
// (coherence, NoC, DRAM timing) is out of scope for this module; only the
// narrow surface the compute unit calls is specified here, plus a simple
// fixed-latency stand-in used by tests and small single-binary runs.
package memory

import "github.com/sarchlab/akita/v4/sim"

// AccessKind distinguishes the three kinds of access the timing core can
// submit to a cache module.
type AccessKind int

const (
	// Load is a read access.
	Load AccessKind = iota
	// Store is a normal (coherent) write access.
	Store
	// NCStore is a non-coherent write access, used for vector-memory
	// stores that bypass the coherence protocol.
	NCStore
)

// Witness is the atomic-style counter contract a cache module drives: it
// increments the witness when it accepts an access and decrements it
// asynchronously, on its own schedule, once the access completes. The
// timing core's uop package provides the concrete counter; this package
// only needs the two mutators.
type Witness interface {
	Incr()
	Decr()
}

// Cache is the interface a compute unit uses to submit accesses to the
// scalar cache, vector cache, or LDS module. Access is fire-and-forget:
// it increments witness immediately and the module decrements it
// asynchronously, on its own schedule, once the access completes.
type Cache interface {
	// CanAccess reports whether the cache currently has room to accept an
	// access to phys_addr. The core retries on the next cycle if it
	// returns false; this is the normal "cannot progress this cycle"
	// path, not an error.
	CanAccess(physAddr uint64) bool

	// Access submits an access, incrementing witness before returning.
	Access(kind AccessKind, physAddr uint64, witness Witness)
}

// MMU is a pure function from (address-space, virtual address) to a
// physical address.
type MMU interface {
	TranslateVirtualAddress(addressSpace uint64, vAddr uint64) uint64
}

// IdentityMMU is an MMU that performs no translation, suitable for tests
// and for configurations that model a single flat address space.
type IdentityMMU struct{}

// TranslateVirtualAddress implements MMU.
func (IdentityMMU) TranslateVirtualAddress(_ uint64, vAddr uint64) uint64 {
	return vAddr
}

// Drainer is implemented by cache modules that need an explicit per-cycle
// poll to complete outstanding accesses, because some callers (scalar SMEM,
// LDS) submit via Access without ever calling CanAccess. DrainIfPossible lets
// a unit's Run() call this unconditionally without caring whether its
// configured Cache needs it.
type Drainer interface {
	Drain()
}

// DrainIfPossible calls c.Drain() if c implements Drainer; a no-op otherwise.
func DrainIfPossible(c Cache) {
	if d, ok := c.(Drainer); ok {
		d.Drain()
	}
}

// pendingAccess tracks one outstanding access so FixedLatencyCache can
// decrement its witness once the configured latency has elapsed.
type pendingAccess struct {
	witness    Witness
	completeAt sim.VTimeInSec
}

// FixedLatencyCache is a minimal, deterministic stand-in for a real cache
// module. CanAccess reports room while fewer than maxInflight accesses are
// outstanding; Access itself does not enforce that limit. Each access is
// due latency cycles after submission on the Akita engine's clock, and its
// witness is decremented by the first CanAccess or Drain poll at or after
// that time; the cache neither ticks nor schedules engine events.
type FixedLatencyCache struct {
	engine      sim.Engine
	freq        sim.Freq
	latency     int
	maxInflight int

	pending []pendingAccess
}

// NewFixedLatencyCache creates a FixedLatencyCache.
func NewFixedLatencyCache(engine sim.Engine, freq sim.Freq, latency, maxInflight int) *FixedLatencyCache {
	return &FixedLatencyCache{
		engine:      engine,
		freq:        freq,
		latency:     latency,
		maxInflight: maxInflight,
	}
}

// CanAccess implements Cache.
func (c *FixedLatencyCache) CanAccess(_ uint64) bool {
	c.drain()
	return len(c.pending) < c.maxInflight
}

// Drain implements Drainer: a submitter that never calls CanAccess (scalar
// SMEM, LDS) must still give completed accesses a chance to decrement their
// witness, or a wavefront waiting on one would stall forever.
func (c *FixedLatencyCache) Drain() {
	c.drain()
}

// Access implements Cache.
func (c *FixedLatencyCache) Access(_ AccessKind, _ uint64, witness Witness) {
	witness.Incr()

	now := c.engine.CurrentTime()
	completeAt := c.freq.NCyclesLater(c.latency, now)

	c.pending = append(c.pending, pendingAccess{
		witness:    witness,
		completeAt: completeAt,
	})
}

// drain decrements the witness of every access whose latency has elapsed.
// FixedLatencyCache is polled rather than scheduled as its own Akita
// component, since it has no buffers of its own to manage between polls.
func (c *FixedLatencyCache) drain() {
	now := c.engine.CurrentTime()

	kept := c.pending[:0]
	for _, p := range c.pending {
		if now >= p.completeAt {
			p.witness.Decr()
		} else {
			kept = append(kept, p)
		}
	}
	c.pending = kept
}
