// Package uop defines the in-flight instruction record that flows through
// a compute unit's pipeline buffers, plus the index-based references (Ref,
// WorkGroupRef, WavefrontRef) that locate wavefront, work-group and
// wavefront-pool-entry state by coordinates rather than by pointer; that
// state itself lives outside this package. Indices rather than back-pointers keep the Uop/WavefrontPool
// reference cycle describable with plain value types: a uop holds a Ref,
// not a *WavefrontPoolEntry.
package uop

import "github.com/xianggong/multi2sim/emu"

// Ref locates a wavefront-pool entry by coordinates rather than by pointer:
// compute unit index, pool index within that compute unit, and slot within
// that pool. The zero Ref is itself a valid location (slot 0 of pool 0 on
// compute unit 0), so code that needs "no entry" uses a pointer or a bool
// alongside a Ref.
type Ref struct {
	ComputeUnitID int
	PoolID        int
	Slot          int
}

// WorkGroupRef locates a work-group by its compute-unit and slot index.
type WorkGroupRef struct {
	ComputeUnitID int
	Slot          int
}

// WavefrontRef locates a wavefront by its owning work-group and its index
// inside that work-group's wavefront list.
type WavefrontRef struct {
	WorkGroup WorkGroupRef
	Index     int
}

// AccessKind classifies one LDS access copied from the emulator's side
// effects at Fetch time.
type AccessKind int

const (
	AccessLoad AccessKind = iota
	AccessStore
)

// LDSAccess is one work-item's local-data-share access, copied verbatim
// from the emulator at Fetch time.
type LDSAccess struct {
	Kind AccessKind
	Addr uint64
	Size uint64
}

// WorkItemAccess is the per-work-item memory-access snapshot a uop carries
// from Fetch through Execute/Memory. AccessedCache is mutated in place by
// the vector-memory unit as work-items are admitted across retries.
type WorkItemAccess struct {
	GlobalAddr    uint64
	GlobalSize    uint64
	LDSAccesses   []LDSAccess
	AccessedCache bool
}

// SideEffects mirrors emu.SideEffects, copied into the uop at Fetch so the
// pipeline stages never need to reach back into the emulator.
type SideEffects struct {
	VectorMemoryRead            bool
	VectorMemoryWrite           bool
	VectorMemoryAtomic          bool
	VectorMemoryGlobalCoherency bool
	ScalarMemoryRead            bool
	LDSRead                     bool
	LDSWrite                    bool
	MemoryWait                  bool
	BarrierInstruction          bool
	WavefrontLastInstruction    bool
}

// FromEmu copies an emu.SideEffects value into the uop's own SideEffects
// type, decoupling the pipeline from the emulator package.
func FromEmu(s emu.SideEffects) SideEffects {
	return SideEffects{
		VectorMemoryRead:            s.VectorMemoryRead,
		VectorMemoryWrite:           s.VectorMemoryWrite,
		VectorMemoryAtomic:          s.VectorMemoryAtomic,
		VectorMemoryGlobalCoherency: s.VectorMemoryGlobalCoherency,
		ScalarMemoryRead:            s.ScalarMemoryRead,
		LDSRead:                     s.LDSRead,
		LDSWrite:                    s.LDSWrite,
		MemoryWait:                  s.MemoryWait,
		BarrierInstruction:          s.BarrierInstruction,
		WavefrontLastInstruction:    s.WavefrontLastInstruction,
	}
}

// StageTimestamps is the begin/stall/active triple plus the cycle at which
// the stage's latency elapses (the "_ready" cycle), recorded for one
// pipeline stage against one uop. Stall counts how many times this uop was
// stalled at this stage, per invariant I3 and the stall-counter
// boundary behavior.
type StageTimestamps struct {
	Begin  uint64
	Active uint64
	Stall  int
	Ready  uint64
}

// Uop is one dynamic instruction instance flowing through a compute unit's
// pipeline. It is owned by exactly one buffer at a time; moving a uop
// between buffers is a whole-value move, never a shared reference.
type Uop struct {
	ID               uint64
	IDInWavefront    uint64
	IDInComputeUnit  uint64

	Wavefront  WavefrontRef
	WorkGroup  WorkGroupRef
	PoolEntry  Ref
	ComputeUnitID int

	Inst emu.Instruction

	SideEffects SideEffects

	// ScalarAccess and WorkItemAccesses mirror the emulator's per-work-item
	// access descriptors, snapshotted at Fetch time.
	ScalarAccess    WorkItemAccess
	WorkItemAccesses []WorkItemAccess

	CycleStart  uint64
	CycleFinish uint64
	CycleLength uint64

	FetchReady uint64

	Issue   StageTimestamps
	Decode  StageTimestamps
	Read    StageTimestamps
	Execute StageTimestamps
	Write   StageTimestamps

	// GlobalMemoryWitness and LDSWitness are outstanding-access counters
	// incremented at submission by the memory module and decremented
	// asynchronously on completion. Nil until the owning execution unit
	// allocates one.
	GlobalMemoryWitness *Witness
	LDSWitness          *Witness
}

// Witness is the atomic-style counter a memory module increments on
// submission and decrements on completion; a uop's Write stage polls it to
// know its memory operations have drained.
type Witness struct {
	count int
}

// Incr increments the witness. Called by the memory module at submission.
func (w *Witness) Incr() { w.count++ }

// Decr decrements the witness. Called by the memory module on completion.
func (w *Witness) Decr() { w.count-- }

// Zero reports whether the witness has no outstanding accesses.
func (w *Witness) Zero() bool { return w == nil || w.count == 0 }

// NewGlobalMemoryWitness allocates and attaches a fresh global-memory
// witness to the uop, replacing any previous one.
func (u *Uop) NewGlobalMemoryWitness() *Witness {
	u.GlobalMemoryWitness = &Witness{}
	return u.GlobalMemoryWitness
}

// NewLDSWitness allocates and attaches a fresh LDS witness to the uop.
func (u *Uop) NewLDSWitness() *Witness {
	u.LDSWitness = &Witness{}
	return u.LDSWitness
}
