// Package wavefrontpool holds the resident-wavefront bookkeeping that gates
// every fetch and complete: ND-ranges, work-groups, wavefronts, the
// readiness state of each wavefront slot, and the fetch buffer that queues
// uops between Fetch and Issue.
package wavefrontpool

import (
	"github.com/xianggong/multi2sim/emu"
	"github.com/xianggong/multi2sim/stats"
	"github.com/xianggong/multi2sim/uop"
)

// NDRange is a dispatched kernel launch.
type NDRange struct {
	ID         uint64
	KernelName string

	LocalSize    int
	VGPRPerItem  int
	SGPRPerWave  int
	LocalMemBytes int
	AddressSpace uint64

	// SecondaryEntryPC is non-zero only for a TwinKernel-style dispatch
	// that mixes two program-counter entry points across a work-group's
	// wavefronts, per the configured mix policy. Zero disables the
	// policy entirely.
	SecondaryEntryPC uint64

	// PendingWorkGroups holds work-groups created by dispatch that have
	// not yet been mapped to a compute unit.
	PendingWorkGroups []*WorkGroup

	// Mapped, MappedCycle, UnmappedCycle, ResidentWorkGroups, LenUop,
	// ClkUopBegin and ClkUopEnd track this ND-range's lifecycle for the
	// cu_all.ndrange row: Mapped/MappedCycle record the first work-group
	// mapped, ResidentWorkGroups counts work-groups currently mapped to a
	// compute unit, and the remaining fields accumulate across every
	// work-group as it unmaps.
	Mapped              bool
	MappedCycle         uint64
	UnmappedCycle       uint64
	ResidentWorkGroups  int
	LenUop              uint64
	ClkUopBegin         uint64
	ClkUopEnd           uint64
}

// WorkGroup is a unit of work-items co-resident on one compute unit.
type WorkGroup struct {
	ID              uint64
	ComputeUnitID   int
	IDInComputeUnit int

	NDRange *NDRange

	Wavefronts []*Wavefront

	InflightInstructions     int
	WavefrontsCompletedTiming int
	FinishedTiming           bool

	MappedCycle   uint64
	UnmappedCycle uint64

	// Stats accumulates the per-stage stall breakdown of every uop this
	// work-group's wavefronts complete, for the cu_<i>.workgp row.
	Stats *stats.CycleStats
}

// AllWavefrontsFinished reports whether every wavefront in the group has
// completed its program, independent of InflightInstructions.
func (wg *WorkGroup) AllWavefrontsFinished() bool {
	return wg.WavefrontsCompletedTiming >= len(wg.Wavefronts)
}

// Wavefront is a fixed-size batch of work-items executing in lock-step,
// backed by an emu.Wavefront that supplies functional-emulation results.
type Wavefront struct {
	ID              uint64
	IDInComputeUnit int

	WorkGroup *WorkGroup

	Emu emu.Wavefront

	PC       uint64
	Finished bool

	// PoolRef locates the wavefront-pool entry currently holding this
	// wavefront, set by Pool.MapWavefronts. It lets code that only has a
	// *Wavefront (e.g. a sibling check during barrier release) find the
	// entry without a back-pointer.
	PoolRef uop.Ref

	// NextUopIndex is the next id_in_wavefront to assign, incremented
	// once per Fetch.
	NextUopIndex uint64

	// Stats accumulates the per-stage stall breakdown of every uop this
	// wavefront completes, for the cu_<i>.waveft row.
	Stats *stats.CycleStats
}

// Entry is a slot in one wavefront pool: the readiness bits and memory
// counters described by the data model, plus a non-owning pointer back to
// the wavefront it currently holds. A nil Wavefront means the slot is
// empty.
type Entry struct {
	ComputeUnitID int
	PoolID        int
	Slot          int

	Wavefront *Wavefront

	Ready            bool
	ReadyNextCycle   bool
	WavefrontFinished bool
	WaitForBarrier   bool
	MemWait          bool

	LGKMCnt int
	VMCnt   int
	ExpCnt  int
}

// Ref returns the uop.Ref that locates this entry.
func (e *Entry) Ref() uop.Ref {
	return uop.Ref{ComputeUnitID: e.ComputeUnitID, PoolID: e.PoolID, Slot: e.Slot}
}

// FetchEligible implements the invariant from the data model: a wavefront
// may be fetched iff it is ready, not finished, not waiting at a barrier,
// and not blocked on outstanding memory accesses.
func (e *Entry) FetchEligible() bool {
	if !e.Ready || e.WavefrontFinished || e.WaitForBarrier {
		return false
	}
	if e.MemWait && (e.LGKMCnt > 0 || e.VMCnt > 0 || e.ExpCnt > 0) {
		return false
	}
	return true
}

// PromoteReadyNextCycle applies the ready_next_cycle -> ready transition.
// Per the fetch algorithm this does not count against fetch width.
func (e *Entry) PromoteReadyNextCycle() bool {
	if !e.ReadyNextCycle {
		return false
	}
	e.Ready = true
	e.ReadyNextCycle = false
	return true
}

// Pool holds a fixed number of entries and is paired one-to-one with a
// FetchBuffer and a SIMD lane.
type Pool struct {
	ComputeUnitID int
	PoolID        int

	Entries []*Entry
}

// NewPool creates a pool of size entries, all initially empty.
func NewPool(cuID, poolID, size int) *Pool {
	p := &Pool{ComputeUnitID: cuID, PoolID: poolID}
	p.Entries = make([]*Entry, size)
	for i := range p.Entries {
		p.Entries[i] = &Entry{ComputeUnitID: cuID, PoolID: poolID, Slot: i}
	}
	return p
}

// MapWavefronts assigns the work-group's wavefronts to free entries in this
// pool, in order, starting from entry 0. It panics if the pool does not
// have enough free entries; the caller (ComputeUnit.MapWorkGroup) is
// responsible for having already verified capacity via Gpu.MapNDRange.
func (p *Pool) MapWavefronts(wg *WorkGroup) []*Entry {
	mapped := make([]*Entry, 0, len(wg.Wavefronts))
	free := 0
	for _, wf := range wg.Wavefronts {
		for free < len(p.Entries) && p.Entries[free].Wavefront != nil {
			free++
		}
		if free >= len(p.Entries) {
			panic("wavefrontpool: no free entry to map wavefront")
		}
		e := p.Entries[free]
		e.Wavefront = wf
		wf.PoolRef = e.Ref()
		if wf.Stats == nil {
			wf.Stats = stats.NewCycleStats()
		}
		e.Ready = true
		e.ReadyNextCycle = false
		e.WavefrontFinished = false
		e.WaitForBarrier = false
		e.MemWait = false
		e.LGKMCnt = 0
		e.VMCnt = 0
		e.ExpCnt = 0
		mapped = append(mapped, e)
		free++
	}
	return mapped
}

// UnmapWavefronts clears every entry belonging to wg.
func (p *Pool) UnmapWavefronts(wg *WorkGroup) {
	for _, e := range p.Entries {
		if e.Wavefront != nil && e.Wavefront.WorkGroup == wg {
			*e = Entry{ComputeUnitID: e.ComputeUnitID, PoolID: e.PoolID, Slot: e.Slot}
		}
	}
}

// ReleaseBarrier clears WaitForBarrier on every entry in the pool that
// belongs to wg, used once every wavefront in the group has reached the
// barrier.
func (p *Pool) ReleaseBarrier(wg *WorkGroup) {
	for _, e := range p.Entries {
		if e.Wavefront != nil && e.Wavefront.WorkGroup == wg {
			e.WaitForBarrier = false
		}
	}
}

// FetchBuffer is the queue between Fetch and Issue. Unlike the strictly
// FIFO stage buffers inside an execution unit, Issue may remove any uop
// that satisfies an execution unit's eligibility predicate, not just the
// oldest, so FetchBuffer exposes indexed removal rather than the plain
// sim.Buffer FIFO contract.
type FetchBuffer struct {
	capacity int
	uops     []*uop.Uop
}

// NewFetchBuffer creates an empty FetchBuffer with the given capacity.
func NewFetchBuffer(capacity int) *FetchBuffer {
	return &FetchBuffer{capacity: capacity}
}

// Capacity returns the buffer's capacity.
func (fb *FetchBuffer) Capacity() int { return fb.capacity }

// Size returns the number of uops currently queued.
func (fb *FetchBuffer) Size() int { return len(fb.uops) }

// Full reports whether the buffer has no room for another uop.
func (fb *FetchBuffer) Full() bool { return len(fb.uops) >= fb.capacity }

// Push appends a freshly fetched uop. Callers must check Full first.
func (fb *FetchBuffer) Push(u *uop.Uop) {
	fb.uops = append(fb.uops, u)
}

// All returns the queued uops in fetch order (oldest first), for scanning
// during issue arbitration. The returned slice must not be mutated.
func (fb *FetchBuffer) All() []*uop.Uop {
	return fb.uops
}

// Remove deletes the uop at index i, preserving relative order of the
// remaining uops.
func (fb *FetchBuffer) Remove(i int) *uop.Uop {
	u := fb.uops[i]
	fb.uops = append(fb.uops[:i], fb.uops[i+1:]...)
	return u
}
