// Package computeunit implements the per-cycle orchestration of one GCN
// compute unit: its wavefront pools, fetch buffers, and the five execution
// units they feed. ComputeUnit.Run is the single entry point a Gpu calls
// once per cycle; everything else in this package exists to serve that
// call.
package computeunit

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/xianggong/multi2sim/config"
	"github.com/xianggong/multi2sim/emu"
	"github.com/xianggong/multi2sim/executionunit"
	"github.com/xianggong/multi2sim/memory"
	"github.com/xianggong/multi2sim/stats"
	"github.com/xianggong/multi2sim/uop"
	"github.com/xianggong/multi2sim/util"
	"github.com/xianggong/multi2sim/wavefrontpool"
)

// ComputeUnit owns N wavefront pools paired one-to-one with N fetch
// buffers and N SIMD lanes, plus one each of the scalar, branch, LDS and
// vector-memory units shared by every pool.
type ComputeUnit struct {
	ID  int
	Cfg *config.Config

	Pools        []*wavefrontpool.Pool
	FetchBuffers []*wavefrontpool.FetchBuffer
	Simds        []*executionunit.SimdUnit

	Scalar *executionunit.ScalarUnit
	Branch *executionunit.BranchUnit
	LDS    *executionunit.LdsUnit
	VMem   *executionunit.VectorMemoryUnit

	// WorkGroups is the compute unit's work-group slot vector, sized to
	// the hardware maximum (MaxWorkGroupsPerPool * NumWavefrontPools) at
	// construction time; a nil entry marks a free slot.
	WorkGroups []*wavefrontpool.WorkGroup

	// workGroupCap is the current admission limit, normally tighter than
	// len(WorkGroups): it is the §4.10 resource calculation's
	// work_groups_per_cu for whichever kernel is dispatching, installed
	// by Gpu.MapNDRange through SetWorkGroupCap. Defaults to
	// len(WorkGroups) so a ComputeUnit built without a Gpu still admits
	// work-groups up to its hardware maximum.
	workGroupCap int

	nextUopID      func() uint64
	ndRangeDrained func(nd *wavefrontpool.NDRange, cycle uint64)

	cycle               uint64
	completedWavefronts uint64

	// workgroupStats and wavefrontStats are nil unless cfg.StatisticsLevel
	// >= 1, matching the source's statistics_level guard around file
	// creation.
	workgroupStats *stats.CSVWriter
	wavefrontStats *stats.CSVWriter
}

// Units bundles the collaborators a ComputeUnit needs but does not own:
// the memory modules each memory-interacting execution unit submits
// accesses to, and the global uop-ID generator shared by the whole Gpu.
type Units struct {
	ScalarCache memory.Cache
	LDS         memory.Cache
	VectorCache memory.Cache
	MMU         memory.MMU
	NextUopID   func() uint64

	// NDRangeDrained is called once an ND-range's last resident work-group
	// unmaps and no pending work-groups remain, to emit the cu_all.ndrange
	// row. Nil disables ND-range statistics.
	NDRangeDrained func(nd *wavefrontpool.NDRange, cycle uint64)
}

// New creates a ComputeUnit with workGroupSlots work-group slots and the
// pool/fetch-buffer/SIMD fan-out described by cfg.
func New(id int, cfg *config.Config, workGroupSlots int, units Units) *ComputeUnit {
	cu := &ComputeUnit{
		ID:             id,
		Cfg:            cfg,
		WorkGroups:     make([]*wavefrontpool.WorkGroup, workGroupSlots),
		workGroupCap:   workGroupSlots,
		nextUopID:      units.NextUopID,
		ndRangeDrained: units.NDRangeDrained,
	}

	hooks := executionunit.Hooks{
		ResolveEntry:      cu.resolveEntry,
		DecInflight:       cu.decInflight,
		ReleaseBarrier:    cu.releaseBarrier,
		WavefrontFinished: cu.wavefrontFinished,
	}

	for i := 0; i < cfg.NumWavefrontPools; i++ {
		cu.Pools = append(cu.Pools, wavefrontpool.NewPool(id, i, cfg.MaxWavefrontsPerPool))
		cu.FetchBuffers = append(cu.FetchBuffers, wavefrontpool.NewFetchBuffer(cfg.FetchBufferSize))
		simd := executionunit.NewSimdUnit(unitName(id, "simd", i), cfg.SIMD, cfg.IssueLatency, hooks)
		simd.Tracker = cu.newTracker("simd" + strconv.Itoa(i))
		cu.Simds = append(cu.Simds, simd)
	}

	cu.Scalar = executionunit.NewScalarUnit(unitName(id, "scalar", 0), cfg.Scalar, cfg.IssueLatency, hooks, units.ScalarCache, units.MMU)
	cu.Scalar.Tracker = cu.newTracker("scalar")
	cu.Branch = executionunit.NewBranchUnit(unitName(id, "branch", 0), cfg.Branch, cfg.IssueLatency, hooks)
	cu.Branch.Tracker = cu.newTracker("branch")
	cu.LDS = executionunit.NewLdsUnit(unitName(id, "lds", 0), cfg.LDS, cfg.IssueLatency, hooks, units.LDS)
	cu.LDS.Tracker = cu.newTracker("lds")
	cu.VMem = executionunit.NewVectorMemoryUnit(unitName(id, "vmem", 0), cfg.VectorMemory, cfg.IssueLatency, hooks, units.VectorCache, units.MMU)
	cu.VMem.Tracker = cu.newTracker("vmem")

	if cfg.StatisticsLevel >= 1 {
		cu.workgroupStats = stats.NewWorkGroupWriter(cu.statPath("workgp"))
		cu.wavefrontStats = stats.NewWavefrontWriter(cu.statPath("waveft"))
	}

	return cu
}

func unitName(cuID int, kind string, lane int) string {
	return "CU" + strconv.Itoa(cuID) + "." + kind + strconv.Itoa(lane)
}

// statPath joins the configured statistics directory with a
// cu_<id>.<suffix>-shaped file name.
func (cu *ComputeUnit) statPath(suffix string) string {
	return filepath.Join(cu.Cfg.StatisticsDir, fmt.Sprintf("cu_%d.%s", cu.ID, suffix))
}

// newTracker creates the named unit's overview/interval tracker, or returns
// nil when statistics are disabled.
func (cu *ComputeUnit) newTracker(unit string) *stats.ExecutionUnitTracker {
	if cu.Cfg.StatisticsLevel < 1 {
		return nil
	}
	prefix := filepath.Join(cu.Cfg.StatisticsDir, fmt.Sprintf("cu_%d_%s", cu.ID, unit))
	return stats.NewExecutionUnitTracker(prefix, cu.Cfg.StatisticsSamplingCycle)
}

// resolveEntry implements executionunit.Hooks.ResolveEntry for this
// compute unit's own pools.
func (cu *ComputeUnit) resolveEntry(ref uop.Ref) *wavefrontpool.Entry {
	if ref.ComputeUnitID != cu.ID {
		return nil
	}
	if ref.PoolID < 0 || ref.PoolID >= len(cu.Pools) {
		return nil
	}
	pool := cu.Pools[ref.PoolID]
	if ref.Slot < 0 || ref.Slot >= len(pool.Entries) {
		return nil
	}
	return pool.Entries[ref.Slot]
}

// decInflight implements executionunit.Hooks.DecInflight. The unmap check
// itself happens once per cycle in Run, after every unit's Complete has
// had a chance to decrement, so that a work-group with multiple
// just-completed uops this cycle is only considered for unmapping once its
// count has actually settled.
func (cu *ComputeUnit) decInflight(wg *wavefrontpool.WorkGroup) {
	wg.InflightInstructions--
}

// wavefrontFinished implements executionunit.Hooks.WavefrontFinished.
func (cu *ComputeUnit) wavefrontFinished() {
	cu.completedWavefronts++
}

// CompletedWavefronts returns the number of wavefronts that have finished
// their program on this compute unit so far.
func (cu *ComputeUnit) CompletedWavefronts() uint64 { return cu.completedWavefronts }

// SetWorkGroupCap installs n as the compute unit's work-group admission
// limit, per §4.10's work_groups_per_cu. A non-positive or over-large n
// clamps to the hardware maximum len(WorkGroups).
func (cu *ComputeUnit) SetWorkGroupCap(n int) {
	if n <= 0 || n > len(cu.WorkGroups) {
		n = len(cu.WorkGroups)
	}
	cu.workGroupCap = n
}

// occupiedWorkGroups counts the compute unit's non-empty work-group slots.
func (cu *ComputeUnit) occupiedWorkGroups() int {
	n := 0
	for _, wg := range cu.WorkGroups {
		if wg != nil {
			n++
		}
	}
	return n
}

// releaseBarrier implements executionunit.Hooks.ReleaseBarrier: clear
// WaitForBarrier on every entry of wg's pool, identified via entry.PoolID.
func (cu *ComputeUnit) releaseBarrier(wg *wavefrontpool.WorkGroup, entry *wavefrontpool.Entry) {
	if entry.PoolID < 0 || entry.PoolID >= len(cu.Pools) {
		return
	}
	cu.Pools[entry.PoolID].ReleaseBarrier(wg)
}

// Run advances the compute unit by exactly one cycle, per §4.7: every
// execution unit's five stages, then Issue from the active fetch-buffer,
// then Fetch, then the post-cycle unmap scan.
func (cu *ComputeUnit) Run(cycle uint64) {
	cu.cycle = cycle

	for _, s := range cu.Simds {
		s.Run(cycle)
	}
	cu.VMem.Run(cycle)
	cu.LDS.Run(cycle)
	cu.Scalar.Run(cycle)
	cu.Branch.Run(cycle)

	active := cu.activeFetchBufferIndex(cycle)
	cu.issue(cycle, active)

	cu.Fetch(cycle)

	cu.unmapFinishedWorkGroups()

	cu.postRunStats(cycle)
}

// postRunStats advances every execution unit's interval dump boundary.
func (cu *ComputeUnit) postRunStats(cycle uint64) {
	for _, s := range cu.Simds {
		if s.Tracker != nil {
			s.Tracker.PostRun(cycle)
		}
	}
	for _, t := range []*stats.ExecutionUnitTracker{cu.Scalar.Tracker, cu.Branch.Tracker, cu.LDS.Tracker, cu.VMem.Tracker} {
		if t != nil {
			t.PostRun(cycle)
		}
	}
}

// FlushStats dumps every execution unit's final overview row and flushes
// every CSV file this compute unit owns. Call once at simulation end.
func (cu *ComputeUnit) FlushStats() {
	for _, s := range cu.Simds {
		if s.Tracker != nil {
			s.Tracker.Flush()
		}
	}
	for _, t := range []*stats.ExecutionUnitTracker{cu.Scalar.Tracker, cu.Branch.Tracker, cu.LDS.Tracker, cu.VMem.Tracker} {
		if t != nil {
			t.Flush()
		}
	}
	if cu.workgroupStats != nil {
		cu.workgroupStats.Flush()
	}
	if cu.wavefrontStats != nil {
		cu.wavefrontStats.Flush()
	}
}

// activeFetchBufferIndex implements the round-robin / fetch-pressure
// active-fetch-buffer selection rule.
func (cu *ComputeUnit) activeFetchBufferIndex(cycle uint64) int {
	n := len(cu.FetchBuffers)
	if n == 0 {
		return -1
	}
	if cu.Cfg.Env.FetchPressureSched {
		best, bestSize := 0, -1
		for i, fb := range cu.FetchBuffers {
			if fb.Size() > bestSize {
				best, bestSize = i, fb.Size()
			}
		}
		return best
	}
	return int(cycle % uint64(n))
}

// issue implements IssueToExecutionUnit for every execution-unit type,
// scanning the active fetch-buffer for the oldest-wavefront-first match
// each unit is eligible to accept.
func (cu *ComputeUnit) issue(cycle uint64, activeFB int) {
	if activeFB < 0 {
		return
	}
	fb := cu.FetchBuffers[activeFB]

	cu.issueToUnit(cycle, fb, cu.Branch)
	cu.issueToUnit(cycle, fb, cu.Scalar)
	for i, lane := 0, 0; i < len(cu.Simds); i++ {
		lane = (i + int(cycle)) % len(cu.Simds)
		cu.issueToUnit(cycle, fb, cu.Simds[lane])
	}
	cu.issueToUnit(cycle, fb, cu.VMem)
	cu.issueToUnit(cycle, fb, cu.LDS)
}

// unitHandle is the minimal surface issueToUnit needs: every concrete unit
// satisfies it.
type unitHandle interface {
	IsValidUop(u *uop.Uop) bool
	CanIssue() bool
	Issue(cycle uint64, u *uop.Uop)
}

func (cu *ComputeUnit) issueToUnit(cycle uint64, fb *wavefrontpool.FetchBuffer, eu unitHandle) {
	issued := 0
	for issued < cu.Cfg.MaxInstructionsIssuedPerType {
		if !eu.CanIssue() {
			return
		}

		idx, best := -1, uint64(0)
		for i, u := range fb.All() {
			if cycle < u.FetchReady {
				continue
			}
			if !eu.IsValidUop(u) {
				continue
			}
			if idx == -1 || u.IDInComputeUnit < best {
				idx, best = i, u.IDInComputeUnit
			}
		}
		if idx == -1 {
			return
		}

		u := fb.Remove(idx)
		eu.Issue(cycle, u)
		issued++
	}
}

// Fetch implements §4.8: walk every wavefront-pool entry, promoting
// ready_next_cycle and invoking the emulator for fetch-eligible entries up
// to fetch_width. With M2S_RANDOM_FETCH set, pool visit order starts from
// the active fetch-buffer index instead of pool 0, so a near-full pool
// isn't always serviced last.
func (cu *ComputeUnit) Fetch(cycle uint64) {
	n := len(cu.Pools)
	start := 0
	if cu.Cfg.Env.RandomFetch && n > 0 {
		start = cu.activeFetchBufferIndex(cycle)
	}

	for i := 0; i < n; i++ {
		poolIdx := (start + i) % n
		pool := cu.Pools[poolIdx]
		fb := cu.FetchBuffers[poolIdx]
		processed := 0

		for _, entry := range pool.Entries {
			if entry.PromoteReadyNextCycle() {
				continue
			}
			if processed >= cu.Cfg.FetchWidth {
				continue
			}
			if !entry.FetchEligible() {
				continue
			}
			if entry.MemWait {
				if entry.LGKMCnt == 0 && entry.VMCnt == 0 && entry.ExpCnt == 0 {
					entry.MemWait = false
				} else {
					continue
				}
			}
			if fb.Full() {
				continue
			}

			cu.fetchOne(cycle, fb, entry)
			processed++
		}
	}
}

func (cu *ComputeUnit) fetchOne(cycle uint64, fb *wavefrontpool.FetchBuffer, entry *wavefrontpool.Entry) {
	wf := entry.Wavefront
	wf.Emu.Execute()
	entry.Ready = false

	wf.PC = wf.Emu.PC()
	wf.Finished = wf.Emu.Finished()

	inst := wf.Emu.Inst()
	side := uop.FromEmu(wf.Emu.SideEffects())

	u := &uop.Uop{
		ID:              cu.nextUopID(),
		IDInWavefront:   wf.NextUopIndex,
		IDInComputeUnit: uint64(wf.IDInComputeUnit),
		Wavefront:       wavefrontRefOf(wf),
		WorkGroup:       workGroupRefOf(wf.WorkGroup),
		PoolEntry:       entry.Ref(),
		ComputeUnitID:   cu.ID,
		Inst:            inst,
		SideEffects:     side,
		CycleStart:      cycle,
		FetchReady:      cycle + uint64(cu.Cfg.FetchLatency),
	}

	scalar := wf.Emu.ScalarWorkItemAccess()
	if scalar != nil {
		u.ScalarAccess = uop.WorkItemAccess{GlobalAddr: scalar.GlobalAddr, GlobalSize: scalar.GlobalSize}
	}
	for _, wi := range wf.Emu.ActiveWorkItemAccesses() {
		u.WorkItemAccesses = append(u.WorkItemAccesses, convertAccess(wi))
	}

	wf.NextUopIndex++

	fb.Push(u)
	wf.WorkGroup.InflightInstructions++
	util.Trace("Fetch", "cu", cu.ID, "uop", u.ID, "cycle", cycle)
}

func wavefrontRefOf(wf *wavefrontpool.Wavefront) uop.WavefrontRef {
	wg := wf.WorkGroup
	for i, sibling := range wg.Wavefronts {
		if sibling == wf {
			return uop.WavefrontRef{WorkGroup: workGroupRefOf(wg), Index: i}
		}
	}
	return uop.WavefrontRef{WorkGroup: workGroupRefOf(wg)}
}

func workGroupRefOf(wg *wavefrontpool.WorkGroup) uop.WorkGroupRef {
	return uop.WorkGroupRef{ComputeUnitID: wg.ComputeUnitID, Slot: wg.IDInComputeUnit}
}

func convertAccess(wi *emu.WorkItemAccess) uop.WorkItemAccess {
	out := uop.WorkItemAccess{
		GlobalAddr: wi.GlobalAddr,
		GlobalSize: wi.GlobalSize,
	}
	for _, a := range wi.LDSAccesses {
		kind := uop.AccessLoad
		if a.Type == emu.Write {
			kind = uop.AccessStore
		}
		out.LDSAccesses = append(out.LDSAccesses, uop.LDSAccess{Kind: kind, Addr: a.Addr, Size: a.Size})
	}
	return out
}

// unmapFinishedWorkGroups scans every resident work-group and unmaps any
// whose timing has finished and whose in-flight count has drained to zero,
// per the invariant that a work-group is unmapped exactly once.
func (cu *ComputeUnit) unmapFinishedWorkGroups() {
	for slot, wg := range cu.WorkGroups {
		if wg == nil {
			continue
		}
		if wg.FinishedTiming && wg.InflightInstructions == 0 {
			cu.UnmapWorkGroup(slot, cu.cycle)
		}
	}
}
