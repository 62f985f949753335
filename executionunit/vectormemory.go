package executionunit

import (
	"github.com/xianggong/multi2sim/config"
	"github.com/xianggong/multi2sim/emu"
	"github.com/xianggong/multi2sim/memory"
	"github.com/xianggong/multi2sim/stats"
	"github.com/xianggong/multi2sim/uop"
)

// VectorMemoryUnit executes typed and untyped vector-memory buffer
// instructions. Its memory stage retries across cycles until every active
// work-item has been admitted by the vector cache, counting each retried
// cycle as a divergence event.
type VectorMemoryUnit struct {
	*Pipeline
	hooks Hooks
	cache memory.Cache
	mmu   memory.MMU

	NumVectorMemoryInstructions uint64
	NumVmemDivergence           uint64
}

// NewVectorMemoryUnit creates a VectorMemoryUnit.
func NewVectorMemoryUnit(name string, cfg config.UnitConfig, issueLatency int, hooks Hooks, cache memory.Cache, mmu memory.MMU) *VectorMemoryUnit {
	p := NewPipeline(name,
		cfg.IssueBufferSize, cfg.DecodeBufferSize, cfg.ReadBufferSize,
		cfg.ExecBufferSize, cfg.WriteBufferSize)
	p.IssueLatency = issueLatency
	p.DecodeLatency = cfg.DecodeLatency
	p.ReadLatency = cfg.ReadLatency
	p.ExecLatency = cfg.ExecLatency
	p.WriteLatency = cfg.WriteLatency
	p.Width = cfg.Width

	return &VectorMemoryUnit{Pipeline: p, hooks: hooks, cache: cache, mmu: mmu}
}

// IsValidUop implements Unit.
func (v *VectorMemoryUnit) IsValidUop(u *uop.Uop) bool {
	return u.Inst.Format == emu.FormatMTBUF || u.Inst.Format == emu.FormatMUBUF
}

// Issue implements Unit.
func (v *VectorMemoryUnit) Issue(cycle uint64, u *uop.Uop) {
	v.NumVectorMemoryInstructions++
	entry := v.hooks.ResolveEntry(u.PoolEntry)
	if entry != nil {
		entry.ReadyNextCycle = true
		entry.LGKMCnt++
	}
	u.NewGlobalMemoryWitness()
	v.Pipeline.Issue(cycle, u)
}

// Run implements Unit.
func (v *VectorMemoryUnit) Run(cycle uint64) {
	memory.DrainIfPossible(v.cache)
	v.complete(cycle)
	v.runWrite(cycle, v.Width, v.writeReady)
	v.runMem(cycle)
	v.runRead(cycle, v.Width)
	v.runDecode(cycle, v.Width)
	v.aggregate()
}

// accessKind resolves the memory access kind for one work-item from the
// uop's side effects: a write or atomic without global coherency is a
// non-coherent store, a write or atomic with global coherency is a coherent
// store, and anything else is a load.
func (v *VectorMemoryUnit) accessKind(u *uop.Uop) memory.AccessKind {
	if u.SideEffects.VectorMemoryWrite || u.SideEffects.VectorMemoryAtomic {
		if !u.SideEffects.VectorMemoryGlobalCoherency {
			return memory.NCStore
		}
		return memory.Store
	}
	return memory.Load
}

// runMem implements the Memory stage: unlike the generic advanceStage
// machinery, a vmem uop does not leave ReadBuf until every active
// work-item's access has been admitted, so this stage is written directly
// against the buffers rather than reusing advanceStage.
func (v *VectorMemoryUnit) runMem(cycle uint64) {
	if v.ReadBuf.Size() == 0 {
		v.ExecStatus = Idle
		return
	}

	peeked := v.ReadBuf.Peek()
	u := peeked.(*uop.Uop)
	if cycle < u.Read.Ready {
		v.ExecStatus = Active
		return
	}

	if u.Execute.Begin == 0 {
		u.Execute.Begin = u.Read.Ready
	}

	allAdmitted := true
	kind := v.accessKind(u)
	for i := range u.WorkItemAccesses {
		wi := &u.WorkItemAccesses[i]
		if wi.AccessedCache {
			continue
		}
		paddr := v.mmu.TranslateVirtualAddress(0, wi.GlobalAddr)
		if !v.cache.CanAccess(paddr) {
			allAdmitted = false
			continue
		}
		wi.AccessedCache = true
		v.cache.Access(kind, paddr, u.GlobalMemoryWitness)
	}

	if !allAdmitted {
		v.NumVmemDivergence++
		if v.Tracker != nil {
			v.Tracker.IncrVmemDivergence()
		}
		v.ExecStatus = Stall
		u.Execute.Stall++
		return
	}

	if !v.ExecBuf.CanPush() {
		v.ExecStatus = Stall
		u.Execute.Stall++
		return
	}

	v.ReadBuf.Pop()
	u.Execute.Active = cycle
	u.Execute.Ready = cycle + uint64(v.ExecLatency)
	v.ExecBuf.Push(u)
	v.ExecStatus = Active
}

func (v *VectorMemoryUnit) writeReady(u *uop.Uop) bool {
	return u.GlobalMemoryWitness.Zero()
}

func (v *VectorMemoryUnit) complete(cycle uint64) {
	for {
		peeked := v.WriteBuf.Peek()
		if peeked == nil {
			return
		}
		u := peeked.(*uop.Uop)
		if cycle < u.Write.Ready || !v.writeReady(u) {
			return
		}
		v.WriteBuf.Pop()

		entry := v.hooks.ResolveEntry(u.PoolEntry)
		if entry != nil {
			entry.LGKMCnt--
		}

		wg := resolveWorkGroup(u, entry)
		completeUop(cycle, u, v.Tracker, stats.VectorMemory, entry, func(*uop.Uop) {
			if wg != nil {
				v.hooks.DecInflight(wg)
			}
		})
	}
}
