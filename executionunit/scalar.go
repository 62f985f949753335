package executionunit

import (
	"github.com/xianggong/multi2sim/config"
	"github.com/xianggong/multi2sim/emu"
	"github.com/xianggong/multi2sim/memory"
	"github.com/xianggong/multi2sim/stats"
	"github.com/xianggong/multi2sim/uop"
	"github.com/xianggong/multi2sim/wavefrontpool"
)

// ScalarUnit executes scalar-ALU and scalar-memory-read instructions. ALU
// uops hold the wavefront not-ready until Complete; SMEM uops release the
// wavefront at Issue and complete asynchronously once the scalar cache's
// witness drains.
type ScalarUnit struct {
	*Pipeline
	hooks Hooks
	cache memory.Cache
	mmu   memory.MMU

	NumScalarALU uint64
	NumSMEM      uint64

	submitted map[uint64]bool
}

// NewScalarUnit creates a ScalarUnit.
func NewScalarUnit(name string, cfg config.UnitConfig, issueLatency int, hooks Hooks, cache memory.Cache, mmu memory.MMU) *ScalarUnit {
	p := NewPipeline(name,
		cfg.IssueBufferSize, cfg.DecodeBufferSize, cfg.ReadBufferSize,
		cfg.ExecBufferSize, cfg.WriteBufferSize)
	p.IssueLatency = issueLatency
	p.DecodeLatency = cfg.DecodeLatency
	p.ReadLatency = cfg.ReadLatency
	p.ExecLatency = cfg.ExecLatency
	p.WriteLatency = cfg.WriteLatency
	p.Width = cfg.Width

	return &ScalarUnit{Pipeline: p, hooks: hooks, cache: cache, mmu: mmu, submitted: make(map[uint64]bool)}
}

func (s *ScalarUnit) isSMEM(u *uop.Uop) bool {
	return u.Inst.Format == emu.FormatScalarMemoryRead
}

// IsValidUop implements Unit.
func (s *ScalarUnit) IsValidUop(u *uop.Uop) bool {
	return u.Inst.Format == emu.FormatScalarALU || s.isSMEM(u)
}

// Issue implements Unit.
func (s *ScalarUnit) Issue(cycle uint64, u *uop.Uop) {
	entry := s.hooks.ResolveEntry(u.PoolEntry)

	if s.isSMEM(u) {
		s.NumSMEM++
		if entry != nil {
			entry.ReadyNextCycle = true
			entry.LGKMCnt++
		}
	} else {
		s.NumScalarALU++
	}

	s.Pipeline.Issue(cycle, u)
}

// Run implements Unit.
func (s *ScalarUnit) Run(cycle uint64) {
	memory.DrainIfPossible(s.cache)
	s.complete(cycle)
	s.runWrite(cycle, s.Width, s.writeReady)
	s.runExecSMEM(cycle)
	s.runRead(cycle, s.Width)
	s.runDecode(cycle, s.Width)
	s.aggregate()
}

// runExecSMEM advances the generic Execute stage, then, for the SMEM uop
// that just moved into ExecBuf this cycle, submits its load to the scalar
// cache. The submit must happen the cycle the uop enters ExecBuf, not the
// cycle it becomes eligible to leave: writeReady's witness check in
// runWrite runs before runExecSMEM each cycle, so gating on Execute.Ready
// would let a witness-free uop (nothing submitted yet) pass straight
// through to WriteBuf before the access was ever issued.
func (s *ScalarUnit) runExecSMEM(cycle uint64) {
	s.runExec(cycle, s.Width)

	if s.ExecBuf.Size() == 0 {
		return
	}
	head := s.ExecBuf.Peek().(*uop.Uop)
	if !s.isSMEM(head) || head.Execute.Active != cycle || s.submitted[head.ID] {
		return
	}

	paddr := s.mmu.TranslateVirtualAddress(0, head.ScalarAccess.GlobalAddr)
	w := head.NewGlobalMemoryWitness()
	s.cache.Access(memory.Load, paddr, w)
	s.submitted[head.ID] = true
}

// writeReady is the extra Write-stage readiness predicate for memory
// units: an SMEM uop may advance to Write only once its scalar-cache
// witness has drained.
func (s *ScalarUnit) writeReady(u *uop.Uop) bool {
	if !s.isSMEM(u) {
		return true
	}
	return u.GlobalMemoryWitness.Zero()
}

// complete drains the write buffer, applying ALU or SMEM completion and the
// three shared scalar-completion flags.
func (s *ScalarUnit) complete(cycle uint64) {
	for {
		peeked := s.WriteBuf.Peek()
		if peeked == nil {
			return
		}
		u := peeked.(*uop.Uop)
		if cycle < u.Write.Ready || !s.writeReady(u) {
			return
		}

		entry := s.hooks.ResolveEntry(u.PoolEntry)

		if s.isSMEM(u) {
			if entry != nil {
				entry.LGKMCnt--
			}
			delete(s.submitted, u.ID)
		} else {
			// ALU: if this is the wavefront's last instruction, the
			// work-group must drain its memory ops before the wavefront
			// may finish.
			if u.SideEffects.WavefrontLastInstruction && entry != nil {
				if entry.LGKMCnt > 0 || entry.VMCnt > 0 || entry.ExpCnt > 0 {
					return
				}
			}
			if entry != nil {
				entry.Ready = true
			}
		}

		s.WriteBuf.Pop()
		s.applyScalarCompletionFlags(u, entry)

		wg := resolveWorkGroup(u, entry)
		completeUop(cycle, u, s.Tracker, stats.Scalar, entry, func(*uop.Uop) {
			if wg != nil {
				s.hooks.DecInflight(wg)
			}
		})
	}
}

// applyScalarCompletionFlags implements the memory_wait / at_barrier /
// wavefront_last_instruction handling described for ScalarUnit.Complete.
func (s *ScalarUnit) applyScalarCompletionFlags(u *uop.Uop, entry *wavefrontpool.Entry) {
	if entry == nil {
		return
	}

	if u.SideEffects.MemoryWait {
		entry.MemWait = true
	}

	if u.SideEffects.BarrierInstruction {
		entry.WaitForBarrier = true
		wg := resolveWorkGroup(u, entry)
		if wg != nil && s.allWavefrontsWaitingAtBarrier(wg) {
			s.hooks.ReleaseBarrier(wg, entry)
		}
	}

	if u.SideEffects.WavefrontLastInstruction {
		entry.WavefrontFinished = true
		wg := resolveWorkGroup(u, entry)
		if wg != nil {
			wg.WavefrontsCompletedTiming++
			if wg.WavefrontsCompletedTiming >= len(wg.Wavefronts) {
				wg.FinishedTiming = true
			}
		}
		if s.hooks.WavefrontFinished != nil {
			s.hooks.WavefrontFinished()
		}
	}
}

// allWavefrontsWaitingAtBarrier reports whether every unfinished wavefront
// in wg is currently waiting at a barrier, resolving each sibling's entry
// through the same Hooks.ResolveEntry every unit uses.
func (s *ScalarUnit) allWavefrontsWaitingAtBarrier(wg *wavefrontpool.WorkGroup) bool {
	for _, wf := range wg.Wavefronts {
		if wf == nil {
			continue
		}
		e := s.hooks.ResolveEntry(wf.PoolRef)
		if e == nil {
			continue
		}
		if e.WavefrontFinished {
			continue
		}
		if !e.WaitForBarrier {
			return false
		}
	}
	return true
}
