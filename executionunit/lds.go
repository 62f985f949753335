package executionunit

import (
	"github.com/xianggong/multi2sim/config"
	"github.com/xianggong/multi2sim/emu"
	"github.com/xianggong/multi2sim/memory"
	"github.com/xianggong/multi2sim/stats"
	"github.com/xianggong/multi2sim/uop"
)

// LdsUnit executes data-share (local memory) instructions. Its Execute
// stage, called Mem in the data model, walks every active work-item's
// emitted LDS-access records and submits one LDS-module access per record.
type LdsUnit struct {
	*Pipeline
	hooks Hooks
	lds   memory.Cache

	NumLDSInstructions uint64

	submitted map[uint64]bool
}

// NewLdsUnit creates an LdsUnit.
func NewLdsUnit(name string, cfg config.UnitConfig, issueLatency int, hooks Hooks, lds memory.Cache) *LdsUnit {
	p := NewPipeline(name,
		cfg.IssueBufferSize, cfg.DecodeBufferSize, cfg.ReadBufferSize,
		cfg.ExecBufferSize, cfg.WriteBufferSize)
	p.IssueLatency = issueLatency
	p.DecodeLatency = cfg.DecodeLatency
	p.ReadLatency = cfg.ReadLatency
	p.ExecLatency = cfg.ExecLatency
	p.WriteLatency = cfg.WriteLatency
	p.Width = cfg.Width

	return &LdsUnit{Pipeline: p, hooks: hooks, lds: lds, submitted: make(map[uint64]bool)}
}

// IsValidUop implements Unit.
func (l *LdsUnit) IsValidUop(u *uop.Uop) bool {
	return u.Inst.Format == emu.FormatDS
}

// Issue implements Unit.
func (l *LdsUnit) Issue(cycle uint64, u *uop.Uop) {
	l.NumLDSInstructions++
	entry := l.hooks.ResolveEntry(u.PoolEntry)
	if entry != nil {
		entry.LGKMCnt++
	}
	l.Pipeline.Issue(cycle, u)
}

// Run implements Unit.
func (l *LdsUnit) Run(cycle uint64) {
	memory.DrainIfPossible(l.lds)
	l.complete(cycle)
	l.runWrite(cycle, l.Width, l.writeReady)
	l.runMem(cycle)
	l.runRead(cycle, l.Width)
	l.runDecode(cycle, l.Width)
	l.aggregate()
}

// runMem advances the generic Execute/Mem stage, then, for the uop that
// just moved into ExecBuf this cycle, submits one access per emitted
// LDS-access record across every active work-item. The submit must happen
// the cycle the uop enters ExecBuf, not the cycle it becomes eligible to
// leave: writeReady's witness check in runWrite runs before runMem each
// cycle, so gating on Execute.Ready would let a witness-free uop (nothing
// submitted yet) pass straight through to WriteBuf before the access was
// ever issued.
func (l *LdsUnit) runMem(cycle uint64) {
	l.runExec(cycle, l.Width)

	if l.ExecBuf.Size() == 0 {
		return
	}
	head := l.ExecBuf.Peek().(*uop.Uop)
	if head.Execute.Active != cycle || l.submitted[head.ID] {
		return
	}

	w := head.NewLDSWitness()
	for _, wi := range head.WorkItemAccesses {
		for _, a := range wi.LDSAccesses {
			kind := memory.Load
			if a.Kind == uop.AccessStore {
				kind = memory.Store
			}
			l.lds.Access(kind, a.Addr, w)
		}
	}
	l.submitted[head.ID] = true
}

func (l *LdsUnit) writeReady(u *uop.Uop) bool {
	return u.LDSWitness.Zero()
}

func (l *LdsUnit) complete(cycle uint64) {
	for {
		peeked := l.WriteBuf.Peek()
		if peeked == nil {
			return
		}
		u := peeked.(*uop.Uop)
		if cycle < u.Write.Ready || !l.writeReady(u) {
			return
		}
		l.WriteBuf.Pop()
		delete(l.submitted, u.ID)

		entry := l.hooks.ResolveEntry(u.PoolEntry)
		if entry != nil {
			entry.ReadyNextCycle = true
			entry.LGKMCnt--
		}

		wg := resolveWorkGroup(u, entry)
		completeUop(cycle, u, l.Tracker, stats.LDS, entry, func(*uop.Uop) {
			if wg != nil {
				l.hooks.DecInflight(wg)
			}
		})
	}
}
