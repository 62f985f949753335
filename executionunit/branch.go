package executionunit

import (
	"github.com/xianggong/multi2sim/config"
	"github.com/xianggong/multi2sim/emu"
	"github.com/xianggong/multi2sim/stats"
	"github.com/xianggong/multi2sim/uop"
)

// BranchUnit executes scalar-program branch instructions. It has no memory
// interaction: Complete simply frees the wavefront to fetch again.
type BranchUnit struct {
	*Pipeline
	hooks Hooks

	NumBranchInstructions uint64
}

// NewBranchUnit creates a BranchUnit from its per-unit configuration.
func NewBranchUnit(name string, cfg config.UnitConfig, issueLatency int, hooks Hooks) *BranchUnit {
	p := NewPipeline(name,
		cfg.IssueBufferSize, cfg.DecodeBufferSize, cfg.ReadBufferSize,
		cfg.ExecBufferSize, cfg.WriteBufferSize)
	p.IssueLatency = issueLatency
	p.DecodeLatency = cfg.DecodeLatency
	p.ReadLatency = cfg.ReadLatency
	p.ExecLatency = cfg.ExecLatency
	p.WriteLatency = cfg.WriteLatency
	p.Width = cfg.Width

	return &BranchUnit{Pipeline: p, hooks: hooks}
}

// IsValidUop implements Unit.
func (b *BranchUnit) IsValidUop(u *uop.Uop) bool {
	return u.Inst.Format == emu.FormatBranch
}

// Issue implements Unit, adding the branch-counter side effect.
func (b *BranchUnit) Issue(cycle uint64, u *uop.Uop) {
	b.NumBranchInstructions++
	b.Pipeline.Issue(cycle, u)
}

// Run implements Unit.
func (b *BranchUnit) Run(cycle uint64) {
	b.complete(cycle)
	b.runWrite(cycle, b.Width, nil)
	b.runExec(cycle, b.Width)
	b.runRead(cycle, b.Width)
	b.runDecode(cycle, b.Width)
	b.aggregate()
}

// complete drains the write buffer: every ready uop frees its wavefront to
// fetch again.
func (b *BranchUnit) complete(cycle uint64) {
	for {
		peeked := b.WriteBuf.Peek()
		if peeked == nil {
			return
		}
		u := peeked.(*uop.Uop)
		if cycle < u.Write.Ready {
			return
		}
		b.WriteBuf.Pop()

		entry := b.hooks.ResolveEntry(u.PoolEntry)
		if entry != nil {
			entry.Ready = true
		}

		wg := resolveWorkGroup(u, entry)
		completeUop(cycle, u, b.Tracker, stats.Branch, entry, func(*uop.Uop) {
			if wg != nil {
				b.hooks.DecInflight(wg)
			}
		})
	}
}
