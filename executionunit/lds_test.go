package executionunit_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/xianggong/multi2sim/config"
	"github.com/xianggong/multi2sim/emu"
	"github.com/xianggong/multi2sim/executionunit"
	"github.com/xianggong/multi2sim/memory"
	"github.com/xianggong/multi2sim/uop"
	"github.com/xianggong/multi2sim/wavefrontpool"
)

// recordingCache wraps a FixedLatencyCache, counting Access and CanAccess
// calls and tracking the witness outstanding in between, so a test can tell
// a real submission from a silently-skipped one.
type recordingCache struct {
	*memory.FixedLatencyCache
	accesses       int
	canAccessCalls int
	sawOutstanding bool
}

func (c *recordingCache) Access(kind memory.AccessKind, physAddr uint64, witness memory.Witness) {
	c.accesses++
	c.FixedLatencyCache.Access(kind, physAddr, witness)
}

func (c *recordingCache) CanAccess(physAddr uint64) bool {
	c.canAccessCalls++
	return c.FixedLatencyCache.CanAccess(physAddr)
}

var _ = Describe("LdsUnit", func() {
	It("submits its access to the LDS module and completes once the witness drains, never calling CanAccess", func() {
		engine := &fakeEngine{}
		lds := &recordingCache{FixedLatencyCache: memory.NewFixedLatencyCache(engine, 1*sim.GHz, 2, 4)}

		wf := &wavefrontpool.Wavefront{ID: 1, WorkGroup: &wavefrontpool.WorkGroup{ID: 1}}
		entry := &wavefrontpool.Entry{Wavefront: wf}
		hooks := executionunit.Hooks{
			ResolveEntry: func(uop.Ref) *wavefrontpool.Entry { return entry },
			DecInflight:  func(*wavefrontpool.WorkGroup) {},
		}

		unit := executionunit.NewLdsUnit("cu0.lds", config.Default().LDS, 1, hooks, lds)
		u := &uop.Uop{
			ID:   1,
			Inst: emu.Instruction{Format: emu.FormatDS},
			WorkItemAccesses: []uop.WorkItemAccess{
				{LDSAccesses: []uop.LDSAccess{{Kind: uop.AccessLoad, Addr: 0x40, Size: 4}}},
			},
		}

		var cycle uint64 = 1
		unit.Issue(cycle, u)
		Expect(entry.LGKMCnt).To(Equal(1))

		for i := 0; i < 20 && !entry.ReadyNextCycle; i++ {
			cycle++
			engine.now = (1 * sim.GHz).NCyclesLater(int(cycle), 0)
			unit.Run(cycle)
			if lds.accesses > 0 && !u.LDSWitness.Zero() {
				lds.sawOutstanding = true
			}
		}

		Expect(lds.accesses).To(Equal(1))
		Expect(lds.canAccessCalls).To(Equal(0))
		Expect(lds.sawOutstanding).To(BeTrue())
		Expect(entry.ReadyNextCycle).To(BeTrue())
		Expect(entry.LGKMCnt).To(Equal(0))
	})
})
