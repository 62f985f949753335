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

// fakeEngine is a minimal sim.Engine whose CurrentTime is set directly,
// mirroring the memory package's own test double.
type fakeEngine struct {
	sim.HookableBase
	now sim.VTimeInSec
}

func (e *fakeEngine) CurrentTime() sim.VTimeInSec                          { return e.now }
func (e *fakeEngine) Schedule(sim.Event)                                   {}
func (e *fakeEngine) Run() error                                           { return nil }
func (e *fakeEngine) Pause()                                               {}
func (e *fakeEngine) Continue()                                            {}
func (e *fakeEngine) Finished()                                            {}

var _ = Describe("ScalarUnit", func() {
	It("submits its load to the scalar cache and completes once the witness drains, without ever calling CanAccess", func() {
		engine := &fakeEngine{}
		cache := &recordingCache{FixedLatencyCache: memory.NewFixedLatencyCache(engine, 1*sim.GHz, 2, 4)}

		wf := &wavefrontpool.Wavefront{ID: 1, WorkGroup: &wavefrontpool.WorkGroup{ID: 1}}
		entry := &wavefrontpool.Entry{Wavefront: wf}
		hooks := executionunit.Hooks{
			ResolveEntry: func(uop.Ref) *wavefrontpool.Entry { return entry },
			DecInflight:  func(*wavefrontpool.WorkGroup) {},
		}

		unit := executionunit.NewScalarUnit("cu0.scalar", config.Default().Scalar, 1, hooks, cache, memory.IdentityMMU{})
		u := &uop.Uop{ID: 1, Inst: emu.Instruction{Format: emu.FormatScalarMemoryRead}}

		var cycle uint64 = 1
		unit.Issue(cycle, u)
		Expect(entry.ReadyNextCycle).To(BeTrue())
		Expect(entry.LGKMCnt).To(Equal(1))

		for i := 0; i < 20 && entry.LGKMCnt > 0; i++ {
			cycle++
			engine.now = (1 * sim.GHz).NCyclesLater(int(cycle), 0)
			unit.Run(cycle)
			if cache.accesses > 0 && !u.GlobalMemoryWitness.Zero() {
				cache.sawOutstanding = true
			}
		}

		Expect(cache.accesses).To(Equal(1))
		Expect(cache.canAccessCalls).To(Equal(0))
		Expect(cache.sawOutstanding).To(BeTrue())
		Expect(entry.LGKMCnt).To(Equal(0))
		Expect(unit.NumSMEM).To(Equal(uint64(1)))
	})

	It("only accepts scalar-ALU and SMEM formats", func() {
		hooks := executionunit.Hooks{
			ResolveEntry: func(uop.Ref) *wavefrontpool.Entry { return nil },
			DecInflight:  func(*wavefrontpool.WorkGroup) {},
		}
		unit := executionunit.NewScalarUnit("cu0.scalar", config.Default().Scalar, 1, hooks, memory.NewFixedLatencyCache(&fakeEngine{}, sim.GHz, 1, 1), memory.IdentityMMU{})

		Expect(unit.IsValidUop(&uop.Uop{Inst: emu.Instruction{Format: emu.FormatScalarALU}})).To(BeTrue())
		Expect(unit.IsValidUop(&uop.Uop{Inst: emu.Instruction{Format: emu.FormatScalarMemoryRead}})).To(BeTrue())
		Expect(unit.IsValidUop(&uop.Uop{Inst: emu.Instruction{Format: emu.FormatBranch}})).To(BeFalse())
	})
})
