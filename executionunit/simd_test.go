package executionunit_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xianggong/multi2sim/config"
	"github.com/xianggong/multi2sim/emu"
	"github.com/xianggong/multi2sim/executionunit"
	"github.com/xianggong/multi2sim/uop"
	"github.com/xianggong/multi2sim/wavefrontpool"
)

var _ = Describe("SimdUnit", func() {
	var (
		entry            *wavefrontpool.Entry
		decInflightCalls int
		unit             *executionunit.SimdUnit
		u                *uop.Uop
	)

	BeforeEach(func() {
		wf := &wavefrontpool.Wavefront{ID: 1, WorkGroup: &wavefrontpool.WorkGroup{ID: 1}}
		entry = &wavefrontpool.Entry{Wavefront: wf}

		hooks := executionunit.Hooks{
			ResolveEntry: func(uop.Ref) *wavefrontpool.Entry { return entry },
			DecInflight:  func(*wavefrontpool.WorkGroup) { decInflightCalls++ },
		}
		unit = executionunit.NewSimdUnit("cu0.simd0", config.Default().SIMD, 1, hooks)

		u = &uop.Uop{ID: 1, Inst: emu.Instruction{Format: emu.FormatVOP1}}
	})

	It("only accepts vector-ALU instructions", func() {
		Expect(unit.IsValidUop(u)).To(BeTrue())
		other := &uop.Uop{Inst: emu.Instruction{Format: emu.FormatBranch}}
		Expect(unit.IsValidUop(other)).To(BeFalse())
	})

	It("drives a single uop through decode and execute, waking the wavefront early", func() {
		var cycle uint64 = 1
		Expect(unit.CanIssue()).To(BeTrue())
		unit.Issue(cycle, u)
		Expect(unit.NumSimdInstructions).To(Equal(uint64(1)))

		for i := 0; i < 10 && decInflightCalls == 0; i++ {
			cycle++
			unit.Run(cycle)
		}

		Expect(decInflightCalls).To(Equal(1))
		Expect(entry.ReadyNextCycle).To(BeTrue())
		Expect(u.CycleFinish).To(BeNumerically(">", u.CycleStart))
	})

	It("reports idle stage statuses with nothing in flight", func() {
		unit.Run(1)
		for _, s := range unit.Status() {
			Expect(s).To(Equal(executionunit.Idle))
		}
	})
})
