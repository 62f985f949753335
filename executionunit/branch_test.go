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

var _ = Describe("BranchUnit", func() {
	var (
		entry           *wavefrontpool.Entry
		decInflightCalls int
		unit            *executionunit.BranchUnit
		u               *uop.Uop
	)

	BeforeEach(func() {
		wf := &wavefrontpool.Wavefront{ID: 1, WorkGroup: &wavefrontpool.WorkGroup{ID: 1}}
		entry = &wavefrontpool.Entry{Wavefront: wf}

		hooks := executionunit.Hooks{
			ResolveEntry: func(uop.Ref) *wavefrontpool.Entry { return entry },
			DecInflight:  func(*wavefrontpool.WorkGroup) { decInflightCalls++ },
		}
		cfg := config.Default().Branch
		unit = executionunit.NewBranchUnit("cu0.branch", cfg, 1, hooks)

		u = &uop.Uop{ID: 1, Inst: emu.Instruction{Format: emu.FormatBranch}}
	})

	It("only accepts branch-formatted instructions", func() {
		Expect(unit.IsValidUop(u)).To(BeTrue())
		other := &uop.Uop{Inst: emu.Instruction{Format: emu.FormatScalarALU}}
		Expect(unit.IsValidUop(other)).To(BeFalse())
	})

	It("drives a single uop end to end across the five stages", func() {
		entry.Ready = false

		var cycle uint64 = 1
		Expect(unit.CanIssue()).To(BeTrue())
		unit.Issue(cycle, u)
		Expect(unit.NumBranchInstructions).To(Equal(uint64(1)))

		for i := 0; i < 10 && !entry.Ready; i++ {
			cycle++
			unit.Run(cycle)
		}

		Expect(entry.Ready).To(BeTrue())
		Expect(decInflightCalls).To(Equal(1))
		Expect(u.CycleFinish).To(BeNumerically(">", u.CycleStart))
	})

	It("reports idle stage statuses with nothing in flight", func() {
		unit.Run(1)
		for _, s := range unit.Status() {
			Expect(s).To(Equal(executionunit.Idle))
		}
	})
})
