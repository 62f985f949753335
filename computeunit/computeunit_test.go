package computeunit_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/xianggong/multi2sim/computeunit"
	"github.com/xianggong/multi2sim/config"
	"github.com/xianggong/multi2sim/emu"
	"github.com/xianggong/multi2sim/memory"
	"github.com/xianggong/multi2sim/stats"
	"github.com/xianggong/multi2sim/wavefrontpool"
)

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

func newTestComputeUnit(statisticsLevel int) (*computeunit.ComputeUnit, *config.Config) {
	cfg := config.Default()
	cfg.StatisticsLevel = statisticsLevel
	cfg.NumWavefrontPools = 1

	cache := memory.NewFixedLatencyCache(&fakeEngine{}, sim.GHz, 1, 4)
	nextID := uint64(1)
	units := computeunit.Units{
		ScalarCache: cache,
		LDS:         cache,
		VectorCache: cache,
		MMU:         memory.IdentityMMU{},
		NextUopID:   func() uint64 { id := nextID; nextID++; return id },
	}
	return computeunit.New(0, cfg, 1, units), cfg
}

func oneInstructionWorkGroup(id uint64) *wavefrontpool.WorkGroup {
	wg := &wavefrontpool.WorkGroup{ID: id, Stats: stats.NewCycleStats()}
	stub := emu.NewStub([]emu.ScriptedInstruction{
		{Format: emu.FormatScalarALU, SideEffects: emu.SideEffects{WavefrontLastInstruction: true}},
	}, 1)
	wf := &wavefrontpool.Wavefront{ID: id, WorkGroup: wg, Emu: stub}
	wg.Wavefronts = []*wavefrontpool.Wavefront{wf}
	return wg
}

var _ = Describe("ComputeUnit", func() {
	It("maps, runs, completes and unmaps a single-instruction work-group", func() {
		cu, _ := newTestComputeUnit(0)
		wg := oneInstructionWorkGroup(1)

		Expect(cu.MapWorkGroup(wg, 1, 0)).To(BeTrue())
		Expect(cu.Full()).To(BeTrue())

		var cycle uint64
		for i := 0; i < 50 && cu.CompletedWavefronts() == 0; i++ {
			cycle++
			cu.Run(cycle)
		}

		Expect(cu.CompletedWavefronts()).To(Equal(uint64(1)))
		Expect(wg.FinishedTiming).To(BeTrue())
		Expect(wg.InflightInstructions).To(Equal(0))
		Expect(cu.WorkGroups[0]).To(BeNil())
	})

	It("refuses to map a work-group once every slot is occupied", func() {
		cu, _ := newTestComputeUnit(0)
		first := oneInstructionWorkGroup(1)
		second := oneInstructionWorkGroup(2)

		Expect(cu.MapWorkGroup(first, 1, 0)).To(BeTrue())
		Expect(cu.MapWorkGroup(second, 1, 0)).To(BeFalse())
	})

	It("builds no CSV writers when statistics are disabled", func() {
		Expect(func() { newTestComputeUnit(0) }).NotTo(Panic())

		cu, _ := newTestComputeUnit(0)
		Expect(cu.Scalar.Tracker).To(BeNil())
		Expect(cu.VMem.Tracker).To(BeNil())
	})
})
