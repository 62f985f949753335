package gpu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/xianggong/multi2sim/config"
	"github.com/xianggong/multi2sim/emu"
	"github.com/xianggong/multi2sim/gpu"
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

func minimalConfig() *config.Config {
	cfg := config.Default()
	cfg.StatisticsLevel = 0
	cfg.NumComputeUnits = 1
	cfg.NumWavefrontPools = 1
	cfg.MaxWorkGroupsPerPool = 2
	cfg.MaxWavefrontsPerPool = 2
	return cfg
}

func trivialWavefront(int, int) emu.Wavefront {
	return emu.NewStub([]emu.ScriptedInstruction{
		{Format: emu.FormatScalarALU, SideEffects: emu.SideEffects{WavefrontLastInstruction: true}},
	}, 1)
}

var _ = Describe("Gpu", func() {
	It("fails to map a kernel whose LDS usage leaves zero work-groups per pool", func() {
		cfg := minimalConfig()
		g := gpu.NewBuilder().WithEngine(&fakeEngine{}).WithFreq(1 * sim.GHz).WithConfig(cfg).Build("gpu0")

		_, err := g.MapNDRange(gpu.KernelLaunch{
			KernelName:     "oversized",
			NumWorkGroups:  1,
			WorkItemsPerWG: 64,
			LDSPerWG:       cfg.LDSSize + 1,
			MakeWavefront:  trivialWavefront,
		})

		Expect(err).To(HaveOccurred())
		var resourceErr *gpu.ResourceError
		Expect(err).To(BeAssignableToTypeOf(resourceErr))
	})

	It("maps as many work-groups as the compute units can hold, leaving the rest pending", func() {
		cfg := minimalConfig()
		g := gpu.NewBuilder().WithEngine(&fakeEngine{}).WithFreq(1 * sim.GHz).WithConfig(cfg).Build("gpu0")

		nd, err := g.MapNDRange(gpu.KernelLaunch{
			KernelName:     "trivial",
			NumWorkGroups:  3,
			WorkItemsPerWG: 64,
			MakeWavefront:  trivialWavefront,
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(nd.ResidentWorkGroups).To(Equal(2))
		Expect(nd.PendingWorkGroups).To(HaveLen(1))
		Expect(g.Available).To(BeEmpty())
	})

	It("caps resident work-groups below the hardware slot count when LDS usage demands it", func() {
		cfg := minimalConfig()
		g := gpu.NewBuilder().WithEngine(&fakeEngine{}).WithFreq(1 * sim.GHz).WithConfig(cfg).Build("gpu0")

		nd, err := g.MapNDRange(gpu.KernelLaunch{
			KernelName:     "lds-heavy",
			NumWorkGroups:  3,
			WorkItemsPerWG: 64,
			LDSPerWG:       40000,
			MakeWavefront:  trivialWavefront,
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(nd.ResidentWorkGroups).To(Equal(1))
		Expect(nd.PendingWorkGroups).To(HaveLen(2))
		Expect(g.ComputeUnits[0].Full()).To(BeTrue())
	})

	It("halts once MaxCycles is reached", func() {
		cfg := minimalConfig()
		cfg.MaxCycles = 3
		g := gpu.NewBuilder().WithEngine(&fakeEngine{}).WithFreq(1 * sim.GHz).WithConfig(cfg).Build("gpu0")

		var last bool
		for i := 0; i < 5; i++ {
			last = g.Tick()
		}

		Expect(g.Cycle()).To(Equal(uint64(3)))
		Expect(last).To(BeFalse())
	})

	It("drives a mapped work-group to completion and frees its slot", func() {
		cfg := minimalConfig()
		g := gpu.NewBuilder().WithEngine(&fakeEngine{}).WithFreq(1 * sim.GHz).WithConfig(cfg).Build("gpu0")

		_, err := g.MapNDRange(gpu.KernelLaunch{
			KernelName:     "trivial",
			NumWorkGroups:  1,
			WorkItemsPerWG: 64,
			MakeWavefront:  trivialWavefront,
		})
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < 50 && g.CompletedWavefronts() == 0; i++ {
			g.Tick()
		}

		Expect(g.CompletedWavefronts()).To(Equal(uint64(1)))
		Expect(g.Available).To(HaveLen(1))
	})
})
