package gpu

import (
	"math"

	"github.com/xianggong/multi2sim/config"
	"github.com/xianggong/multi2sim/emu"
	"github.com/xianggong/multi2sim/stats"
	"github.com/xianggong/multi2sim/wavefrontpool"
)

// ResourceLimits is the result of the §4.10 resource calculation: how many
// work-groups one wavefront pool, and hence one compute unit, can hold
// given the kernel's per-work-group resource usage.
type ResourceLimits struct {
	WavefrontsPerWorkGroup int
	LimitByMaxWavefronts   int
	LimitByNumRegs         int
	LimitByLDS             int
	WorkGroupsPerPool      int
	WorkGroupsPerCU        int
}

func ceilDiv(a, b int) int {
	return int(math.Ceil(float64(a) / float64(b)))
}

func roundUp(v, granularity int) int {
	return ceilDiv(v, granularity) * granularity
}

// computeResourceLimits implements Gpu.MapNDRange's resource calculation.
func computeResourceLimits(
	cfg *config.Config,
	workItemsPerWG, vgprPerWorkItem, sgprPerWavefront, ldsPerWG int,
) ResourceLimits {
	rl := ResourceLimits{}

	rl.WavefrontsPerWorkGroup = ceilDiv(workItemsPerWG, cfg.WavefrontSize)
	if rl.WavefrontsPerWorkGroup < 1 {
		rl.WavefrontsPerWorkGroup = 1
	}

	if rl.WavefrontsPerWorkGroup > 0 {
		rl.LimitByMaxWavefronts = cfg.MaxWavefrontsPerPool / rl.WavefrontsPerWorkGroup
	}

	var vregPerWG, sregPerWG int
	switch cfg.RegisterAllocGranularity {
	case config.Wavefront:
		vregPerWavefront := roundUp(vgprPerWorkItem*cfg.WavefrontSize, cfg.RegisterAllocSize)
		vregPerWG = vregPerWavefront * rl.WavefrontsPerWorkGroup
		sregPerWG = sgprPerWavefront * rl.WavefrontsPerWorkGroup
	default: // config.WorkGroup
		vregPerWG = roundUp(vgprPerWorkItem*workItemsPerWG, cfg.RegisterAllocSize)
		sregPerWG = sgprPerWavefront * rl.WavefrontsPerWorkGroup
	}

	limitByVReg := math.MaxInt32
	if vregPerWG > 0 {
		limitByVReg = cfg.NumVectorRegisters / vregPerWG
	}
	limitBySReg := math.MaxInt32
	if sregPerWG > 0 {
		limitBySReg = cfg.NumScalarRegisters / sregPerWG
	}
	rl.LimitByNumRegs = min(limitByVReg, limitBySReg)

	ldsPerWGRounded := roundUp(ldsPerWG, cfg.LDSAllocSize)
	if ldsPerWGRounded > 0 {
		rl.LimitByLDS = cfg.LDSSize / ldsPerWGRounded
	} else {
		rl.LimitByLDS = math.MaxInt32
	}

	rl.WorkGroupsPerPool = min(cfg.MaxWorkGroupsPerPool, rl.LimitByMaxWavefronts, rl.LimitByNumRegs, rl.LimitByLDS)
	if rl.WorkGroupsPerPool < 0 {
		rl.WorkGroupsPerPool = 0
	}

	rl.WorkGroupsPerCU = rl.WorkGroupsPerPool * cfg.NumWavefrontPools
	if cfg.Env.WorkGroupLimit > 0 && rl.WorkGroupsPerCU > cfg.Env.WorkGroupLimit {
		rl.WorkGroupsPerCU = cfg.Env.WorkGroupLimit
	}

	return rl
}

func min(vs ...int) int {
	m := vs[0]
	for _, v := range vs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// KernelLaunch describes one ND-range dispatch request.
type KernelLaunch struct {
	KernelName       string
	NumWorkGroups    int
	WorkItemsPerWG   int
	VGPRPerWorkItem  int
	SGPRPerWavefront int
	LDSPerWG         int
	AddressSpace     uint64

	// SecondaryEntryPC enables the TwinKernel PC-mix policy for this
	// dispatch; zero disables it.
	SecondaryEntryPC uint64

	// MakeWavefront constructs the functional-emulation backing for one
	// wavefront of one work-group; the timing core never computes
	// instruction semantics itself.
	MakeWavefront func(workGroupIndex, wavefrontIndex int) emu.Wavefront
}

// MapNDRange implements §4.10: compute resource limits, fail with a
// ResourceError if the kernel cannot fit at all, otherwise build the
// ND-range's work-groups and map as many as the available compute units
// can currently hold.
func (g *Gpu) MapNDRange(launch KernelLaunch) (*wavefrontpool.NDRange, error) {
	rl := computeResourceLimits(g.Cfg, launch.WorkItemsPerWG, launch.VGPRPerWorkItem, launch.SGPRPerWavefront, launch.LDSPerWG)
	if rl.WorkGroupsPerPool == 0 {
		return nil, &ResourceError{Reason: "work_groups_per_pool computed to zero for the requested kernel resource usage"}
	}

	g.applyWorkGroupCap(rl.WorkGroupsPerCU)

	nd := &wavefrontpool.NDRange{
		ID:               g.ndIDGen.Next(),
		KernelName:       launch.KernelName,
		LocalSize:        launch.WorkItemsPerWG,
		VGPRPerItem:      launch.VGPRPerWorkItem,
		SGPRPerWave:      launch.SGPRPerWavefront,
		LocalMemBytes:    launch.LDSPerWG,
		AddressSpace:     launch.AddressSpace,
		SecondaryEntryPC: launch.SecondaryEntryPC,
	}
	g.ndranges = append(g.ndranges, nd)

	for wgIdx := 0; wgIdx < launch.NumWorkGroups; wgIdx++ {
		wg := &wavefrontpool.WorkGroup{
			ID:      g.wgIDGen.Next(),
			NDRange: nd,
			Stats:   stats.NewCycleStats(),
		}
		for wfIdx := 0; wfIdx < rl.WavefrontsPerWorkGroup; wfIdx++ {
			wf := &wavefrontpool.Wavefront{
				ID:        g.wfIDGen.Next(),
				WorkGroup: wg,
				Emu:       launch.MakeWavefront(wgIdx, wfIdx),
			}
			wg.Wavefronts = append(wg.Wavefronts, wf)
			g.totalWavefronts++
		}
		nd.PendingWorkGroups = append(nd.PendingWorkGroups, wg)
	}

	g.mapPending(nd, rl.WavefrontsPerWorkGroup)

	return nd, nil
}

// mapPending tries to map nd's still-pending work-groups, in order, onto
// the available compute units, stopping once none can accept any more.
func (g *Gpu) mapPending(nd *wavefrontpool.NDRange, wavefrontsPerWorkGroup int) {
	for len(nd.PendingWorkGroups) > 0 {
		mapped := false
		for _, cuIdx := range g.Available {
			cu := g.ComputeUnits[cuIdx]
			if len(nd.PendingWorkGroups) == 0 {
				break
			}
			wg := nd.PendingWorkGroups[0]
			if cu.MapWorkGroup(wg, wavefrontsPerWorkGroup, g.cycle) {
				nd.PendingWorkGroups = nd.PendingWorkGroups[1:]
				nd.ResidentWorkGroups++
				if !nd.Mapped {
					nd.Mapped = true
					nd.MappedCycle = g.cycle
				}
				mapped = true
			}
		}
		if !mapped {
			break
		}
		g.refreshAvailable()
	}
}
