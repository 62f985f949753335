// Package gpu implements the top-level driver: the Gpu type owns a fleet
// of compute units, maps ND-ranges onto them, and advances every compute
// unit exactly once per cycle as the engine's sole ticking component — the
// cooperative single-threaded cycle loop described by the concurrency
// model.
package gpu

import (
	"fmt"
	"path/filepath"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/xianggong/multi2sim/computeunit"
	"github.com/xianggong/multi2sim/config"
	"github.com/xianggong/multi2sim/memory"
	"github.com/xianggong/multi2sim/stats"
	"github.com/xianggong/multi2sim/util"
	"github.com/xianggong/multi2sim/wavefrontpool"
)

// Gpu owns the compute units and is the sole sim.Ticker registered with
// the engine; its Tick advances every compute unit synchronously, in the
// order the configuration selects, so cross-compute-unit ordering stays
// deterministic.
type Gpu struct {
	*sim.TickingComponent

	Cfg *config.Config

	ComputeUnits []*computeunit.ComputeUnit

	// Available holds the indices of compute units with at least one
	// free work-group slot, used by MapNDRange's placement search.
	Available []int

	cycle    uint64
	uopIDGen *util.IDGen
	wgIDGen  *util.IDGen
	wfIDGen  *util.IDGen
	ndIDGen  *util.IDGen

	ndranges     []*wavefrontpool.NDRange
	ndrangeStats *stats.CSVWriter

	completedWavefronts uint64
	totalWavefronts     uint64
}

// dumpNDRangeStats writes nd's cu_all.ndrange row. Called once nd's last
// resident work-group unmaps and no pending work-groups remain.
func (g *Gpu) dumpNDRangeStats(nd *wavefrontpool.NDRange, cycle uint64) {
	if g.ndrangeStats == nil {
		return
	}
	g.ndrangeStats.WriteNDRange(stats.NDRangeRecord{
		KernelName:  nd.KernelName,
		NDRangeID:   nd.ID,
		LenMap:      cycle - nd.MappedCycle,
		ClkMap:      nd.MappedCycle,
		ClkUnmap:    cycle,
		LenUop:      nd.LenUop,
		ClkUopBegin: nd.ClkUopBegin,
		ClkUopEnd:   nd.ClkUopEnd,
	})
}

// FlushStats dumps every compute unit's final statistics rows and the
// ND-range file. Call once at simulation end.
func (g *Gpu) FlushStats() {
	for _, cu := range g.ComputeUnits {
		cu.FlushStats()
	}
	if g.ndrangeStats != nil {
		g.ndrangeStats.Flush()
	}
}

// Builder constructs a Gpu the way zeonica's core.Builder constructs a
// Core: a small fluent struct collecting the engine, frequency, and
// per-compute-unit memory collaborators before Build assembles everything.
type Builder struct {
	engine sim.Engine
	freq   sim.Freq
	cfg    *config.Config

	scalarCache func(cuID int) memory.Cache
	ldsCache    func(cuID int) memory.Cache
	vectorCache func(cuID int) memory.Cache
	mmu         memory.MMU
}

// NewBuilder creates a Builder with Default configuration and an identity
// MMU; callers override via With* before calling Build.
func NewBuilder() Builder {
	return Builder{
		cfg: config.Default(),
		mmu: memory.IdentityMMU{},
	}
}

func (b Builder) WithEngine(engine sim.Engine) Builder { b.engine = engine; return b }
func (b Builder) WithFreq(freq sim.Freq) Builder       { b.freq = freq; return b }
func (b Builder) WithConfig(cfg *config.Config) Builder { b.cfg = cfg; return b }
func (b Builder) WithMMU(mmu memory.MMU) Builder        { b.mmu = mmu; return b }

// WithCacheFactories installs per-compute-unit cache constructors. Each
// factory is called once per compute unit, so independent cache instances
// back independent compute units.
func (b Builder) WithCacheFactories(
	scalar, lds, vector func(cuID int) memory.Cache,
) Builder {
	b.scalarCache, b.ldsCache, b.vectorCache = scalar, lds, vector
	return b
}

// Build assembles the Gpu and its compute units, and registers the Gpu as
// a ticking component with the engine.
func (b Builder) Build(name string) *Gpu {
	g := &Gpu{
		Cfg:      b.cfg,
		uopIDGen: util.NewIDGen(1),
		wgIDGen:  util.NewIDGen(1),
		wfIDGen:  util.NewIDGen(1),
		ndIDGen:  util.NewIDGen(1),
	}
	g.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, g)

	if b.cfg.StatisticsLevel >= 1 {
		g.ndrangeStats = stats.NewNDRangeWriter(filepath.Join(b.cfg.StatisticsDir, "cu_all.ndrange"))
	}

	slots := b.cfg.MaxWorkGroupsPerPool * b.cfg.NumWavefrontPools

	for i := 0; i < b.cfg.NumComputeUnits; i++ {
		units := computeunit.Units{
			MMU:            b.mmu,
			NextUopID:      g.uopIDGen.Next,
			NDRangeDrained: g.dumpNDRangeStats,
		}
		if b.scalarCache != nil {
			units.ScalarCache = b.scalarCache(i)
		}
		if b.ldsCache != nil {
			units.LDS = b.ldsCache(i)
		}
		if b.vectorCache != nil {
			units.VectorCache = b.vectorCache(i)
		}

		cu := computeunit.New(i, b.cfg, slots, units)
		g.ComputeUnits = append(g.ComputeUnits, cu)
		g.Available = append(g.Available, i)
	}

	return g
}

// Tick implements sim.Ticker: unless a halt condition has been reached,
// advance every compute unit by one cycle, in sequential-by-index or
// rotated-by-cycle order depending on M2S_RANDOM_CU, then map still-pending
// work-groups onto compute units that have room again.
func (g *Gpu) Tick() bool {
	if g.haltReached() {
		return false
	}

	g.cycle++
	madeProgress := false

	n := len(g.ComputeUnits)
	for i := 0; i < n; i++ {
		idx := i
		if g.Cfg.Env.RandomCU {
			idx = (i + int(g.cycle)) % n
		}
		g.ComputeUnits[idx].Run(g.cycle)
		madeProgress = true
	}

	g.refreshAvailable()
	for _, nd := range g.ndranges {
		if len(nd.PendingWorkGroups) > 0 {
			g.mapPending(nd, len(nd.PendingWorkGroups[0].Wavefronts))
		}
	}
	g.refreshCompletedWavefronts()

	return madeProgress
}

// applyWorkGroupCap installs n as every compute unit's current work-group
// admission cap, per §4.10's work_groups_per_cu for the dispatching kernel.
func (g *Gpu) applyWorkGroupCap(n int) {
	for _, cu := range g.ComputeUnits {
		cu.SetWorkGroupCap(n)
	}
}

func (g *Gpu) refreshCompletedWavefronts() {
	var total uint64
	for _, cu := range g.ComputeUnits {
		total += cu.CompletedWavefronts()
	}
	g.completedWavefronts = total
}

func (g *Gpu) haltReached() bool {
	if g.Cfg.MaxCycles > 0 && g.cycle >= g.Cfg.MaxCycles {
		return true
	}
	if g.Cfg.MaxWavefrontCount > 0 && g.completedWavefronts >= g.Cfg.MaxWavefrontCount {
		return true
	}
	if g.Cfg.MaxWavefrontRatio > 0 && g.totalWavefronts > 0 {
		ratio := float64(g.completedWavefronts) / float64(g.totalWavefronts)
		if ratio >= g.Cfg.MaxWavefrontRatio {
			return true
		}
	}
	return false
}

// refreshAvailable rebuilds the available-compute-unit list: a compute
// unit previously removed because it was full rejoins once it has a free
// work-group slot again.
func (g *Gpu) refreshAvailable() {
	g.Available = g.Available[:0]
	for i, cu := range g.ComputeUnits {
		if !cu.Full() {
			g.Available = append(g.Available, i)
		}
	}
}

// Cycle returns the current cycle count.
func (g *Gpu) Cycle() uint64 { return g.cycle }

// CompletedWavefronts returns the number of wavefronts that have finished
// their timing lifecycle so far.
func (g *Gpu) CompletedWavefronts() uint64 { return g.completedWavefronts }

// ResourceError is returned by MapNDRange when the requested resources
// leave zero work-groups per compute unit.
type ResourceError struct {
	Reason string
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource-error: %s", e.Reason)
}
