package computeunit

import (
	"math/rand"

	"github.com/xianggong/multi2sim/config"
	"github.com/xianggong/multi2sim/stats"
	"github.com/xianggong/multi2sim/wavefrontpool"
)

// MapWorkGroup implements §4.9: find the lowest free slot, assign
// contiguous wavefront IDs, pick a wavefront pool by slot modulo the pool
// count, and map the group's wavefronts into it.
func (cu *ComputeUnit) MapWorkGroup(wg *wavefrontpool.WorkGroup, wavefrontsPerWorkGroup int, cycle uint64) bool {
	if cu.occupiedWorkGroups() >= cu.workGroupCap {
		return false
	}

	slot := -1
	for i, existing := range cu.WorkGroups {
		if existing == nil {
			slot = i
			break
		}
	}
	if slot == -1 {
		return false
	}

	wg.ComputeUnitID = cu.ID
	wg.IDInComputeUnit = slot
	wg.MappedCycle = cycle

	for i, wf := range wg.Wavefronts {
		wf.IDInComputeUnit = slot*wavefrontsPerWorkGroup + i
	}

	pool := cu.Pools[slot%len(cu.Pools)]
	pool.MapWavefronts(wg)

	cu.assignInitialPCs(wg)

	cu.WorkGroups[slot] = wg
	return true
}

// assignInitialPCs applies the TwinKernel PC-mix policy: when the
// ND-range carries a non-zero SecondaryEntryPC, each wavefront starts
// either at PC 0 or at the secondary entry according to the configured
// mix pattern. With no secondary entry configured this is a no-op, which
// is also the behavior for ordinary (non-TwinKernel) dispatches.
func (cu *ComputeUnit) assignInitialPCs(wg *wavefrontpool.WorkGroup) {
	nd := wg.NDRange
	if nd == nil || nd.SecondaryEntryPC == 0 {
		return
	}

	env := cu.Cfg.Env
	for i, wf := range wg.Wavefronts {
		if useSecondaryEntry(env, i) {
			// The emulator, not the timing core, owns actual PC state;
			// SetPC-style steering is outside this module's scope, so
			// only the observable wf.PC bookkeeping (used by statistics)
			// reflects the mix decision.
			wf.PC = nd.SecondaryEntryPC
		}
	}
}

func useSecondaryEntry(env config.Env, wavefrontIndex int) bool {
	switch env.MixPatternSel {
	case config.MixGreaterThan:
		return float64(wavefrontIndex) > env.MixRatio
	case config.MixLessThan:
		return float64(wavefrontIndex) < env.MixRatio
	case config.MixRoundRobin:
		return wavefrontIndex%2 == 1
	case config.MixRandom:
		src := mixRand(env)
		return src.Float64() < env.MixRatio
	default:
		return false
	}
}

// seededMixRand is the process-wide mix-policy RNG, created from Env.Seed on
// its first use.
var seededMixRand *rand.Rand

// mixRand returns the process-wide RNG seeded from Env.Seed, or a fresh
// unseeded one each call when no seed was provided — matching the design
// notes' warning that the random mix pattern is then non-deterministic.
func mixRand(env config.Env) *rand.Rand {
	if env.HasSeed {
		if seededMixRand == nil {
			seededMixRand = rand.New(rand.NewSource(env.Seed))
		}
		return seededMixRand
	}
	return rand.New(rand.NewSource(rand.Int63()))
}

// UnmapWorkGroup implements §4.9: remove the work-group from its slot,
// unmap its wavefronts from their pool, and record the unmap cycle.
func (cu *ComputeUnit) UnmapWorkGroup(slot int, cycle uint64) {
	wg := cu.WorkGroups[slot]
	if wg == nil {
		return
	}

	cu.dumpWorkGroupStats(wg, cycle)

	pool := cu.Pools[slot%len(cu.Pools)]
	pool.UnmapWavefronts(wg)

	wg.UnmappedCycle = cycle
	cu.WorkGroups[slot] = nil

	cu.drainNDRange(wg, cycle)
}

// drainNDRange folds wg's uop count/span into its ND-range and, once the
// ND-range has no resident or pending work-groups left, reports it drained.
func (cu *ComputeUnit) drainNDRange(wg *wavefrontpool.WorkGroup, cycle uint64) {
	nd := wg.NDRange
	if nd == nil {
		return
	}

	nd.ResidentWorkGroups--
	nd.UnmappedCycle = cycle

	if wg.Stats != nil {
		nd.LenUop += wg.Stats.NumUop
		if nd.ClkUopBegin == 0 || (wg.Stats.ClkUopBegin != 0 && wg.Stats.ClkUopBegin < nd.ClkUopBegin) {
			nd.ClkUopBegin = wg.Stats.ClkUopBegin
		}
		if wg.Stats.ClkUopEnd > nd.ClkUopEnd {
			nd.ClkUopEnd = wg.Stats.ClkUopEnd
		}
	}

	if nd.ResidentWorkGroups <= 0 && len(nd.PendingWorkGroups) == 0 && cu.ndRangeDrained != nil {
		cu.ndRangeDrained(nd, cycle)
	}
}

// dumpWorkGroupStats writes wg's cu_<i>.workgp row and one cu_<i>.waveft row
// per wavefront, immediately before the work-group's wavefronts are
// unmapped from their pool.
func (cu *ComputeUnit) dumpWorkGroupStats(wg *wavefrontpool.WorkGroup, cycle uint64) {
	ndrangeID := uint64(0)
	if wg.NDRange != nil {
		ndrangeID = wg.NDRange.ID
	}

	if cu.workgroupStats != nil && wg.Stats != nil {
		cu.workgroupStats.WriteWorkGroup(stats.WorkGroupRecord{
			NDRangeID:   ndrangeID,
			WorkGroupID: wg.ID,
			LenMap:      cycle - wg.MappedCycle,
			ClkMap:      wg.MappedCycle,
			ClkUnmap:    cycle,
			LenUop:      wg.Stats.NumUop,
			ClkUopBegin: wg.Stats.ClkUopBegin,
			ClkUopEnd:   wg.Stats.ClkUopEnd,
			Stats:       wg.Stats,
		})
	}

	if cu.wavefrontStats == nil {
		return
	}
	for _, wf := range wg.Wavefronts {
		if wf == nil || wf.Stats == nil {
			continue
		}
		cu.wavefrontStats.WriteWavefront(stats.WavefrontRecord{
			NDRangeID:   ndrangeID,
			WorkGroupID: wg.ID,
			WavefrontID: wf.ID,
			LenMap:      cycle - wg.MappedCycle,
			ClkMap:      wg.MappedCycle,
			ClkUnmap:    cycle,
			LenUop:      wf.Stats.NumUop,
			ClkUopBegin: wf.Stats.ClkUopBegin,
			ClkUopEnd:   wf.Stats.ClkUopEnd,
			Stats:       wf.Stats,
		})
	}
}

// Full reports whether the compute unit has reached its current
// work-group admission cap (SetWorkGroupCap), which may be tighter than
// its hardware slot count.
func (cu *ComputeUnit) Full() bool {
	return cu.occupiedWorkGroups() >= cu.workGroupCap
}
