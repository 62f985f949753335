package stats

import "fmt"

// ExecutionUnitStats mirrors one execution unit's cycle-class counters,
// completed-instruction length tracking, and vmem-divergence counter, in
// both an overview (since simulation start) and interval (since the last
// dump) instance.
type ExecutionUnitStats struct {
	NumTotalCycles            int64
	NumIdleCycles             int64
	NumActiveOrStallCycles    int64
	NumActiveOnlyCycles       int64
	NumActiveAndStallCycles   int64
	NumStallOnlyCycles        int64

	NumStallIssue     int64
	NumStallDecode    int64
	NumStallRead      int64
	NumStallExecution int64
	NumStallWrite     int64

	NumVmemDivergence int64
	NumInstIssued     int64
	NumInstInFlight   int64
	NumInstCompleted  int64

	LenInstMin int64
	LenInstMax int64
	LenInstSum int64

	WavefrontIDInstMin int
	WavefrontIDInstMax int
	WorkGroupIDInstMin int
	WorkGroupIDInstMax int
}

// NewExecutionUnitStats creates a zeroed ExecutionUnitStats with the
// min/max wavefront and work-group fields at their "unset" sentinel.
func NewExecutionUnitStats() *ExecutionUnitStats {
	return &ExecutionUnitStats{WavefrontIDInstMin: -1, WavefrontIDInstMax: -1, WorkGroupIDInstMin: -1, WorkGroupIDInstMax: -1}
}

// StageStatusCounts is the five per-stage statuses an execution unit
// produces at the end of one Run(), matching executionunit.StageStatus's
// three-valued domain (0=Idle, 1=Active, 2=Stall) without importing that
// package (stats must stay a leaf dependency).
type StageStatusCounts struct {
	Idle, Active, Stall int
}

// UpdateStatus rolls one cycle's five stage statuses into the cycle-class
// counters, mirroring ExecutionUnitStatisticsModule::UpdateStatus.
func (s *ExecutionUnitStats) UpdateStatus(c StageStatusCounts) {
	s.NumTotalCycles++

	if c.Active == 0 && c.Stall == 0 {
		s.NumIdleCycles++
		return
	}

	s.NumActiveOrStallCycles++

	switch {
	case c.Stall > 0 && c.Active > 0:
		s.NumActiveAndStallCycles++
	case c.Stall > 0:
		s.NumStallOnlyCycles++
	default:
		s.NumActiveOnlyCycles++
	}
}

// CompleteUop records one uop's completion length and identifies the new
// shortest/longest-lived instruction.
func (s *ExecutionUnitStats) CompleteUop(cycleLength uint64, wavefrontID, workGroupID int) {
	s.NumInstCompleted++
	s.NumInstInFlight--
	s.LenInstSum += int64(cycleLength)

	if s.LenInstMax == 0 || int64(cycleLength) > s.LenInstMax {
		s.LenInstMax = int64(cycleLength)
		s.WavefrontIDInstMax = wavefrontID
		s.WorkGroupIDInstMax = workGroupID
	}
	if int64(cycleLength) < s.LenInstMin || s.LenInstMin == 0 {
		s.LenInstMin = int64(cycleLength)
		s.WavefrontIDInstMin = wavefrontID
		s.WorkGroupIDInstMin = workGroupID
	}
}

// Issue records one uop admitted into the unit's issue buffer.
func (s *ExecutionUnitStats) Issue() {
	s.NumInstIssued++
	s.NumInstInFlight++
}

// counterRow formats the DumpCounter portion: interval marker is supplied
// by the caller since it is a property of the dump event, not the stats.
func (s *ExecutionUnitStats) counterRow(interval uint64) string {
	avg := int64(0)
	if s.NumInstCompleted != 0 {
		avg = s.LenInstSum / s.NumInstCompleted
	}
	return fmt.Sprintf("%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d",
		interval,
		s.NumTotalCycles, s.NumActiveOrStallCycles, s.NumIdleCycles,
		s.NumActiveOnlyCycles, s.NumActiveAndStallCycles, s.NumStallOnlyCycles,
		s.NumStallIssue, s.NumStallDecode, s.NumStallRead, s.NumStallExecution, s.NumStallWrite,
		s.NumVmemDivergence, s.NumInstIssued, s.NumInstInFlight, s.NumInstCompleted,
		s.LenInstMin, s.WavefrontIDInstMin, s.WorkGroupIDInstMin,
		s.LenInstMax, s.WavefrontIDInstMax, s.WorkGroupIDInstMax,
		avg, s.LenInstSum)
}

// utilizationRow formats the DumpUtilization portion: five cycle-class
// ratios relative to total cycles observed.
func (s *ExecutionUnitStats) utilizationRow() string {
	ratio := func(n int64) float64 {
		if s.NumTotalCycles == 0 {
			return 0
		}
		return float64(n) / float64(s.NumTotalCycles)
	}
	return fmt.Sprintf("%.2g,%.2g,%.2g,%.2g,%.2g",
		ratio(s.NumActiveOrStallCycles), ratio(s.NumIdleCycles), ratio(s.NumActiveOnlyCycles),
		ratio(s.NumActiveAndStallCycles), ratio(s.NumStallOnlyCycles))
}

// dumpFields is the fixed column-name header shared by the overview and
// interval files.
const dumpFields = "interval,c_total,c_actv|c_stll,c_idle,c_actv,c_actv&c_stll,c_stll," +
	"n_stll_iss,n_stll_dec,n_stll_rea,n_stll_exe,n_stll_wrt," +
	"n_vmem_dvg,n_inst_iss,n_inst_wip,n_inst_cpl," +
	"l_inst_min,i_inst_min_wf_id,i_inst_min_wg_id,l_inst_max,i_inst_max_wf_id,i_inst_max_wg_id,l_inst_avg,l_inst_sum," +
	"u_actv|stll,u_idle,u_actv,u_actv&stll,u_stll\n"

// ExecutionUnitTracker owns one execution unit's overview (since start) and
// interval (since last sampling boundary) ExecutionUnitStats, each backed
// by its own CSV file, the way ExecutionUnitStatisticsModule pairs an
// overview_stats_/interval_stats_ with an overview_file_/interval_file_.
type ExecutionUnitTracker struct {
	Overview *ExecutionUnitStats
	interval *ExecutionUnitStats

	overviewFile *CSVWriter
	intervalFile *CSVWriter

	samplingInterval   uint64
	lastDumpedInterval uint64
}

// NewExecutionUnitTracker creates both CSV files, named
// "cu_<cuID>_<unitName>.overvw" and "cu_<cuID>_<unitName>.intrvl".
func NewExecutionUnitTracker(pathPrefix string, samplingInterval uint64) *ExecutionUnitTracker {
	t := &ExecutionUnitTracker{
		Overview:         NewExecutionUnitStats(),
		interval:         NewExecutionUnitStats(),
		overviewFile:     NewCSVWriter(pathPrefix+".overvw", dumpFields),
		intervalFile:     NewCSVWriter(pathPrefix+".intrvl", dumpFields),
		samplingInterval: samplingInterval,
	}
	return t
}

// UpdateStatus feeds one cycle's stage-status snapshot into both the
// overview and interval accumulators.
func (t *ExecutionUnitTracker) UpdateStatus(c StageStatusCounts) {
	t.Overview.UpdateStatus(c)
	t.interval.UpdateStatus(c)
}

// IncrVmemDivergence records one vector-memory divergence retry cycle in
// both accumulators.
func (t *ExecutionUnitTracker) IncrVmemDivergence() {
	t.Overview.NumVmemDivergence++
	t.interval.NumVmemDivergence++
}

// Issue records an issued uop in both accumulators.
func (t *ExecutionUnitTracker) Issue() {
	t.Overview.Issue()
	t.interval.Issue()
}

// CompleteUop records a completed uop in both accumulators.
func (t *ExecutionUnitTracker) CompleteUop(cycleLength uint64, wavefrontID, workGroupID int) {
	t.Overview.CompleteUop(cycleLength, wavefrontID, workGroupID)
	t.interval.CompleteUop(cycleLength, wavefrontID, workGroupID)
}

// PostRun dumps the interval file once cycle crosses the next sampling
// boundary and resets the interval accumulator, mirroring
// ExecutionUnitStatisticsModule's interval-dump logic.
func (t *ExecutionUnitTracker) PostRun(cycle uint64) {
	if t.samplingInterval == 0 {
		return
	}
	boundary := (cycle / t.samplingInterval) * t.samplingInterval
	if boundary <= t.lastDumpedInterval && cycle != t.samplingInterval {
		return
	}
	t.intervalFile.WriteRow(t.interval.counterRow(boundary) + "," + t.interval.utilizationRow() + "\n")
	t.lastDumpedInterval = boundary
	t.interval = NewExecutionUnitStats()
}

// Flush dumps the overview file's final state. Call once at simulation end.
func (t *ExecutionUnitTracker) Flush() {
	t.overviewFile.WriteRow(t.Overview.counterRow(0) + "," + t.Overview.utilizationRow() + "\n")
	t.overviewFile.Flush()
	t.intervalFile.Flush()
}
