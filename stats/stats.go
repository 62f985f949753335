// Package stats implements the CSV statistics surface: per-execution-unit
// overview/interval counters, per-work-group and per-wavefront lifecycle
// records, and per-ND-range records. Column order is fixed because external
// diff tooling compares runs by CSV content, so every header here is a
// literal, not a generated list.
package stats

import (
	"fmt"
	"os"

	"github.com/tebeka/atexit"
)

// CSVWriter buffers rows and flushes them to a file once 1000 rows are
// buffered, on an explicit Flush, or at process exit, the way akita's
// CSVTracerBackend buffers tasks.
type CSVWriter struct {
	path string
	file *os.File

	rows       []string
	bufferSize int
}

// NewCSVWriter creates a CSVWriter, writes header immediately, and creates
// the backing file. The header must already include the trailing newline.
func NewCSVWriter(path, header string) *CSVWriter {
	w := &CSVWriter{path: path, bufferSize: 1000}

	file, err := os.Create(path)
	if err != nil {
		panic(fmt.Errorf("stats: cannot create %s: %w", path, err))
	}
	w.file = file

	if _, err := file.WriteString(header); err != nil {
		panic(fmt.Errorf("stats: cannot write header to %s: %w", path, err))
	}

	atexit.Register(w.Flush)

	return w
}

// WriteRow buffers one already-formatted, newline-terminated CSV row.
func (w *CSVWriter) WriteRow(row string) {
	w.rows = append(w.rows, row)
	if len(w.rows) >= w.bufferSize {
		w.Flush()
	}
}

// Flush writes every buffered row to disk.
func (w *CSVWriter) Flush() {
	for _, row := range w.rows {
		if _, err := w.file.WriteString(row); err != nil {
			panic(fmt.Errorf("stats: write to %s failed: %w", w.path, err))
		}
	}
	w.rows = nil
}

// UnitKind names the five execution-unit variants for the per-kind stall
// breakdown carried by work-group and wavefront records.
type UnitKind string

const (
	Branch       UnitKind = "brch"
	LDS          UnitKind = "lds"
	Scalar       UnitKind = "sclr"
	VectorMemory UnitKind = "vmem"
	Simd         UnitKind = "simd"
)

var unitKinds = []UnitKind{Branch, LDS, Scalar, VectorMemory, Simd}

// StageStalls is one uop's per-stage stall counts at the moment it
// completed, used to roll stalls into work-group/wavefront cycle stats.
type StageStalls struct {
	Issue, Decode, Read, Execution, Write int64
}

// CycleStats accumulates per-stage stall counts for one work-group or
// wavefront, both in aggregate and broken down by the unit kind that
// produced each uop, mirroring the source's CycleStats fields.
type CycleStats struct {
	NumStallIssue     int64
	NumStallDecode    int64
	NumStallRead      int64
	NumStallExecution int64
	NumStallWrite     int64

	// NumUop, ClkUopBegin and ClkUopEnd track the len_uop/clk_uop_begin/
	// clk_uop_end columns: the count and cycle span of every uop
	// Accumulate has seen.
	NumUop      uint64
	ClkUopBegin uint64
	ClkUopEnd   uint64

	byKind map[UnitKind]*StageStalls
}

// NewCycleStats creates an empty CycleStats.
func NewCycleStats() *CycleStats {
	cs := &CycleStats{byKind: make(map[UnitKind]*StageStalls)}
	for _, k := range unitKinds {
		cs.byKind[k] = &StageStalls{}
	}
	return cs
}

// Accumulate rolls one completed uop's stall counts into both the
// aggregate and the kind-specific counters, and records its completion
// cycle into the uop count/span.
func (cs *CycleStats) Accumulate(kind UnitKind, completionCycle uint64, s StageStalls) {
	cs.NumStallIssue += s.Issue
	cs.NumStallDecode += s.Decode
	cs.NumStallRead += s.Read
	cs.NumStallExecution += s.Execution
	cs.NumStallWrite += s.Write

	cs.NumUop++
	if cs.ClkUopBegin == 0 || completionCycle < cs.ClkUopBegin {
		cs.ClkUopBegin = completionCycle
	}
	if completionCycle > cs.ClkUopEnd {
		cs.ClkUopEnd = completionCycle
	}

	b := cs.byKind[kind]
	if b == nil {
		return
	}
	b.Issue += s.Issue
	b.Decode += s.Decode
	b.Read += s.Read
	b.Execution += s.Execution
	b.Write += s.Write
}

// cycleStatsHeader is shared by the .workgp and .waveft files; it follows
// the identifying columns each file prepends.
const cycleStatsHeader = "num_stall_issue,num_stall_decode,num_stall_read,num_stall_execution,num_stall_write," +
	"brch_num_stall_issue,brch_num_stall_decode,brch_num_stall_read,brch_num_stall_execution,brch_num_stall_write," +
	"lds_num_stall_issue,lds_num_stall_decode,lds_num_stall_read,lds_num_stall_execution,lds_num_stall_write," +
	"sclr_num_stall_issue,sclr_num_stall_decode,sclr_num_stall_read,sclr_num_stall_execution,sclr_num_stall_write," +
	"vmem_num_stall_issue,vmem_num_stall_decode,vmem_num_stall_read,vmem_num_stall_execution,vmem_num_stall_write," +
	"simd_num_stall_issue,simd_num_stall_decode,simd_num_stall_read,simd_num_stall_execution,simd_num_stall_write"

// row formats the CycleStats portion of a .workgp/.waveft row, without a
// leading or trailing comma.
func (cs *CycleStats) row() string {
	s := fmt.Sprintf("%d,%d,%d,%d,%d",
		cs.NumStallIssue, cs.NumStallDecode, cs.NumStallRead, cs.NumStallExecution, cs.NumStallWrite)
	for _, k := range unitKinds {
		b := cs.byKind[k]
		s += fmt.Sprintf(",%d,%d,%d,%d,%d", b.Issue, b.Decode, b.Read, b.Execution, b.Write)
	}
	return s
}

// WorkGroupRecord is the per-work-group row written to cu_<i>.workgp.
type WorkGroupRecord struct {
	NDRangeID   uint64
	WorkGroupID uint64

	LenMap, ClkMap, ClkUnmap    uint64
	LenUop, ClkUopBegin, ClkUopEnd uint64

	Stats *CycleStats
}

// workGroupHeader is the full header of cu_<i>.workgp.
const workGroupHeader = "ndrange_id,wg_id,len_map,clk_map,clk_unmap,len_uop,clk_uop_begin,clk_uop_end," + cycleStatsHeader + "\n"

// NewWorkGroupWriter creates the per-compute-unit work-group CSV.
func NewWorkGroupWriter(path string) *CSVWriter {
	return NewCSVWriter(path, workGroupHeader)
}

// WriteWorkGroup formats and buffers one WorkGroupRecord.
func (w *CSVWriter) WriteWorkGroup(r WorkGroupRecord) {
	w.WriteRow(fmt.Sprintf("%d,%d,%d,%d,%d,%d,%d,%d,%s\n",
		r.NDRangeID, r.WorkGroupID, r.LenMap, r.ClkMap, r.ClkUnmap,
		r.LenUop, r.ClkUopBegin, r.ClkUopEnd, r.Stats.row()))
}

// WavefrontRecord is the per-wavefront row written to cu_<i>.waveft.
type WavefrontRecord struct {
	NDRangeID    uint64
	WorkGroupID  uint64
	WavefrontID  uint64

	LenMap, ClkMap, ClkUnmap       uint64
	LenUop, ClkUopBegin, ClkUopEnd uint64

	Stats *CycleStats
}

const wavefrontHeader = "ndrange_id,wg_id,wf_id,len_map,clk_map,clk_unmap,len_uop,clk_uop_begin,clk_uop_end," + cycleStatsHeader + "\n"

// NewWavefrontWriter creates the per-compute-unit wavefront CSV.
func NewWavefrontWriter(path string) *CSVWriter {
	return NewCSVWriter(path, wavefrontHeader)
}

// WriteWavefront formats and buffers one WavefrontRecord.
func (w *CSVWriter) WriteWavefront(r WavefrontRecord) {
	w.WriteRow(fmt.Sprintf("%d,%d,%d,%d,%d,%d,%d,%d,%d,%s\n",
		r.NDRangeID, r.WorkGroupID, r.WavefrontID, r.LenMap, r.ClkMap, r.ClkUnmap,
		r.LenUop, r.ClkUopBegin, r.ClkUopEnd, r.Stats.row()))
}

// NDRangeRecord is the per-ND-range row written to cu_all.ndrange.
type NDRangeRecord struct {
	KernelName string
	NDRangeID  uint64

	LenMap, ClkMap, ClkUnmap       uint64
	LenUop, ClkUopBegin, ClkUopEnd uint64
}

const ndRangeHeader = "ndrange_id,len_map,clk_map,clk_unmap,len_uop,clk_uop_begin,clk_uop_end\n"

// NewNDRangeWriter creates the GPU-wide ND-range CSV.
func NewNDRangeWriter(path string) *CSVWriter {
	return NewCSVWriter(path, ndRangeHeader)
}

// WriteNDRange formats and buffers one NDRangeRecord.
func (w *CSVWriter) WriteNDRange(r NDRangeRecord) {
	w.WriteRow(fmt.Sprintf("%s_%d,%d,%d,%d,%d,%d,%d\n",
		r.KernelName, r.NDRangeID, r.LenMap, r.ClkMap, r.ClkUnmap,
		r.LenUop, r.ClkUopBegin, r.ClkUopEnd))
}
