// Package executionunit implements the five-stage pipeline skeleton shared
// by every execution-unit variant, plus the five concrete units: branch,
// scalar, SIMD, LDS and vector-memory. Each unit owns the small closed set
// of buffers described by the data model (issue, decode, read, exec-or-mem,
// write) and advances them in reverse pipeline order once per cycle.
package executionunit

import (
	"github.com/sarchlab/akita/v4/sim"
	"github.com/xianggong/multi2sim/stats"
	"github.com/xianggong/multi2sim/uop"
	"github.com/xianggong/multi2sim/util"
	"github.com/xianggong/multi2sim/wavefrontpool"
)

// Hooks is how a concrete execution unit reaches back into its owning
// compute unit's wavefront-pool state without holding a pointer cycle: a
// unit resolves a uop's PoolEntry reference through ResolveEntry rather
// than carrying a pointer to the entry itself.
// Unmapping is not one of these hooks: a work-group becomes unmap-eligible
// exactly when FinishedTiming is set and InflightInstructions reaches zero,
// and ComputeUnit.Run checks that condition once per cycle after every
// unit's Complete has run, rather than having each unit's completion path
// race to perform the unmap itself.
type Hooks struct {
	ResolveEntry     func(uop.Ref) *wavefrontpool.Entry
	DecInflight      func(*wavefrontpool.WorkGroup)
	ReleaseBarrier   func(*wavefrontpool.WorkGroup, *wavefrontpool.Entry)
	WavefrontFinished func()
}

// resolveWorkGroup is a convenience shared by every completion path: find
// u's owning work-group through its wavefront.
func resolveWorkGroup(u *uop.Uop, entry *wavefrontpool.Entry) *wavefrontpool.WorkGroup {
	if entry == nil || entry.Wavefront == nil {
		return nil
	}
	return entry.Wavefront.WorkGroup
}

// StageStatus is the per-stage activity state an execution unit tracks
// after every Run(), feeding the idle/stall/active cycle counters.
type StageStatus int

const (
	Idle StageStatus = iota
	Active
	Stall
)

// Unit is the small public surface every concrete execution unit
// implements. A tagged-variant-like approach (one concrete Go type per
// unit, sharing the Pipeline struct by embedding) stands in for the
// source's virtual dispatch: ComputeUnit holds a slice of Unit values and
// never needs to know the concrete type beyond construction.
type Unit interface {
	// IsValidUop reports whether this unit is eligible to execute u,
	// based on its instruction format and opcode.
	IsValidUop(u *uop.Uop) bool

	// CanIssue reports whether the issue buffer has room for another uop.
	CanIssue() bool

	// Issue admits u into the issue buffer.
	Issue(cycle uint64, u *uop.Uop)

	// Run advances Complete, Write, Execute/Memory, Read, Decode in that
	// order for one cycle.
	Run(cycle uint64)

	// Status returns the five stage statuses in pipeline order
	// (decode, read, execute, write) plus issue.
	Status() [5]StageStatus
}

// Pipeline is the embeddable state every concrete unit shares: the five
// stage FIFOs (issue feeds decode, decode feeds read, read feeds exec, exec
// feeds write, and write holds uops until completion), their latencies, and the per-stage status and
// stall counters. Completion is unit-specific and lives outside Pipeline.
type Pipeline struct {
	Name string

	IssueBuf  sim.Buffer
	DecodeBuf sim.Buffer
	ReadBuf   sim.Buffer
	ExecBuf   sim.Buffer
	WriteBuf  sim.Buffer

	IssueLatency  int
	DecodeLatency int
	ReadLatency   int
	ExecLatency   int
	WriteLatency  int

	Width int

	IssueStatus  StageStatus
	DecodeStatus StageStatus
	ReadStatus   StageStatus
	ExecStatus   StageStatus
	WriteStatus  StageStatus

	NumIdleCycles      uint64
	NumStallOnlyCycles uint64
	NumActiveCycles    uint64

	// Tracker feeds this unit's per-cycle stage statuses and completed-uop
	// lengths into the overview/interval CSV files; nil disables tracking.
	Tracker *stats.ExecutionUnitTracker
}

// NewPipeline allocates the five stage buffers with the given
// capacities.
func NewPipeline(name string, issueCap, decodeCap, readCap, execCap, writeCap int) *Pipeline {
	return &Pipeline{
		Name:      name,
		IssueBuf:  sim.NewBuffer(name+".issue", issueCap),
		DecodeBuf: sim.NewBuffer(name+".decode", decodeCap),
		ReadBuf:   sim.NewBuffer(name+".read", readCap),
		ExecBuf:   sim.NewBuffer(name+".exec", execCap),
		WriteBuf:  sim.NewBuffer(name+".write", writeCap),
	}
}

// CanIssue implements the shared canIssue() rule.
func (p *Pipeline) CanIssue() bool {
	return p.IssueBuf.CanPush()
}

// Issue implements the shared Issue(uop) rule: set issue_ready and append.
func (p *Pipeline) Issue(cycle uint64, u *uop.Uop) {
	u.Issue.Ready = cycle + uint64(p.IssueLatency)
	u.Issue.Begin = cycle
	u.Issue.Active = cycle
	p.IssueBuf.Push(u)
	if p.Tracker != nil {
		p.Tracker.Issue()
	}
}

// advanceStage implements the per-stage protocol in §4.1: scan src oldest
// first, stopping at the first uop that either is not yet ready, would
// exceed the per-cycle width, or cannot be admitted into dst.
func advanceStage(
	cycle uint64,
	src, dst sim.Buffer,
	latency int,
	width int,
	getPrevReady func(*uop.Uop) uint64,
	ts func(*uop.Uop) *uop.StageTimestamps,
) StageStatus {
	return advanceStageCond(cycle, src, dst, latency, width, getPrevReady, nil, ts)
}

// advanceStageCond is advanceStage with an extra readiness predicate,
// checked only once the uop's prev-stage latency has elapsed. Memory-
// interacting stages use this to additionally wait on a witness reaching
// zero before they may advance.
func advanceStageCond(
	cycle uint64,
	src, dst sim.Buffer,
	latency int,
	width int,
	getPrevReady func(*uop.Uop) uint64,
	extraReady func(*uop.Uop) bool,
	ts func(*uop.Uop) *uop.StageTimestamps,
) StageStatus {
	if src.Size() == 0 {
		return Idle
	}

	status := Idle
	processed := 0
	for {
		peeked := src.Peek()
		if peeked == nil {
			break
		}
		u := peeked.(*uop.Uop)

		prevReady := getPrevReady(u)
		if cycle < prevReady {
			status = Active
			break
		}
		if extraReady != nil && !extraReady(u) {
			status = Active
			break
		}
		if processed >= width {
			t := ts(u)
			t.Stall++
			status = Stall
			break
		}
		if dst != nil && !dst.CanPush() {
			t := ts(u)
			t.Stall++
			status = Stall
			break
		}

		src.Pop()
		t := ts(u)
		t.Begin = prevReady
		t.Active = cycle
		t.Ready = cycle + uint64(latency)
		if dst != nil {
			dst.Push(u)
		}
		processed++
		status = Active
	}
	return status
}

// runRead advances the Read stage, moving ready uops from DecodeBuf into
// ReadBuf.
func (p *Pipeline) runRead(cycle uint64, width int) {
	p.ReadStatus = advanceStage(cycle, p.DecodeBuf, p.ReadBuf, p.ReadLatency, width,
		func(u *uop.Uop) uint64 { return u.Decode.Ready },
		func(u *uop.Uop) *uop.StageTimestamps { return &u.Read })
}

// runDecode advances the Decode stage, moving ready uops from IssueBuf into
// DecodeBuf.
func (p *Pipeline) runDecode(cycle uint64, width int) {
	p.DecodeStatus = advanceStage(cycle, p.IssueBuf, p.DecodeBuf, p.DecodeLatency, width,
		func(u *uop.Uop) uint64 { return u.Issue.Ready },
		func(u *uop.Uop) *uop.StageTimestamps { return &u.Decode })
}

// runExec advances a plain (non-memory) Execute stage, moving ready uops
// from ReadBuf into ExecBuf. Units with memory interactions replace this
// with custom logic and set ExecStatus themselves.
func (p *Pipeline) runExec(cycle uint64, width int) {
	p.ExecStatus = advanceStage(cycle, p.ReadBuf, p.ExecBuf, p.ExecLatency, width,
		func(u *uop.Uop) uint64 { return u.Read.Ready },
		func(u *uop.Uop) *uop.StageTimestamps { return &u.Execute })
}

// runWrite advances the Write stage, moving ready uops from ExecBuf into
// WriteBuf. extraReady is nil for non-memory units; memory-interacting
// units pass a witness check.
func (p *Pipeline) runWrite(cycle uint64, width int, extraReady func(*uop.Uop) bool) {
	p.WriteStatus = advanceStageCond(cycle, p.ExecBuf, p.WriteBuf, p.WriteLatency, width,
		func(u *uop.Uop) uint64 { return u.Execute.Ready },
		extraReady,
		func(u *uop.Uop) *uop.StageTimestamps { return &u.Write })
}

// aggregate rolls the five stage statuses into the unit's cycle-class
// counters, per §4.1's "stage-status tracking" rule.
func (p *Pipeline) aggregate() {
	statuses := [5]StageStatus{p.IssueStatus, p.DecodeStatus, p.ReadStatus, p.ExecStatus, p.WriteStatus}

	allIdle := true
	anyActive := false
	anyStall := false
	for _, s := range statuses {
		switch s {
		case Idle:
		case Active:
			allIdle = false
			anyActive = true
		case Stall:
			allIdle = false
			anyStall = true
		}
	}

	switch {
	case allIdle:
		p.NumIdleCycles++
	case anyStall && !anyActive:
		p.NumStallOnlyCycles++
	default:
		p.NumActiveCycles++
	}

	if p.Tracker != nil {
		p.Tracker.UpdateStatus(toStageStatusCounts(statuses))
	}
}

// toStageStatusCounts converts a fixed-size StageStatus array into the
// stats package's count-based shape, keeping stats free of a dependency on
// this package's StageStatus type.
func toStageStatusCounts(statuses [5]StageStatus) stats.StageStatusCounts {
	var c stats.StageStatusCounts
	for _, s := range statuses {
		switch s {
		case Idle:
			c.Idle++
		case Active:
			c.Active++
		case Stall:
			c.Stall++
		}
	}
	return c
}

// Status implements Unit.Status.
func (p *Pipeline) Status() [5]StageStatus {
	return [5]StageStatus{p.DecodeStatus, p.ReadStatus, p.ExecStatus, p.WriteStatus, p.IssueStatus}
}

// completeUop finalizes a uop that has drained the write buffer: records
// cycle_finish/cycle_length, decrements the owning work-group's inflight
// count, rolls its per-stage stall counts into the owning work-group's and
// wavefront's CycleStats and into the unit's ExecutionUnitTracker, and
// traces the completion.
func completeUop(
	cycle uint64, u *uop.Uop,
	tracker *stats.ExecutionUnitTracker, kind stats.UnitKind, entry *wavefrontpool.Entry,
	decInflight func(*uop.Uop),
) {
	u.CycleFinish = cycle
	u.CycleLength = u.CycleFinish - u.CycleStart
	decInflight(u)

	stalls := stats.StageStalls{
		Issue:     int64(u.Issue.Stall),
		Decode:    int64(u.Decode.Stall),
		Read:      int64(u.Read.Stall),
		Execution: int64(u.Execute.Stall),
		Write:     int64(u.Write.Stall),
	}

	wfID, wgID := -1, -1
	if entry != nil && entry.Wavefront != nil {
		wf := entry.Wavefront
		wfID = wf.IDInComputeUnit
		if wf.Stats != nil {
			wf.Stats.Accumulate(kind, cycle, stalls)
		}
		if wg := wf.WorkGroup; wg != nil {
			wgID = wg.IDInComputeUnit
			if wg.Stats != nil {
				wg.Stats.Accumulate(kind, cycle, stalls)
			}
		}
	}

	if tracker != nil {
		tracker.CompleteUop(u.CycleLength, wfID, wgID)
	}

	util.Trace("Complete", "uop", u.ID, "cycle", cycle, "length", u.CycleLength)
}
