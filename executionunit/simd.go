package executionunit

import (
	"github.com/sarchlab/akita/v4/sim"
	"github.com/xianggong/multi2sim/config"
	"github.com/xianggong/multi2sim/emu"
	"github.com/xianggong/multi2sim/stats"
	"github.com/xianggong/multi2sim/uop"
)

// SimdUnit executes vector-ALU instructions. Its pipeline is compressed to
// three stages {Decode, Execute, Complete}: the source architecture's
// read-execute-write latency collapses into a single ExecLatency
// parameter, so there is no separate read or write buffer. One SimdUnit is
// instantiated per wavefront-pool lane.
type SimdUnit struct {
	Name string

	IssueBuf  sim.Buffer
	DecodeBuf sim.Buffer
	ExecBuf   sim.Buffer

	IssueLatency  int
	DecodeLatency int
	ExecLatency   int
	Width         int

	IssueStatus  StageStatus
	DecodeStatus StageStatus
	ExecStatus   StageStatus

	NumSimdInstructions uint64

	NumIdleCycles      uint64
	NumStallOnlyCycles uint64
	NumActiveCycles    uint64

	Tracker *stats.ExecutionUnitTracker

	hooks Hooks
}

// NewSimdUnit creates a SimdUnit.
func NewSimdUnit(name string, cfg config.UnitConfig, issueLatency int, hooks Hooks) *SimdUnit {
	return &SimdUnit{
		Name:          name,
		IssueBuf:      sim.NewBuffer(name+".issue", cfg.IssueBufferSize),
		DecodeBuf:     sim.NewBuffer(name+".decode", cfg.DecodeBufferSize),
		ExecBuf:       sim.NewBuffer(name+".exec", cfg.ExecBufferSize),
		IssueLatency:  issueLatency,
		DecodeLatency: cfg.DecodeLatency,
		ExecLatency:   cfg.ExecLatency,
		Width:         cfg.Width,
		hooks:         hooks,
	}
}

// IsValidUop implements Unit.
func (s *SimdUnit) IsValidUop(u *uop.Uop) bool {
	switch u.Inst.Format {
	case emu.FormatVOP1, emu.FormatVOP2, emu.FormatVOPC, emu.FormatVOP3a, emu.FormatVOP3b:
		return true
	default:
		return false
	}
}

// CanIssue implements Unit.
func (s *SimdUnit) CanIssue() bool { return s.IssueBuf.CanPush() }

// Issue implements Unit.
func (s *SimdUnit) Issue(cycle uint64, u *uop.Uop) {
	s.NumSimdInstructions++
	u.Issue.Ready = cycle + uint64(s.IssueLatency)
	u.Issue.Begin = cycle
	u.Issue.Active = cycle
	s.IssueBuf.Push(u)
	if s.Tracker != nil {
		s.Tracker.Issue()
	}
}

// Run implements Unit.
func (s *SimdUnit) Run(cycle uint64) {
	s.complete(cycle)
	s.runExec(cycle)
	s.runDecode(cycle)
	s.aggregate()
}

func (s *SimdUnit) runDecode(cycle uint64) {
	s.DecodeStatus = advanceStage(cycle, s.IssueBuf, s.DecodeBuf, s.DecodeLatency, s.Width,
		func(u *uop.Uop) uint64 { return u.Issue.Ready },
		func(u *uop.Uop) *uop.StageTimestamps { return &u.Decode })
}

func (s *SimdUnit) runExec(cycle uint64) {
	s.ExecStatus = advanceStage(cycle, s.DecodeBuf, s.ExecBuf, s.ExecLatency, s.Width,
		func(u *uop.Uop) uint64 { return u.Decode.Ready },
		func(u *uop.Uop) *uop.StageTimestamps { return &u.Execute })

	// Execute sets ready_next_cycle the cycle a uop becomes current in
	// ExecBuf, overlapping the wavefront's next fetch with this uop's
	// remaining completion latency.
	if s.ExecBuf.Size() == 0 {
		return
	}
	head := s.ExecBuf.Peek().(*uop.Uop)
	if head.Execute.Active == cycle {
		if entry := s.hooks.ResolveEntry(head.PoolEntry); entry != nil {
			entry.ReadyNextCycle = true
		}
	}
}

func (s *SimdUnit) complete(cycle uint64) {
	for {
		peeked := s.ExecBuf.Peek()
		if peeked == nil {
			return
		}
		u := peeked.(*uop.Uop)
		if cycle < u.Execute.Ready {
			return
		}
		s.ExecBuf.Pop()

		entry := s.hooks.ResolveEntry(u.PoolEntry)
		wg := resolveWorkGroup(u, entry)
		completeUop(cycle, u, s.Tracker, stats.Simd, entry, func(*uop.Uop) {
			if wg != nil {
				s.hooks.DecInflight(wg)
			}
		})
	}
}

func (s *SimdUnit) aggregate() {
	statuses := [3]StageStatus{s.DecodeStatus, s.ExecStatus, s.IssueStatus}
	allIdle, anyActive, anyStall := true, false, false
	for _, st := range statuses {
		switch st {
		case Active:
			allIdle, anyActive = false, true
		case Stall:
			allIdle, anyStall = false, true
		}
	}
	switch {
	case allIdle:
		s.NumIdleCycles++
	case anyStall && !anyActive:
		s.NumStallOnlyCycles++
	default:
		s.NumActiveCycles++
	}

	if s.Tracker != nil {
		var c stats.StageStatusCounts
		for _, st := range statuses {
			switch st {
			case Idle:
				c.Idle++
			case Active:
				c.Active++
			case Stall:
				c.Stall++
			}
		}
		s.Tracker.UpdateStatus(c)
	}
}

// Status implements Unit.
func (s *SimdUnit) Status() [5]StageStatus {
	return [5]StageStatus{s.DecodeStatus, Idle, s.ExecStatus, Idle, s.IssueStatus}
}
