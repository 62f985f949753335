package emu

// ScriptedInstruction is one entry in a Stub program: a declarative recipe
// for what Execute should report, rather than real instruction semantics.
// This is the only "emulator" the timing core ships with; a real ISA
// decoder + functional emulator is an external collaborator (see package
// doc) and would implement the Wavefront interface the same way.
type ScriptedInstruction struct {
	Format      InstFormat
	Opcode      int
	Disasm      string
	SideEffects SideEffects

	// GlobalAddr/GlobalSize apply to every active work-item uniformly,
	// which is sufficient for the deterministic scenarios this stub
	// drives; a real emulator computes these per work-item.
	GlobalAddr uint64
	GlobalSize uint64
	LDSAccesses []LDSAccess
}

// Stub is a deterministic, script-driven Wavefront used by tests. It walks
// a fixed instruction list and reports exactly the side effects the script
// declares.
type Stub struct {
	Program []ScriptedInstruction
	NumWorkItems int

	pc       int
	finished bool
	cur      ScriptedInstruction
	accesses []*WorkItemAccess
	scalar   *WorkItemAccess
}

// NewStub creates a Stub wavefront with numWorkItems active lanes.
func NewStub(program []ScriptedInstruction, numWorkItems int) *Stub {
	s := &Stub{
		Program:      program,
		NumWorkItems: numWorkItems,
	}
	s.accesses = make([]*WorkItemAccess, numWorkItems)
	for i := range s.accesses {
		s.accesses[i] = &WorkItemAccess{}
	}
	s.scalar = &WorkItemAccess{}
	return s
}

// Execute implements Wavefront.
func (s *Stub) Execute() {
	if s.finished {
		return
	}

	s.cur = s.Program[s.pc]

	for _, a := range s.accesses {
		a.GlobalAddr = s.cur.GlobalAddr
		a.GlobalSize = s.cur.GlobalSize
		a.AccessedCache = false
		a.LDSAccesses = s.cur.LDSAccesses
	}
	s.scalar.GlobalAddr = s.cur.GlobalAddr
	s.scalar.GlobalSize = s.cur.GlobalSize
	s.scalar.AccessedCache = false

	s.pc++
	if s.pc >= len(s.Program) {
		s.finished = s.cur.SideEffects.WavefrontLastInstruction
	}
}

// PC implements Wavefront.
func (s *Stub) PC() uint64 { return uint64(s.pc) }

// Finished implements Wavefront.
func (s *Stub) Finished() bool { return s.finished }

// Inst implements Wavefront.
func (s *Stub) Inst() Instruction {
	return Instruction{
		Format: s.cur.Format,
		Opcode: s.cur.Opcode,
		Disasm: s.cur.Disasm,
	}
}

// SideEffects implements Wavefront.
func (s *Stub) SideEffects() SideEffects { return s.cur.SideEffects }

// ActiveWorkItemAccesses implements Wavefront.
func (s *Stub) ActiveWorkItemAccesses() []*WorkItemAccess { return s.accesses }

// ScalarWorkItemAccess implements Wavefront.
func (s *Stub) ScalarWorkItemAccess() *WorkItemAccess { return s.scalar }
