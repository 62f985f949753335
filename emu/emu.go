// Package emu defines the contract between the timing core and the
// functional emulator. The emulator is treated as a black box: it advances
// one wavefront by one instruction and reports the side effects that the
// timing core needs in order to schedule memory accesses and synchronize
// wavefronts. No instruction semantics live in this package or anywhere in
// the timing core.
package emu

// MemAccessType classifies one local-data-share access emitted by a
// wavefront's active work-items during Execute.
type MemAccessType int

const (
	// Read is a load access.
	Read MemAccessType = iota
	// Write is a store access.
	Write
)

// LDSAccess is one local-data-share access performed by a single work-item.
type LDSAccess struct {
	Type MemAccessType
	Addr uint64
	Size uint64
}

// WorkItemAccess bundles the memory-access descriptors that one active
// work-item produced during the instruction Execute just emulated.
type WorkItemAccess struct {
	// GlobalAddr/GlobalSize describe the (single) global or scalar memory
	// access, valid when the instruction touches global memory.
	GlobalAddr uint64
	GlobalSize uint64

	// LDSAccesses holds zero or more local-data-share accesses.
	LDSAccesses []LDSAccess

	// AccessedCache tracks, for vector-memory instructions, whether this
	// work-item's access has already been admitted by the cache. The
	// timing core owns and mutates this field across retries.
	AccessedCache bool
}

// SideEffects mirrors the boolean flags the emulator sets after Execute, as
// described in the external-interfaces section.
type SideEffects struct {
	VectorMemoryRead            bool
	VectorMemoryWrite           bool
	VectorMemoryAtomic          bool
	VectorMemoryGlobalCoherency bool
	ScalarMemoryRead            bool
	LDSRead                     bool
	LDSWrite                    bool
	MemoryWait                  bool
	BarrierInstruction          bool

	// WavefrontLastInstruction marks the instruction that ends the
	// wavefront's program.
	WavefrontLastInstruction bool
}

// InstFormat names the encoding family of the most recently executed
// instruction, coarse enough for execution-unit eligibility checks.
type InstFormat int

const (
	FormatScalarALU InstFormat = iota
	FormatScalarMemoryRead
	FormatBranch
	FormatVOP1
	FormatVOP2
	FormatVOPC
	FormatVOP3a
	FormatVOP3b
	FormatDS
	FormatMTBUF
	FormatMUBUF
)

// Instruction is the disassembled form of the instruction the emulator just
// executed. Opcode is the source ISA's numeric opcode; for scalar-program
// instructions, ops 2..9 inclusive are the branch range (§4.2).
type Instruction struct {
	Format     InstFormat
	Opcode     int
	Disasm     string
	RawBytes   []byte
}

// Wavefront is the contract the timing core relies on to drive functional
// emulation. A concrete implementation lives outside the timing core
// (ISA decoder + functional emulator); tests in this module use the Stub
// implementation below.
type Wavefront interface {
	// Execute advances the wavefront by exactly one instruction, updating
	// PC, Finished, Inst and SideEffects, and the per-work-item access
	// descriptors returned by ActiveWorkItemAccesses.
	Execute()

	PC() uint64
	Finished() bool
	Inst() Instruction
	SideEffects() SideEffects

	// ActiveWorkItemAccesses returns one entry per active work-item, in
	// work-item order, valid until the next call to Execute.
	ActiveWorkItemAccesses() []*WorkItemAccess

	// ScalarWorkItemAccess returns the access descriptor for the
	// wavefront's scalar work-item, used by SMEM instructions.
	ScalarWorkItemAccess() *WorkItemAccess
}
