package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xianggong/multi2sim/emu"
)

var _ = Describe("Stub", func() {
	It("reports PC and Inst from the scripted program as it steps", func() {
		s := emu.NewStub([]emu.ScriptedInstruction{
			{Format: emu.FormatScalarALU, Opcode: 1, Disasm: "s_add"},
			{Format: emu.FormatBranch, Opcode: 2, Disasm: "s_branch"},
		}, 4)

		Expect(s.Finished()).To(BeFalse())

		s.Execute()
		Expect(s.PC()).To(Equal(uint64(1)))
		Expect(s.Inst().Disasm).To(Equal("s_add"))
		Expect(s.Finished()).To(BeFalse())

		s.Execute()
		Expect(s.PC()).To(Equal(uint64(2)))
		Expect(s.Inst().Disasm).To(Equal("s_branch"))
	})

	It("finishes only when the last scripted instruction sets WavefrontLastInstruction", func() {
		s := emu.NewStub([]emu.ScriptedInstruction{
			{SideEffects: emu.SideEffects{WavefrontLastInstruction: true}},
		}, 1)

		s.Execute()
		Expect(s.Finished()).To(BeTrue())
	})

	It("does not advance past a finished program", func() {
		s := emu.NewStub([]emu.ScriptedInstruction{
			{SideEffects: emu.SideEffects{WavefrontLastInstruction: true}},
		}, 1)
		s.Execute()
		pcAtFinish := s.PC()

		s.Execute()
		Expect(s.PC()).To(Equal(pcAtFinish))
	})

	It("broadcasts global address and size to every active work-item", func() {
		s := emu.NewStub([]emu.ScriptedInstruction{
			{GlobalAddr: 0x1000, GlobalSize: 4},
		}, 3)

		s.Execute()
		for _, a := range s.ActiveWorkItemAccesses() {
			Expect(a.GlobalAddr).To(Equal(uint64(0x1000)))
			Expect(a.GlobalSize).To(Equal(uint64(4)))
			Expect(a.AccessedCache).To(BeFalse())
		}
		Expect(s.ScalarWorkItemAccess().GlobalAddr).To(Equal(uint64(0x1000)))
	})

	It("resets AccessedCache on every Execute, clearing any prior admission", func() {
		s := emu.NewStub([]emu.ScriptedInstruction{
			{GlobalAddr: 0x10},
			{GlobalAddr: 0x20},
		}, 1)

		s.Execute()
		s.ActiveWorkItemAccesses()[0].AccessedCache = true

		s.Execute()
		Expect(s.ActiveWorkItemAccesses()[0].AccessedCache).To(BeFalse())
	})
})
