package uop_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xianggong/multi2sim/emu"
	"github.com/xianggong/multi2sim/uop"
)

var _ = Describe("Witness", func() {
	It("treats a nil witness as zero", func() {
		var w *uop.Witness
		Expect(w.Zero()).To(BeTrue())
	})

	It("is non-zero while an access is outstanding", func() {
		u := &uop.Uop{}
		w := u.NewGlobalMemoryWitness()
		Expect(w.Zero()).To(BeTrue())

		w.Incr()
		Expect(w.Zero()).To(BeFalse())

		w.Decr()
		Expect(w.Zero()).To(BeTrue())
	})

	It("allocates independent witnesses for global memory and LDS", func() {
		u := &uop.Uop{}
		g := u.NewGlobalMemoryWitness()
		l := u.NewLDSWitness()
		Expect(g).NotTo(BeIdenticalTo(l))

		g.Incr()
		Expect(g.Zero()).To(BeFalse())
		Expect(l.Zero()).To(BeTrue())
	})
})

var _ = Describe("FromEmu", func() {
	It("copies every side-effect flag", func() {
		s := emu.SideEffects{
			VectorMemoryWrite:        true,
			BarrierInstruction:       true,
			WavefrontLastInstruction: true,
		}
		got := uop.FromEmu(s)
		Expect(got.VectorMemoryWrite).To(BeTrue())
		Expect(got.BarrierInstruction).To(BeTrue())
		Expect(got.WavefrontLastInstruction).To(BeTrue())
		Expect(got.LDSRead).To(BeFalse())
	})
})
