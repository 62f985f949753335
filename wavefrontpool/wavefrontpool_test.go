package wavefrontpool_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xianggong/multi2sim/uop"
	"github.com/xianggong/multi2sim/wavefrontpool"
)

func makeWorkGroup(numWavefronts int) *wavefrontpool.WorkGroup {
	wg := &wavefrontpool.WorkGroup{ID: 1}
	for i := 0; i < numWavefronts; i++ {
		wg.Wavefronts = append(wg.Wavefronts, &wavefrontpool.Wavefront{ID: uint64(i), WorkGroup: wg})
	}
	return wg
}

var _ = Describe("Entry", func() {
	It("is fetch-eligible only when ready, not finished and not waiting", func() {
		e := &wavefrontpool.Entry{Ready: true}
		Expect(e.FetchEligible()).To(BeTrue())

		e.WaitForBarrier = true
		Expect(e.FetchEligible()).To(BeFalse())

		e.WaitForBarrier = false
		e.WavefrontFinished = true
		Expect(e.FetchEligible()).To(BeFalse())
	})

	It("is not fetch-eligible while memory-waiting with outstanding counters", func() {
		e := &wavefrontpool.Entry{Ready: true, MemWait: true, LGKMCnt: 1}
		Expect(e.FetchEligible()).To(BeFalse())

		e.LGKMCnt = 0
		Expect(e.FetchEligible()).To(BeTrue())
	})

	It("promotes ready_next_cycle to ready exactly once", func() {
		e := &wavefrontpool.Entry{ReadyNextCycle: true}
		Expect(e.PromoteReadyNextCycle()).To(BeTrue())
		Expect(e.Ready).To(BeTrue())
		Expect(e.ReadyNextCycle).To(BeFalse())
		Expect(e.PromoteReadyNextCycle()).To(BeFalse())
	})
})

var _ = Describe("Pool", func() {
	It("maps a work-group's wavefronts into free entries in order", func() {
		p := wavefrontpool.NewPool(0, 0, 4)
		wg := makeWorkGroup(2)

		mapped := p.MapWavefronts(wg)
		Expect(mapped).To(HaveLen(2))
		Expect(mapped[0].Wavefront).To(Equal(wg.Wavefronts[0]))
		Expect(mapped[1].Wavefront).To(Equal(wg.Wavefronts[1]))
		Expect(mapped[0].Ready).To(BeTrue())
		Expect(wg.Wavefronts[0].PoolRef).To(Equal(mapped[0].Ref()))
	})

	It("panics when the pool has no room", func() {
		p := wavefrontpool.NewPool(0, 0, 1)
		wg := makeWorkGroup(2)

		Expect(func() { p.MapWavefronts(wg) }).To(Panic())
	})

	It("unmaps only the entries belonging to the given work-group", func() {
		p := wavefrontpool.NewPool(0, 0, 4)
		wgA := makeWorkGroup(1)
		wgB := makeWorkGroup(1)
		p.MapWavefronts(wgA)
		p.MapWavefronts(wgB)

		p.UnmapWavefronts(wgA)

		Expect(p.Entries[0].Wavefront).To(BeNil())
		Expect(p.Entries[1].Wavefront).NotTo(BeNil())
	})

	It("releases the barrier only for entries in the given work-group", func() {
		p := wavefrontpool.NewPool(0, 0, 4)
		wgA := makeWorkGroup(1)
		wgB := makeWorkGroup(1)
		p.MapWavefronts(wgA)
		p.MapWavefronts(wgB)
		p.Entries[0].WaitForBarrier = true
		p.Entries[1].WaitForBarrier = true

		p.ReleaseBarrier(wgA)

		Expect(p.Entries[0].WaitForBarrier).To(BeFalse())
		Expect(p.Entries[1].WaitForBarrier).To(BeTrue())
	})
})

var _ = Describe("FetchBuffer", func() {
	It("reports full once capacity is reached and removes out of order", func() {
		fb := wavefrontpool.NewFetchBuffer(2)
		Expect(fb.Full()).To(BeFalse())

		a := &uop.Uop{ID: 1}
		b := &uop.Uop{ID: 2}
		fb.Push(a)
		fb.Push(b)
		Expect(fb.Full()).To(BeTrue())
		Expect(fb.All()).To(Equal([]*uop.Uop{a, b}))

		removed := fb.Remove(0)
		Expect(removed).To(Equal(a))
		Expect(fb.All()).To(Equal([]*uop.Uop{b}))
		Expect(fb.Full()).To(BeFalse())
	})
})
