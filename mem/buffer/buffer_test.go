package buffer

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/hammerbed/bitflip/fill"
	"github.com/sarchlab/hammerbed/hammer/memop"
)

var _ = Describe("Buffer", func() {
	It("should round up to whole pages", func() {
		b, err := Allocate(5000, Standard)
		Expect(err).NotTo(HaveOccurred())
		defer func() { Expect(b.Release()).To(Succeed()) }()

		Expect(b.Size()).To(Equal(uint64(8192)))
		Expect(b.Base() % 4096).To(BeZero())
		Expect(b.Backing()).To(Equal(Standard))
		Expect(b.Bytes()).To(HaveLen(8192))
	})

	It("should reject empty buffers", func() {
		_, err := Allocate(0, Standard)
		Expect(err).To(HaveOccurred())
	})

	It("should fill every word", func() {
		b, err := Allocate(1<<16, Standard)
		Expect(err).NotTo(HaveOccurred())
		defer func() { Expect(b.Release()).To(Succeed()) }()

		p := fill.SeededPseudorandom{Seed: 99}
		b.Fill(p)

		for off := uintptr(0); off < uintptr(b.Size()); off += 8 {
			addr := b.Base() + off
			Expect(*memop.Word(addr)).To(Equal(p.Evaluate(uint64(addr))))
		}
	})

	It("should release only once", func() {
		b, err := Allocate(4096, Standard)
		Expect(err).NotTo(HaveOccurred())

		Expect(b.Release()).To(Succeed())
		Expect(b.Release()).To(Succeed())
	})

	It("should refuse to change cacheability by default", func() {
		var c CacheabilityController = UnsupportedCacheability{}

		_, err := c.SetUncacheable(nil)
		Expect(errors.Is(err, ErrCacheabilityUnsupported)).To(BeTrue())
		Expect(c.Restore(nil, nil)).To(Succeed())
	})
})

var _ = Describe("ParseBacking", func() {
	It("should parse the names", func() {
		Expect(ParseBacking("normal")).To(Equal(Standard))
		Expect(ParseBacking("2M")).To(Equal(HugePage2MB))
		Expect(ParseBacking("1G")).To(Equal(HugePage1GB))
	})

	It("should fall back to normal pages", func() {
		Expect(ParseBacking("4K")).To(Equal(Standard))
	})

	It("should know the page sizes", func() {
		Expect(HugePage2MB.PageSize()).To(Equal(uint64(2 << 20)))
		Expect(HugePage1GB.String()).To(Equal("1G"))
	})
})
