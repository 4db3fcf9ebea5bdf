package bitflip

import (
	"errors"
	"unsafe"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/unix"

	"github.com/sarchlab/hammerbed/bitflip/fill"
	"github.com/sarchlab/hammerbed/hammer/memop"
	"github.com/sarchlab/hammerbed/mem/pagemap"
)

type region struct {
	base uintptr
	size uint64
}

func (r region) Base() uintptr { return r.base }
func (r region) Size() uint64  { return r.size }

const (
	testPages = 16
	physBase  = uint64(0x9000_0000)
)

var _ = Describe("Detector", func() {
	var (
		mem []byte
		reg region
		tr  *pagemap.StaticTranslator
		d   *Detector
	)

	fillWith := func(p fill.Pattern) {
		for off := uint64(0); off < reg.size; off += 8 {
			addr := reg.base + uintptr(off)
			*memop.Word(addr) = p.Evaluate(uint64(addr))
		}
	}

	BeforeEach(func() {
		var err error
		mem, err = unix.Mmap(-1, 0, testPages*pagemap.PageSize,
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
		Expect(err).NotTo(HaveOccurred())

		reg = region{
			base: uintptr(unsafe.Pointer(&mem[0])),
			size: testPages * pagemap.PageSize,
		}
		tr = pagemap.NewContiguousTranslator(reg.base, reg.size, physBase)
		d = MakeBuilder().WithTranslator(tr).Build()
	})

	AfterEach(func() {
		Expect(unix.Munmap(mem)).To(Succeed())
	})

	for _, name := range fill.Names() {
		p := fill.Parse(name, 0x1234)

		It("should find nothing twice in a row with "+name, func() {
			fillWith(p)

			Expect(d.Scan(reg, p)).To(BeEmpty())
			Expect(d.Scan(reg, p)).To(BeEmpty())
			Expect(d.CheckInitialized(reg, p)).To(Succeed())
		})
	}

	It("should report and repair a single flip", func() {
		p := fill.Parse("aa", 0)
		fillWith(p)

		addr := reg.base + 5*pagemap.PageSize + 0x238
		*memop.Word(addr) ^= 1 << 3

		records := d.Scan(reg, p)

		want := []Record{{
			Direction: OneToZero,
			Address: pagemap.Address{
				Virtual:  addr,
				Physical: physBase + 5*pagemap.PageSize + 0x238,
			},
			BitPosition: 3,
			Expected:    0xAAAAAAAA,
			Actual:      0xAAAAAAA2,
		}}
		Expect(cmp.Diff(want, records)).To(BeEmpty())
		Expect(*memop.Word(addr)).To(Equal(uint64(0xAAAAAAAA)))
		Expect(d.Scan(reg, p)).To(BeEmpty())
	})

	It("should record every flipped bit of a word", func() {
		p := fill.Parse("55", 0)
		fillWith(p)

		addr := reg.base + 0x10
		*memop.Word(addr) ^= 1<<1 | 1<<40

		records := d.Scan(reg, p)

		Expect(records).To(HaveLen(2))
		Expect(records[0].BitPosition).To(Equal(1))
		Expect(records[0].Direction).To(Equal(ZeroToOne))
		Expect(records[1].BitPosition).To(Equal(40))
		Expect(records[1].Direction).To(Equal(ZeroToOne))
		Expect(records[1].Actual).To(Equal(uint64(0x55555555 | 1<<1 | 1<<40)))
	})

	It("should keep repairing after the record limit", func() {
		p := fill.Parse("parity", 0)
		fillWith(p)

		for i := 0; i < 300; i++ {
			*memop.Word(reg.base + uintptr(i)*24) ^= 1 << 63
		}

		records := d.Scan(reg, p)

		Expect(records).To(HaveLen(MaxRecords))
		Expect(d.Dropped()).To(Equal(uint64(300 - MaxRecords)))
		Expect(d.Scan(reg, p)).To(BeEmpty())
		Expect(d.Dropped()).To(BeZero())
	})

	It("should fail the initialization check on a mismatch", func() {
		p := fill.Parse("aa", 0)
		fillWith(p)
		*memop.Word(reg.base + 0x100) = 0

		err := d.CheckInitialized(reg, p)

		Expect(errors.Is(err, ErrNotInitialized)).To(BeTrue())
	})

	It("should leave the physical address empty without a translator", func() {
		p := fill.Parse("aa", 0)
		fillWith(p)
		*memop.Word(reg.base) ^= 1

		records := MakeBuilder().Build().Scan(reg, p)

		Expect(records).To(HaveLen(1))
		Expect(records[0].Address.Physical).To(BeZero())
		Expect(records[0].String()).To(ContainSubstring("bit 0"))
	})
})
