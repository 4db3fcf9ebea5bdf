package pattern

import (
	"errors"
	"math/rand"
	"unsafe"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/unix"

	"github.com/sarchlab/hammerbed/dram/geometry"
	"github.com/sarchlab/hammerbed/dram/rownav"
	"github.com/sarchlab/hammerbed/hammer"
	"github.com/sarchlab/hammerbed/mem/pagemap"
)

const (
	rowBytes = 1 << 16
	rows     = 16
	physBase = uint64(0x8000_0000)
)

var _ = Describe("Generator", func() {
	var (
		mem    []byte
		base   uintptr
		table  *pagemap.Table
		geo    *geometry.Geometry
		gen    *Generator
		before []byte
	)

	newGenerator := func(t *pagemap.Table, sides int) *Generator {
		g, err := MakeBuilder().
			WithHammerer(hammer.MakeBuilder().WithTiming(false).Build()).
			WithNavigator(rownav.NewNavigator(geo, t)).
			WithRegion(t).
			WithRand(rand.New(rand.NewSource(3))).
			WithConfig(hammer.Config{Iterations: 100}).
			WithSides(sides).
			Build()
		Expect(err).NotTo(HaveOccurred())

		return g
	}

	rowOf := func(a pagemap.Address) uint64 {
		return geo.Row(a.Physical) - geo.Row(physBase)
	}

	at := func(row int, offset uintptr) pagemap.Address {
		return pagemap.MustResolve(table, base+uintptr(row)*rowBytes+offset)
	}

	BeforeEach(func() {
		var err error
		mem, err = unix.Mmap(-1, 0, rows*rowBytes,
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
		Expect(err).NotTo(HaveOccurred())

		base = uintptr(unsafe.Pointer(&mem[0]))
		for i := range mem {
			mem[i] = byte(i * 7)
		}
		before = append([]byte(nil), mem...)

		tr := pagemap.NewContiguousTranslator(base, rows*rowBytes, physBase)
		table, err = pagemap.Build(tr, base, rows*rowBytes)
		Expect(err).NotTo(HaveOccurred())

		geo = geometry.MakeBuilder().WithProfileName("linear").MustBuild()
		gen = newGenerator(table, DefaultSides)
	})

	AfterEach(func() {
		Expect(mem).To(Equal(before))
		Expect(unix.Munmap(mem)).To(Succeed())
	})

	It("should draw aligned addresses inside the buffer", func() {
		for i := 0; i < 1000; i++ {
			a, err := gen.RandomAddress()
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Virtual % 8).To(BeZero())
			Expect(table.Contains(a.Virtual)).To(BeTrue())
			Expect(a.Physical).To(Equal(physBase + uint64(a.Virtual-base)))
		}
	})

	It("should hammer a single address", func() {
		a := at(3, 0x1c40)

		res, err := gen.Run(Single, a)

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Sides).To(Equal(1))
		Expect(res.Aggressors).To(Equal([]pagemap.Address{a}))
	})

	It("should pair the address with a decoy in another row", func() {
		a := at(3, 0x1c40)

		res, err := gen.Run(Decoy, a)

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Sides).To(Equal(2))
		Expect(res.Aggressors[0]).To(Equal(a))
		Expect(rowOf(res.Aggressors[1])).NotTo(Equal(uint64(3)))
	})

	It("should hammer both direct neighbors", func() {
		res, err := gen.Run(Double, at(8, 0x440))

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Aggressors).To(Equal([]pagemap.Address{
			at(9, 0x440), at(7, 0x440),
		}))
	})

	It("should skip double-sided hammering at the buffer edge", func() {
		_, err := gen.Run(Double, at(0, 0x440))
		Expect(errors.Is(err, ErrNoNeighbor)).To(BeTrue())

		_, err = gen.Run(Double, at(rows-1, 0x440))
		Expect(errors.Is(err, ErrNoNeighbor)).To(BeTrue())
	})

	It("should hammer the outer pair of the quad", func() {
		res, err := gen.Run(Quad, at(8, 0x808))

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Sides).To(Equal(2))
		Expect(res.Aggressors).To(Equal([]pagemap.Address{
			at(10, 0x808), at(6, 0x808),
		}))
	})

	It("should skip the quad when a far row is missing", func() {
		_, err := gen.Run(Quad, at(1, 0x808))
		Expect(errors.Is(err, ErrNoNeighbor)).To(BeTrue())

		_, err = gen.Run(Quad, at(rows-2, 0x808))
		Expect(errors.Is(err, ErrNoNeighbor)).To(BeTrue())
	})

	It("should skip the quad on a single-page table", func() {
		small, err := pagemap.Build(table, base+5*rowBytes, pagemap.PageSize)
		Expect(err).NotTo(HaveOccurred())

		g := newGenerator(small, DefaultSides)
		a := pagemap.MustResolve(small, base+5*rowBytes+0x100)

		_, err = g.Run(Quad, a)
		Expect(errors.Is(err, ErrNoNeighbor)).To(BeTrue())
	})

	It("should give up on decoys in a single-row buffer", func() {
		small, err := pagemap.Build(table, base+5*rowBytes, pagemap.PageSize)
		Expect(err).NotTo(HaveOccurred())

		g := newGenerator(small, DefaultSides)
		a := pagemap.MustResolve(small, base+5*rowBytes+0x100)

		_, err = g.Run(Decoy, a)
		Expect(errors.Is(err, ErrNoNeighbor)).To(BeTrue())
	})

	It("should spread many-sided aggressors around the address", func() {
		res, err := gen.Run(ManySided, at(8, 0x18))

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Sides).To(Equal(8))

		got := make([]uint64, 0, len(res.Aggressors))
		for _, a := range res.Aggressors {
			got = append(got, rowOf(a))
			Expect(geo.Column(a.Physical)).To(Equal(geo.Column(at(8, 0x18).Physical)))
		}
		Expect(got).To(Equal([]uint64{8, 9, 6, 11, 4, 13, 2, 15}))
	})

	It("should skip many-sided hammering near the edge", func() {
		_, err := gen.ManySided(at(3, 0x18), 8)
		Expect(errors.Is(err, ErrNoNeighbor)).To(BeTrue())
	})

	It("should reject too few sides", func() {
		_, err := gen.ManySided(at(8, 0x18), 1)
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, ErrNoNeighbor)).To(BeFalse())

		_, err = MakeBuilder().
			WithHammerer(hammer.MakeBuilder().Build()).
			WithNavigator(rownav.NewNavigator(geo, table)).
			WithRegion(table).
			WithSides(1).
			Build()
		Expect(err).To(HaveOccurred())
	})

	It("should average over sides and iterations", func() {
		r := Result{Nanoseconds: 8000, Sides: 2}
		Expect(r.PerAccess(100)).To(Equal(uint64(40)))
		Expect(r.PerAccess(0)).To(BeZero())
	})
})

var _ = Describe("ParseKind", func() {
	It("should parse every name", func() {
		for _, name := range KindNames() {
			Expect(ParseKind(name).String()).To(Equal(name))
		}
		Expect(ParseKind("many")).To(Equal(ManySided))
	})

	It("should fall back to quad", func() {
		Expect(ParseKind("triple")).To(Equal(Quad))
	})
})
