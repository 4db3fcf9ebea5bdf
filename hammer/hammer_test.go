package hammer

import (
	"errors"
	"fmt"
	"time"
	"unsafe"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
	"golang.org/x/sys/unix"

	"github.com/sarchlab/hammerbed/hammer/memop"
	"github.com/sarchlab/hammerbed/mem/pagemap"
)

func mapPages(n int) ([]byte, uintptr) {
	mem, err := unix.Mmap(-1, 0, n*pagemap.PageSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	Expect(err).NotTo(HaveOccurred())

	return mem, uintptr(unsafe.Pointer(&mem[0]))
}

func target(va uintptr) pagemap.Address {
	return pagemap.Address{Virtual: va, Physical: uint64(va)}
}

var _ = Describe("Hammerer", func() {
	var (
		mem  []byte
		base uintptr
	)

	BeforeEach(func() {
		mem, base = mapPages(4)
		for off := uintptr(0); off < uintptr(len(mem)); off += 8 {
			*memop.Word(base + off) = 0xaaaa_aaaa_0000_0000 | uint64(off)
		}
	})

	AfterEach(func() {
		Expect(unix.Munmap(mem)).To(Succeed())
	})

	Context("with the native backend", func() {
		var h *Hammerer

		BeforeEach(func() {
			h = MakeBuilder().WithTiming(false).Build()
		})

		for _, op := range []Operation{OpLoad, OpStore, OpZeroFill} {
			for _, cacheOp := range []memop.CacheOp{
				memop.CacheOpNone,
				memop.CacheOpClean,
				memop.CacheOpCleanInvalidate,
			} {
				for _, barrier := range []bool{false, true} {
					cfg := Config{
						Iterations: 1000,
						Operation:  op,
						CacheOp:    cacheOp,
						Barrier:    barrier,
					}

					It(fmt.Sprintf("should leave memory untouched with %s", cfg),
						func() {
							before := append([]byte(nil), mem...)
							targets := []pagemap.Address{
								target(base + 0x40),
								target(base + 0x48),
								target(base + 2*pagemap.PageSize + 0x100),
							}

							ns, err := h.Multiple(targets, cfg)

							Expect(err).NotTo(HaveOccurred())
							Expect(ns).To(BeZero())
							Expect(mem).To(Equal(before))
						})
				}
			}
		}

		It("should hammer one and two addresses", func() {
			before := append([]byte(nil), mem...)
			cfg := Config{Iterations: 10, Operation: OpStore}

			_, err := h.Single(target(base+8), cfg)
			Expect(err).NotTo(HaveOccurred())

			_, err = h.Double(target(base+8), target(base+pagemap.PageSize), cfg)
			Expect(err).NotTo(HaveOccurred())

			Expect(mem).To(Equal(before))
		})

		It("should reject empty target lists", func() {
			_, err := h.Hammer(nil, Config{Iterations: 1})
			Expect(errors.Is(err, ErrNoTargets)).To(BeTrue())
		})

		It("should reject invalid targets", func() {
			_, err := h.Double(target(base), pagemap.Address{}, Config{})
			Expect(errors.Is(err, ErrInvalidTarget)).To(BeTrue())

			_, err = h.Single(target(base+3), Config{})
			Expect(errors.Is(err, ErrInvalidTarget)).To(BeTrue())
		})
	})

	Context("with a mock backend", func() {
		var (
			ctrl    *gomock.Controller
			backend *MockBackend
		)

		BeforeEach(func() {
			ctrl = gomock.NewController(GinkgoT())
			backend = NewMockBackend(ctrl)
			backend.EXPECT().LineSize().Return(uintptr(64)).AnyTimes()
		})

		It("should maintain all targets before accessing any", func() {
			a := base + 0x10
			b := base + pagemap.PageSize
			va := *memop.Word(a)
			vb := *memop.Word(b)

			gomock.InOrder(
				backend.EXPECT().Maintain(a, memop.CacheOpCleanInvalidate),
				backend.EXPECT().Barrier(),
				backend.EXPECT().Maintain(b, memop.CacheOpCleanInvalidate),
				backend.EXPECT().Barrier(),

				backend.EXPECT().Maintain(a, memop.CacheOpClean),
				backend.EXPECT().Maintain(b, memop.CacheOpClean),
				backend.EXPECT().Barrier(),
				backend.EXPECT().Store(a, ^va),
				backend.EXPECT().Store(b, ^vb),

				backend.EXPECT().Maintain(a, memop.CacheOpClean),
				backend.EXPECT().Maintain(b, memop.CacheOpClean),
				backend.EXPECT().Barrier(),
				backend.EXPECT().Load(a).Return(va),
				backend.EXPECT().Load(b).Return(vb),
			)

			h := MakeBuilder().WithBackend(backend).WithTiming(false).Build()
			_, err := h.Double(target(a), target(b), Config{
				Iterations: 1,
				Operation:  OpStore,
				CacheOp:    memop.CacheOpClean,
				Barrier:    true,
			})

			Expect(err).NotTo(HaveOccurred())
		})

		It("should skip maintenance and barriers when disabled", func() {
			a := base + 0x20
			v := *memop.Word(a)

			gomock.InOrder(
				backend.EXPECT().Maintain(a, memop.CacheOpCleanInvalidate),
				backend.EXPECT().Barrier(),
				backend.EXPECT().Load(a).Times(3),
				backend.EXPECT().Maintain(a, memop.CacheOpClean),
				backend.EXPECT().Barrier(),
				backend.EXPECT().Load(a).Return(v),
			)

			h := MakeBuilder().WithBackend(backend).WithTiming(false).Build()
			_, err := h.Single(target(a), Config{Iterations: 3})

			Expect(err).NotTo(HaveOccurred())
		})

		It("should measure the loop with the clock", func() {
			a := base + 0x20
			v := *memop.Word(a)

			backend.EXPECT().Maintain(gomock.Any(), gomock.Any()).AnyTimes()
			backend.EXPECT().Barrier().AnyTimes()
			backend.EXPECT().Load(a).Return(v).AnyTimes()

			now := time.Unix(100, 0)
			clock := func() time.Time {
				now = now.Add(1500 * time.Nanosecond)
				return now
			}

			h := MakeBuilder().WithBackend(backend).WithClock(clock).Build()
			ns, err := h.Single(target(a), Config{Iterations: 5})

			Expect(err).NotTo(HaveOccurred())
			Expect(ns).To(Equal(uint64(1500)))
		})

		It("should restore the whole line after zero fills", func() {
			a := base + 0x88
			lineBase := base + 0x80
			before := append([]byte(nil), mem[0x80:0xc0]...)

			backend.EXPECT().Maintain(gomock.Any(), gomock.Any()).AnyTimes()
			backend.EXPECT().Barrier().AnyTimes()
			backend.EXPECT().ZeroLine(a).Do(func(uintptr) {
				copy(memop.Line(lineBase, 64), make([]byte, 64))
			}).Times(2)
			backend.EXPECT().Load(a).DoAndReturn(func(addr uintptr) uint64 {
				return *memop.Word(addr)
			})

			h := MakeBuilder().WithBackend(backend).WithTiming(false).Build()
			_, err := h.Single(target(a), Config{
				Iterations: 2,
				Operation:  OpZeroFill,
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(mem[0x80:0xc0]).To(Equal(before))
		})

		It("should panic when the restore does not hold", func() {
			a := base + 0x30
			v := *memop.Word(a)

			backend.EXPECT().Maintain(gomock.Any(), gomock.Any()).AnyTimes()
			backend.EXPECT().Barrier().AnyTimes()
			backend.EXPECT().Store(a, ^v).AnyTimes()
			backend.EXPECT().Load(a).Return(v ^ 1)

			h := MakeBuilder().WithBackend(backend).WithTiming(false).Build()

			defer func() {
				r := recover()
				Expect(r).To(BeAssignableToTypeOf(&CorruptionError{}))

				cerr := r.(*CorruptionError)
				Expect(cerr.Expected).To(Equal(v))
				Expect(cerr.Actual).To(Equal(v ^ 1))
				Expect(cerr.Error()).To(ContainSubstring("corrupted"))
			}()

			_, _ = h.Single(target(a), Config{Iterations: 1, Operation: OpStore})
			Fail("hammering should have panicked")
		})
	})
})

var _ = Describe("ParseOperation", func() {
	It("should parse the known names", func() {
		Expect(ParseOperation("ldr")).To(Equal(OpLoad))
		Expect(ParseOperation("STR")).To(Equal(OpStore))
		Expect(ParseOperation("zva")).To(Equal(OpZeroFill))
	})

	It("should fall back to loads", func() {
		Expect(ParseOperation("prefetch")).To(Equal(DefaultOperation))
	})
})
