package cmd

import (
	"fmt"

	"k8s.io/klog/v2"

	"github.com/sarchlab/hammerbed/experiment"
	"github.com/sarchlab/hammerbed/mem/buffer"
	"github.com/sarchlab/hammerbed/mem/pagemap"
)

const mib = 1 << 20

// A mappedBuffer is a buffer together with its translation table.
type mappedBuffer struct {
	buf   *buffer.Buffer
	tr    pagemap.Translator
	table *pagemap.Table
	pm    *pagemap.Pagemap
}

func openBuffer(
	size uint64,
	backing buffer.Backing,
	simulate bool,
) (*mappedBuffer, error) {
	buf, err := buffer.Allocate(size, backing)
	if err != nil {
		return nil, err
	}

	m := &mappedBuffer{buf: buf}

	if simulate {
		m.tr = pagemap.NewContiguousTranslator(
			buf.Base(), buf.Size(), experiment.SimulatedPhysicalBase)
	} else {
		m.pm, err = pagemap.OpenPagemap()
		if err != nil {
			m.Close()
			return nil, err
		}

		m.tr = m.pm
	}

	m.table, err = pagemap.Build(m.tr, buf.Base(), buf.Size())
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("building translation table: %w", err)
	}

	return m, nil
}

func (m *mappedBuffer) Close() {
	if m.pm != nil {
		if err := m.pm.Close(); err != nil {
			klog.Errorf("closing pagemap: %v", err)
		}
	}

	if err := m.buf.Release(); err != nil {
		klog.Errorf("releasing buffer: %v", err)
	}
}
