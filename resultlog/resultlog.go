// Package resultlog writes the human-readable result file of a run.
package resultlog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/hammerbed/bitflip"
	"github.com/sarchlab/hammerbed/mem/pagemap"
)

const separator = "----------------------------------------"

// DefaultPath returns the default file name, based on the given time.
func DefaultPath(t time.Time) string {
	return filepath.Join("logs", "flips_"+t.Format("20060102_150405")+".txt")
}

// Header describes the run at the top of the file.
type Header struct {
	BufferSize  uint64
	Backing     string
	Pattern     string
	Iterations  uint64
	Activations uint64
	Operation   string
	CacheOp     string
	Barrier     bool
	Uncacheable bool
	Fill        string
	Seed        uint64
	Sides       int
	Profile     string
}

// A Flip is one line of the file.
type Flip struct {
	Iteration uint64
	Aggressor pagemap.Address
	Record    bitflip.Record
}

// Writer writes the result file. Every line is flushed as soon as it is
// written so that the file survives a crash of the machine.
type Writer struct {
	path string
	file *os.File
	w    *bufio.Writer
	n    uint64
}

// Create creates the file, and its directory if needed. An existing file is
// truncated.
func Create(path string) (*Writer, error) {
	if path == "" {
		path = DefaultPath(time.Now())
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating result directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating result file: %w", err)
	}

	w := &Writer{
		path: path,
		file: file,
		w:    bufio.NewWriter(file),
	}

	atexit.Register(func() {
		_ = w.Close()
	})

	return w, nil
}

// Path returns the path of the file.
func (w *Writer) Path() string {
	return w.path
}

// Flips returns the number of flip lines written.
func (w *Writer) Flips() uint64 {
	return w.n
}

// WriteHeader writes the run description.
func (w *Writer) WriteHeader(h Header) error {
	fmt.Fprintf(w.w, "Buffer Size: %d\n", h.BufferSize)
	fmt.Fprintf(w.w, "Buffer Type: %s\n", h.Backing)
	fmt.Fprintf(w.w, "Hammer Pattern: %s\n", h.Pattern)
	fmt.Fprintf(w.w, "Iterations: %d\n", h.Iterations)
	fmt.Fprintf(w.w, "Hammer Iterations: %d\n", h.Activations)
	fmt.Fprintf(w.w, "Operation Type: %s\n", h.Operation)
	fmt.Fprintf(w.w, "Cache Operation: %s\n", h.CacheOp)
	fmt.Fprintf(w.w, "Add DSB: %t\n", h.Barrier)
	fmt.Fprintf(w.w, "Uncacheable: %t\n", h.Uncacheable)
	fmt.Fprintf(w.w, "Fill Pattern: %s\n", h.Fill)
	fmt.Fprintf(w.w, "Seed: %d\n", h.Seed)
	fmt.Fprintf(w.w, "Sides: %d\n", h.Sides)
	fmt.Fprintf(w.w, "Geometry: %s\n", h.Profile)
	fmt.Fprintf(w.w, "%s\n", separator)

	return w.flush()
}

// WriteFlip writes one flip line.
func (w *Writer) WriteFlip(f Flip) error {
	r := f.Record

	fmt.Fprintf(w.w,
		"Iter: %d, Aggr_v: 0x%x, Aggr_p: 0x%x, Virtual: 0x%x, Physical: 0x%x, "+
			"Expected: 0x%x, Actual: 0x%x, Bit_pos: %d, Direction: %s\n",
		f.Iteration,
		f.Aggressor.Virtual, f.Aggressor.Physical,
		r.Address.Virtual, r.Address.Physical,
		r.Expected, r.Actual, r.BitPosition, r.Direction)

	w.n++

	return w.flush()
}

// WriteSummary closes the flip list with the totals of the run.
func (w *Writer) WriteSummary(trials, skipped, dropped uint64) error {
	fmt.Fprintf(w.w, "%s\n", separator)
	fmt.Fprintf(w.w, "Trials: %d\n", trials)
	fmt.Fprintf(w.w, "Skipped: %d\n", skipped)
	fmt.Fprintf(w.w, "Flips: %d\n", w.n)
	fmt.Fprintf(w.w, "Unrecorded Flips: %d\n", dropped)

	return w.flush()
}

func (w *Writer) flush() error {
	if w.file == nil {
		return os.ErrClosed
	}

	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("writing result file: %w", err)
	}

	return nil
}

// Close flushes and closes the file. Closing twice is a no-op.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}

	err := w.w.Flush()
	cerr := w.file.Close()
	w.file = nil

	if err != nil {
		return err
	}

	return cerr
}
