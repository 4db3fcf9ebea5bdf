package datarecording

import "fmt"

// Table names.
const (
	RunsTable     = "runs"
	TrialsTable   = "trials"
	BitflipsTable = "bitflips"
)

// RunEntry is one row of the runs table. Addresses and words are stored as
// hex strings because SQLite integers are signed.
type RunEntry struct {
	RunID       string
	StartTime   string
	Host        string
	Kernel      string
	Backend     string
	Profile     string
	Pattern     string
	BufferSize  int64
	Backing     string
	Iterations  int64
	Activations int64
	Operation   string
	CacheOp     string
	Barrier     bool
	Uncacheable bool
	Fill        string
	Seed        string
	Sides       int
}

// TrialEntry is one row of the trials table.
type TrialEntry struct {
	RunID       string
	Trial       int64
	AggressorVA string
	AggressorPA string
	Sides       int
	Nanoseconds int64
	PerAccessNs int64
	Flips       int
	ScanMs      float64
}

// BitflipEntry is one row of the bitflips table.
type BitflipEntry struct {
	RunID       string
	Trial       int64
	AggressorVA string
	AggressorPA string
	VA          string
	PA          string
	Expected    string
	Actual      string
	Bit         int
	Direction   string
}

// Hex formats a word for storage.
func Hex(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}

// A RunRecorder writes the tables of one run.
type RunRecorder struct {
	recorder DataRecorder
	runID    string
}

// NewRunRecorder creates the tables if needed and records the run.
func NewRunRecorder(r DataRecorder, run RunEntry) *RunRecorder {
	r.CreateTable(RunsTable, RunEntry{})
	r.CreateTable(TrialsTable, TrialEntry{})
	r.CreateTable(BitflipsTable, BitflipEntry{})

	r.InsertData(RunsTable, run)

	return &RunRecorder{
		recorder: r,
		runID:    run.RunID,
	}
}

// RunID returns the ID of the recorded run.
func (r *RunRecorder) RunID() string {
	return r.runID
}

// RecordTrial buffers a trial. The run ID is filled in.
func (r *RunRecorder) RecordTrial(e TrialEntry) {
	e.RunID = r.runID
	r.recorder.InsertData(TrialsTable, e)
}

// RecordBitflip buffers a flip. The run ID is filled in.
func (r *RunRecorder) RecordBitflip(e BitflipEntry) {
	e.RunID = r.runID
	r.recorder.InsertData(BitflipsTable, e)
}

// Flush writes the buffered rows.
func (r *RunRecorder) Flush() {
	r.recorder.Flush()
}
