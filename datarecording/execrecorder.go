package datarecording

import (
	"os"
	"runtime"
	"strings"
	"time"
)

// ExecTable is the table that describes the process that recorded the runs.
const ExecTable = "exec_info"

const execTimeFormat = "2006-01-02 15:04:05.000000000"

// ExecInfo is one property of a recorded execution.
type ExecInfo struct {
	RunID    string
	Property string
	Value    string
}

// ExecRecorder records how the program was invoked.
type ExecRecorder struct {
	runID    string
	recorder DataRecorder
	entries  []ExecInfo
	now      func() time.Time
}

// NewExecRecorder creates the execution table if needed.
func NewExecRecorder(r DataRecorder, runID string) *ExecRecorder {
	r.CreateTable(ExecTable, ExecInfo{})

	return &ExecRecorder{
		runID:    runID,
		recorder: r,
		now:      time.Now,
	}
}

func (e *ExecRecorder) add(property, value string) {
	e.entries = append(e.entries, ExecInfo{
		RunID:    e.runID,
		Property: property,
		Value:    value,
	})
}

// Start remembers the start time, the command line and the platform.
func (e *ExecRecorder) Start() {
	e.add("Start Time", e.now().Format(execTimeFormat))
	e.add("Command", strings.Join(os.Args, " "))

	cwd, err := os.Getwd()
	if err != nil {
		panic(err)
	}

	e.add("Working Directory", cwd)
	e.add("Platform", runtime.GOOS+"/"+runtime.GOARCH+" "+runtime.Version())
}

// End writes the remembered properties along with the end time.
func (e *ExecRecorder) End() {
	e.add("End Time", e.now().Format(execTimeFormat))

	for _, entry := range e.entries {
		e.recorder.InsertData(ExecTable, entry)
	}

	e.entries = nil

	e.recorder.Flush()
}
