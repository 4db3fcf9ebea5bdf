package experiment

import (
	"io"
	"strconv"

	"github.com/cheggaaa/pb/v3"
)

const progressTemplate pb.ProgressBarTemplate = `{{counters . }} ` +
	`{{bar . "[" "#" "#" " " "]"}} {{percent . }} ` +
	`flips: {{string . "flips"}} {{rtime . "ETA %s"}}`

// terminalProgress draws the progress of the run. A nil value draws nothing.
type terminalProgress struct {
	bar *pb.ProgressBar
}

func newTerminalProgress(w io.Writer, total uint64) *terminalProgress {
	if w == nil {
		return nil
	}

	bar := progressTemplate.New(int(total))
	bar.SetWriter(w)
	bar.Set("flips", "0")
	bar.Start()

	return &terminalProgress{bar: bar}
}

func (p *terminalProgress) update(trials, flips uint64) {
	if p == nil {
		return
	}

	p.bar.Set("flips", strconv.FormatUint(flips, 10))
	p.bar.SetCurrent(int64(trials))
}

func (p *terminalProgress) finish() {
	if p == nil {
		return
	}

	p.bar.Finish()
}
