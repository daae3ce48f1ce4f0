package internal

import (
	"fmt"

	tm "github.com/buger/goterm"
)

// Progress prints a replace-in-place status line on stdout during a run.
type Progress struct {
	quiet bool
	dirty bool
}

func NewProgress(quiet bool) *Progress {
	return &Progress{quiet: quiet}
}

// Update redraws the status line for the current file.
func (p *Progress) Update(stats SyncStats, current string) {
	if p.quiet {
		return
	}
	p.dirty = true
	fmt.Printf("\033[2K\r%s / file: %s",
		tm.Color(tm.Bold(fmt.Sprintf("placed %d / duplicates %d / skipped %d / errors %d",
			stats.Placed, stats.Duplicates, stats.Skipped, stats.Errors)), tm.YELLOW),
		current,
	)
}

// Done terminates the status line once the batch is over.
func (p *Progress) Done() {
	if p.quiet || !p.dirty {
		return
	}
	p.dirty = false
	fmt.Println()
}
