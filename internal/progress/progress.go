// Package progress renders per-file build progress.
package progress

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// Bar counts compiled units. A nil *Bar is valid and draws nothing.
type Bar struct {
	bar *progressbar.ProgressBar
}

// New returns a bar for total units drawn on w, or nil when w is nil.
func New(w io.Writer, total int, description string) *Bar {
	if w == nil {
		return nil
	}

	return &Bar{bar: progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)}
}

// Step advances the bar by one unit and shows name.
func (b *Bar) Step(name string) {
	if b == nil {
		return
	}
	b.bar.Describe(name)
	_ = b.bar.Add(1)
}

// Finish completes and clears the bar.
func (b *Bar) Finish() {
	if b == nil {
		return
	}
	_ = b.bar.Finish()
}
