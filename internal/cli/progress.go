package cli

import (
	"os"

	"github.com/schollz/progressbar/v3"
)

// progress draws a progress bar on stderr from (done, total) callbacks. A
// disabled progress ignores every call.
type progress struct {
	desc     string
	bar      *progressbar.ProgressBar
	finished bool
}

func newProgress(enabled bool, desc string) *progress {
	if !enabled {
		return nil
	}
	return &progress{desc: desc}
}

// Update moves the bar to done out of total, creating it on first use.
func (p *progress) Update(done, total int) {
	if p == nil || p.finished {
		return
	}
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription(p.desc),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(0),
			progressbar.OptionOnCompletion(func() { os.Stderr.WriteString("\n") }),
		)
	}
	_ = p.bar.Set(done)
}

// Finish completes the bar if it was started.
func (p *progress) Finish() {
	if p == nil || p.finished {
		return
	}
	p.finished = true
	if p.bar != nil && !p.bar.IsFinished() {
		_ = p.bar.Finish()
	}
}
