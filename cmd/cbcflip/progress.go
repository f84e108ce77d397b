package main

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"cbcflip/internal/flip"
	"cbcflip/internal/oracle"
	"cbcflip/pkg/logx"
)

// progressObserver draws one bar per byte position while the 256 candidates are probed.
type progressObserver struct {
	w    io.Writer
	bar  *progressbar.ProgressBar
	hits int
	down int
}

func newProgressObserver(w io.Writer) *progressObserver { return &progressObserver{w: w} }

func (p *progressObserver) PositionStarted(index, offset int) {
	p.hits, p.down = 0, 0
	p.bar = progressbar.NewOptions(256,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetDescription(fmt.Sprintf("byte %d (offset %d)", index, offset)),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
}

func (p *progressObserver) Probed(index int, value byte, resp oracle.Response, hit bool) {
	if !resp.Reached() { p.down++ }
	if hit {
		p.hits++
		p.bar.Describe(fmt.Sprintf("byte %d: %d hit(s)", index, p.hits))
	}
	_ = p.bar.Add(1)
}

func (p *progressObserver) PositionDone(step flip.Step) {
	_ = p.bar.Finish()
	if p.down > 0 {
		logx.Warnf("byte %d: %d of 256 requests did not reach the target", step.Index, p.down)
	}
}
