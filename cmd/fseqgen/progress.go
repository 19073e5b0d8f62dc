package main

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"fseqgen/internal/batch"
)

// batchProgress draws a bar for batch.Progress updates. The bar is created on
// the first update, once the run's total is known.
type batchProgress struct {
	out     io.Writer
	visible bool
	bar     *progressbar.ProgressBar
}

func newBatchProgress(out io.Writer, visible bool) *batchProgress {
	return &batchProgress{out: out, visible: visible}
}

func (p *batchProgress) report(pr batch.Progress) {
	if pr.Total <= 0 {
		return
	}
	if p.bar == nil {
		p.bar = progressbar.NewOptions(pr.Total,
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionSetVisibility(p.visible),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionClearOnFinish(),
		)
	}
	p.bar.Describe(fmt.Sprintf("Exporting %s", pr.Label))
	_ = p.bar.Set(pr.Completed)
}

func (p *batchProgress) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

func newDownloadBar(out io.Writer, visible bool, name string) func(received, total int64) {
	var bar *progressbar.ProgressBar
	return func(received, total int64) {
		if bar == nil {
			limit := total
			if limit <= 0 {
				limit = -1
			}
			bar = progressbar.NewOptions64(limit,
				progressbar.OptionSetWriter(out),
				progressbar.OptionSetVisibility(visible),
				progressbar.OptionSetDescription("Downloading "+name),
				progressbar.OptionShowBytes(true),
				progressbar.OptionSetWidth(30),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = bar.Set64(received)
		if total > 0 && received >= total {
			_ = bar.Finish()
		}
	}
}
