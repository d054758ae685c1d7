package batch

import (
	"io"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/RyanBlaney/sonido-mood/features"
)

// ProgressObserver draws a progress bar with an ETA for a batch
type ProgressObserver struct {
	out      io.Writer
	progress *mpb.Progress
	bar      *mpb.Bar
}

// NewProgressObserver renders to out, normally stderr
func NewProgressObserver(out io.Writer) *ProgressObserver {
	return &ProgressObserver{out: out}
}

func (p *ProgressObserver) OnStart(total, workers int) {
	p.progress = mpb.New(mpb.WithOutput(p.out), mpb.WithWidth(64))
	p.bar = p.progress.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name("Analyzing: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.Name(" "),
			decor.EwmaETA(decor.ET_STYLE_GO, 30),
		),
	)
}

func (p *ProgressObserver) OnResult(_ string, _ features.AnalysisResult, elapsed time.Duration) {
	if p.bar != nil {
		p.bar.EwmaIncrement(elapsed)
	}
}

// Wait blocks until the bar has been fully rendered
func (p *ProgressObserver) Wait() {
	if p.progress != nil {
		p.progress.Wait()
	}
}
