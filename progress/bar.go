package progress

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
)

var (
	_ Indicator = (*Bar)(nil)
	_ Indicator = Nop{}
)

// Bar is an Indicator drawing a terminal progress bar of blocks.
type Bar struct {
	w    io.Writer
	desc string
	bar  *progressbar.ProgressBar
}

func NewBar(w io.Writer, desc string) *Bar {
	return &Bar{w: w, desc: desc}
}

func (b *Bar) Start(total int64) {
	b.bar = progressbar.NewOptions64(
		atLeastOne(total),
		progressbar.OptionSetWriter(b.w),
		progressbar.OptionSetDescription(b.desc),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("blocks"),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(0),
	)
}

func (b *Bar) Update(current, total int64) {
	if b.bar == nil {
		return
	}
	if m := atLeastOne(total); m != b.bar.GetMax64() {
		b.bar.ChangeMax64(m)
	}
	b.bar.Set64(current)
}

func (b *Bar) Label(path string) {
	if b.bar == nil {
		b.desc = path
		return
	}
	b.bar.Describe(path)
}

// Stop leaves the bar as it is and moves to a new line,
// so that later output is not drawn over it.
func (b *Bar) Stop() {
	if b.bar == nil {
		return
	}
	b.bar.Exit()
	fmt.Fprintln(b.w)
}

// An empty drive has no blocks but still makes a complete bar.
func atLeastOne(n int64) int64 {
	if n < 1 {
		return 1
	}
	return n
}

// Nop is an Indicator that displays nothing.
type Nop struct{}

func (Nop) Start(int64)         {}
func (Nop) Update(int64, int64) {}
func (Nop) Label(string)        {}
func (Nop) Stop()               {}
