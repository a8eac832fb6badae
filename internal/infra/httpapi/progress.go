package httpapi

import (
	"io"
	"sync"

	"github.com/courtvision/analysis-client/internal/domain/port"
)

// progressGate forwards percentages until settle is called; afterwards every
// report is dropped.
type progressGate struct {
	mu      sync.Mutex
	fn      port.ProgressFunc
	last    int
	settled bool
}

func newProgressGate(fn port.ProgressFunc) *progressGate {
	return &progressGate{fn: fn, last: -1}
}

func (g *progressGate) report(percent int) {
	if g.fn == nil {
		return
	}
	percent = min(max(percent, 0), 100)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.settled || percent <= g.last {
		return
	}
	g.last = percent
	g.fn(percent)
}

func (g *progressGate) settle() {
	g.mu.Lock()
	g.settled = true
	g.mu.Unlock()
}

type countingReader struct {
	r     io.Reader
	total int64
	sent  int64
	gate  *progressGate
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 && c.total > 0 {
		c.sent += int64(n)
		c.gate.report(int(c.sent * 100 / c.total))
	}
	return n, err
}
