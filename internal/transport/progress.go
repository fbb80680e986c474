package transport

import (
	"io"
	"sync"
)

// ProgressFunc receives upload progress as a percentage in [0,100].
// Calls are monotonically non-decreasing for a single upload.
type ProgressFunc func(percent int)

type progressTracker struct {
	mu    sync.Mutex
	total int64
	sent  int64
	last  int
	fn    ProgressFunc
}

func newProgressTracker(total int64, fn ProgressFunc) *progressTracker {
	return &progressTracker{total: total, last: -1, fn: fn}
}

func (p *progressTracker) add(n int) {
	if n <= 0 {
		return
	}
	p.mu.Lock()
	p.sent += int64(n)
	if p.total <= 0 {
		p.mu.Unlock()
		return
	}
	pct := int(p.sent * 100 / p.total)
	p.mu.Unlock()
	p.report(pct)
}

func (p *progressTracker) report(pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	p.mu.Lock()
	if pct <= p.last {
		p.mu.Unlock()
		return
	}
	p.last = pct
	fn := p.fn
	p.mu.Unlock()
	if fn != nil {
		fn(pct)
	}
}

type progressReader struct {
	r       io.Reader
	tracker *progressTracker
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.tracker.add(n)
	return n, err
}
