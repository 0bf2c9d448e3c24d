package upload

import (
	"context"
	"io"
	"math/rand"
	"time"
)

// ProgressSource drives the upload progress for a single item. Run invokes
// report with non-decreasing values in (0, 100], reports exactly 100 once,
// and then returns nil. It returns ctx.Err() if the item is removed while
// the transfer is still in flight.
//
// The simulated source below stands in for transfers where the server never
// sees bytes arrive (URL submissions). Transfers that pass through the
// server report real byte counts via CountingReader instead; both satisfy
// the same completion contract.
type ProgressSource interface {
	Run(ctx context.Context, report func(progress float64)) error
}

// SimulatedSource advances progress in randomized increments on a fixed
// interval. The zero value uses a 200ms interval and steps drawn uniformly
// from (0, 20].
type SimulatedSource struct {
	Interval time.Duration
	MaxStep  float64
}

// Run implements ProgressSource.
func (s *SimulatedSource) Run(ctx context.Context, report func(progress float64)) error {
	interval := s.Interval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	maxStep := s.MaxStep
	if maxStep <= 0 {
		maxStep = 20
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	progress := 0.0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// maxStep - rand*maxStep lands in (0, maxStep]
			progress += maxStep - rand.Float64()*maxStep
			if progress >= 100 {
				report(100)
				return nil
			}
			report(progress)
		}
	}
}

// CountingReader wraps an incoming transfer and reports real byte progress
// as a percentage of the declared total. It caps reports at 99.9 so that
// exactly 100 is only ever reported by the completion path.
type CountingReader struct {
	r      io.Reader
	total  int64
	read   int64
	report func(progress float64)
}

// NewCountingReader creates a progress-reporting reader. A non-positive
// total disables reporting.
func NewCountingReader(r io.Reader, total int64, report func(progress float64)) *CountingReader {
	return &CountingReader{r: r, total: total, report: report}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 && c.total > 0 && c.report != nil {
		c.read += int64(n)
		pct := float64(c.read) / float64(c.total) * 100
		if pct > 99.9 {
			pct = 99.9
		}
		c.report(pct)
	}
	return n, err
}
