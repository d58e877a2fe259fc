// Package stats aggregates latency and volume figures for a benchmark or
// simulation run.
package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/joripage/matching-engine/pkg/engine"
	"github.com/joripage/matching-engine/pkg/orderbook"
	mstats "github.com/montanaflynn/stats"
)

var ErrNoSamples = errors.New("no latency samples")

// Summary is a snapshot of a Tracker.
type Summary struct {
	Orders    int           `json:"orders"`
	Cancels   int           `json:"cancels"`
	Rejected  int           `json:"rejected"`
	Broken    int           `json:"invariant_failures"` // applied, then failed the book check
	Trades    int           `json:"trades"`
	Volume    uint64        `json:"volume"`
	Elapsed   time.Duration `json:"elapsed"`
	Mean      time.Duration `json:"mean"`
	P50       time.Duration `json:"p50"`
	P99       time.Duration `json:"p99"`
	Max       time.Duration `json:"max"`
	OrdersSec float64       `json:"orders_per_sec"`
}

func (s Summary) String() string {
	return fmt.Sprintf(
		"orders=%d cancels=%d rejected=%d trades=%d volume=%d invariant_failures=%d elapsed=%s rate=%.0f/s latency mean=%s p50=%s p99=%s max=%s",
		s.Orders, s.Cancels, s.Rejected, s.Trades, s.Volume, s.Broken, s.Elapsed, s.OrdersSec, s.Mean, s.P50, s.P99, s.Max,
	)
}

// Tracker records samples only between Start and Stop.
type Tracker struct {
	mu       sync.Mutex
	running  bool
	started  time.Time
	stopped  time.Time
	samples  []float64 // nanoseconds
	orders   int
	cancels  int
	rejected int
	broken   int
	trades   int
	volume   uint64
	now      func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Start clears previous figures and begins a run.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = true
	t.started = t.now()
	t.stopped = time.Time{}
	t.samples = t.samples[:0]
	t.orders, t.cancels, t.rejected, t.broken, t.trades, t.volume = 0, 0, 0, 0, 0, 0
}

// Stop ends the run; later reports are ignored.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		t.running = false
		t.stopped = t.now()
	}
}

func (t *Tracker) OnExecution(_ context.Context, report *engine.ExecutionReport) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}

	switch report.Kind {
	case engine.RequestAdd:
		t.orders++
	case engine.RequestCancel:
		t.cancels++
	}
	// a request that failed the book check was still applied, so its trades
	// count and it is not a rejection
	switch {
	case errors.Is(report.Err, orderbook.ErrBookInvariant):
		t.broken++
	case report.Rejected():
		t.rejected++
	}
	t.samples = append(t.samples, float64(report.Latency.Nanoseconds()))
	for _, m := range report.Trades {
		t.trades++
		t.volume += m.Qty
	}
}

// Record adds a bare latency sample, for callers timing something other than
// an engine request.
func (t *Tracker) Record(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		t.samples = append(t.samples, float64(d.Nanoseconds()))
	}
}

// RecordTrades counts executions produced outside a reported request.
func (t *Tracker) RecordTrades(results []orderbook.MatchResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	for _, m := range results {
		t.trades++
		t.volume += m.Qty
	}
}

// Summary computes the figures so far. It fails only when nothing has been
// sampled.
func (t *Tracker) Summary() (Summary, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	end := t.stopped
	if t.running || end.IsZero() {
		end = t.now()
	}
	s := Summary{
		Orders:   t.orders,
		Cancels:  t.cancels,
		Rejected: t.rejected,
		Broken:   t.broken,
		Trades:   t.trades,
		Volume:   t.volume,
		Elapsed:  end.Sub(t.started),
	}
	if s.Elapsed > 0 {
		s.OrdersSec = float64(s.Orders+s.Cancels) / s.Elapsed.Seconds()
	}
	if len(t.samples) == 0 {
		return s, ErrNoSamples
	}

	data := mstats.Float64Data(t.samples)
	mean, err := data.Mean()
	if err != nil {
		return s, err
	}
	p50, err := data.Percentile(50)
	if err != nil {
		return s, err
	}
	p99, err := data.Percentile(99)
	if err != nil {
		return s, err
	}
	peak, err := data.Max()
	if err != nil {
		return s, err
	}
	s.Mean = time.Duration(mean)
	s.P50 = time.Duration(p50)
	s.P99 = time.Duration(p99)
	s.Max = time.Duration(peak)
	return s, nil
}
