package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joripage/matching-engine/pkg/orderbook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	mu      sync.Mutex
	reports []*ExecutionReport
}

func (r *recordingReporter) OnExecution(_ context.Context, report *ExecutionReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
}

func (r *recordingReporter) NeedsDepth() bool { return true }

func (r *recordingReporter) all() []*ExecutionReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*ExecutionReport(nil), r.reports...)
}

func startEngine(t *testing.T, cfg Config, reporter Reporter) *Engine {
	t.Helper()
	e := New(cfg, reporter, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errCh)
	})
	return e
}

func limit(id uint64, side orderbook.Side, price int64, qty uint64, tif orderbook.TimeInForce) orderbook.Order {
	return orderbook.Order{ID: id, Side: side, Price: price, Qty: qty, Type: orderbook.LIMIT, TimeInForce: tif}
}

func TestSubmitAndReport(t *testing.T) {
	rep := &recordingReporter{}
	e := startEngine(t, Config{Symbol: "ABC", VerifyInvariants: true, DepthLevels: 5}, rep)
	ctx := context.Background()

	trades, err := e.Submit(ctx, limit(1, orderbook.BUY, 100, 10, orderbook.GTC))
	require.NoError(t, err)
	assert.Empty(t, trades)

	trades, err = e.Submit(ctx, limit(2, orderbook.SELL, 100, 4, orderbook.GTC))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, uint64(4), trades[0].Qty)
	assert.Equal(t, int64(100), trades[0].Price)
	assert.Equal(t, uint64(1), trades[0].RestingOrderID)
	assert.Equal(t, uint64(2), trades[0].IncomingOrderID)

	depth, err := e.Depth(ctx, 10)
	require.NoError(t, err)
	require.Len(t, depth.Bids, 1)
	assert.Equal(t, uint64(6), depth.Bids[0].Qty)
	assert.Empty(t, depth.Asks)

	reports := rep.all()
	require.Len(t, reports, 2, "depth queries are not reported")
	assert.Equal(t, "ABC", reports[1].Symbol)
	assert.Equal(t, RequestAdd, reports[1].Kind)
	assert.Equal(t, uint64(2), reports[1].Order.ID)
	assert.Equal(t, uint64(4), reports[1].Order.Qty)
	assert.Len(t, reports[1].Trades, 1)
	assert.False(t, reports[1].Rejected())
	assert.Equal(t, uint64(6), reports[1].Depth.Bids[0].Qty)
}

func TestRejectionsAreSynchronous(t *testing.T) {
	rep := &recordingReporter{}
	e := startEngine(t, Config{Symbol: "ABC"}, rep)
	ctx := context.Background()

	_, err := e.Submit(ctx, limit(1, orderbook.SELL, 100, 3, orderbook.GTC))
	require.NoError(t, err)

	trades, err := e.Submit(ctx, limit(2, orderbook.BUY, 100, 10, orderbook.FOK))
	assert.ErrorIs(t, err, orderbook.ErrRejectedUnfillable)
	assert.Empty(t, trades)

	_, err = e.Submit(ctx, limit(3, orderbook.BUY, 100, 0, orderbook.GTC))
	assert.ErrorIs(t, err, orderbook.ErrInvalidOrder)

	reports := rep.all()
	require.Len(t, reports, 3)
	assert.True(t, reports[1].Rejected())
	assert.True(t, reports[2].Rejected())

	depth, err := e.Depth(ctx, 0)
	require.NoError(t, err)
	require.Len(t, depth.Asks, 1)
	assert.Equal(t, uint64(3), depth.Asks[0].Qty)
}

func TestCancel(t *testing.T) {
	rep := &recordingReporter{}
	e := startEngine(t, Config{}, rep)
	ctx := context.Background()

	_, err := e.Submit(ctx, limit(7, orderbook.BUY, 99, 5, orderbook.GTC))
	require.NoError(t, err)

	cancelled, err := e.Cancel(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), cancelled.Qty)

	_, err = e.Cancel(ctx, 7)
	assert.ErrorIs(t, err, orderbook.ErrOrderNotFound)

	reports := rep.all()
	require.Len(t, reports, 3)
	assert.Equal(t, RequestCancel, reports[2].Kind)
	assert.Equal(t, uint64(7), reports[2].Order.ID)
	assert.Empty(t, reports[1].Depth.Bids)
}

func TestConcurrentSubmitters(t *testing.T) {
	e := startEngine(t, Config{VerifyInvariants: true, QueueSize: 8}, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var matched uint64
	n := 500
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(id uint64) {
			defer wg.Done()
			trades, err := e.Submit(ctx, limit(id, orderbook.BUY, 100, 10, orderbook.GTC))
			assert.NoError(t, err)
			mu.Lock()
			for _, tr := range trades {
				matched += tr.Qty
			}
			mu.Unlock()
		}(uint64(2*i + 1))
		go func(id uint64) {
			defer wg.Done()
			trades, err := e.Submit(ctx, limit(id, orderbook.SELL, 100, 10, orderbook.GTC))
			assert.NoError(t, err)
			mu.Lock()
			for _, tr := range trades {
				matched += tr.Qty
			}
			mu.Unlock()
		}(uint64(2*i + 2))
	}
	wg.Wait()

	assert.Equal(t, uint64(10*n), matched)
	depth, err := e.Depth(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, depth.Bids)
	assert.Empty(t, depth.Asks)
}

func TestStoppedEngine(t *testing.T) {
	e := New(Config{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()

	_, err := e.Submit(context.Background(), limit(1, orderbook.BUY, 1, 1, orderbook.GTC))
	require.NoError(t, err)

	cancel()
	require.NoError(t, <-errCh)

	_, err = e.Submit(context.Background(), limit(2, orderbook.BUY, 1, 1, orderbook.GTC))
	assert.ErrorIs(t, err, ErrEngineStopped)
	assert.True(t, errors.Is(e.Run(context.Background()), errAlreadyRunning))
}

func TestCallerContextCancelled(t *testing.T) {
	e := New(Config{QueueSize: 1}, nil, nil) // not started yet
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := e.Submit(ctx, limit(1, orderbook.BUY, 1, 1, orderbook.GTC))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the expired order is still queued; starting the engine must not apply it
	runCtx, stop := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(runCtx) }()
	defer func() {
		stop()
		require.NoError(t, <-errCh)
	}()

	depth, err := e.Depth(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, depth.Bids)
}

// blockingReporter holds the engine inside its first report until released.
type blockingReporter struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
	count   atomic.Int32
}

func newBlockingReporter() *blockingReporter {
	return &blockingReporter{entered: make(chan struct{}), release: make(chan struct{})}
}

func (r *blockingReporter) OnExecution(context.Context, *ExecutionReport) {
	r.count.Add(1)
	r.once.Do(func() {
		close(r.entered)
		<-r.release
	})
}

func TestExpiredWhileQueuedIsNotApplied(t *testing.T) {
	rep := newBlockingReporter()
	e := startEngine(t, Config{}, rep)

	firstErr := make(chan error, 1)
	go func() {
		_, err := e.Submit(context.Background(), limit(1, orderbook.SELL, 100, 5, orderbook.GTC))
		firstErr <- err
	}()
	<-rep.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	trades, err := e.Submit(ctx, limit(2, orderbook.BUY, 100, 5, orderbook.GTC))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, trades)

	close(rep.release)
	require.NoError(t, <-firstErr)

	depth, err := e.Depth(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, depth.Bids)
	require.Len(t, depth.Asks, 1)
	assert.Equal(t, uint64(5), depth.Asks[0].Qty, "order 2 must not have traded")
	assert.Equal(t, int32(1), rep.count.Load(), "abandoned request is not reported")
}

type depthCounter struct{ n int }

func (c *depthCounter) OnExecution(_ context.Context, r *ExecutionReport) {
	c.n += len(r.Depth.Bids) + len(r.Depth.Asks)
}

func TestDepthBuiltOnlyForDepthReaders(t *testing.T) {
	plain := &depthCounter{}
	e := startEngine(t, Config{}, plain)
	ctx := context.Background()
	for i := uint64(1); i <= 3; i++ {
		_, err := e.Submit(ctx, limit(i, orderbook.BUY, int64(100+i), 1, orderbook.GTC))
		require.NoError(t, err)
	}
	assert.Zero(t, plain.n, "reporter without NeedsDepth gets no snapshot")

	rep := &recordingReporter{}
	e = startEngine(t, Config{DepthLevels: 2}, rep)
	for i := uint64(1); i <= 3; i++ {
		_, err := e.Submit(ctx, limit(i, orderbook.BUY, int64(100+i), 1, orderbook.GTC))
		require.NoError(t, err)
	}
	last := rep.all()[2]
	require.Len(t, last.Depth.Bids, 2)
	assert.Equal(t, int64(103), last.Depth.Bids[0].Price)

	assert.False(t, NeedsDepth(nil))
	assert.False(t, NeedsDepth(plain))
	assert.True(t, NeedsDepth(rep))
}
