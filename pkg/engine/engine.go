// Package engine serializes every access to one order book through a single
// worker goroutine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/joripage/matching-engine/pkg/logging"
	"github.com/joripage/matching-engine/pkg/orderbook"
	"go.uber.org/zap"
)

var (
	ErrEngineStopped  = errors.New("engine stopped")
	errAlreadyRunning = errors.New("engine already running")
)

type Config struct {
	Symbol           string
	QueueSize        int
	DepthLevels      int  // levels attached to each ExecutionReport
	VerifyInvariants bool // run the full book check after every mutation
}

// ExecutionReport describes the outcome of one request handled by the engine.
type ExecutionReport struct {
	Symbol    string                  `json:"symbol"`
	Kind      RequestKind             `json:"kind"`
	Order     orderbook.Order         `json:"order"`
	Trades    []orderbook.MatchResult `json:"trades,omitempty"`
	Err       error                   `json:"-"`
	Latency   time.Duration           `json:"latency"`
	Depth     orderbook.Depth         `json:"depth"` // empty unless the reporter is a DepthReader
	Timestamp time.Time               `json:"timestamp"`
}

// Rejected reports whether the request was refused as a whole.
func (r *ExecutionReport) Rejected() bool {
	return r.Err != nil
}

// Reporter receives every ExecutionReport on the engine goroutine. It must not
// call back into the engine.
type Reporter interface {
	OnExecution(ctx context.Context, report *ExecutionReport)
}

// DepthReader is implemented by reporters that read ExecutionReport.Depth.
// The engine builds the snapshot only when its reporter wants it.
type DepthReader interface {
	NeedsDepth() bool
}

// NeedsDepth reports whether r reads the depth attached to its reports.
func NeedsDepth(r Reporter) bool {
	d, ok := r.(DepthReader)
	return ok && d.NeedsDepth()
}

type RequestKind string

const (
	RequestAdd    RequestKind = "ADD"
	RequestCancel RequestKind = "CANCEL"
	requestDepth  RequestKind = "DEPTH"
)

// A queued request is claimed exactly once, either by the engine or by a
// caller giving up on it.
const (
	reqPending int32 = iota
	reqTaken
	reqAbandoned
)

type request struct {
	ctx   context.Context
	kind  RequestKind
	order orderbook.Order
	id    uint64
	depth int
	resp  chan response
	state *atomic.Int32
}

type response struct {
	trades []orderbook.MatchResult
	order  orderbook.Order
	depth  orderbook.Depth
	err    error
}

// Engine owns an order book and is the only thing that touches it.
type Engine struct {
	cfg        Config
	book       *orderbook.OrderBook
	reqCh      chan request
	done       chan struct{}
	reporter   Reporter
	needsDepth bool
	logger     *logging.Logger
	running    chan struct{}
}

func New(cfg Config, reporter Reporter, logger *logging.Logger) *Engine {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.DepthLevels <= 0 {
		cfg.DepthLevels = 10
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		cfg:        cfg,
		book:       orderbook.NewOrderBook(),
		reqCh:      make(chan request, cfg.QueueSize),
		done:       make(chan struct{}),
		reporter:   reporter,
		needsDepth: NeedsDepth(reporter),
		logger:     logger.With(zap.String("symbol", cfg.Symbol)),
		running:    make(chan struct{}, 1),
	}
}

// Run processes requests until ctx is done. It must be called exactly once.
func (e *Engine) Run(ctx context.Context) error {
	select {
	case e.running <- struct{}{}:
	default:
		return errAlreadyRunning
	}
	defer close(e.done)

	e.logger.Info(ctx, "engine started", zap.Int("queue_size", e.cfg.QueueSize))
	for {
		select {
		case <-ctx.Done():
			e.drain()
			e.logger.Info(ctx, "engine stopped")
			return nil
		case req := <-e.reqCh:
			if !req.state.CompareAndSwap(reqPending, reqTaken) {
				continue // caller gave up while it was queued
			}
			req.resp <- e.handle(req)
		}
	}
}

// drain fails whatever is still queued so no caller waits forever.
func (e *Engine) drain() {
	for {
		select {
		case req := <-e.reqCh:
			if req.state.CompareAndSwap(reqPending, reqTaken) {
				req.resp <- response{err: ErrEngineStopped}
			}
		default:
			return
		}
	}
}

// Submit hands order to the engine and waits for its executions. The order's
// arrival time is assigned when the engine dequeues it.
//
// If ctx ends before the engine dequeues the order, the order is never
// applied and Submit returns ctx.Err(). Once the engine has taken it, Submit
// returns its outcome whatever ctx does.
func (e *Engine) Submit(ctx context.Context, order orderbook.Order) ([]orderbook.MatchResult, error) {
	resp, err := e.do(ctx, request{kind: RequestAdd, order: order})
	return resp.trades, err
}

// Cancel withdraws a resting order and returns what was left of it.
func (e *Engine) Cancel(ctx context.Context, id uint64) (orderbook.Order, error) {
	resp, err := e.do(ctx, request{kind: RequestCancel, id: id})
	return resp.order, err
}

// Depth returns a snapshot of up to n levels per side.
func (e *Engine) Depth(ctx context.Context, n int) (orderbook.Depth, error) {
	resp, err := e.do(ctx, request{kind: requestDepth, depth: n})
	return resp.depth, err
}

func (e *Engine) do(ctx context.Context, req request) (response, error) {
	req.ctx = ctx
	req.resp = make(chan response, 1)
	req.state = new(atomic.Int32)

	select {
	case e.reqCh <- req:
	case <-ctx.Done():
		return response{}, ctx.Err()
	case <-e.done:
		return response{}, ErrEngineStopped
	}

	select {
	case resp := <-req.resp:
		return resp, resp.err
	case <-ctx.Done():
		if req.state.CompareAndSwap(reqPending, reqAbandoned) {
			return response{}, ctx.Err()
		}
		// the engine already took it; its answer is what happened
		return e.await(req)
	case <-e.done:
		return e.stopped(req)
	}
}

func (e *Engine) await(req request) (response, error) {
	select {
	case resp := <-req.resp:
		return resp, resp.err
	case <-e.done:
		return e.stopped(req)
	}
}

// stopped answers a caller once Run has exited. Run may have answered just
// before.
func (e *Engine) stopped(req request) (response, error) {
	select {
	case resp := <-req.resp:
		return resp, resp.err
	default:
		return response{}, ErrEngineStopped
	}
}

func (e *Engine) handle(req request) response {
	if err := req.ctx.Err(); err != nil {
		e.logger.Debug(req.ctx, "request expired in queue", zap.String("kind", string(req.kind)), zap.Error(err))
		return response{err: err}
	}
	if req.kind == requestDepth {
		return response{depth: e.book.Depth(req.depth)}
	}

	start := time.Now()
	var resp response
	switch req.kind {
	case RequestAdd:
		resp.order = req.order
		resp.trades, resp.err = e.book.AddOrder(req.order)
	case RequestCancel:
		resp.order, resp.err = e.book.CancelOrder(req.id)
		if resp.err != nil {
			resp.order.ID = req.id
		}
	}
	latency := time.Since(start)

	if resp.err == nil && e.cfg.VerifyInvariants {
		if err := e.book.CheckInvariants(); err != nil {
			e.logger.Error(req.ctx, "book invariant violated", zap.Error(err), zap.String("kind", string(req.kind)))
			resp.err = fmt.Errorf("after %s: %w", req.kind, err)
		}
	}

	e.logRequest(req, resp)
	e.report(req, resp, latency)
	return resp
}

func (e *Engine) logRequest(req request, resp response) {
	fields := []zap.Field{
		zap.String("kind", string(req.kind)),
		zap.Uint64("order_id", resp.order.ID),
		zap.Int("trades", len(resp.trades)),
	}
	switch {
	case resp.err == nil:
		e.logger.Debug(req.ctx, "request handled", fields...)
	case errors.Is(resp.err, orderbook.ErrBookInvariant):
		// already logged at error level
	default:
		e.logger.Debug(req.ctx, "request rejected", append(fields, zap.Error(resp.err))...)
	}
}

func (e *Engine) report(req request, resp response, latency time.Duration) {
	if e.reporter == nil {
		return
	}
	r := &ExecutionReport{
		Symbol:    e.cfg.Symbol,
		Kind:      req.kind,
		Order:     resp.order,
		Trades:    resp.trades,
		Err:       resp.err,
		Latency:   latency,
		Timestamp: time.Now(),
	}
	if e.needsDepth {
		r.Depth = e.book.Depth(e.cfg.DepthLevels)
	}
	e.reporter.OnExecution(req.ctx, r)
}
