// Package simulator drives an engine with a synthetic random-walk market and
// records the resulting price history.
package simulator

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"

	"github.com/joripage/matching-engine/pkg/orderbook"
	"go.uber.org/zap"
)

type Config struct {
	Seed           uint64
	Steps          int
	OrdersPerStep  int
	StartPrice     int64   // ticks
	Volatility     float64 // std dev of the mid move per step, in ticks
	MaxQty         uint64
	SpreadTicks    int64   // passive orders rest up to this far from the mid
	AggressiveRate float64 // share of orders that try to take liquidity
}

// Submitter is the part of the engine the simulator drives.
type Submitter interface {
	Submit(ctx context.Context, order orderbook.Order) ([]orderbook.MatchResult, error)
	Depth(ctx context.Context, n int) (orderbook.Depth, error)
}

// Point is the market state at the end of one step. Zero prices mean the
// side was empty or nothing has traded yet.
type Point struct {
	Step     int
	Mid      int64
	Last     int64
	BestBid  int64
	BestAsk  int64
	Volume   uint64
	Trades   int
	Rejected int
}

type Simulator struct {
	cfg     Config
	rng     *rand.Rand
	sub     Submitter
	nextID  uint64
	mid     float64
	last    int64
	history []Point
}

func New(cfg Config, sub Submitter) *Simulator {
	if cfg.OrdersPerStep <= 0 {
		cfg.OrdersPerStep = 10
	}
	if cfg.StartPrice <= 0 {
		cfg.StartPrice = 10_000
	}
	if cfg.MaxQty == 0 {
		cfg.MaxQty = 100
	}
	if cfg.SpreadTicks <= 0 {
		cfg.SpreadTicks = 20
	}
	return &Simulator{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		sub: sub,
		mid: float64(cfg.StartPrice),
	}
}

// Run plays cfg.Steps steps or stops early when ctx is done.
func (s *Simulator) Run(ctx context.Context) error {
	for i := 0; i < s.cfg.Steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.Step(ctx); err != nil {
			return err
		}
	}
	zap.S().Debugf("simulation finished after %d steps, last price %d", len(s.history), s.last)
	return nil
}

// Step moves the mid price once and submits one batch of orders.
func (s *Simulator) Step(ctx context.Context) (Point, error) {
	s.mid = math.Max(1, s.mid+s.rng.NormFloat64()*s.cfg.Volatility)
	mid := int64(math.Round(s.mid))

	p := Point{Step: len(s.history) + 1, Mid: mid}
	for i := 0; i < s.cfg.OrdersPerStep; i++ {
		trades, err := s.sub.Submit(ctx, s.nextOrder(mid))
		switch {
		case errors.Is(err, orderbook.ErrRejectedUnfillable):
			p.Rejected++
		case err != nil:
			return p, err
		}
		for _, tr := range trades {
			p.Trades++
			p.Volume += tr.Qty
			s.last = tr.Price
		}
	}

	depth, err := s.sub.Depth(ctx, 1)
	if err != nil {
		return p, err
	}
	if len(depth.Bids) > 0 {
		p.BestBid = depth.Bids[0].Price
	}
	if len(depth.Asks) > 0 {
		p.BestAsk = depth.Asks[0].Price
	}
	p.Last = s.last

	s.history = append(s.history, p)
	return p, nil
}

func (s *Simulator) nextOrder(mid int64) orderbook.Order {
	s.nextID++
	o := orderbook.Order{
		ID:          s.nextID,
		Side:        orderbook.BUY,
		Qty:         1 + s.rng.Uint64N(s.cfg.MaxQty),
		Type:        orderbook.LIMIT,
		TimeInForce: orderbook.GTC,
	}
	if s.rng.IntN(2) == 1 {
		o.Side = orderbook.SELL
	}

	// passive orders rest behind the mid, aggressive ones reach across it
	offset := 1 + s.rng.Int64N(s.cfg.SpreadTicks)
	if s.rng.Float64() < s.cfg.AggressiveRate {
		offset = -offset
		switch s.rng.IntN(3) {
		case 0:
			o.Type = orderbook.MARKET
			o.TimeInForce = orderbook.IOC
		case 1:
			o.TimeInForce = orderbook.IOC
		case 2:
			o.TimeInForce = orderbook.FOK
		}
	}

	if o.Side == orderbook.BUY {
		o.Price = mid - offset
	} else {
		o.Price = mid + offset
	}
	if o.Type == orderbook.MARKET {
		o.Price = orderbook.MarketBuyPrice
		if o.Side == orderbook.SELL {
			o.Price = orderbook.MarketSellPrice
		}
	}
	o.Price = max(o.Price, 1)
	return o
}

// History returns the points recorded so far.
func (s *Simulator) History() []Point {
	return s.history
}
