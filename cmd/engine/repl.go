package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/joripage/matching-engine/pkg/command"
	"github.com/joripage/matching-engine/pkg/engine"
	"github.com/joripage/matching-engine/pkg/logging"
	"github.com/joripage/matching-engine/pkg/orderbook"
	"github.com/joripage/matching-engine/pkg/stats"
)

type session struct {
	symbol  string
	parser  *command.Parser
	eng     *engine.Engine
	tracker *stats.Tracker
	out     io.Writer
}

// run reads one command per line until QUIT, EOF or ctx is done.
func (s *session) run(ctx context.Context, in io.Reader) error {
	fmt.Fprintf(s.out, "%s matching engine, HELP for commands\n", s.symbol)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		quit, err := s.exec(ctx, scanner.Text())
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func (s *session) exec(ctx context.Context, line string) (bool, error) {
	cmd, err := s.parser.Parse(line)
	if err != nil {
		return false, err
	}
	ctx = logging.NewRequestID(ctx)

	switch cmd.Kind {
	case command.KindOrder:
		trades, err := s.eng.Submit(ctx, cmd.Order)
		if err != nil {
			return false, fmt.Errorf("order %d: %w", cmd.Order.ID, err)
		}
		s.printOrder(cmd.Order, trades)
	case command.KindCancel:
		o, err := s.eng.Cancel(ctx, cmd.CancelID)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "order %d cancelled, %d %s @ %s withdrawn\n", o.ID, o.Qty, o.Side, s.parser.FromTicks(o.Price))
	case command.KindBook:
		depth, err := s.eng.Depth(ctx, cmd.Levels)
		if err != nil {
			return false, err
		}
		s.printDepth(depth)
	case command.KindStats:
		sum, err := s.tracker.Summary()
		if err != nil && !errors.Is(err, stats.ErrNoSamples) {
			return false, err
		}
		fmt.Fprintln(s.out, sum)
	case command.KindHelp:
		fmt.Fprintln(s.out, command.Usage)
	case command.KindQuit:
		return true, nil
	}
	return false, nil
}

func (s *session) printOrder(o orderbook.Order, trades []orderbook.MatchResult) {
	var filled uint64
	for _, tr := range trades {
		filled += tr.Qty
		fmt.Fprintf(s.out, "  trade %d @ %s against order %d\n", tr.Qty, s.parser.FromTicks(tr.Price), tr.RestingOrderID)
	}

	switch {
	case filled == o.Qty:
		fmt.Fprintf(s.out, "order %d filled\n", o.ID)
	case o.Type == orderbook.LIMIT && o.TimeInForce == orderbook.GTC:
		fmt.Fprintf(s.out, "order %d resting, %d of %d open\n", o.ID, o.Qty-filled, o.Qty)
	default:
		fmt.Fprintf(s.out, "order %d done, %d of %d unfilled and discarded\n", o.ID, o.Qty-filled, o.Qty)
	}
}

func (s *session) printDepth(d orderbook.Depth) {
	fmt.Fprintf(s.out, "%-12s %10s %6s\n", "ASK", "QTY", "ORDERS")
	for i := len(d.Asks) - 1; i >= 0; i-- {
		l := d.Asks[i]
		fmt.Fprintf(s.out, "%-12s %10d %6d\n", s.parser.FromTicks(l.Price), l.Qty, l.Orders)
	}
	fmt.Fprintln(s.out, "------------")
	for _, l := range d.Bids {
		fmt.Fprintf(s.out, "%-12s %10d %6d\n", s.parser.FromTicks(l.Price), l.Qty, l.Orders)
	}
	fmt.Fprintf(s.out, "%-12s\n", "BID")
}
