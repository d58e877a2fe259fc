// Package command turns text lines into order book requests.
//
//	BUY|SELL LIMIT <price> <qty> [GTC|IOC|FOK]
//	BUY|SELL MARKET <qty> [IOC|FOK]
//	CANCEL <id>
//	BOOK [levels]
//	STATS | HELP | QUIT
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/joripage/matching-engine/pkg/orderbook"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrSyntax         = errors.New("syntax error")
)

type Kind int

const (
	KindNone Kind = iota
	KindOrder
	KindCancel
	KindBook
	KindStats
	KindHelp
	KindQuit
)

type Command struct {
	Kind     Kind
	Order    orderbook.Order
	CancelID uint64
	Levels   int
}

const Usage = `commands:
  BUY|SELL LIMIT <price> <qty> [GTC|IOC|FOK]
  BUY|SELL MARKET <qty> [IOC|FOK]
  CANCEL <id>
  BOOK [levels]
  STATS
  HELP
  QUIT`

// Parser assigns order ids in the order lines are parsed.
type Parser struct {
	tick   decimal.Decimal
	nextID uint64
}

func NewParser(tickSize string) (*Parser, error) {
	tick, err := decimal.NewFromString(tickSize)
	if err != nil {
		return nil, fmt.Errorf("tick size %q: %w", tickSize, err)
	}
	if !tick.IsPositive() {
		return nil, fmt.Errorf("tick size %q must be positive", tickSize)
	}
	return &Parser{tick: tick}, nil
}

// ToTicks converts a decimal price to whole ticks; prices off the tick grid
// are invalid.
func (p *Parser) ToTicks(price decimal.Decimal) (int64, error) {
	if !price.IsPositive() {
		return 0, fmt.Errorf("%w: price %s must be positive", orderbook.ErrInvalidOrder, price)
	}
	ticks := price.Div(p.tick)
	if !ticks.IsInteger() {
		return 0, fmt.Errorf("%w: price %s is not a multiple of tick %s", orderbook.ErrInvalidOrder, price, p.tick)
	}
	if ticks.GreaterThanOrEqual(decimal.NewFromInt(orderbook.MarketBuyPrice)) {
		return 0, fmt.Errorf("%w: price %s out of range", orderbook.ErrInvalidOrder, price)
	}
	return ticks.IntPart(), nil
}

// FromTicks renders a tick price back in currency units.
func (p *Parser) FromTicks(ticks int64) decimal.Decimal {
	return decimal.NewFromInt(ticks).Mul(p.tick)
}

func (p *Parser) Parse(line string) (Command, error) {
	fields := strings.Fields(strings.ToUpper(line))
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return Command{Kind: KindNone}, nil
	}

	switch fields[0] {
	case "BUY", "SELL":
		return p.parseOrder(orderbook.Side(fields[0]), fields[1:])
	case "CANCEL":
		if len(fields) != 2 {
			return Command{}, fmt.Errorf("%w: CANCEL <id>", ErrSyntax)
		}
		id, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return Command{}, fmt.Errorf("%w: order id %q", ErrSyntax, fields[1])
		}
		return Command{Kind: KindCancel, CancelID: id}, nil
	case "BOOK":
		levels := 10
		if len(fields) > 1 {
			n, err := strconv.Atoi(fields[1])
			if err != nil || n < 0 {
				return Command{}, fmt.Errorf("%w: levels %q", ErrSyntax, fields[1])
			}
			levels = n
		}
		return Command{Kind: KindBook, Levels: levels}, nil
	case "STATS":
		return Command{Kind: KindStats}, nil
	case "HELP", "?":
		return Command{Kind: KindHelp}, nil
	case "QUIT", "EXIT":
		return Command{Kind: KindQuit}, nil
	}
	return Command{}, fmt.Errorf("%w: %s", ErrUnknownCommand, fields[0])
}

func (p *Parser) parseOrder(side orderbook.Side, args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, fmt.Errorf("%w: missing order type", ErrSyntax)
	}
	o := orderbook.Order{Side: side, Type: orderbook.OrderType(args[0])}

	switch o.Type {
	case orderbook.LIMIT:
		if len(args) < 3 || len(args) > 4 {
			return Command{}, fmt.Errorf("%w: %s LIMIT <price> <qty> [tif]", ErrSyntax, side)
		}
		price, err := decimal.NewFromString(args[1])
		if err != nil {
			return Command{}, fmt.Errorf("%w: price %q", ErrSyntax, args[1])
		}
		if o.Price, err = p.ToTicks(price); err != nil {
			return Command{}, err
		}
		args = args[2:]
		o.TimeInForce = orderbook.GTC
	case orderbook.MARKET:
		if len(args) < 2 || len(args) > 3 {
			return Command{}, fmt.Errorf("%w: %s MARKET <qty> [tif]", ErrSyntax, side)
		}
		o.Price = orderbook.MarketBuyPrice
		if side == orderbook.SELL {
			o.Price = orderbook.MarketSellPrice
		}
		args = args[1:]
		o.TimeInForce = orderbook.IOC
	default:
		return Command{}, fmt.Errorf("%w: order type %q", orderbook.ErrInvalidOrder, args[0])
	}

	qty, err := parseQty(args[0])
	if err != nil {
		return Command{}, err
	}
	o.Qty = qty

	if len(args) == 2 {
		o.TimeInForce = orderbook.TimeInForce(args[1])
		if !o.TimeInForce.Valid() {
			return Command{}, fmt.Errorf("%w: time in force %q", orderbook.ErrInvalidOrder, args[1])
		}
	}

	p.nextID++
	o.ID = p.nextID
	return Command{Kind: KindOrder, Order: o}, nil
}

func parseQty(s string) (uint64, error) {
	qty, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: quantity %q", ErrSyntax, s)
	}
	if !qty.IsPositive() || !qty.IsInteger() {
		return 0, fmt.Errorf("%w: quantity %s must be a positive whole number", orderbook.ErrInvalidOrder, qty)
	}
	if !qty.BigInt().IsUint64() {
		return 0, fmt.Errorf("%w: quantity %s out of range", orderbook.ErrInvalidOrder, qty)
	}
	return qty.BigInt().Uint64(), nil
}
