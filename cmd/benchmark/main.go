package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/joripage/matching-engine/pkg/engine"
	"github.com/joripage/matching-engine/pkg/orderbook"
	"github.com/joripage/matching-engine/pkg/stats"
)

const (
	minPrice = 10_000 // ticks
	maxPrice = 20_000
	minQty   = 1
	maxQty   = 100
)

func randomOrder(rng *rand.Rand, id uint64) orderbook.Order {
	side := orderbook.BUY
	if rng.IntN(2) == 0 {
		side = orderbook.SELL
	}
	o := orderbook.Order{
		ID:          id,
		Side:        side,
		Price:       minPrice + rng.Int64N(maxPrice-minPrice+1),
		Qty:         minQty + rng.Uint64N(maxQty-minQty+1),
		Type:        orderbook.LIMIT,
		TimeInForce: orderbook.GTC,
	}
	switch rng.IntN(20) {
	case 0:
		o.TimeInForce = orderbook.IOC
	case 1:
		o.TimeInForce = orderbook.FOK
	case 2:
		o.Type = orderbook.MARKET
		o.TimeInForce = orderbook.IOC
	}
	return o
}

func main() {
	var (
		numOrders int
		seed      uint64
		verify    bool
	)
	flag.IntVar(&numOrders, "orders", 1_000_000, "Number of orders to submit")
	flag.Uint64Var(&seed, "seed", uint64(time.Now().UnixNano()), "Random seed")
	flag.BoolVar(&verify, "verify", false, "Check book invariants after every request")
	flag.Parse()

	rng := rand.New(rand.NewPCG(seed, seed>>1))
	tracker := stats.NewTracker()
	eng := engine.New(engine.Config{Symbol: "ABC", VerifyInvariants: verify}, tracker, nil)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- eng.Run(ctx) }()

	tracker.Start()
	for i := 1; i <= numOrders; i++ {
		trades, err := eng.Submit(ctx, randomOrder(rng, uint64(i)))
		if err != nil {
			continue
		}
		// first few matches as a sanity check
		for _, r := range trades {
			if r.IncomingOrderID <= 20 {
				log.Printf("✅ Match: %s[%d] <=> [%d] @ %d Qty %d\n",
					r.Side, r.IncomingOrderID, r.RestingOrderID, r.Price, r.Qty)
			}
		}
	}
	tracker.Stop()

	depth, _ := eng.Depth(ctx, 0)
	cancel()
	if err := <-runErr; err != nil {
		log.Fatal(err)
	}

	sum, err := tracker.Summary()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("--------")
	fmt.Printf("🏁 Total Orders     : %d (seed %d)\n", sum.Orders, seed)
	fmt.Printf("✅ Total Matches    : %d\n", sum.Trades)
	fmt.Printf("📦 Total Matched Qty: %d\n", sum.Volume)
	fmt.Printf("🚫 Rejected         : %d\n", sum.Rejected)
	if sum.Broken > 0 {
		fmt.Printf("💥 Invariant errors : %d\n", sum.Broken)
	}
	fmt.Printf("📚 Levels left      : %d bids, %d asks\n", len(depth.Bids), len(depth.Asks))
	fmt.Printf("⏱️ Time Taken       : %s (%.0f orders/s)\n", sum.Elapsed, sum.OrdersSec)
	fmt.Printf("⚡ Latency          : mean %s p50 %s p99 %s max %s\n", sum.Mean, sum.P50, sum.P99, sum.Max)
}
