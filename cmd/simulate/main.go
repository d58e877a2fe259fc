package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joripage/matching-engine/config"
	"github.com/joripage/matching-engine/pkg/command"
	"github.com/joripage/matching-engine/pkg/engine"
	"github.com/joripage/matching-engine/pkg/logging"
	"github.com/joripage/matching-engine/pkg/simulator"
	"github.com/joripage/matching-engine/pkg/stats"
	"go.uber.org/zap"
)

func main() {
	var (
		configFile string
		opts       options
	)
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.IntVar(&opts.steps, "steps", 0, "Override simulator.steps")
	flag.Uint64Var(&opts.seed, "seed", 0, "Override simulator.seed")
	flag.StringVar(&opts.output, "out", "", "Override simulator.output_file, - for stdout")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}

	if err := run(cfg, opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	steps  int
	seed   uint64
	output string
}

// run owns every deferred cleanup so main can exit with a status afterwards.
func run(cfg *config.AppConfig, opts options) error {
	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel))
	defer logger.Sync() // nolint
	defer logger.ReplaceGlobals()()

	simCfg := cfg.Simulator
	if opts.steps > 0 {
		simCfg.Steps = opts.steps
	}
	if opts.seed > 0 {
		simCfg.Seed = opts.seed
	}
	if opts.output != "" {
		simCfg.OutputFile = opts.output
	}

	parser, err := command.NewParser(cfg.Engine.TickSize)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker := stats.NewTracker()
	eng := engine.New(engine.Config{
		Symbol:           cfg.Symbol,
		QueueSize:        cfg.Engine.QueueSize,
		DepthLevels:      cfg.Engine.DepthLevels,
		VerifyInvariants: cfg.Engine.VerifyInvariants,
	}, tracker, logger)

	engCtx, stopEngine := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- eng.Run(engCtx) }()

	sim := simulator.New(simulator.Config{
		Seed:           simCfg.Seed,
		Steps:          simCfg.Steps,
		OrdersPerStep:  simCfg.OrdersPerStep,
		StartPrice:     simCfg.StartPrice,
		Volatility:     simCfg.Volatility,
		MaxQty:         simCfg.MaxQty,
		SpreadTicks:    simCfg.SpreadTicks,
		AggressiveRate: simCfg.AggressiveRate,
	}, eng)

	zap.S().Infof("simulating %d steps of %d orders, seed %d", simCfg.Steps, simCfg.OrdersPerStep, simCfg.Seed)
	tracker.Start()
	if err := sim.Run(ctx); err != nil {
		zap.S().Warnf("simulation stopped early: %v", err)
	}
	tracker.Stop()

	stopEngine()
	if err := <-runErr; err != nil {
		zap.S().Errorf("engine: %v", err)
	}

	if sum, err := tracker.Summary(); err == nil {
		fmt.Fprintln(os.Stderr, sum)
	}

	if err := writeHistory(simCfg.OutputFile, sim.History(), parser); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

func writeHistory(path string, history []simulator.Point, parser *command.Parser) error {
	if path == "" {
		return nil
	}
	format := func(ticks int64) string { return parser.FromTicks(ticks).String() }

	if path == "-" {
		return simulator.WriteCSV(os.Stdout, history, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := simulator.WriteCSV(f, history, format); err != nil {
		_ = f.Close()
		return err
	}
	zap.S().Infof("wrote %d steps to %s", len(history), path)
	return f.Close()
}
