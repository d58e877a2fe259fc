package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/joripage/matching-engine/pkg/command"
	"github.com/joripage/matching-engine/pkg/engine"
	"github.com/joripage/matching-engine/pkg/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T) (*session, *bytes.Buffer) {
	t.Helper()
	parser, err := command.NewParser("0.01")
	require.NoError(t, err)

	tracker := stats.NewTracker()
	tracker.Start()
	eng := engine.New(engine.Config{Symbol: "ABC", VerifyInvariants: true}, tracker, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- eng.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errCh)
	})

	out := &bytes.Buffer{}
	return &session{symbol: "ABC", parser: parser, eng: eng, tracker: tracker, out: out}, out
}

func TestSessionScript(t *testing.T) {
	s, out := newSession(t)
	script := strings.Join([]string{
		"sell limit 10.00 5",
		"sell limit 10.01 5",
		"buy limit 10.01 7",
		"book",
		"buy market 100 fok",
		"cancel 2",
		"cancel 2",
		"stats",
		"quit",
		"buy limit 1 1",
	}, "\n")

	require.NoError(t, s.run(context.Background(), strings.NewReader(script)))

	got := out.String()
	assert.Contains(t, got, "order 1 resting, 5 of 5 open")
	assert.Contains(t, got, "trade 5 @ 10 against order 1")
	assert.Contains(t, got, "trade 2 @ 10.01 against order 2")
	assert.Contains(t, got, "order 3 filled")
	assert.Regexp(t, `10\.01\s+3\s+1\n`, got)
	assert.Contains(t, got, "error: order 4: rejected: not enough liquidity")
	assert.Contains(t, got, "order 2 cancelled, 3 SELL @ 10.01 withdrawn")
	assert.Contains(t, got, "error: order not found: 2")
	assert.Contains(t, got, "orders=4 cancels=2 rejected=2 trades=2 volume=7")
	assert.NotContains(t, got, "order 5")
}

func TestSessionRejectsBadInput(t *testing.T) {
	s, out := newSession(t)
	require.NoError(t, s.run(context.Background(), strings.NewReader("buy limit 10.001 5\nfoo\nbuy market 0\n")))

	got := out.String()
	assert.Contains(t, got, "not a multiple of tick")
	assert.Contains(t, got, "unknown command: FOO")
	assert.Contains(t, got, "positive whole number")
}

func TestSessionIOCRemainderDiscarded(t *testing.T) {
	s, out := newSession(t)
	require.NoError(t, s.run(context.Background(), strings.NewReader("sell limit 5 3\nbuy limit 5 10 ioc\nbook\n")))

	got := out.String()
	assert.Contains(t, got, "order 2 done, 7 of 10 unfilled and discarded")
	assert.NotContains(t, got, "order 2 resting")
}
