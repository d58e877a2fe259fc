// Package report holds the collaborators that consume engine output.
package report

import (
	"context"

	"github.com/joripage/matching-engine/pkg/engine"
)

// Multi fans a report out to every reporter in order.
type Multi []engine.Reporter

func (m Multi) OnExecution(ctx context.Context, report *engine.ExecutionReport) {
	for _, r := range m {
		if r != nil {
			r.OnExecution(ctx, report)
		}
	}
}

// NeedsDepth is true when any member reads depth.
func (m Multi) NeedsDepth() bool {
	for _, r := range m {
		if engine.NeedsDepth(r) {
			return true
		}
	}
	return false
}

// Func adapts a plain function to engine.Reporter.
type Func func(ctx context.Context, report *engine.ExecutionReport)

func (f Func) OnExecution(ctx context.Context, report *engine.ExecutionReport) {
	f(ctx, report)
}

// Nop discards every report.
type Nop struct{}

func (Nop) OnExecution(context.Context, *engine.ExecutionReport) {}
