package worker

import (
	"context"

	"github.com/bitsky-io/producer-agent/pkg/types"
)

// CollectFunc performs the actual intelligence collection. It is the
// one piece of real business logic this package treats as a black box
// (spec.md §1: "the pluggable execution worker ... the core treats it
// as a black box"), supplied by the integrator rather than this
// package.
type CollectFunc func(ctx context.Context, item *types.Intelligence) (dataset map[string]any, err error)

// Task is one item submitted to the pool for the current job.
type Task struct {
	Item *types.Intelligence
	Ctx  context.Context
}
