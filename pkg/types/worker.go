package types

import "context"

// Outcome is one asynchronous result the pluggable execution worker
// emits for a single intelligence in the batch it was handed. Exactly
// one of Item/Err is meaningful: a fulfilled outcome carries Item
// (with GlobalID set), a rejected outcome carries Err.
type Outcome struct {
	GlobalID string
	Item     *Intelligence
	Err      error
}

// Worker is the pluggable execution capability the core treats as a
// black box (spec.md §1, §9): given a batch, a job id, and the active
// config, it returns a channel of per-item outcomes in no guaranteed
// order. The core does not assume any particular concurrency
// primitive inside the worker — only that the channel is eventually
// closed.
type Worker interface {
	Run(ctx context.Context, batch []*Intelligence, jobID string, cfg ProducerConfig) <-chan Outcome
}
