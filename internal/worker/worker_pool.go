// ============================================================================
// Worker Pool - concurrent intelligence collection
// ============================================================================
//
// Package: internal/worker
// File: worker_pool.go
// Function: manages the lifecycle of N Worker goroutines and fans a
// job's batch out to them.
//
// Architecture:
//   ┌─────────────┐
//   │  Job Runner │ --Run(batch)--> taskCh
//   └─────────────┘
//         ↑
//     outcome chan
//         ↑
//   ┌─────────────┐
//   │    Pool     │
//   │  ┌────────┐ │
//   │  │Worker 1│←── taskCh
//   │  │Worker 2│←── taskCh   ──→ outcomeCh
//   │  │Worker 3│←── taskCh
//   │  └────────┘ │
//   └─────────────┘
//
// Lifecycle:
//   1. NewPool() creates the pool and its channels.
//   2. Start(n) launches n Worker goroutines.
//   3. Run(ctx, batch, jobID, cfg) submits one job's batch and returns
//      a channel of Outcomes, satisfying types.Worker.
//   4. Stop() closes taskCh, waits for all Workers, closes outcomeCh.
//
// Because the core runs at most one job per Producer at a time
// (spec.md Non-goals), Run is never called concurrently with itself on
// the same Pool.
// ============================================================================

package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/bitsky-io/producer-agent/pkg/types"
)

var (
	// ErrPoolClosed means the pool has been stopped and can no longer
	// accept tasks.
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrPoolNotStarted means Start has not been called yet.
	ErrPoolNotStarted = errors.New("worker pool not started")
)

// Pool is a fixed-size group of Workers sharing a task channel.
type Pool struct {
	workers   []*Worker
	taskCh    chan Task
	outcomeCh chan types.Outcome
	stopCh    chan struct{}
	collect   CollectFunc
	wg        sync.WaitGroup
	started   bool
	stopped   bool
	mu        sync.Mutex
}

// NewPool creates a Pool. bufferSize sizes the task and outcome
// channels; collect is the black-box collection function every
// launched Worker invokes.
func NewPool(bufferSize int, collect CollectFunc) *Pool {
	return &Pool{
		workers:   make([]*Worker, 0),
		taskCh:    make(chan Task, bufferSize),
		outcomeCh: make(chan types.Outcome, bufferSize),
		stopCh:    make(chan struct{}),
		collect:   collect,
	}
}

// Start launches workerCount Worker goroutines.
func (p *Pool) Start(workerCount int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.New("pool already started")
	}

	for i := 0; i < workerCount; i++ {
		w := newWorker(i, p.taskCh, p.outcomeCh, p.collect)
		p.workers = append(p.workers, w)

		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run()
		}(w)
	}

	p.started = true
	return nil
}

// submit enqueues one task.
//
// ============================================================================
// Race between submit and Stop
// ============================================================================
//
// The race detector flags a write/read race between Stop's
// close(p.taskCh) and submit's `taskCh <- task`. submit checks
// stopped/started under mu before it ever touches the channel, then
// the select below races taskCh against stopCh. Once Stop has closed
// both, both cases are ready and select may pick either; a send on
// the closed taskCh panics, and the deferred recover turns that panic
// into ErrPoolClosed. Worst-case interleaving:
//
//	T1: submit passes the started/stopped check
//	T2: submit releases mu, about to select
//	T3: Stop sets stopped=true, closes stopCh
//	T4: Stop closes taskCh  <- race detector flags this
//	T5: submit's select takes stopCh, or panics on the closed taskCh
//	    and recovers; either way it returns ErrPoolClosed
func (p *Pool) submit(task Task) (err error) {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrPoolNotStarted
	}
	if p.stopped {
		p.mu.Unlock()
		return ErrPoolClosed
	}

	taskCh := p.taskCh
	stopCh := p.stopCh
	p.mu.Unlock()

	defer func() {
		if recover() != nil {
			err = ErrPoolClosed
		}
	}()

	select {
	case taskCh <- task:
		return nil
	case <-stopCh:
		return ErrPoolClosed
	}
}

// Run satisfies types.Worker: it submits every item in batch as a
// task carrying ctx and returns a channel that receives one Outcome
// per successfully submitted item. Items that fail to submit (pool
// closed or not started) get an immediate Outcome carrying the submit
// error rather than being silently dropped.
func (p *Pool) Run(ctx context.Context, batch []*types.Intelligence, jobID string, cfg types.ProducerConfig) <-chan types.Outcome {
	out := make(chan types.Outcome, len(batch))
	if len(batch) == 0 {
		close(out)
		return out
	}

	go func() {
		defer close(out)

		submitted := 0
		for _, item := range batch {
			if err := p.submit(Task{Item: item, Ctx: ctx}); err != nil {
				out <- types.Outcome{GlobalID: item.GlobalID, Err: err}
				continue
			}
			submitted++
		}

		for i := 0; i < submitted; i++ {
			select {
			case outcome, ok := <-p.outcomeCh:
				if !ok {
					return
				}
				out <- outcome
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// Stop gracefully shuts the pool down: closes stopCh so any blocked
// submit returns ErrPoolClosed, closes taskCh so Worker loops end,
// waits for all Workers, then closes outcomeCh. Safe to call once.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.stopCh)
	close(p.taskCh)

	p.wg.Wait()

	close(p.outcomeCh)
}

// GetWorkerCount returns the number of Worker goroutines launched.
func (p *Pool) GetWorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// IsStarted reports whether Start has run.
func (p *Pool) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}
