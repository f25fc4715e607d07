// ============================================================================
// Worker - Intelligence Collection Unit
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Function: work unit that actually collects one intelligence; each
// Worker runs in an independent goroutine.
//
// How it works:
//   Each Worker is an independent goroutine that continuously executes
//   the following loop:
//   1. Receive a task from taskCh (blocking wait)
//   2. Run the injected CollectFunc against the task's context
//   3. Send an Outcome to outcomeCh
//   4. Repeat until taskCh is closed
//
// This package is the reference/example Worker implementation — the
// concurrency harness around whatever real collection logic the
// integrator supplies as a CollectFunc, which this package never
// inspects.
// ============================================================================

package worker

import (
	"github.com/bitsky-io/producer-agent/pkg/types"
)

// Worker executes tasks pulled from a shared channel and reports one
// Outcome per task.
type Worker struct {
	id        int
	taskCh    <-chan Task
	outcomeCh chan<- types.Outcome
	collect   CollectFunc
}

func newWorker(id int, taskCh <-chan Task, outcomeCh chan<- types.Outcome, collect CollectFunc) *Worker {
	return &Worker{
		id:        id,
		taskCh:    taskCh,
		outcomeCh: outcomeCh,
		collect:   collect,
	}
}

// Run is the Worker's main loop.
func (w *Worker) Run() {
	for task := range w.taskCh {
		dataset, err := w.collect(task.Ctx, task.Item)

		outcome := types.Outcome{GlobalID: task.Item.GlobalID}
		if err != nil {
			outcome.Err = err
		} else {
			item := *task.Item
			item.Dataset = dataset
			outcome.Item = &item
		}

		select {
		case w.outcomeCh <- outcome:
		case <-task.Ctx.Done():
			// The job's context ended (e.g. the outer job timeout won
			// the race) — the outcome would be discarded by the runner
			// anyway, so drop it rather than block forever.
		}
	}
}
